package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Middleware resolves the bearer token of every request into a caller scope
// and rejects requests without one.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			scope, err := service.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrInvalidCredentials) && logger != nil {
					logger.Error("token resolution failed", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", httpx.CodeForbidden, "missing or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithScope(r.Context(), scope)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
