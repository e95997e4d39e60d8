package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/stocklane/stocklane/internal/shared"
)

const tokenKeyPrefix = "auth:token:"

// Service authenticates credentials and manages opaque bearer tokens stored
// in Redis with a sliding TTL.
type Service struct {
	repo  Repository
	redis *redis.Client
	ttl   time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, rdb *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{repo: repo, redis: rdb, ttl: ttl}
}

// Login validates email/password credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := newToken()
	if err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(user.Scope())
	if err != nil {
		return "", nil, err
	}
	if err := s.redis.Set(ctx, tokenKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}
	return token, user, nil
}

// Resolve maps a bearer token back to the caller's scope, refreshing the TTL
// on each use.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Scope, error) {
	if token == "" {
		return shared.Scope{}, ErrInvalidCredentials
	}
	payload, err := s.redis.Get(ctx, tokenKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return shared.Scope{}, ErrInvalidCredentials
	}
	if err != nil {
		return shared.Scope{}, err
	}
	var scope shared.Scope
	if err := json.Unmarshal(payload, &scope); err != nil {
		return shared.Scope{}, err
	}
	// Sliding expiry: activity keeps the session alive.
	_ = s.redis.Expire(ctx, tokenKeyPrefix+token, s.ttl).Err()
	return scope, nil
}

// Logout revokes a bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.redis.Del(ctx, tokenKeyPrefix+token).Err()
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
