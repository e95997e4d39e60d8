// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stocklane/stocklane/internal/shared"
)

// ProblemDetail represents RFC7807 problem details extended with a stable
// machine-readable code from the error taxonomy.
type ProblemDetail struct {
	Type      string `json:"type,omitempty"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, code, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Code:   code,
		Detail: detail,
	})
}

// DecodeJSON decodes a JSON request body into the target struct. Unknown
// fields are rejected rather than silently dropped.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	// Trailing garbage after the object is a malformed payload too.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: unexpected trailing data", shared.ErrValidation)
	}
	return nil
}

// DecodeJSONOneOrMany decodes a body that may be a single object or an array
// of objects, used by the bulk stock movement endpoints.
func DecodeJSONOneOrMany[T any](r *http.Request) ([]T, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	var many []T
	if err := unmarshalStrict(raw, &many); err == nil {
		return many, nil
	}
	var one T
	if err := unmarshalStrict(raw, &one); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return []T{one}, nil
}

func unmarshalStrict(raw []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}
