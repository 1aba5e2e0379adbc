// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// HeaderUserID carries the acting user for ledger writes.
const HeaderUserID = "X-User-ID"

// HeaderIdempotencyKey deduplicates retried writes.
const HeaderIdempotencyKey = "Idempotency-Key"

var validate = validator.New()

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string   `json:"type,omitempty"`
	Title  string   `json:"title"`
	Status int      `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{Title: title, Status: status, Detail: detail})
}

// ProblemWithErrors sends a problem listing every message.
func ProblemWithErrors(w http.ResponseWriter, status int, title string, messages []string) {
	detail := ""
	if len(messages) > 0 {
		detail = messages[0]
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{Title: title, Status: status, Detail: detail, Errors: messages})
}

// DecodeJSON decodes the request body into target and runs struct validation.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ActorID reads the acting user from the X-User-ID header.
func ActorID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s header", ErrUnauthorized, HeaderUserID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s header", ErrUnauthorized, HeaderUserID)
	}
	return id, nil
}

// Int64Param parses a path or query value as a positive identifier.
func Int64Param(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrValidation, name)
	}
	return id, nil
}

// DateParam parses an optional YYYY-MM-DD value. Empty yields the zero time.
func DateParam(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrValidation, name)
	}
	return t, nil
}
