package pairing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinNumberDigits is the shortest accepted normalized number.
const MinNumberDigits = 11

// Request is a validated pairing request.
type Request struct {
	RawNumber string
	// Number holds only the digits of RawNumber.
	Number string
}

// RequestError rejects a request before any session is created.
type RequestError struct {
	Kind ErrorKind
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid pairing request: %s", e.Kind)
}

// ParseRequest normalizes raw to its digits and validates it.
func ParseRequest(raw string) (Request, error) {
	// Only an absent number is INVALID_NUMBER; whitespace falls through to
	// the digit check.
	if raw == "" {
		return Request{}, &RequestError{Kind: ErrorInvalidNumber}
	}
	number := digitsOnly(raw)
	if len(number) < MinNumberDigits {
		return Request{}, &RequestError{Kind: ErrorInvalidFormat}
	}
	return Request{RawNumber: raw, Number: number}, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewSessionID returns an id of the form pair-<unix ms>-<8 hex chars>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("pair-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
