package cloud

import (
	"errors"
	"strings"
)

var (
	// ErrAccountBlocked is permanent until the account is unblocked.
	ErrAccountBlocked = errors.New("cloud account is blocked; wait 24-48 hours or use a different account")
	// ErrRateLimited is returned once every retry hit the provider's rate limit.
	ErrRateLimited = errors.New("cloud provider rate limit exceeded")
	// ErrAuthFailed means the configured credentials were rejected.
	ErrAuthFailed = errors.New("authentication failed; check the cloud credentials")
	// ErrSessionExpired is returned by providers that cannot resume a token.
	ErrSessionExpired = errors.New("cloud session expired")
	// ErrNoCredentials is returned when no email or password is configured.
	ErrNoCredentials = errors.New("cloud credentials are not configured")
)

// errorClass buckets provider errors by their message.
type errorClass int

const (
	classOther errorClass = iota
	classBlocked
	classRateLimited
	classAuth
)

func (c errorClass) String() string {
	switch c {
	case classBlocked:
		return "blocked"
	case classRateLimited:
		return "rate_limited"
	case classAuth:
		return "auth_error"
	default:
		return "error"
	}
}

func classify(err error) errorClass {
	if err == nil {
		return classOther
	}
	switch {
	case errors.Is(err, ErrAccountBlocked):
		return classBlocked
	case errors.Is(err, ErrRateLimited):
		return classRateLimited
	case errors.Is(err, ErrAuthFailed):
		return classAuth
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "EBLOCKED"), strings.Contains(msg, "-16"), strings.Contains(lower, "blocked"):
		return classBlocked
	case strings.Contains(msg, "ERATE"), strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return classRateLimited
	case strings.Contains(lower, "auth"), strings.Contains(lower, "password"), strings.Contains(lower, "email"):
		return classAuth
	default:
		return classOther
	}
}

// Hint returns operator guidance for err.
func Hint(err error) string {
	switch classify(err) {
	case classBlocked:
		return "The account is blocked. Wait 24-48 hours, log in through the web client to check for restrictions, or use a different account."
	case classRateLimited:
		return "The provider is rate limiting this account. Wait a few minutes before trying again."
	case classAuth:
		return "Check the configured email and password."
	default:
		if errors.Is(err, ErrNoCredentials) {
			return "Set CLOUD_EMAIL and CLOUD_PASSWORD."
		}
		return "Check network connectivity and try again."
	}
}
