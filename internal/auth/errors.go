// Package auth obtains, caches, invalidates, and retries OAuth2 bearer tokens
// for the Drive client, hiding interactive-vs-silent acquisition behind one
// manager. Failures are classified into a small taxonomy the orchestrator and
// CLI can act on.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of authentication failure.
type Code string

// Auth failure classes.
const (
	// CodeNotGranted: no cached grant exists and silent acquisition was
	// requested. Expected on first run — not logged as an error.
	CodeNotGranted Code = "not_granted"
	// CodeUserCancelled: the user dismissed or denied the consent screen.
	CodeUserCancelled Code = "user_cancelled"
	// CodeInvalidClient: the OAuth client configuration is rejected.
	CodeInvalidClient Code = "invalid_client"
	// CodeConsentBlocked: the consent screen is blocked by policy.
	CodeConsentBlocked Code = "consent_blocked"
	// CodeInvalidGrant: a cached grant was revoked or expired beyond refresh.
	CodeInvalidGrant Code = "invalid_grant"
	// CodeUnknown: anything the classifier could not place.
	CodeUnknown Code = "unknown"
)

// Error is a classified authentication failure.
type Error struct {
	Code    Code
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth: %s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("auth: %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether clearing the token cache and retrying
// interactively once can plausibly fix the failure.
func (e *Error) Recoverable() bool {
	return e.Code == CodeNotGranted || e.Code == CodeInvalidGrant
}

// AsError extracts an *Error from err, or nil.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	return nil
}

// classify wraps an underlying OAuth failure in a coded Error by inspecting
// the provider's error strings. The strings come from Google's token and
// authorization endpoints and are stable enough to match on.
func classify(err error) *Error {
	msg := err.Error()

	code := CodeUnknown

	switch {
	case strings.Contains(msg, "invalid_grant"):
		code = CodeInvalidGrant
	case strings.Contains(msg, "invalid_client"), strings.Contains(msg, "bad client id"):
		code = CodeInvalidClient
	case strings.Contains(msg, "access_denied"):
		code = CodeUserCancelled
	case strings.Contains(msg, "admin_policy_enforced"),
		strings.Contains(msg, "org_internal"),
		strings.Contains(msg, "access blocked"):
		code = CodeConsentBlocked
	}

	return &Error{Code: code, Message: msg, Err: err}
}
