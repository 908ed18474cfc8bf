package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
		want Code
	}{
		{name: "revoked grant", msg: `oauth2: "invalid_grant" token expired`, want: CodeInvalidGrant},
		{name: "bad client config", msg: `oauth2: "invalid_client"`, want: CodeInvalidClient},
		{name: "malformed client id", msg: "bad client id: not a valid origin", want: CodeInvalidClient},
		{name: "user denied consent", msg: "access_denied", want: CodeUserCancelled},
		{name: "workspace policy", msg: "admin_policy_enforced", want: CodeConsentBlocked},
		{name: "internal-only app", msg: "org_internal", want: CodeConsentBlocked},
		{name: "blocked consent screen", msg: "access blocked: app not verified", want: CodeConsentBlocked},
		{name: "anything else", msg: "connection reset by peer", want: CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classify(errors.New(tt.msg))
			assert.Equal(t, tt.want, got.Code)
			assert.ErrorContains(t, got, tt.msg)
		})
	}
}

func TestRecoverable(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Error{Code: CodeNotGranted}).Recoverable())
	assert.True(t, (&Error{Code: CodeInvalidGrant}).Recoverable())
	assert.False(t, (&Error{Code: CodeUserCancelled}).Recoverable())
	assert.False(t, (&Error{Code: CodeInvalidClient}).Recoverable())
	assert.False(t, (&Error{Code: CodeConsentBlocked}).Recoverable())
	assert.False(t, (&Error{Code: CodeUnknown}).Recoverable())
}

func TestAsError(t *testing.T) {
	t.Parallel()

	inner := &Error{Code: CodeInvalidGrant, Message: "revoked"}
	wrapped := fmt.Errorf("token acquisition: %w", inner)

	got := AsError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeInvalidGrant, got.Code)

	assert.Nil(t, AsError(errors.New("plain")))
	assert.Nil(t, AsError(nil))
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "auth: invalid_grant: revoked",
		(&Error{Code: CodeInvalidGrant, Message: "revoked"}).Error())
	assert.Equal(t, "auth: not_granted", (&Error{Code: CodeNotGranted}).Error())
}
