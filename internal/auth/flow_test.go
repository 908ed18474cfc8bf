package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackFor(t *testing.T, target, state string) callbackResult {
	t.Helper()

	resultCh := make(chan callbackResult, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", target, nil)

	handleCallback(rec, req, state, resultCh)

	select {
	case res := <-resultCh:
		return res
	default:
		t.Fatal("handler sent no result")
		return callbackResult{}
	}
}

func TestHandleCallback_Success(t *testing.T) {
	t.Parallel()

	res := callbackFor(t, "/?state=s1&code=auth-code", "s1")
	require.NoError(t, res.err)
	assert.Equal(t, "auth-code", res.code)
}

func TestHandleCallback_StateMismatch(t *testing.T) {
	t.Parallel()

	res := callbackFor(t, "/?state=evil&code=auth-code", "s1")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "state mismatch")
}

func TestHandleCallback_UserDenied(t *testing.T) {
	t.Parallel()

	res := callbackFor(t, "/?state=s1&error=access_denied", "s1")
	require.Error(t, res.err)

	ae := AsError(res.err)
	require.NotNil(t, ae)
	assert.Equal(t, CodeUserCancelled, ae.Code)
}

func TestHandleCallback_MissingCode(t *testing.T) {
	t.Parallel()

	res := callbackFor(t, "/?state=s1", "s1")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "missing authorization code")
}

func TestGenerateState_UniqueAndHex(t *testing.T) {
	t.Parallel()

	a, err := generateState()
	require.NoError(t, err)

	b, err := generateState()
	require.NoError(t, err)

	assert.Len(t, a, stateTokenBytes*2)
	assert.NotEqual(t, a, b)
}
