package tokencache

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
}

func TestLoad_MissingFileReturnsNil(t *testing.T) {
	t.Parallel()

	tok, acct, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Nil(t, acct)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "token.json")
	acct := &Account{Email: "user@example.com", DisplayName: "User Example"}

	require.NoError(t, Save(path, testToken(), acct))

	tok, gotAcct, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, acct, gotAcct)
}

func TestSave_RestrictsPermissions(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, testToken(), nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "token.json"), testToken(), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}

func TestLoad_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestLoad_MissingTokenField(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"account":{"email":"x"}}`), 0o600))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token")
}

func TestReadAccount(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")

	acct, err := ReadAccount(path)
	require.NoError(t, err)
	assert.Nil(t, acct)

	require.NoError(t, Save(path, testToken(), &Account{Email: "a@b.c"}))

	acct, err = ReadAccount(path)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "a@b.c", acct.Email)
}

func TestClear_Idempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")

	require.NoError(t, Clear(path))

	require.NoError(t, Save(path, testToken(), nil))
	require.NoError(t, Clear(path))
	require.NoError(t, Clear(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSetAccount(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")

	// No token cached yet: the identity must not create a token-less file.
	require.Error(t, SetAccount(path, Account{Email: "x"}))

	require.NoError(t, Save(path, testToken(), &Account{Email: "old@example.com"}))
	require.NoError(t, SetAccount(path, Account{Email: "new@example.com", DisplayName: "New User"}))

	tok, acct, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	require.NotNil(t, acct)
	assert.Equal(t, "new@example.com", acct.Email)
	assert.Equal(t, "New User", acct.DisplayName)
}
