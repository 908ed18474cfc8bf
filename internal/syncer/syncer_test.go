package syncer

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdrive/promptdrive/internal/auth"
	"github.com/promptdrive/promptdrive/internal/conflict"
	"github.com/promptdrive/promptdrive/internal/drive"
	"github.com/promptdrive/promptdrive/internal/prompt"
)

// fakeAuth implements AuthManager.
type fakeAuth struct {
	configured    bool
	authenticated bool
	account       string
	cleared       int
}

func (f *fakeAuth) IsConfigured() bool                   { return f.configured }
func (f *fakeAuth) Authenticated(context.Context) bool   { return f.authenticated }
func (f *fakeAuth) Account() string                      { return f.account }
func (f *fakeAuth) ClearAll()                            { f.cleared++; f.authenticated = false }
func (f *fakeAuth) Authenticate(context.Context) (string, error) {
	f.authenticated = true
	return f.account, nil
}

// fakeRemote implements RemoteStore.
type fakeRemote struct {
	lib     prompt.Library
	readErr error

	written  []prompt.Library
	writeErr error

	meta    *drive.Metadata
	metaErr error
	path    string
}

func (f *fakeRemote) ReadLibrary(context.Context) (prompt.Library, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}

	return f.lib.Clone(), nil
}

func (f *fakeRemote) WriteLibrary(_ context.Context, lib prompt.Library) error {
	if f.writeErr != nil {
		return f.writeErr
	}

	f.lib = lib.Clone()
	f.written = append(f.written, lib.Clone())

	return nil
}

func (f *fakeRemote) Metadata(context.Context) (*drive.Metadata, error) {
	return f.meta, f.metaErr
}

func (f *fakeRemote) ResolvePath(context.Context, *drive.Metadata) (string, error) {
	return f.path, nil
}

// fakeStore implements LocalStore.
type fakeStore struct {
	lib    prompt.Library
	fileID string

	replaceErr error
	replaced   int
}

func (f *fakeStore) Snapshot(context.Context) (prompt.Library, error) {
	return f.lib.Clone(), nil
}

func (f *fakeStore) ReplaceAll(_ context.Context, lib prompt.Library) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}

	f.lib = lib.Clone()
	f.replaced++

	return nil
}

func (f *fakeStore) FileID() (string, error) { return f.fileID, nil }

func (f *fakeStore) SetFileID(id string) error {
	f.fileID = id
	return nil
}

type fixture struct {
	auth   *fakeAuth
	remote *fakeRemote
	store  *fakeStore
	sync   *Syncer
}

func newFixture() *fixture {
	a := &fakeAuth{configured: true, authenticated: true, account: "user@example.com"}
	r := &fakeRemote{}
	s := &fakeStore{}

	return &fixture{auth: a, remote: r, store: s, sync: New(a, r, s, nil)}
}

func TestUpload_NotConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.auth.configured = false

	outcome := f.sync.Upload(context.Background(), prompt.Library{"a": "1"})

	require.NotNil(t, outcome.Error)
	assert.Equal(t, CodeNotConfigured, outcome.Error.Code)
	assert.False(t, outcome.Success)
	assert.Empty(t, f.remote.written)
}

func TestUpload_NotAuthenticated(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.auth.authenticated = false

	outcome := f.sync.Upload(context.Background(), prompt.Library{"a": "1"})

	require.NotNil(t, outcome.Error)
	assert.Equal(t, CodeNotAuthenticated, outcome.Error.Code)
	assert.Empty(t, f.remote.written)
}

func TestUpload_CleanWhenRemoteMatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.lib = prompt.Library{"a": "1"}

	outcome := f.sync.Upload(context.Background(), prompt.Library{"a": "1", "b": "2"})

	assert.True(t, outcome.Success)
	assert.False(t, outcome.AutoMerged)
	assert.False(t, outcome.HasConflicts)
	require.Len(t, f.remote.written, 1)
	assert.Equal(t, prompt.Library{"a": "1", "b": "2"}, f.remote.written[0])
	// No merge happened, so local state is untouched.
	assert.Zero(t, f.store.replaced)
}

func TestUpload_FirstSyncNoRemoteFile(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.readErr = &drive.Error{StatusCode: http.StatusNotFound, Err: drive.ErrNotFound}

	outcome := f.sync.Upload(context.Background(), prompt.Library{"a": "1"})

	// A missing remote file is never a conflict; the write creates it.
	assert.True(t, outcome.Success)
	require.Len(t, f.remote.written, 1)
}

func TestUpload_AutoMergesRemoteOnlyAdditions(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.lib = prompt.Library{"a": "1", "remote-only": "r"}

	outcome := f.sync.Upload(context.Background(), prompt.Library{"a": "1", "local-only": "l"})

	assert.True(t, outcome.Success)
	assert.True(t, outcome.AutoMerged)

	merged := prompt.Library{"a": "1", "local-only": "l", "remote-only": "r"}
	require.Len(t, f.remote.written, 1)
	assert.Equal(t, merged, f.remote.written[0])
	// Both sides converge.
	assert.Equal(t, merged, f.store.lib)
	assert.Equal(t, 1, f.store.replaced)
}

func TestUpload_ConflictsBlockAndReturnContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.lib = prompt.Library{"a": "remote text", "remote-only": "r"}

	local := prompt.Library{"a": "local text"}
	outcome := f.sync.Upload(context.Background(), local)

	assert.False(t, outcome.Success)
	assert.True(t, outcome.HasConflicts)
	require.NotNil(t, outcome.Conflicts)
	require.Len(t, outcome.Conflicts.Modified, 1)
	assert.Equal(t, "a", outcome.Conflicts.Modified[0].Key)
	assert.Equal(t, local, outcome.LocalPrompts)
	assert.Equal(t, f.remote.lib, outcome.RemotePrompts)

	// The remote must be untouched while conflicts are pending.
	assert.Empty(t, f.remote.written)
	assert.Zero(t, f.store.replaced)
}

func TestUpload_WriteFailureMapped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.writeErr = &drive.Error{StatusCode: http.StatusInternalServerError, Err: drive.ErrServerError}

	outcome := f.sync.Upload(context.Background(), prompt.Library{"a": "1"})

	require.NotNil(t, outcome.Error)
	assert.Equal(t, CodeNetwork, outcome.Error.Code)
	assert.Equal(t, http.StatusInternalServerError, outcome.Error.Status)
}

func TestForceUpload_WritesResolvedSnapshotBothSides(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.lib = prompt.Library{"a": "remote text"}

	set := conflict.Diff(prompt.Library{"a": "local text"}, f.remote.lib)
	resolved, err := conflict.Resolve(prompt.Library{"a": "local text"}, set,
		map[string]conflict.Choice{"a": conflict.KeepBoth})
	require.NoError(t, err)

	outcome := f.sync.ForceUpload(context.Background(), resolved)

	assert.True(t, outcome.Success)

	want := prompt.Library{"a": "local text", "a_drive": "remote text"}
	require.Len(t, f.remote.written, 1)
	assert.Equal(t, want, f.remote.written[0])
	assert.Equal(t, want, f.store.lib)
}

func TestForceUpload_PreconditionStillApplies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.auth.authenticated = false

	resolved, err := conflict.ResolveNone(prompt.Library{"a": "1"}, &conflict.Set{})
	require.NoError(t, err)

	outcome := f.sync.ForceUpload(context.Background(), resolved)

	require.NotNil(t, outcome.Error)
	assert.Equal(t, CodeNotAuthenticated, outcome.Error.Code)
}

func TestDownload_ReturnsRemoteAsIs(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.lib = prompt.Library{"a": "1"}
	f.store.lib = prompt.Library{"local": "x"}

	outcome := f.sync.Download(context.Background())

	assert.True(t, outcome.Success)
	assert.Equal(t, prompt.Library{"a": "1"}, outcome.Prompts)
	// Download never writes local state; the caller decides.
	assert.Zero(t, f.store.replaced)
}

func TestDownload_NotFoundMapped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.readErr = &drive.Error{StatusCode: http.StatusNotFound, Err: drive.ErrNotFound}

	outcome := f.sync.Download(context.Background())

	require.NotNil(t, outcome.Error)
	assert.Equal(t, CodeNotFound, outcome.Error.Code)
}

func TestDownload_AuthErrorMapped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.readErr = &auth.Error{Code: auth.CodeInvalidGrant, Message: "revoked"}

	outcome := f.sync.Download(context.Background())

	require.NotNil(t, outcome.Error)
	assert.Equal(t, CodeAuth, outcome.Error.Code)
}

func TestStatus_NeverFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.fileID = "file-1"
	f.remote.metaErr = errors.New("network down")

	st := f.sync.Status(context.Background())

	assert.True(t, st.Configured)
	assert.True(t, st.Authenticated)
	assert.Equal(t, "file-1", st.FileID)
	assert.Nil(t, st.Metadata)
}

func TestStatus_FullMetadata(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.remote.meta = &drive.Metadata{
		ID:          "file-1",
		Name:        "prompts.json",
		Modified:    "2026-01-02T03:04:05Z",
		Size:        "512",
		WebViewLink: "https://drive.example/view",
		Owners:      []drive.Owner{{EmailAddress: "owner@example.com"}},
	}
	f.remote.path = "My Drive/prompts.json"

	st := f.sync.Status(context.Background())

	require.NotNil(t, st.Metadata)
	assert.Equal(t, int64(512), st.Metadata.Size)
	assert.Equal(t, "owner@example.com", st.Metadata.Owner)
	assert.Equal(t, "My Drive/prompts.json", st.FilePath)
	assert.Equal(t, "user@example.com", st.Account)
}

func TestStatus_UnconfiguredShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.auth.configured = false

	st := f.sync.Status(context.Background())

	assert.False(t, st.Configured)
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.Metadata)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.fileID = "file-1"

	res := f.sync.Disconnect(context.Background())

	assert.True(t, res.WasAuthenticated)
	assert.False(t, res.IsAuthenticated)
	assert.Equal(t, 1, f.auth.cleared)
	assert.Empty(t, f.store.fileID)

	// Idempotent.
	res = f.sync.Disconnect(context.Background())
	assert.False(t, res.WasAuthenticated)
}
