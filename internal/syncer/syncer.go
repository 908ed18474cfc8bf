// Package syncer sequences one synchronization attempt over the auth
// manager, conflict detector, and Drive client, and shapes every result for
// the UI layer. It is the error boundary of the system: public operations
// return structured outcomes and never propagate a Go error, so callers need
// no exception handling.
//
// Operations must not be invoked concurrently — there is no internal lock,
// and overlapping calls could race on the cached file id.
package syncer

import (
	"context"
	"log/slog"

	"github.com/promptdrive/promptdrive/internal/conflict"
	"github.com/promptdrive/promptdrive/internal/drive"
	"github.com/promptdrive/promptdrive/internal/prompt"
)

// state names one phase of a synchronization attempt, for logging.
type state string

const (
	stateCheckingConfig     state = "checking_config"
	stateAuthenticating     state = "authenticating"
	stateDetectingConflicts state = "detecting_conflicts"
	stateAutoMerging        state = "auto_merging"
	stateAwaitingResolution state = "awaiting_resolution"
	stateUploading          state = "uploading"
)

// AuthManager is the credential collaborator.
type AuthManager interface {
	IsConfigured() bool
	Authenticated(ctx context.Context) bool
	Authenticate(ctx context.Context) (string, error)
	ClearAll()
	Account() string
}

// RemoteStore is the Drive collaborator.
type RemoteStore interface {
	ReadLibrary(ctx context.Context) (prompt.Library, error)
	WriteLibrary(ctx context.Context, lib prompt.Library) error
	Metadata(ctx context.Context) (*drive.Metadata, error)
	ResolvePath(ctx context.Context, meta *drive.Metadata) (string, error)
}

// LocalStore is the prompt library collaborator. The syncer exchanges whole
// snapshots only and writes local state solely through merge outcomes.
type LocalStore interface {
	Snapshot(ctx context.Context) (prompt.Library, error)
	ReplaceAll(ctx context.Context, lib prompt.Library) error
	FileID() (string, error)
	SetFileID(id string) error
}

// Syncer orchestrates upload, download, and force-upload attempts.
// Construct one per process and pass it to consumers explicitly.
type Syncer struct {
	auth     AuthManager
	remote   RemoteStore
	store    LocalStore
	detector *conflict.Detector
	logger   *slog.Logger
}

// New builds a Syncer from its collaborators.
func New(auth AuthManager, remote RemoteStore, store LocalStore, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{
		auth:     auth,
		remote:   remote,
		store:    store,
		detector: conflict.NewDetector(remote, logger),
		logger:   logger,
	}
}

// precondition checks configuration and silent authentication. Returns a
// Failure to embed in the outcome, or nil when the operation may proceed.
// It never prompts the user.
func (s *Syncer) precondition(ctx context.Context) *Failure {
	s.transition(stateCheckingConfig)

	if !s.auth.IsConfigured() {
		return &Failure{Code: CodeNotConfigured, Message: notConfiguredHint}
	}

	s.transition(stateAuthenticating)

	if !s.auth.Authenticated(ctx) {
		return &Failure{Code: CodeNotAuthenticated, Message: notAuthenticatedHint}
	}

	return nil
}

// Upload synchronizes the given local snapshot to Drive with conflict
// detection. Conflicted uploads return the full conflict context and leave
// the remote untouched; the caller resolves and invokes ForceUpload.
// Auto-merged uploads persist the merged snapshot locally as well, so both
// sides converge in one call.
func (s *Syncer) Upload(ctx context.Context, local prompt.Library) UploadOutcome {
	if f := s.precondition(ctx); f != nil {
		return UploadOutcome{Error: f}
	}

	s.transition(stateDetectingConflicts)

	res := s.detector.Detect(ctx, local)

	switch {
	case res.Set.HasConflicts():
		s.transition(stateAwaitingResolution)
		s.logger.Info("upload blocked on conflicts",
			slog.Int("modified", len(res.Set.Modified)))

		return UploadOutcome{
			HasConflicts:  true,
			Conflicts:     res.Set,
			RemotePrompts: res.Remote,
			LocalPrompts:  local,
		}

	case res.Set.CanAutoMerge():
		s.transition(stateAutoMerging)

		merged := conflict.AutoMerge(local, res.Set.Added)

		if err := s.writeBoth(ctx, merged); err != nil {
			return UploadOutcome{Error: failureFrom(err)}
		}

		s.logger.Info("upload complete (auto-merged)",
			slog.Int("added", len(res.Set.Added)),
			slog.Int("entries", len(merged)))

		return UploadOutcome{Success: true, AutoMerged: true}

	default:
		s.transition(stateUploading)

		if err := s.remote.WriteLibrary(ctx, local); err != nil {
			return UploadOutcome{Error: failureFrom(err)}
		}

		s.logger.Info("upload complete", slog.Int("entries", len(local)))

		return UploadOutcome{Success: true}
	}
}

// ForceUpload writes a fully resolved snapshot to Drive, bypassing conflict
// detection. The ResolvedSet parameter is constructible only by resolving
// every modified entry, which enforces the "no unresolved conflicts" rule at
// the type level. The resolved snapshot is persisted locally too.
func (s *Syncer) ForceUpload(ctx context.Context, resolved conflict.ResolvedSet) UploadOutcome {
	if f := s.precondition(ctx); f != nil {
		return UploadOutcome{Error: f}
	}

	s.transition(stateUploading)

	snapshot := resolved.Snapshot()

	if err := s.writeBoth(ctx, snapshot); err != nil {
		return UploadOutcome{Error: failureFrom(err)}
	}

	s.logger.Info("force upload complete", slog.Int("entries", len(snapshot)))

	return UploadOutcome{Success: true}
}

// writeBoth writes the snapshot remotely and then persists it locally.
// Merge outcomes are the only path by which the syncer writes local state.
func (s *Syncer) writeBoth(ctx context.Context, lib prompt.Library) error {
	if err := s.remote.WriteLibrary(ctx, lib); err != nil {
		return err
	}

	return s.store.ReplaceAll(ctx, lib)
}

// Download returns the remote snapshot as-is — no merge, no conflict
// detection. The caller decides how to reconcile it with local state.
func (s *Syncer) Download(ctx context.Context) DownloadOutcome {
	if f := s.precondition(ctx); f != nil {
		return DownloadOutcome{Error: f}
	}

	lib, err := s.remote.ReadLibrary(ctx)
	if err != nil {
		return DownloadOutcome{Error: failureFrom(err)}
	}

	return DownloadOutcome{Success: true, Prompts: lib}
}

// Status observes current sync state. It never writes library content, auth
// state, or the remote file; the one side effect it may have is refreshing
// the cached file id when the metadata lookup finds it stale. It never
// fails: any internal error degrades the affected fields rather than
// surfacing.
func (s *Syncer) Status(ctx context.Context) Status {
	st := Status{Configured: s.auth.IsConfigured()}

	if !st.Configured {
		return st
	}

	st.Authenticated = s.auth.Authenticated(ctx)
	st.Account = s.auth.Account()

	if id, err := s.store.FileID(); err == nil {
		st.FileID = id
	}

	if !st.Authenticated {
		return st
	}

	meta, err := s.remote.Metadata(ctx)
	if err != nil || meta == nil {
		return st
	}

	owner := ""
	if len(meta.Owners) > 0 {
		owner = meta.Owners[0].EmailAddress
	}

	st.Metadata = &FileInfo{
		ID:       meta.ID,
		Name:     meta.Name,
		Modified: meta.Modified,
		Size:     meta.SizeBytes(),
		ViewLink: meta.WebViewLink,
		Owner:    owner,
	}

	if path, pathErr := s.remote.ResolvePath(ctx, meta); pathErr == nil {
		st.FilePath = path
	}

	return st
}

// Disconnect clears all auth state and the cached file id. The remote file
// itself is not deleted. Idempotent.
func (s *Syncer) Disconnect(ctx context.Context) DisconnectResult {
	was := s.auth.IsConfigured() && s.auth.Authenticated(ctx)

	s.auth.ClearAll()

	if err := s.store.SetFileID(""); err != nil {
		s.logger.Warn("clearing cached file id failed", slog.String("error", err.Error()))
	}

	s.logger.Info("disconnected", slog.Bool("was_authenticated", was))

	return DisconnectResult{WasAuthenticated: was, IsAuthenticated: false}
}

func (s *Syncer) transition(to state) {
	s.logger.Debug("sync state", slog.String("state", string(to)))
}
