package syncer

import (
	"errors"

	"github.com/promptdrive/promptdrive/internal/auth"
	"github.com/promptdrive/promptdrive/internal/conflict"
	"github.com/promptdrive/promptdrive/internal/drive"
	"github.com/promptdrive/promptdrive/internal/prompt"
)

// ErrorCode identifies a class of sync failure in outcome results.
type ErrorCode string

// Failure classes surfaced to the UI layer.
const (
	CodeNotConfigured    ErrorCode = "not_configured"
	CodeNotAuthenticated ErrorCode = "not_authenticated"
	CodeAuth             ErrorCode = "auth_error"
	CodeNetwork          ErrorCode = "network_error"
	CodeNotFound         ErrorCode = "not_found"
	CodeInvalidPayload   ErrorCode = "invalid_payload"
	CodeInternal         ErrorCode = "internal_error"
)

// Failure is a structured error carried inside an outcome. The orchestrator
// never lets a raw error cross to its callers.
type Failure struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Status is the HTTP status for network failures, 0 otherwise.
	Status int `json:"status,omitempty"`
}

// UploadOutcome is the result of Upload or ForceUpload.
type UploadOutcome struct {
	Success    bool `json:"success"`
	AutoMerged bool `json:"autoMerged,omitempty"`

	// Conflict fields are populated only when HasConflicts is true; the
	// caller resolves them and calls ForceUpload.
	HasConflicts  bool           `json:"hasConflicts,omitempty"`
	Conflicts     *conflict.Set  `json:"conflicts,omitempty"`
	RemotePrompts prompt.Library `json:"remotePrompts,omitempty"`
	LocalPrompts  prompt.Library `json:"localPrompts,omitempty"`

	Error *Failure `json:"error,omitempty"`
}

// DownloadOutcome is the result of Download.
type DownloadOutcome struct {
	Success bool           `json:"success"`
	Prompts prompt.Library `json:"prompts,omitempty"`
	Error   *Failure       `json:"error,omitempty"`
}

// FileInfo is the subset of remote metadata shown in status output.
type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Modified string `json:"modified,omitempty"`
	Size     int64  `json:"size,omitempty"`
	ViewLink string `json:"view_link,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// Status is a side-effect-free observation of sync state used to drive UI.
type Status struct {
	Configured    bool      `json:"configured"`
	Authenticated bool      `json:"authenticated"`
	FileID        string    `json:"file_id,omitempty"`
	Metadata      *FileInfo `json:"metadata,omitempty"`
	FilePath      string    `json:"file_path,omitempty"`
	Account       string    `json:"account,omitempty"`
}

// DisconnectResult reports the auth state transition of a disconnect.
type DisconnectResult struct {
	WasAuthenticated bool `json:"wasAuthenticated"`
	IsAuthenticated  bool `json:"isAuthenticated"`
}

// failureFrom maps an internal error onto the outcome taxonomy.
func failureFrom(err error) *Failure {
	var ae *auth.Error
	if errors.As(err, &ae) {
		code := CodeAuth
		if ae.Code == auth.CodeNotGranted {
			code = CodeNotAuthenticated
		}

		return &Failure{Code: code, Message: ae.Error()}
	}

	if errors.Is(err, auth.ErrNotConfigured) {
		return &Failure{Code: CodeNotConfigured, Message: notConfiguredHint}
	}

	var de *drive.Error
	if errors.As(err, &de) {
		code := CodeNetwork

		switch {
		case errors.Is(de, drive.ErrNotFound):
			code = CodeNotFound
		case errors.Is(de, drive.ErrUnauthorized):
			code = CodeAuth
		}

		return &Failure{Code: code, Message: de.Error(), Status: de.StatusCode}
	}

	if errors.Is(err, drive.ErrInvalidPayload) {
		return &Failure{Code: CodeInvalidPayload, Message: err.Error()}
	}

	return &Failure{Code: CodeInternal, Message: err.Error()}
}

// notConfiguredHint tells the user how to fix a missing client ID.
const notConfiguredHint = "Google Drive sync is not configured: set client_id in the config file"

// notAuthenticatedHint tells the user how to connect.
const notAuthenticatedHint = "not connected to Google Drive: run 'promptdrive login' first"
