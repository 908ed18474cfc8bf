// Package conflict diffs local and remote prompt libraries into a ConflictSet,
// decides auto-mergeability, and applies user resolution choices. All diffing
// is pure and deterministic: identical snapshots always produce the same set.
package conflict

import (
	"context"
	"log/slog"
	"sort"

	"github.com/promptdrive/promptdrive/internal/prompt"
)

// Modified is an entry present in both snapshots with different text.
// Requires a user decision.
type Modified struct {
	Key    string `json:"key"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// Added is an entry present only in the remote snapshot. Safe to merge
// automatically.
type Added struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// Set is the result of diffing a local snapshot against the remote one at a
// point in time.
type Set struct {
	Modified []Modified `json:"modified"`
	Added    []Added    `json:"added"`
	// Deleted is reserved for local-key-removed-but-present-remotely
	// tracking. Detection does not populate it, matching the shipped
	// behavior: local deletions resurrect on the next merge. See DESIGN.md.
	Deleted []string `json:"deleted"`
}

// HasConflicts reports whether any entry requires a user decision.
func (s *Set) HasConflicts() bool {
	return len(s.Modified) > 0
}

// CanAutoMerge reports whether the set can be merged without user input:
// remote-only additions exist and nothing is in dispute.
func (s *Set) CanAutoMerge() bool {
	return len(s.Added) > 0 && len(s.Modified) == 0
}

// Diff computes the ConflictSet between local and remote snapshots.
// Entries are emitted in sorted key order so results are stable regardless
// of map iteration.
func Diff(local, remote prompt.Library) *Set {
	set := &Set{
		Modified: []Modified{},
		Added:    []Added{},
		Deleted:  []string{},
	}

	localKeys := sortedKeys(local)
	for _, key := range localKeys {
		remoteText, ok := remote[key]
		if ok && remoteText != local[key] {
			set.Modified = append(set.Modified, Modified{
				Key:    key,
				Local:  local[key],
				Remote: remoteText,
			})
		}
	}

	for _, key := range sortedKeys(remote) {
		if _, ok := local[key]; !ok {
			set.Added = append(set.Added, Added{Key: key, Content: remote[key]})
		}
	}

	return set
}

func sortedKeys(lib prompt.Library) []string {
	keys := make([]string, 0, len(lib))
	for k := range lib {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// AutoMerge overlays every added entry onto a copy of local. Defined only
// when the set has no modified entries; callers gate on CanAutoMerge.
func AutoMerge(local prompt.Library, added []Added) prompt.Library {
	merged := local.Clone()
	for _, a := range added {
		merged[a.Key] = a.Content
	}

	return merged
}

// RemoteReader supplies the current remote snapshot. The drive client is the
// real implementation.
type RemoteReader interface {
	ReadLibrary(ctx context.Context) (prompt.Library, error)
}

// Detector produces ConflictSets from a local snapshot and the live remote.
type Detector struct {
	remote RemoteReader
	logger *slog.Logger
}

// NewDetector creates a Detector reading remote state through r.
func NewDetector(r RemoteReader, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{remote: r, logger: logger}
}

// Result is a detection outcome: the set plus the remote snapshot it was
// computed against, which the UI needs to render both sides of a conflict.
type Result struct {
	Set    *Set
	Remote prompt.Library
}

// Detect downloads the remote snapshot and diffs it against local. A failed
// download (typically: no remote file exists yet) yields an empty set, not an
// error — the first sync is never a conflict.
func (d *Detector) Detect(ctx context.Context, local prompt.Library) *Result {
	remote, err := d.remote.ReadLibrary(ctx)
	if err != nil {
		d.logger.Info("remote snapshot unavailable, proceeding without conflict check",
			slog.String("reason", err.Error()))

		return &Result{
			Set:    &Set{Modified: []Modified{}, Added: []Added{}, Deleted: []string{}},
			Remote: prompt.Library{},
		}
	}

	set := Diff(local, remote)

	d.logger.Debug("conflict detection complete",
		slog.Int("modified", len(set.Modified)),
		slog.Int("added", len(set.Added)),
	)

	return &Result{Set: set, Remote: remote}
}
