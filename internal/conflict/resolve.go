package conflict

import (
	"fmt"

	"github.com/promptdrive/promptdrive/internal/prompt"
)

// keepBothSuffix is appended to the key holding the remote text under the
// keep-both policy.
const keepBothSuffix = "_drive"

// maxRenameAttempts bounds the numeric-suffix search during keep-both
// collision avoidance.
const maxRenameAttempts = 1000

// Choice is a per-modified-entry resolution decision.
type Choice string

// Resolution choices.
const (
	// KeepLocal retains the local text (no-op on the snapshot).
	KeepLocal Choice = "keep-local"
	// KeepRemote overwrites the local text with the remote text.
	KeepRemote Choice = "keep-remote"
	// KeepBoth retains local under the original key and inserts the remote
	// text under a renamed key.
	KeepBoth Choice = "keep-both"
)

// Valid reports whether c is a known choice.
func (c Choice) Valid() bool {
	return c == KeepLocal || c == KeepRemote || c == KeepBoth
}

// ResolvedSet is a snapshot in which every modified entry of a ConflictSet
// has been decided and all added entries merged. It is the only input
// ForceUpload accepts; constructing one is possible only through Resolve or
// ResolveNone, which makes "all conflicts resolved before force-upload" a
// property of the type rather than a convention.
type ResolvedSet struct {
	snapshot prompt.Library
}

// Snapshot returns the fully resolved library.
func (r ResolvedSet) Snapshot() prompt.Library {
	return r.snapshot
}

// Resolve applies the user's choices to the local snapshot, producing a
// ResolvedSet. Every modified entry must have a valid choice; any missing or
// unknown choice fails the whole resolution. All added entries are merged in
// regardless of per-entry choices.
//
// Under keep-both the remote text lands on key+"_drive"; when that name is
// taken, "_1", "_2", … are appended until a free name is found.
func Resolve(local prompt.Library, set *Set, choices map[string]Choice) (ResolvedSet, error) {
	for _, m := range set.Modified {
		choice, ok := choices[m.Key]
		if !ok {
			return ResolvedSet{}, fmt.Errorf("conflict: no resolution for key %q", m.Key)
		}

		if !choice.Valid() {
			return ResolvedSet{}, fmt.Errorf("conflict: unknown resolution %q for key %q", choice, m.Key)
		}
	}

	out := local.Clone()

	for _, m := range set.Modified {
		switch choices[m.Key] {
		case KeepLocal:
			// Local text already in place.
		case KeepRemote:
			out[m.Key] = m.Remote
		case KeepBoth:
			out[renameKey(out, m.Key)] = m.Remote
		}
	}

	for _, a := range set.Added {
		out[a.Key] = a.Content
	}

	return ResolvedSet{snapshot: out}, nil
}

// ResolveNone wraps a snapshot that has no pending conflicts (an empty
// modified bucket), e.g. a full replacement chosen explicitly by the user.
// It fails when the set still has modified entries.
func ResolveNone(snapshot prompt.Library, set *Set) (ResolvedSet, error) {
	if set != nil && set.HasConflicts() {
		return ResolvedSet{}, fmt.Errorf("conflict: %d entries still unresolved", len(set.Modified))
	}

	return ResolvedSet{snapshot: snapshot.Clone()}, nil
}

// renameKey finds a free keep-both name for key: key+"_drive" first, then
// numeric suffixes. If every candidate up to the bound is taken, the base
// name is returned and overwrites — implausible in practice.
func renameKey(lib prompt.Library, key string) string {
	base := key + keepBothSuffix
	if _, taken := lib[base]; !taken {
		return base
	}

	for i := 1; i <= maxRenameAttempts; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, taken := lib[candidate]; !taken {
			return candidate
		}
	}

	return base
}
