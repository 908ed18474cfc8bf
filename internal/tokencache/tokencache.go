// Package tokencache persists the OAuth grant for a Google account on disk.
// The cache file carries the oauth2.Token together with the identity of the
// signed-in user, resolved once after an interactive login, so status
// surfaces can name the account without a network call. Leaf package: the
// auth manager stays free of filesystem layout concerns.
package tokencache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts the cache file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the parent directory.
const DirPerms = 0o700

// Account identifies the signed-in Google user.
type Account struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// cacheFile is the on-disk layout.
type cacheFile struct {
	Token   *oauth2.Token `json:"token"`
	Account *Account      `json:"account,omitempty"`
}

// Load reads the cached grant and account identity from disk. Returns
// (nil, nil, nil) when no cache file exists.
func Load(path string) (*oauth2.Token, *Account, error) {
	cf, err := read(path)
	if err != nil || cf == nil {
		return nil, nil, err
	}

	return cf.Token, cf.Account, nil
}

// ReadAccount reads just the cached account identity. Returns (nil, nil)
// when no cache file exists.
func ReadAccount(path string) (*Account, error) {
	cf, err := read(path)
	if err != nil || cf == nil {
		return nil, err
	}

	return cf.Account, nil
}

func read(path string) (*cacheFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokencache: reading %s: %w", path, err)
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("tokencache: decoding %s: %w", path, err)
	}

	if cf.Token == nil {
		return nil, fmt.Errorf("tokencache: %s missing token field (re-login required)", path)
	}

	return &cf, nil
}

// Save writes the grant and account identity to disk atomically with 0600
// permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, acct *Account) error {
	data, err := json.MarshalIndent(cacheFile{Token: tok, Account: acct}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokencache: encoding: %w", err)
	}

	return writeAtomic(path, data)
}

// SetAccount stores the identity alongside the already-cached grant. Errors
// when no grant is cached: an identity without a token is meaningless.
func SetAccount(path string, acct Account) error {
	cf, err := read(path)
	if err != nil {
		return fmt.Errorf("reading token for identity update: %w", err)
	}

	if cf == nil {
		return fmt.Errorf("no token file at %s", path)
	}

	return Save(path, cf.Token, &acct)
}

// Clear removes the cache file. Returns nil if the file does not exist.
func Clear(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// writeAtomic writes via a temp file in the target directory plus rename, so
// a crash mid-write cannot leave a partial cache file at the final path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokencache: creating directory %s: %w", dir, err)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokencache: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: writing: %w", err)
	}

	// Flush to stable storage before rename so a crash between close and
	// rename cannot surface an empty token file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokencache: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokencache: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokencache: renaming: %w", err)
	}

	success = true

	return nil
}
