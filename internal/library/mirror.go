package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/promptdrive/promptdrive/internal/prompt"
)

// mirrorDebounce coalesces bursts of filesystem events (editors write, chmod,
// and rename in quick succession) into one import.
const mirrorDebounce = 500 * time.Millisecond

// mirrorFilePerms for the exported JSON mirror.
const mirrorFilePerms = 0o644

// mirrorEnvelope matches the persisted sync payload so an exported mirror is
// byte-compatible with the Drive file.
type mirrorEnvelope struct {
	Version     string         `json:"version"`
	LastUpdated string         `json:"lastUpdated"`
	Prompts     prompt.Library `json:"prompts"`
}

// ExportMirror writes the current library to path as a JSON envelope,
// atomically (temp + rename).
func (s *Store) ExportMirror(ctx context.Context, path string) error {
	lib, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(mirrorEnvelope{
		Version:     "1.0",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Prompts:     lib,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("library: encoding mirror: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mirrorFilePerms); err != nil {
		return fmt.Errorf("library: writing mirror: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("library: renaming mirror: %w", err)
	}

	s.logger.Info("exported library mirror",
		slog.String("path", path),
		slog.Int("entries", len(lib)),
	)

	return nil
}

// WatchMirror watches path and re-imports the mirror into the store whenever
// it changes on disk, until ctx is canceled. External edits to the mirror are
// how non-CLI consumers feed the library. Import replaces the whole snapshot;
// a mirror that fails to parse is skipped with a warning.
func (s *Store) WatchMirror(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("library: creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files by rename,
	// which drops a direct file watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("library: watching %s: %w", dir, err)
	}

	s.logger.Info("watching mirror", slog.String("path", path))

	var timer *time.Timer

	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(mirrorDebounce)
				timerC = timer.C
			} else {
				timer.Reset(mirrorDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil

			if err := s.importMirror(ctx, path); err != nil {
				s.logger.Warn("mirror import failed", slog.String("error", err.Error()))
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// importMirror reads the mirror file and replaces the library snapshot when
// the content differs from the current state.
func (s *Store) importMirror(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("library: reading mirror: %w", err)
	}

	lib, err := DecodeMirror(raw)
	if err != nil {
		return err
	}

	current, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	if current.Equal(lib) {
		return nil
	}

	s.logger.Info("importing mirror", slog.Int("entries", len(lib)))

	return s.ReplaceAll(ctx, lib)
}

// DecodeMirror parses mirror bytes: the canonical envelope or a bare
// key→text map, matching the shapes the sync payload reader accepts.
func DecodeMirror(raw []byte) (prompt.Library, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return prompt.Library{}, nil
	}

	var env mirrorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Prompts != nil {
		return env.Prompts, nil
	}

	var lib prompt.Library
	if err := json.Unmarshal(raw, &lib); err != nil {
		return nil, fmt.Errorf("library: mirror is not a prompt map: %w", err)
	}

	if lib == nil {
		lib = prompt.Library{}
	}

	return lib, nil
}
