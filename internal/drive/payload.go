package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/promptdrive/promptdrive/internal/prompt"
)

// payloadVersion is written into every uploaded envelope.
const payloadVersion = "1.0"

// envelope is the canonical persisted payload shape.
type envelope struct {
	Version     string         `json:"version"`
	LastUpdated string         `json:"lastUpdated"`
	Prompts     prompt.Library `json:"prompts"`
}

// payloadKind tags the historically accepted payload shapes. Older releases
// wrote a bare key→text map, and one release wrote a version envelope without
// a prompts key; readers must accept all of them.
type payloadKind int

const (
	// kindEnvelope: {"version":..., "lastUpdated":..., "prompts":{...}}.
	kindEnvelope payloadKind = iota
	// kindBareMap: {"key":"text", ...} with no envelope.
	kindBareMap
	// kindVersionOnly: an envelope with version/lastUpdated but no prompts.
	kindVersionOnly
	// kindMalformed: parseable JSON of an unrecognized top-level shape.
	kindMalformed
)

// classifyPayload inspects decoded top-level JSON and tags its shape.
func classifyPayload(top map[string]json.RawMessage, ok bool) payloadKind {
	if !ok {
		return kindMalformed
	}

	if _, has := top["prompts"]; has {
		return kindEnvelope
	}

	_, hasVersion := top["version"]
	_, hasUpdated := top["lastUpdated"]

	if hasVersion || hasUpdated {
		return kindVersionOnly
	}

	return kindBareMap
}

// normalizePayload converts raw remote bytes into a Library.
// Empty content yields an empty library; unparseable content fails with
// ErrInvalidPayload; recognized legacy shapes are normalized; unrecognized
// top-level shapes degrade to an empty library rather than failing, so a
// hand-edited file never bricks sync.
func normalizePayload(raw []byte, logger *slog.Logger) (prompt.Library, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return prompt.Library{}, nil
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w (re-upload to re-create the file)", ErrInvalidPayload)
	}

	var top map[string]json.RawMessage

	ok := json.Unmarshal(raw, &top) == nil

	switch classifyPayload(top, ok) {
	case kindEnvelope:
		return decodeLibrary(top["prompts"], logger), nil
	case kindBareMap:
		return decodeLibrary(raw, logger), nil
	case kindVersionOnly:
		return prompt.Library{}, nil
	default:
		logger.Warn("unrecognized payload shape, treating as empty library")
		return prompt.Library{}, nil
	}
}

// decodeLibrary unmarshals a key→text map, degrading to empty on shape
// mismatch (a prompts value that is an array, scalar, or null).
func decodeLibrary(raw json.RawMessage, logger *slog.Logger) prompt.Library {
	var lib prompt.Library
	if err := json.Unmarshal(raw, &lib); err != nil {
		logger.Warn("prompts value has unexpected shape, treating as empty library",
			slog.String("error", err.Error()))

		return prompt.Library{}
	}

	if lib == nil {
		return prompt.Library{}
	}

	return lib
}

// ReadLibrary downloads the prompts file content and normalizes it into a
// Library. A stale cached file id is recovered from exactly once (cleared,
// re-discovered by name, retried); if no file exists remotely at all the
// call fails with ErrNotFound.
func (c *Client) ReadLibrary(ctx context.Context) (prompt.Library, error) {
	var lib prompt.Library

	err := c.withIDRecovery(ctx, func(id string) error {
		raw, err := c.fetchContent(ctx, id)
		if err != nil {
			return err
		}

		lib, err = normalizePayload(raw, c.logger)

		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("downloaded prompt library", slog.Int("entries", len(lib)))

	return lib, nil
}

// fetchContent downloads the raw media bytes of the given file.
func (c *Client) fetchContent(ctx context.Context, id string) ([]byte, error) {
	u := fmt.Sprintf("%s/files/%s?alt=media", c.apiBase, id)

	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive: reading file content: %w", err)
	}

	return raw, nil
}

// WriteLibrary serializes the library into the canonical envelope and
// overwrites the prompts file's media content, creating the file first if it
// does not exist yet.
func (c *Client) WriteLibrary(ctx context.Context, lib prompt.Library) error {
	fh, err := c.FindOrCreateFile(ctx)
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(envelope{
		Version:     payloadVersion,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Prompts:     lib,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("drive: encoding payload: %w", err)
	}

	u := fmt.Sprintf("%s/files/%s?uploadType=media", c.uploadBase, fh.ID)

	resp, err := c.do(ctx, http.MethodPatch, u, body, "application/json")
	if err != nil {
		return err
	}

	drainAndClose(resp)

	c.logger.Info("uploaded prompt library",
		slog.String("file_id", fh.ID),
		slog.Int("entries", len(lib)),
	)

	return nil
}
