package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxPathDepth bounds the parent-folder walk in ResolvePath so a corrupt or
// cyclic parent graph cannot loop forever.
const maxPathDepth = 10

// rootLabel prefixes every resolved path.
const rootLabel = "My Drive"

// fileDescription is attached to newly created prompts files.
const fileDescription = "promptdrive prompt library backup"

// FileHandle identifies the sync target file on Drive.
type FileHandle struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
}

// Owner is a Drive file owner.
type Owner struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Metadata describes the sync target file.
type Metadata struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Modified    string   `json:"modifiedTime"`
	Size        string   `json:"size"` // Drive v3 serializes size as a string
	Parents     []string `json:"parents"`
	WebViewLink string   `json:"webViewLink"`
	Owners      []Owner  `json:"owners"`
}

// ModifiedAt parses the RFC3339 modified timestamp, zero time on failure.
func (m *Metadata) ModifiedAt() time.Time {
	t, err := time.Parse(time.RFC3339, m.Modified)
	if err != nil {
		return time.Time{}
	}

	return t
}

// SizeBytes parses the string size field, 0 on failure.
func (m *Metadata) SizeBytes() int64 {
	n, err := strconv.ParseInt(m.Size, 10, 64)
	if err != nil {
		return 0
	}

	return n
}

type fileListResponse struct {
	Files []FileHandle `json:"files"`
}

// FindFile searches for the prompts file by exact name among non-trashed
// files. Returns the first match — remote API order is authoritative for
// ties — or nil when no file matches.
func (c *Client) FindFile(ctx context.Context) (*FileHandle, error) {
	query := fmt.Sprintf("name='%s' and trashed=false", c.fileName)
	u := fmt.Sprintf("%s/files?q=%s&fields=%s",
		c.apiBase,
		url.QueryEscape(query),
		url.QueryEscape("files(id,name,modifiedTime)"),
	)

	c.logger.Debug("searching for prompts file", slog.String("name", c.fileName))

	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list fileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("drive: decoding file list: %w", err)
	}

	if len(list.Files) == 0 {
		c.logger.Debug("no prompts file found", slog.String("name", c.fileName))
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	return &list.Files[0], nil
}

// CreateFile creates an empty prompts file with the fixed name, MIME type,
// and description.
func (c *Client) CreateFile(ctx context.Context) (*FileHandle, error) {
	c.logger.Info("creating prompts file", slog.String("name", c.fileName))

	body, err := json.Marshal(map[string]string{
		"name":        c.fileName,
		"mimeType":    "application/json",
		"description": fileDescription,
	})
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling create request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.apiBase+"/files", body, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fh FileHandle
	if err := json.NewDecoder(resp.Body).Decode(&fh); err != nil {
		return nil, fmt.Errorf("drive: decoding create response: %w", err)
	}

	return &fh, nil
}

// FindOrCreateFile resolves the prompts file, creating it when absent.
// The resolved id is cached as a side effect.
func (c *Client) FindOrCreateFile(ctx context.Context) (*FileHandle, error) {
	fh, err := c.FindFile(ctx)
	if err != nil {
		return nil, err
	}

	if fh == nil {
		fh, err = c.CreateFile(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := c.ids.SetFileID(fh.ID); err != nil {
		return nil, fmt.Errorf("drive: caching file id: %w", err)
	}

	return fh, nil
}

// resolveID returns the file id to operate on: the cached id when present,
// otherwise a search by name (caching the result). Returns ErrNotFound when
// no file exists remotely.
func (c *Client) resolveID(ctx context.Context) (string, error) {
	id, err := c.ids.FileID()
	if err != nil {
		return "", fmt.Errorf("drive: loading cached file id: %w", err)
	}

	if id != "" {
		return id, nil
	}

	fh, err := c.FindFile(ctx)
	if err != nil {
		return "", err
	}

	if fh == nil {
		return "", &Error{
			StatusCode: http.StatusNotFound,
			Message:    "no prompts file found on Drive",
			Err:        ErrNotFound,
		}
	}

	if err := c.ids.SetFileID(fh.ID); err != nil {
		return "", fmt.Errorf("drive: caching file id: %w", err)
	}

	return fh.ID, nil
}

// withIDRecovery runs fn with a resolved file id. When fn reports not-found —
// a stale cached id — the cache is cleared and the id re-discovered by name
// exactly once before the error is surfaced. This single wrapper carries the
// 404 recovery policy for read and metadata operations.
func (c *Client) withIDRecovery(ctx context.Context, fn func(id string) error) error {
	id, err := c.resolveID(ctx)
	if err != nil {
		return err
	}

	err = fn(id)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	c.logger.Info("stale file id, re-discovering by name", slog.String("file_id", id))

	if clearErr := c.ids.SetFileID(""); clearErr != nil {
		return fmt.Errorf("drive: clearing stale file id: %w", clearErr)
	}

	id, err = c.resolveID(ctx)
	if err != nil {
		return err
	}

	return fn(id)
}

// Metadata returns the sync target file's metadata, or nil (not an error)
// when no file can be resolved remotely.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	var meta *Metadata

	err := c.withIDRecovery(ctx, func(id string) error {
		m, err := c.fetchMetadata(ctx, id)
		if err != nil {
			return err
		}

		meta = m

		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil //nolint:nilnil // absence is a valid answer here
	}

	if err != nil {
		return nil, err
	}

	return meta, nil
}

func (c *Client) fetchMetadata(ctx context.Context, id string) (*Metadata, error) {
	fields := url.QueryEscape("id,name,modifiedTime,size,parents,webViewLink,owners(displayName,emailAddress)")
	u := fmt.Sprintf("%s/files/%s?fields=%s", c.apiBase, id, fields)

	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("drive: decoding metadata: %w", err)
	}

	return &meta, nil
}

// folderRef is the subset of folder metadata needed for the parent walk.
type folderRef struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Parents []string `json:"parents"`
}

// ResolvePath walks the parent-folder chain upward from the file's metadata
// and joins folder names root-to-leaf under the drive root label. The walk is
// bounded by maxPathDepth so it terminates even on a corrupt parent graph; a
// failed folder fetch ends the walk with the path collected so far.
// Returns "" when meta is nil.
func (c *Client) ResolvePath(ctx context.Context, meta *Metadata) (string, error) {
	if meta == nil {
		var err error

		meta, err = c.Metadata(ctx)
		if err != nil {
			return "", err
		}

		if meta == nil {
			return "", nil
		}
	}

	name := meta.Name
	if name == "" {
		name = c.fileName
	}

	var folders []string

	parentID := ""
	if len(meta.Parents) > 0 {
		parentID = meta.Parents[0]
	}

	for parentID != "" && parentID != "root" && len(folders) < maxPathDepth {
		u := fmt.Sprintf("%s/files/%s?fields=%s", c.apiBase, parentID, url.QueryEscape("id,name,parents"))

		resp, err := c.do(ctx, http.MethodGet, u, nil, "")
		if err != nil {
			break
		}

		var folder folderRef

		decodeErr := json.NewDecoder(resp.Body).Decode(&folder)
		resp.Body.Close()

		if decodeErr != nil {
			break
		}

		if folder.Name != "" {
			folders = append(folders, folder.Name)
		} else {
			folders = append(folders, parentID)
		}

		parentID = ""
		if len(folder.Parents) > 0 {
			parentID = folder.Parents[0]
		}
	}

	// Folders were collected leaf-to-root; reverse for display.
	parts := make([]string, 0, len(folders)+2)
	parts = append(parts, rootLabel)

	for i := len(folders) - 1; i >= 0; i-- {
		parts = append(parts, folders[i])
	}

	parts = append(parts, name)

	return strings.Join(parts, "/"), nil
}

// Delete removes the prompts file. No-op when no file id is resolvable;
// a 404 on delete is treated as success (idempotent delete). The cached id
// is cleared either way.
func (c *Client) Delete(ctx context.Context) error {
	id, err := c.ids.FileID()
	if err != nil {
		return fmt.Errorf("drive: loading cached file id: %w", err)
	}

	if id == "" {
		return nil
	}

	c.logger.Info("deleting prompts file", slog.String("file_id", id))

	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/files/%s", c.apiBase, id), nil, "")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if resp != nil {
		drainAndClose(resp)
	}

	return c.ids.SetFileID("")
}
