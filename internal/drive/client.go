package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const userAgent = "promptdrive/0.1"

// Default API endpoints. Overridable for tests.
const (
	DefaultAPIBase    = "https://www.googleapis.com/drive/v3"
	DefaultUploadBase = "https://www.googleapis.com/upload/drive/v3"
)

// TokenSource provides bearer tokens for API calls and accepts invalidation
// of tokens that provoked a 401. Defined at the consumer per Go convention
// "accept interfaces, return structs"; auth.Manager is the real implementation.
type TokenSource interface {
	// Token returns a bearer token. Silent acquisition unless interactive.
	Token(ctx context.Context, interactive bool) (string, error)
	// Invalidate evicts the token from any cache so it is never reused.
	Invalidate(ctx context.Context, token string)
}

// IDCache persists the resolved file id across process restarts, separately
// from the prompt library itself. SetFileID("") clears the cache.
type IDCache interface {
	FileID() (string, error)
	SetFileID(id string) error
}

// Client is an HTTP client for the Drive v3 API scoped to a single named
// prompts file. It handles request construction, authentication, one bounded
// retry after a 401 (with token invalidation in between), and error
// classification. All calls are sequential; the client holds no locks and
// must not be used for overlapping sync operations.
type Client struct {
	apiBase    string
	uploadBase string
	httpClient *http.Client
	tokens     TokenSource
	ids        IDCache
	fileName   string
	logger     *slog.Logger

	// interactive is attached to token acquisition for every request made
	// through this client. The sync engine always uses silent clients.
	interactive bool
}

// Options configures a Client.
type Options struct {
	// APIBase and UploadBase default to the public Drive v3 endpoints.
	APIBase    string
	UploadBase string
	HTTPClient *http.Client
	// FileName is the fixed name of the sync target file.
	FileName string
	// Interactive controls whether token acquisition may prompt the user.
	Interactive bool
	Logger      *slog.Logger
}

// NewClient creates a Drive client. tokens and ids are required collaborators.
func NewClient(tokens TokenSource, ids IDCache, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	uploadBase := opts.UploadBase
	if uploadBase == "" {
		uploadBase = DefaultUploadBase
	}

	return &Client{
		apiBase:     apiBase,
		uploadBase:  uploadBase,
		httpClient:  hc,
		tokens:      tokens,
		ids:         ids,
		fileName:    opts.FileName,
		logger:      logger,
		interactive: opts.Interactive,
	}
}

// do executes an authorized request against the given full URL. On HTTP 401
// it invalidates the token, re-acquires one, and retries the request exactly
// once; a second 401 is surfaced to the caller as ErrUnauthorized. The body
// is kept as bytes so the retry can replay it.
//
// The caller is responsible for closing the response body on success.
func (c *Client) do(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	resp, token, err := c.doOnce(ctx, method, url, body, contentType)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)

		c.logger.Warn("unauthorized response, invalidating token and retrying",
			slog.String("method", method),
		)
		c.tokens.Invalidate(ctx, token)

		resp, _, err = c.doOnce(ctx, method, url, body, contentType)
		if err != nil {
			return nil, err
		}
	}

	// 2xx — success.
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	return nil, &Error{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 4096

// doOnce executes a single HTTP request (no retry) and returns the response
// together with the token used, so a 401 handler can invalidate it.
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, string, error) {
	token, err := c.tokens.Token(ctx, c.interactive)
	if err != nil {
		return nil, "", fmt.Errorf("drive: obtaining token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, "", fmt.Errorf("drive: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("drive: %s request failed: %w", method, err)
	}

	return resp, token, nil
}

// drainAndClose discards any remaining body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
