package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/promptdrive/promptdrive/internal/tokencache"
)

// driveFileScope grants access only to files created or opened by this app.
var defaultScopes = []string{"https://www.googleapis.com/auth/drive.file"}

// revokeEndpoint is Google's token revocation endpoint.
const revokeEndpoint = "https://oauth2.googleapis.com/revoke"

// aboutEndpoint reports the signed-in user's identity. The drive.file scope
// is sufficient for it, unlike the OIDC userinfo endpoint.
const aboutEndpoint = "https://www.googleapis.com/drive/v3/about?fields=user"

// placeholderClientID mirrors the documentation placeholder; a manager built
// with it reports not-configured.
const placeholderClientID = "YOUR_CLIENT_ID.apps.googleusercontent.com"

// Options configures a Manager.
type Options struct {
	ClientID     string
	ClientSecret string
	// TokenPath is where the cached grant lives on disk.
	TokenPath string
	// OpenURL launches the user's browser for interactive consent. Required
	// for interactive acquisition; leave nil for silent-only use.
	OpenURL func(string) error
	// HTTPClient is used for revocation calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Manager produces valid bearer tokens for Drive calls. It is constructed
// once per process and passed to its consumers explicitly — there is no
// package-level instance.
type Manager struct {
	cfg        *oauth2.Config
	clientID   string
	tokenPath  string
	openURL    func(string) error
	httpClient *http.Client
	logger     *slog.Logger
}

// NewManager builds a Manager from options.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	return &Manager{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       defaultScopes,
			Endpoint:     google.Endpoint,
		},
		clientID:   opts.ClientID,
		tokenPath:  opts.TokenPath,
		openURL:    opts.OpenURL,
		httpClient: hc,
		logger:     logger,
	}
}

// IsConfigured reports whether a non-placeholder client ID is present.
// Every other operation short-circuits when this is false.
func (m *Manager) IsConfigured() bool {
	return m.clientID != "" && m.clientID != placeholderClientID
}

// ErrNotConfigured is returned by token operations on an unconfigured manager.
var ErrNotConfigured = fmt.Errorf("auth: OAuth client ID is not configured")

// Token returns a valid bearer token. In silent mode (interactive=false) it
// never prompts: it loads the cached grant, refreshing it if needed, and
// fails with CodeNotGranted when no grant is cached. In interactive mode it
// falls back to the browser consent flow when no usable grant exists.
func (m *Manager) Token(ctx context.Context, interactive bool) (string, error) {
	if !m.IsConfigured() {
		return "", ErrNotConfigured
	}

	tok, err := m.silentToken(ctx)
	if err == nil {
		return tok, nil
	}

	if !interactive {
		return "", err
	}

	ae := AsError(err)
	if ae == nil || !ae.Recoverable() {
		return "", err
	}

	return m.interactiveToken(ctx)
}

// silentToken loads and refreshes the cached grant without any user prompt.
func (m *Manager) silentToken(ctx context.Context) (string, error) {
	cached, _, err := tokencache.Load(m.tokenPath)
	if err != nil {
		return "", &Error{Code: CodeUnknown, Message: err.Error(), Err: err}
	}

	if cached == nil {
		m.logger.Debug("no cached grant", slog.String("path", m.tokenPath))
		return "", &Error{Code: CodeNotGranted, Message: "no cached grant"}
	}

	src := m.cfg.TokenSource(ctx, cached)

	fresh, err := src.Token()
	if err != nil {
		// A failed refresh must not leave the stale grant behind.
		if clearErr := tokencache.Clear(m.tokenPath); clearErr != nil {
			m.logger.Warn("clearing stale token cache failed",
				slog.String("error", clearErr.Error()))
		}

		return "", classify(err)
	}

	// Persist silently refreshed tokens so the next process start skips the
	// refresh round-trip.
	if fresh.AccessToken != cached.AccessToken {
		m.logger.Debug("token refreshed", slog.Time("expiry", fresh.Expiry))
		m.persist(fresh)
	}

	return fresh.AccessToken, nil
}

// interactiveToken runs the browser consent flow and caches the result.
func (m *Manager) interactiveToken(ctx context.Context) (string, error) {
	if m.openURL == nil {
		return "", &Error{Code: CodeUserCancelled, Message: "no browser launcher available"}
	}

	tok, err := m.consentFlow(ctx)
	if err != nil {
		if ae := AsError(err); ae != nil {
			return "", ae
		}

		return "", classify(err)
	}

	m.persist(tok)

	return tok.AccessToken, nil
}

// Authenticate clears any cached token first, then performs an interactive
// acquisition. On a recoverable failure it clears the cache once more and
// retries interactively exactly once before surfacing the error. On success
// it returns the signed-in account email, which may be empty when the
// identity lookup fails. The token itself is never returned.
func (m *Manager) Authenticate(ctx context.Context) (string, error) {
	if !m.IsConfigured() {
		return "", ErrNotConfigured
	}

	m.ClearAll()

	tok, err := m.interactiveToken(ctx)
	if err == nil {
		return m.fetchAccount(ctx, tok), nil
	}

	ae := AsError(err)
	if ae == nil || !ae.Recoverable() {
		return "", err
	}

	m.logger.Info("recoverable auth failure, retrying once",
		slog.String("code", string(ae.Code)))
	m.ClearAll()

	tok, err = m.interactiveToken(ctx)
	if err != nil {
		return "", err
	}

	return m.fetchAccount(ctx, tok), nil
}

// fetchAccount resolves the signed-in user's identity and caches it alongside
// the token. Best-effort: a failed lookup leaves the account unknown.
func (m *Manager) fetchAccount(ctx context.Context, token string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, aboutEndpoint, nil)
	if err != nil {
		return ""
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Warn("resolving account identity failed", slog.String("error", err.Error()))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("account identity lookup rejected", slog.Int("status", resp.StatusCode))
		return ""
	}

	var about struct {
		User struct {
			DisplayName  string `json:"displayName"`
			EmailAddress string `json:"emailAddress"`
		} `json:"user"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		m.logger.Warn("decoding account identity failed", slog.String("error", err.Error()))
		return ""
	}

	m.SetAccount(about.User.EmailAddress, about.User.DisplayName)

	return about.User.EmailAddress
}

// Invalidate removes the given token from the local cache and best-effort
// revokes it against Google's revocation endpoint. Revocation failures are
// logged, never returned — the local eviction is what correctness needs.
func (m *Manager) Invalidate(ctx context.Context, token string) {
	if token == "" {
		return
	}

	cached, _, err := tokencache.Load(m.tokenPath)
	if err == nil && cached != nil && cached.AccessToken == token {
		if clearErr := tokencache.Clear(m.tokenPath); clearErr != nil {
			m.logger.Warn("evicting token from cache failed",
				slog.String("error", clearErr.Error()))
		}
	}

	m.revoke(ctx, token)
}

// revoke posts the token to the revocation endpoint.
func (m *Manager) revoke(ctx context.Context, token string) {
	form := url.Values{"token": {token}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		m.logger.Warn("building revoke request failed", slog.String("error", err.Error()))
		return
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Warn("token revocation failed", slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("token revocation rejected", slog.Int("status", resp.StatusCode))
	}
}

// ClearAll clears every cached token unconditionally. Used on disconnect.
func (m *Manager) ClearAll() {
	if err := tokencache.Clear(m.tokenPath); err != nil {
		m.logger.Warn("clearing token cache failed", slog.String("error", err.Error()))
	}
}

// Authenticated reports whether a silent token acquisition would succeed,
// without prompting. Errors degrade to false.
func (m *Manager) Authenticated(ctx context.Context) bool {
	if !m.IsConfigured() {
		return false
	}

	_, err := m.silentToken(ctx)

	return err == nil
}

// Account returns the cached account email, or "" when unknown.
func (m *Manager) Account() string {
	acct, err := tokencache.ReadAccount(m.tokenPath)
	if err != nil || acct == nil {
		return ""
	}

	return acct.Email
}

// SetAccount caches the signed-in identity alongside the token.
func (m *Manager) SetAccount(email, displayName string) {
	acct := tokencache.Account{Email: email, DisplayName: displayName}
	if err := tokencache.SetAccount(m.tokenPath, acct); err != nil {
		m.logger.Debug("caching account identity failed", slog.String("error", err.Error()))
	}
}

// persist saves a token to the cache, preserving the cached identity.
func (m *Manager) persist(tok *oauth2.Token) {
	acct, err := tokencache.ReadAccount(m.tokenPath)
	if err != nil {
		acct = nil
	}

	if err := tokencache.Save(m.tokenPath, tok, acct); err != nil {
		m.logger.Warn("persisting token failed", slog.String("error", err.Error()))
	}
}
