// Package bridge exposes the sync engine's message surface to UI consumers
// over a local websocket: authenticate, upload, forceUpload, download,
// getStatus, and disconnect, each as one request/response pair, plus a
// libraryUpdated event broadcast after local writes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/promptdrive/promptdrive/internal/auth"
	"github.com/promptdrive/promptdrive/internal/conflict"
	"github.com/promptdrive/promptdrive/internal/prompt"
	"github.com/promptdrive/promptdrive/internal/syncer"
)

// Operation names accepted on the wire.
const (
	OpAuthenticate = "authenticate"
	OpUpload       = "upload"
	OpForceUpload  = "forceUpload"
	OpDownload     = "download"
	OpGetStatus    = "getStatus"
	OpDisconnect   = "disconnect"
)

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 5 * time.Second

// Request is one incoming message. Prompts carries the local snapshot for
// upload/forceUpload; Conflicts and Resolutions are required for forceUpload
// when the preceding upload reported conflicts.
type Request struct {
	ID          string                     `json:"id,omitempty"`
	Op          string                     `json:"op"`
	Prompts     prompt.Library             `json:"prompts,omitempty"`
	Conflicts   *conflict.Set              `json:"conflicts,omitempty"`
	Resolutions map[string]conflict.Choice `json:"resolutions,omitempty"`
}

// Response answers one request, correlated by ID.
type Response struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Result any             `json:"result,omitempty"`
	Error  *syncer.Failure `json:"error,omitempty"`
}

// Event is an unsolicited notification. The libraryUpdated event carries no
// payload — consumers re-read the full snapshot.
type Event struct {
	Event string `json:"event"`
}

// Notifier is the library-change subscription collaborator. The cancel func
// removes the subscription; each connection holds exactly one.
type Notifier interface {
	Subscribe() (updates <-chan struct{}, cancel func())
}

// Authenticator is the interactive-auth collaborator; only the bridge's
// authenticate op may prompt.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
	Account() string
}

// Server bridges websocket clients to the sync engine.
type Server struct {
	sync     *syncer.Syncer
	auth     Authenticator
	notifier Notifier
	logger   *slog.Logger
}

// NewServer builds a bridge server.
func NewServer(sync *syncer.Syncer, authn Authenticator, notifier Notifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{sync: sync, auth: authn, notifier: notifier, logger: logger}
}

// Serve accepts websocket connections on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	s.logger.Info("bridge listening", slog.String("addr", listener.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("bridge: serving: %w", serveErr)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// handleWS upgrades one connection and runs its request and event loops.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local-only bridge; the listener binds loopback.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	defer conn.CloseNow() //nolint:errcheck // best-effort teardown

	s.logger.Info("ui client connected", slog.String("remote", r.RemoteAddr))

	ctx := r.Context()
	g, gctx := errgroup.WithContext(ctx)

	// Event loop: forward library-updated signals. The subscription must not
	// outlive the connection.
	updates, cancel := s.notifier.Subscribe()
	defer cancel()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case _, ok := <-updates:
				if !ok {
					return nil
				}

				if err := wsjson.Write(gctx, conn, Event{Event: "libraryUpdated"}); err != nil {
					return err
				}
			}
		}
	})

	// Request loop: one message in, one response out. Requests on a
	// connection are handled strictly in order — sync operations must not
	// overlap.
	g.Go(func() error {
		for {
			var req Request
			if err := wsjson.Read(gctx, conn, &req); err != nil {
				return err
			}

			resp := s.dispatch(gctx, &req)
			if err := wsjson.Write(gctx, conn, resp); err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		s.logger.Debug("connection closed", slog.String("error", err.Error()))
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// dispatch routes one request to the engine and shapes the response.
func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	resp := Response{ID: id, Op: req.Op}

	switch req.Op {
	case OpAuthenticate:
		resp.Result = s.authenticate(ctx)
	case OpUpload:
		resp.Result = s.sync.Upload(ctx, req.Prompts)
	case OpForceUpload:
		resp.Result = s.forceUpload(ctx, req)
	case OpDownload:
		resp.Result = s.sync.Download(ctx)
	case OpGetStatus:
		resp.Result = s.sync.Status(ctx)
	case OpDisconnect:
		resp.Result = s.sync.Disconnect(ctx)
	default:
		resp.Error = &syncer.Failure{
			Code:    syncer.CodeInternal,
			Message: fmt.Sprintf("unknown operation %q", req.Op),
		}
	}

	return resp
}

// authResult is the authenticate response payload.
type authResult struct {
	Success bool            `json:"success"`
	Account string          `json:"account,omitempty"`
	Error   *syncer.Failure `json:"error,omitempty"`
}

func (s *Server) authenticate(ctx context.Context) authResult {
	if _, err := s.auth.Authenticate(ctx); err != nil {
		code := syncer.CodeAuth
		if errors.Is(err, auth.ErrNotConfigured) {
			code = syncer.CodeNotConfigured
		}

		return authResult{Error: &syncer.Failure{Code: code, Message: err.Error()}}
	}

	return authResult{Success: true, Account: s.auth.Account()}
}

// forceUpload validates the resolution set before touching the engine: a
// request whose choices do not cover every conflicted entry is rejected here,
// which keeps the ResolvedSet invariant intact across the wire boundary.
func (s *Server) forceUpload(ctx context.Context, req *Request) syncer.UploadOutcome {
	set := req.Conflicts
	if set == nil {
		set = &conflict.Set{}
	}

	var (
		resolved conflict.ResolvedSet
		err      error
	)

	if set.HasConflicts() {
		resolved, err = conflict.Resolve(req.Prompts, set, req.Resolutions)
	} else {
		resolved, err = conflict.ResolveNone(req.Prompts, set)
	}

	if err != nil {
		return syncer.UploadOutcome{
			Error: &syncer.Failure{Code: syncer.CodeInternal, Message: err.Error()},
		}
	}

	return s.sync.ForceUpload(ctx, resolved)
}
