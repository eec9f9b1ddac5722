// Package server exposes sync, recovery and snapshot operations over HTTP
// for the desktop shell, and can act as a reference sync backend.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lherron/folio/internal/recovery"
	"github.com/lherron/folio/internal/remote"
	"github.com/lherron/folio/internal/snapshot"
	"github.com/lherron/folio/internal/syncer"
	"go.uber.org/zap"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = "127.0.0.1:7464"

// Syncer runs and reports sync cycles.
type Syncer interface {
	RunOnce(ctx context.Context) (*syncer.Report, error)
	Status() syncer.Status
}

// Exporter writes a snapshot of the user's data.
type Exporter interface {
	Export(ctx context.Context, userID string) (*snapshot.ExportResult, error)
}

// RecoverFunc runs WAL recovery against the live database.
type RecoverFunc func(ctx context.Context, dryRun bool) recovery.Result

// Server holds the collaborators behind each route. Nil collaborators make
// their routes answer 503.
type Server struct {
	UserID    string
	Token     string
	Sync      Syncer
	Snapshots Exporter
	Recover   RecoverFunc
	// Bundles backs /v1/remote/bundles when the daemon serves as a remote.
	Bundles remote.Remote
	Logger  *zap.Logger
	Now     func() time.Time
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(withRequestLogging(s.logger()))
	r.Use(s.withAuth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/sync/status", s.handleSyncStatus)
		r.Post("/sync/run", s.handleSyncRun)

		r.Post("/recovery/run", s.handleRecoveryRun)
		r.Post("/snapshots", s.handleSnapshotExport)

		r.Get("/remote/bundles/{userID}", s.handleBundleGet)
		r.Put("/remote/bundles/{userID}", s.handleBundlePut)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})

	return r
}

// Options configures where Serve listens.
type Options struct {
	Addr string
	// Unix, when set, listens on a unix socket instead of TCP.
	Unix string
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, opts Options) error {
	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	var (
		listener net.Listener
		err      error
	)
	if opts.Unix != "" {
		_ = os.Remove(opts.Unix)
		listener, err = net.Listen("unix", opts.Unix)
		if err != nil {
			return fmt.Errorf("failed to listen on unix socket: %w", err)
		}
		defer os.Remove(opts.Unix)
	} else {
		addr := opts.Addr
		if addr == "" {
			addr = DefaultAddr
		}
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}
	s.logger().Info("foliod listening", zap.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(listener) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}
