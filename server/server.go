// Package server exposes the repository and workspace operations over HTTP
// and streams workspace session events over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/repository"
	"github.com/zhubert/eve/workspace"
)

// Server is the daemon's HTTP API.
type Server struct {
	repos      *repository.Service
	workspaces *workspace.Service
	version    string

	router     *httprouter.Router
	httpServer *http.Server
	log        *slog.Logger
}

// New creates a Server and registers its routes.
func New(repos *repository.Service, workspaces *workspace.Service, version string) *Server {
	s := &Server{
		repos:      repos,
		workspaces: workspaces,
		version:    version,
		router:     httprouter.New(),
		log:        logger.WithComponent("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.GET("/health", s.handleHealth)

	r.GET("/repositories", s.handleListRepositories)
	r.POST("/repositories", s.handleCreateRepository)
	r.GET("/repositories/:id", s.handleGetRepository)
	r.PATCH("/repositories/:id", s.handleUpdateRepository)
	r.DELETE("/repositories/:id", s.handleDeleteRepository)
	r.GET("/repositories/:id/workspaces", s.handleListRepositoryWorkspaces)
	r.POST("/repositories/:id/workspaces", s.handleCreateWorkspace)

	r.GET("/workspaces", s.handleListWorkspaces)
	r.GET("/workspaces/:id", s.handleGetWorkspace)
	r.DELETE("/workspaces/:id", s.handleDeleteWorkspace)
	r.POST("/workspaces/:id/input", s.handleSendInput)
	r.POST("/workspaces/:id/resume", s.handleResume)
	r.POST("/workspaces/:id/archive", s.handleArchive)
	r.GET("/workspaces/:id/git-status", s.handleGitStatus)
	r.GET("/workspaces/:id/diff", s.handleDiff)

	r.GET("/ws", s.handleStream)

	r.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v any) {
		s.log.Error("handler panic", "method", req.Method, "path", req.URL.Path, "panic", v)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Handler returns the root handler: CORS headers around the router.
func (s *Server) Handler() http.Handler {
	return cors(s.router)
}

// cors allows any origin, as local web clients are served from other ports.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
