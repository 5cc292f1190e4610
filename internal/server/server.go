// Package server exposes the control center's REST API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lpappas98/claw-control-center/internal/logging"
)

// Server wraps http.Server with the API routes and graceful shutdown.
type Server struct {
	httpSrv *http.Server
	log     *logging.Logger
}

// New builds a server listening on addr with all routes registered.
func New(addr string, h *Handlers) *Server {
	if h.Log == nil {
		h.Log = logging.Component("server")
	}
	if h.StartAt.IsZero() {
		h.StartAt = time.Now()
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: h.Log,
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.httpSrv.Addr)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
