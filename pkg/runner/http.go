package runner

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// HTTPService runs an *http.Server as a managed service. Start binds
// the listener synchronously so a taken port fails fast; serving
// happens in the background.
type HTTPService struct {
	name   string
	server *http.Server

	serveErr chan error
}

// NewHTTPService wraps the server. The server's Addr field decides the
// listen address.
func NewHTTPService(name string, server *http.Server) *HTTPService {
	return &HTTPService{
		name:     name,
		server:   server,
		serveErr: make(chan error, 1),
	}
}

func (s *HTTPService) Name() string { return s.name }

func (s *HTTPService) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	return nil
}

func (s *HTTPService) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if err, ok := <-s.serveErr; ok && err != nil {
		return err
	}
	return nil
}

// Addr returns the configured listen address.
func (s *HTTPService) Addr() string { return s.server.Addr }
