package eventbus

import (
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/identra/identra/pkg/domain"
)

// EmbeddedServer runs NATS in-process for single-node deployments and
// tests.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer boots an in-process NATS server with JetStream on
// a random port.
func StartEmbeddedServer() (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
	}
	s, err := server.NewServer(opts)
	if err != nil {
		return nil, domain.Unavailable("BUS-Embedded", "create embedded nats server").WithParent(err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, domain.Unavailable("BUS-Embedded", "embedded nats server not ready")
	}
	return &EmbeddedServer{server: s}, nil
}

// URL returns the client connection URL.
func (e *EmbeddedServer) URL() string { return e.server.ClientURL() }

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	e.server.Shutdown()
	e.server.WaitForShutdown()
}
