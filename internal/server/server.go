package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/wanpull/wanpull/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the daemon's HTTP listener for the RPC endpoints.
type Server struct {
	addr   string
	rpc    *RPCServer
	log    logger.Logger
	server *http.Server
	mu     sync.Mutex
}

func NewServer(l logger.Logger, addr string, rpc *RPCServer) *Server {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Server{addr: addr, rpc: rpc, log: l}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.rpc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.log.Info("rpc listening on %s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the listener and the jrpc2 bridge.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		s.log.Error("shutting down rpc server: %v", err)
	}
	s.server = nil
	s.rpc.Close()
	return err
}
