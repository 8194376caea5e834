// Package mcpgw serves an MCP server over stdio or streamable HTTP.
package mcpgw

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/api-vault-mcp/internal/gateway"
)

var (
	_ gateway.Gateway = (*Stdio)(nil)
	_ gateway.Gateway = (*HTTP)(nil)
)

// Stdio serves MCP frames on stdin/stdout.
type Stdio struct {
	srv    *server.MCPServer
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewStdio creates a stdio gateway on os.Stdin and os.Stdout.
func NewStdio(srv *server.MCPServer, logger *slog.Logger) *Stdio {
	return &Stdio{srv: srv, in: os.Stdin, out: os.Stdout, logger: logger}
}

// Start blocks until the client closes stdin, ctx is canceled or Stop is called.
func (g *Stdio) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.cancel = cancel
	g.mu.Unlock()

	stdio := server.NewStdioServer(g.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(g.logger.Handler(), slog.LevelError))

	g.logger.Info("mcp stdio gateway starting")
	err := stdio.Listen(ctx, g.in, g.out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Stop cancels the read loop. A Stop before Start makes Start return at once.
func (g *Stdio) Stop(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	if g.cancel != nil {
		g.cancel()
	}
	return nil
}

// EndpointPath is where the HTTP gateway mounts the MCP endpoint.
const EndpointPath = "/mcp"

// HTTP serves MCP over the streamable HTTP transport.
type HTTP struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewHTTP creates a streamable HTTP gateway listening on addr.
func NewHTTP(srv *server.MCPServer, addr string, logger *slog.Logger) *HTTP {
	mux := http.NewServeMux()
	mux.Handle(EndpointPath, server.NewStreamableHTTPServer(srv, server.WithEndpointPath(EndpointPath)))
	return &HTTP{
		addr:    addr,
		handler: mux,
		logger:  logger,
	}
}

// Start blocks until the server is shut down. A gateway that was already
// stopped returns immediately.
func (g *HTTP) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              g.addr,
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	g.server = srv
	g.mu.Unlock()

	g.logger.Info("mcp http gateway starting", slog.String("addr", g.addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server and prevents a later Start.
func (g *HTTP) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.stopped = true
	srv := g.server
	g.mu.Unlock()

	if srv == nil {
		return nil
	}
	g.logger.Info("mcp http gateway stopping")
	return srv.Shutdown(ctx)
}
