package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/api-vault-mcp/internal/observability"
	"github.com/jkaninda/api-vault-mcp/internal/ratelimit"
)

// ServerName is the MCP server name advertised to clients.
const ServerName = "api-vault"

// Bridge exposes registry tools on an MCP server.
type Bridge struct {
	registry *Registry
	metrics  *observability.MetricsCollector
	limiter  *ratelimit.Limiter // nil = unlimited.
	logger   *slog.Logger
}

// NewBridge creates a bridge. metrics may be nil.
func NewBridge(reg *Registry, metrics *observability.MetricsCollector, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{registry: reg, metrics: metrics, logger: logger}
}

// WithRateLimiter limits calls per tool name.
func (b *Bridge) WithRateLimiter(l *ratelimit.Limiter) *Bridge {
	b.limiter = l
	return b
}

// NewMCPServer creates an MCPServer with every registered tool attached.
func (b *Bridge) NewMCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
	)
	for _, t := range b.registry.List() {
		schemaJSON, _ := json.Marshal(t.InputSchema())
		srv.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schemaJSON), b.Handler(t))
	}
	return srv
}

// Handler adapts a Tool to an MCP tool handler. Failures are returned as
// tool error results carrying the underlying message, never as protocol errors.
func (b *Bridge) Handler(t Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()
		logger := b.logger.With(
			slog.String("tool", t.Name()),
			slog.String("call_id", callID),
		)

		if b.metrics != nil {
			b.metrics.ActiveRequests.Inc()
			defer b.metrics.ActiveRequests.Dec()
		}

		start := time.Now()
		res, err := b.call(ctx, t, req.GetArguments())
		elapsed := time.Since(start)
		b.metrics.RecordToolCall(t.Name(), elapsed.Seconds(), err)

		if err != nil {
			logger.Warn("tool call failed",
				slog.String("error", err.Error()),
				slog.Duration("duration", elapsed),
			)
			return mcp.NewToolResultError(err.Error()), nil
		}

		logger.Info("tool call completed", slog.Duration("duration", elapsed))
		return mcp.NewToolResultText(res.Output), nil
	}
}

func (b *Bridge) call(ctx context.Context, t Tool, params map[string]any) (*Result, error) {
	if err := b.limiter.Allow(t.Name()); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := t.Validate(params); err != nil {
		return nil, err
	}
	return t.Execute(ctx, params)
}
