package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/ast-grep-mcp/internal/astgrep"
	"github.com/dshills/ast-grep-mcp/internal/config"
	"github.com/dshills/ast-grep-mcp/internal/runner"
	"github.com/dshills/ast-grep-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "ast-grep-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// httpEndpoint is the path served by the streamable HTTP transport
const httpEndpoint = "/mcp"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	client  *astgrep.Client
	history storage.Storage // nil when history is disabled
	logger  *zap.Logger

	closeOnce sync.Once
}

// Option customises NewServer
type Option func(*serverOptions)

type serverOptions struct {
	runner  runner.Runner
	history storage.Storage
}

// WithRunner replaces the process runner used to invoke ast-grep
func WithRunner(r runner.Runner) Option {
	return func(o *serverOptions) { o.runner = r }
}

// WithHistory uses st instead of opening cfg.HistoryDB
func WithHistory(st storage.Storage) Option {
	return func(o *serverOptions) { o.history = st }
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.runner == nil {
		o.runner = runner.NewExecRunner(cfg.Timeout, logger.Named("runner"))
	}
	if o.history == nil && cfg.HistoryDB != "" {
		store, err := storage.NewSQLiteStorage(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history storage: %w", err)
		}
		o.history = store
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:     mcpServer,
		client:  astgrep.NewClient(cfg.Binary, cfg.ConfigPath, o.runner),
		history: o.history,
		logger:  logger,
	}

	s.registerTools(cfg.Languages())

	return s, nil
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve starts the MCP server on stdio and blocks until ctx is done or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger.Named("stdio")))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ServeHTTP serves MCP over streamable HTTP on addr until ctx is done
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	defer s.Close()

	httpServer := &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second}
	streamable := server.NewStreamableHTTPServer(s.mcp, server.WithStreamableHTTPServer(httpServer))

	mux := http.NewServeMux()
	mux.Handle(httpEndpoint, streamable)
	httpServer.Handler = mux

	errChan := make(chan error, 1)
	go func() {
		errChan <- streamable.Start(addr)
	}()

	s.logger.Info("Serving MCP over HTTP", zap.String("addr", addr), zap.String("endpoint", httpEndpoint))

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		// Shutting down an unstarted server makes Start return immediately
		if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	}
}

// Close releases the history storage
func (s *Server) Close() {
	if s.history == nil {
		return
	}
	s.closeOnce.Do(func() {
		if err := s.history.Close(); err != nil {
			s.logger.Warn("Failed to close history storage", zap.Error(err))
		}
	})
}

// registerTools registers all MCP tools
func (s *Server) registerTools(languages []string) {
	s.mcp.AddTool(dumpSyntaxTreeTool(languages), s.handle(ToolDumpSyntaxTree, s.handleDumpSyntaxTree))
	s.mcp.AddTool(testMatchCodeRuleTool(), s.handle(ToolTestMatchCodeRule, s.handleTestMatchCodeRule))
	s.mcp.AddTool(findCodeTool(languages), s.handle(ToolFindCode, s.handleFindCode))
	s.mcp.AddTool(findCodeByRuleTool(), s.handle(ToolFindCodeByRule, s.handleFindCodeByRule))
}
