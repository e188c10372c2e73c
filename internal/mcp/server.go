// Package mcp exposes retrieval to answer-generation clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// StatisticsSource reports corpus statistics.
type StatisticsSource interface {
	Statistics() models.StatisticsSummary
}

// DocumentSource fetches stored documents.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// Ports are the services the MCP server exposes. Only Search is required.
type Ports struct {
	Search     Searcher
	Statistics StatisticsSource
	Documents  DocumentSource
}

// Validate checks that the required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Search == nil {
		return errors.New("search port is required")
	}
	return nil
}

// Server is the MCP server for Kotae.
type Server struct {
	ports   *Ports
	server  *mcp.Server
	logger  *zap.Logger
	version string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates an MCP server advertising version.
func NewServer(ports *Ports, version string, opts ...Option) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	s := &Server{ports: ports, version: version}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	s.server = mcp.NewServer(&mcp.Implementation{Name: "kotae", Version: version}, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves MCP over streamable HTTP on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.logger.Info("starting mcp server", zap.String("addr", addr))
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
