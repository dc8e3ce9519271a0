// Package mcp exposes symbol validation as an MCP tool over stdio, so
// agent tooling can ask whether a package's symbols check out.
package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
)

// Server manages the MCP server lifecycle.
type Server struct {
	validate ValidateFunc
	mcp      *server.MCPServer
}

// NewServer creates an MCP server exposing the symaudit_validate tool.
func NewServer(validate ValidateFunc) (*Server, error) {
	if validate == nil {
		return nil, fmt.Errorf("validate function is required")
	}

	mcpServer := server.NewMCPServer(
		"symaudit-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	AddValidateTool(mcpServer, validate)

	return &Server{validate: validate, mcp: mcpServer}, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting MCP server on stdio...")
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
		return nil
	case err := <-errCh:
		return err
	}
}
