package main

import (
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/server"
	flag "github.com/spf13/pflag"

	"github.com/mre/envy/internal/config"
	"github.com/mre/envy/internal/logger"
	mcpserver "github.com/mre/envy/internal/server"
	"github.com/mre/envy/internal/version"
	"github.com/mre/envy/pkg/envy"
)

func (a *app) runServe(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	a.cfg.AddServerFlags(fs)
	if _, err := a.parseCommand(fs, args, 0, 0); err != nil {
		return err
	}
	if err := a.cfg.ValidateTransport(); err != nil {
		return err
	}

	// Resolution still works for plain env files without an interpreter.
	if _, err := exec.LookPath(a.cfg.Interpreter); err != nil {
		logger.Warnf("interpreter %s not found, allowed .envrc files will fail to resolve", a.cfg.Interpreter)
	}

	mcpServer := newMCPServer(a.resolver(), a.store())

	logger.Infof("Starting envy MCP server (version %s)", version.GetVersion())
	return runServer(mcpServer, a.cfg)
}

func newMCPServer(resolver mcpserver.Resolver, loader mcpserver.AllowListLoader) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"envy",
		version.GetVersion(),
	)

	mcpServer.AddTool(envy.RegisterResolveEnvTool(), mcpserver.ResolveEnvHandler(resolver))
	mcpServer.AddTool(envy.RegisterFindVariableTool(), mcpserver.FindVariableHandler(resolver))
	mcpServer.AddTool(envy.RegisterListAllowedTool(), mcpserver.ListAllowedHandler(loader))
	return mcpServer
}

func healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return mux
}

func runServer(mcpServer *server.MCPServer, cfg *config.Config) error {
	switch cfg.Transport {
	case "stdio":
		logger.Infof("Listening for requests on STDIO...")
		return server.ServeStdio(mcpServer)

	case "sse":
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		baseURL := fmt.Sprintf("http://%s", addr)

		customServer := &http.Server{
			Addr:              addr,
			Handler:           healthMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBaseURL(baseURL),
			server.WithHTTPServer(customServer),
		)

		logger.Infof("SSE server listening on %s", addr)
		logger.Infof("SSE endpoint available at: http://%s/sse", addr)
		return sseServer.Start(addr)

	case "streamable-http":
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

		mux := healthMux()
		customServer := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		streamableServer := server.NewStreamableHTTPServer(
			mcpServer,
			server.WithStreamableHTTPServer(customServer),
		)
		mux.Handle("/mcp", streamableServer)

		logger.Infof("Streamable HTTP server listening on %s", addr)
		logger.Infof("MCP endpoint available at: http://%s/mcp", addr)
		return customServer.ListenAndServe()

	default:
		return fmt.Errorf("invalid transport type: %s (must be 'stdio', 'sse', or 'streamable-http')", cfg.Transport)
	}
}
