package server

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mre/envy/internal/logger"
	"github.com/mre/envy/pkg/envy"
)

type Resolver interface {
	Resolve(ctx context.Context, dir string) (*envy.ResolutionResult, error)
}

type AllowListLoader interface {
	Load() (*envy.AllowList, error)
}

func ResolveEnvHandler(resolver Resolver) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir, err := request.RequireString("directory")
		if err != nil {
			return mcp.NewToolResultError("directory is required"), nil
		}
		if !filepath.IsAbs(dir) {
			return mcp.NewToolResultError(fmt.Sprintf("directory must be absolute: %s", dir)), nil
		}

		timeout := time.Duration(request.GetFloat("timeout", 30)) * time.Second

		resolveCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := resolver.Resolve(resolveCtx, dir)
		if err != nil {
			logger.Warnf("resolve_env %s: %v", dir, err)
			return mcp.NewToolResultError(fmt.Sprintf("resolution error: %v", err)), nil
		}

		data, err := json.Marshal(result.Map())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding error: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func FindVariableHandler(resolver Resolver) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir, err := request.RequireString("directory")
		if err != nil {
			return mcp.NewToolResultError("directory is required"), nil
		}
		if !filepath.IsAbs(dir) {
			return mcp.NewToolResultError(fmt.Sprintf("directory must be absolute: %s", dir)), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError("name is required"), nil
		}

		result, err := resolver.Resolve(ctx, dir)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolution error: %v", err)), nil
		}

		value, ok := result.Lookup(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("variable %s is not set by envy in %s", name, dir)), nil
		}
		return mcp.NewToolResultText(value), nil
	}
}

type allowedListing struct {
	Envs  []string       `json:"envs"`
	Paths []allowedRules `json:"paths"`
}

type allowedRules struct {
	Pattern string   `json:"pattern"`
	Env     []string `json:"env"`
}

func ListAllowedHandler(loader AllowListLoader) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := loader.Load()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("config error: %v", err)), nil
		}

		listing := allowedListing{Envs: list.Envs, Paths: []allowedRules{}}
		if listing.Envs == nil {
			listing.Envs = []string{}
		}
		for _, rule := range list.Paths {
			listing.Paths = append(listing.Paths, allowedRules{Pattern: rule.Pattern.String(), Env: rule.Env})
		}

		data, err := json.Marshal(listing)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding error: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
