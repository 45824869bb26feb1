// Package mcpserver wires check_package and check_lockfile onto an
// MCP server over stdio, exposing only the tools capability (spec §6).
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rayprogramming/hypermcp"
	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/catalog"
	"github.com/safe-pkgs/safe-pkgs/internal/config"
	"github.com/safe-pkgs/safe-pkgs/internal/lockfileaudit"
	"github.com/safe-pkgs/safe-pkgs/internal/pipeline"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
)

// ToolRegistry registers the two package-safety tools onto an MCP
// server.
type ToolRegistry struct {
	catalog  *catalog.Catalog
	pipeline *pipeline.Pipeline
	auditor  *lockfileaudit.Auditor
	config   config.Config
	logger   *zap.Logger
}

// New builds a ToolRegistry over an already-wired catalog, pipeline,
// and lockfile auditor.
func New(cat *catalog.Catalog, p *pipeline.Pipeline, a *lockfileaudit.Auditor, cfg config.Config, logger *zap.Logger) *ToolRegistry {
	return &ToolRegistry{catalog: cat, pipeline: p, auditor: a, config: cfg, logger: logger}
}

// CheckPackageInput is the check_package tool's argument shape.
type CheckPackageInput struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Registry string `json:"registry,omitempty"`
}

// CheckLockfileInput is the check_lockfile tool's argument shape.
type CheckLockfileInput struct {
	Path     string `json:"path,omitempty"`
	Registry string `json:"registry,omitempty"`
}

// Register adds check_package and check_lockfile to the server.
func (tr *ToolRegistry) Register(srv *hypermcp.Server) error {
	mcpServer := srv.MCP()

	mcpServer.AddTool(
		&mcp.Tool{
			Name:        "check_package",
			Description: "Evaluate one package against the configured safety policy (existence, age, staleness, popularity, install scripts, typosquatting, advisories) and return an allow/deny decision.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Package name",
					},
					"version": map[string]interface{}{
						"type":        "string",
						"description": "Version to check (defaults to the package's latest)",
					},
					"registry": map[string]interface{}{
						"type":        "string",
						"description": "Registry key (npm, cargo, pypi); defaults to the first registered registry",
					},
				},
				"required": []string{"name"},
			},
		},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input CheckPackageInput
			if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
				return invalidParams(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			return tr.handleCheckPackage(ctx, input)
		},
	)
	srv.IncrementToolCount()

	mcpServer.AddTool(
		&mcp.Tool{
			Name:        "check_lockfile",
			Description: "Audit every dependency declared in a lockfile or manifest against the configured safety policy and return an aggregated allow/deny decision.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path to a dependency file or a directory to search; defaults to the current directory",
					},
					"registry": map[string]interface{}{
						"type":        "string",
						"description": "Registry key (npm, cargo, pypi); defaults to the first lockfile-capable registry",
					},
				},
			},
		},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input CheckLockfileInput
			if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
				return invalidParams(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			return tr.handleCheckLockfile(ctx, input)
		},
	)
	srv.IncrementToolCount()

	return nil
}

func (tr *ToolRegistry) handleCheckPackage(ctx context.Context, input CheckPackageInput) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return invalidParams("name is required"), nil
	}
	if strings.TrimSpace(input.Version) == "" && input.Version != "" {
		return invalidParams("version must not be whitespace"), nil
	}
	if strings.TrimSpace(input.Registry) == "" && input.Registry != "" {
		return invalidParams("registry must not be whitespace"), nil
	}

	registryKey := input.Registry
	if registryKey == "" {
		key, ok := tr.catalog.FirstPackageKey()
		if !ok {
			return internalError("no registries are configured"), nil
		}
		registryKey = key
	}
	if _, ok := tr.catalog.PackagePlugin(registryKey); !ok {
		return invalidParams(fmt.Sprintf("unknown registry %q", registryKey)), nil
	}

	result, err := tr.pipeline.Evaluate(ctx, pipeline.Request{
		PackageName:      name,
		RequestedVersion: input.Version,
		RegistryKey:      registryKey,
	})
	if err != nil {
		return internalError(err.Error()), nil
	}

	return jsonResult(result)
}

func (tr *ToolRegistry) handleCheckLockfile(ctx context.Context, input CheckLockfileInput) (*mcp.CallToolResult, error) {
	if strings.TrimSpace(input.Registry) == "" && input.Registry != "" {
		return invalidParams("registry must not be whitespace"), nil
	}

	registryKey := input.Registry
	if registryKey == "" {
		key, ok := tr.catalog.FirstLockfileKey()
		if !ok {
			return internalError("no lockfile-capable registries are configured"), nil
		}
		registryKey = key
	}
	if _, ok := tr.catalog.LockfilePlugin(registryKey); !ok {
		return invalidParams(fmt.Sprintf("registry %q does not support lockfile auditing", registryKey)), nil
	}

	result, err := tr.auditor.Audit(ctx, lockfileaudit.Request{
		Path:        input.Path,
		RegistryKey: registryKey,
	})
	if err != nil {
		if isPathValidationError(err) {
			return invalidParams(err.Error()), nil
		}
		return internalError(err.Error()), nil
	}

	return jsonResult(result)
}

// isPathValidationError reports whether err is one of the lockfile
// resolution errors that should surface as invalid_params rather than
// internal_error (spec §7).
func isPathValidationError(err error) bool {
	for _, sentinel := range []error{
		registryapi.ErrInputPathDoesNotExist,
		registryapi.ErrInvalidInputPath,
		registryapi.ErrUnsupportedFile,
		registryapi.ErrNoSupportedDependencyFile,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return internalError(err.Error()), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func invalidParams(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "invalid_params: " + message}},
	}
}

func internalError(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "internal_error: " + message}},
	}
}
