// Package lockfileaudit implements the bulk dependency-file audit
// described in spec §4.4: resolve a manifest or lockfile, parse its
// dependencies, and run every one of them through the single-package
// pipeline, tolerating individual failures.
package lockfileaudit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/catalog"
	"github.com/safe-pkgs/safe-pkgs/internal/checks"
	"github.com/safe-pkgs/safe-pkgs/internal/config"
	"github.com/safe-pkgs/safe-pkgs/internal/pipeline"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// ErrNoLockfileSupport is returned when the requested registry has no
// lockfile parser wired in the catalog.
var ErrNoLockfileSupport = errors.New("registry has no lockfile parser")

// Request describes one lockfile audit invocation.
type Request struct {
	Path         string
	RegistryKey  string
	ContextLabel string
}

// Auditor runs an entire dependency file through the pipeline, one
// dependency at a time.
type Auditor struct {
	catalog  *catalog.Catalog
	pipeline *pipeline.Pipeline
	config   config.Config
	logger   *zap.Logger
}

// New builds an Auditor over an already-wired catalog and pipeline.
func New(cat *catalog.Catalog, p *pipeline.Pipeline, cfg config.Config, logger *zap.Logger) *Auditor {
	return &Auditor{catalog: cat, pipeline: p, config: cfg, logger: logger}
}

// Audit resolves req.Path against the registry's lockfile parser,
// parses every dependency, evaluates each through the pipeline, and
// returns the aggregated LockfileResponse (spec §4.4).
func (a *Auditor) Audit(ctx context.Context, req Request) (types.LockfileResponse, error) {
	plugin, ok := a.catalog.LockfilePlugin(req.RegistryKey)
	if !ok {
		return types.LockfileResponse{}, fmt.Errorf("%w: %q", ErrNoLockfileSupport, req.RegistryKey)
	}
	parser := plugin.LockfileParser()

	resolvedPath, err := registryapi.ResolveInput(parser, req.Path)
	if err != nil {
		return types.LockfileResponse{}, err
	}

	specs, err := parser.ParseDependencies(resolvedPath)
	if err != nil {
		return types.LockfileResponse{}, fmt.Errorf("parse dependencies: %w", err)
	}

	active := a.catalog.ActiveChecks(req.RegistryKey, a.config.Checks.Disable, a.config.Checks.Registry[req.RegistryKey], checks.LookupReady)
	if checks.NeedsWeeklyDownloads(active) {
		names := make([]string, len(specs))
		for i, spec := range specs {
			names[i] = spec.Name
		}
		if err := plugin.PrefetchWeeklyDownloads(ctx, names); err != nil {
			a.logger.Warn("bulk weekly-download prefetch failed",
				zap.String("registry", req.RegistryKey), zap.Error(err))
		}
	}

	response := types.LockfileResponse{Risk: types.SeverityLow, Packages: []types.LockfilePackageResult{}}
	for _, spec := range specs {
		requestedVersion := ""
		if spec.Version != nil {
			requestedVersion = *spec.Version
		}

		pkgReq := pipeline.Request{
			PackageName:      spec.Name,
			RequestedVersion: requestedVersion,
			RegistryKey:      req.RegistryKey,
			ContextLabel:     req.ContextLabel,
		}

		result, evalErr := a.pipeline.Evaluate(ctx, pkgReq)
		if evalErr != nil {
			if pipeline.IsAuditLogFailure(evalErr) {
				return types.LockfileResponse{}, evalErr
			}
			result = types.ToolResponse{
				Allow:   false,
				Risk:    types.SeverityCritical,
				Reasons: []string{fmt.Sprintf("package check failed: %v", evalErr)},
			}
			if logErr := a.pipeline.LogSynthetic(pkgReq, result); logErr != nil {
				return types.LockfileResponse{}, logErr
			}
		}

		response.Total++
		if !result.Allow {
			response.Denied++
		}
		response.Risk = types.Max(response.Risk, result.Risk)
		response.Packages = append(response.Packages, types.LockfilePackageResult{
			Name:      spec.Name,
			Requested: requestedVersion,
			Allow:     result.Allow,
			Risk:      result.Risk,
			Reasons:   result.Reasons,
		})
	}
	response.Allow = response.Denied == 0

	return response, nil
}
