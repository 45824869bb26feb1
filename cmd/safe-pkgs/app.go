package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/auditlog"
	"github.com/safe-pkgs/safe-pkgs/internal/cache"
	"github.com/safe-pkgs/safe-pkgs/internal/catalog"
	"github.com/safe-pkgs/safe-pkgs/internal/checks"
	"github.com/safe-pkgs/safe-pkgs/internal/config"
	"github.com/safe-pkgs/safe-pkgs/internal/lockfileaudit"
	"github.com/safe-pkgs/safe-pkgs/internal/mcpserver"
	"github.com/safe-pkgs/safe-pkgs/internal/osvclient"
	"github.com/safe-pkgs/safe-pkgs/internal/pipeline"
	"github.com/safe-pkgs/safe-pkgs/internal/registry/cargo"
	"github.com/safe-pkgs/safe-pkgs/internal/registry/npm"
	"github.com/safe-pkgs/safe-pkgs/internal/registry/pypi"
)

// app bundles every process-wide dependency built once at startup and
// shared across every request handler (spec §5's "global mutable
// state" section: only the catalog, cache, and audit logger are
// process-wide, constructed once and passed by reference).
type app struct {
	catalog  *catalog.Catalog
	cache    *cache.Cache
	auditLog *auditlog.Logger
	pipeline *pipeline.Pipeline
	auditor  *lockfileaudit.Auditor
	tools    *mcpserver.ToolRegistry
	logger   *zap.Logger
}

// buildApp loads config, opens the cache and audit log, wires the
// three registry plugins onto the catalog, and constructs the
// pipeline, lockfile auditor, and MCP tool registry over them.
func buildApp(logger *zap.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cacheDBFile := cacheDBPath()
	if dir := filepath.Dir(cacheDBFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	cacheDB, err := cache.Open(cacheDBFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	auditLog, err := auditlog.Open(auditLogPath())
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	osv := osvclient.New(logger)
	cat := catalog.New([]catalog.Definition{
		{Key: "npm", Plugin: npm.New(logger, osv), Policy: catalog.AllChecks()},
		{Key: "cargo", Plugin: cargo.New(logger, osv), Policy: catalog.AllExcept("install_script")},
		{Key: "pypi", Plugin: pypi.New(logger, osv), Policy: catalog.AllExcept("install_script")},
	}, checks.All())

	p := pipeline.New(cat, cacheDB, auditLog, cfg, logger)
	auditor := lockfileaudit.New(cat, p, cfg, logger)
	tools := mcpserver.New(cat, p, auditor, cfg, logger)

	return &app{
		catalog:  cat,
		cache:    cacheDB,
		auditLog: auditLog,
		pipeline: p,
		auditor:  auditor,
		tools:    tools,
		logger:   logger,
	}, nil
}

// Close releases the cache database and audit log file handles.
func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close cache", zap.Error(err))
	}
	if err := a.auditLog.Close(); err != nil {
		a.logger.Warn("failed to close audit log", zap.Error(err))
	}
}

func cacheDBPath() string {
	if explicit := os.Getenv("SAFE_PKGS_CACHE_DB_PATH"); explicit != "" {
		return explicit
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "cache.db"
	}
	return filepath.Join(home, ".cache", "safe-pkgs", "cache.db")
}

func auditLogPath() string {
	if explicit := os.Getenv("SAFE_PKGS_AUDIT_LOG_FILE_PATH"); explicit != "" {
		return explicit
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "audit.log"
	}
	return filepath.Join(home, ".local", "share", "safe-pkgs", "audit.log")
}
