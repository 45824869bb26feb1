// Package pipeline implements the single-package evaluation algorithm
// (spec §4.3): cache probe, allow/deny fast paths, registry fetch,
// check execution, aggregation, cache write, and audit logging.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/safe-pkgs/safe-pkgs/internal/auditlog"
	"github.com/safe-pkgs/safe-pkgs/internal/cache"
	"github.com/safe-pkgs/safe-pkgs/internal/catalog"
	"github.com/safe-pkgs/safe-pkgs/internal/checks"
	"github.com/safe-pkgs/safe-pkgs/internal/config"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// ErrUnknownRegistry is returned when the requested registry key has
// no registered package plugin.
var ErrUnknownRegistry = errors.New("unknown registry")

// AuditLogError wraps an audit log write failure so the lockfile
// auditor can distinguish it from every other error (spec §4.4.4): it
// must abort the whole audit rather than be swallowed into a
// synthetic per-package deny.
type AuditLogError struct {
	Err error
}

func (e *AuditLogError) Error() string { return fmt.Sprintf("append audit log record: %v", e.Err) }
func (e *AuditLogError) Unwrap() error { return e.Err }

// IsAuditLogFailure reports whether err is (or wraps) an AuditLogError.
func IsAuditLogFailure(err error) bool {
	var auditErr *AuditLogError
	return errors.As(err, &auditErr)
}

// Request describes one package to evaluate.
type Request struct {
	PackageName      string
	RequestedVersion string
	RegistryKey      string
	ContextLabel     string
}

// Pipeline evaluates package requests against the catalog, config,
// cache, and audit log.
type Pipeline struct {
	catalog  *catalog.Catalog
	cache    *cache.Cache
	auditLog *auditlog.Logger
	config   config.Config
	logger   *zap.Logger
}

// New builds a Pipeline over the given dependencies.
func New(cat *catalog.Catalog, c *cache.Cache, auditLogger *auditlog.Logger, cfg config.Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{catalog: cat, cache: c, auditLog: auditLogger, config: cfg, logger: logger}
}

// Evaluate runs the full single-package algorithm and returns the
// resulting decision.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (types.ToolResponse, error) {
	plugin, ok := p.catalog.PackagePlugin(req.RegistryKey)
	if !ok {
		return types.ToolResponse{}, fmt.Errorf("%w: %q", ErrUnknownRegistry, req.RegistryKey)
	}

	cacheKey := packageCacheKey(req.RegistryKey, req.PackageName, req.RequestedVersion)

	if cached, hit, err := p.cache.Get(ctx, cacheKey); err != nil {
		return types.ToolResponse{}, fmt.Errorf("cache probe: %w", err)
	} else if hit {
		var response types.ToolResponse
		if err := json.Unmarshal([]byte(cached), &response); err == nil {
			if auditErr := p.audit(req, response, true); auditErr != nil {
				return types.ToolResponse{}, auditErr
			}
			return response, nil
		}
		p.logger.Warn("failed to decode cached decision, re-evaluating", zap.String("cache_key", cacheKey))
	}

	requestedPtr := optionalString(req.RequestedVersion)
	if rule, ok := matchingPackageRule(p.config.Denylist.Packages, req.PackageName, requestedPtr, nil); ok {
		response := denyResponse(fmt.Sprintf("%s matched denylist package rule '%s'", req.PackageName, rule),
			types.Metadata{Requested: requestedPtr})
		return p.finish(ctx, req, cacheKey, response)
	}

	record, err := plugin.FetchPackage(ctx, req.PackageName)
	var notFound *registryapi.NotFoundError
	switch {
	case errors.As(err, &notFound):
		record = nil
	case err != nil:
		return types.ToolResponse{}, err
	}

	var resolvedVersion *types.PackageVersion
	if record != nil {
		if v, ok := record.Resolve(req.RequestedVersion); ok {
			resolvedVersion = v
		}
	}

	state := lookupState(record, resolvedVersion)

	if record != nil {
		var resolvedVersionStr *string
		if resolvedVersion != nil {
			resolvedVersionStr = &resolvedVersion.Version
		}
		metadata := baseMetadata(record, resolvedVersion, requestedPtr)

		if rule, ok := matchingPackageRule(p.config.Denylist.Packages, req.PackageName, requestedPtr, resolvedVersionStr); ok {
			response := denyResponse(fmt.Sprintf("%s matched denylist package rule '%s'", req.PackageName, rule), metadata)
			return p.finish(ctx, req, cacheKey, response)
		}
		if publisher, ok := matchingPublisher(p.config.Denylist.Publishers, record.Publishers); ok {
			response := denyResponse(fmt.Sprintf("%s is published by denylisted publisher '%s'", req.PackageName, publisher), metadata)
			return p.finish(ctx, req, cacheKey, response)
		}
		if rule, ok := matchingPackageRule(p.config.Allowlist.Packages, req.PackageName, requestedPtr, resolvedVersionStr); ok {
			response := allowResponse(fmt.Sprintf("%s matched allowlist rule '%s'", req.PackageName, rule), metadata)
			return p.finish(ctx, req, cacheKey, response)
		}
	}

	activeChecks := p.catalog.ActiveChecks(req.RegistryKey, p.config.Checks.Disable, p.config.Checks.Registry[req.RegistryKey], state)

	var needsWeeklyDownloads, needsAdvisories bool
	for _, c := range activeChecks {
		descriptor := c.Descriptor()
		needsWeeklyDownloads = needsWeeklyDownloads || descriptor.NeedsWeeklyDownloads
		needsAdvisories = needsAdvisories || descriptor.NeedsAdvisories
	}

	var weeklyDownloads *uint64
	var advisories []types.PackageAdvisory
	if resolvedVersion != nil {
		group, groupCtx := errgroup.WithContext(ctx)
		if needsWeeklyDownloads {
			group.Go(func() error {
				downloads, err := plugin.FetchWeeklyDownloads(groupCtx, req.PackageName)
				if err != nil {
					return err
				}
				weeklyDownloads = downloads
				return nil
			})
		}
		if needsAdvisories {
			group.Go(func() error {
				fetched, err := plugin.FetchAdvisories(groupCtx, req.PackageName, resolvedVersion.Version)
				if err != nil {
					return err
				}
				advisories = fetched
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return types.ToolResponse{}, err
		}
	}

	execCtx := &checks.CheckExecutionContext{
		PackageName:       req.PackageName,
		RequestedVersion:  req.RequestedVersion,
		Package:           record,
		ResolvedVersion:   resolvedVersion,
		WeeklyDownloads:   weeklyDownloads,
		Advisories:        advisories,
		FetchPopularNames: plugin.FetchPopularNames,
		Policy: checks.Policy{
			MinVersionAgeDays:  p.config.MinVersionAgeDays,
			MinWeeklyDownloads: p.config.MinWeeklyDownloads,
			Staleness: checks.StalenessPolicy{
				WarnMajorVersionsBehind: p.config.Staleness.WarnMajorVersionsBehind,
				WarnMinorVersionsBehind: p.config.Staleness.WarnMinorVersionsBehind,
				WarnAgeDays:             p.config.Staleness.WarnAgeDays,
				IgnoreFor:               p.config.Staleness.IgnoreFor,
			},
		},
	}

	var findings []types.CheckFinding
	for _, c := range activeChecks {
		result, err := c.Run(ctx, execCtx)
		if err != nil {
			return types.ToolResponse{}, fmt.Errorf("check %s: %w", c.Descriptor().ID, err)
		}
		findings = append(findings, result...)
	}

	metadata := baseMetadata(record, resolvedVersion, requestedPtr)
	metadata.WeeklyDownloads = weeklyDownloads

	response := aggregate(findings, metadata, p.config.MaxRisk)
	return p.finish(ctx, req, cacheKey, response)
}

func (p *Pipeline) finish(ctx context.Context, req Request, cacheKey string, response types.ToolResponse) (types.ToolResponse, error) {
	encoded, err := json.Marshal(response)
	if err != nil {
		return types.ToolResponse{}, fmt.Errorf("encode decision: %w", err)
	}
	ttl := time.Duration(p.config.Cache.TTLMinutes) * time.Minute
	if err := p.cache.Set(ctx, cacheKey, string(encoded), ttl); err != nil {
		return types.ToolResponse{}, fmt.Errorf("cache write: %w", err)
	}
	if err := p.audit(req, response, false); err != nil {
		return types.ToolResponse{}, err
	}
	return response, nil
}

func (p *Pipeline) audit(req Request, response types.ToolResponse, cached bool) error {
	requestedPtr := optionalString(req.RequestedVersion)
	metadata := response.Metadata
	record := auditlog.PackageDecision(req.ContextLabel, req.PackageName, requestedPtr, req.RegistryKey,
		response.Allow, response.Risk, response.Reasons, &metadata, cached)
	if err := p.auditLog.Log(record); err != nil {
		return &AuditLogError{Err: err}
	}
	return nil
}

// LogSynthetic appends an audit record for a decision that did not
// come from Evaluate itself — the lockfile auditor's synthetic deny
// for a per-package error (spec §4.4.4). It never consults or writes
// the decision cache.
func (p *Pipeline) LogSynthetic(req Request, response types.ToolResponse) error {
	return p.audit(req, response, false)
}

func packageCacheKey(registryKey, name, requestedVersion string) string {
	version := requestedVersion
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("check_package:%s:%s@%s", registryKey, name, version)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func lookupState(record *types.PackageRecord, resolved *types.PackageVersion) checks.LookupState {
	switch {
	case record == nil:
		return checks.LookupMissingPackage
	case resolved == nil:
		return checks.LookupMissingVersion
	default:
		return checks.LookupReady
	}
}

func baseMetadata(record *types.PackageRecord, resolved *types.PackageVersion, requested *string) types.Metadata {
	metadata := types.Metadata{Requested: requested}
	if record != nil {
		metadata.Latest = &record.Latest
	}
	if resolved != nil && resolved.Published != nil {
		formatted := resolved.Published.UTC().Format(time.RFC3339)
		metadata.Published = &formatted
	}
	return metadata
}

func denyResponse(reason string, metadata types.Metadata) types.ToolResponse {
	return types.ToolResponse{Allow: false, Risk: types.SeverityCritical, Reasons: []string{reason}, Metadata: metadata}
}

func allowResponse(reason string, metadata types.Metadata) types.ToolResponse {
	return types.ToolResponse{Allow: true, Risk: types.SeverityLow, Reasons: []string{reason}, Metadata: metadata}
}

// aggregate implements spec §4.3.10-11: medium-count >= 2 escalates to
// high, allow iff risk <= maxRisk.
func aggregate(findings []types.CheckFinding, metadata types.Metadata, maxRisk types.Severity) types.ToolResponse {
	risk := types.SeverityLow
	mediumCount := 0
	reasons := make([]string, 0, len(findings))
	for _, finding := range findings {
		if finding.Severity == types.SeverityMedium {
			mediumCount++
		}
		risk = types.Max(risk, finding.Severity)
		reasons = append(reasons, finding.Reason)
	}
	if mediumCount >= 2 && risk < types.SeverityHigh {
		risk = types.SeverityHigh
	}
	return types.ToolResponse{Allow: risk <= maxRisk, Risk: risk, Reasons: reasons, Metadata: metadata}
}

// matchingPackageRule implements the rule matching shared by denylist
// and allowlist package rules (spec §4.3.2/4.3.4): a bare rule matches
// the name exactly; a "name@version" rule matches when its version
// side equals either the requested or resolved version.
func matchingPackageRule(rules []string, packageName string, requestedVersion, resolvedVersion *string) (string, bool) {
	for _, rule := range rules {
		if idx := strings.LastIndex(rule, "@"); idx > 0 {
			ruleName, ruleVersion := rule[:idx], rule[idx+1:]
			if ruleName != packageName {
				continue
			}
			if (requestedVersion != nil && *requestedVersion == ruleVersion) ||
				(resolvedVersion != nil && *resolvedVersion == ruleVersion) {
				return rule, true
			}
			continue
		}
		if rule == packageName {
			return rule, true
		}
	}
	return "", false
}

// matchingPublisher reports the first denylisted publisher name that
// case-insensitively matches one of the package's publishers.
func matchingPublisher(denylistedPublishers, publishers []string) (string, bool) {
	for _, denylisted := range denylistedPublishers {
		for _, publisher := range publishers {
			if strings.EqualFold(publisher, denylisted) {
				return denylisted, true
			}
		}
	}
	return "", false
}
