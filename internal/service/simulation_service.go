package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	celapi "github.com/google/cel-go/cel"

	celeval "github.com/Desk-Guard/Deskguard/internal/adapter/outbound/cel"
	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
	"github.com/Desk-Guard/Deskguard/internal/domain/schema"
)

// DefaultSampleLimit is the sample size used when a request does not
// specify one.
const DefaultSampleLimit = 50

// MaxSampleLimit is the hard cap on one simulation's sample size.
const MaxSampleLimit = 500

// defaultProviderTimeout bounds the external sample fetch so a
// pathological provider cannot stall callers indefinitely.
const defaultProviderTimeout = 10 * time.Second

// SimulationService evaluates a version's config against a bounded
// sample of live domain entities without mutating any stored state.
// The provider is treated as untrusted, best-effort input.
type SimulationService struct {
	templates       policy.TemplateStore
	versions        policy.VersionStore
	provider        sample.Provider
	evaluator       *celeval.Evaluator
	auditLog        audit.Store
	logger          *slog.Logger
	providerTimeout time.Duration
}

// SimulationOption configures a SimulationService.
type SimulationOption func(*SimulationService)

// WithProviderTimeout overrides the sample fetch timeout.
func WithProviderTimeout(d time.Duration) SimulationOption {
	return func(s *SimulationService) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// NewSimulationService creates a SimulationService. evaluator may be
// nil, in which case filter expressions are rejected.
func NewSimulationService(
	templates policy.TemplateStore,
	versions policy.VersionStore,
	provider sample.Provider,
	evaluator *celeval.Evaluator,
	auditLog audit.Store,
	logger *slog.Logger,
	opts ...SimulationOption,
) *SimulationService {
	s := &SimulationService{
		templates:       templates,
		versions:        versions,
		provider:        provider,
		evaluator:       evaluator,
		auditLog:        auditLog,
		logger:          logger,
		providerTimeout: defaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SimulationRequest selects what to simulate.
type SimulationRequest struct {
	// VersionID is the version whose config is dry-run.
	VersionID string `json:"version_id"`
	// Limit caps the sample size (default 50, max 500).
	Limit int `json:"limit,omitempty"`
	// Filter is an optional CEL expression narrowing which sampled
	// entities are evaluated.
	Filter string `json:"filter,omitempty"`
}

// Finding explains one rule check against one entity.
type Finding struct {
	// Rule is the config field the check derives from.
	Rule string `json:"rule"`
	// Detail is a human-readable explanation.
	Detail string `json:"detail"`
	// Violated is true when the entity breaks the rule.
	Violated bool `json:"violated"`
}

// EntityResult is the simulation outcome for one sampled entity.
type EntityResult struct {
	EntityID   string    `json:"entity_id"`
	EntityKind string    `json:"entity_kind"`
	Findings   []Finding `json:"findings"`
	Violations int       `json:"violations"`
}

// SimulationReport is the caller-visible result of a dry run.
type SimulationReport struct {
	VersionID     string          `json:"version_id"`
	TemplateID    string          `json:"template_id"`
	Domain        policy.Domain   `json:"domain"`
	VersionStatus policy.Status   `json:"version_status"`
	SampleSize    int             `json:"sample_size"`
	Evaluated     int             `json:"evaluated"`
	Violations    int             `json:"violations"`
	Results       []EntityResult  `json:"results"`
}

// Simulate dry-runs a version (draft or published) against sampled
// entities. Validation runs first: simulating an invalid draft returns
// *ValidationError, never a partial simulation. A failed or timed-out
// sample fetch is *ProviderError. Emits audit `simulated`; version
// status and config are untouched.
func (s *SimulationService) Simulate(ctx context.Context, req SimulationRequest, actor string) (*SimulationReport, error) {
	v, err := s.versions.GetVersion(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetTemplate(ctx, v.TemplateID)
	if err != nil {
		return nil, err
	}

	cfg, fieldErrs := schema.Validate(t.Domain, v.Config)
	if len(fieldErrs) > 0 {
		return nil, policy.NewValidationError(fieldErrs...)
	}

	var filterPrg celapi.Program
	if req.Filter != "" {
		if s.evaluator == nil {
			return nil, policy.NewValidationError(policy.FieldError{Field: "filter", Reason: "filter expressions are not enabled"})
		}
		if err := s.evaluator.ValidateExpression(req.Filter); err != nil {
			return nil, policy.NewValidationError(policy.FieldError{Field: "filter", Reason: err.Error()})
		}
		filterPrg, err = s.evaluator.Compile(req.Filter)
		if err != nil {
			return nil, policy.NewValidationError(policy.FieldError{Field: "filter", Reason: err.Error()})
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	if limit > MaxSampleLimit {
		limit = MaxSampleLimit
	}

	scope := sample.Scope{ScopeType: t.ScopeType, ScopeValue: t.ScopeValue}
	fetchCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	entities, err := s.provider.FetchSample(fetchCtx, t.Domain, scope, limit)
	if err != nil {
		return nil, &policy.ProviderError{Op: "fetch sample", Err: err}
	}
	if len(entities) > limit {
		entities = entities[:limit]
	}

	report := &SimulationReport{
		VersionID:     v.ID,
		TemplateID:    t.ID,
		Domain:        t.Domain,
		VersionStatus: v.Status,
		SampleSize:    len(entities),
		Results:       []EntityResult{},
	}

	for i := range entities {
		e := &entities[i]
		if filterPrg != nil {
			ok, err := s.evaluator.Matches(filterPrg, e, scope)
			if err != nil {
				s.logger.Debug("filter evaluation failed, skipping entity",
					"entity_id", e.ID, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}

		result := EntityResult{EntityID: e.ID, EntityKind: e.Kind}
		result.Findings = evaluateEntity(t.Domain, cfg, e)
		for _, f := range result.Findings {
			if f.Violated {
				result.Violations++
			}
		}
		report.Evaluated++
		report.Violations += result.Violations
		report.Results = append(report.Results, result)
	}

	// Simulation mutates nothing, so the entry is appended directly.
	emit := auditAppend(s.auditLog, s.logger, t.Domain, audit.ActionSimulated, t.ID, v.ID, actor)
	if err := emit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("simulation complete",
		"template_id", t.ID, "version_id", v.ID,
		"sample_size", report.SampleSize, "evaluated", report.Evaluated,
		"violations", report.Violations, "duration", time.Since(start))
	return report, nil
}

// evaluateEntity applies the domain's rule checks to one entity.
// Checks only fire for attributes the entity actually carries; the
// provider is best-effort and entities may be sparse.
func evaluateEntity(domain policy.Domain, cfg policy.Config, e *sample.Entity) []Finding {
	switch domain {
	case policy.DomainChat:
		return evaluateChat(cfg, e)
	case policy.DomainSLA:
		return evaluateSLA(cfg, e)
	case policy.DomainRemoteSession:
		return evaluateRemoteSession(cfg, e)
	}
	return nil
}

func evaluateChat(cfg policy.Config, e *sample.Entity) []Finding {
	var findings []Finding

	if n, ok := e.Number("message_length"); ok {
		limit := cfgInt(cfg, "max_message_length")
		findings = append(findings, limitFinding("max_message_length",
			"message length", int64(n), limit, int64(n) > limit))
	}
	if n, ok := e.Number("attachments_count"); ok {
		limit := cfgInt(cfg, "max_attachments")
		findings = append(findings, limitFinding("max_attachments",
			"attachment count", int64(n), limit, int64(n) > limit))
	}
	if n, ok := e.Number("attachment_size_mb"); ok {
		limit := cfgFloat(cfg, "max_attachment_size_mb")
		findings = append(findings, Finding{
			Rule:     "max_attachment_size_mb",
			Detail:   fmt.Sprintf("attachment size %.1fMB against limit %.1fMB", n, limit),
			Violated: n > limit,
		})
	}
	if v, ok := e.String("attachment_type"); ok {
		allowed := cfgStrings(cfg, "allowed_attachment_types")
		if len(allowed) > 0 {
			findings = append(findings, allowListFinding("allowed_attachment_types",
				"attachment type", v, allowed))
		}
	}
	if v, ok := e.String("sender_role"); ok {
		findings = append(findings, allowListFinding("allowed_sender_roles",
			"sender role", v, cfgStrings(cfg, "allowed_sender_roles")))
	}
	if msg, ok := e.String("message"); ok {
		for _, kw := range cfgStrings(cfg, "moderation.flag_keywords") {
			if kw != "" && containsFold(msg, kw) {
				findings = append(findings, Finding{
					Rule:     "moderation.flag_keywords",
					Detail:   fmt.Sprintf("message contains flagged keyword %q", kw),
					Violated: true,
				})
				break
			}
		}
	}

	return findings
}

func evaluateSLA(cfg policy.Config, e *sample.Entity) []Finding {
	var findings []Finding

	if status, ok := e.String("status"); ok {
		for _, paused := range cfgStrings(cfg, "pause_statuses") {
			if status == paused {
				return []Finding{{
					Rule:   "pause_statuses",
					Detail: fmt.Sprintf("status %q pauses the SLA clock", status),
				}}
			}
		}
	}
	if prio, ok := e.String("priority"); ok {
		priorities := cfgStrings(cfg, "priorities")
		if !contains(priorities, prio) {
			return []Finding{{
				Rule:   "priorities",
				Detail: fmt.Sprintf("priority %q is outside this policy's priorities", prio),
			}}
		}
	}

	grace := cfgInt(cfg, "grace_minutes")
	if n, ok := e.Number("first_response_minutes"); ok {
		limit := cfgInt(cfg, "first_response_minutes") + grace
		findings = append(findings, limitFinding("first_response_minutes",
			"first response after", int64(n), limit, int64(n) > limit))
	}
	if n, ok := e.Number("resolution_minutes"); ok {
		limit := cfgInt(cfg, "resolution_minutes") + grace
		findings = append(findings, limitFinding("resolution_minutes",
			"resolution after", int64(n), limit, int64(n) > limit))
	}

	return findings
}

func evaluateRemoteSession(cfg policy.Config, e *sample.Entity) []Finding {
	var findings []Finding

	if n, ok := e.Number("duration_minutes"); ok {
		limit := cfgInt(cfg, "max_duration_minutes")
		findings = append(findings, limitFinding("max_duration_minutes",
			"session duration", int64(n), limit, int64(n) > limit))
	}
	if n, ok := e.Number("idle_minutes"); ok {
		limit := cfgInt(cfg, "idle_timeout_minutes")
		findings = append(findings, limitFinding("idle_timeout_minutes",
			"idle time", int64(n), limit, int64(n) > limit))
	}
	if n, ok := e.Number("concurrent_sessions"); ok {
		limit := cfgInt(cfg, "max_concurrent_sessions")
		findings = append(findings, limitFinding("max_concurrent_sessions",
			"concurrent sessions", int64(n), limit, int64(n) > limit))
	}
	if v, ok := e.String("operator_role"); ok {
		findings = append(findings, allowListFinding("allowed_operator_roles",
			"operator role", v, cfgStrings(cfg, "allowed_operator_roles")))
	}
	if features, ok := e.StringList("features"); ok {
		allowed := cfgStrings(cfg, "allowed_features")
		for _, f := range features {
			if !contains(allowed, f) {
				findings = append(findings, Finding{
					Rule:     "allowed_features",
					Detail:   fmt.Sprintf("feature %q is not allowed", f),
					Violated: true,
				})
			}
		}
	}
	if consent, ok := e.Bool("consent_given"); ok && cfgBool(cfg, "require_consent") {
		findings = append(findings, Finding{
			Rule:     "require_consent",
			Detail:   "session requires end-user consent",
			Violated: !consent,
		})
	}

	return findings
}

func limitFinding(rule, what string, got, limit int64, violated bool) Finding {
	return Finding{
		Rule:     rule,
		Detail:   fmt.Sprintf("%s %d against limit %d", what, got, limit),
		Violated: violated,
	}
}

func allowListFinding(rule, what, got string, allowed []string) Finding {
	return Finding{
		Rule:     rule,
		Detail:   fmt.Sprintf("%s %q against allow-list %v", what, got, allowed),
		Violated: !contains(allowed, got),
	}
}
