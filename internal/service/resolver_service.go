package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// ResolverService selects the template that applies to a context,
// using precedence ticket_type > queue > global (most specific wins).
// Only active templates participate. Two active templates at the same
// (domain, scope_type, scope_value) tuple are a configuration error
// surfaced as *ConflictError, never resolved arbitrarily.
type ResolverService struct {
	templates policy.TemplateStore
	versions  policy.VersionStore
	logger    *slog.Logger
}

// NewResolverService creates a ResolverService.
func NewResolverService(templates policy.TemplateStore, versions policy.VersionStore, logger *slog.Logger) *ResolverService {
	return &ResolverService{templates: templates, versions: versions, logger: logger}
}

// Resolution is the outcome of a successful scope resolution.
type Resolution struct {
	// Template is the template whose scope best matches the context.
	Template *policy.Template `json:"template"`
	// Version is the template's published version, or nil when the
	// matched template has no effective config yet.
	Version *policy.Version `json:"version,omitempty"`
}

// Resolve returns the effective template (and its published version,
// if any) for the context, or (nil, nil) when no active template
// matches at any specificity level.
func (s *ResolverService) Resolve(ctx context.Context, domain policy.Domain, rc policy.ResolveContext) (*Resolution, error) {
	if !policy.IsValidDomain(domain) {
		return nil, policy.NewValidationError(policy.FieldError{Field: "domain", Reason: "must be one of sla, chat, remote_session"})
	}

	type level struct {
		scopeType  policy.ScopeType
		scopeValue string
	}
	levels := make([]level, 0, 3)
	if rc.TicketType != "" {
		levels = append(levels, level{policy.ScopeTicketType, rc.TicketType})
	}
	if rc.Queue != "" {
		levels = append(levels, level{policy.ScopeQueue, rc.Queue})
	}
	levels = append(levels, level{policy.ScopeGlobal, ""})

	for _, lv := range levels {
		candidates, err := s.templates.FindByScope(ctx, domain, lv.scopeType, lv.scopeValue)
		if err != nil {
			return nil, fmt.Errorf("find templates by scope: %w", err)
		}

		active := candidates[:0]
		for _, t := range candidates {
			if t.IsActive {
				active = append(active, t)
			}
		}

		switch len(active) {
		case 0:
			continue
		case 1:
			t := active[0]
			v, err := s.versions.GetPublished(ctx, t.ID)
			if err != nil {
				return nil, fmt.Errorf("read published version: %w", err)
			}
			return &Resolution{Template: &t, Version: v}, nil
		default:
			s.logger.Warn("scope resolution tie",
				"domain", domain, "scope_type", lv.scopeType, "scope_value", lv.scopeValue,
				"candidates", len(active))
			return nil, &policy.ConflictError{
				Reason: fmt.Sprintf("%d active templates compete for (%s, %s, %q); deactivate all but one",
					len(active), domain, lv.scopeType, lv.scopeValue),
			}
		}
	}

	return nil, nil
}
