package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// auditAppend returns a policy.AuditFunc that writes one audit entry.
// Stores invoke it inside the mutation's critical section; a failed
// append aborts and reverts the mutation, so there is no "operation
// succeeded but audit missing" state.
func auditAppend(
	store audit.Store,
	logger *slog.Logger,
	domain policy.Domain,
	action audit.Action,
	templateID, versionID, actor string,
) policy.AuditFunc {
	return func(ctx context.Context) error {
		e := &audit.Entry{
			ID:         uuid.New().String(),
			PolicyType: domain,
			Action:     action,
			TemplateID: templateID,
			VersionID:  versionID,
			ActorLabel: actor,
			CreatedAt:  time.Now().UTC(),
		}
		if err := store.Append(ctx, e); err != nil {
			logger.Error("audit append failed",
				"action", action, "template_id", templateID, "version_id", versionID, "error", err)
			return fmt.Errorf("audit append: %w", err)
		}
		return nil
	}
}

// chainAudits combines several audit funcs into one, stopping at the
// first failure.
func chainAudits(fns ...policy.AuditFunc) policy.AuditFunc {
	return func(ctx context.Context) error {
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
