package audit

import "context"

// Store persists audit entries.
// Interface owned by the domain per hexagonal architecture.
//
// Append is synchronous by contract: the engine considers a mutating
// operation complete only after its audit entry is durably accepted, and
// an Append failure aborts the operation. Audit is not best-effort.
type Store interface {
	// Append stores one entry. Returns an error if the entry could not
	// be accepted; the caller must then fail the triggering operation.
	Append(ctx context.Context, e *Entry) error

	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)

	// Close releases resources.
	Close() error
}
