// Package state provides file-based snapshot persistence for the policy
// engine's templates and versions. The state.json file lets the memory
// store backend survive restarts. This package provides atomic writes,
// file locking, and backup functionality.
package state

import (
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// EngineState is the top-level structure persisted in state.json.
type EngineState struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// Templates are all known policy templates.
	Templates []policy.Template `json:"templates"`

	// Versions are all policy versions across templates.
	Versions []policy.Version `json:"policy_versions"`

	// CreatedAt is when the state file was first created (UTC).
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the state file was last written (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}
