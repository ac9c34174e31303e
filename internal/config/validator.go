package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Desk-Guard/Deskguard/internal/domain/auth"
)

// RegisterCustomValidators registers Deskguard-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// key_hash: validates sha256:/bare-hex/Argon2id PHC hash formats
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	return nil
}

// validateKeyHash accepts any hash format the keyring can verify.
func validateKeyHash(fl validator.FieldLevel) bool {
	return auth.DetectHashType(fl.Field().String()) != "unknown"
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateStorageBackend(); err != nil {
		return err
	}

	if err := c.validateKeyLabels(); err != nil {
		return err
	}

	if c.Provider.Timeout != "" {
		if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
			return fmt.Errorf("provider.timeout: not a valid duration: %s", c.Provider.Timeout)
		}
	}

	return nil
}

// validateStorageBackend ensures the selected backend has its path configured.
func (c *Config) validateStorageBackend() error {
	if c.Storage.Backend == "sqlite" && c.Storage.SQLitePath == "" {
		return errors.New("storage: sqlite backend requires sqlite_path")
	}
	if c.Audit.Backend == "sqlite" && c.Storage.Backend != "sqlite" {
		return errors.New("audit: sqlite backend requires storage.backend sqlite")
	}
	return nil
}

// validateKeyLabels ensures API key labels are unique; duplicate labels
// would make audit entries ambiguous.
func (c *Config) validateKeyLabels() error {
	seen := make(map[string]struct{}, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if _, dup := seen[k.Label]; dup {
			return fmt.Errorf("api_keys[%d]: duplicate label: %s", i, k.Label)
		}
		seen[k.Label] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "key_hash":
		return fmt.Sprintf("%s must be 'sha256:<hex>', bare SHA-256 hex, or an Argon2id PHC hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
