package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedTemplate describes one template to create at first boot, with an
// optional initial config document.
type SeedTemplate struct {
	// Domain is the policy domain: "sla", "chat", or "remote_session".
	Domain string `yaml:"domain"`
	// Name is the template name.
	Name string `yaml:"name"`
	// Description is optional free text.
	Description string `yaml:"description"`
	// ScopeType is "global", "queue", or "ticket_type".
	ScopeType string `yaml:"scope_type"`
	// ScopeValue is required for non-global scopes.
	ScopeValue string `yaml:"scope_value"`
	// Config is an optional initial draft config document.
	Config map[string]interface{} `yaml:"config"`
	// Publish immediately publishes the initial config when true.
	Publish bool `yaml:"publish"`
}

// seedFile is the top-level YAML document shape.
type seedFile struct {
	Templates []SeedTemplate `yaml:"templates"`
}

// LoadSeedFile parses a YAML seed file. The engine applies seeds only
// when the template store is empty, so re-running with the same file is
// harmless.
func LoadSeedFile(path string) ([]SeedTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return f.Templates, nil
}
