package eligibility

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"histlens/internal/config"
)

// Policy holds site-local extension overrides, loaded from an optional
// YAML file in the storage directory.
type Policy struct {
	AllowExtensions []string `yaml:"allowExtensions"`
	DenyExtensions  []string `yaml:"denyExtensions"`
}

// LoadPolicy reads a policy file. A missing file returns an empty
// policy; a malformed file is an error the caller may choose to log
// and ignore.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Policy{}, nil
		}
		return nil, fmt.Errorf("read eligibility policy: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse eligibility policy: %w", err)
	}
	return &policy, nil
}

// Apply merges the policy's extension lists into a filter config.
func (p *Policy) Apply(cfg config.FilterConfig) config.FilterConfig {
	cfg.AllowExtensions = append(cfg.AllowExtensions, p.AllowExtensions...)
	cfg.DenyExtensions = append(cfg.DenyExtensions, p.DenyExtensions...)
	return cfg
}
