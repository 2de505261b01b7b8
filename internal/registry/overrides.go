package registry

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// Override repoints an operation's model or effort without a rebuild.
// Zero fields leave the compiled-in value untouched.
type Override struct {
	Model  string                 `yaml:"model"`
	Effort domain.ReasoningEffort `yaml:"effort"`
}

// ApplyOverridesFile loads a YAML map of operation name -> Override and
// applies it. A missing path is not an error; overrides for unknown
// operations are.
func (r *Registry) ApplyOverridesFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("op=registry.overrides: %w", err)
	}
	defer func() { _ = f.Close() }()
	return r.ApplyOverrides(f)
}

// ApplyOverrides reads YAML overrides from rd and applies them. Called
// during startup only, before the registry is shared.
func (r *Registry) ApplyOverrides(rd io.Reader) error {
	var overrides map[string]Override
	dec := yaml.NewDecoder(rd)
	if err := dec.Decode(&overrides); err != nil {
		return fmt.Errorf("op=registry.overrides: %w", err)
	}
	for name, ov := range overrides {
		cfg, ok := r.ops[name]
		if !ok {
			return fmt.Errorf("op=registry.overrides: %w: unknown operation %q", domain.ErrInvalidArgument, name)
		}
		if ov.Model != "" {
			cfg.Model = ov.Model
		}
		if ov.Effort != "" {
			if !validEffort(ov.Effort) {
				return fmt.Errorf("op=registry.overrides: %w: bad effort %q for %q", domain.ErrInvalidArgument, ov.Effort, name)
			}
			cfg.Effort = ov.Effort
		}
		r.ops[name] = cfg
	}
	return nil
}

func validEffort(e domain.ReasoningEffort) bool {
	switch e {
	case domain.EffortMinimal, domain.EffortLow, domain.EffortMedium, domain.EffortHigh:
		return true
	}
	return false
}
