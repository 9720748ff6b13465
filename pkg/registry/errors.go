package registry

import (
	"fmt"

	"github.com/polisai/toolgate/pkg/domain"
)

// ConfigError reports a registry document that failed to load.
type ConfigError struct {
	Source string
	Reason error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid registry config: %v", e.Reason)
	}
	return fmt.Sprintf("invalid registry config %s: %v", e.Source, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Reason
}

func (e *ConfigError) Is(target error) bool {
	return target == domain.ErrConfigInvalid
}
