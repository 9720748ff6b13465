package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry is an immutable, validated table of backends and tools.
type Registry struct {
	backends map[string]*Backend
	tools    map[string]*Tool
	names    []string
	loadedAt time.Time
}

// LoadFile reads and validates a registry document from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Reason: fmt.Errorf("failed to read config file: %w", err)}
	}
	reg, err := Load(data)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Source = path
		}
		return nil, err
	}
	return reg, nil
}

// Load parses a YAML (or JSON) registry document. Any structural or
// referential problem fails the whole load with a *ConfigError.
//
// ${VAR} references are expanded only in backend url, timeout and header
// values. Script commands and Rego modules are kept verbatim so that $1 or
// $HOME reach the script or policy untouched.
func Load(data []byte) (*Registry, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Reason: fmt.Errorf("failed to parse config YAML: %w", err)}
	}
	if err := validateStructure(doc); err != nil {
		return nil, &ConfigError{Reason: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: fmt.Errorf("failed to decode config: %w", err)}
	}
	return New(cfg)
}

// New validates a decoded Config and builds a Registry from it.
func New(cfg Config) (*Registry, error) {
	reg := &Registry{
		backends: make(map[string]*Backend, len(cfg.Backends)),
		tools:    make(map[string]*Tool, len(cfg.Tools)),
		loadedAt: time.Now(),
	}

	var problems []error
	for i := range cfg.Backends {
		b := cfg.Backends[i]
		if err := normalizeBackend(&b); err != nil {
			problems = append(problems, fmt.Errorf("backends[%d]: %w", i, err))
			continue
		}
		if _, dup := reg.backends[b.Name]; dup {
			problems = append(problems, fmt.Errorf("backends[%d]: duplicate backend name %q", i, b.Name))
			continue
		}
		reg.backends[b.Name] = &b
	}

	for i := range cfg.Tools {
		t := cfg.Tools[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Backend = strings.TrimSpace(t.Backend)
		if t.Name == "" {
			problems = append(problems, fmt.Errorf("tools[%d]: name cannot be empty", i))
			continue
		}
		if _, dup := reg.tools[t.Name]; dup {
			problems = append(problems, fmt.Errorf("tools[%d]: duplicate tool name %q", i, t.Name))
			continue
		}
		backend, ok := reg.backends[t.Backend]
		if !ok {
			problems = append(problems, fmt.Errorf("tool %q references unknown backend %q", t.Name, t.Backend))
			continue
		}
		if !compatible(t.Type, backend.Type) {
			problems = append(problems, fmt.Errorf("tool %q of type %q cannot run on %s backend %q", t.Name, t.Type, backend.Type, backend.Name))
			continue
		}
		if err := t.Policy.Compile(context.Background(), t.Name); err != nil {
			problems = append(problems, fmt.Errorf("tool %q policy: %w", t.Name, err))
			continue
		}
		reg.tools[t.Name] = &t
		reg.names = append(reg.names, t.Name)
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Reason: errors.Join(problems...)}
	}
	sort.Strings(reg.names)
	return reg, nil
}

func normalizeBackend(b *Backend) error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	expandBackendEnv(b)

	switch b.Type {
	case BackendHTTP:
		if strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("backend %q: url is required for %s", b.Name, b.Type)
		}
	case BackendScript:
		if strings.TrimSpace(b.Command) == "" {
			return fmt.Errorf("backend %q: command is required for %s", b.Name, b.Type)
		}
	default:
		return fmt.Errorf("backend %q: unsupported type %q", b.Name, b.Type)
	}

	b.Timeout = DefaultTimeout
	if raw := strings.TrimSpace(b.TimeoutRaw); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("backend %q: invalid timeout %q: %w", b.Name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("backend %q: timeout must be positive", b.Name)
		}
		b.Timeout = d
	}
	return nil
}

// expandBackendEnv resolves ${VAR} references in the fields that commonly
// differ per deployment.
func expandBackendEnv(b *Backend) {
	b.URL = os.ExpandEnv(b.URL)
	b.TimeoutRaw = os.ExpandEnv(b.TimeoutRaw)
	if len(b.Headers) == 0 {
		return
	}
	headers := make(map[string]string, len(b.Headers))
	for k, v := range b.Headers {
		headers[k] = os.ExpandEnv(v)
	}
	b.Headers = headers
}

// Current returns the registry itself so a fixed snapshot can stand in for a Provider.
func (r *Registry) Current() *Registry {
	return r
}

// GetTool returns the named tool, or nil when it is not registered.
func (r *Registry) GetTool(name string) *Tool {
	if r == nil {
		return nil
	}
	return r.tools[name]
}

// GetBackend returns the named backend, or nil when it is not registered.
func (r *Registry) GetBackend(name string) *Backend {
	if r == nil {
		return nil
	}
	return r.backends[name]
}

// Tools lists the registered tools sorted by name.
func (r *Registry) Tools() []*Tool {
	if r == nil {
		return nil
	}
	out := make([]*Tool, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// LoadedAt reports when the snapshot was built.
func (r *Registry) LoadedAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.loadedAt
}
