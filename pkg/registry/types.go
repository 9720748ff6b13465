package registry

import (
	"time"

	"github.com/polisai/toolgate/pkg/policy"
)

// BackendType identifies the executor kind behind a backend.
type BackendType string

const (
	BackendHTTP   BackendType = "http_mcp"
	BackendScript BackendType = "script"
)

// ToolType identifies how a tool call is executed.
type ToolType string

const (
	ToolForward ToolType = "mcp-forward"
	ToolScript  ToolType = "script"
)

// DefaultTimeout applies to backends that do not declare one.
const DefaultTimeout = 30 * time.Second

// Config is the registry document.
type Config struct {
	Backends []Backend `yaml:"backends"`
	Tools    []Tool    `yaml:"tools"`
}

// Backend is a downstream executor a tool delegates to.
type Backend struct {
	Name          string            `yaml:"name" json:"name"`
	Type          BackendType       `yaml:"type" json:"type"`
	URL           string            `yaml:"url,omitempty" json:"url,omitempty"`
	Command       string            `yaml:"command,omitempty" json:"command,omitempty"`
	AuthHeaderKey string            `yaml:"auth_header_key,omitempty" json:"auth_header_key,omitempty"`
	TimeoutRaw    string            `yaml:"timeout,omitempty" json:"-"`
	Headers       map[string]string `yaml:"headers,omitempty" json:"-"`

	Timeout time.Duration `yaml:"-" json:"-"`
}

// Identifier returns the URL or command the backend executes against.
func (b *Backend) Identifier() string {
	if b.Type == BackendScript {
		return b.Command
	}
	return b.URL
}

// Tool is a named capability bound to exactly one backend.
type Tool struct {
	Name        string       `yaml:"name" json:"name"`
	Backend     string       `yaml:"backend" json:"backend"`
	Type        ToolType     `yaml:"type" json:"type"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Policy      *policy.Spec `yaml:"policy,omitempty" json:"policy,omitempty"`
	Schema      string       `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// compatible reports whether a tool type can run on a backend type.
func compatible(t ToolType, b BackendType) bool {
	switch t {
	case ToolForward:
		return b == BackendHTTP
	case ToolScript:
		return b == BackendScript
	default:
		return false
	}
}
