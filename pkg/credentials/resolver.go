// Package credentials decides which bearer credential, if any, accompanies an
// outbound tool call. Secret values are read through an injected
// SecretSource and are never logged or retained beyond the call.
package credentials

import (
	"net/http"
	"strings"

	"github.com/polisai/toolgate/pkg/registry"
)

// DefaultServiceTokenKey names the gateway-wide fallback credential.
const DefaultServiceTokenKey = "TOOLGATE_SERVICE_TOKEN"

// Credential sources reported by ResolveWithSource.
const (
	SourceCaller  = "caller"
	SourceBackend = "backend"
	SourceService = "service"
	SourceNone    = "none"
)

// Resolver injects Authorization headers by precedence: caller-supplied,
// backend auth_header_key, gateway service token, none.
type Resolver struct {
	secrets         SecretSource
	serviceTokenKey string
}

// NewResolver creates a Resolver. An empty serviceTokenKey selects
// DefaultServiceTokenKey; a nil source reads the environment.
func NewResolver(secrets SecretSource, serviceTokenKey string) *Resolver {
	if secrets == nil {
		secrets = EnvSource{}
	}
	if serviceTokenKey == "" {
		serviceTokenKey = DefaultServiceTokenKey
	}
	return &Resolver{secrets: secrets, serviceTokenKey: serviceTokenKey}
}

// Resolve returns a copy of headers with the Authorization header settled.
// The input is never modified.
func (r *Resolver) Resolve(headers http.Header, backend *registry.Backend) http.Header {
	out, _ := r.ResolveWithSource(headers, backend)
	return out
}

// ResolveWithSource is Resolve plus which rule supplied the credential.
func (r *Resolver) ResolveWithSource(headers http.Header, backend *registry.Backend) (http.Header, string) {
	out := headers.Clone()
	if out == nil {
		out = make(http.Header)
	}

	if strings.TrimSpace(out.Get("Authorization")) != "" {
		return out, SourceCaller
	}
	// An empty caller header carries nothing worth keeping.
	out.Del("Authorization")

	if backend != nil && backend.AuthHeaderKey != "" {
		if v, ok := r.secrets.Lookup(backend.AuthHeaderKey); ok && strings.TrimSpace(v) != "" {
			out.Set("Authorization", bearer(v))
			return out, SourceBackend
		}
	}

	if v, ok := r.secrets.Lookup(r.serviceTokenKey); ok && strings.TrimSpace(v) != "" {
		out.Set("Authorization", bearer(v))
		return out, SourceService
	}

	return out, SourceNone
}

// bearer formats a secret as a bearer credential unless it already names a scheme.
func bearer(v string) string {
	v = strings.TrimSpace(v)
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "bearer ") || strings.HasPrefix(lower, "basic ") {
		return v
	}
	return "Bearer " + v
}
