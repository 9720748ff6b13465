package credentials

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/toolgate/pkg/registry"
)

func graphBackend() *registry.Backend {
	return &registry.Backend{Name: "graph", Type: registry.BackendHTTP, URL: "http://x", AuthHeaderKey: "GRAPH_TOKEN"}
}

func TestResolve_CallerCredentialWins(t *testing.T) {
	r := NewResolver(MapSource{"GRAPH_TOKEN": "backend-secret", DefaultServiceTokenKey: "svc"}, "")

	in := http.Header{}
	in.Set("Authorization", "Bearer existing")
	out, source := r.ResolveWithSource(in, graphBackend())

	assert.Equal(t, "Bearer existing", out.Get("Authorization"))
	assert.Equal(t, SourceCaller, source)
}

func TestResolve_BackendKey(t *testing.T) {
	r := NewResolver(MapSource{"GRAPH_TOKEN": "backend-secret", DefaultServiceTokenKey: "svc"}, "")

	in := http.Header{}
	in.Set("Mcp-Session-Id", "s1")
	out, source := r.ResolveWithSource(in, graphBackend())

	assert.Equal(t, "Bearer backend-secret", out.Get("Authorization"))
	assert.Equal(t, "s1", out.Get("Mcp-Session-Id"))
	assert.Equal(t, SourceBackend, source)
	assert.Empty(t, in.Get("Authorization"), "input headers must not be modified")
}

func TestResolve_ServiceTokenFallback(t *testing.T) {
	r := NewResolver(MapSource{DefaultServiceTokenKey: "svc"}, "")

	out, source := r.ResolveWithSource(nil, graphBackend())
	assert.Equal(t, "Bearer svc", out.Get("Authorization"))
	assert.Equal(t, SourceService, source)

	// empty backend value falls through too
	r = NewResolver(MapSource{"GRAPH_TOKEN": "  ", DefaultServiceTokenKey: "svc"}, "")
	out = r.Resolve(http.Header{}, graphBackend())
	assert.Equal(t, "Bearer svc", out.Get("Authorization"))
}

func TestResolve_CustomServiceKey(t *testing.T) {
	r := NewResolver(MapSource{"GATEWAY_TOKEN": "gw"}, "GATEWAY_TOKEN")
	out := r.Resolve(http.Header{}, &registry.Backend{Name: "b"})
	assert.Equal(t, "Bearer gw", out.Get("Authorization"))
}

func TestResolve_NoCredential(t *testing.T) {
	r := NewResolver(MapSource{}, "")
	out, source := r.ResolveWithSource(http.Header{"Authorization": []string{""}}, graphBackend())
	assert.Empty(t, out.Values("Authorization"))
	assert.Equal(t, SourceNone, source)
}

func TestResolve_KeepsExplicitScheme(t *testing.T) {
	r := NewResolver(MapSource{"GRAPH_TOKEN": "Basic dXNlcjpwYXNz"}, "")
	out := r.Resolve(nil, graphBackend())
	assert.Equal(t, "Basic dXNlcjpwYXNz", out.Get("Authorization"))
}

func TestEnvSource(t *testing.T) {
	t.Setenv("TOOLGATE_TEST_SECRET", "from-env")
	v, ok := EnvSource{}.Lookup("TOOLGATE_TEST_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)
}

func TestDotenvSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GRAPH_TOKEN=dotenv-secret\n# comment\nQUOTED=\"a b\"\n"), 0o600))

	src, err := NewDotenvSource(path, MapSource{"ONLY_FALLBACK": "fb", "GRAPH_TOKEN": "shadowed"})
	require.NoError(t, err)

	v, ok := src.Lookup("GRAPH_TOKEN")
	assert.True(t, ok)
	assert.Equal(t, "dotenv-secret", v)

	v, _ = src.Lookup("QUOTED")
	assert.Equal(t, "a b", v)

	v, ok = src.Lookup("ONLY_FALLBACK")
	assert.True(t, ok)
	assert.Equal(t, "fb", v)

	_, ok = src.Lookup("MISSING")
	assert.False(t, ok)

	_, err = NewDotenvSource(filepath.Join(t.TempDir(), "missing.env"), nil)
	assert.Error(t, err)
}
