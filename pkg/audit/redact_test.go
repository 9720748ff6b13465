package audit

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIsSensitiveKey(t *testing.T) {
	sensitive := []string{
		"Authorization", "authorization", "PROXY-AUTHORIZATION",
		"token", "access_token", "Refresh-Token", "id_token",
		"password", "passwd", "secret", "client_secret",
		"api-key", "apikey", "X-Api-Key", "api_token", "auth_token",
		"cookie", "Set-Cookie", "private_key", "credentials", "session_token",
		"github_token", "db_password", "AWS_SECRET_ACCESS_KEY",
	}
	for _, key := range sensitive {
		assert.True(t, IsSensitiveKey(key), key)
	}

	safe := []string{
		"mcp-session-id", "Mcp-Session-Id", "session-id", "session_id",
		"content-type", "query", "limit", "op", "", "user",
		"max_tokens", "maxTokens", "token_count", "tokens", "total_tokens",
	}
	for _, key := range safe {
		assert.False(t, IsSensitiveKey(key), key)
	}
}

func TestRedactHeaders(t *testing.T) {
	in := map[string]string{"Authorization": "Bearer x", "mcp-session-id": "s"}
	out := RedactHeaders(in)

	assert.Equal(t, map[string]string{"Authorization": Placeholder, "mcp-session-id": "s"}, out)
	assert.Equal(t, "Bearer x", in["Authorization"], "input must not be mutated")
}

func TestRedactHTTPHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Add("X-Trace", "a")
	h.Add("X-Trace", "b")
	h.Set("Cookie", "sid=1")

	out := RedactHTTPHeader(h)
	assert.Equal(t, Placeholder, out["Authorization"])
	assert.Equal(t, Placeholder, out["Cookie"])
	assert.Equal(t, "a, b", out["X-Trace"])
}

func TestRedactValue_Nested(t *testing.T) {
	in := map[string]any{
		"query": "match (n) return n",
		"auth": map[string]any{
			"password": "hunter2",
			"user":     "neo",
		},
		"items": []any{
			map[string]any{"api_key": "k1"},
			"plain",
		},
	}

	out := RedactValue(in).(map[string]any)
	assert.Equal(t, "match (n) return n", out["query"])
	auth := out["auth"].(map[string]any)
	assert.Equal(t, Placeholder, auth["password"])
	assert.Equal(t, "neo", auth["user"])
	items := out["items"].([]any)
	assert.Equal(t, Placeholder, items[0].(map[string]any)["api_key"])
	assert.Equal(t, "plain", items[1])

	assert.Equal(t, "hunter2", in["auth"].(map[string]any)["password"], "input must not be mutated")
}

func TestRedactJSON_PreservesOrder(t *testing.T) {
	raw := json.RawMessage(`{"z":1,"token":"abc","a":{"client_secret":"s","keep":true},"list":[{"password":"p"}]}`)
	out := RedactJSON(raw)

	assert.JSONEq(t,
		`{"z":1,"token":"REDACTED","a":{"client_secret":"REDACTED","keep":true},"list":[{"password":"REDACTED"}]}`,
		string(out))
	assert.Less(t, indexOf(string(out), `"z"`), indexOf(string(out), `"token"`))
	assert.Less(t, indexOf(string(out), `"token"`), indexOf(string(out), `"a"`))
}

func TestRedactJSON_SpecialCharacterKeys(t *testing.T) {
	raw := json.RawMessage(`{"x.token":"abc","a*b":{"secret":"s"}}`)
	out := RedactJSON(raw)
	assert.JSONEq(t, `{"x.token":"REDACTED","a*b":{"secret":"REDACTED"}}`, string(out))
}

func TestRedactJSON_EdgeCases(t *testing.T) {
	assert.Nil(t, RedactJSON(nil))
	assert.JSONEq(t, `{"q":1}`, string(RedactJSON(json.RawMessage(`{"q":1}`))))
	assert.JSONEq(t, `[1,2]`, string(RedactJSON(json.RawMessage(`[1,2]`))))

	var s string
	require.NoError(t, json.Unmarshal(RedactJSON(json.RawMessage(`{not json`)), &s))
	assert.Contains(t, s, Placeholder)
}

func TestRedactJSON_Idempotent(t *testing.T) {
	keys := []string{"token", "user", "password", "query", "mcp-session-id", "nested", "X-Api-Key"}

	rapid.Check(t, func(t *rapid.T) {
		doc := map[string]any{}
		n := rapid.IntRange(0, 6).Draw(t, "n")
		for i := 0; i < n; i++ {
			key := rapid.SampledFrom(keys).Draw(t, "key")
			if rapid.Bool().Draw(t, "nest") {
				doc[key] = map[string]any{
					rapid.SampledFrom(keys).Draw(t, "inner"): rapid.String().Draw(t, "v"),
				}
			} else {
				doc[key] = rapid.String().Draw(t, "v")
			}
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}

		once := RedactJSON(raw)
		twice := RedactJSON(once)
		if string(once) != string(twice) {
			t.Fatalf("redaction not idempotent: %s vs %s", once, twice)
		}

		var decoded map[string]any
		if err := json.Unmarshal(once, &decoded); err != nil {
			t.Fatalf("redacted output is not JSON: %v", err)
		}
		for k, v := range decoded {
			if IsSensitiveKey(k) && v != Placeholder {
				t.Fatalf("key %q not redacted: %v", k, v)
			}
		}
	})
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestRedactJSON_KeepsTokenCounts(t *testing.T) {
	raw := json.RawMessage(`{"max_tokens":256,"usage":{"token_count":12},"auth_token":"t"}`)
	assert.Equal(t, `{"max_tokens":256,"usage":{"token_count":12},"auth_token":"REDACTED"}`, string(RedactJSON(raw)))
}
