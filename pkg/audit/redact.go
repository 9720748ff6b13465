package audit

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/polisai/toolgate/internal/jsonpath"
)

// Placeholder replaces every redacted value.
const Placeholder = "REDACTED"

// sensitiveExact are normalized keys that are always redacted.
var sensitiveExact = map[string]struct{}{
	"authorization":      {},
	"proxyauthorization": {},
	"token":              {},
	"accesstoken":        {},
	"refreshtoken":       {},
	"idtoken":            {},
	"password":           {},
	"passwd":             {},
	"pwd":                {},
	"secret":             {},
	"clientsecret":       {},
	"apikey":             {},
	"xapikey":            {},
	"apitoken":           {},
	"authtoken":          {},
	"cookie":             {},
	"setcookie":          {},
	"privatekey":         {},
	"credential":         {},
	"credentials":        {},
	"sessiontoken":       {},
	"bearer":             {},
}

// sensitiveFragments catch variants such as github_token or db_password_hash.
var sensitiveFragments = []string{
	"token",
	"secret",
	"password",
	"passwd",
	"apikey",
	"privatekey",
}

// allowedKeys match a fragment but carry no credential: session identifiers
// and model token counts.
var allowedKeys = map[string]struct{}{
	"mcpsessionid":        {},
	"sessionid":           {},
	"tokens":              {},
	"maxtokens":           {},
	"maxoutputtokens":     {},
	"maxcompletiontokens": {},
	"tokencount":          {},
	"tokenlimit":          {},
	"prompttokens":        {},
	"completiontokens":    {},
	"inputtokens":         {},
	"outputtokens":        {},
	"totaltokens":         {},
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "", "_", "", ".", "", " ", "").Replace(key)
}

// IsSensitiveKey reports whether values under key must be redacted.
func IsSensitiveKey(key string) bool {
	k := normalizeKey(key)
	if k == "" {
		return false
	}
	if _, ok := allowedKeys[k]; ok {
		return false
	}
	if _, ok := sensitiveExact[k]; ok {
		return true
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(k, fragment) {
			return true
		}
	}
	return false
}

// RedactHeaders returns a copy of headers with sensitive values replaced.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsSensitiveKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = RedactString(v)
	}
	return out
}

// RedactHTTPHeader flattens and redacts an http.Header for logging.
func RedactHTTPHeader(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k, values := range h {
		flat[k] = strings.Join(values, ", ")
	}
	return RedactHeaders(flat)
}

// RedactValue returns a copy of v with sensitive keys replaced at any depth.
func RedactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = Placeholder
				continue
			}
			out[k] = RedactValue(inner)
		}
		return out
	case map[string]string:
		return RedactHeaders(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = RedactValue(inner)
		}
		return out
	case string:
		return RedactString(val)
	default:
		return v
	}
}

// RedactJSON redacts a raw JSON document while keeping key order intact.
// Input that is not valid JSON is replaced wholesale.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if !gjson.ValidBytes(raw) {
		quoted, _ := json.Marshal(Placeholder + " (unparseable)")
		return quoted
	}

	root := gjson.ParseBytes(raw)
	if root.Type == gjson.String {
		quoted, _ := json.Marshal(RedactString(root.String()))
		return quoted
	}

	var edits []replacement
	collectReplacements(root, "", &edits)
	if len(edits) == 0 {
		return append(json.RawMessage(nil), raw...)
	}

	out := append([]byte(nil), raw...)
	for _, e := range edits {
		next, err := sjson.SetBytes(out, e.path, e.value)
		if err != nil {
			return redactDecoded(raw)
		}
		out = next
	}
	return out
}

type replacement struct {
	path  string
	value string
}

func collectReplacements(res gjson.Result, path string, edits *[]replacement) {
	switch {
	case res.IsObject():
		res.ForEach(func(key, value gjson.Result) bool {
			p := jsonpath.Join(path, key.String())
			if IsSensitiveKey(key.String()) {
				*edits = append(*edits, replacement{path: p, value: Placeholder})
				return true
			}
			collectReplacements(value, p, edits)
			return true
		})
	case res.IsArray():
		i := 0
		res.ForEach(func(_, value gjson.Result) bool {
			collectReplacements(value, jsonpath.Index(path, i), edits)
			i++
			return true
		})
	case res.Type == gjson.String && path != "":
		if masked := RedactString(res.String()); masked != res.String() {
			*edits = append(*edits, replacement{path: path, value: masked})
		}
	}
}

// redactDecoded is the fallback when a path cannot be expressed for sjson.
func redactDecoded(raw json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		quoted, _ := json.Marshal(Placeholder + " (unparseable)")
		return quoted
	}
	out, err := json.Marshal(RedactValue(v))
	if err != nil {
		quoted, _ := json.Marshal(Placeholder)
		return quoted
	}
	return out
}
