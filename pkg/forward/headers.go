package forward

import (
	"net/http"
	"strings"
)

// hopByHop headers are connection-scoped and never forwarded.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Host":                {},
	"Content-Length":      {},
	"Accept-Encoding":     {},
}

// outboundHeaders copies headers for the upstream request, dropping
// hop-by-hop headers and any header named by Connection.
func outboundHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in)+2)

	connectionScoped := map[string]struct{}{}
	for _, v := range in.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connectionScoped[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}

	for name, values := range in {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := hopByHop[canonical]; skip {
			continue
		}
		if _, skip := connectionScoped[canonical]; skip {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}

	out.Set("Content-Type", "application/json")
	if out.Get("Accept") == "" {
		out.Set("Accept", "application/json")
	}
	return out
}
