// Package policy evaluates a tool's declared access policy against the
// arguments of a single call.
//
// Enforcement is a pure predicate: it reads the raw JSON arguments, performs
// no network or process I/O, and either returns nil or a *ViolationError.
// Built-in checks (read-only operations, row ceilings, optional query-text
// inspection) run first; a tool may additionally carry an inline Rego module
// that is compiled with OPA when the registry loads, so evaluation never
// parses policy text on the hot path.
package policy
