// Package domain defines the call envelope shared by every gateway component.
//
// Types here carry no infrastructure dependencies: the registry, policy
// enforcer, forwarder, script runner, and HTTP server all exchange
// ToolCallRequest and ToolCallResult values and classify failures with the
// sentinel errors declared in errors.go.
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
