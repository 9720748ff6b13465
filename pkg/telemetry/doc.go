// Package telemetry bootstraps OpenTelemetry tracing for the gateway.
package telemetry
