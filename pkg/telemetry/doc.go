// Package telemetry wires OpenTelemetry exporters and meters for the client.
//
// It centralises trace provider setup, records request metrics from inside
// the request pipeline, and offers enrichment helpers that attach resolved
// connection policy metadata to spans. Account keys and connection strings
// never reach exported attributes.
package telemetry
