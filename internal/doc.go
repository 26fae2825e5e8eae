// Package internal documents the EventHub web frontend internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, rendering, and routing
// - auth: the per-browser auth provider and its registry
// - session: the session cookie bridge and token verification
// - legacyapi, identity: clients for the two upstream services
// - config, metrics, telemetry, email, sanitize: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
