// Package api defines the canonical request and event types shared by
// every component of the unichat gateway: the backend-agnostic chat
// request, the unified client-facing stream event vocabulary, structured
// API errors, and ID generation.
//
// Backend-specific wire types live with their normalizers in pkg/backend;
// this package never imports them.
package api
