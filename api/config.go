// Package api provides the HTTP server for invoking agent turns and
// inspecting the memory tiers.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string
}
