// Package rpc serves the diagnostics service over gRPC.
package rpc

import "time"

// Server configuration constants
const (
	// Clients ping every 10s; allow anything at or above half that.
	MinClientKeepalive = 5 * time.Second

	// How long in-flight streams get after shutdown starts.
	ShutdownGrace = 5 * time.Second
)
