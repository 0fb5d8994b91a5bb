// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Request body limit for method calls
	MaxRequestBytes = 64 << 10

	// Global IP-based rate limiting (token bucket per client address)
	IPRateBurst                = 10               // Requests allowed in a burst
	IPRateLimitCleanupInterval = 5 * time.Minute  // How often to purge stale IP entries
	IPRateLimitEntryTTL        = 10 * time.Minute // TTL for inactive IP entries

	// WebSocket event streams
	WSWriteTimeout = 5 * time.Second
	WSCloseReason  = "stream ended"
)

// RequestIDHeader carries the per-request id echoed back to clients.
const RequestIDHeader = "X-Request-ID"
