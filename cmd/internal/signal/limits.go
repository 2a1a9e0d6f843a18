package signal

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 64 << 10

	// Max encoded public key accepted at join.
	maxPublicKeyBytes = 16 << 10

	minUsernameLen = 3
	maxUsernameLen = 20
)

const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limit (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
