package gateway

import "errors"

// WebSocket close codes used by the gateway. Standard codes (1000, 1001) are
// defined by RFC 6455; the 4000 range is reserved for application use.
const (
	CloseNotAuthenticated = 4003
	CloseAuthFailed       = 4004
	CloseBackpressure     = 4008
	CloseInternalError    = 4500
)

// Sentinel errors for connection-setup failures. Each maps to a close code above.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrIdentifyTimeout      = errors.New("identify timeout")
	ErrBackpressure         = errors.New("send buffer full, disconnecting")
)
