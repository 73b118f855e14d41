package services

import "time"

const (
	KeyFlow         = "kiosk:flow:%s"
	KeyFlowTerminal = "kiosk:flow:%s:terminal"
	KeyRateLimit    = "kiosk:ratelimit:%s:%s"
	KeySubmitLock   = "kiosk:lock:submit:%s"

	TTLFlow       = 15 * time.Minute
	TTLTerminal   = time.Hour // refreshing a redirect URL replays the result
	TTLSubmitLock = 30 * time.Second

	// terminalClaimed marks a terminal slot whose result is still being built.
	terminalClaimed = "claimed"

	ActionPinAttempt = "pin"
)
