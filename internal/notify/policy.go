package notify

import (
	"nextslot/internal/models"
)

// Decision is the resolved outcome of a preference check. The default is
// opt-out: no preference record means everything is enabled, and a failed
// read fails open because suppressing a real notification is worse than
// an occasional duplicate.
type Decision int

const (
	Allow Decision = iota
	Deny
	FailOpen
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case FailOpen:
		return "fail_open"
	}
	return "unknown"
}

// ShouldSend reports whether a delivery proceeds under this decision.
func (d Decision) ShouldSend() bool {
	return d == Allow || d == FailOpen
}

// ResolvePolicy folds a preference lookup result into a single decision,
// resolved once per recipient so the trade-off stays visible in one place.
func ResolvePolicy(prefs *models.NotificationPreferences, readErr error, event models.NotificationEvent) Decision {
	if readErr != nil {
		return FailOpen
	}
	if prefs == nil {
		return Allow
	}
	if !prefs.EventEnabled(event) {
		return Deny
	}
	return Allow
}
