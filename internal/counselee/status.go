package counselee

// Status is the counselee-side session lifecycle state. Exactly one status
// holds at a time; Ended is terminal.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// Syncing reports whether the poller should be reconciling the message log.
func (s Status) Syncing() bool {
	return s == StatusWaiting || s == StatusActive
}
