package models

// LoadState is the state of the users collection load
type LoadState string

// LoadState constants
const (
	LoadStateLoading LoadState = "loading"
	LoadStateError   LoadState = "error"
	LoadStateReady   LoadState = "ready"
)

// LoadStatus is a tri-state load status. Message is set only in the error state.
type LoadStatus struct {
	State   LoadState `json:"state"`
	Message string    `json:"message,omitempty"`
}

// Loading returns the loading status
func Loading() LoadStatus {
	return LoadStatus{State: LoadStateLoading}
}

// Ready returns the ready status
func Ready() LoadStatus {
	return LoadStatus{State: LoadStateReady}
}

// Failed returns the error status carrying a human-readable message
func Failed(message string) LoadStatus {
	return LoadStatus{State: LoadStateError, Message: message}
}

// IsLoading reports whether the load is in progress
func (s LoadStatus) IsLoading() bool { return s.State == LoadStateLoading }

// IsError reports whether the last load failed
func (s LoadStatus) IsError() bool { return s.State == LoadStateError }

// IsReady reports whether the last load succeeded
func (s LoadStatus) IsReady() bool { return s.State == LoadStateReady }

// HealthStatus is the result of a successful health probe.
// Uptime is measured in seconds.
type HealthStatus struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// UptimeSeconds returns the uptime rounded down to whole seconds
func (h HealthStatus) UptimeSeconds() int64 {
	return int64(h.Uptime)
}
