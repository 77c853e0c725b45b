package realtime

import "time"

type EventKind string

const (
	EventJobCreated  EventKind = "job_created"
	EventJobProgress EventKind = "job_progress"
	EventJobFailed   EventKind = "job_failed"
	EventJobDone     EventKind = "job_done"
	EventHealthAlert EventKind = "health_alert"
)

// Event is the envelope fanned out to downstream notification sinks.
type Event struct {
	Channel string         `json:"channel"`
	Kind    EventKind      `json:"kind"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}
