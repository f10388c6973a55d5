package core

import "time"

// EventKind names a discrete occurrence during a session.
type EventKind string

const (
	EventEngineStarted   EventKind = "engine_started"
	EventEngineStopped   EventKind = "engine_stopped"
	EventStalled         EventKind = "stalled"
	EventGearChanged     EventKind = "gear_changed"
	EventHandbrake       EventKind = "handbrake"
	EventStepAdvanced    EventKind = "step_advanced"
	EventTutorialToggled EventKind = "tutorial_toggled"
	EventCommandRejected EventKind = "command_rejected"
	EventDrillExpect     EventKind = "drill_expectation"
)

// Event is a discrete, timestamped record. Detail holds kind-specific fields.
type Event struct {
	SessionID uint           `json:"sessionId"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
	Kind      EventKind      `json:"kind"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
}
