package websocket

import (
	"encoding/json"
	"time"

	"github.com/stickshift/trainer/pkg/core"
)

// Message types of the live protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeFrames       = "frames"
	TypeEvent        = "event"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement. The ack of start_session may
// carry the id the server filed the session under.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`
	ID   uint   `json:"id,omitempty"`
}

// StartSessionPayload announces a session.
type StartSessionPayload struct {
	UUID      string          `json:"uuid"`
	Driver    string          `json:"driver"`
	Source    string          `json:"source"`
	Script    string          `json:"script"`
	TickRate  float64         `json:"tickRate"`
	StartTime time.Time       `json:"startTime"`
	Origin    core.Position2D `json:"origin"`
}

// EndSessionPayload closes a session with its summary.
type EndSessionPayload struct {
	UUID          string  `json:"uuid"`
	Frames        uint    `json:"frames"`
	DurationSec   float64 `json:"durationSec"`
	Distance      float64 `json:"distance"`
	MaxSpeed      float64 `json:"maxSpeed"`
	Stalls        uint    `json:"stalls"`
	StepsReached  int     `json:"stepsReached"`
	TutorialSteps int     `json:"tutorialSteps"`
	Completed     bool    `json:"completed"`
}

func startPayload(s core.Session) StartSessionPayload {
	return StartSessionPayload{
		UUID:      s.UUID,
		Driver:    s.Driver,
		Source:    s.Source,
		Script:    s.Script,
		TickRate:  s.TickRate,
		StartTime: s.StartTime,
		Origin:    s.Origin,
	}
}

func endPayload(uuid string, sum core.Summary) EndSessionPayload {
	return EndSessionPayload{
		UUID:          uuid,
		Frames:        sum.Frames,
		DurationSec:   sum.Duration.Seconds(),
		Distance:      sum.Distance,
		MaxSpeed:      sum.MaxSpeed,
		Stalls:        sum.Stalls,
		StepsReached:  sum.StepsReached,
		TutorialSteps: sum.TutorialSteps,
		Completed:     sum.Completed,
	}
}
