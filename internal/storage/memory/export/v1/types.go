// Package v1 contains the v1 export format of a recorded training session.
// Frames are written as positional rows to keep long sessions small; Columns
// names each position.
package v1

// FormatVersion is written into every export.
const FormatVersion = 1

// Columns names the fields of every row in Export.Frames.
var Columns = []string{
	"tick", "elapsedMs", "roadSpeed", "engineSpeed", "gear", "clutch", "brake",
	"throttle", "steering", "handbrake", "engineRunning", "stalled", "optimalRpm",
	"distance", "lateral", "x", "y", "step",
}

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion int          `json:"formatVersion"`
	SessionUUID   string       `json:"sessionUuid"`
	Driver        string       `json:"driver"`
	Source        string       `json:"source"`
	Script        string       `json:"script"`
	TickRate      float64      `json:"tickRate"`
	StartTime     string       `json:"startTime"` // RFC 3339, UTC
	EndTime       string       `json:"endTime,omitempty"`
	Origin        [2]float64   `json:"origin"` // lon, lat
	Summary       Summary      `json:"summary"`
	Columns       []string     `json:"columns"`
	Frames        [][]any      `json:"frames"`
	Events        []Event      `json:"events"`
	Track         [][2]float64 `json:"track,omitempty"`
}

// Summary is the end-of-session totals.
type Summary struct {
	Frames        uint    `json:"frames"`
	DurationSec   float64 `json:"durationSec"`
	Distance      float64 `json:"distance"`
	MaxSpeed      float64 `json:"maxSpeed"`
	Stalls        uint    `json:"stalls"`
	StepsReached  int     `json:"stepsReached"`
	TutorialSteps int     `json:"tutorialSteps"`
	Completed     bool    `json:"completed"`
}

// Event is one discrete occurrence.
type Event struct {
	Tick    uint64         `json:"tick"`
	Time    string         `json:"time"`
	Kind    string         `json:"kind"`
	Message string         `json:"message,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}
