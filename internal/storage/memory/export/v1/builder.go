package v1

import (
	"math"
	"time"

	"github.com/stickshift/trainer/pkg/core"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session core.Session
	Summary core.Summary
	Frames  []core.Frame
	Events  []core.Event
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	s := data.Session
	sum := data.Summary
	export := Export{
		FormatVersion: FormatVersion,
		SessionUUID:   s.UUID,
		Driver:        s.Driver,
		Source:        s.Source,
		Script:        s.Script,
		TickRate:      s.TickRate,
		StartTime:     formatTime(s.StartTime),
		EndTime:       formatTime(s.EndTime),
		Origin:        [2]float64{s.Origin.X, s.Origin.Y},
		Summary: Summary{
			Frames:        sum.Frames,
			DurationSec:   round(sum.Duration.Seconds(), 3),
			Distance:      round(sum.Distance, 3),
			MaxSpeed:      round(sum.MaxSpeed, 3),
			Stalls:        sum.Stalls,
			StepsReached:  sum.StepsReached,
			TutorialSteps: sum.TutorialSteps,
			Completed:     sum.Completed,
		},
		Columns: Columns,
		Frames:  make([][]any, 0, len(data.Frames)),
		Events:  make([]Event, 0, len(data.Events)),
	}

	for _, f := range data.Frames {
		export.Frames = append(export.Frames, frameRow(f))
	}

	for _, e := range data.Events {
		export.Events = append(export.Events, Event{
			Tick:    e.Tick,
			Time:    formatTime(e.Time),
			Kind:    string(e.Kind),
			Message: e.Message,
			Detail:  e.Detail,
		})
	}

	if len(sum.Track) > 0 {
		export.Track = make([][2]float64, len(sum.Track))
		for i, p := range sum.Track {
			export.Track[i] = [2]float64{round(p.X, 2), round(p.Y, 2)}
		}
	}

	return export
}

// frameRow follows Columns.
func frameRow(f core.Frame) []any {
	return []any{
		f.Tick,
		f.Elapsed.Milliseconds(),
		round(f.RoadSpeed, 3),
		round(f.EngineSpeed, 1),
		f.Gear,
		f.Clutch,
		f.Brake,
		f.Throttle,
		f.Steering,
		boolToInt(f.Handbrake),
		boolToInt(f.EngineRunning),
		boolToInt(f.Stalled),
		boolToInt(f.OptimalRPM),
		round(f.Distance, 3),
		round(f.Lateral, 3),
		round(f.Position.X, 2),
		round(f.Position.Y, 2),
		f.Step,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
