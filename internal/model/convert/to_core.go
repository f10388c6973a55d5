package convert

import (
	"encoding/json"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/stickshift/trainer/internal/model"
	"github.com/stickshift/trainer/pkg/core"
)

func pointToPosition(p geom.Point) core.Position2D {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position2D{}
	}
	return core.Position2D{X: coord.XY.X, Y: coord.XY.Y}
}

func lineStringToTrack(ls geom.LineString) []core.Position2D {
	seq := ls.Coordinates()
	if seq.Length() == 0 {
		return nil
	}
	track := make([]core.Position2D, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		pt := seq.GetXY(i)
		track[i] = core.Position2D{X: pt.X, Y: pt.Y}
	}
	return track
}

// SessionToCore returns the header and the summary stored in a row.
func SessionToCore(r model.SessionRecord) (core.Session, core.Summary) {
	s := core.Session{
		ID:        r.ID,
		UUID:      r.UUID,
		Driver:    r.Driver,
		Source:    r.Source,
		Script:    r.Script,
		TickRate:  r.TickRate,
		StartTime: r.StartTime,
		Origin:    pointToPosition(r.Origin),
	}
	if r.EndTime != nil {
		s.EndTime = *r.EndTime
	}
	sum := core.Summary{
		Frames:        r.Summary.Frames,
		Duration:      time.Duration(r.Summary.DurationMs) * time.Millisecond,
		Distance:      r.Summary.Distance,
		MaxSpeed:      r.Summary.MaxSpeed,
		Stalls:        r.Summary.Stalls,
		StepsReached:  r.Summary.StepsReached,
		TutorialSteps: r.Summary.TutorialSteps,
		Completed:     r.Summary.Completed,
		Track:         lineStringToTrack(r.Track),
	}
	return s, sum
}

func FrameToCore(r model.FrameRecord) core.Frame {
	return core.Frame{
		SessionID:     r.SessionID,
		Tick:          r.Tick,
		Time:          r.Time,
		Elapsed:       time.Duration(r.ElapsedMs) * time.Millisecond,
		EngineRunning: r.EngineRunning,
		Stalled:       r.Stalled,
		RoadSpeed:     r.RoadSpeed,
		EngineSpeed:   r.EngineSpeed,
		Gear:          r.Gear,
		OptimalRPM:    r.OptimalRPM,
		Handbrake:     r.Handbrake,
		Clutch:        int(r.Clutch),
		Brake:         int(r.Brake),
		Throttle:      int(r.Throttle),
		Steering:      int(r.Steering),
		Distance:      r.Distance,
		Lateral:       r.Lateral,
		Position:      pointToPosition(r.Position),
		Step:          r.Step,
		TutorialShown: r.TutorialShown,
	}
}

// EventToCore decodes Detail; a malformed payload yields a nil map.
func EventToCore(r model.EventRecord) core.Event {
	var detail map[string]any
	if len(r.Detail) > 0 {
		_ = json.Unmarshal(r.Detail, &detail)
	}
	if len(detail) == 0 {
		detail = nil
	}
	return core.Event{
		SessionID: r.SessionID,
		Tick:      r.Tick,
		Time:      r.Time,
		Kind:      core.EventKind(r.Kind),
		Message:   r.Message,
		Detail:    detail,
	}
}
