// Package convert maps between the core records and their gorm rows.
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/stickshift/trainer/internal/model"
	"github.com/stickshift/trainer/pkg/core"
)

func positionToPoint(p core.Position2D) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}})
}

// trackToLineString needs two points for a valid line; shorter tracks map
// to the empty LineString.
func trackToLineString(track []core.Position2D) geom.LineString {
	if len(track) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(track)*2)
	for _, pt := range track {
		coords = append(coords, pt.X, pt.Y)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

func detailToJSON(d map[string]any) datatypes.JSON {
	if len(d) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

func pedal(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// CoreToSession converts the header of a starting session.
func CoreToSession(s core.Session) model.SessionRecord {
	rec := model.SessionRecord{
		ID:        s.ID,
		UUID:      s.UUID,
		Driver:    s.Driver,
		Source:    s.Source,
		Script:    s.Script,
		TickRate:  s.TickRate,
		StartTime: s.StartTime,
		Origin:    positionToPoint(s.Origin),
	}
	if !s.EndTime.IsZero() {
		end := s.EndTime
		rec.EndTime = &end
	}
	return rec
}

// CoreToSummary converts the end-of-session totals.
func CoreToSummary(s core.Summary) model.SessionSummary {
	return model.SessionSummary{
		Frames:        s.Frames,
		DurationMs:    s.Duration.Milliseconds(),
		Distance:      s.Distance,
		MaxSpeed:      s.MaxSpeed,
		Stalls:        s.Stalls,
		StepsReached:  s.StepsReached,
		TutorialSteps: s.TutorialSteps,
		Completed:     s.Completed,
	}
}

// CoreToTrack converts the recorded path.
func CoreToTrack(s core.Summary) geom.LineString {
	return trackToLineString(s.Track)
}

func CoreToFrame(f core.Frame) model.FrameRecord {
	return model.FrameRecord{
		SessionID:     f.SessionID,
		Tick:          f.Tick,
		Time:          f.Time,
		ElapsedMs:     f.Elapsed.Milliseconds(),
		EngineRunning: f.EngineRunning,
		Stalled:       f.Stalled,
		RoadSpeed:     f.RoadSpeed,
		EngineSpeed:   f.EngineSpeed,
		Gear:          f.Gear,
		OptimalRPM:    f.OptimalRPM,
		Handbrake:     f.Handbrake,
		Clutch:        pedal(f.Clutch),
		Brake:         pedal(f.Brake),
		Throttle:      pedal(f.Throttle),
		Steering:      int8(f.Steering),
		Distance:      f.Distance,
		Lateral:       f.Lateral,
		Position:      positionToPoint(f.Position),
		Step:          f.Step,
		TutorialShown: f.TutorialShown,
	}
}

// CoreToFrames converts a batch.
func CoreToFrames(fs []core.Frame) []model.FrameRecord {
	out := make([]model.FrameRecord, len(fs))
	for i, f := range fs {
		out[i] = CoreToFrame(f)
	}
	return out
}

func CoreToEvent(e core.Event) model.EventRecord {
	return model.EventRecord{
		SessionID: e.SessionID,
		Tick:      e.Tick,
		Time:      e.Time,
		Kind:      string(e.Kind),
		Message:   e.Message,
		Detail:    detailToJSON(e.Detail),
	}
}
