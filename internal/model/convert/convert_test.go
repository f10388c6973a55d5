package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/pkg/core"
)

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestFrameRoundTrip(t *testing.T) {
	f := core.Frame{
		SessionID:     3,
		Tick:          120,
		Time:          t0,
		Elapsed:       2 * time.Second,
		EngineRunning: true,
		RoadSpeed:     12.5,
		EngineSpeed:   2100,
		Gear:          "2",
		OptimalRPM:    true,
		Clutch:        1,
		Throttle:      3,
		Steering:      -1,
		Distance:      40,
		Lateral:       -2.5,
		Position:      core.Position2D{X: 261600.1, Y: 6250500.2},
		Step:          5,
		TutorialShown: true,
	}

	rec := CoreToFrame(f)
	assert.Equal(t, uint8(3), rec.Throttle)
	assert.Equal(t, int8(-1), rec.Steering)
	assert.Equal(t, int64(2000), rec.ElapsedMs)

	assert.Equal(t, f, FrameToCore(rec))
}

func TestCoreToFrame_PedalBounds(t *testing.T) {
	rec := CoreToFrame(core.Frame{Clutch: -3, Brake: 999})
	assert.Equal(t, uint8(0), rec.Clutch)
	assert.Equal(t, uint8(255), rec.Brake)
}

func TestSessionRoundTrip(t *testing.T) {
	s := core.Session{
		ID:        7,
		UUID:      "3b7c7a52-2c1e-4cf5-9c38-1f0d2b8f6a11",
		Driver:    "alex",
		Source:    "drill:hill-start",
		Script:    "default",
		TickRate:  60,
		StartTime: t0,
		EndTime:   t0.Add(90 * time.Second),
		Origin:    core.Position2D{X: 2.35, Y: 48.85},
	}
	sum := core.Summary{
		Frames:        5400,
		Duration:      90 * time.Second,
		Distance:      820,
		MaxSpeed:      31.2,
		Stalls:        2,
		StepsReached:  6,
		TutorialSteps: 7,
		Completed:     true,
		Track:         []core.Position2D{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}},
	}

	rec := CoreToSession(s)
	require.NotNil(t, rec.EndTime)
	rec.Summary = CoreToSummary(sum)
	rec.Track = CoreToTrack(sum)
	assert.Equal(t, int64(90000), rec.Summary.DurationMs)
	assert.Equal(t, 3, rec.Track.Coordinates().Length())

	gotS, gotSum := SessionToCore(rec)
	assert.Equal(t, s, gotS)
	assert.Equal(t, sum, gotSum)
}

func TestCoreToSession_OpenSession(t *testing.T) {
	rec := CoreToSession(core.Session{StartTime: t0})
	assert.Nil(t, rec.EndTime)

	s, sum := SessionToCore(rec)
	assert.True(t, s.EndTime.IsZero())
	assert.Nil(t, sum.Track)
}

func TestTrackTooShort(t *testing.T) {
	ls := CoreToTrack(core.Summary{Track: []core.Position2D{{X: 1, Y: 1}}})
	assert.True(t, ls.IsEmpty())
}

func TestEventRoundTrip(t *testing.T) {
	e := core.Event{
		SessionID: 1,
		Tick:      44,
		Time:      t0,
		Kind:      core.EventGearChanged,
		Message:   "1",
		Detail:    map[string]any{"from": "N", "to": "1"},
	}
	rec := CoreToEvent(e)
	assert.Equal(t, "gear_changed", rec.Kind)
	assert.JSONEq(t, `{"from":"N","to":"1"}`, string(rec.Detail))
	assert.Equal(t, e, EventToCore(rec))
}

func TestEventEmptyDetail(t *testing.T) {
	rec := CoreToEvent(core.Event{Kind: core.EventEngineStarted})
	assert.Equal(t, "{}", string(rec.Detail))
	assert.Nil(t, EventToCore(rec).Detail)
}

func TestCoreToFrames(t *testing.T) {
	recs := CoreToFrames([]core.Frame{{Tick: 1}, {Tick: 2}})
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(2), recs[1].Tick)
}
