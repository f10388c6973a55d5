// Package session drives one training sitting: it owns the car and the
// tutorial, applies driver actions, advances the physics each frame, and
// reports frames and events to a recorder.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stickshift/trainer/internal/input"
	"github.com/stickshift/trainer/internal/logging"
	"github.com/stickshift/trainer/internal/tutorial"
	"github.com/stickshift/trainer/internal/vehicle"
	"github.com/stickshift/trainer/pkg/core"
)

const instrumentationName = "github.com/stickshift/trainer/internal/session"

// ErrQuit is returned by Apply for the quit action.
var ErrQuit = errors.New("driver quit")

// ErrEnded is returned by any operation on an ended session.
var ErrEnded = errors.New("session ended")

// Recorder receives everything worth keeping from a session. Calls are made
// from the tick loop and must not block.
type Recorder interface {
	RecordFrame(f core.Frame)
	RecordEvent(e core.Event)
}

// Projector places the car on the map from its lateral offset and distance
// travelled, both in ground metres.
type Projector interface {
	Project(lateral, distance float64) core.Position2D
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(core.Frame) {}
func (nopRecorder) RecordEvent(core.Event) {}

// Config wires a Session.
type Config struct {
	Params      vehicle.Params
	Script      []tutorial.Step
	MaxFrameDt  float64 // seconds, 0 disables clamping
	RecordEvery int     // record every n-th frame, events always
	Driver      string
	Source      string
	ScriptName  string
	TickRate    float64
	Origin      core.Position2D // WGS84 lon/lat of the training ground

	Recorder  Recorder
	Projector Projector
	Logger    *slog.Logger
	LogCtx    *logging.SessionContext
	Clock     func() time.Time
}

type counters struct {
	ticks    metric.Int64Counter
	stalls   metric.Int64Counter
	rejected metric.Int64Counter
	advances metric.Int64Counter
}

// Session is safe for concurrent use; every operation is serialized.
type Session struct {
	mu sync.RWMutex

	car  *vehicle.Model
	tut  *tutorial.Controller
	cfg  Config
	log  *slog.Logger
	rec  Recorder
	now  func() time.Time
	info core.Session

	levels  input.PedalLevels
	tick    uint64
	elapsed time.Duration
	last    core.Frame
	summary core.Summary
	ended   bool

	metrics counters
}

// New starts a session with a parked car on the first tutorial step.
func New(cfg Config) (*Session, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	script := cfg.Script
	if script == nil {
		script = tutorial.DefaultScript()
	}
	tut, err := tutorial.New(script)
	if err != nil {
		return nil, fmt.Errorf("tutorial: %w", err)
	}
	if cfg.RecordEvery < 1 {
		cfg.RecordEvery = 1
	}

	s := &Session{
		car: vehicle.New(cfg.Params),
		tut: tut,
		cfg: cfg,
		log: cfg.Logger,
		rec: cfg.Recorder,
		now: cfg.Clock,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	s.info = core.Session{
		UUID:      uuid.NewString(),
		Driver:    cfg.Driver,
		Source:    cfg.Source,
		Script:    cfg.ScriptName,
		TickRate:  cfg.TickRate,
		StartTime: s.now(),
		Origin:    cfg.Origin,
	}
	s.summary.TutorialSteps = tut.Len()
	s.log = s.log.With("component", "session")
	if cfg.LogCtx != nil {
		cfg.LogCtx.SetSession(s.info.UUID)
		cfg.LogCtx.SetStep(0)
	}
	s.last = s.frame()
	return s, nil
}

func (s *Session) initMetrics() error {
	m := otel.Meter(instrumentationName)
	var err error
	if s.metrics.ticks, err = m.Int64Counter("trainer.ticks",
		metric.WithDescription("Physics ticks simulated")); err != nil {
		return fmt.Errorf("creating ticks counter: %w", err)
	}
	if s.metrics.stalls, err = m.Int64Counter("trainer.stalls",
		metric.WithDescription("Engine stalls")); err != nil {
		return fmt.Errorf("creating stalls counter: %w", err)
	}
	if s.metrics.rejected, err = m.Int64Counter("trainer.commands.rejected",
		metric.WithDescription("Driver commands the car refused")); err != nil {
		return fmt.Errorf("creating rejected counter: %w", err)
	}
	if s.metrics.advances, err = m.Int64Counter("trainer.tutorial.advances",
		metric.WithDescription("Tutorial steps completed")); err != nil {
		return fmt.Errorf("creating advances counter: %w", err)
	}
	return nil
}

// Info returns the session header.
func (s *Session) Info() core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// SetID records the storage-assigned id; later frames and events carry it.
func (s *Session) SetID(id uint) {
	s.mu.Lock()
	s.info.ID = id
	s.last.SessionID = id
	s.mu.Unlock()
}

// Snapshot returns the frame produced by the latest tick. Renderers poll it.
func (s *Session) Snapshot() core.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// CurrentStep returns the tutorial step on display and its index.
func (s *Session) CurrentStep() (tutorial.Step, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tut.CurrentStep(), s.tut.Index()
}

// TutorialVisible reports whether the tutorial panel is shown.
func (s *Session) TutorialVisible() bool {
	return s.tut.Visible()
}

// State returns the car's observables.
func (s *Session) State() vehicle.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.car.State()
}

// SetPedals stores the levels used by the next Step.
func (s *Session) SetPedals(l input.PedalLevels) {
	s.mu.Lock()
	s.levels = l
	s.mu.Unlock()
}

// Tick applies levels and advances the session by dt seconds.
func (s *Session) Tick(dt float64, l input.PedalLevels) (core.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = l
	return s.step(dt)
}

// Step advances the session by dt seconds with the stored pedal levels.
func (s *Session) Step(dt float64) (core.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(dt)
}

func (s *Session) step(dt float64) (core.Frame, error) {
	if s.ended {
		return s.last, ErrEnded
	}
	// Only finite timesteps are clamped; the car rejects the rest.
	if s.cfg.MaxFrameDt > 0 && dt > s.cfg.MaxFrameDt && !math.IsInf(dt, 1) {
		dt = s.cfg.MaxFrameDt
	}

	wasStalled := s.car.Stalled()
	s.car.SetInputs(s.levels.Clutch, s.levels.Brake, s.levels.Throttle, s.levels.Steering)
	if err := s.car.Update(dt); err != nil {
		return s.last, fmt.Errorf("tick %d: %w", s.tick+1, err)
	}
	s.tick++
	s.elapsed += time.Duration(dt * float64(time.Second))
	s.metrics.ticks.Add(context.Background(), 1)

	if !wasStalled && s.car.Stalled() {
		s.summary.Stalls++
		s.metrics.stalls.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("gear", s.car.Gear().String())))
		s.log.Info("engine stalled", "tick", s.tick, "gear", s.car.Gear().String(), "speed", s.car.RoadSpeed())
		s.event(core.EventStalled, "engine stalled", map[string]any{
			"gear":  s.car.Gear().String(),
			"speed": s.car.RoadSpeed(),
		})
	}

	if !s.tut.CurrentStep().Manual {
		s.advance("auto")
	}

	s.last = s.frame()
	s.accumulate()
	if s.cfg.LogCtx != nil {
		s.cfg.LogCtx.SetTick(s.tick)
	}
	if s.tick%uint64(s.cfg.RecordEvery) == 0 {
		s.rec.RecordFrame(s.last)
		if s.cfg.Projector != nil {
			s.summary.Track = append(s.summary.Track, s.last.Position)
		}
	}
	return s.last, nil
}

// advance tries to complete the current step; caller holds the lock.
func (s *Session) advance(how string) bool {
	from := s.tut.Index()
	if !s.tut.TryAdvance(s.car) {
		return false
	}
	to := s.tut.Index()
	s.metrics.advances.Add(context.Background(), 1, metric.WithAttributes(attribute.String("trigger", how)))
	if s.cfg.LogCtx != nil {
		s.cfg.LogCtx.SetStep(to)
	}
	title := s.tut.CurrentStep().Title
	s.log.Info("tutorial step reached", "from", from, "to", to, "title", title, "trigger", how)
	s.event(core.EventStepAdvanced, title, map[string]any{"from": from, "to": to, "trigger": how})
	return true
}

func (s *Session) accumulate() {
	s.summary.Frames = uint(s.tick)
	s.summary.Duration = s.elapsed
	s.summary.Distance = s.cfg.Params.GroundMetres(s.car.Distance())
	if v := math.Abs(s.car.RoadSpeed()); v > s.summary.MaxSpeed {
		s.summary.MaxSpeed = v
	}
	if idx := s.tut.Index(); idx > s.summary.StepsReached {
		s.summary.StepsReached = idx
	}
	s.summary.Completed = s.tut.Finished()
}

func (s *Session) frame() core.Frame {
	st := s.car.State()
	f := core.Frame{
		SessionID:     s.info.ID,
		Tick:          s.tick,
		Time:          s.now(),
		Elapsed:       s.elapsed,
		EngineRunning: st.EngineRunning,
		Stalled:       st.Stalled,
		RoadSpeed:     st.RoadSpeed,
		EngineSpeed:   st.EngineSpeed,
		Gear:          st.Gear.String(),
		OptimalRPM:    st.OptimalRPM,
		Handbrake:     st.HandbrakeEngaged,
		Clutch:        st.Clutch,
		Brake:         st.Brake,
		Throttle:      st.Throttle,
		Steering:      st.Steering,
		Distance:      st.Distance,
		Lateral:       st.Lateral,
		Step:          s.tut.Index(),
		TutorialShown: s.tut.Visible(),
	}
	if s.cfg.Projector != nil {
		p := s.cfg.Params
		f.Position = s.cfg.Projector.Project(p.GroundMetres(st.Lateral), p.GroundMetres(st.Distance))
	}
	return f
}

func (s *Session) event(kind core.EventKind, msg string, detail map[string]any) {
	s.rec.RecordEvent(core.Event{
		SessionID: s.info.ID,
		Tick:      s.tick,
		Time:      s.now(),
		Kind:      kind,
		Message:   msg,
		Detail:    detail,
	})
}

// rejected logs and records a refused command. Refusals are part of
// learning to drive, not faults.
func (s *Session) rejected(command string, err error) error {
	s.metrics.rejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
	s.log.Debug("command rejected", "command", command, "reason", err, "clutch", s.car.Clutch())
	s.event(core.EventCommandRejected, err.Error(), map[string]any{"command": command, "clutch": s.car.Clutch()})
	return err
}

// Summary returns the running totals.
func (s *Session) Summary() core.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryCopy()
}

func (s *Session) summaryCopy() core.Summary {
	sum := s.summary
	sum.Track = append([]core.Position2D(nil), s.summary.Track...)
	return sum
}

// End closes the session and returns its summary. Further ticks fail.
func (s *Session) End() core.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		s.info.EndTime = s.now()
		s.log.Info("session ended",
			"frames", s.summary.Frames,
			"stalls", s.summary.Stalls,
			"step", s.tut.Index(),
			"completed", s.summary.Completed)
	}
	return s.summaryCopy()
}
