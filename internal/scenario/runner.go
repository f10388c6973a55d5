package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/stickshift/trainer/internal/input"
	"github.com/stickshift/trainer/internal/logging"
	"github.com/stickshift/trainer/internal/session"
	"github.com/stickshift/trainer/internal/tutorial"
	"github.com/stickshift/trainer/internal/vehicle"
	"github.com/stickshift/trainer/pkg/core"
)

// DefaultDT is one tick at 60 Hz.
const DefaultDT = 1.0 / 60

// ErrExpectationFailed is wrapped by the StepError of a failed expectation.
var ErrExpectationFailed = errors.New("expectation failed")

// AssertionMode selects what a failed expectation does.
type AssertionMode int

const (
	// AssertionStrict aborts the drill at the first failed expectation.
	AssertionStrict AssertionMode = iota
	// AssertionLogOnly logs and records the failure and keeps driving.
	AssertionLogOnly
)

func (m AssertionMode) String() string {
	if m == AssertionLogOnly {
		return "log-only"
	}
	return "strict"
}

// StepError locates the action a drill stopped on.
type StepError struct {
	Index   int
	Kind    ActionKind
	Where   string
	Elapsed time.Duration
	Err     error
}

func (e *StepError) Error() string {
	at := ""
	if e.Where != "" {
		at = " [" + e.Where + "]"
	}
	return fmt.Sprintf("drill step %d (%s) at %.2fs%s: %v", e.Index+1, e.Kind, e.Elapsed.Seconds(), at, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Outcome is the verdict of one expectation.
type Outcome struct {
	Index   int
	Kind    ActionKind
	Want    string
	Got     string
	Passed  bool
	Tick    uint64
	Elapsed time.Duration
}

// Result is what a drill run produced.
type Result struct {
	Drill        string
	Session      core.Session
	Expectations []Outcome
	Summary      core.Summary
	Frames       int
}

// Failed counts expectations that did not hold.
func (r *Result) Failed() int {
	n := 0
	for _, o := range r.Expectations {
		if !o.Passed {
			n++
		}
	}
	return n
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return r.Failed() == 0 }

// Config builds the session each run drives.
type Config struct {
	Params     vehicle.Params
	Script     []tutorial.Step
	ScriptName string
	DT         float64
	Mode       AssertionMode
	Driver     string
	Origin     core.Position2D

	// RecordEvery thins recorded frames; events are always recorded.
	RecordEvery int

	Recorder  session.Recorder
	Projector session.Projector
	Logger    *slog.Logger
	LogCtx    *logging.SessionContext

	// Started runs once the session exists and before the first action;
	// the CLI registers the session with storage here.
	Started func(*session.Session) error
}

// Runner replays drills.
type Runner struct {
	cfg Config
	log *slog.Logger
}

// NewRunner validates cfg and fills defaults. Zero Params mean the stock car.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Params.TopSpeed == nil {
		cfg.Params = vehicle.DefaultParams()
	}
	if cfg.DT == 0 {
		cfg.DT = DefaultDT
	}
	if cfg.DT < 0 || math.IsNaN(cfg.DT) || math.IsInf(cfg.DT, 0) {
		return nil, fmt.Errorf("%w: %v", vehicle.ErrInvalidTimestep, cfg.DT)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log.With("component", "drill")}, nil
}

type run struct {
	r       *Runner
	d       *Drill
	s       *session.Session
	levels  input.PedalLevels
	result  *Result
	elapsed time.Duration
}

// Run executes d on a fresh session. The session is ended whatever happens;
// the returned Result is filled up to the point the run stopped.
func (r *Runner) Run(ctx context.Context, d *Drill) (*Result, error) {
	if d == nil {
		return nil, errors.New("drill is required")
	}
	s, err := session.New(session.Config{
		Params:      r.cfg.Params,
		Script:      r.cfg.Script,
		ScriptName:  r.cfg.ScriptName,
		Driver:      r.cfg.Driver,
		Source:      "drill:" + d.Name,
		TickRate:    1 / r.cfg.DT,
		Origin:      r.cfg.Origin,
		RecordEvery: r.cfg.RecordEvery,
		Recorder:    r.cfg.Recorder,
		Projector:   r.cfg.Projector,
		Logger:      r.log,
		LogCtx:      r.cfg.LogCtx,
	})
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	x := &run{r: r, d: d, s: s, result: &Result{Drill: d.Name}}
	if r.cfg.Started != nil {
		if err := r.cfg.Started(s); err != nil {
			x.result.Summary = s.End()
			x.result.Session = s.Info()
			return x.result, err
		}
	}

	r.log.Info("drill start", "drill", d.Name, "actions", len(d.Actions), "mode", r.cfg.Mode.String())
	start := time.Now()

	runErr := x.actions(ctx)

	x.result.Summary = s.End()
	x.result.Session = s.Info()
	x.result.Frames = int(x.result.Summary.Frames)
	r.log.Info("drill done",
		"drill", d.Name,
		"expectations", len(x.result.Expectations),
		"failed", x.result.Failed(),
		"frames", x.result.Frames,
		"took", time.Since(start))
	return x.result, runErr
}

func (x *run) actions(ctx context.Context) error {
	for i, a := range x.d.Actions {
		if err := ctx.Err(); err != nil {
			return x.fail(i, a, err)
		}
		if err := x.apply(ctx, i, a); err != nil {
			return x.fail(i, a, err)
		}
	}
	return nil
}

func (x *run) fail(i int, a Action, err error) error {
	return &StepError{Index: i, Kind: a.Kind, Where: a.Where, Elapsed: x.elapsed, Err: err}
}

func (x *run) apply(ctx context.Context, i int, a Action) error {
	s := x.s
	switch a.Kind {
	case ActClutch:
		x.levels.Clutch = a.Level
	case ActBrake:
		x.levels.Brake = a.Level
	case ActThrottle:
		x.levels.Throttle = a.Level
	case ActSteer:
		x.levels.Steering = a.Level
	case ActHandbrake:
		s.SetHandbrake(a.On)
	case ActStartEngine:
		// A refused start is recorded by the session; expectations judge it.
		if err := s.StartEngine(); err != nil {
			x.r.log.Debug("start refused", "step", i+1, "error", err)
		}
	case ActStopEngine:
		s.StopEngine()
	case ActGear:
		if err := s.EngageGear(a.Gear); err != nil {
			x.r.log.Debug("shift refused", "step", i+1, "gear", a.Gear.String(), "error", err)
		}
	case ActAck:
		s.Acknowledge()
	case ActWait:
		return x.wait(ctx, a.Value)
	default:
		if a.Kind.Expectation() {
			return x.expect(i, a)
		}
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	s.SetPedals(x.levels)
	return nil
}

// ticksFor rounds up so a wait never runs short; the epsilon keeps exact
// multiples of dt from gaining a tick.
func ticksFor(seconds, dt float64) int {
	n := int(math.Ceil(seconds/dt - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

func (x *run) wait(ctx context.Context, seconds float64) error {
	n := ticksFor(seconds, x.r.cfg.DT)
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := x.s.Tick(x.r.cfg.DT, x.levels)
		if err != nil {
			return err
		}
		x.elapsed = f.Elapsed
	}
	return nil
}

func (x *run) expect(i int, a Action) error {
	st := x.s.State()
	_, step := x.s.CurrentStep()
	f := x.s.Snapshot()

	o := Outcome{Index: i, Kind: a.Kind, Tick: f.Tick, Elapsed: f.Elapsed}
	switch a.Kind {
	case ExpectSpeedAtLeast:
		o.Want = fmt.Sprintf(">= %.1f km/h", a.Value)
		o.Got = fmt.Sprintf("%.1f km/h", st.RoadSpeed)
		o.Passed = st.RoadSpeed >= a.Value
	case ExpectSpeedBelow:
		o.Want = fmt.Sprintf("< %.1f km/h", a.Value)
		o.Got = fmt.Sprintf("%.1f km/h", st.RoadSpeed)
		o.Passed = st.RoadSpeed < a.Value
	case ExpectStalled:
		o.Want = "stalled"
		o.Got = engineWord(st)
		o.Passed = st.Stalled
	case ExpectRunning:
		o.Want = "running"
		o.Got = engineWord(st)
		o.Passed = st.EngineRunning
	case ExpectStep:
		o.Want = fmt.Sprintf("step %d", a.Level)
		o.Got = fmt.Sprintf("step %d", step)
		o.Passed = step == a.Level
	case ExpectGear:
		o.Want = "gear " + a.Gear.String()
		o.Got = "gear " + st.Gear.String()
		o.Passed = st.Gear == a.Gear
	default:
		return fmt.Errorf("unknown expectation %q", a.Kind)
	}
	x.result.Expectations = append(x.result.Expectations, o)

	if o.Passed {
		x.r.log.Debug("expectation held", "step", i+1, "kind", string(a.Kind), "got", o.Got)
		return nil
	}
	x.r.log.Warn("expectation failed",
		"step", i+1, "kind", string(a.Kind), "want", o.Want, "got", o.Got, "where", a.Where)
	if x.r.cfg.Mode == AssertionStrict {
		return fmt.Errorf("%w: want %s, got %s", ErrExpectationFailed, o.Want, o.Got)
	}
	x.record(o, a.Where)
	return nil
}

func (x *run) record(o Outcome, where string) {
	if x.r.cfg.Recorder == nil {
		return
	}
	info := x.s.Info()
	x.r.cfg.Recorder.RecordEvent(core.Event{
		SessionID: info.ID,
		Tick:      o.Tick,
		Time:      time.Now(),
		Kind:      core.EventDrillExpect,
		Message:   fmt.Sprintf("want %s, got %s", o.Want, o.Got),
		Detail: map[string]any{
			"drill": x.d.Name,
			"step":  o.Index + 1,
			"kind":  string(o.Kind),
			"where": where,
		},
	})
}

func engineWord(st vehicle.State) string {
	switch {
	case st.Stalled:
		return "stalled"
	case st.EngineRunning:
		return "running"
	default:
		return "off"
	}
}
