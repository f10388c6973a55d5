// Package vehicle implements the physical model of the training car: engine
// speed, clutch coupling, stalling, drivetrain pull, braking, and steering.
//
// The model is a deterministic function of its state, its pedal inputs and the
// tick length. Update advances it by one tick in a fixed order:
//
//  1. target engine speed from gear, road speed, clutch and throttle
//  2. first-order lag of the engine speed toward that target
//  3. stall detection on the smoothed engine speed
//  4. drivetrain pull toward the gear's throttle-scaled target speed
//  5. service brake, then handbrake decay, then coasting friction
//  6. distance and lateral (steering) integration
//
// Commands that the car would refuse (starting or shifting without enough
// clutch) are rejected without changing any state.
package vehicle

import (
	"errors"
	"math"
)

var (
	// ErrInvalidTimestep is returned by Update for a non-positive or non-finite dt.
	ErrInvalidTimestep = errors.New("timestep must be positive and finite")

	// ErrClutchNotDepressed rejects starting or shifting with too little clutch.
	ErrClutchNotDepressed = errors.New("clutch not depressed enough")

	// ErrEngineRunning rejects starting an engine that already runs.
	ErrEngineRunning = errors.New("engine already running")

	// ErrInvalidGear rejects gearbox positions outside R..5.
	ErrInvalidGear = errors.New("invalid gear")
)

// Model is the mutable state of one car. It is owned by a single writer.
type Model struct {
	params Params

	engineRunning bool
	roadSpeed     float64 // km/h, negative in reverse
	engineSpeed   float64 // RPM
	gear          Gear
	clutch        int
	brake         int
	throttle      int
	steering      int
	handbrake     bool
	distance      float64
	lateral       float64
	stalled       bool
}

// New returns a parked car: engine off, neutral, handbrake on.
func New(p Params) *Model {
	return &Model{
		params:    p,
		handbrake: true,
	}
}

// Params returns the tuning the model was built with.
func (m *Model) Params() Params { return m.params }

// Update advances the physics by dt seconds.
func (m *Model) Update(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return ErrInvalidTimestep
	}

	if !m.engineRunning {
		m.engineSpeed = 0
		return nil
	}

	p := &m.params

	target := m.targetEngineSpeed()
	m.engineSpeed += (target - m.engineSpeed) * dt * p.EngineLagRate
	m.engineSpeed = clamp(m.engineSpeed, 0, p.MaxRPM)

	if m.gear != Neutral && m.clutch < p.StallClutchBelow &&
		m.engineSpeed < p.StallRPM && m.roadSpeed < p.StallMaxSpeed {
		m.stalled = true
		m.engineRunning = false
		m.engineSpeed = 0
	}

	if m.gear != Neutral && m.clutch < p.PedalMax {
		coupling := 1 - float64(m.clutch)/float64(p.PedalMax)
		drive := float64(m.throttle) / float64(p.PedalMax) * coupling

		var targetSpeed float64
		if m.gear.Forward() {
			targetSpeed = drive * p.topSpeed(m.gear)
		} else {
			targetSpeed = -drive * p.topSpeed(Reverse)
		}

		// The handbrake holds the car: no drivetrain pull at all.
		if !m.handbrake {
			m.roadSpeed += (targetSpeed - m.roadSpeed) * dt * p.SpeedLagRate
		}
	}

	if m.brake > 0 {
		decel := float64(m.brake) * p.BrakeDecelPerLevel * dt
		if m.roadSpeed > 0 {
			m.roadSpeed = math.Max(0, m.roadSpeed-decel)
		} else if m.roadSpeed < 0 {
			m.roadSpeed = math.Min(0, m.roadSpeed+decel)
		}
	}

	if m.handbrake && m.roadSpeed != 0 {
		m.roadSpeed *= p.HandbrakeDecay
		if math.Abs(m.roadSpeed) < p.HandbrakeSnap {
			m.roadSpeed = 0
		}
	}

	if m.throttle == 0 && m.gear == Neutral {
		m.roadSpeed *= p.CoastDecay
	}

	m.distance += m.roadSpeed * dt * p.DistanceScale

	if speed := math.Abs(m.roadSpeed); speed > p.SteerMinSpeed {
		m.lateral += float64(m.steering) * speed * dt * p.SteerRate
		m.lateral = clamp(m.lateral, -p.LateralLimit, p.LateralLimit)
	}

	return nil
}

// targetEngineSpeed is the RPM the engine is pulled toward this tick.
func (m *Model) targetEngineSpeed() float64 {
	p := &m.params
	free := p.IdleRPM + float64(m.throttle)*p.ThrottleRPMFree

	if m.gear == Neutral || m.clutch >= p.DecoupleClutchAbove {
		return free
	}

	var base float64
	if m.gear.Forward() {
		base = p.IdleRPM + (m.roadSpeed/p.topSpeed(m.gear))*(p.BandTopRPM-p.IdleRPM)
	} else {
		base = p.IdleRPM + (math.Abs(m.roadSpeed)/p.topSpeed(Reverse))*p.ReverseRPMSpan
	}
	return base + float64(m.throttle)*p.ThrottleRPMLoaded
}

// StartEngine cranks the engine. It only catches with the clutch pressed far
// enough and the engine off; otherwise nothing changes.
func (m *Model) StartEngine() bool {
	return m.StartEngineErr() == nil
}

// StartEngineErr is StartEngine reporting why a start was refused.
func (m *Model) StartEngineErr() error {
	if m.engineRunning {
		return ErrEngineRunning
	}
	if m.clutch < m.params.CommandClutchAbove {
		return ErrClutchNotDepressed
	}
	m.engineRunning = true
	m.stalled = false
	m.engineSpeed = m.params.IdleRPM
	return nil
}

// StopEngine switches the engine off. It never fails.
func (m *Model) StopEngine() {
	m.engineRunning = false
	m.engineSpeed = 0
}

// EngageGear selects g when the clutch is pressed far enough.
func (m *Model) EngageGear(g Gear) bool {
	return m.EngageGearErr(g) == nil
}

// EngageGearErr is EngageGear reporting why a shift was refused.
func (m *Model) EngageGearErr(g Gear) error {
	if !g.Valid() {
		return ErrInvalidGear
	}
	if m.clutch < m.params.CommandClutchAbove {
		return ErrClutchNotDepressed
	}
	m.gear = g
	return nil
}

// SetClutch sets the clutch depression, clamped to [0, PedalMax].
func (m *Model) SetClutch(level int) { m.clutch = m.pedal(level) }

// SetBrake sets the brake pedal level, clamped to [0, PedalMax].
func (m *Model) SetBrake(level int) { m.brake = m.pedal(level) }

// SetThrottle sets the throttle level, clamped to [0, PedalMax].
func (m *Model) SetThrottle(level int) { m.throttle = m.pedal(level) }

// SetSteering sets the steering direction; only the sign of dir matters.
func (m *Model) SetSteering(dir int) {
	switch {
	case dir < 0:
		m.steering = -1
	case dir > 0:
		m.steering = 1
	default:
		m.steering = 0
	}
}

// SetHandbrake engages or releases the handbrake.
func (m *Model) SetHandbrake(engaged bool) { m.handbrake = engaged }

// ToggleHandbrake flips the handbrake and returns the new state.
func (m *Model) ToggleHandbrake() bool {
	m.handbrake = !m.handbrake
	return m.handbrake
}

// SetInputs applies one tick worth of pedal and steering inputs.
func (m *Model) SetInputs(clutch, brake, throttle, steering int) {
	m.SetClutch(clutch)
	m.SetBrake(brake)
	m.SetThrottle(throttle)
	m.SetSteering(steering)
}

func (m *Model) pedal(level int) int {
	if level < 0 {
		return 0
	}
	if level > m.params.PedalMax {
		return m.params.PedalMax
	}
	return level
}

func (m *Model) EngineRunning() bool { return m.engineRunning }
func (m *Model) RoadSpeed() float64 { return m.roadSpeed }
func (m *Model) EngineSpeed() float64 { return m.engineSpeed }
func (m *Model) Gear() Gear { return m.gear }
func (m *Model) Clutch() int { return m.clutch }
func (m *Model) Brake() int { return m.brake }
func (m *Model) Throttle() int { return m.throttle }
func (m *Model) Steering() int { return m.steering }
func (m *Model) HandbrakeEngaged() bool { return m.handbrake }
func (m *Model) Distance() float64 { return m.distance }
func (m *Model) Lateral() float64 { return m.lateral }
func (m *Model) Stalled() bool { return m.stalled }

// InOptimalBand reports whether the current RPM suits the engaged gear.
func (m *Model) InOptimalBand() bool {
	return m.params.InOptimalBand(m.gear, m.engineSpeed)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
