package vehicle

import (
	"errors"
	"fmt"
)

// RPMBand is an engine speed window in RPM.
type RPMBand struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// Params holds every tuning constant of the physical model. A Model copies its
// Params at construction and never mutates them.
type Params struct {
	IdleRPM             float64 `json:"idleRpm" mapstructure:"idleRpm"`
	MaxRPM              float64 `json:"maxRpm" mapstructure:"maxRpm"`
	BandTopRPM          float64 `json:"bandTopRpm" mapstructure:"bandTopRpm"`                   // RPM reached at a forward gear's top speed
	ReverseRPMSpan      float64 `json:"reverseRpmSpan" mapstructure:"reverseRpmSpan"`           // RPM added above idle at reverse top speed
	ThrottleRPMFree     float64 `json:"throttleRpmFree" mapstructure:"throttleRpmFree"`         // per throttle level, engine decoupled
	ThrottleRPMLoaded   float64 `json:"throttleRpmLoaded" mapstructure:"throttleRpmLoaded"`     // per throttle level, engine coupled
	EngineLagRate       float64 `json:"engineLagRate" mapstructure:"engineLagRate"`             // 1/s
	SpeedLagRate        float64 `json:"speedLagRate" mapstructure:"speedLagRate"`               // 1/s
	StallRPM            float64 `json:"stallRpm" mapstructure:"stallRpm"`
	StallMaxSpeed       float64 `json:"stallMaxSpeed" mapstructure:"stallMaxSpeed"`             // km/h
	StallClutchBelow    int     `json:"stallClutchBelow" mapstructure:"stallClutchBelow"`
	DecoupleClutchAbove int     `json:"decoupleClutchAbove" mapstructure:"decoupleClutchAbove"` // clutch >= this frees the engine from the road
	CommandClutchAbove  int     `json:"commandClutchAbove" mapstructure:"commandClutchAbove"`   // clutch >= this allows start and gear changes
	PedalMax            int     `json:"pedalMax" mapstructure:"pedalMax"`
	BrakeDecelPerLevel  float64 `json:"brakeDecelPerLevel" mapstructure:"brakeDecelPerLevel"`   // km/h per second per level
	HandbrakeDecay      float64 `json:"handbrakeDecay" mapstructure:"handbrakeDecay"`           // factor per tick
	HandbrakeSnap       float64 `json:"handbrakeSnap" mapstructure:"handbrakeSnap"`             // km/h
	CoastDecay          float64 `json:"coastDecay" mapstructure:"coastDecay"`                   // factor per tick
	DistanceScale       float64 `json:"distanceScale" mapstructure:"distanceScale"` // offset units per km/h second
	SteerRate           float64 `json:"steerRate" mapstructure:"steerRate"`
	SteerMinSpeed       float64 `json:"steerMinSpeed" mapstructure:"steerMinSpeed"` // km/h
	LateralLimit        float64 `json:"lateralLimit" mapstructure:"lateralLimit"`

	TopSpeed    map[Gear]float64 `json:"topSpeed" mapstructure:"topSpeed"`       // km/h, every non-neutral gear
	OptimalBand map[Gear]RPMBand `json:"optimalBand" mapstructure:"optimalBand"` // forward gears, display metadata only
}

// DefaultParams returns the stock tuning of the training car.
func DefaultParams() Params {
	return Params{
		IdleRPM:             800,
		MaxRPM:              7000,
		BandTopRPM:          6000,
		ReverseRPMSpan:      3000,
		ThrottleRPMFree:     1500,
		ThrottleRPMLoaded:   500,
		EngineLagRate:       3,
		SpeedLagRate:        2,
		StallRPM:            500,
		StallMaxSpeed:       5,
		StallClutchBelow:    2,
		DecoupleClutchAbove: 3,
		CommandClutchAbove:  3,
		PedalMax:            4,
		BrakeDecelPerLevel:  30,
		HandbrakeDecay:      0.95,
		HandbrakeSnap:       0.5,
		CoastDecay:          0.99,
		DistanceScale:       10,
		SteerRate:           0.5,
		SteerMinSpeed:       1,
		LateralLimit:        100,
		TopSpeed: map[Gear]float64{
			Reverse: 20,
			First:   30,
			Second:  50,
			Third:   70,
			Fourth:  100,
			Fifth:   130,
		},
		OptimalBand: map[Gear]RPMBand{
			First:  {Min: 1000, Max: 2500},
			Second: {Min: 1500, Max: 3000},
			Third:  {Min: 2000, Max: 3500},
			Fourth: {Min: 2500, Max: 4000},
			Fifth:  {Min: 3000, Max: 4500},
		},
	}
}

// ErrInvalidParams is returned by Validate for unusable tuning.
var ErrInvalidParams = errors.New("invalid vehicle params")

// GroundMetres converts a distance or lateral offset into metres on the ground.
func (p Params) GroundMetres(offset float64) float64 {
	return offset / p.DistanceScale / 3.6
}

// Validate reports the first inconsistency in p.
func (p Params) Validate() error {
	switch {
	case p.IdleRPM <= 0 || p.MaxRPM <= p.IdleRPM:
		return fmt.Errorf("%w: idle %.0f must be positive and below max %.0f", ErrInvalidParams, p.IdleRPM, p.MaxRPM)
	case p.EngineLagRate <= 0 || p.SpeedLagRate <= 0:
		return fmt.Errorf("%w: lag rates must be positive", ErrInvalidParams)
	case p.PedalMax <= 0:
		return fmt.Errorf("%w: pedal max must be positive", ErrInvalidParams)
	case p.CommandClutchAbove > p.PedalMax || p.DecoupleClutchAbove > p.PedalMax:
		return fmt.Errorf("%w: clutch thresholds exceed pedal max %d", ErrInvalidParams, p.PedalMax)
	case p.HandbrakeDecay <= 0 || p.HandbrakeDecay >= 1:
		return fmt.Errorf("%w: handbrake decay %.3f must be in (0,1)", ErrInvalidParams, p.HandbrakeDecay)
	case p.CoastDecay <= 0 || p.CoastDecay > 1:
		return fmt.Errorf("%w: coast decay %.3f must be in (0,1]", ErrInvalidParams, p.CoastDecay)
	case p.LateralLimit <= 0:
		return fmt.Errorf("%w: lateral limit must be positive", ErrInvalidParams)
	case p.DistanceScale <= 0:
		return fmt.Errorf("%w: distance scale must be positive", ErrInvalidParams)
	}
	for _, g := range AllGears {
		if g == Neutral {
			continue
		}
		if top, ok := p.TopSpeed[g]; !ok || top <= 0 {
			return fmt.Errorf("%w: missing top speed for gear %s", ErrInvalidParams, g)
		}
	}
	return nil
}

// topSpeed returns the configured top speed of g, 0 for neutral.
func (p Params) topSpeed(g Gear) float64 {
	return p.TopSpeed[g]
}

// InOptimalBand reports whether rpm lies inside the optimal band of g. Gears
// without a band (neutral, reverse) never match.
func (p Params) InOptimalBand(g Gear, rpm float64) bool {
	band, ok := p.OptimalBand[g]
	if !ok {
		return false
	}
	return rpm >= band.Min && rpm <= band.Max
}
