package tutorial

import (
	"errors"
	"fmt"

	"github.com/stickshift/trainer/internal/vehicle"
)

// ErrUnknownCondition is returned for a condition kind the controller cannot evaluate.
var ErrUnknownCondition = errors.New("unknown condition")

// Vehicle is the read-only view of the car a condition inspects.
type Vehicle interface {
	HandbrakeEngaged() bool
	Gear() vehicle.Gear
	EngineRunning() bool
	RoadSpeed() float64
}

// Kind tags a Condition.
type Kind string

const (
	KindAlways                Kind = "always"
	KindHandbrakeOnAndNeutral Kind = "handbrake_on_and_neutral"
	KindEngineRunning         Kind = "engine_running"
	KindGearEquals            Kind = "gear_equals"
	KindHandbrakeOff          Kind = "handbrake_off"
	KindSpeedAtLeast          Kind = "speed_at_least"
)

// Condition is a step's completion predicate, kept as data so scripts can be
// stored and loaded. Gear is read only by gear_equals, Speed only by
// speed_at_least.
type Condition struct {
	Kind  Kind         `json:"kind"`
	Gear  vehicle.Gear `json:"gear,omitempty"`
	Speed float64      `json:"speed,omitempty"`
}

func Always() Condition { return Condition{Kind: KindAlways} }
func HandbrakeOnAndNeutral() Condition { return Condition{Kind: KindHandbrakeOnAndNeutral} }
func EngineRunning() Condition { return Condition{Kind: KindEngineRunning} }
func HandbrakeOff() Condition { return Condition{Kind: KindHandbrakeOff} }

func GearEquals(g vehicle.Gear) Condition {
	return Condition{Kind: KindGearEquals, Gear: g}
}

// SpeedAtLeast holds once the signed road speed reaches v km/h.
func SpeedAtLeast(v float64) Condition {
	return Condition{Kind: KindSpeedAtLeast, Speed: v}
}

// Evaluate reports whether v satisfies c. Unknown kinds never hold.
func (c Condition) Evaluate(v Vehicle) bool {
	switch c.Kind {
	case KindAlways:
		return true
	case KindHandbrakeOnAndNeutral:
		return v.HandbrakeEngaged() && v.Gear() == vehicle.Neutral
	case KindEngineRunning:
		return v.EngineRunning()
	case KindGearEquals:
		return v.Gear() == c.Gear
	case KindHandbrakeOff:
		return !v.HandbrakeEngaged()
	case KindSpeedAtLeast:
		return v.RoadSpeed() >= c.Speed
	default:
		return false
	}
}

// Validate rejects unknown kinds and out-of-range gears.
func (c Condition) Validate() error {
	switch c.Kind {
	case KindAlways, KindHandbrakeOnAndNeutral, KindEngineRunning, KindHandbrakeOff, KindSpeedAtLeast:
		return nil
	case KindGearEquals:
		if !c.Gear.Valid() {
			return fmt.Errorf("gear_equals: %w: %d", vehicle.ErrInvalidGear, c.Gear)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCondition, c.Kind)
	}
}

func (c Condition) String() string {
	switch c.Kind {
	case KindGearEquals:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Gear)
	case KindSpeedAtLeast:
		return fmt.Sprintf("%s(%g)", c.Kind, c.Speed)
	default:
		return string(c.Kind)
	}
}
