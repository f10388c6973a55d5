package input

import (
	"fmt"
	"strings"

	"github.com/stickshift/trainer/internal/vehicle"
)

// ActionKind names an edge-triggered driver action.
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionToggleEngine
	// ActionSpace acknowledges a manual tutorial step, otherwise toggles the handbrake.
	ActionSpace
	ActionGear
	ActionToggleTutorial
	ActionQuit
)

// Action is one key press worth of intent. Gear is meaningful for ActionGear only.
type Action struct {
	Kind ActionKind
	Gear vehicle.Gear
}

func (a Action) String() string {
	switch a.Kind {
	case ActionToggleEngine:
		return "engine"
	case ActionSpace:
		return "space"
	case ActionGear:
		return "gear:" + a.Gear.String()
	case ActionToggleTutorial:
		return "tutorial"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

// ParseAction reads the String form of an action ("gear:R", "space", ...).
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "engine":
		return Action{Kind: ActionToggleEngine}, nil
	case "space":
		return Action{Kind: ActionSpace}, nil
	case "tutorial":
		return Action{Kind: ActionToggleTutorial}, nil
	case "quit":
		return Action{Kind: ActionQuit}, nil
	}
	if g, ok := strings.CutPrefix(s, "gear:"); ok {
		gear, err := vehicle.ParseGear(g)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionGear, Gear: gear}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", s)
}

// Bindings maps physical key names to logical keys and actions.
type Bindings struct {
	Pedals  map[string]Key
	Actions map[string]Action
}

// DefaultBindings is the AZERTY layout the trainer ships with.
func DefaultBindings() Bindings {
	return Bindings{
		Pedals: map[string]Key{
			"a": ClutchL1, "z": ClutchL2, "e": ClutchL3, "r": ClutchL4,
			"q": BrakeL1, "s": BrakeL2, "d": BrakeL3, "f": BrakeL4,
			"w": ThrottleL1, "x": ThrottleL2, "c": ThrottleL3, "v": ThrottleL4,
			"left": SteerLeft, "right": SteerRight,
		},
		Actions: map[string]Action{
			"return": {Kind: ActionToggleEngine},
			"space":  {Kind: ActionSpace},
			"0":      {Kind: ActionGear, Gear: vehicle.Neutral},
			"1":      {Kind: ActionGear, Gear: vehicle.First},
			"2":      {Kind: ActionGear, Gear: vehicle.Second},
			"3":      {Kind: ActionGear, Gear: vehicle.Third},
			"4":      {Kind: ActionGear, Gear: vehicle.Fourth},
			"5":      {Kind: ActionGear, Gear: vehicle.Fifth},
			"n":      {Kind: ActionGear, Gear: vehicle.Reverse},
			"t":      {Kind: ActionToggleTutorial},
			"escape": {Kind: ActionQuit},
		},
	}
}

// ParseBindings builds Bindings from name-to-name maps as found in config.
// Entries in pedals and actions replace those of base; an empty value unbinds
// the key.
func ParseBindings(base Bindings, pedals, actions map[string]string) (Bindings, error) {
	out := Bindings{
		Pedals:  make(map[string]Key, len(base.Pedals)),
		Actions: make(map[string]Action, len(base.Actions)),
	}
	for k, v := range base.Pedals {
		out.Pedals[k] = v
	}
	for k, v := range base.Actions {
		out.Actions[k] = v
	}

	for name, logical := range pedals {
		name = strings.ToLower(name)
		if logical == "" {
			delete(out.Pedals, name)
			continue
		}
		k, err := ParseKey(logical)
		if err != nil {
			return Bindings{}, fmt.Errorf("binding %q: %w", name, err)
		}
		out.Pedals[name] = k
	}
	for name, act := range actions {
		name = strings.ToLower(name)
		if act == "" {
			delete(out.Actions, name)
			continue
		}
		a, err := ParseAction(act)
		if err != nil {
			return Bindings{}, fmt.Errorf("binding %q: %w", name, err)
		}
		out.Actions[name] = a
	}
	return out, nil
}

// Held converts the physical keys currently down into a KeySet. Unbound names
// are ignored.
func (b Bindings) Held(names ...string) KeySet {
	var s KeySet
	for _, n := range names {
		if k, ok := b.Pedals[strings.ToLower(n)]; ok {
			s = s.With(k)
		}
	}
	return s
}

// Action resolves a key press. Unbound keys yield ActionNone.
func (b Bindings) Action(name string) Action {
	return b.Actions[strings.ToLower(name)]
}
