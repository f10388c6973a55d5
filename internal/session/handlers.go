package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stickshift/trainer/internal/dispatcher"
	"github.com/stickshift/trainer/internal/input"
	"github.com/stickshift/trainer/internal/vehicle"
)

// Commands understood by RegisterHandlers.
const (
	CmdEngineToggle   = ":ENGINE:TOGGLE:"
	CmdEngineStart    = ":ENGINE:START:"
	CmdEngineStop     = ":ENGINE:STOP:"
	CmdGear           = ":GEAR:"
	CmdHandbrake      = ":HANDBRAKE:"
	CmdTutorialAck    = ":TUTORIAL:ACK:"
	CmdTutorialToggle = ":TUTORIAL:TOGGLE:"
	CmdPedals         = ":PEDALS:"
	CmdTick           = ":TICK:"

	CmdKeyPress = ":KEY:PRESS:"
	CmdKeysHeld = ":KEYS:HELD:"
)

// RegisterHandlers exposes s on d. Every handler is synchronous and logged so
// commands keep the order the front end sent them in.
func RegisterHandlers(d *dispatcher.Dispatcher, s *Session) {
	d.Register(CmdEngineToggle, func(dispatcher.Event) (any, error) {
		if err := s.ToggleEngine(); err != nil {
			return nil, err
		}
		return s.State().EngineRunning, nil
	}, dispatcher.Logged())

	d.Register(CmdEngineStart, func(dispatcher.Event) (any, error) {
		return nil, s.StartEngine()
	}, dispatcher.Logged())

	d.Register(CmdEngineStop, func(dispatcher.Event) (any, error) {
		s.StopEngine()
		return nil, nil
	}, dispatcher.Logged())

	d.Register(CmdGear, func(e dispatcher.Event) (any, error) {
		g, err := vehicle.ParseGear(e.Arg(0))
		if err != nil {
			return nil, err
		}
		if err := s.EngageGear(g); err != nil {
			return nil, err
		}
		return g.String(), nil
	}, dispatcher.Logged())

	d.Register(CmdHandbrake, func(e dispatcher.Event) (any, error) {
		switch strings.ToLower(e.Arg(0)) {
		case "":
			return s.ToggleHandbrake(), nil
		case "on", "true", "1":
			s.SetHandbrake(true)
			return true, nil
		case "off", "false", "0":
			s.SetHandbrake(false)
			return false, nil
		default:
			return nil, fmt.Errorf("handbrake: bad argument %q", e.Arg(0))
		}
	}, dispatcher.Logged())

	d.Register(CmdTutorialAck, func(dispatcher.Event) (any, error) {
		return s.Acknowledge(), nil
	}, dispatcher.Logged())

	d.Register(CmdTutorialToggle, func(dispatcher.Event) (any, error) {
		return s.ToggleTutorial(), nil
	}, dispatcher.Logged())

	d.Register(CmdPedals, func(e dispatcher.Event) (any, error) {
		l, err := parsePedals(e.Args)
		if err != nil {
			return nil, err
		}
		s.SetPedals(l)
		return l, nil
	})

	d.Register(CmdTick, func(e dispatcher.Event) (any, error) {
		dt, err := strconv.ParseFloat(e.Arg(0), 64)
		if err != nil {
			return nil, fmt.Errorf("tick: bad dt %q: %w", e.Arg(0), err)
		}
		return s.Step(dt)
	})
}

// RegisterKeyHandlers lets a front end send raw key names and have b decide
// what they mean. :KEYS:HELD: takes every key currently down and sets the
// pedals; :KEY:PRESS: performs the action bound to one key.
func RegisterKeyHandlers(d *dispatcher.Dispatcher, s *Session, b input.Bindings) {
	d.Register(CmdKeysHeld, func(e dispatcher.Event) (any, error) {
		l := input.Levels(b.Held(e.Args...))
		s.SetPedals(l)
		return l, nil
	})

	d.Register(CmdKeyPress, func(e dispatcher.Event) (any, error) {
		a := b.Action(e.Arg(0))
		if a.Kind == input.ActionNone {
			return nil, fmt.Errorf("key %q is not bound to an action", e.Arg(0))
		}
		if err := s.Apply(a); err != nil {
			return nil, err
		}
		return a.String(), nil
	}, dispatcher.Logged())
}

// parsePedals reads "clutch brake throttle [steering]".
func parsePedals(args []string) (input.PedalLevels, error) {
	if len(args) < 3 {
		return input.PedalLevels{}, fmt.Errorf("pedals: want clutch brake throttle [steering], got %d args", len(args))
	}
	vals := make([]int, 4)
	for i, a := range args {
		if i >= len(vals) {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return input.PedalLevels{}, fmt.Errorf("pedals: arg %d: %w", i, err)
		}
		vals[i] = n
	}
	return input.PedalLevels{Clutch: vals[0], Brake: vals[1], Throttle: vals[2], Steering: vals[3]}, nil
}
