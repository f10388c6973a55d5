package session

import (
	"fmt"

	"github.com/stickshift/trainer/internal/input"
	"github.com/stickshift/trainer/internal/vehicle"
	"github.com/stickshift/trainer/pkg/core"
)

// Apply performs one edge-triggered driver action. A refused command returns
// the car's reason (for instance vehicle.ErrClutchNotDepressed) and leaves
// the car unchanged; callers usually just ignore it.
func (s *Session) Apply(a input.Action) error {
	switch a.Kind {
	case input.ActionNone:
		return nil
	case input.ActionToggleEngine:
		return s.ToggleEngine()
	case input.ActionSpace:
		s.Space()
		return nil
	case input.ActionGear:
		return s.EngageGear(a.Gear)
	case input.ActionToggleTutorial:
		s.ToggleTutorial()
		return nil
	case input.ActionQuit:
		return ErrQuit
	default:
		return fmt.Errorf("unknown action %d", a.Kind)
	}
}

// ToggleEngine stops a running engine or tries to start a stopped one.
func (s *Session) ToggleEngine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.car.EngineRunning() {
		s.stopEngine()
		return nil
	}
	return s.startEngine()
}

// StartEngine cranks the engine.
func (s *Session) StartEngine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startEngine()
}

// StopEngine switches the engine off.
func (s *Session) StopEngine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopEngine()
}

func (s *Session) startEngine() error {
	if err := s.car.StartEngineErr(); err != nil {
		return s.rejected("start_engine", err)
	}
	s.log.Info("engine started", "tick", s.tick)
	s.event(core.EventEngineStarted, "engine started", nil)
	return nil
}

func (s *Session) stopEngine() {
	wasRunning := s.car.EngineRunning()
	s.car.StopEngine()
	if wasRunning {
		s.log.Info("engine stopped", "tick", s.tick)
		s.event(core.EventEngineStopped, "engine stopped", nil)
	}
}

// EngageGear shifts into g.
func (s *Session) EngageGear(g vehicle.Gear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.car.Gear()
	if err := s.car.EngageGearErr(g); err != nil {
		return s.rejected("gear", err)
	}
	if from != g {
		s.event(core.EventGearChanged, g.String(), map[string]any{"from": from.String(), "to": g.String()})
	}
	return nil
}

// Space acknowledges the current step when it waits for the driver and
// toggles the handbrake otherwise. It reports whether the tutorial advanced.
func (s *Session) Space() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tut.CurrentStep().Manual {
		return s.advance("ack")
	}
	s.setHandbrake(!s.car.HandbrakeEngaged())
	return false
}

// Acknowledge advances a manual step whose condition holds.
func (s *Session) Acknowledge() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tut.CurrentStep().Manual {
		return false
	}
	return s.advance("ack")
}

// SetHandbrake engages or releases the handbrake.
func (s *Session) SetHandbrake(engaged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHandbrake(engaged)
}

// ToggleHandbrake flips the handbrake and returns its new state.
func (s *Session) ToggleHandbrake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHandbrake(!s.car.HandbrakeEngaged())
	return s.car.HandbrakeEngaged()
}

func (s *Session) setHandbrake(engaged bool) {
	if s.car.HandbrakeEngaged() == engaged {
		return
	}
	s.car.SetHandbrake(engaged)
	s.event(core.EventHandbrake, handbrakeWord(engaged), map[string]any{"engaged": engaged})
}

func handbrakeWord(engaged bool) string {
	if engaged {
		return "handbrake on"
	}
	return "handbrake off"
}

// ToggleTutorial shows or hides the tutorial panel.
func (s *Session) ToggleTutorial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	shown := s.tut.ToggleVisible()
	s.last.TutorialShown = shown
	s.event(core.EventTutorialToggled, "", map[string]any{"visible": shown})
	return shown
}
