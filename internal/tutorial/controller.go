// Package tutorial walks a driver through a linear script of steps. Each step
// carries a completion condition over the car; the controller only ever moves
// forward, one step at a time, and never touches the car itself.
package tutorial

import (
	"errors"
	"sync"
)

// ErrEmptyScript is returned when a controller is built without steps.
var ErrEmptyScript = errors.New("tutorial script has no steps")

// Step is one page of the tutorial. Title and Text are display payload only.
type Step struct {
	Title     string    `json:"title"`
	Text      []string  `json:"text"`
	Condition Condition `json:"condition"`
	// Manual steps advance only when the driver acknowledges them.
	Manual bool `json:"manual,omitempty"`
}

// Controller holds the position in a script.
type Controller struct {
	mu      sync.RWMutex
	steps   []Step
	index   int
	visible bool
}

// New builds a controller positioned on the first step, visible.
func New(steps []Step) (*Controller, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyScript
	}
	for i, s := range steps {
		if err := s.Condition.Validate(); err != nil {
			return nil, &StepError{Index: i, Err: err}
		}
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &Controller{steps: cp, visible: true}, nil
}

// TryAdvance moves to the next step if the current one is not the last and its
// condition holds for v. It advances at most one step per call.
func (c *Controller) TryAdvance(v Vehicle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index >= len(c.steps)-1 {
		return false
	}
	if !c.steps[c.index].Condition.Evaluate(v) {
		return false
	}
	c.index++
	return true
}

// CurrentStep returns the step being shown.
func (c *Controller) CurrentStep() Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.steps[c.index]
}

func (c *Controller) Index() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

func (c *Controller) Len() int { return len(c.steps) }

// Finished reports whether the terminal step has been reached.
func (c *Controller) Finished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index == len(c.steps)-1
}

func (c *Controller) Visible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visible
}

// ToggleVisible flips visibility and returns the new value.
func (c *Controller) ToggleVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = !c.visible
	return c.visible
}
