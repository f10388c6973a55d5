package tutorial

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/stickshift/trainer/internal/vehicle"
)

// StepError locates a bad step inside a script.
type StepError struct {
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Script is the on-disk form of a tutorial.
type Script struct {
	Steps []Step `json:"steps"`
}

// LoadScript decodes and validates a JSON script.
func LoadScript(r io.Reader) ([]Step, error) {
	var s Script
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode tutorial script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, ErrEmptyScript
	}
	for i, st := range s.Steps {
		if err := st.Condition.Validate(); err != nil {
			return nil, &StepError{Index: i, Err: err}
		}
	}
	return s.Steps, nil
}

// LoadScriptFile reads a script from path. An empty path yields the default script.
func LoadScriptFile(path string) ([]Step, error) {
	if path == "" {
		return DefaultScript(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tutorial script: %w", err)
	}
	defer f.Close()
	return LoadScript(f)
}

// WriteScript encodes steps in the format LoadScript reads.
func WriteScript(w io.Writer, steps []Step) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Script{Steps: steps})
}

// DefaultScript is the stock seven-step lesson: from a parked car to rolling
// at 10 km/h in first.
func DefaultScript() []Step {
	return []Step{
		{
			Title: "Welcome to the driving simulator!",
			Text: []string{
				"Learn to drive a manual car.",
				"",
				"Pedal controls (progressive):",
				"- Clutch: A, Z, E, R (light to full)",
				"- Brake: Q, S, D, F",
				"- Throttle: W, X, C, V",
				"",
				"Press SPACE to continue...",
			},
			Condition: Always(),
			Manual:    true,
		},
		{
			Title: "Step 1: Pre-start checks",
			Text: []string{
				"Before starting:",
				"1. Check the handbrake is on (green box)",
				"2. Check you are in neutral (N on the indicator)",
				"",
				"The handbrake is currently ON.",
				"Press 0 to select neutral if needed.",
				"",
				"Press SPACE when done...",
			},
			Condition: HandbrakeOnAndNeutral(),
			Manual:    true,
		},
		{
			Title: "Step 2: Start the engine",
			Text: []string{
				"To start the engine:",
				"1. Press the clutch all the way (A+Z+E+R)",
				"2. Press ENTER to start",
				"",
				"Hold A, then add Z, E and R.",
				"The clutch gauge must be at maximum.",
				"",
				"Start the engine...",
			},
			Condition: EngineRunning(),
		},
		{
			Title: "Step 3: Engage first gear",
			Text: []string{
				"Engine running! Now:",
				"1. Keep the clutch pressed (A+Z+E+R)",
				"2. Press 1 for first gear",
				"",
				"The gear indicator goes from N to 1.",
				"",
				"Engage first...",
			},
			Condition: GearEquals(vehicle.First),
		},
		{
			Title: "Step 4: Release the handbrake",
			Text: []string{
				"First gear engaged.",
				"",
				"Press SPACE to release",
				"the handbrake.",
				"",
				"Keep the clutch pressed!",
			},
			Condition: HandbrakeOff(),
		},
		{
			Title: "Step 5: Pull away smoothly",
			Text: []string{
				"This is the tricky part!",
				"",
				"1. Add a little throttle (W)",
				"2. Release the clutch SLOWLY",
				"   (let go of R, then E, then Z...)",
				"",
				"If you stall, start again!",
				"Goal: reach 10 km/h",
			},
			Condition: SpeedAtLeast(10),
		},
		{
			Title: "Well done! You are driving!",
			Text: []string{
				"Congratulations, you pulled away!",
				"",
				"Keep practising:",
				"- Shift to second around 20 km/h",
				"- Steer with the arrow keys",
				"- Brake with Q, S, D, F",
				"",
				"Drive safe!",
			},
			Condition: Always(),
		},
	}
}
