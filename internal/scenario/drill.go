// Package scenario loads scripted driving drills written in Lua and replays
// them against a fresh session.
//
// A drill script builds a Drill with chained calls and returns it:
//
//	return Drill.new("first start")
//		:ack():ack()
//		:clutch(4):wait(0.1)
//		:start_engine()
//		:gear(1):wait(0.1)
//		:expect_running()
package scenario

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/stickshift/trainer/internal/vehicle"
)

const drillTypeName = "drill"

// ActionKind names one drill instruction.
type ActionKind string

const (
	ActClutch      ActionKind = "clutch"
	ActBrake       ActionKind = "brake"
	ActThrottle    ActionKind = "throttle"
	ActSteer       ActionKind = "steer"
	ActHandbrake   ActionKind = "handbrake"
	ActStartEngine ActionKind = "start_engine"
	ActStopEngine  ActionKind = "stop_engine"
	ActGear        ActionKind = "gear"
	ActAck         ActionKind = "ack"
	ActWait        ActionKind = "wait"

	ExpectSpeedAtLeast ActionKind = "expect_speed_at_least"
	ExpectSpeedBelow   ActionKind = "expect_speed_below"
	ExpectStalled      ActionKind = "expect_stalled"
	ExpectRunning      ActionKind = "expect_running"
	ExpectStep         ActionKind = "expect_step"
	ExpectGear         ActionKind = "expect_gear"
)

// Expectation reports whether k checks the car instead of driving it.
func (k ActionKind) Expectation() bool {
	return strings.HasPrefix(string(k), "expect_")
}

// Action is one recorded call. Only the fields relevant to Kind are set.
// Pedal levels above the car's PedalMax are clamped when applied.
type Action struct {
	Kind  ActionKind
	Level int          // pedal level, steering direction or tutorial step
	Value float64      // seconds for wait, km/h for speed expectations
	Gear  vehicle.Gear // gear and expect_gear
	On    bool         // handbrake
	Where string       // chunk:line of the call
}

// Drill is an ordered list of actions.
type Drill struct {
	Name    string
	Actions []Action
}

var errNotDrill = errors.New("drill script must return Drill")

// LoadDrillFile runs the script at path. A drill without a name takes the
// file's base name.
func LoadDrillFile(path string) (*Drill, error) {
	state := newState()
	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	d, err := runChunk(state)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.Name) == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return d, nil
}

// LoadDrillString runs src as a drill script named name.
func LoadDrillString(name, src string) (*Drill, error) {
	state := newState()
	if err := lua.LoadBuffer(state, src, name, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	d, err := runChunk(state)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.Name) == "" {
		d.Name = name
	}
	return d, nil
}

func newState() *lua.State {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerLuaTypes(state)
	return state
}

func runChunk(state *lua.State) (*Drill, error) {
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}
	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, errNotDrill
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	d, ok := ud.(*Drill)
	if !ok || d == nil {
		return nil, errNotDrill
	}
	return d, nil
}

func registerLuaTypes(state *lua.State) {
	lua.NewMetaTable(state, drillTypeName)
	state.NewTable()
	lua.SetFunctions(state, drillMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{{Name: "new", Function: drillNew}}, 0)
	state.SetGlobal("Drill")

	state.NewTable()
	state.PushString(vehicle.Reverse.String())
	state.SetField(-2, "R")
	state.PushString(vehicle.Neutral.String())
	state.SetField(-2, "N")
	state.SetGlobal("Gear")
}

func drillNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	state.PushUserData(&Drill{Name: name})
	lua.SetMetaTableNamed(state, drillTypeName)
	return 1
}

var drillMethods = []lua.RegistryFunction{
	{Name: "clutch", Function: pedalMethod(ActClutch)},
	{Name: "brake", Function: pedalMethod(ActBrake)},
	{Name: "throttle", Function: pedalMethod(ActThrottle)},
	{Name: "steer", Function: drillSteer},
	{Name: "handbrake", Function: drillHandbrake},
	{Name: "start_engine", Function: bareMethod(ActStartEngine)},
	{Name: "stop_engine", Function: bareMethod(ActStopEngine)},
	{Name: "gear", Function: gearMethod(ActGear)},
	{Name: "ack", Function: bareMethod(ActAck)},
	{Name: "wait", Function: drillWait},
	{Name: "expect_speed_at_least", Function: speedMethod(ExpectSpeedAtLeast)},
	{Name: "expect_speed_below", Function: speedMethod(ExpectSpeedBelow)},
	{Name: "expect_stalled", Function: bareMethod(ExpectStalled)},
	{Name: "expect_running", Function: bareMethod(ExpectRunning)},
	{Name: "expect_step", Function: drillExpectStep},
	{Name: "expect_gear", Function: gearMethod(ExpectGear)},
}

func checkDrill(state *lua.State) *Drill {
	ud := lua.CheckUserData(state, 1, drillTypeName)
	if d, ok := ud.(*Drill); ok && d != nil {
		return d
	}
	lua.ArgumentError(state, 1, "drill expected")
	return nil
}

// appendAction records a and leaves the drill on the stack so calls chain.
func appendAction(state *lua.State, d *Drill, a Action) int {
	lua.Where(state, 1)
	a.Where, _ = state.ToString(-1)
	state.Pop(1)
	a.Where = strings.TrimSuffix(a.Where, ":")
	d.Actions = append(d.Actions, a)
	state.PushValue(1)
	return 1
}

func bareMethod(kind ActionKind) lua.Function {
	return func(state *lua.State) int {
		d := checkDrill(state)
		return appendAction(state, d, Action{Kind: kind})
	}
}

func pedalMethod(kind ActionKind) lua.Function {
	return func(state *lua.State) int {
		d := checkDrill(state)
		level := lua.CheckInteger(state, 2)
		if level < 0 {
			lua.ArgumentError(state, 2, "pedal level must not be negative")
		}
		return appendAction(state, d, Action{Kind: kind, Level: level})
	}
}

// drillSteer accepts -1, 0, 1 or "left", "straight", "right".
func drillSteer(state *lua.State) int {
	d := checkDrill(state)
	var dir int
	if state.TypeOf(2) == lua.TypeString {
		s, _ := state.ToString(2)
		switch strings.ToLower(s) {
		case "left":
			dir = -1
		case "right":
			dir = 1
		case "straight", "":
			dir = 0
		default:
			lua.ArgumentError(state, 2, "left, straight or right expected")
		}
	} else {
		dir = lua.CheckInteger(state, 2)
		if dir < -1 || dir > 1 {
			lua.ArgumentError(state, 2, "steering must be -1, 0 or 1")
		}
	}
	return appendAction(state, d, Action{Kind: ActSteer, Level: dir})
}

func drillHandbrake(state *lua.State) int {
	d := checkDrill(state)
	on := true
	if !state.IsNoneOrNil(2) {
		lua.CheckType(state, 2, lua.TypeBoolean)
		on = state.ToBoolean(2)
	}
	return appendAction(state, d, Action{Kind: ActHandbrake, On: on})
}

func gearMethod(kind ActionKind) lua.Function {
	return func(state *lua.State) int {
		d := checkDrill(state)
		var g vehicle.Gear
		var err error
		if state.TypeOf(2) == lua.TypeNumber {
			n := lua.CheckInteger(state, 2)
			g = vehicle.Gear(n)
			if n < int(vehicle.Reverse) || n > int(vehicle.Fifth) {
				err = fmt.Errorf("%w: %d", vehicle.ErrInvalidGear, n)
			}
		} else {
			g, err = vehicle.ParseGear(lua.CheckString(state, 2))
		}
		if err != nil {
			lua.ArgumentError(state, 2, err.Error())
		}
		return appendAction(state, d, Action{Kind: kind, Gear: g})
	}
}

func drillWait(state *lua.State) int {
	d := checkDrill(state)
	secs := lua.CheckNumber(state, 2)
	if secs <= 0 {
		lua.ArgumentError(state, 2, "wait must be positive")
	}
	return appendAction(state, d, Action{Kind: ActWait, Value: secs})
}

func speedMethod(kind ActionKind) lua.Function {
	return func(state *lua.State) int {
		d := checkDrill(state)
		v := lua.CheckNumber(state, 2)
		return appendAction(state, d, Action{Kind: kind, Value: v})
	}
}

func drillExpectStep(state *lua.State) int {
	d := checkDrill(state)
	n := lua.CheckInteger(state, 2)
	if n < 0 {
		lua.ArgumentError(state, 2, "step must not be negative")
	}
	return appendAction(state, d, Action{Kind: ExpectStep, Level: n})
}
