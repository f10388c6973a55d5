package vehicle

import (
	"fmt"
	"strconv"
	"strings"
)

// Gear is the engaged gearbox position. Negative is reverse, zero is neutral.
type Gear int8

const (
	Reverse Gear = -1
	Neutral Gear = 0
	First   Gear = 1
	Second  Gear = 2
	Third   Gear = 3
	Fourth  Gear = 4
	Fifth   Gear = 5
)

// AllGears lists every selectable gear, reverse first.
var AllGears = []Gear{Reverse, Neutral, First, Second, Third, Fourth, Fifth}

// Valid reports whether g is a gearbox position.
func (g Gear) Valid() bool {
	return g >= Reverse && g <= Fifth
}

// Forward reports whether g is one of the forward gears.
func (g Gear) Forward() bool {
	return g >= First && g <= Fifth
}

// String renders g the way the gear indicator does: R, N, 1..5.
func (g Gear) String() string {
	switch {
	case g == Reverse:
		return "R"
	case g == Neutral:
		return "N"
	case g.Valid():
		return strconv.Itoa(int(g))
	default:
		return fmt.Sprintf("Gear(%d)", int8(g))
	}
}

// ParseGear accepts the indicator form (R, N, 1..5) or a signed number.
func ParseGear(s string) (Gear, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "R":
		return Reverse, nil
	case "N":
		return Neutral, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Neutral, fmt.Errorf("%w: %q", ErrInvalidGear, s)
	}
	g := Gear(n)
	if n < int(Reverse) || n > int(Fifth) {
		return Neutral, fmt.Errorf("%w: %d", ErrInvalidGear, n)
	}
	return g, nil
}
