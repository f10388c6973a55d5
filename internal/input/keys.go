// Package input turns held keys and key presses into pedal levels and driver
// actions. It knows nothing about windows or polling; callers hand it the
// names of the physical keys they observed.
package input

import (
	"fmt"
	"strings"
)

// Key is a logical control key.
type Key uint8

const (
	ClutchL1 Key = iota
	ClutchL2
	ClutchL3
	ClutchL4
	BrakeL1
	BrakeL2
	BrakeL3
	BrakeL4
	ThrottleL1
	ThrottleL2
	ThrottleL3
	ThrottleL4
	SteerLeft
	SteerRight

	numKeys
)

var keyNames = [numKeys]string{
	"clutch1", "clutch2", "clutch3", "clutch4",
	"brake1", "brake2", "brake3", "brake4",
	"throttle1", "throttle2", "throttle3", "throttle4",
	"left", "right",
}

func (k Key) String() string {
	if k < numKeys {
		return keyNames[k]
	}
	return fmt.Sprintf("Key(%d)", uint8(k))
}

// ParseKey resolves a logical key name such as "clutch3" or "left".
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range keyNames {
		if n == s {
			return Key(i), nil
		}
	}
	return 0, fmt.Errorf("unknown control key %q", s)
}

// KeySet is the set of logical keys held during one tick.
type KeySet uint32

// Keys builds a set from ks.
func Keys(ks ...Key) KeySet {
	var s KeySet
	for _, k := range ks {
		s = s.With(k)
	}
	return s
}

func (s KeySet) With(k Key) KeySet { return s | 1<<k }

func (s KeySet) Has(k Key) bool { return s&(1<<k) != 0 }

// PedalLevels are the continuous inputs of one tick.
type PedalLevels struct {
	Clutch   int `json:"clutch"`
	Brake    int `json:"brake"`
	Throttle int `json:"throttle"`
	Steering int `json:"steering"`
}

var (
	clutchChain   = [4]Key{ClutchL1, ClutchL2, ClutchL3, ClutchL4}
	brakeChain    = [4]Key{BrakeL1, BrakeL2, BrakeL3, BrakeL4}
	throttleChain = [4]Key{ThrottleL1, ThrottleL2, ThrottleL3, ThrottleL4}
)

// Levels maps held keys to pedal levels. A pedal reaches level N only while its
// first N keys are all held; a gap in the chain caps the level at the held
// prefix. Left steering wins when both arrows are held.
func Levels(held KeySet) PedalLevels {
	l := PedalLevels{
		Clutch:   chain(held, clutchChain),
		Brake:    chain(held, brakeChain),
		Throttle: chain(held, throttleChain),
	}
	switch {
	case held.Has(SteerLeft):
		l.Steering = -1
	case held.Has(SteerRight):
		l.Steering = 1
	}
	return l
}

func chain(held KeySet, keys [4]Key) int {
	n := 0
	for _, k := range keys {
		if !held.Has(k) {
			break
		}
		n++
	}
	return n
}
