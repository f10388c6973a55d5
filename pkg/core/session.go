// Package core defines the storage-agnostic records of a training session:
// the session itself, per-tick frames and discrete events. Every storage
// backend, the telemetry mirror and the exporters speak these types.
package core

import (
	"errors"
	"time"
)

// ErrNoSession is returned when recording without a started session.
var ErrNoSession = errors.New("no active session")

// Session is one sitting of a driver at the trainer.
type Session struct {
	ID        uint
	UUID      string
	Driver    string
	Source    string // "interactive", "drill:<name>"
	Script    string // tutorial script name
	TickRate  float64
	StartTime time.Time
	EndTime   time.Time
	Origin    Position2D // training ground origin, WGS84 lon/lat
}

// Summary is computed when a session ends.
type Summary struct {
	Frames        uint
	Duration      time.Duration
	Distance      float64 // metres
	MaxSpeed      float64 // km/h
	Stalls        uint
	StepsReached  int
	TutorialSteps int
	Completed     bool
	Track         []Position2D // recorded frame positions, EPSG:3857
}

// UploadMetadata accompanies an exported session uploaded to the instructor server.
type UploadMetadata struct {
	SessionName string
	Driver      string
	Duration    float64 // seconds
	Tag         string
}

// SessionListing is a stored session as read back from a backend.
type SessionListing struct {
	Session Session
	Summary Summary
}
