package core

import "time"

// Position2D is a planar coordinate. Frames use EPSG:3857 metres; session
// origins use WGS84 degrees.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is the full observable state of the car after one tick.
type Frame struct {
	SessionID uint          `json:"sessionId"`
	Tick      uint64        `json:"tick"`
	Time      time.Time     `json:"time"`
	Elapsed   time.Duration `json:"elapsed"`

	EngineRunning bool    `json:"engineRunning"`
	Stalled       bool    `json:"stalled"`
	RoadSpeed     float64 `json:"roadSpeed"`
	EngineSpeed   float64 `json:"engineSpeed"`
	Gear          string  `json:"gear"`
	OptimalRPM    bool    `json:"optimalRpm"`
	Handbrake     bool    `json:"handbrake"`

	Clutch   int `json:"clutch"`
	Brake    int `json:"brake"`
	Throttle int `json:"throttle"`
	Steering int `json:"steering"`

	// Distance and Lateral are the renderer's offsets; Position is on the ground.
	Distance float64    `json:"distance"`
	Lateral  float64    `json:"lateral"`
	Position Position2D `json:"position"`

	Step          int  `json:"step"`
	TutorialShown bool `json:"tutorialShown"`
}
