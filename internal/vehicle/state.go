package vehicle

// State is a copy of every observable of a Model at one instant. Renderers and
// recorders read States so they never race the writer.
type State struct {
	EngineRunning    bool    `json:"engineRunning"`
	RoadSpeed        float64 `json:"roadSpeed"`
	EngineSpeed      float64 `json:"engineSpeed"`
	Gear             Gear    `json:"gear"`
	Clutch           int     `json:"clutch"`
	Brake            int     `json:"brake"`
	Throttle         int     `json:"throttle"`
	Steering         int     `json:"steering"`
	HandbrakeEngaged bool    `json:"handbrakeEngaged"`
	Distance         float64 `json:"distance"`
	Lateral          float64 `json:"lateral"`
	Stalled          bool    `json:"stalled"`
	OptimalRPM       bool    `json:"optimalRpm"`
}

// State snapshots the model.
func (m *Model) State() State {
	return State{
		EngineRunning:    m.engineRunning,
		RoadSpeed:        m.roadSpeed,
		EngineSpeed:      m.engineSpeed,
		Gear:             m.gear,
		Clutch:           m.clutch,
		Brake:            m.brake,
		Throttle:         m.throttle,
		Steering:         m.steering,
		HandbrakeEngaged: m.handbrake,
		Distance:         m.distance,
		Lateral:          m.lateral,
		Stalled:          m.stalled,
		OptimalRPM:       m.InOptimalBand(),
	}
}
