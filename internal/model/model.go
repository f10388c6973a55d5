// Package model holds the gorm schema of the training log.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// DatabaseModels lists every table, in migration order.
var DatabaseModels = []any{
	&SessionRecord{},
	&FrameRecord{},
	&EventRecord{},
	&WriterPerformance{},
}

// SessionRecord is one sitting. The summary columns are filled at the end.
type SessionRecord struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	UUID      string     `json:"uuid" gorm:"size:36;uniqueIndex"`
	Driver    string     `json:"driver" gorm:"size:64;index:idx_session_driver"`
	Source    string     `json:"source" gorm:"size:64"`
	Script    string     `json:"script" gorm:"size:127"`
	TickRate  float64    `json:"tickRate"`
	StartTime time.Time  `json:"startTime" gorm:"type:timestamptz;NOT NULL;index:idx_session_start_time"`
	EndTime   *time.Time `json:"endTime" gorm:"type:timestamptz;default:NULL"`
	Origin    geom.Point `json:"origin"` // WGS84 lon/lat of the training ground

	Summary SessionSummary  `json:"summary" gorm:"embedded;embeddedPrefix:summary_"`
	Track   geom.LineString `json:"track"` // EPSG:3857
}

func (*SessionRecord) TableName() string {
	return "sessions"
}

// SessionSummary is embedded in SessionRecord.
type SessionSummary struct {
	Frames        uint    `json:"frames"`
	DurationMs    int64   `json:"durationMs"`
	Distance      float64 `json:"distance"`
	MaxSpeed      float64 `json:"maxSpeed"`
	Stalls        uint    `json:"stalls" gorm:"default:0"`
	StepsReached  int     `json:"stepsReached" gorm:"default:0"`
	TutorialSteps int     `json:"tutorialSteps"`
	Completed     bool    `json:"completed" gorm:"default:false"`
}

// FrameRecord is the car after one recorded tick.
type FrameRecord struct {
	ID        uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint          `json:"sessionId" gorm:"index:idx_frame_session_id"`
	Session   SessionRecord `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64        `json:"tick" gorm:"index:idx_frame_tick"`
	Time      time.Time     `json:"time" gorm:"type:timestamptz;"`
	ElapsedMs int64         `json:"elapsedMs"`

	EngineRunning bool    `json:"engineRunning"`
	Stalled       bool    `json:"stalled"`
	RoadSpeed     float64 `json:"roadSpeed"`
	EngineSpeed   float64 `json:"engineSpeed"`
	Gear          string  `json:"gear" gorm:"size:2"`
	OptimalRPM    bool    `json:"optimalRpm"`
	Handbrake     bool    `json:"handbrake"`

	Clutch   uint8 `json:"clutch"`
	Brake    uint8 `json:"brake"`
	Throttle uint8 `json:"throttle"`
	Steering int8  `json:"steering"`

	Distance float64    `json:"distance"`
	Lateral  float64    `json:"lateral"`
	Position geom.Point `json:"position"` // EPSG:3857

	Step          int  `json:"step"`
	TutorialShown bool `json:"tutorialShown"`
}

func (*FrameRecord) TableName() string {
	return "frames"
}

// EventRecord is a discrete occurrence; Detail is kind-specific.
type EventRecord struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_event_session_id"`
	Session   SessionRecord  `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;"`
	Kind      string         `json:"kind" gorm:"size:32;index:idx_event_kind"`
	Message   string         `json:"message" gorm:"size:255"`
	Detail    datatypes.JSON `json:"detail" gorm:"type:jsonb;default:'{}'"`
}

func (*EventRecord) TableName() string {
	return "events"
}

// WriterPerformance samples the recording pipeline.
type WriterPerformance struct {
	ID                  uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time                time.Time `json:"time" gorm:"type:timestamptz;index:idx_perf_time"`
	SessionID           uint      `json:"sessionId" gorm:"index:idx_perf_session_id"`
	QueueLength         int       `json:"queueLength"`
	FramesWritten       uint64    `json:"framesWritten"`
	FramesDropped       uint64    `json:"framesDropped"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

func (*WriterPerformance) TableName() string {
	return "writer_performances"
}
