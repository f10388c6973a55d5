// Package monitor samples the recording pipeline while a session runs. Each
// sample is written to a status file, appended to writer_performances and
// optionally mirrored to InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"gorm.io/gorm"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/influx"
	"github.com/stickshift/trainer/internal/model"
	"github.com/stickshift/trainer/internal/worker"
	"github.com/stickshift/trainer/pkg/core"
)

// Source is what the monitor samples; *worker.Manager implements it.
type Source interface {
	Stats() worker.Stats
	Session() core.Session
}

// PointWriter receives performance points; *influx.Manager implements it.
type PointWriter interface {
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source   Source
	DB       *gorm.DB    // optional
	Influx   PointWriter // optional
	Snapshot func() core.Frame
	Logger   *slog.Logger
	Config   config.MonitorConfig
}

// Status is one sample as written to the status file.
type Status struct {
	Time    time.Time    `json:"time"`
	Session string       `json:"session"`
	Writer  worker.Stats `json:"writer"`
	Car     *CarStatus   `json:"car,omitempty"`
}

// CarStatus is the short form of the latest frame.
type CarStatus struct {
	Tick        uint64  `json:"tick"`
	Gear        string  `json:"gear"`
	RoadSpeed   float64 `json:"roadSpeed"`
	EngineSpeed float64 `json:"engineSpeed"`
	Step        int     `json:"step"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.Interval <= 0 {
		deps.Config.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus takes a sample. The first line of output is the JSON status.
func (s *Service) GetProgramStatus(now time.Time) (output []string, perf model.WriterPerformance) {
	stats := s.deps.Source.Stats()
	sess := s.deps.Source.Session()

	st := Status{Time: now, Session: sess.UUID, Writer: stats}
	if s.deps.Snapshot != nil {
		f := s.deps.Snapshot()
		st.Car = &CarStatus{
			Tick:        f.Tick,
			Gear:        f.Gear,
			RoadSpeed:   f.RoadSpeed,
			EngineSpeed: f.EngineSpeed,
			Step:        f.Step,
		}
	}

	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(raw))
	output = append(output, fmt.Sprintf("last write: %.3f ms", float64(stats.LastWrite.Microseconds())/1000))

	perf = model.WriterPerformance{
		Time:                now,
		SessionID:           sess.ID,
		QueueLength:         stats.QueueLength,
		FramesWritten:       stats.FramesWritten,
		FramesDropped:       stats.FramesDropped,
		LastWriteDurationMs: float32(stats.LastWrite.Microseconds()) / 1000,
	}
	return output, perf
}

// Sample takes one sample and writes it everywhere configured.
func (s *Service) Sample(statusFile *os.File) {
	now := time.Now()
	lines, perf := s.GetProgramStatus(now)

	if statusFile != nil {
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		for _, line := range lines {
			_, _ = statusFile.WriteString(line + "\n")
		}
	}

	if s.deps.DB != nil && perf.SessionID != 0 {
		if err := s.deps.DB.Create(&perf).Error; err != nil {
			s.deps.Logger.Error("Error writing perf model", "error", err)
		}
	}

	if s.deps.Influx != nil {
		sess := s.deps.Source.Session()
		p := influx.PerformancePoint(sess.UUID, perf.QueueLength, perf.FramesWritten, perf.FramesDropped,
			time.Duration(perf.LastWriteDurationMs*float32(time.Millisecond)), now)
		if err := s.deps.Influx.WritePoint(influx.PerformanceBucket, p); err != nil {
			s.deps.Logger.Warn("Error writing perf point", "error", err)
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if path := s.deps.Config.StatusFile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if statusFile != nil {
			defer statusFile.Close()
		}
		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Config.Interval)

		ticker := time.NewTicker(s.deps.Config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Sample(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
