// Package memory keeps a session in memory and exports it as a v1 JSON
// document when the session ends.
package memory

import (
	"sync"
	"time"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/pkg/core"
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	summary core.Summary

	frames []core.Frame
	events []core.Event

	ended          []core.SessionListing
	idCounter      uint
	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops anything left over
// from the previous one.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	cp := *s
	b.session = &cp
	b.summary = core.Summary{}
	b.frames = nil
	b.events = nil
	return nil
}

// EndSession stores the summary and writes the export file.
func (b *Backend) EndSession(sum core.Summary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	b.summary = sum
	if b.session.EndTime.IsZero() {
		b.session.EndTime = b.session.StartTime.Add(sum.Duration)
	}

	if err := b.exportJSON(); err != nil {
		return err
	}

	b.ended = append(b.ended, core.SessionListing{Session: *b.session, Summary: sum})
	b.session = nil
	return nil
}

// RecordFrames appends frames to the current session.
func (b *Backend) RecordFrames(frames []core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	for _, f := range frames {
		if f.SessionID == 0 {
			f.SessionID = b.session.ID
		}
		b.frames = append(b.frames, f)
	}
	return nil
}

// RecordEvent appends an event to the current session.
func (b *Backend) RecordEvent(e *core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	cp := *e
	if cp.SessionID == 0 {
		cp.SessionID = b.session.ID
	}
	b.events = append(b.events, cp)
	return nil
}

// ListSessions returns the sessions ended by this backend, newest first.
func (b *Backend) ListSessions(limit int) ([]core.SessionListing, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.SessionListing, 0, len(b.ended))
	for i := len(b.ended) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, b.ended[i])
	}
	return out, nil
}

// FrameCount returns the frames held for the current session.
func (b *Backend) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// GetExportedFilePath returns the path of the last exported file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported file for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}

func sessionName(s *core.Session) string {
	if s.Driver != "" {
		return s.Driver
	}
	return "session"
}

func durationSeconds(d time.Duration) float64 {
	return d.Seconds()
}
