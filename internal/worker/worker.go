// Package worker moves a session's frames and events off the tick loop and
// into the storage backend in batches, mirroring them to telemetry on the way.
package worker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stickshift/trainer/internal/queue"
	"github.com/stickshift/trainer/internal/storage"
	"github.com/stickshift/trainer/pkg/core"
)

// ErrNotStarted is returned by Finish before Start.
var ErrNotStarted = errors.New("recorder not started")

// Mirror receives a copy of everything written. Errors are logged, never retried.
type Mirror interface {
	WriteFrames(uuid string, frames []core.Frame) error
	WriteEvent(uuid string, e core.Event) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend       storage.Backend
	Mirror        Mirror
	Logger        *slog.Logger
	FlushInterval time.Duration
	BatchSize     int
	QueueLimit    int // frames kept while the backend lags; oldest are dropped
}

// Stats is a snapshot of the recording pipeline.
type Stats struct {
	QueueLength   int
	FramesWritten uint64
	FramesDropped uint64
	EventsWritten uint64
	LastWrite     time.Duration
}

// Manager implements session.Recorder. RecordFrame and RecordEvent never block.
type Manager struct {
	deps Dependencies

	frames *queue.Queue[core.Frame]
	events *queue.Queue[core.Event]

	session core.Session
	running bool
	mu      sync.Mutex // guards session, running
	flushMu sync.Mutex

	framesWritten atomic.Uint64
	eventsWritten atomic.Uint64
	lastWrite     atomic.Int64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = time.Second
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 600
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:   deps,
		frames: queue.NewBounded[core.Frame](deps.QueueLimit),
		events: queue.New[core.Event](),
		wake:   make(chan struct{}, 1),
	}
}

// Start registers s with the backend, which assigns s.ID, and starts the
// writer goroutine.
func (m *Manager) Start(s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("recorder already started")
	}
	if err := m.deps.Backend.StartSession(s); err != nil {
		return err
	}
	m.session = *s
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)

	m.deps.Logger.Info("recording started", "session", s.UUID, "id", s.ID)
	return nil
}

// RecordFrame queues a frame and wakes the writer once a batch is ready.
func (m *Manager) RecordFrame(f core.Frame) {
	if dropped := m.frames.Push(f); dropped > 0 {
		m.deps.Logger.Warn("frame queue full, dropped oldest", "dropped", dropped)
	}
	if m.frames.Len() >= m.deps.BatchSize {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// RecordEvent queues an event.
func (m *Manager) RecordEvent(e core.Event) {
	m.events.Push(e)
}

// Flush writes everything queued now.
func (m *Manager) Flush() error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	uuid := m.session.UUID
	m.mu.Unlock()

	start := time.Now()
	defer func() { m.lastWrite.Store(int64(time.Since(start))) }()

	for {
		batch := m.frames.PopN(m.deps.BatchSize)
		if len(batch) == 0 {
			break
		}
		if err := m.deps.Backend.RecordFrames(batch); err != nil {
			m.frames.PushFront(batch...)
			return err
		}
		m.framesWritten.Add(uint64(len(batch)))
		if m.deps.Mirror != nil {
			if err := m.deps.Mirror.WriteFrames(uuid, batch); err != nil {
				m.deps.Logger.Warn("mirror frames failed", "error", err)
			}
		}
	}

	for {
		e, ok := m.events.Pop()
		if !ok {
			break
		}
		if err := m.deps.Backend.RecordEvent(&e); err != nil {
			m.events.PushFront(e)
			return err
		}
		m.eventsWritten.Add(1)
		if m.deps.Mirror != nil {
			if err := m.deps.Mirror.WriteEvent(uuid, e); err != nil {
				m.deps.Logger.Warn("mirror event failed", "error", err)
			}
		}
	}
	return nil
}

// Finish stops the writer, drains the queues and ends the session in the backend.
func (m *Manager) Finish(sum core.Summary) error {
	if !m.stopLoop() {
		return ErrNotStarted
	}
	if err := m.Flush(); err != nil {
		return err
	}
	if err := m.deps.Backend.EndSession(sum); err != nil {
		return err
	}

	m.mu.Lock()
	uuid := m.session.UUID
	m.mu.Unlock()
	m.deps.Logger.Info("recording finished", "session", uuid, "frames", m.framesWritten.Load(), "dropped", m.frames.Dropped())
	return nil
}

// Close stops the writer, drains what it can and closes the backend.
func (m *Manager) Close() error {
	m.stopLoop()
	flushErr := m.Flush()
	closeErr := m.deps.Backend.Close()
	return errors.Join(flushErr, closeErr)
}

// Stats returns the pipeline counters.
func (m *Manager) Stats() Stats {
	return Stats{
		QueueLength:   m.frames.Len(),
		FramesWritten: m.framesWritten.Load(),
		FramesDropped: m.frames.Dropped(),
		EventsWritten: m.eventsWritten.Load(),
		LastWrite:     m.LastWriteDuration(),
	}
}

// Session returns the session being recorded.
func (m *Manager) Session() core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// WriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type WriteDurationProvider interface {
	LastWriteDuration() time.Duration
}

// LastWriteDuration prefers the backend's own measure; otherwise it is the
// duration of the last hand-off to the backend.
func (m *Manager) LastWriteDuration() time.Duration {
	if p, ok := m.deps.Backend.(WriteDurationProvider); ok {
		return p.LastWriteDuration()
	}
	return time.Duration(m.lastWrite.Load())
}

func (m *Manager) stopLoop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	return true
}

func (m *Manager) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-m.wake:
		}
		if err := m.Flush(); err != nil {
			m.deps.Logger.Error("flush failed, will retry", "error", err, "queued", m.frames.Len())
		}
	}
}
