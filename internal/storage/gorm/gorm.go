// Package gormstorage implements storage.Backend on any gorm database. Frames
// and events are queued and written in batches by a background goroutine;
// session rows are written synchronously so their IDs are known up front.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stickshift/trainer/internal/database"
	"github.com/stickshift/trainer/internal/model"
	"github.com/stickshift/trainer/internal/model/convert"
	"github.com/stickshift/trainer/internal/queue"
	"github.com/stickshift/trainer/pkg/core"
)

// DefaultWriteInterval is used when Dependencies.WriteInterval is zero.
const DefaultWriteInterval = time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        zerolog.Logger
	WriteInterval time.Duration
}

// Stats is a snapshot of the writer.
type Stats struct {
	FramesQueued  int
	EventsQueued  int
	FramesWritten uint64
	EventsWritten uint64
	LastWrite     time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps Dependencies

	frames *queue.Queue[model.FrameRecord]
	events *queue.Queue[model.EventRecord]

	sessionID atomic.Uint64
	writeMu   sync.Mutex

	framesWritten atomic.Uint64
	eventsWritten atomic.Uint64
	lastWrite     atomic.Int64

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		frames: queue.New[model.FrameRecord](),
		events: queue.New[model.EventRecord](),
	}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB, b.deps.Logger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.doneChan = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer after a final flush. It is safe to call more than once.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.doneChan
		err = b.Flush()
	})
	return err
}

// StartSession inserts the session row and assigns its ID.
func (b *Backend) StartSession(s *core.Session) error {
	rec := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = rec.ID
	b.sessionID.Store(uint64(rec.ID))
	b.deps.Logger.Info().Uint("id", rec.ID).Str("uuid", rec.UUID).Str("driver", rec.Driver).Msg("Session started")
	return nil
}

// EndSession flushes everything queued and stores the summary.
func (b *Backend) EndSession(sum core.Summary) error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return core.ErrNoSession
	}
	if err := b.Flush(); err != nil {
		return err
	}

	var rec model.SessionRecord
	if err := b.deps.DB.First(&rec, id).Error; err != nil {
		return fmt.Errorf("failed to load session %d: %w", id, err)
	}
	end := rec.StartTime.Add(sum.Duration)
	rec.EndTime = &end
	rec.Summary = convert.CoreToSummary(sum)
	rec.Track = convert.CoreToTrack(sum)
	if err := b.deps.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to update session %d: %w", id, err)
	}

	b.sessionID.Store(0)
	b.deps.Logger.Info().Uint("id", id).Uint("frames", sum.Frames).Bool("completed", sum.Completed).Msg("Session ended")
	return nil
}

// RecordFrames converts and queues frames for the current session.
func (b *Backend) RecordFrames(frames []core.Frame) error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return core.ErrNoSession
	}
	recs := convert.CoreToFrames(frames)
	for i := range recs {
		if recs[i].SessionID == 0 {
			recs[i].SessionID = id
		}
	}
	b.frames.Push(recs...)
	return nil
}

// RecordEvent converts and queues an event for the current session.
func (b *Backend) RecordEvent(e *core.Event) error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return core.ErrNoSession
	}
	rec := convert.CoreToEvent(*e)
	if rec.SessionID == 0 {
		rec.SessionID = id
	}
	b.events.Push(rec)
	return nil
}

// Flush writes every queued row now.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	n, err := writeQueue(b.deps.DB, b.frames, "frames", b.deps.Logger)
	b.framesWritten.Add(uint64(n))
	if err != nil {
		return err
	}
	n, err = writeQueue(b.deps.DB, b.events, "events", b.deps.Logger)
	b.eventsWritten.Add(uint64(n))
	if err != nil {
		return err
	}
	b.lastWrite.Store(int64(time.Since(start)))
	return nil
}

// Stats returns queue lengths and write counters.
func (b *Backend) Stats() Stats {
	return Stats{
		FramesQueued:  b.frames.Len(),
		EventsQueued:  b.events.Len(),
		FramesWritten: b.framesWritten.Load(),
		EventsWritten: b.eventsWritten.Load(),
		LastWrite:     time.Duration(b.lastWrite.Load()),
	}
}

// LastWriteDuration is how long the last flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// ListSessions returns the newest sessions first. limit <= 0 means all.
func (b *Backend) ListSessions(limit int) ([]core.SessionListing, error) {
	var recs []model.SessionRecord
	q := b.deps.DB.Order("start_time DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]core.SessionListing, 0, len(recs))
	for _, r := range recs {
		s, sum := convert.SessionToCore(r)
		out = append(out, core.SessionListing{Session: s, Summary: sum})
	}
	return out, nil
}

// Frames reads back the stored frames of a session in tick order.
func (b *Backend) Frames(sessionID uint) ([]core.Frame, error) {
	var recs []model.FrameRecord
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("tick").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	out := make([]core.Frame, len(recs))
	for i, r := range recs {
		out[i] = convert.FrameToCore(r)
	}
	return out, nil
}

// Events reads back the stored events of a session in tick order.
func (b *Backend) Events(sessionID uint) ([]core.Event, error) {
	var recs []model.EventRecord
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("tick, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	out := make([]core.Event, len(recs))
	for i, r := range recs {
		out[i] = convert.EventToCore(r)
	}
	return out, nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) (int, error) {
	if q.Empty() {
		return 0, nil
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.PushFront(items...)
		log.Error().Err(err).Str("table", name).Int("count", len(items)).Msg("Error writing batch, requeued")
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.PushFront(items...)
		return 0, fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return len(items), nil
}

func (b *Backend) writeLoop() {
	defer close(b.doneChan)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Warn().Err(err).Msg("Periodic flush failed")
			} else if d := time.Duration(b.lastWrite.Load()); d > 0 {
				b.deps.Logger.Trace().Dur("duration", d).Msg("Flushed queues")
			}
		}
	}
}
