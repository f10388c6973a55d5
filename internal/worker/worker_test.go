package worker

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/dispatcher"
	"github.com/stickshift/trainer/internal/logging"
	"github.com/stickshift/trainer/internal/session"
	"github.com/stickshift/trainer/internal/storage/memory"
	"github.com/stickshift/trainer/internal/vehicle"
	"github.com/stickshift/trainer/pkg/core"
)

// Compile-time interface check
var _ session.Recorder = (*Manager)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyBackend fails RecordFrames while failing is set.
type flakyBackend struct {
	mu       sync.Mutex
	failing  bool
	frames   []core.Frame
	events   []core.Event
	started  int
	ended    []core.Summary
	closed   bool
	lastTime time.Duration
	block    chan struct{} // RecordFrames waits on it when set
}

func (b *flakyBackend) Init() error  { return nil }
func (b *flakyBackend) Close() error { b.closed = true; return nil }
func (b *flakyBackend) StartSession(s *core.Session) error {
	b.started++
	s.ID = uint(b.started)
	return nil
}
func (b *flakyBackend) EndSession(sum core.Summary) error {
	b.ended = append(b.ended, sum)
	return nil
}
func (b *flakyBackend) RecordFrames(frames []core.Frame) error {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errors.New("disk full")
	}
	b.frames = append(b.frames, frames...)
	return nil
}
func (b *flakyBackend) RecordEvent(e *core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *e)
	return nil
}
func (b *flakyBackend) LastWriteDuration() time.Duration { return b.lastTime }

func (b *flakyBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

type fakeMirror struct {
	mu     sync.Mutex
	frames int
	events int
}

func (m *fakeMirror) WriteFrames(_ string, frames []core.Frame) error {
	m.mu.Lock()
	m.frames += len(frames)
	m.mu.Unlock()
	return nil
}

func (m *fakeMirror) WriteEvent(string, core.Event) error {
	m.mu.Lock()
	m.events++
	m.mu.Unlock()
	return errors.New("mirror down")
}

func newManager(b *flakyBackend, deps Dependencies) *Manager {
	deps.Backend = b
	deps.Logger = quietLogger()
	if deps.FlushInterval == 0 {
		deps.FlushInterval = time.Hour
	}
	return NewManager(deps)
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Dependencies{Backend: &flakyBackend{}})
	assert.Equal(t, time.Second, m.deps.FlushInterval)
	assert.Equal(t, 600, m.deps.BatchSize)
	assert.NotNil(t, m.deps.Logger)
}

func TestStart_AssignsID(t *testing.T) {
	b := &flakyBackend{}
	m := newManager(b, Dependencies{})

	s := &core.Session{UUID: "u"}
	require.NoError(t, m.Start(s))
	assert.Equal(t, uint(1), s.ID)
	assert.Equal(t, uint(1), m.Session().ID)
	assert.Error(t, m.Start(&core.Session{}), "second start")
	require.NoError(t, m.Finish(core.Summary{}))
}

func TestFinish_NotStarted(t *testing.T) {
	m := newManager(&flakyBackend{}, Dependencies{})
	assert.ErrorIs(t, m.Finish(core.Summary{}), ErrNotStarted)
}

func TestFinish_DrainsQueues(t *testing.T) {
	b := &flakyBackend{}
	mirror := &fakeMirror{}
	m := newManager(b, Dependencies{BatchSize: 4, Mirror: mirror})
	require.NoError(t, m.Start(&core.Session{UUID: "u"}))

	for i := 0; i < 10; i++ {
		m.RecordFrame(core.Frame{Tick: uint64(i)})
	}
	m.RecordEvent(core.Event{Kind: core.EventStalled})

	require.NoError(t, m.Finish(core.Summary{Frames: 10}))
	assert.Len(t, b.frames, 10)
	assert.Len(t, b.events, 1)
	require.Len(t, b.ended, 1)
	assert.Equal(t, uint(10), b.ended[0].Frames)
	assert.Equal(t, 10, mirror.frames)
	assert.Equal(t, 1, mirror.events, "mirror errors do not stop the writer")

	st := m.Stats()
	assert.Zero(t, st.QueueLength)
	assert.Equal(t, uint64(10), st.FramesWritten)
	assert.Equal(t, uint64(1), st.EventsWritten)
}

func TestRecordFrame_WakesWriterOnFullBatch(t *testing.T) {
	b := &flakyBackend{}
	m := newManager(b, Dependencies{BatchSize: 5})
	require.NoError(t, m.Start(&core.Session{}))
	defer m.Close()

	for i := 0; i < 5; i++ {
		m.RecordFrame(core.Frame{Tick: uint64(i)})
	}
	assert.Eventually(t, func() bool { return b.count() == 5 }, time.Second, 5*time.Millisecond)
}

func TestFlush_RequeuesOnBackendError(t *testing.T) {
	b := &flakyBackend{failing: true}
	m := newManager(b, Dependencies{BatchSize: 2})

	m.RecordFrame(core.Frame{Tick: 1})
	m.RecordFrame(core.Frame{Tick: 2})
	m.RecordFrame(core.Frame{Tick: 3})

	require.Error(t, m.Flush())
	assert.Equal(t, 3, m.Stats().QueueLength)

	b.failing = false
	require.NoError(t, m.Flush())
	require.Len(t, b.frames, 3)
	assert.Equal(t, uint64(1), b.frames[0].Tick, "order survives the retry")
}

func TestRecordFrame_DropsOldestWhenFull(t *testing.T) {
	b := &flakyBackend{}
	m := newManager(b, Dependencies{BatchSize: 100, QueueLimit: 3})

	for i := 1; i <= 5; i++ {
		m.RecordFrame(core.Frame{Tick: uint64(i)})
	}
	st := m.Stats()
	assert.Equal(t, 3, st.QueueLength)
	assert.Equal(t, uint64(2), st.FramesDropped)

	require.NoError(t, m.Flush())
	assert.Equal(t, uint64(3), b.frames[0].Tick)
}

func TestLastWriteDuration_PrefersBackend(t *testing.T) {
	b := &flakyBackend{lastTime: 42 * time.Millisecond}
	m := newManager(b, Dependencies{})
	assert.Equal(t, 42*time.Millisecond, m.LastWriteDuration())
}

func TestClose(t *testing.T) {
	b := &flakyBackend{}
	m := newManager(b, Dependencies{})
	require.NoError(t, m.Start(&core.Session{}))
	m.RecordFrame(core.Frame{Tick: 1})

	require.NoError(t, m.Close())
	assert.True(t, b.closed)
	assert.Len(t, b.frames, 1)
}

func TestRegisterHandlers(t *testing.T) {
	b := &flakyBackend{}
	m := newManager(b, Dependencies{})
	d, err := dispatcher.New(logging.NewDispatcherLogger(quietLogger()))
	require.NoError(t, err)
	defer d.Close()
	m.RegisterHandlers(d)

	m.RecordFrame(core.Frame{Tick: 1})
	res, err := d.Dispatch(dispatcher.Event{Command: CmdRecorderFlush})
	require.NoError(t, err)
	assert.Equal(t, "queued", res)

	assert.Eventually(t, func() bool {
		res, err := d.Dispatch(dispatcher.Event{Command: CmdRecorderStats})
		require.NoError(t, err)
		st, ok := res.(Stats)
		require.True(t, ok)
		return st.FramesWritten == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRegisterHandlers_FlushRunsAsync(t *testing.T) {
	release := make(chan struct{})
	b := &flakyBackend{block: release}
	m := newManager(b, Dependencies{})
	d, err := dispatcher.New(logging.NewDispatcherLogger(quietLogger()))
	require.NoError(t, err)
	m.RegisterHandlers(d)
	m.RecordFrame(core.Frame{Tick: 1})

	_, err = d.Dispatch(dispatcher.Event{Command: CmdRecorderFlush})
	require.NoError(t, err, "returns while the backend is still writing")

	close(release)
	d.Close()
	assert.Equal(t, 1, b.count(), "close waits for the queued flush")
}

// A session recorded through the worker ends up in the memory export.
func TestSessionRecording_EndToEnd(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	m := NewManager(Dependencies{Backend: backend, Logger: quietLogger(), FlushInterval: 10 * time.Millisecond, BatchSize: 8})

	s, err := session.New(session.Config{
		Params:   vehicle.DefaultParams(),
		Driver:   "sam",
		Recorder: m,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	info := s.Info()
	require.NoError(t, m.Start(&info))
	s.SetID(info.ID)

	for i := 0; i < 30; i++ {
		_, err := s.Step(1.0 / 60)
		require.NoError(t, err)
	}
	require.NoError(t, m.Finish(s.End()))

	export, err := memory.ReadExport(backend.GetExportedFilePath())
	require.NoError(t, err)
	assert.Len(t, export.Frames, 30)
	assert.Equal(t, uint(30), export.Summary.Frames)
}
