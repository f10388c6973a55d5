package memory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/pkg/core"
)

var start = time.Date(2026, 4, 1, 8, 15, 30, 0, time.UTC)

func newSession(driver string) *core.Session {
	return &core.Session{UUID: "u-" + driver, Driver: driver, Source: "interactive", StartTime: start}
}

func TestRecordWithoutSession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())
	defer b.Close()

	assert.ErrorIs(t, b.RecordFrames([]core.Frame{{Tick: 1}}), core.ErrNoSession)
	assert.ErrorIs(t, b.RecordEvent(&core.Event{}), core.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(core.Summary{}), core.ErrNoSession)
}

func TestStartSession_AssignsIncreasingIDs(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	s1, s2 := newSession("a"), newSession("b")
	require.NoError(t, b.StartSession(s1))
	require.NoError(t, b.StartSession(s2))
	assert.Equal(t, uint(1), s1.ID)
	assert.Equal(t, uint(2), s2.ID)
}

func TestRecordAndExport(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})

	s := newSession("sam lee")
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordFrames([]core.Frame{{Tick: 1, Gear: "N"}, {Tick: 2, Gear: "1"}}))
	require.NoError(t, b.RecordEvent(&core.Event{Tick: 2, Kind: core.EventGearChanged}))
	assert.Equal(t, 2, b.FrameCount())

	require.NoError(t, b.EndSession(core.Summary{Frames: 2, Duration: 2 * time.Second, Completed: true}))

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "sam_lee_20260401_081530.json"), path)

	meta := b.GetExportMetadata()
	assert.Equal(t, "sam_lee", meta.SessionName)
	assert.Equal(t, "sam lee", meta.Driver)
	assert.Equal(t, 2.0, meta.Duration)
	assert.Equal(t, "interactive", meta.Tag)

	export, err := ReadExport(path)
	require.NoError(t, err)
	assert.Equal(t, "u-sam lee", export.SessionUUID)
	assert.Len(t, export.Frames, 2)
	require.Len(t, export.Events, 1)
	assert.Equal(t, "gear_changed", export.Events[0].Kind)
	assert.Equal(t, "2026-04-01T08:15:32Z", export.EndTime)
	assert.True(t, export.Summary.Completed)
}

func TestExport_Compressed(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	require.NoError(t, b.StartSession(&core.Session{StartTime: start}))
	require.NoError(t, b.RecordFrames([]core.Frame{{Tick: 1}}))
	require.NoError(t, b.EndSession(core.Summary{Frames: 1}))

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "session_20260401_081530.json.gz"), path)

	export, err := ReadExport(path)
	require.NoError(t, err)
	assert.Len(t, export.Frames, 1)
}

func TestReadExport_Missing(t *testing.T) {
	_, err := ReadExport(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestStartSession_ResetsData(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	require.NoError(t, b.StartSession(newSession("a")))
	require.NoError(t, b.RecordFrames([]core.Frame{{Tick: 1}}))
	require.NoError(t, b.StartSession(newSession("b")))
	assert.Zero(t, b.FrameCount())
}

func TestListSessions(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	for _, d := range []string{"a", "b", "c"} {
		s := newSession(d)
		s.StartTime = start.Add(time.Duration(len(d)) * time.Minute)
		require.NoError(t, b.StartSession(s))
		require.NoError(t, b.EndSession(core.Summary{}))
	}

	all, err := b.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Session.Driver)

	two, err := b.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestRecordFrames_Concurrent(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(newSession("a")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.RecordFrames([]core.Frame{{Tick: uint64(j)}})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, b.FrameCount())
}

func TestListExports(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	for i, d := range []string{"early", "late"} {
		s := newSession(d)
		s.StartTime = start.Add(time.Duration(i) * time.Hour)
		require.NoError(t, b.StartSession(s))
		require.NoError(t, b.RecordFrames([]core.Frame{{Tick: 1}}))
		require.NoError(t, b.EndSession(core.Summary{Frames: 1, Duration: 90 * time.Second, Stalls: uint(i)}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	all, err := ListExports(dir, 0)
	require.NoError(t, err)
	require.Len(t, all, 2, "unreadable and foreign files are skipped")
	assert.Equal(t, "late", all[0].Session.Driver)
	assert.Equal(t, start.Add(time.Hour), all[0].Session.StartTime)
	assert.Equal(t, 90*time.Second, all[0].Summary.Duration)
	assert.Equal(t, uint(1), all[0].Summary.Stalls)
	assert.Equal(t, "early", all[1].Session.Driver)

	one, err := ListExports(dir, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = ListExports(filepath.Join(dir, "missing"), 0)
	assert.Error(t, err)
}
