package monitor

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/database"
	"github.com/stickshift/trainer/internal/influx"
	"github.com/stickshift/trainer/internal/model"
	"github.com/stickshift/trainer/internal/worker"
	"github.com/stickshift/trainer/pkg/core"
)

type fakeSource struct {
	stats worker.Stats
	sess  core.Session
}

func (f fakeSource) Stats() worker.Stats   { return f.stats }
func (f fakeSource) Session() core.Session { return f.sess }

type fakeInflux struct {
	mu      sync.Mutex
	buckets []string
}

func (f *fakeInflux) WritePoint(bucket string, _ *influxdb2_write.Point) error {
	f.mu.Lock()
	f.buckets = append(f.buckets, bucket)
	f.mu.Unlock()
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var src = fakeSource{
	stats: worker.Stats{QueueLength: 3, FramesWritten: 120, FramesDropped: 1, LastWrite: 2500 * time.Microsecond},
	sess:  core.Session{ID: 7, UUID: "u-7"},
}

func TestGetProgramStatus(t *testing.T) {
	s := NewService(Dependencies{
		Source:   src,
		Logger:   quiet(),
		Snapshot: func() core.Frame { return core.Frame{Tick: 9, Gear: "2", RoadSpeed: 14} },
	})
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	lines, perf := s.GetProgramStatus(now)
	require.Len(t, lines, 2)

	var st Status
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &st))
	assert.Equal(t, "u-7", st.Session)
	assert.Equal(t, 3, st.Writer.QueueLength)
	require.NotNil(t, st.Car)
	assert.Equal(t, "2", st.Car.Gear)
	assert.Equal(t, "last write: 2.500 ms", lines[1])

	assert.Equal(t, uint(7), perf.SessionID)
	assert.Equal(t, uint64(120), perf.FramesWritten)
	assert.Equal(t, float32(2.5), perf.LastWriteDurationMs)
	assert.Equal(t, now, perf.Time)
}

func TestSample_WritesEverywhere(t *testing.T) {
	db, err := database.OpenSQLiteMemory("monitor_sample")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, zerolog.Nop()))
	fi := &fakeInflux{}

	path := filepath.Join(t.TempDir(), "status.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	s := NewService(Dependencies{Source: src, DB: db, Influx: fi, Logger: quiet()})
	s.Sample(f)
	s.Sample(f)

	var count int64
	require.NoError(t, db.Model(&model.WriterPerformance{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, []string{influx.PerformanceBucket, influx.PerformanceBucket}, fi.buckets)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(body), `"session"`), "status file holds only the latest sample")
}

func TestSample_SkipsDBWithoutSession(t *testing.T) {
	db, err := database.OpenSQLiteMemory("monitor_nosession")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, zerolog.Nop()))

	s := NewService(Dependencies{Source: fakeSource{}, DB: db, Logger: quiet()})
	s.Sample(nil)

	var count int64
	require.NoError(t, db.Model(&model.WriterPerformance{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "status.txt")
	s := NewService(Dependencies{
		Source: src,
		Logger: quiet(),
		Config: config.MonitorConfig{Interval: 5 * time.Millisecond, StatusFile: path},
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		body, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(body), "u-7")
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(Dependencies{Source: src})
	assert.Equal(t, time.Second, s.deps.Config.Interval)
	assert.NotNil(t, s.deps.Logger)
}
