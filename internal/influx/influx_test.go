package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/pkg/core"
)

var at = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func lineProtocol(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Bucket: "trainer_frames"}, zerolog.Nop())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.Equal(t, []string{"trainer_frames", PerformanceBucket}, m.BucketNames)
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop())
	err := m.WritePoint("x", FramePoint("u", core.Frame{}))
	assert.Error(t, err)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "influx_backup.lp.gz")
	m := NewManager(config.InfluxConfig{
		Enabled:    true,
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		Org:        "driving-school",
		Bucket:     "trainer_frames",
		BackupPath: path,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	require.NoError(t, m.WriteFrames("sess-1", []core.Frame{{Tick: 1, Gear: "N", Time: at}, {Tick: 2, Gear: "1", Time: at}}))
	require.NoError(t, m.WriteEvent("sess-1", core.Event{Tick: 2, Kind: core.EventGearChanged, Time: at}))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "frame,gear=N,session=sess-1")
	assert.Contains(t, lines[2], "event,kind=gear_changed,session=sess-1")
}

func TestFramePoint(t *testing.T) {
	lp := lineProtocol(FramePoint("abc", core.Frame{
		Tick: 7, Time: at, Gear: "2", RoadSpeed: 12.5, EngineSpeed: 1800, Throttle: 2, Handbrake: true,
	}))
	assert.Contains(t, lp, "frame,gear=2,session=abc ")
	assert.Contains(t, lp, "road_speed=12.5")
	assert.Contains(t, lp, "throttle=2i")
	assert.Contains(t, lp, "handbrake=true")
	assert.Contains(t, lp, "tick=7i")
}

func TestEventPoint_Detail(t *testing.T) {
	lp := lineProtocol(EventPoint("abc", core.Event{
		Tick: 3, Time: at, Kind: core.EventStepAdvanced, Message: "next",
		Detail: map[string]any{"from": 1, "to": 2, "trigger": "auto", "odd": []int{1}},
	}))
	assert.Contains(t, lp, "event,kind=step_advanced,session=abc ")
	assert.Contains(t, lp, `detail_trigger="auto"`)
	assert.Contains(t, lp, "detail_to=2i")
	assert.Contains(t, lp, `detail_odd="[1]"`)
}

func TestPerformancePoint(t *testing.T) {
	lp := lineProtocol(PerformancePoint("abc", 4, 100, 2, 1500*time.Microsecond, at))
	assert.Contains(t, lp, "writer,session=abc ")
	assert.Contains(t, lp, "queue_length=4i")
	assert.Contains(t, lp, "frames_dropped=2i")
	assert.Contains(t, lp, "last_write_ms=1.5")
}
