package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/dispatcher"
	"github.com/stickshift/trainer/internal/input"
	"github.com/stickshift/trainer/internal/logging"
	"github.com/stickshift/trainer/internal/session"
	"github.com/stickshift/trainer/internal/tutorial"
	"github.com/stickshift/trainer/internal/vehicle"
)

const firstStart = `
return Drill.new("first start")
	:ack():ack()
	:clutch(4):wait(0.05)
	:start_engine():wait(0.05)
	:gear(1):wait(0.05)
	:handbrake(false):wait(0.05)
	:clutch(0):throttle(4):wait(2)
	:expect_speed_at_least(10)
	:expect_step(6)
`

// writeWorkspace lays out a config dir whose logs and recordings stay in
// the test's temp dir.
func writeWorkspace(t *testing.T, extra string) string {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	body := fmt.Sprintf(`{
		"logsDir": %q,
		"storage": {
			"type": "memory",
			"memory": {"outputDir": %q, "compressOutput": false},
			"sqlite": {"dumpPath": %q, "dumpInterval": "0s"}
		}%s
	}`, filepath.Join(dir, "logs"), filepath.Join(dir, "recordings"),
		filepath.Join(dir, "recordings", "trainer.db"), extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0644))
	return dir
}

func TestParseDrillConfig(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		fs := flag.NewFlagSet("drill", flag.ContinueOnError)
		cfg, err := ParseDrillConfig(fs, []string{"-scenario", "d.lua", "-dt", "0.01", "-assert=false", "-driver", "kim", "-config", "/etc/trainer"})
		require.NoError(t, err)
		assert.Equal(t, "d.lua", cfg.Scenario)
		assert.Equal(t, 0.01, cfg.DT)
		assert.False(t, cfg.Assertions)
		assert.Equal(t, "kim", cfg.Driver)
		assert.Equal(t, "/etc/trainer", cfg.ConfigDir)
		assert.Equal(t, 5*time.Minute, cfg.Timeout)
	})

	t.Run("env defaults", func(t *testing.T) {
		t.Setenv("TRAINER_DRILL_FILE", "env.lua")
		t.Setenv("TRAINER_DRILL_TIMEOUT", "30s")
		t.Setenv("TRAINER_CONFIG_DIR", "/srv")
		fs := flag.NewFlagSet("drill", flag.ContinueOnError)
		cfg, err := ParseDrillConfig(fs, nil)
		require.NoError(t, err)
		assert.Equal(t, "env.lua", cfg.Scenario)
		assert.InDelta(t, 1.0/60, cfg.DT, 1e-12)
		assert.True(t, cfg.Assertions)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, "/srv", cfg.ConfigDir)
	})

	t.Run("positional scenario", func(t *testing.T) {
		fs := flag.NewFlagSet("drill", flag.ContinueOnError)
		cfg, err := ParseDrillConfig(fs, []string{"-verbose", "hill.lua"})
		require.NoError(t, err)
		assert.Equal(t, "hill.lua", cfg.Scenario)
		assert.True(t, cfg.Verbose)
	})

	t.Run("errors", func(t *testing.T) {
		fs := flag.NewFlagSet("drill", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, err := ParseDrillConfig(fs, nil)
		assert.ErrorContains(t, err, "scenario path is required")

		fs = flag.NewFlagSet("drill", flag.ContinueOnError)
		_, err = ParseDrillConfig(fs, []string{"-scenario", "x.lua", "-dt", "0"})
		assert.ErrorContains(t, err, "dt must be positive")

		t.Setenv("TRAINER_DRILL_DT", "fast")
		fs = flag.NewFlagSet("drill", flag.ContinueOnError)
		_, err = ParseDrillConfig(fs, []string{"-scenario", "x.lua"})
		assert.ErrorContains(t, err, "parse env")
	})
}

func TestParseSessionsAndDriveConfig(t *testing.T) {
	t.Setenv("TRAINER_SESSIONS_LIMIT", "5")
	sc, err := ParseSessionsConfig(flag.NewFlagSet("sessions", flag.ContinueOnError), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, sc.Limit)
	assert.Equal(t, ".", sc.ConfigDir)

	dc, err := ParseDriveConfig(flag.NewFlagSet("drive", flag.ContinueOnError), []string{"-echo", "-driver", "sam"})
	require.NoError(t, err)
	assert.True(t, dc.Echo)
	assert.Equal(t, "sam", dc.Driver)
}

func TestRunDumpPath(t *testing.T) {
	assert.Equal(t, filepath.Join("recordings", "trainer_20260401_081530.db"),
		runDumpPath(filepath.Join("recordings", "trainer.db"), "20260401_081530"))
	assert.Equal(t, "dump_x", runDumpPath("dump", "x"))
}

func TestRun_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), nil, nil, &out, &errOut), errUsage)
	assert.Contains(t, errOut.String(), "Usage: trainer")

	errOut.Reset()
	assert.ErrorIs(t, run(context.Background(), []string{"fly"}, nil, &out, &errOut), errUsage)
	assert.Contains(t, errOut.String(), `unknown command "fly"`)

	require.NoError(t, run(context.Background(), []string{"version"}, nil, &out, &errOut))
	assert.Contains(t, out.String(), "trainer "+CurrentVersion)
}

func TestTutorialCommand(t *testing.T) {
	dir := writeWorkspace(t, "")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"tutorial", "-config", dir}, nil, &out, io.Discard))

	steps, err := tutorial.LoadScript(&out)
	require.NoError(t, err)
	assert.Equal(t, len(tutorial.DefaultScript()), len(steps))
	assert.Equal(t, tutorial.DefaultScript()[0].Title, steps[0].Title)
}

func TestDrillCommand_RecordsAndLists(t *testing.T) {
	dir := writeWorkspace(t, "")
	script := filepath.Join(dir, "first_start.lua")
	require.NoError(t, os.WriteFile(script, []byte(firstStart), 0644))

	var out bytes.Buffer
	err := run(context.Background(), []string{"drill", "-config", dir, "-scenario", script, "-driver", "kim"}, nil, &out, io.Discard)
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), `drill "first start": 132 frames`)
	assert.Contains(t, out.String(), "2/2 expectations held")

	exports, err := filepath.Glob(filepath.Join(dir, "recordings", "kim_*.json"))
	require.NoError(t, err)
	require.Len(t, exports, 1)

	logs, err := filepath.Glob(filepath.Join(dir, "logs", "trainer.*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"sessions", "-config", dir}, nil, &out, io.Discard))
	assert.Contains(t, out.String(), "kim")
	assert.Contains(t, out.String(), "drill:first start")
	assert.Contains(t, out.String(), "6/7")
}

func TestDrillCommand_StrictFailure(t *testing.T) {
	dir := writeWorkspace(t, "")
	script := filepath.Join(dir, "fail.lua")
	require.NoError(t, os.WriteFile(script, []byte(`return Drill.new("fail"):wait(0.1):expect_running()`), 0644))

	var out bytes.Buffer
	err := run(context.Background(), []string{"drill", "-config", dir, "-scenario", script}, nil, &out, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expectation failed")
	assert.Contains(t, out.String(), "FAIL")
	assert.Contains(t, out.String(), "0/1 expectations held")

	exports, _ := filepath.Glob(filepath.Join(dir, "recordings", "*.json"))
	assert.Len(t, exports, 1, "a failed drill is still recorded")
}

func TestDrillCommand_SQLite(t *testing.T) {
	dir := writeWorkspace(t, "")
	t.Setenv("TRAINER_STORAGE_TYPE", "sqlite")
	script := filepath.Join(dir, "first_start.lua")
	require.NoError(t, os.WriteFile(script, []byte(firstStart), 0644))

	require.NoError(t, run(context.Background(), []string{"drill", "-config", dir, "-scenario", script, "-driver", "lee"}, nil, io.Discard, io.Discard))

	dumps, err := filepath.Glob(filepath.Join(dir, "recordings", "trainer_*.db"))
	require.NoError(t, err)
	require.Len(t, dumps, 1)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"sessions", "-config", dir}, nil, &out, io.Discard))
	assert.Contains(t, out.String(), "lee")
	assert.Contains(t, out.String(), "true")
}

func TestSessions_Empty(t *testing.T) {
	dir := writeWorkspace(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "recordings"), 0755))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"sessions", "-config", dir}, nil, &out, io.Discard))
	assert.Equal(t, "no sessions recorded\n", out.String())
}

func newDriveDispatcher(t *testing.T) (*dispatcher.Dispatcher, *session.Session) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := session.New(session.Config{Params: vehicle.DefaultParams(), Logger: log})
	require.NoError(t, err)
	d, err := dispatcher.New(logging.NewDispatcherLogger(log))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	session.RegisterHandlers(d, s)
	return d, s
}

func decodeReplies(t *testing.T, r io.Reader) []reply {
	t.Helper()
	var out []reply
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var rp reply
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rp))
		out = append(out, rp)
	}
	return out
}

func TestDrive(t *testing.T) {
	d, s := newDriveDispatcher(t)
	in := strings.NewReader(strings.Join([]string{
		"# start the car",
		":tutorial:ack:",
		":TUTORIAL:ACK:",
		":PEDALS: 4 0 0",
		":TICK: 0.0166",
		":ENGINE:START:",
		":GEAR: 9",
		"",
		":HORN:",
		":TICK: 0.0166",
		":QUIT:",
		":TICK: 0.0166",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, drive(context.Background(), d, in, &out, false))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 6, "ticks are silent without -echo")
	assert.Equal(t, reply{Line: 2, Command: session.CmdTutorialAck, Result: true}, replies[0])
	assert.Equal(t, session.CmdPedals, replies[2].Command)
	assert.Equal(t, 6, replies[3].Line)
	assert.Empty(t, replies[3].Error)
	assert.Contains(t, replies[4].Error, "invalid gear")
	assert.Equal(t, `unknown command ":HORN:"`, replies[5].Error)

	assert.True(t, s.State().EngineRunning)
	assert.Equal(t, uint64(2), s.Snapshot().Tick, "input after :QUIT: is ignored")
}

func TestDrive_Echo(t *testing.T) {
	d, _ := newDriveDispatcher(t)
	var out bytes.Buffer
	require.NoError(t, drive(context.Background(), d, strings.NewReader(":TICK: 0.02\n:TICK: nope\n"), &out, true))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 2)
	frame, ok := replies[0].Result.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, frame["tick"])
	assert.Contains(t, replies[1].Error, "bad dt")
}

func TestDrive_Canceled(t *testing.T) {
	d, _ := newDriveDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := drive(ctx, d, strings.NewReader(":TICK: 0.02\n"), io.Discard, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrive_Log(t *testing.T) {
	d, _ := newDriveDispatcher(t)
	var logs bytes.Buffer
	m := logging.NewSlogManager()
	m.Setup(&logs, "debug", nil)
	registerLogHandler(d, m)

	var out bytes.Buffer
	require.NoError(t, drive(context.Background(), d, strings.NewReader(":LOG: warn front end lagging\n:LOG: warn\n"), &out, false))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 2)
	assert.Empty(t, replies[0].Error)
	assert.Contains(t, replies[1].Error, "want level message")
	assert.Contains(t, logs.String(), "front end lagging")
	assert.Contains(t, logs.String(), "source=stdin")
}

func TestDrive_KeysAndQuitKey(t *testing.T) {
	d, s := newDriveDispatcher(t)
	session.RegisterKeyHandlers(d, s, input.DefaultBindings())

	in := strings.NewReader(":KEYS:HELD: a z e r\n:TICK: 0.0166\n:KEY:PRESS: return\n:KEY:PRESS: escape\n:KEY:PRESS: 1\n")
	var out bytes.Buffer
	require.NoError(t, drive(context.Background(), d, in, &out, false))

	replies := decodeReplies(t, &out)
	require.Len(t, replies, 2)
	assert.Equal(t, "engine", replies[1].Result)
	assert.True(t, s.State().EngineRunning)
	assert.Equal(t, vehicle.Neutral, s.State().Gear, "keys after escape are not read")
}

func TestSessions_WebSocketHasNoLocalStore(t *testing.T) {
	dir := writeWorkspace(t, "")
	t.Setenv("TRAINER_STORAGE_TYPE", "websocket")
	err := run(context.Background(), []string{"sessions", "-config", dir}, nil, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "instructor server")
}
