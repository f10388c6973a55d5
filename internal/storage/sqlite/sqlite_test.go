package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/database"
	"github.com/stickshift/trainer/pkg/core"
)

func TestSessionDumpedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trainer.db")
	b, err := New("close", config.SQLiteConfig{DumpPath: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	s := &core.Session{UUID: "u-1", Driver: "sam", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordFrames([]core.Frame{{Tick: 1}, {Tick: 2}}))
	require.NoError(t, b.EndSession(core.Summary{Frames: 2}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	disk, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var frames int64
	require.NoError(t, disk.Table("frames").Count(&frames).Error)
	assert.Equal(t, int64(2), frames)
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b, err := New("loop", config.SQLiteConfig{DumpPath: path, DumpInterval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestNoDumpPath(t *testing.T) {
	b, err := New("nopath", config.SQLiteConfig{DumpInterval: time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
}
