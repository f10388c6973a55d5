// Package logging wires the trainer's log sinks: console or file text output,
// the OpenTelemetry bridge, an optional Graylog feed, and the zerolog logger
// used by the storage side.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds the per-run log file path, e.g. logs/trainer.20260212_213836.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}
