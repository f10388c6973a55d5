package worker

import (
	"github.com/stickshift/trainer/internal/dispatcher"
)

// Commands understood by RegisterHandlers.
const (
	CmdRecorderFlush = ":RECORDER:FLUSH:"
	CmdRecorderStats = ":RECORDER:STATS:"
)

// RegisterHandlers exposes the recorder on d. Flushes run off the caller's
// goroutine; one may wait behind a running flush and further requests are
// refused until it starts.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdRecorderFlush, func(dispatcher.Event) (any, error) {
		err := m.Flush()
		if err != nil {
			m.deps.Logger.Warn("requested flush failed", "error", err)
		}
		return nil, err
	}, dispatcher.Buffered(1), dispatcher.Logged())

	d.Register(CmdRecorderStats, func(dispatcher.Event) (any, error) {
		return m.Stats(), nil
	})
}
