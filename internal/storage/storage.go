// Package storage defines the recording backends a session writes its
// training log to.
package storage

import (
	"github.com/stickshift/trainer/pkg/core"
)

// ErrNoSession is returned when recording without a started session.
var ErrNoSession = core.ErrNoSession

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management. StartSession assigns s.ID.
	StartSession(s *core.Session) error
	EndSession(sum core.Summary) error

	// Recording
	RecordFrames(frames []core.Frame) error
	RecordEvent(e *core.Event) error
}

// Lister is implemented by backends that can read back what they stored.
type Lister interface {
	ListSessions(limit int) ([]core.SessionListing, error)
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the instructor server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
