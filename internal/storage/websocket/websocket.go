// Package websocket streams a session live to the instructor server. Frames
// and events are fire-and-forget; session start and end wait for the
// server's ack. Nothing is kept locally.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stickshift/trainer/pkg/core"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend implements storage.Backend but not storage.Uploadable or
// storage.Lister.
type Backend struct {
	conn *connection
	cfg  Config

	mu      sync.Mutex
	session *core.Session
}

// New creates a backend; nothing connects until Init.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the server.
func (b *Backend) Init() error {
	if b.cfg.URL == "" {
		return fmt.Errorf("websocket: no server url")
	}
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the server.
func (b *Backend) Close() error {
	return b.conn.close()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession announces s and takes the server's id, 1 when it sends none.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(TypeStartSession, startPayload(*s))
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	ack, err := b.conn.sendAndWait(data, TypeStartSession, ackTimeout)
	if err != nil {
		return err
	}
	s.ID = ack.ID
	if s.ID == 0 {
		s.ID = 1
	}

	b.mu.Lock()
	cp := *s
	b.session = &cp
	b.mu.Unlock()
	return nil
}

// EndSession sends the summary and waits for the ack. Frames sent before it
// are written first.
func (b *Backend) EndSession(sum core.Summary) error {
	b.mu.Lock()
	s := b.session
	b.session = nil
	b.mu.Unlock()
	if s == nil {
		return core.ErrNoSession
	}

	data, err := marshalEnvelope(TypeEndSession, endPayload(s.UUID, sum))
	if err == nil {
		_, err = b.conn.sendAndWait(data, TypeEndSession, ackTimeout)
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()
	return err
}

func (b *Backend) active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session != nil
}

// RecordFrames sends one batch as a single message.
func (b *Backend) RecordFrames(frames []core.Frame) error {
	if !b.active() {
		return core.ErrNoSession
	}
	if len(frames) == 0 {
		return nil
	}
	return b.sendEnvelope(TypeFrames, frames)
}

func (b *Backend) RecordEvent(e *core.Event) error {
	if !b.active() {
		return core.ErrNoSession
	}
	return b.sendEnvelope(TypeEvent, e)
}
