package chart

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is one client's chart: an editor, its search modal and an exporter.
// Editor and modal access is serialized through Do; the exporter guards itself.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.Mutex
	editor    *Editor
	modal     *Modal
	updatedAt time.Time

	exporter   *Exporter
	lastActive atomic.Int64
}

// NewSession creates a session with a fresh editor and a closed modal
func NewSession(now time.Time, renderer Renderer, pixelRatio int) *Session {
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		editor:    NewEditor(),
		modal:     NewModal(),
		updatedAt: now,
		exporter:  NewExporter(renderer, pixelRatio),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// Do runs fn with the session locked and records activity at now
func (s *Session) Do(now time.Time, fn func(e *Editor, m *Modal) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Touch(now)
	previous := s.updatedAt
	s.updatedAt = now
	if err := fn(s.editor, s.modal); err != nil {
		s.updatedAt = previous
		return err
	}
	return nil
}

// View runs fn with the session locked without marking it updated
func (s *Session) View(now time.Time, fn func(e *Editor, m *Modal)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Touch(now)
	fn(s.editor, s.modal)
}

// UpdatedAt is the time of the last successful mutation. Callers must hold the lock
// (call it from within Do or View).
func (s *Session) UpdatedAt() time.Time {
	return s.updatedAt
}

// Exporter returns the session's exporter
func (s *Session) Exporter() *Exporter {
	return s.exporter
}

// Touch records activity at now
func (s *Session) Touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// LastActive is the last time the session was used
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// IdleSince reports whether the session has been unused since before cutoff.
// A running export keeps the session alive.
func (s *Session) IdleSince(cutoff time.Time) bool {
	if s.exporter.InProgress() {
		return false
	}
	return s.LastActive().Before(cutoff)
}
