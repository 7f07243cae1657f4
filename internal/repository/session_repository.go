package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/chart-api/internal/chart"
)

var (
	// ErrRecordNotFound is returned when no session has the requested id
	ErrRecordNotFound = errors.New("record not found")

	// ErrLimitReached is returned when the store already holds its maximum
	ErrLimitReached = errors.New("session limit reached")
)

// SessionRepository is the in-memory chart session store
type SessionRepository struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]*chart.Session
	owners      map[uuid.UUID]string
	byOwner     map[string]map[uuid.UUID]struct{}
	max         int
	maxPerOwner int
}

// NewSessionRepository creates a store holding at most max sessions in total and
// maxPerOwner sessions per owner key (0 means unbounded for either)
func NewSessionRepository(max, maxPerOwner int) *SessionRepository {
	return &SessionRepository{
		sessions:    make(map[uuid.UUID]*chart.Session),
		owners:      make(map[uuid.UUID]string),
		byOwner:     make(map[string]map[uuid.UUID]struct{}),
		max:         max,
		maxPerOwner: maxPerOwner,
	}
}

// Create stores a session for owner. An owner already at its quota loses its least
// recently active session, whose id is returned. ErrLimitReached is only returned
// when the global cap is reached by other owners.
func (r *SessionRepository) Create(ctx context.Context, session *chart.Session, owner string) (*uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted *uuid.UUID
	if owner != "" && r.maxPerOwner > 0 && len(r.byOwner[owner]) >= r.maxPerOwner {
		id := r.leastRecentlyActive(r.byOwner[owner])
		r.remove(id)
		evicted = &id
	}

	if r.max > 0 && len(r.sessions) >= r.max {
		return evicted, ErrLimitReached
	}

	r.sessions[session.ID] = session
	if owner != "" {
		r.owners[session.ID] = owner
		if r.byOwner[owner] == nil {
			r.byOwner[owner] = make(map[uuid.UUID]struct{})
		}
		r.byOwner[owner][session.ID] = struct{}{}
	}
	return evicted, nil
}

// CountByOwner returns how many live sessions owner holds
func (r *SessionRepository) CountByOwner(ctx context.Context, owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOwner[owner])
}

func (r *SessionRepository) leastRecentlyActive(ids map[uuid.UUID]struct{}) uuid.UUID {
	var (
		oldest uuid.UUID
		at     time.Time
		found  bool
	)
	for id := range ids {
		last := r.sessions[id].LastActive()
		if !found || last.Before(at) {
			oldest, at, found = id, last, true
		}
	}
	return oldest
}

// remove deletes a session and its owner index entry; callers hold mu
func (r *SessionRepository) remove(id uuid.UUID) {
	delete(r.sessions, id)
	owner, ok := r.owners[id]
	if !ok {
		return
	}
	delete(r.owners, id)
	delete(r.byOwner[owner], id)
	if len(r.byOwner[owner]) == 0 {
		delete(r.byOwner, owner)
	}
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*chart.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrRecordNotFound
	}
	r.remove(id)
	return nil
}

func (r *SessionRepository) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DeleteIdle removes every session unused since before cutoff and returns their ids,
// oldest first
func (r *SessionRepository) DeleteIdle(ctx context.Context, cutoff time.Time) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []*chart.Session
	for _, s := range r.sessions {
		if s.IdleSince(cutoff) {
			idle = append(idle, s)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastActive().Before(idle[j].LastActive())
	})

	ids := make([]uuid.UUID, 0, len(idle))
	for _, s := range idle {
		r.remove(s.ID)
		ids = append(ids, s.ID)
	}
	return ids
}
