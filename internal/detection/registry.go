package detection

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drowsyguard/backend/internal/models"
)

// ErrSessionNotFound is returned for unknown, already-terminated, or
// differently-owned sessions. Ownership mismatches are deliberately
// indistinguishable from absence.
var ErrSessionNotFound = errors.New("session not found")

// LiveSession is the mutable in-memory state of one active session. Callbacks
// passed to Registry.Update receive it with the per-session lock held.
type LiveSession struct {
	mu            sync.Mutex
	state         models.DetectionSession
	smoother      *Smoother
	debouncer     *Debouncer
	minConfidence float64
	lastFrameAt   time.Time
}

// Smoother returns the session's detection smoother.
func (s *LiveSession) Smoother() *Smoother { return s.smoother }

// Debouncer returns the session's alarm debouncer.
func (s *LiveSession) Debouncer() *Debouncer { return s.debouncer }

// Snapshot returns a copy of the session's current state.
func (s *LiveSession) Snapshot() models.DetectionSession { return s.state }

// Record updates the session counters for one stabilized detection.
// Non-drowsy classes count per frame; drowsy counts once per alarm-triggering
// event so sub-threshold blips never register as drowsiness.
func (s *LiveSession) Record(class string, alarmFired bool, now time.Time) {
	switch {
	case class == models.ClassDrowsy && alarmFired:
		s.state.Counts.Drowsy++
		s.state.Counts.Total++
		s.state.AlarmTriggered = true
	case class == models.ClassAwake:
		s.state.Counts.Awake++
		s.state.Counts.Total++
	case class == models.ClassYawn:
		s.state.Counts.Yawn++
		s.state.Counts.Total++
	}
	s.lastFrameAt = now
}

// Registry is the concurrency-safe store of live sessions: an id index plus an
// owner index enforcing at most one active session per owner. The registry
// mutex covers only index operations; per-frame mutation runs under each
// session's own lock so unrelated sessions never contend.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*LiveSession
	byOwner  map[uuid.UUID]uuid.UUID

	now func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*LiveSession),
		byOwner:  make(map[uuid.UUID]uuid.UUID),
		now:      time.Now,
	}
}

// Create registers a new active session for owner. Any existing active session
// for the same owner is atomically finalized as interrupted first; its summary
// is returned so the caller can persist it.
func (r *Registry) Create(owner uuid.UUID, typ models.SessionType, sm *Smoother, db *Debouncer, minConfidence float64) (models.DetectionSession, *models.DetectionSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var superseded *models.DetectionSession
	if prevID, ok := r.byOwner[owner]; ok {
		if prev := r.sessions[prevID]; prev != nil {
			sum := r.finalizeLocked(prev, models.SessionInterrupted)
			superseded = &sum
		}
		delete(r.byOwner, owner)
		delete(r.sessions, prevID)
	}

	now := r.now()
	sess := &LiveSession{
		state: models.DetectionSession{
			ID:        uuid.New(),
			UserID:    owner,
			Type:      typ,
			Status:    models.SessionActive,
			StartedAt: now,
			CreatedAt: now,
		},
		smoother:      sm,
		debouncer:     db,
		minConfidence: minConfidence,
		lastFrameAt:   now,
	}
	r.sessions[sess.state.ID] = sess
	r.byOwner[owner] = sess.state.ID
	return sess.state, superseded
}

// Get returns a snapshot of an active session.
func (r *Registry) Get(id uuid.UUID) (models.DetectionSession, error) {
	r.mu.RLock()
	sess := r.sessions[id]
	r.mu.RUnlock()
	if sess == nil {
		return models.DetectionSession{}, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Status != models.SessionActive {
		return models.DetectionSession{}, ErrSessionNotFound
	}
	return sess.state, nil
}

// Update applies fn to the session under its lock, serializing frame-analysis
// calls for the same session while leaving other sessions untouched. It fails
// with ErrSessionNotFound if the session was finalized concurrently; the
// caller must drop the frame rather than race the lifecycle.
func (r *Registry) Update(id uuid.UUID, fn func(*LiveSession)) error {
	r.mu.RLock()
	sess := r.sessions[id]
	r.mu.RUnlock()
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Status != models.SessionActive {
		return ErrSessionNotFound
	}
	fn(sess)
	return nil
}

// Stop finalizes a session as completed. The owner must match; unknown,
// terminal, and differently-owned sessions all fail with ErrSessionNotFound.
func (r *Registry) Stop(id, owner uuid.UUID) (models.DetectionSession, error) {
	return r.finalize(id, &owner, models.SessionCompleted)
}

// Abandon finalizes a session as interrupted. Used for disconnect/unload
// signals; no ownership proof beyond the session id is required.
func (r *Registry) Abandon(id uuid.UUID) (models.DetectionSession, error) {
	return r.finalize(id, nil, models.SessionInterrupted)
}

func (r *Registry) finalize(id uuid.UUID, owner *uuid.UUID, status models.SessionStatus) (models.DetectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.sessions[id]
	if sess == nil {
		return models.DetectionSession{}, ErrSessionNotFound
	}
	if owner != nil && sess.state.UserID != *owner {
		return models.DetectionSession{}, ErrSessionNotFound
	}
	sum := r.finalizeLocked(sess, status)
	delete(r.sessions, id)
	if r.byOwner[sum.UserID] == id {
		delete(r.byOwner, sum.UserID)
	}
	return sum, nil
}

// finalizeLocked stamps the terminal state and duration. Caller holds r.mu.
func (r *Registry) finalizeLocked(sess *LiveSession, status models.SessionStatus) models.DetectionSession {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	now := r.now()
	sess.state.Status = status
	sess.state.EndedAt = &now
	sess.state.DurationSeconds = int64(now.Sub(sess.state.StartedAt).Seconds())
	return sess.state
}

// Sweep finalizes as interrupted every session with no frame activity for at
// least idleFor, returning their summaries for persistence.
func (r *Registry) Sweep(idleFor time.Duration) []models.DetectionSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idleFor)
	var swept []models.DetectionSession
	for id, sess := range r.sessions {
		sess.mu.Lock()
		idle := sess.lastFrameAt.Before(cutoff)
		sess.mu.Unlock()
		if !idle {
			continue
		}
		sum := r.finalizeLocked(sess, models.SessionInterrupted)
		delete(r.sessions, id)
		if r.byOwner[sum.UserID] == id {
			delete(r.byOwner, sum.UserID)
		}
		swept = append(swept, sum)
	}
	return swept
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
