package detection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drowsyguard/backend/internal/models"
)

func newTestRegistry() *Registry {
	return NewRegistry()
}

func createLive(t *testing.T, r *Registry, owner uuid.UUID) models.DetectionSession {
	t.Helper()
	sess, superseded := r.Create(owner, models.SessionLive, NewSmoother(SmootherConfig{}), NewDebouncer(DebounceConfig{}), 0.5)
	if superseded != nil {
		t.Fatalf("unexpected superseded session %s", superseded.ID)
	}
	return sess
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := newTestRegistry()
	owner := uuid.New()

	sess := createLive(t, r, owner)
	if sess.Status != models.SessionActive {
		t.Fatalf("expected active status, got %q", sess.Status)
	}

	got, err := r.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != owner {
		t.Errorf("expected owner %s, got %s", owner, got.UserID)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 live session, got %d", r.Len())
	}
}

func TestRegistrySupersedesPriorActive(t *testing.T) {
	r := newTestRegistry()
	owner := uuid.New()

	first := createLive(t, r, owner)

	second, superseded := r.Create(owner, models.SessionLive, NewSmoother(SmootherConfig{}), NewDebouncer(DebounceConfig{}), 0.5)
	if superseded == nil {
		t.Fatal("expected the orphaned session to be superseded")
	}
	if superseded.ID != first.ID {
		t.Errorf("superseded wrong session: want %s, got %s", first.ID, superseded.ID)
	}
	if superseded.Status != models.SessionInterrupted {
		t.Errorf("expected interrupted status, got %q", superseded.Status)
	}
	if superseded.EndedAt == nil {
		t.Error("superseded session missing end time")
	}

	if _, err := r.Get(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for superseded id, got %v", err)
	}
	if _, err := r.Get(second.ID); err != nil {
		t.Errorf("new session should be live: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected exactly 1 live session, got %d", r.Len())
	}
}

func TestRegistryConcurrentCreatesSingleActive(t *testing.T) {
	r := newTestRegistry()
	owner := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Create(owner, models.SessionLive, NewSmoother(SmootherConfig{}), NewDebouncer(DebounceConfig{}), 0.5)
		}()
	}
	wg.Wait()

	if r.Len() != 1 {
		t.Fatalf("expected exactly 1 live session after concurrent creates, got %d", r.Len())
	}
}

func TestRegistryStop(t *testing.T) {
	r := newTestRegistry()
	owner := uuid.New()
	sess := createLive(t, r, owner)

	sum, err := r.Stop(sess.ID, owner)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if sum.Status != models.SessionCompleted {
		t.Errorf("expected completed status, got %q", sum.Status)
	}
	if sum.EndedAt == nil {
		t.Error("stopped session missing end time")
	}

	if _, err := r.Stop(sess.ID, owner); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Stop should fail with ErrSessionNotFound, got %v", err)
	}
	if err := r.Update(sess.ID, func(*LiveSession) {}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Update after Stop should fail with ErrSessionNotFound, got %v", err)
	}
}

func TestRegistryStopWrongOwner(t *testing.T) {
	r := newTestRegistry()
	owner := uuid.New()
	sess := createLive(t, r, owner)

	if _, err := r.Stop(sess.ID, uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign owner, got %v", err)
	}
	// Still live for the real owner.
	if _, err := r.Get(sess.ID); err != nil {
		t.Errorf("session should survive a foreign stop attempt: %v", err)
	}
}

func TestRegistryAbandon(t *testing.T) {
	r := newTestRegistry()
	sess := createLive(t, r, uuid.New())

	sum, err := r.Abandon(sess.ID)
	if err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if sum.Status != models.SessionInterrupted {
		t.Errorf("expected interrupted status, got %q", sum.Status)
	}
	if _, err := r.Abandon(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Abandon should fail with ErrSessionNotFound, got %v", err)
	}
}

func TestRegistrySupersededDuration(t *testing.T) {
	r := newTestRegistry()
	owner := uuid.New()

	base := time.Unix(5000, 0)
	r.now = func() time.Time { return base }
	createLive(t, r, owner)

	r.now = func() time.Time { return base.Add(42 * time.Second) }
	_, superseded := r.Create(owner, models.SessionLive, NewSmoother(SmootherConfig{}), NewDebouncer(DebounceConfig{}), 0.5)
	if superseded == nil {
		t.Fatal("expected superseded session")
	}
	if superseded.DurationSeconds != 42 {
		t.Errorf("expected duration 42s, got %d", superseded.DurationSeconds)
	}
}

func TestRegistrySweepIdle(t *testing.T) {
	r := newTestRegistry()
	base := time.Unix(5000, 0)
	r.now = func() time.Time { return base }

	idle := createLive(t, r, uuid.New())
	busy := createLive(t, r, uuid.New())

	// One session keeps receiving frames.
	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	if err := r.Update(busy.ID, func(ls *LiveSession) {
		ls.Record(models.ClassAwake, false, r.now())
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	swept := r.Sweep(5 * time.Minute)
	if len(swept) != 1 {
		t.Fatalf("expected 1 swept session, got %d", len(swept))
	}
	if swept[0].ID != idle.ID {
		t.Errorf("swept wrong session: want %s, got %s", idle.ID, swept[0].ID)
	}
	if swept[0].Status != models.SessionInterrupted {
		t.Errorf("expected interrupted status, got %q", swept[0].Status)
	}
	if _, err := r.Get(busy.ID); err != nil {
		t.Errorf("active session should survive the sweep: %v", err)
	}
}

func TestLiveSessionRecordCounts(t *testing.T) {
	r := newTestRegistry()
	sess := createLive(t, r, uuid.New())
	now := time.Now()

	steps := []struct {
		class string
		alarm bool
	}{
		{models.ClassAwake, false},
		{models.ClassYawn, false},
		{models.ClassDrowsy, false}, // sub-threshold blip, not counted
		{models.ClassDrowsy, false},
		{models.ClassDrowsy, true}, // alarm fires, counted once
		{models.ClassAwake, false},
	}
	for _, st := range steps {
		if err := r.Update(sess.ID, func(ls *LiveSession) {
			ls.Record(st.class, st.alarm, now)
		}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	got, err := r.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Counts.Awake != 2 || got.Counts.Yawn != 1 || got.Counts.Drowsy != 1 {
		t.Errorf("unexpected counts: %+v", got.Counts)
	}
	if got.Counts.Total != 4 {
		t.Errorf("expected total 4, got %d", got.Counts.Total)
	}
	if !got.AlarmTriggered {
		t.Error("expected AlarmTriggered after a fired alarm")
	}
}
