package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drowsyguard/backend/internal/models"
)

type fakeClassifier struct {
	candidates []models.Candidate
	err        error
	calls      int
}

func (f *fakeClassifier) Classify(_ context.Context, _ []byte, _ float64) ([]models.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	created   []models.DetectionSession
	finalized []models.DetectionSession
	events    []models.DetectionEvent
	createErr error
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.DetectionSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *s)
	return nil
}

func (f *fakeStore) FinalizeSession(_ context.Context, s models.DetectionSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, s)
	return nil
}

func (f *fakeStore) SaveEvent(_ context.Context, e models.DetectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakeQueue struct {
	events []models.DetectionEvent
	err    error
}

func (f *fakeQueue) EnqueueDetectionEvent(_ context.Context, e models.DetectionEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type fakeSettings struct {
	prefs *models.UserSettings
	err   error
}

func (f *fakeSettings) GetByUser(context.Context, uuid.UUID) (*models.UserSettings, error) {
	return f.prefs, f.err
}

func testFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

func drowsyCandidates() []models.Candidate {
	return []models.Candidate{
		{Class: models.ClassDrowsy, Confidence: 0.92, Box: models.Box{X1: 200, Y1: 120, X2: 360, Y2: 300}},
	}
}

func newTestService(cls Classifier, store Store) *Service {
	return NewService(Config{}, NewRegistry(), cls, store, zap.NewNop())
}

func TestServiceStartPersistsSession(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeClassifier{}, store)

	sess, err := svc.Start(context.Background(), uuid.New(), models.SessionLive)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.Status != models.SessionActive {
		t.Errorf("expected active session, got %q", sess.Status)
	}
	if len(store.created) != 1 || store.created[0].ID != sess.ID {
		t.Errorf("session not persisted: %+v", store.created)
	}
}

func TestServiceStartRollsBackOnStoreError(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	svc := newTestService(&fakeClassifier{}, store)

	if _, err := svc.Start(context.Background(), uuid.New(), models.SessionLive); err == nil {
		t.Fatal("expected Start to fail when the store does")
	}
	if svc.registry.Len() != 0 {
		t.Errorf("registry should be rolled back, has %d sessions", svc.registry.Len())
	}
}

func TestServiceStartSupersedesAndPersistsInterrupted(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeClassifier{}, store)
	owner := uuid.New()

	first, err := svc.Start(context.Background(), owner, models.SessionLive)
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if _, err := svc.Start(context.Background(), owner, models.SessionLive); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	if len(store.finalized) != 1 {
		t.Fatalf("expected 1 finalized session, got %d", len(store.finalized))
	}
	if store.finalized[0].ID != first.ID || store.finalized[0].Status != models.SessionInterrupted {
		t.Errorf("unexpected finalized session: %+v", store.finalized[0])
	}
}

func TestServiceAnalyzeFrameAlwaysOneDetection(t *testing.T) {
	svc := newTestService(&fakeClassifier{candidates: drowsyCandidates()}, &fakeStore{})
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	res, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, testFrame(t, 640, 480))
	if err != nil {
		t.Fatalf("AnalyzeFrame failed: %v", err)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("expected exactly 1 detection, got %d", len(res.Detections))
	}
	if !res.DrowsinessDetected {
		t.Error("expected drowsiness flag for a drowsy detection")
	}
	if res.AlarmTriggered {
		t.Error("alarm must not fire on the first drowsy frame")
	}
}

func TestServiceAnalyzeFrameRejectsBadImage(t *testing.T) {
	svc := newTestService(&fakeClassifier{}, &fakeStore{})
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	_, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, []byte("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestServiceAnalyzeFrameForeignOwner(t *testing.T) {
	svc := newTestService(&fakeClassifier{}, &fakeStore{})
	sess, _ := svc.Start(context.Background(), uuid.New(), models.SessionLive)

	_, err := svc.AnalyzeFrame(context.Background(), sess.ID, uuid.New(), testFrame(t, 64, 64))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign owner, got %v", err)
	}
}

func TestServiceClassifierFailureFallsBackNeutral(t *testing.T) {
	cls := &fakeClassifier{err: errors.New("model service down")}
	svc := newTestService(cls, &fakeStore{})
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	res, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, testFrame(t, 640, 480))
	if err != nil {
		t.Fatalf("classifier failure must not fail the frame: %v", err)
	}
	if len(res.Detections) != 1 || res.Detections[0].Class != models.ClassAwake {
		t.Fatalf("expected neutral awake fallback, got %+v", res.Detections)
	}
	if res.DrowsinessDetected || res.AlarmTriggered {
		t.Error("neutral fallback must not report drowsiness")
	}
}

func TestServiceAlarmAfterThreeDrowsyFrames(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeClassifier{candidates: drowsyCandidates()}, store)
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	frame := testFrame(t, 640, 480)
	for i := 1; i <= 3; i++ {
		res, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, frame)
		if err != nil {
			t.Fatalf("frame %d failed: %v", i, err)
		}
		if want := i == 3; res.AlarmTriggered != want {
			t.Fatalf("frame %d: AlarmTriggered = %v, want %v", i, res.AlarmTriggered, want)
		}
	}

	if len(store.events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(store.events))
	}
	if store.events[0].Class != models.ClassDrowsy || store.events[0].SessionID != sess.ID {
		t.Errorf("unexpected persisted event: %+v", store.events[0])
	}

	sum, err := svc.Stop(context.Background(), sess.ID, owner)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if sum.Counts.Drowsy != 1 {
		t.Errorf("drowsy count should increment once per alarm, got %d", sum.Counts.Drowsy)
	}
	if !sum.AlarmTriggered {
		t.Error("session summary should record the alarm")
	}
}

func TestServiceSettingsOverrideTriggerFrames(t *testing.T) {
	prefs := models.DefaultUserSettings(uuid.New())
	prefs.TriggerFrames = 2
	svc := newTestService(&fakeClassifier{candidates: drowsyCandidates()}, &fakeStore{}).
		WithSettings(&fakeSettings{prefs: &prefs})
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	frame := testFrame(t, 640, 480)
	res, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, frame)
	if err != nil {
		t.Fatalf("frame 1 failed: %v", err)
	}
	if res.AlarmTriggered {
		t.Fatal("alarm fired before the configured threshold")
	}
	res, err = svc.AnalyzeFrame(context.Background(), sess.ID, owner, frame)
	if err != nil {
		t.Fatalf("frame 2 failed: %v", err)
	}
	if !res.AlarmTriggered {
		t.Fatal("expected alarm on second drowsy frame with TriggerFrames=2")
	}
}

func TestServiceAlarmEventGoesToQueue(t *testing.T) {
	store := &fakeStore{}
	q := &fakeQueue{}
	svc := newTestService(&fakeClassifier{candidates: drowsyCandidates()}, store).WithQueue(q)
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	frame := testFrame(t, 640, 480)
	for i := 0; i < 3; i++ {
		if _, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, frame); err != nil {
			t.Fatalf("frame %d failed: %v", i+1, err)
		}
	}
	if len(q.events) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(q.events))
	}
	if len(store.events) != 0 {
		t.Errorf("store should not be written when the queue accepts the event, got %d", len(store.events))
	}
}

func TestServiceQueueFailureFallsBackToStore(t *testing.T) {
	store := &fakeStore{}
	q := &fakeQueue{err: errors.New("redis down")}
	svc := newTestService(&fakeClassifier{candidates: drowsyCandidates()}, store).WithQueue(q)
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	frame := testFrame(t, 640, 480)
	for i := 0; i < 3; i++ {
		if _, err := svc.AnalyzeFrame(context.Background(), sess.ID, owner, frame); err != nil {
			t.Fatalf("frame %d failed: %v", i+1, err)
		}
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 event written directly, got %d", len(store.events))
	}
	if store.events[0].Class != models.ClassDrowsy {
		t.Errorf("unexpected event class %q", store.events[0].Class)
	}
}

func TestServiceStopTwice(t *testing.T) {
	svc := newTestService(&fakeClassifier{}, &fakeStore{})
	owner := uuid.New()
	sess, _ := svc.Start(context.Background(), owner, models.SessionLive)

	if _, err := svc.Stop(context.Background(), sess.ID, owner); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := svc.Stop(context.Background(), sess.ID, owner); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second Stop should fail with ErrSessionNotFound, got %v", err)
	}
}

func TestServiceAbandonIdempotent(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeClassifier{}, store)
	sess, _ := svc.Start(context.Background(), uuid.New(), models.SessionLive)

	if err := svc.Abandon(context.Background(), sess.ID); err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if err := svc.Abandon(context.Background(), sess.ID); err != nil {
		t.Fatalf("repeat Abandon should be a no-op, got %v", err)
	}
	if err := svc.Abandon(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unknown-session Abandon should be a no-op, got %v", err)
	}
	if len(store.finalized) != 1 {
		t.Errorf("expected 1 finalized session, got %d", len(store.finalized))
	}
	if store.finalized[0].Status != models.SessionInterrupted {
		t.Errorf("expected interrupted status, got %q", store.finalized[0].Status)
	}
}

func TestServiceAnalyzeUpload(t *testing.T) {
	cls := &fakeClassifier{candidates: []models.Candidate{
		{Class: models.ClassDrowsy, Confidence: 0.9, Box: models.Box{X1: 10, Y1: 10, X2: 110, Y2: 110}},
		{Class: models.ClassYawn, Confidence: 0.7, Box: models.Box{X1: 200, Y1: 10, X2: 300, Y2: 110}},
	}}
	store := &fakeStore{}
	svc := newTestService(cls, store)

	res, err := svc.AnalyzeUpload(context.Background(), uuid.New(), testFrame(t, 640, 480))
	if err != nil {
		t.Fatalf("AnalyzeUpload failed: %v", err)
	}
	if res.Counts.Total != 2 || res.Counts.Drowsy != 1 || res.Counts.Yawn != 1 {
		t.Errorf("unexpected counts: %+v", res.Counts)
	}
	if len(res.Detections) != 2 {
		t.Errorf("expected 2 detections, got %d", len(res.Detections))
	}
	if len(store.created) != 1 || store.created[0].Type != models.SessionUpload {
		t.Fatalf("upload session not persisted: %+v", store.created)
	}
	if store.created[0].Status != models.SessionCompleted {
		t.Errorf("upload session should complete immediately, got %q", store.created[0].Status)
	}
}
