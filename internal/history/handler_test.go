package history

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/drowsyguard/backend/internal/middleware"
	"github.com/drowsyguard/backend/internal/models"
)

type fakeStore struct {
	session *models.DetectionSession
	getErr  error
}

func (f *fakeStore) ListByUser(context.Context, uuid.UUID, string, int, int) ([]models.DetectionSession, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetByID(context.Context, uuid.UUID, uuid.UUID) (*models.DetectionSession, error) {
	return f.session, f.getErr
}

func (f *fakeStore) ListEvents(context.Context, uuid.UUID) ([]models.DetectionEvent, error) {
	return nil, nil
}

func (f *fakeStore) GetSummary(context.Context, uuid.UUID) (*Summary, error) {
	return &Summary{}, nil
}

func (f *fakeStore) ListSince(context.Context, uuid.UUID, time.Time) ([]models.DetectionSession, error) {
	return nil, nil
}

func getSession(t *testing.T, store *fakeStore) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil, zap.NewNop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/history/sessions/x", nil)
	c.Params = gin.Params{{Key: "id", Value: uuid.New().String()}}
	c.Set(middleware.ContextUserID, uuid.New())
	h.Get(c)
	return w
}

func TestGetSessionNotFound(t *testing.T) {
	w := getSession(t, &fakeStore{getErr: pgx.ErrNoRows})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing session, got %d", w.Code)
	}
}

func TestGetSessionStoreError(t *testing.T) {
	w := getSession(t, &fakeStore{getErr: errors.New("connection refused")})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a store failure, got %d", w.Code)
	}
}

func TestGetSessionOK(t *testing.T) {
	sess := &models.DetectionSession{ID: uuid.New(), Status: models.SessionCompleted}
	w := getSession(t, &fakeStore{session: sess})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), sess.ID.String()) {
		t.Errorf("response should contain the session id: %s", w.Body.String())
	}
}

func TestRenderCSV(t *testing.T) {
	ended := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	sessions := []models.DetectionSession{
		{
			ID:              uuid.MustParse("11111111-2222-3333-4444-555555555555"),
			Type:            models.SessionLive,
			Status:          models.SessionCompleted,
			StartedAt:       ended.Add(-90 * time.Second),
			EndedAt:         &ended,
			DurationSeconds: 90,
			Counts:          models.ClassCounts{Total: 12, Drowsy: 1, Awake: 10, Yawn: 1},
			AlarmTriggered:  true,
		},
		{
			ID:        uuid.MustParse("99999999-8888-7777-6666-555555555555"),
			Type:      models.SessionLive,
			Status:    models.SessionActive,
			StartedAt: ended,
		},
	}

	data, err := renderCSV(sessions)
	if err != nil {
		t.Fatalf("renderCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "session_id,session_type,status") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "completed") || !strings.Contains(lines[1], "2026-03-01T09:30:00Z") {
		t.Errorf("unexpected first row: %q", lines[1])
	}
	// Active session has no end time; field stays empty.
	if !strings.Contains(lines[2], ",,0,") {
		t.Errorf("expected empty end_time for active session: %q", lines[2])
	}
}

func TestRenderCSVEmpty(t *testing.T) {
	data, err := renderCSV(nil)
	if err != nil {
		t.Fatalf("renderCSV failed: %v", err)
	}
	if got := strings.TrimSpace(string(data)); strings.Count(got, "\n") != 0 {
		t.Errorf("expected header only, got %q", got)
	}
}
