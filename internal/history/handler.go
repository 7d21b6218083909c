package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/drowsyguard/backend/internal/middleware"
	"github.com/drowsyguard/backend/internal/models"
	"github.com/drowsyguard/backend/pkg/response"
	"github.com/drowsyguard/backend/pkg/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is the session history persistence boundary.
type Store interface {
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.DetectionSession, int, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.DetectionSession, error)
	ListEvents(ctx context.Context, sessionID uuid.UUID) ([]models.DetectionEvent, error)
	GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.DetectionSession, error)
}

// Handler handles session history HTTP endpoints.
type Handler struct {
	repo   Store
	s3     *storage.S3 // nil when object storage is not configured
	logger *zap.Logger
}

// NewHandler creates a history handler.
func NewHandler(repo Store, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// List handles GET /history/sessions?page=&page_size=&status=.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	status := c.Query("status")
	switch status {
	case "", string(models.SessionActive), string(models.SessionCompleted), string(models.SessionInterrupted):
	default:
		response.BadRequest(c, "invalid status filter")
		return
	}

	sessions, total, err := h.repo.ListByUser(c.Request.Context(), userID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		response.Internal(c, "failed to load sessions")
		return
	}
	if sessions == nil {
		sessions = []models.DetectionSession{}
	}
	response.OK(c, gin.H{
		"sessions":  sessions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Get handles GET /history/sessions/:id. Returns the session with its alarm events.
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.repo.GetByID(c.Request.Context(), sessionID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	events, err := h.repo.ListEvents(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to load events")
		return
	}
	if events == nil {
		events = []models.DetectionEvent{}
	}
	response.OK(c, gin.H{"session": sess, "events": events})
}

// Summary handles GET /history/summary.
func (h *Handler) Summary(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	s, err := h.repo.GetSummary(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load summary")
		return
	}
	response.OK(c, s)
}

// Export handles GET /history/export?days=. Renders the user's sessions as
// CSV, uploads it to S3, and returns a pre-signed download URL.
func (h *Handler) Export(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	sessions, err := h.repo.ListSince(c.Request.Context(), userID, since)
	if err != nil {
		response.Internal(c, "failed to load sessions")
		return
	}

	data, err := renderCSV(sessions)
	if err != nil {
		response.Internal(c, "failed to render export")
		return
	}

	exportID := uuid.New().String()
	key := storage.ExportKey(userID.String(), exportID)
	if _, err := h.s3.Upload(c.Request.Context(), h.s3.ExportsBucket(), key, "text/csv", bytes.NewReader(data), int64(len(data))); err != nil {
		h.logger.Error("upload export", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to upload export")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.ExportsBucket(), key, h.s3.PresignExpire())
	if err != nil {
		response.Internal(c, "failed to sign export url")
		return
	}
	response.OK(c, gin.H{
		"export_id": exportID,
		"url":       url,
		"sessions":  len(sessions),
		"expires_in_seconds": int(h.s3.PresignExpire().Seconds()),
	})
}

func renderCSV(sessions []models.DetectionSession) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{
		"session_id", "session_type", "status", "start_time", "end_time", "duration_seconds",
		"total_detections", "drowsiness_count", "awake_count", "yawn_count", "alarm_triggered",
	}); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		endTime := ""
		if s.EndedAt != nil {
			endTime = s.EndedAt.Format(time.RFC3339)
		}
		if err := w.Write([]string{
			s.ID.String(),
			string(s.Type),
			string(s.Status),
			s.StartedAt.Format(time.RFC3339),
			endTime,
			strconv.FormatInt(s.DurationSeconds, 10),
			strconv.Itoa(s.Counts.Total),
			strconv.Itoa(s.Counts.Drowsy),
			strconv.Itoa(s.Counts.Awake),
			strconv.Itoa(s.Counts.Yawn),
			strconv.FormatBool(s.AlarmTriggered),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
