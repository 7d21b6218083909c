package dashboard

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drowsyguard/backend/internal/history"
	"github.com/drowsyguard/backend/internal/middleware"
	"github.com/drowsyguard/backend/internal/models"
	"github.com/drowsyguard/backend/pkg/response"
)

// Handler serves the dashboard overview endpoints.
type Handler struct {
	pool        *pgxpool.Pool
	historyRepo *history.Repository
}

// NewHandler creates a dashboard handler.
func NewHandler(pool *pgxpool.Pool, historyRepo *history.Repository) *Handler {
	return &Handler{pool: pool, historyRepo: historyRepo}
}

// StatsResponse is the JSON shape for the dashboard overview.
type StatsResponse struct {
	TotalSessions      int          `json:"total_sessions"`
	TotalDurationSecs  int64        `json:"total_duration_seconds"`
	DrowsinessEvents   int          `json:"drowsiness_events"`
	YawnCount          int          `json:"yawn_count"`
	SessionsWithAlarms int          `json:"sessions_with_alarms"`
	AlertRatePercent   float64      `json:"alert_rate_percent"`
	SessionsLast7Days  []DailyCount `json:"sessions_last_7_days"`
}

// DailyCount is one day's session count for the activity chart.
type DailyCount struct {
	Day      string `json:"day"`
	Sessions int    `json:"sessions"`
	Alarms   int    `json:"alarms"`
}

// Stats handles GET /dashboard/stats.
func (h *Handler) Stats(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()

	sum, err := h.historyRepo.GetSummary(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load summary")
		return
	}

	daily, err := h.dailyCounts(c, userID)
	if err != nil {
		response.Internal(c, "failed to load activity")
		return
	}

	out := StatsResponse{
		TotalSessions:      sum.TotalSessions,
		TotalDurationSecs:  sum.TotalDurationSecs,
		DrowsinessEvents:   sum.DrowsinessEvents,
		YawnCount:          sum.YawnCount,
		SessionsWithAlarms: sum.SessionsWithAlarms,
		SessionsLast7Days:  daily,
	}
	if sum.TotalSessions > 0 {
		out.AlertRatePercent = float64(sum.SessionsWithAlarms) / float64(sum.TotalSessions) * 100
	}
	response.OK(c, out)
}

// RecentSessions handles GET /dashboard/recent-sessions.
func (h *Handler) RecentSessions(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	recent, _, err := h.historyRepo.ListByUser(c.Request.Context(), userID, "", 5, 0)
	if err != nil {
		response.Internal(c, "failed to load recent sessions")
		return
	}
	if recent == nil {
		recent = []models.DetectionSession{}
	}
	response.OK(c, gin.H{"sessions": recent})
}

func (h *Handler) dailyCounts(c *gin.Context, userID uuid.UUID) ([]DailyCount, error) {
	const q = `SELECT TO_CHAR(day, 'YYYY-MM-DD'),
		COALESCE(COUNT(s.id), 0),
		COALESCE(COUNT(s.id) FILTER (WHERE s.alarm_triggered), 0)
		FROM generate_series(CURRENT_DATE - INTERVAL '6 days', CURRENT_DATE, '1 day') AS day
		LEFT JOIN detection_sessions s
			ON s.user_id = $1 AND s.start_time::date = day
		GROUP BY day ORDER BY day`
	rows, err := h.pool.Query(c.Request.Context(), q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var daily []DailyCount
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Day, &d.Sessions, &d.Alarms); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}
