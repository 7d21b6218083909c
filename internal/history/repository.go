package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drowsyguard/backend/internal/models"
)

// Repository reads finished detection sessions and their events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, user_id, session_type, status, start_time, end_time, duration,
	total_detections, drowsiness_count, awake_count, yawn_count, alarm_triggered, created_at`

func scanSession(row interface{ Scan(...any) error }) (models.DetectionSession, error) {
	var s models.DetectionSession
	err := row.Scan(&s.ID, &s.UserID, &s.Type, &s.Status, &s.StartedAt, &s.EndedAt, &s.DurationSeconds,
		&s.Counts.Total, &s.Counts.Drowsy, &s.Counts.Awake, &s.Counts.Yawn, &s.AlarmTriggered, &s.CreatedAt)
	return s, err
}

// ListByUser returns a page of the user's sessions, newest first, plus the
// total row count for pagination.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.DetectionSession, int, error) {
	var total int
	if status != "" {
		const countQ = `SELECT COUNT(*) FROM detection_sessions WHERE user_id = $1 AND status = $2`
		if err := r.pool.QueryRow(ctx, countQ, userID, status).Scan(&total); err != nil {
			return nil, 0, err
		}
	} else {
		const countQ = `SELECT COUNT(*) FROM detection_sessions WHERE user_id = $1`
		if err := r.pool.QueryRow(ctx, countQ, userID).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	query := `SELECT ` + sessionColumns + ` FROM detection_sessions WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2 ORDER BY start_time DESC LIMIT $3 OFFSET $4`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY start_time DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []models.DetectionSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

// GetByID returns one of the user's sessions.
func (r *Repository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.DetectionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM detection_sessions WHERE id = $1 AND user_id = $2`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListEvents returns the alarm events recorded for a session, oldest first.
func (r *Repository) ListEvents(ctx context.Context, sessionID uuid.UUID) ([]models.DetectionEvent, error) {
	const q = `SELECT id, session_id, class, confidence, box_x1, box_y1, box_x2, box_y2, detected_at
		FROM detection_events WHERE session_id = $1 ORDER BY detected_at`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.DetectionEvent
	for rows.Next() {
		var e models.DetectionEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Class, &e.Confidence,
			&e.Box.X1, &e.Box.Y1, &e.Box.X2, &e.Box.Y2, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Summary aggregates a user's monitoring totals.
type Summary struct {
	TotalSessions      int   `json:"total_sessions"`
	CompletedSessions  int   `json:"completed_sessions"`
	TotalDurationSecs  int64 `json:"total_duration_seconds"`
	TotalDetections    int   `json:"total_detections"`
	DrowsinessEvents   int   `json:"drowsiness_events"`
	YawnCount          int   `json:"yawn_count"`
	SessionsWithAlarms int   `json:"sessions_with_alarms"`
}

// GetSummary returns aggregate totals across all the user's sessions.
func (r *Repository) GetSummary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'completed'),
		COALESCE(SUM(duration), 0),
		COALESCE(SUM(total_detections), 0),
		COALESCE(SUM(drowsiness_count), 0),
		COALESCE(SUM(yawn_count), 0),
		COUNT(*) FILTER (WHERE alarm_triggered)
		FROM detection_sessions WHERE user_id = $1`
	var s Summary
	err := r.pool.QueryRow(ctx, q, userID).
		Scan(&s.TotalSessions, &s.CompletedSessions, &s.TotalDurationSecs, &s.TotalDetections,
			&s.DrowsinessEvents, &s.YawnCount, &s.SessionsWithAlarms)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSince returns the user's sessions that started on or after since, newest
// first, without pagination. Used for exports.
func (r *Repository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.DetectionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM detection_sessions
		WHERE user_id = $1 AND start_time >= $2 ORDER BY start_time DESC`
	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.DetectionSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
