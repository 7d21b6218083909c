package detection

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drowsyguard/backend/internal/models"
)

// Repository persists detection sessions and alarm events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a detection repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts a new session row.
func (r *Repository) CreateSession(ctx context.Context, s *models.DetectionSession) error {
	const query = `INSERT INTO detection_sessions
		(id, user_id, session_type, status, start_time, end_time, duration,
		 total_detections, drowsiness_count, awake_count, yawn_count, alarm_triggered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.Type, s.Status, s.StartedAt, s.EndedAt, s.DurationSeconds,
		s.Counts.Total, s.Counts.Drowsy, s.Counts.Awake, s.Counts.Yawn, s.AlarmTriggered).
		Scan(&s.CreatedAt)
}

// FinalizeSession writes the terminal status, end time, and final counters.
func (r *Repository) FinalizeSession(ctx context.Context, s models.DetectionSession) error {
	const query = `UPDATE detection_sessions
		SET status = $2, end_time = $3, duration = $4,
		    total_detections = $5, drowsiness_count = $6, awake_count = $7, yawn_count = $8,
		    alarm_triggered = $9
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Status, s.EndedAt, s.DurationSeconds,
		s.Counts.Total, s.Counts.Drowsy, s.Counts.Awake, s.Counts.Yawn, s.AlarmTriggered)
	return err
}

// SaveEvent inserts one alarm-triggering detection event.
func (r *Repository) SaveEvent(ctx context.Context, e models.DetectionEvent) error {
	const query = `INSERT INTO detection_events
		(id, session_id, class, confidence, box_x1, box_y1, box_x2, box_y2, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		e.ID, e.SessionID, e.Class, e.Confidence,
		e.Box.X1, e.Box.Y1, e.Box.X2, e.Box.Y2, e.Timestamp)
	return err
}
