package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drowsyguard/backend/internal/models"
)

// Repository handles user settings persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a settings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByUser returns the user's settings, falling back to defaults when no row
// exists yet.
func (r *Repository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	const q = `SELECT user_id, detection_sensitivity, trigger_frames, alarm_enabled, alarm_volume,
		alarm_sound, notifications_enabled, updated_at
		FROM user_settings WHERE user_id = $1`
	var s models.UserSettings
	err := r.pool.QueryRow(ctx, q, userID).
		Scan(&s.UserID, &s.DetectionSensitivity, &s.TriggerFrames, &s.AlarmEnabled, &s.AlarmVolume,
			&s.AlarmSound, &s.NotificationsEnabled, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		def := models.DefaultUserSettings(userID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert writes the user's settings, inserting on first save.
func (r *Repository) Upsert(ctx context.Context, s *models.UserSettings) error {
	const q = `INSERT INTO user_settings
		(user_id, detection_sensitivity, trigger_frames, alarm_enabled, alarm_volume, alarm_sound, notifications_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			detection_sensitivity = EXCLUDED.detection_sensitivity,
			trigger_frames = EXCLUDED.trigger_frames,
			alarm_enabled = EXCLUDED.alarm_enabled,
			alarm_volume = EXCLUDED.alarm_volume,
			alarm_sound = EXCLUDED.alarm_sound,
			notifications_enabled = EXCLUDED.notifications_enabled,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q,
		s.UserID, s.DetectionSensitivity, s.TriggerFrames, s.AlarmEnabled, s.AlarmVolume,
		s.AlarmSound, s.NotificationsEnabled).
		Scan(&s.UpdatedAt)
}
