package models

import (
	"time"

	"github.com/google/uuid"
)

// UserSettings holds per-user detection and alarm preferences. TriggerFrames
// overrides the default consecutive-drowsy-frame count before an alarm fires;
// DetectionSensitivity is the classifier confidence floor.
type UserSettings struct {
	UserID               uuid.UUID `json:"user_id"`
	DetectionSensitivity float64   `json:"detection_sensitivity"`
	TriggerFrames        int       `json:"trigger_time"`
	AlarmEnabled         bool      `json:"alarm_enabled"`
	AlarmVolume          float64   `json:"alarm_volume"`
	AlarmSound           string    `json:"alarm_sound"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultUserSettings returns the settings applied before a user has saved any.
func DefaultUserSettings(userID uuid.UUID) UserSettings {
	return UserSettings{
		UserID:               userID,
		DetectionSensitivity: 0.5,
		TriggerFrames:        3,
		AlarmEnabled:         true,
		AlarmVolume:          0.8,
		AlarmSound:           "default",
		NotificationsEnabled: true,
	}
}
