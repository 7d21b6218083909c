package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestDefaultUserSettings(t *testing.T) {
	id := uuid.New()
	def := DefaultUserSettings(id)

	if def.UserID != id {
		t.Errorf("UserID = %s, want %s", def.UserID, id)
	}
	if def.DetectionSensitivity != 0.5 {
		t.Errorf("DetectionSensitivity = %v, want 0.5", def.DetectionSensitivity)
	}
	if def.TriggerFrames != 3 {
		t.Errorf("TriggerFrames = %d, want 3", def.TriggerFrames)
	}
	if !def.AlarmEnabled || !def.NotificationsEnabled {
		t.Error("alarm and notifications should default to enabled")
	}
	if def.AlarmSound != "default" {
		t.Errorf("AlarmSound = %q, want %q", def.AlarmSound, "default")
	}

	// Callers hold their own copy; mutating one must not leak into another.
	other := DefaultUserSettings(id)
	other.TriggerFrames = 10
	if def.TriggerFrames != 3 {
		t.Errorf("defaults are shared: TriggerFrames = %d", def.TriggerFrames)
	}
}
