package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionType distinguishes live camera monitoring from uploaded-media analysis.
type SessionType string

const (
	SessionLive   SessionType = "live"
	SessionUpload SessionType = "upload"
)

// SessionStatus is the lifecycle state of a detection session.
// Completed and interrupted are terminal.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionInterrupted SessionStatus = "interrupted"
)

// ClassCounts holds cumulative per-class detection totals for a session.
// Drowsy is incremented once per alarm-triggering event, not once per frame.
type ClassCounts struct {
	Total  int `json:"total_detections"`
	Drowsy int `json:"drowsiness_count"`
	Awake  int `json:"awake_count"`
	Yawn   int `json:"yawn_count"`
}

// DetectionSession is one continuous monitoring run for a user. Counters are
// monotonically non-decreasing while the session is active and immutable once
// it reaches a terminal status.
type DetectionSession struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"user_id"`
	Type            SessionType   `json:"session_type"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"start_time"`
	EndedAt         *time.Time    `json:"end_time,omitempty"`
	DurationSeconds int64         `json:"duration"`
	Counts          ClassCounts   `json:"counts"`
	AlarmTriggered  bool          `json:"alarm_triggered"`
	CreatedAt       time.Time     `json:"created_at"`
}
