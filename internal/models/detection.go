package models

import (
	"time"

	"github.com/google/uuid"
)

// Detection class labels produced by the classifier after normalization.
const (
	ClassAwake  = "awake"
	ClassDrowsy = "drowsy"
	ClassYawn   = "yawn"
)

// Box is a bounding box in frame pixel coordinates (x1 < x2, y1 < y2).
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width in pixels.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Candidate is one raw classifier output for a single frame. Candidates are
// ephemeral; they exist only on the way into the smoother.
type Candidate struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"bbox"`
}

// Detection is the smoother's stabilized output for a single frame.
// SmoothedOver reports how many recent same-class frames contributed to the
// bbox position (1 = raw, unblended).
type Detection struct {
	Class        string  `json:"class"`
	Confidence   float64 `json:"confidence"`
	Box          Box     `json:"bbox"`
	SmoothedOver int     `json:"smoothed_over"`
}

// DetectionEvent is a persisted detection, written when an alarm fires.
type DetectionEvent struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	Box        Box       `json:"bbox"`
	Timestamp  time.Time `json:"timestamp"`
}
