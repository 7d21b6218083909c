package detection

import (
	"github.com/drowsyguard/backend/internal/models"
)

// Bbox blend weights: the smoothed box keeps most of the current frame's
// position and borrows a fraction from the recent same-class average, so
// jitter is damped without delaying class transitions.
const (
	blendCurrent = 0.7
	blendHistory = 0.3
	// sameClassSpan is how many recent same-class entries feed the average.
	sameClassSpan = 3
)

// SmootherConfig controls per-session bbox smoothing.
type SmootherConfig struct {
	// Window is the rolling history capacity (frames).
	Window int
	// MinBoxSize is the minimum candidate box width/height in pixels.
	MinBoxSize float64
	// MaxBoxFrac caps box width/height at this fraction of the smaller frame dimension.
	MaxBoxFrac float64
	// NeutralConfidence and NeutralBoxSize shape the synthetic detection
	// emitted when no candidate survives filtering.
	NeutralConfidence float64
	NeutralBoxSize    float64
}

func (c SmootherConfig) withDefaults() SmootherConfig {
	if c.Window <= 0 {
		c.Window = 3
	}
	if c.MinBoxSize <= 0 {
		c.MinBoxSize = 40
	}
	if c.MaxBoxFrac <= 0 {
		c.MaxBoxFrac = 0.8
	}
	if c.NeutralConfidence <= 0 {
		c.NeutralConfidence = 0.8
	}
	if c.NeutralBoxSize <= 0 {
		c.NeutralBoxSize = 200
	}
	return c
}

// Smoother converts one frame's raw candidates into a single stabilized
// Detection, damping bbox jitter without masking class changes. It never
// fails: when no candidate survives filtering it emits a synthetic neutral
// detection so downstream consumers always receive a value.
//
// Smoother is not safe for concurrent use; the session registry serializes
// access per session.
type Smoother struct {
	cfg     SmootherConfig
	history []models.Candidate
}

// NewSmoother creates a smoother with zero-value fields defaulted.
func NewSmoother(cfg SmootherConfig) *Smoother {
	cfg = cfg.withDefaults()
	return &Smoother{cfg: cfg, history: make([]models.Candidate, 0, cfg.Window)}
}

// Observe processes one frame's candidates and returns the stabilized detection.
func (s *Smoother) Observe(frameW, frameH int, candidates []models.Candidate) models.Detection {
	maxSize := s.cfg.MaxBoxFrac * float64(min(frameW, frameH))

	var best *models.Candidate
	for i := range candidates {
		c := candidates[i]
		w, h := c.Box.Width(), c.Box.Height()
		if w < s.cfg.MinBoxSize || w > maxSize || h < s.cfg.MinBoxSize || h > maxSize {
			continue
		}
		// Highest confidence wins; ties keep the first seen.
		if best == nil || c.Confidence > best.Confidence {
			best = &candidates[i]
		}
	}
	if best == nil {
		return s.neutral(frameW, frameH)
	}

	s.push(*best)

	box := best.Box
	smoothedOver := 1
	if same := s.sameClassTail(best.Class); len(same) >= sameClassSpan {
		avg := meanBox(same)
		box = models.Box{
			X1: blendCurrent*box.X1 + blendHistory*avg.X1,
			Y1: blendCurrent*box.Y1 + blendHistory*avg.Y1,
			X2: blendCurrent*box.X2 + blendHistory*avg.X2,
			Y2: blendCurrent*box.Y2 + blendHistory*avg.Y2,
		}
		smoothedOver = len(same)
	}
	box = clampBox(box, frameW, frameH)

	return models.Detection{
		Class:        best.Class,
		Confidence:   best.Confidence,
		Box:          box,
		SmoothedOver: smoothedOver,
	}
}

// neutral is the fallback detection for frames with no usable candidate:
// the no-concern class with a moderate confidence, centered in the frame.
func (s *Smoother) neutral(frameW, frameH int) models.Detection {
	half := s.cfg.NeutralBoxSize / 2
	cx, cy := float64(frameW)/2, float64(frameH)/2
	return models.Detection{
		Class:        models.ClassAwake,
		Confidence:   s.cfg.NeutralConfidence,
		Box:          clampBox(models.Box{X1: cx - half, Y1: cy - half, X2: cx + half, Y2: cy + half}, frameW, frameH),
		SmoothedOver: 1,
	}
}

func (s *Smoother) push(c models.Candidate) {
	if len(s.history) == s.cfg.Window {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, c)
}

// sameClassTail returns up to sameClassSpan most recent history entries
// matching class, oldest first. The current frame is already in history.
func (s *Smoother) sameClassTail(class string) []models.Candidate {
	var same []models.Candidate
	for _, c := range s.history {
		if c.Class == class {
			same = append(same, c)
		}
	}
	if len(same) > sameClassSpan {
		same = same[len(same)-sameClassSpan:]
	}
	return same
}

func meanBox(cs []models.Candidate) models.Box {
	var b models.Box
	for _, c := range cs {
		b.X1 += c.Box.X1
		b.Y1 += c.Box.Y1
		b.X2 += c.Box.X2
		b.Y2 += c.Box.Y2
	}
	n := float64(len(cs))
	return models.Box{X1: b.X1 / n, Y1: b.Y1 / n, X2: b.X2 / n, Y2: b.Y2 / n}
}

func clampBox(b models.Box, frameW, frameH int) models.Box {
	maxX, maxY := float64(frameW-1), float64(frameH-1)
	return models.Box{
		X1: clamp(b.X1, 0, maxX),
		Y1: clamp(b.Y1, 0, maxY),
		X2: clamp(b.X2, 0, maxX),
		Y2: clamp(b.Y2, 0, maxY),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
