package detection

import (
	"math"
	"testing"

	"github.com/drowsyguard/backend/internal/models"
)

func boxEq(a, b models.Box) bool {
	const eps = 1e-9
	return math.Abs(a.X1-b.X1) < eps && math.Abs(a.Y1-b.Y1) < eps &&
		math.Abs(a.X2-b.X2) < eps && math.Abs(a.Y2-b.Y2) < eps
}

func TestSmootherNeutralFallback(t *testing.T) {
	s := NewSmoother(SmootherConfig{})

	det := s.Observe(640, 480, nil)
	if det.Class != models.ClassAwake {
		t.Fatalf("expected class %q, got %q", models.ClassAwake, det.Class)
	}
	if det.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", det.Confidence)
	}
	want := models.Box{X1: 220, Y1: 140, X2: 420, Y2: 340}
	if !boxEq(det.Box, want) {
		t.Errorf("expected centered box %+v, got %+v", want, det.Box)
	}
	if det.SmoothedOver != 1 {
		t.Errorf("expected SmoothedOver 1, got %d", det.SmoothedOver)
	}
}

func TestSmootherSizeFilter(t *testing.T) {
	s := NewSmoother(SmootherConfig{})

	// Too small (30px) and too large (450px > 0.8*480) both fall back to neutral.
	tooSmall := models.Candidate{Class: models.ClassDrowsy, Confidence: 0.99, Box: models.Box{X1: 0, Y1: 0, X2: 30, Y2: 30}}
	tooLarge := models.Candidate{Class: models.ClassDrowsy, Confidence: 0.99, Box: models.Box{X1: 0, Y1: 0, X2: 450, Y2: 450}}

	det := s.Observe(640, 480, []models.Candidate{tooSmall, tooLarge})
	if det.Class != models.ClassAwake {
		t.Fatalf("expected neutral fallback, got class %q", det.Class)
	}
}

func TestSmootherPicksHighestConfidence(t *testing.T) {
	s := NewSmoother(SmootherConfig{})

	candidates := []models.Candidate{
		{Class: models.ClassYawn, Confidence: 0.6, Box: models.Box{X1: 10, Y1: 10, X2: 110, Y2: 110}},
		{Class: models.ClassDrowsy, Confidence: 0.9, Box: models.Box{X1: 20, Y1: 20, X2: 120, Y2: 120}},
		{Class: models.ClassAwake, Confidence: 0.7, Box: models.Box{X1: 30, Y1: 30, X2: 130, Y2: 130}},
	}
	det := s.Observe(640, 480, candidates)
	if det.Class != models.ClassDrowsy {
		t.Fatalf("expected highest-confidence class %q, got %q", models.ClassDrowsy, det.Class)
	}
	if det.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", det.Confidence)
	}
}

func TestSmootherNoBlendBeforeThreeSameClass(t *testing.T) {
	s := NewSmoother(SmootherConfig{})
	c := func(x float64) []models.Candidate {
		return []models.Candidate{{Class: models.ClassDrowsy, Confidence: 0.9, Box: models.Box{X1: x, Y1: 100, X2: x + 100, Y2: 200}}}
	}

	for i, x := range []float64{100, 110} {
		det := s.Observe(640, 480, c(x))
		if det.SmoothedOver != 1 {
			t.Fatalf("frame %d: expected raw box (SmoothedOver 1), got %d", i, det.SmoothedOver)
		}
		if det.Box.X1 != x {
			t.Errorf("frame %d: expected unblended X1 %v, got %v", i, x, det.Box.X1)
		}
	}
}

func TestSmootherBlendsAtThreeSameClass(t *testing.T) {
	s := NewSmoother(SmootherConfig{})
	frame := func(x float64) models.Detection {
		return s.Observe(640, 480, []models.Candidate{
			{Class: models.ClassDrowsy, Confidence: 0.9, Box: models.Box{X1: x, Y1: 100, X2: x + 100, Y2: 200}},
		})
	}

	frame(100)
	frame(110)
	det := frame(130)
	if det.SmoothedOver != 3 {
		t.Fatalf("expected SmoothedOver 3, got %d", det.SmoothedOver)
	}
	// 0.7*130 + 0.3*mean(100,110,130)
	wantX1 := 0.7*130 + 0.3*(100+110+130)/3
	if math.Abs(det.Box.X1-wantX1) > 1e-9 {
		t.Errorf("expected blended X1 %v, got %v", wantX1, det.Box.X1)
	}
}

func TestSmootherClassChangeEmitsRawBox(t *testing.T) {
	s := NewSmoother(SmootherConfig{})
	drowsy := []models.Candidate{{Class: models.ClassDrowsy, Confidence: 0.9, Box: models.Box{X1: 100, Y1: 100, X2: 200, Y2: 200}}}
	awake := []models.Candidate{{Class: models.ClassAwake, Confidence: 0.9, Box: models.Box{X1: 300, Y1: 100, X2: 400, Y2: 200}}}

	s.Observe(640, 480, drowsy)
	s.Observe(640, 480, drowsy)
	s.Observe(640, 480, drowsy)

	det := s.Observe(640, 480, awake)
	if det.Class != models.ClassAwake {
		t.Fatalf("expected class %q, got %q", models.ClassAwake, det.Class)
	}
	if det.SmoothedOver != 1 {
		t.Errorf("class change should not blend, got SmoothedOver %d", det.SmoothedOver)
	}
	if det.Box.X1 != 300 {
		t.Errorf("expected raw X1 300, got %v", det.Box.X1)
	}
}

func TestSmootherClampsToFrame(t *testing.T) {
	s := NewSmoother(SmootherConfig{})
	det := s.Observe(640, 480, []models.Candidate{
		{Class: models.ClassAwake, Confidence: 0.9, Box: models.Box{X1: -20, Y1: -20, X2: 80, Y2: 80}},
	})
	if det.Box.X1 != 0 || det.Box.Y1 != 0 {
		t.Errorf("expected box clamped to origin, got %+v", det.Box)
	}

	det = s.Observe(640, 480, []models.Candidate{
		{Class: models.ClassAwake, Confidence: 0.9, Box: models.Box{X1: 560, Y1: 400, X2: 700, Y2: 520}},
	})
	if det.Box.X2 != 639 || det.Box.Y2 != 479 {
		t.Errorf("expected box clamped to 639x479, got %+v", det.Box)
	}
}
