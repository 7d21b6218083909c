package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"time"

	// Frame payload formats accepted by image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/drowsyguard/backend/internal/metrics"
	"github.com/drowsyguard/backend/internal/models"
)

// ErrInvalidImage is returned when a frame payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image payload")

// Classifier is the external detection model boundary: one image in, zero or
// more candidates out. minConfidence is the caller's confidence floor.
type Classifier interface {
	Classify(ctx context.Context, img []byte, minConfidence float64) ([]models.Candidate, error)
}

// Store is the durable persistence boundary for session rows and saved detections.
type Store interface {
	CreateSession(ctx context.Context, s *models.DetectionSession) error
	FinalizeSession(ctx context.Context, s models.DetectionSession) error
	SaveEvent(ctx context.Context, e models.DetectionEvent) error
}

// SettingsSource provides per-user detection preferences at session start.
type SettingsSource interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
}

// EventSink receives realtime detection/alarm events for connected monitors.
type EventSink interface {
	PublishDetection(sessionID uuid.UUID, d models.Detection, alarmTriggered bool)
}

// EventQueue enqueues alarm-triggering detections for asynchronous persistence.
type EventQueue interface {
	EnqueueDetectionEvent(ctx context.Context, e models.DetectionEvent) error
}

// Config holds the pipeline defaults; per-user settings can override the
// debounce trigger and confidence floor.
type Config struct {
	Smoother      SmootherConfig
	Debounce      DebounceConfig
	MinConfidence float64
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.5
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// FrameResult is the response for one analyzed frame. Detections always holds
// exactly one entry.
type FrameResult struct {
	SessionID          uuid.UUID          `json:"session_id"`
	Detections         []models.Detection `json:"detections"`
	DrowsinessDetected bool               `json:"drowsiness_detected"`
	AlarmTriggered     bool               `json:"alarm_triggered"`
}

// UploadResult aggregates per-class counts for an analyzed uploaded image.
type UploadResult struct {
	SessionID  uuid.UUID          `json:"session_id"`
	Counts     models.ClassCounts `json:"counts"`
	Detections []models.Detection `json:"detections"`
}

// Service runs the frame-analysis pipeline: classify, smooth, debounce,
// update counters, persist, publish. Errors local to one frame degrade
// gracefully; a failure on one session never affects another.
type Service struct {
	cfg        Config
	registry   *Registry
	classifier Classifier
	store      Store
	settings   SettingsSource // optional
	events     EventSink      // optional
	queue      EventQueue     // optional; falls back to synchronous store writes
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService creates the detection service. settings, events, queue, and
// metrics may be nil.
func NewService(cfg Config, registry *Registry, classifier Classifier, store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg.withDefaults(),
		registry:   registry,
		classifier: classifier,
		store:      store,
		logger:     logger,
	}
}

// WithSettings attaches a per-user settings source.
func (s *Service) WithSettings(src SettingsSource) *Service { s.settings = src; return s }

// WithEvents attaches a realtime event sink.
func (s *Service) WithEvents(sink EventSink) *Service { s.events = sink; return s }

// WithQueue attaches an async persistence queue for detection events.
func (s *Service) WithQueue(q EventQueue) *Service { s.queue = q; return s }

// WithMetrics attaches Prometheus instrumentation.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service { s.metrics = m; return s }

// Start creates and registers a new active session for owner, superseding any
// prior active session (persisted as interrupted). It fails only when the
// durable store cannot record the new session.
func (s *Service) Start(ctx context.Context, owner uuid.UUID, typ models.SessionType) (models.DetectionSession, error) {
	smootherCfg := s.cfg.Smoother
	debounceCfg := s.cfg.Debounce
	minConf := s.cfg.MinConfidence
	if s.settings != nil {
		if prefs, err := s.settings.GetByUser(ctx, owner); err == nil && prefs != nil {
			if prefs.TriggerFrames > 0 {
				debounceCfg.TriggerFrames = prefs.TriggerFrames
			}
			if prefs.DetectionSensitivity > 0 {
				minConf = prefs.DetectionSensitivity
			}
		} else if err != nil {
			s.logger.Warn("load user settings", zap.Error(err), zap.String("user_id", owner.String()))
		}
	}

	sess, superseded := s.registry.Create(owner, typ, NewSmoother(smootherCfg), NewDebouncer(debounceCfg), minConf)
	if superseded != nil {
		s.logger.Info("superseded orphaned session",
			zap.String("session_id", superseded.ID.String()),
			zap.String("user_id", owner.String()))
		if err := s.store.FinalizeSession(ctx, *superseded); err != nil {
			s.logger.Error("persist interrupted session", zap.Error(err), zap.String("session_id", superseded.ID.String()))
		}
	}

	if err := s.store.CreateSession(ctx, &sess); err != nil {
		// Roll the registry back so a later start is not treated as supersession.
		_, _ = s.registry.Abandon(sess.ID)
		return models.DetectionSession{}, err
	}
	s.setActiveGauge()
	return sess, nil
}

// AnalyzeFrame runs the pipeline for one frame of an active session.
// A classifier failure is absorbed: the frame proceeds with zero candidates
// and the smoother's neutral fallback.
func (s *Service) AnalyzeFrame(ctx context.Context, sessionID, owner uuid.UUID, img []byte) (FrameResult, error) {
	started := time.Now()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return FrameResult{}, ErrInvalidImage
	}

	minConf := s.cfg.MinConfidence
	ownerOK := false
	if err := s.registry.Update(sessionID, func(ls *LiveSession) {
		ownerOK = ls.state.UserID == owner
		if ls.minConfidence > 0 {
			minConf = ls.minConfidence
		}
	}); err != nil {
		return FrameResult{}, err
	}
	if !ownerOK {
		return FrameResult{}, ErrSessionNotFound
	}

	candidates, err := s.classifier.Classify(ctx, img, minConf)
	if err != nil {
		s.logger.Warn("classifier unavailable, using neutral fallback",
			zap.Error(err), zap.String("session_id", sessionID.String()))
		if s.metrics != nil {
			s.metrics.ClassifierErrors.Inc()
		}
		candidates = nil
	}

	var (
		det   models.Detection
		alarm bool
	)
	now := time.Now()
	err = s.registry.Update(sessionID, func(ls *LiveSession) {
		det = ls.Smoother().Observe(cfg.Width, cfg.Height, candidates)
		alarm = ls.Debouncer().Observe(det.Class, now)
		ls.Record(det.Class, alarm, now)
	})
	if err != nil {
		// Finalized mid-call: drop the frame.
		return FrameResult{}, err
	}

	if alarm {
		event := models.DetectionEvent{
			ID:         uuid.New(),
			SessionID:  sessionID,
			Class:      det.Class,
			Confidence: det.Confidence,
			Box:        det.Box,
			Timestamp:  now,
		}
		s.persistEvent(ctx, event)
		if s.metrics != nil {
			s.metrics.AlarmsTriggered.Inc()
		}
	}
	if s.events != nil {
		s.events.PublishDetection(sessionID, det, alarm)
	}
	if s.metrics != nil {
		s.metrics.FramesProcessed.Inc()
		s.metrics.FrameDuration.Observe(time.Since(started).Seconds())
	}

	return FrameResult{
		SessionID:          sessionID,
		Detections:         []models.Detection{det},
		DrowsinessDetected: det.Class == models.ClassDrowsy,
		AlarmTriggered:     alarm,
	}, nil
}

// persistEvent enqueues the detection for the worker, or writes it directly
// when no queue is configured. Failures are logged and absorbed; in-memory
// counters are already updated and must not be corrupted by storage hiccups.
func (s *Service) persistEvent(ctx context.Context, e models.DetectionEvent) {
	if s.queue != nil {
		err := s.queue.EnqueueDetectionEvent(ctx, e)
		if err == nil {
			return
		}
		s.logger.Warn("enqueue detection event, falling back to direct write", zap.Error(err))
	}
	if err := s.store.SaveEvent(ctx, e); err != nil {
		s.logger.Error("save detection event", zap.Error(err), zap.String("session_id", e.SessionID.String()))
	}
}

// Stop finalizes a session as completed and persists its summary.
func (s *Service) Stop(ctx context.Context, sessionID, owner uuid.UUID) (models.DetectionSession, error) {
	sum, err := s.registry.Stop(sessionID, owner)
	if err != nil {
		return models.DetectionSession{}, err
	}
	if err := s.store.FinalizeSession(ctx, sum); err != nil {
		s.logger.Error("persist completed session", zap.Error(err), zap.String("session_id", sum.ID.String()))
	}
	s.setActiveGauge()
	return sum, nil
}

// Abandon finalizes a session as interrupted. It is idempotent: unknown or
// already-terminal sessions are a no-op, not an error.
func (s *Service) Abandon(ctx context.Context, sessionID uuid.UUID) error {
	sum, err := s.registry.Abandon(sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.FinalizeSession(ctx, sum); err != nil {
		s.logger.Error("persist interrupted session", zap.Error(err), zap.String("session_id", sum.ID.String()))
	}
	s.setActiveGauge()
	return nil
}

// AnalyzeUpload classifies a single uploaded image and records the result as
// an immediately-completed upload session. Every candidate above the
// confidence floor counts, without smoothing; there is no frame stream to smooth.
func (s *Service) AnalyzeUpload(ctx context.Context, owner uuid.UUID, img []byte) (UploadResult, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		return UploadResult{}, ErrInvalidImage
	}

	candidates, err := s.classifier.Classify(ctx, img, s.cfg.MinConfidence)
	if err != nil {
		s.logger.Warn("classifier unavailable for upload", zap.Error(err))
		if s.metrics != nil {
			s.metrics.ClassifierErrors.Inc()
		}
		candidates = nil
	}

	var counts models.ClassCounts
	detections := make([]models.Detection, 0, len(candidates))
	for _, c := range candidates {
		counts.Total++
		switch c.Class {
		case models.ClassDrowsy:
			counts.Drowsy++
		case models.ClassYawn:
			counts.Yawn++
		case models.ClassAwake:
			counts.Awake++
		}
		detections = append(detections, models.Detection{
			Class:        c.Class,
			Confidence:   c.Confidence,
			Box:          c.Box,
			SmoothedOver: 1,
		})
	}

	now := time.Now()
	ended := now
	sess := models.DetectionSession{
		ID:             uuid.New(),
		UserID:         owner,
		Type:           models.SessionUpload,
		Status:         models.SessionCompleted,
		StartedAt:      now,
		EndedAt:        &ended,
		Counts:         counts,
		AlarmTriggered: false,
		CreatedAt:      now,
	}
	if err := s.store.CreateSession(ctx, &sess); err != nil {
		return UploadResult{}, err
	}
	if err := s.store.FinalizeSession(ctx, sess); err != nil {
		s.logger.Error("persist upload session", zap.Error(err), zap.String("session_id", sess.ID.String()))
	}
	return UploadResult{SessionID: sess.ID, Counts: counts, Detections: detections}, nil
}

// RunSweeper periodically finalizes idle sessions as interrupted until ctx is
// cancelled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopping")
			return
		case <-ticker.C:
			for _, sum := range s.registry.Sweep(s.cfg.IdleTimeout) {
				s.logger.Info("swept idle session",
					zap.String("session_id", sum.ID.String()),
					zap.Int64("duration_seconds", sum.DurationSeconds))
				if err := s.store.FinalizeSession(ctx, sum); err != nil {
					s.logger.Error("persist swept session", zap.Error(err), zap.String("session_id", sum.ID.String()))
				}
			}
			s.setActiveGauge()
		}
	}
}

func (s *Service) setActiveGauge() {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.registry.Len()))
	}
}
