package settings

import (
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drowsyguard/backend/internal/middleware"
	"github.com/drowsyguard/backend/internal/models"
	"github.com/drowsyguard/backend/pkg/response"
	"github.com/drowsyguard/backend/pkg/storage"
)

// UpdateRequest is the body for PUT /settings/alarm.
type UpdateRequest struct {
	DetectionSensitivity float64 `json:"detection_sensitivity" binding:"required,gt=0,lte=1"`
	TriggerFrames        int     `json:"trigger_frames" binding:"required,min=1,max=30"`
	AlarmEnabled         *bool   `json:"alarm_enabled" binding:"required"`
	AlarmVolume          float64 `json:"alarm_volume" binding:"gte=0,lte=1"`
	AlarmSound           string  `json:"alarm_sound"`
	NotificationsEnabled *bool   `json:"notifications_enabled" binding:"required"`
}

// Handler handles settings HTTP endpoints.
type Handler struct {
	repo   *Repository
	s3     *storage.S3 // nil when object storage is not configured
	logger *zap.Logger
}

// NewHandler creates a settings handler.
func NewHandler(repo *Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// Get handles GET /settings/alarm.
func (h *Handler) Get(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	s, err := h.repo.GetByUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load settings")
		return
	}
	response.OK(c, s)
}

// Update handles PUT /settings/alarm.
func (h *Handler) Update(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	s := models.UserSettings{
		UserID:               userID,
		DetectionSensitivity: req.DetectionSensitivity,
		TriggerFrames:        req.TriggerFrames,
		AlarmEnabled:         *req.AlarmEnabled,
		AlarmVolume:          req.AlarmVolume,
		AlarmSound:           req.AlarmSound,
		NotificationsEnabled: *req.NotificationsEnabled,
	}
	if s.AlarmSound == "" {
		s.AlarmSound = "default"
	}
	if err := h.repo.Upsert(c.Request.Context(), &s); err != nil {
		h.logger.Error("save settings", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to save settings")
		return
	}
	response.OK(c, s)
}

// UploadSound handles POST /settings/alarm/sounds (multipart).
func (h *Handler) UploadSound(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}
	if fileHeader.Size > storage.MaxSoundFileSize {
		response.BadRequest(c, "file too large")
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !storage.ValidateSoundFileType(contentType, fileHeader.Filename) {
		response.BadRequest(c, "unsupported audio format (mp3, wav, ogg)")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer f.Close()

	key := storage.SoundKey(userID.String(), fileHeader.Filename)
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(fileHeader.Filename)
	}
	url, err := h.s3.Upload(c.Request.Context(), h.s3.SoundsBucket(), key, contentType, f, fileHeader.Size)
	if err != nil {
		h.logger.Error("upload alarm sound", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to upload sound")
		return
	}
	response.Created(c, gin.H{"key": key, "url": url, "name": path.Base(key)})
}

// ListSounds handles GET /settings/alarm/sounds.
func (h *Handler) ListSounds(c *gin.Context) {
	if h.s3 == nil {
		response.OK(c, []gin.H{})
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	keys, err := h.s3.ListObjects(c.Request.Context(), h.s3.SoundsBucket(), storage.FolderSounds+"/"+userID.String()+"/")
	if err != nil {
		response.Internal(c, "failed to list sounds")
		return
	}

	sounds := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.SoundsBucket(), key, h.s3.PresignExpire())
		if err != nil {
			continue
		}
		sounds = append(sounds, gin.H{"key": key, "name": path.Base(key), "url": url})
	}
	response.OK(c, sounds)
}

// DeleteSound handles DELETE /settings/alarm/sounds/:name.
func (h *Handler) DeleteSound(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	name := path.Base(c.Param("name"))
	if name == "" || name == "." || strings.Contains(name, "..") {
		response.BadRequest(c, "invalid sound name")
		return
	}
	key := storage.SoundKey(userID.String(), name)
	if err := h.s3.DeleteSound(c.Request.Context(), key); err != nil {
		response.Internal(c, "failed to delete sound")
		return
	}
	response.NoContent(c)
}
