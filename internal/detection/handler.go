package detection

import (
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/drowsyguard/backend/internal/auth"
	"github.com/drowsyguard/backend/internal/middleware"
	"github.com/drowsyguard/backend/internal/models"
	"github.com/drowsyguard/backend/pkg/response"
)

// maxUploadBytes caps a single analyzed image.
const maxUploadBytes = 10 << 20

// StartRequest is the body for POST /detection/sessions.
type StartRequest struct {
	SessionType string `json:"session_type"`
}

// FrameRequest carries one base64-encoded camera frame.
type FrameRequest struct {
	ImageData string `json:"image_data" binding:"required"`
}

// AbandonRequest is the body for POST /detection/sessions/abandon. Browsers
// send it via sendBeacon on page unload, which cannot set headers, so the
// auth token rides in the body.
type AbandonRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Token     string `json:"token"`
}

// Handler handles detection HTTP endpoints.
type Handler struct {
	svc *Service
	jwt *auth.JWTService
}

// NewHandler creates a detection handler.
func NewHandler(svc *Service, jwt *auth.JWTService) *Handler {
	return &Handler{svc: svc, jwt: jwt}
}

// Start handles POST /detection/sessions.
func (h *Handler) Start(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req StartRequest
	_ = c.ShouldBindJSON(&req)
	if req.SessionType != "" && req.SessionType != string(models.SessionLive) {
		response.BadRequest(c, "invalid session_type")
		return
	}

	sess, err := h.svc.Start(c.Request.Context(), userID, models.SessionLive)
	if err != nil {
		response.Internal(c, "failed to start session")
		return
	}
	response.Created(c, sess)
}

// AnalyzeFrame handles POST /detection/sessions/:id/frames.
func (h *Handler) AnalyzeFrame(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	img, err := decodeImageData(req.ImageData)
	if err != nil {
		response.BadRequest(c, "invalid image_data")
		return
	}

	res, err := h.svc.AnalyzeFrame(c.Request.Context(), sessionID, userID, img)
	switch {
	case errors.Is(err, ErrInvalidImage):
		response.BadRequest(c, "image could not be decoded")
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case err != nil:
		response.Internal(c, "failed to analyze frame")
	default:
		response.OK(c, res)
	}
}

// Stop handles POST /detection/sessions/:id/stop.
func (h *Handler) Stop(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sum, err := h.svc.Stop(c.Request.Context(), sessionID, userID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case err != nil:
		response.Internal(c, "failed to stop session")
	default:
		response.OK(c, sum)
	}
}

// Abandon handles POST /detection/sessions/abandon. The route is registered
// without the JWT middleware; the token is taken from the body, falling back
// to the Authorization header for non-beacon clients.
func (h *Handler) Abandon(c *gin.Context) {
	var req AbandonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	token := req.Token
	if token == "" {
		header := c.GetHeader("Authorization")
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if _, err := h.jwt.Validate(token); err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if err := h.svc.Abandon(c.Request.Context(), sessionID); err != nil {
		response.Internal(c, "failed to abandon session")
		return
	}
	response.OK(c, gin.H{"session_id": sessionID, "status": models.SessionInterrupted})
}

// AnalyzeFile handles POST /detection/analyze-file (multipart upload).
func (h *Handler) AnalyzeFile(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.BadRequest(c, "file too large")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer f.Close()
	img, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}

	res, err := h.svc.AnalyzeUpload(c.Request.Context(), userID, img)
	switch {
	case errors.Is(err, ErrInvalidImage):
		response.BadRequest(c, "image could not be decoded")
	case err != nil:
		response.Internal(c, "failed to analyze file")
	default:
		response.OK(c, res)
	}
}

// decodeImageData decodes a raw or data-URL base64 image payload.
func decodeImageData(data string) ([]byte, error) {
	if i := strings.Index(data, ","); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+1:]
	}
	if len(data) > maxUploadBytes {
		return nil, ErrInvalidImage
	}
	return base64.StdEncoding.DecodeString(data)
}
