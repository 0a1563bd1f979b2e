package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
	"github.com/mamadbah2/moulinette/internal/service/sessions"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

var allowedExtensions = map[string]bool{".csv": true, ".txt": true}

// SessionService describes the operations the HTTP layer can perform.
type SessionService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*models.Session, []models.RowIssue, error)
	Process(ctx context.Context, id string, counts io.Reader, strategy models.Strategy) (*models.RunSummary, error)
	Run(ctx context.Context, id string, strategy models.Strategy) (*models.RunSummary, error)
	Session(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context) ([]models.Session, error)
	Delete(ctx context.Context, id string) error
	ArtifactPath(ctx context.Context, id, kind string) (string, error)
	LastDistribution(ctx context.Context, id string) (*sessions.Distribution, error)
	RunHistory(ctx context.Context, id string) ([]models.LedgerEntry, error)
	Ping(ctx context.Context) error
}

// SessionHandler exposes the session pipeline over HTTP.
type SessionHandler struct {
	svc            SessionService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewSessionHandler constructs the HTTP handler adapter.
func NewSessionHandler(svc SessionService, maxUploadBytes int64, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{svc: svc, maxUploadBytes: maxUploadBytes, logger: logger}
}

type redistributeRequest struct {
	Strategy string `json:"strategy" form:"strategy"`
}

// Health reports whether the session store answers.
func (h *SessionHandler) Health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("store health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "ok"})
}

// Upload ingests a theoretical export and returns the new session.
func (h *SessionHandler) Upload(c *gin.Context) {
	file, name, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	session, issues, err := h.svc.Upload(c.Request.Context(), name, file)
	if err != nil {
		h.writeError(c, "upload failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"session":    session,
		"issues":     issues,
	})
}

// Process ingests the completed count sheet of a session and runs the pipeline.
func (h *SessionHandler) Process(c *gin.Context) {
	file, _, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	id := strings.TrimSpace(c.PostForm("session_id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	summary, err := h.svc.Process(c.Request.Context(), id, file, models.Strategy(c.PostForm("strategy")))
	if err != nil {
		h.writeError(c, "processing failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "summary": summary})
}

// Redistribute reruns a processed session with another strategy.
func (h *SessionHandler) Redistribute(c *gin.Context) {
	var req redistributeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&req); err != nil {
			h.logger.Warn("invalid redistribute payload", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	id := c.Param("id")
	summary, err := h.svc.Run(c.Request.Context(), id, models.Strategy(req.Strategy))
	if err != nil {
		h.writeError(c, "redistribution failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "summary": summary})
}

// Download streams a generated artifact.
func (h *SessionHandler) Download(c *gin.Context) {
	path, err := h.svc.ArtifactPath(c.Request.Context(), c.Param("id"), c.Param("kind"))
	if err != nil {
		h.writeError(c, "download failed", err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// Distribution returns the per-lot adjustments persisted by the last run.
func (h *SessionHandler) Distribution(c *gin.Context) {
	dist, err := h.svc.LastDistribution(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get distribution failed", err)
		return
	}
	c.JSON(http.StatusOK, dist)
}

// Runs returns the ledger history of a session.
func (h *SessionHandler) Runs(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.svc.RunHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get run history failed", err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "runs": entries})
}

// List returns all sessions.
func (h *SessionHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.writeError(c, "list sessions failed", err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

// Get returns one session.
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get session failed", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Delete removes a session and its files.
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, "delete session failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// openUpload returns the multipart "file" part after checking size and extension.
// It writes the error response itself when ok is false.
func (h *SessionHandler) openUpload(c *gin.Context) (io.ReadCloser, string, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return nil, "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return nil, "", false
	}

	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv and .txt files are accepted"})
		return nil, "", false
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
		return nil, "", false
	}
	return file, header.Filename, true
}

func (h *SessionHandler) writeError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Warn(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrMissingSessionData), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrUnreadableInput), errors.Is(err, apperrors.ErrInvalidStrategy):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
