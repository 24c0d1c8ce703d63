package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spam-moderator/internal/classifier"
	"spam-moderator/internal/dataset"
	"spam-moderator/internal/models"
	"spam-moderator/internal/moderation"
)

const defaultFeedbackLimit = 50

// Handler handles HTTP requests
type Handler struct {
	moderator *moderation.Moderator
	auth      gin.HandlerFunc
	logger    *zap.Logger
}

// NewHandler creates a new API handler. auth guards the endpoints that change the dataset,
// the model or the mode.
func NewHandler(moderator *moderation.Moderator, auth gin.HandlerFunc, logger *zap.Logger) *Handler {
	return &Handler{
		moderator: moderator,
		auth:      auth,
		logger:    logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Classification
		api.POST("/classify", h.Classify)
		api.GET("/accuracy", h.GetAccuracy)
		api.GET("/stats", h.GetStats)

		// Mode
		api.GET("/mode", h.GetMode)
		api.PUT("/mode", h.auth, h.SetMode)

		// Learning
		api.POST("/feedback", h.auth, h.AddFeedback)
		api.GET("/feedback", h.ListFeedback)
		api.POST("/train", h.auth, h.Train)

		// Export
		api.GET("/export/csv", h.ExportCSV)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// Classify handles single message classification
func (h *Handler) Classify(c *gin.Context) {
	var req models.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := h.moderator.Classify(req.Text)
	c.JSON(http.StatusOK, models.ClassifyResponse{
		Label:           v.Label,
		Verdict:         v.Label.String(),
		SpamProbability: v.SpamProbability,
	})
}

// GetAccuracy returns the model accuracy on a fresh evaluation split
func (h *Handler) GetAccuracy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"accuracy": h.moderator.CurrentAccuracy()})
}

// GetStats returns dataset, training and feedback statistics
func (h *Handler) GetStats(c *gin.Context) {
	feedback, err := h.moderator.FeedbackStats()
	if err != nil {
		h.logger.Error("Failed to get feedback stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dataset":  h.moderator.Stats(),
		"feedback": feedback,
		"mode":     h.moderator.Mode(),
	})
}

// GetMode returns the bot operating mode
func (h *Handler) GetMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.moderator.Mode()})
}

// SetMode changes the bot operating mode
func (h *Handler) SetMode(c *gin.Context) {
	var req models.ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := models.ParseMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.moderator.SetMode(mode); err != nil {
		h.logger.Error("Failed to set mode", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set mode"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

// AddFeedback adds a labeled message to the dataset and retrains the model
func (h *Handler) AddFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	label, err := models.ParseLabel(string(req.Label))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if models.IsBlank(models.SanitizeText(req.Text)) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "skipped",
			"reason":   "blank text",
			"examples": h.moderator.Stats().Examples,
		})
		return
	}

	if err := h.moderator.RecordFeedback(req.Text, label, models.SourceAPI); err != nil {
		h.writeError(c, err, "failed to record feedback")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "recorded",
		"label":    label.String(),
		"examples": h.moderator.Stats().Examples,
	})
}

// ListFeedback returns the newest feedback audit log entries
func (h *Handler) ListFeedback(c *gin.Context) {
	limit := defaultFeedbackLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	events, err := h.moderator.FeedbackLog(limit)
	if err != nil {
		h.logger.Error("Failed to list feedback", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": events,
		"total":    len(events),
	})
}

// Train retrains the model on the whole dataset
func (h *Handler) Train(c *gin.Context) {
	if err := h.moderator.Retrain(); err != nil {
		h.writeError(c, err, "training failed")
		return
	}

	c.JSON(http.StatusOK, h.moderator.Stats())
}

// ExportCSV exports the dataset in its on-disk format
func (h *Handler) ExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=spam.csv")

	if err := dataset.Write(c.Writer, h.moderator.Examples()); err != nil {
		h.logger.Error("Failed to export CSV", zap.Error(err))
	}
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "spam-moderator",
		"version": "1.0.0",
	})
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, classifier.ErrInvalidLabel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, classifier.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
