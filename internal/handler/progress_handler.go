package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arka-labs/academy-api/internal/service"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
	"github.com/arka-labs/academy-api/pkg/response"
)

// ProgressHandler exposes level progression endpoints.
type ProgressHandler struct {
	progress *service.ProgressService
	metrics  *service.MetricsService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService, metrics *service.MetricsService) *ProgressHandler {
	return &ProgressHandler{progress: progress, metrics: metrics}
}

// Get godoc
// @Summary Get a student's level progression snapshot
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	progress, err := h.progress.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Scores godoc
// @Summary List a student's score entries
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/scores [get]
func (h *ProgressHandler) Scores(c *gin.Context) {
	scores, err := h.progress.StudentScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}

// RecordScore godoc
// @Summary Record a score entry for a mock test
// @Tags Progress
// @Accept json
// @Produce json
// @Param payload body service.RecordScoreRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scores [post]
func (h *ProgressHandler) RecordScore(c *gin.Context) {
	var req service.RecordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.SubmittedBy == "" {
		if claims := claimsFromContext(c); claims != nil {
			req.SubmittedBy = claims.UserID
		}
	}
	entry, err := h.progress.RecordScore(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordScoreEntry()
	response.JSON(c, http.StatusOK, entry, nil)
}
