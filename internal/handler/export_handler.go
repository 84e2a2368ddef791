package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/arka-labs/academy-api/internal/service"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
	"github.com/arka-labs/academy-api/pkg/response"
)

// ExportHandler exposes report export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// BatchAttendance godoc
// @Summary Export a batch attendance report
// @Tags Exports
// @Produce json
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /batches/{id}/attendance/export [post]
func (h *ExportHandler) BatchAttendance(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatCSV)
	result, err := h.exports.BatchAttendanceReport(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MockResults godoc
// @Summary Export a mock test results report
// @Tags Exports
// @Produce json
// @Param id path string true "Mock test ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /mock-tests/{id}/results/export [post]
func (h *ExportHandler) MockResults(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatCSV)
	result, err := h.exports.MockResultsReport(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download an exported report via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(name))
	c.File(file.Name())
}
