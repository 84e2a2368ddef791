package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arka-labs/academy-api/internal/models"
	"github.com/arka-labs/academy-api/internal/service"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
	"github.com/arka-labs/academy-api/pkg/response"
)

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	metrics    *service.MetricsService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, metrics: metrics}
}

// List godoc
// @Summary List a student's attendance records
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter, err := attendanceFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.List(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Mark godoc
// @Summary Mark attendance for a student on one date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance mark"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordAttendanceMark()
	response.JSON(c, http.StatusOK, record, nil)
}

// Reconcile godoc
// @Summary Fill in absent-by-default records for missing session dates
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/attendance/reconcile [post]
func (h *AttendanceHandler) Reconcile(c *gin.Context) {
	records, err := h.attendance.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// MigrateLegacy godoc
// @Summary Migrate a student's embedded legacy attendance into records
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/attendance/migrate [post]
func (h *AttendanceHandler) MigrateLegacy(c *gin.Context) {
	migrated, err := h.attendance.MigrateLegacy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"migrated": migrated}, nil)
}

// BatchStats godoc
// @Summary Aggregate attendance for a batch
// @Tags Attendance
// @Produce json
// @Param id path string true "Batch ID"
// @Param date query string false "Single date (YYYY-MM-DD)"
// @Param from query string false "Range start (YYYY-MM-DD)"
// @Param to query string false "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /batches/{id}/attendance/stats [get]
func (h *AttendanceHandler) BatchStats(c *gin.Context) {
	var req service.BatchStatsRequest
	var err error
	if req.Date, err = dateQuery(c, "date"); err != nil {
		response.Error(c, err)
		return
	}
	if req.DateFrom, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if req.DateTo, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	stats, err := h.attendance.BatchStats(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func attendanceFilterFromQuery(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	var err error
	if filter.DateFrom, err = dateQuery(c, "from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = dateQuery(c, "to"); err != nil {
		return filter, err
	}
	if present := c.Query("present"); present == "true" || present == "false" {
		v := present == "true"
		filter.Present = &v
	}
	return filter, nil
}

func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" date, expected YYYY-MM-DD")
	}
	return &parsed, nil
}
