package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arka-labs/academy-api/internal/models"
	"github.com/arka-labs/academy-api/internal/service"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
	"github.com/arka-labs/academy-api/pkg/response"
)

// MockTestHandler exposes mock test endpoints.
type MockTestHandler struct {
	mocks *service.MockTestService
}

// NewMockTestHandler constructs MockTestHandler.
func NewMockTestHandler(mocks *service.MockTestService) *MockTestHandler {
	return &MockTestHandler{mocks: mocks}
}

// List godoc
// @Summary List mock tests
// @Tags MockTests
// @Produce json
// @Param batchId query string false "Filter by assigned batch"
// @Param kind query string false "Filter: default or custom"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /mock-tests [get]
func (h *MockTestHandler) List(c *gin.Context) {
	var filter models.MockTestFilter
	filter.BatchID = c.Query("batchId")
	switch c.Query("kind") {
	case "default":
		filter.DefaultsOnly = true
	case "custom":
		filter.CustomOnly = true
	}
	if raw := c.Query("status"); raw != "" {
		status := models.MockTestStatus(raw)
		filter.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	tests, total, err := h.mocks.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tests, paginationFor(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get mock test detail
// @Tags MockTests
// @Produce json
// @Param id path string true "Mock test ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /mock-tests/{id} [get]
func (h *MockTestHandler) Get(c *gin.Context) {
	test, err := h.mocks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, test, nil)
}

// Create godoc
// @Summary Create a custom mock test
// @Tags MockTests
// @Accept json
// @Produce json
// @Param payload body service.CreateMockTestRequest true "Mock test payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /mock-tests [post]
func (h *MockTestHandler) Create(c *gin.Context) {
	var req service.CreateMockTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	test, err := h.mocks.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, test)
}

// Update godoc
// @Summary Update a mock test
// @Tags MockTests
// @Accept json
// @Produce json
// @Param id path string true "Mock test ID"
// @Param payload body service.UpdateMockTestRequest true "Mock test payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /mock-tests/{id} [put]
func (h *MockTestHandler) Update(c *gin.Context) {
	var req service.UpdateMockTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	test, err := h.mocks.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, test, nil)
}

// Delete godoc
// @Summary Delete a custom mock test
// @Tags MockTests
// @Produce json
// @Param id path string true "Mock test ID"
// @Success 204
// @Security BearerAuth
// @Router /mock-tests/{id} [delete]
func (h *MockTestHandler) Delete(c *gin.Context) {
	if err := h.mocks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Aggregate score statistics for a mock test
// @Tags MockTests
// @Produce json
// @Param id path string true "Mock test ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /mock-tests/{id}/stats [get]
func (h *MockTestHandler) Stats(c *gin.Context) {
	stats, err := h.mocks.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
