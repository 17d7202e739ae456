package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorbase/schedule-api/internal/models"
	"github.com/tutorbase/schedule-api/internal/service"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
	"github.com/tutorbase/schedule-api/pkg/response"
)

// AvailabilityHandler exposes the teacher availability registry.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler constructs AvailabilityHandler.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// slotRequest is the JSON form of a slot identity.
type slotRequest struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

// Toggle godoc
// @Summary Toggle a slot's availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param payload body slotRequest true "Slot"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teachers/{teacherId}/availability/toggle [post]
func (h *AvailabilityHandler) Toggle(c *gin.Context) {
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot := models.Slot{Date: req.Date, Time: req.Time}
	available, err := h.availability.Toggle(c.Request.Context(), c.Param("teacherId"), slot)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"slot": slot, "available": available}, nil)
}

// List godoc
// @Summary List available slots in a date range
// @Tags Availability
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param from query string true "From date (YYYY-MM-DD)"
// @Param to query string true "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from and to are required"))
		return
	}
	entries, err := h.availability.ListRange(c.Request.Context(), c.Param("teacherId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
