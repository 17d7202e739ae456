package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tutorbase/schedule-api/internal/models"
	"github.com/tutorbase/schedule-api/internal/service"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
	"github.com/tutorbase/schedule-api/pkg/response"
)

// ScheduleHandler exposes the week grid, gesture resolution and exports.
type ScheduleHandler struct {
	schedule *service.ScheduleService
	export   *service.ExportService
}

// NewScheduleHandler constructs ScheduleHandler. The export service may be nil
// when exports are disabled.
func NewScheduleHandler(schedule *service.ScheduleService, export *service.ExportService) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule, export: export}
}

// Week godoc
// @Summary Render the week grid
// @Description Returns the 7-day slot matrix for the week containing the given date. Defaults to the current week.
// @Tags Schedule
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param date query string false "Any date within the week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/schedule/week [get]
func (h *ScheduleHandler) Week(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format(models.SlotDateLayout)
	}
	week, err := h.schedule.Week(c.Request.Context(), c.Param("teacherId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, week, nil)
}

type gestureRequest struct {
	Date    string `json:"date" binding:"required"`
	Time    string `json:"time" binding:"required"`
	Gesture string `json:"gesture" binding:"required"`
}

// Gesture godoc
// @Summary Resolve a grid gesture
// @Description Maps a click or double click on a cell onto a domain action. A click on an empty cell toggles availability inline; everything else returns the intent for the client.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param payload body gestureRequest true "Gesture"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teachers/{teacherId}/schedule/gesture [post]
func (h *ScheduleHandler) Gesture(c *gin.Context) {
	var req gestureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot := models.Slot{Date: req.Date, Time: req.Time}
	resolution, err := h.schedule.ResolveGesture(c.Request.Context(), c.Param("teacherId"), slot, models.Gesture(req.Gesture))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolution, nil)
}

// Export godoc
// @Summary Export the week grid
// @Description Renders the week schedule as a CSV or PDF attachment.
// @Tags Schedule
// @Produce text/csv
// @Produce application/pdf
// @Param teacherId path string true "Teacher ID"
// @Param date query string false "Any date within the week (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /teachers/{teacherId}/schedule/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	if h.export == nil {
		response.Error(c, appErrors.New("EXPORT_DISABLED", http.StatusNotImplemented, "exports are disabled"))
		return
	}
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format(models.SlotDateLayout)
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.export.RenderWeek(c.Request.Context(), c.Param("teacherId"), date, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
