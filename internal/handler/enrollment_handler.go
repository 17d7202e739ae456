package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorbase/schedule-api/internal/service"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
	"github.com/tutorbase/schedule-api/pkg/response"
)

// EnrollmentHandler exposes the group-class roster and waitlist.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Roster godoc
// @Summary Get the roster and waitlist of a group listing
// @Tags Enrollments
// @Produce json
// @Param listingId path string true "Listing ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /listings/{listingId}/enrollments [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	roster, err := h.enrollments.Roster(c.Request.Context(), c.Param("listingId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Enroll godoc
// @Summary Enroll a student in a group listing
// @Description Places the student on the roster while capacity remains, otherwise appends them to the waitlist.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param listingId path string true "Listing ID"
// @Param payload body service.EnrollStudentRequest true "Student"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /listings/{listingId}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), c.Param("listingId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw a student from a group listing
// @Description Removes the student; a vacated roster seat goes to the first waitlisted student and positions close ranks.
// @Tags Enrollments
// @Produce json
// @Param listingId path string true "Listing ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /listings/{listingId}/enrollments/{studentId} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	roster, err := h.enrollments.Withdraw(c.Request.Context(), c.Param("listingId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Attendance godoc
// @Summary Record attendance for an enrolled student
// @Tags Enrollments
// @Produce json
// @Param listingId path string true "Listing ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /listings/{listingId}/enrollments/{studentId}/attendance [post]
func (h *EnrollmentHandler) Attendance(c *gin.Context) {
	enrollment, err := h.enrollments.RecordAttendance(c.Request.Context(), c.Param("listingId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
