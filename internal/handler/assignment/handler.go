package assignment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/handler"
	"github.com/jwalitptl/careportal-api/internal/model"
)

type Service interface {
	RequestDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (*model.PendingRequest, error)
	AcceptRequest(ctx context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error)
	RejectRequest(ctx context.Context, doctorID, patientID uuid.UUID) (*model.PendingRequest, error)
	PendingRequests(ctx context.Context, doctorID uuid.UUID) ([]*model.PendingRequest, error)
	AssignedPatients(ctx context.Context, doctorID uuid.UUID) ([]*model.AssignedPatient, error)
	RequestedDoctors(ctx context.Context, patientID uuid.UUID) ([]*model.DoctorSummary, error)
	MyDoctor(ctx context.Context, patientID uuid.UUID) (*model.DoctorSummary, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guards) {
	patient := r.Group("/patient", g.Require(model.CapRequestDoctor)...)
	{
		patient.POST("/request-doctor", h.RequestDoctor)
		patient.GET("/requested-doctors", h.RequestedDoctors)
		patient.GET("/my-doctor", h.MyDoctor)
	}

	doctor := r.Group("/doctor")
	{
		decide := g.Require(model.CapDecideRequests)
		doctor.POST("/accept-request", handler.With(decide, h.AcceptRequest)...)
		doctor.POST("/reject-request", handler.With(decide, h.RejectRequest)...)

		view := g.Require(model.CapViewAssignedCases)
		doctor.GET("/pending-requests", handler.With(view, h.PendingRequests)...)
		doctor.GET("/assigned-patients", handler.With(view, h.AssignedPatients)...)
	}
}

type requestDoctorRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
}

func (h *Handler) RequestDoctor(c *gin.Context) {
	patientID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	var req requestDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	pending, err := h.service.RequestDoctor(c.Request.Context(), patientID, req.DoctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(pending))
}

func (h *Handler) RequestedDoctors(c *gin.Context) {
	patientID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	doctors, err := h.service.RequestedDoctors(c.Request.Context(), patientID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doctors))
}

func (h *Handler) MyDoctor(c *gin.Context) {
	patientID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	doctor, err := h.service.MyDoctor(c.Request.Context(), patientID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doctor))
}

type decisionRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
}

func (h *Handler) AcceptRequest(c *gin.Context) {
	h.decide(c, h.service.AcceptRequest, "Patient request accepted")
}

func (h *Handler) RejectRequest(c *gin.Context) {
	h.decide(c, h.service.RejectRequest, "Patient request rejected")
}

func (h *Handler) decide(c *gin.Context, fn func(context.Context, uuid.UUID, uuid.UUID) (*model.PendingRequest, error), message string) {
	doctorID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	decided, err := fn(c.Request.Context(), doctorID, req.PatientID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	resp := handler.NewSuccessResponse(decided)
	resp.Message = message
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PendingRequests(c *gin.Context) {
	doctorID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	requests, err := h.service.PendingRequests(c.Request.Context(), doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(requests))
}

func (h *Handler) AssignedPatients(c *gin.Context) {
	doctorID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	patients, err := h.service.AssignedPatients(c.Request.Context(), doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}
