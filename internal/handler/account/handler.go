package account

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/handler"
	"github.com/jwalitptl/careportal-api/internal/model"
	accountService "github.com/jwalitptl/careportal-api/internal/service/account"
)

// Service is the part of the account service these routes use.
type Service interface {
	RequestApproval(ctx context.Context, patientID, adminID uuid.UUID) (*accountService.ApprovalResult, error)
	PendingApprovals(ctx context.Context, page model.Pagination) ([]*model.Actor, int, error)
	ApprovalStatistics(ctx context.Context) (*model.ApprovalStatistics, error)
	VerifyActivation(ctx context.Context, token, email string) (*accountService.ActivationPreview, error)
	Activate(ctx context.Context, token, email string) (*model.Actor, error)
	Reject(ctx context.Context, patientID, adminID uuid.UUID, reason string) error
	SendPasswordReset(ctx context.Context, doctorID, adminID uuid.UUID) (*accountService.ResetResult, error)
	ForgotPassword(ctx context.Context, email string)
	ResetPassword(ctx context.Context, token, password, confirm string) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guards) {
	admin := r.Group("/admin", g.Require(model.CapApprovePatients)...)
	{
		admin.POST("/approve-patient/:id", h.ApprovePatient)
		admin.GET("/pending-approvals", h.PendingApprovals)
		admin.GET("/approval-statistics", h.ApprovalStatistics)
		admin.DELETE("/reject-patient/:id", h.RejectPatient)
	}

	activation := r.Group("/activation", g.Public...)
	{
		activation.GET("/verify-token", h.VerifyToken)
		activation.POST("/activate", h.Activate)
	}

	r.POST("/doctors/:id/send-reset-email", handler.With(g.Require(model.CapManageDoctors), h.SendResetEmail)...)
	r.POST("/doctors/forgot-password", handler.With(g.Public, h.ForgotPassword)...)
	r.POST("/doctors/reset-password", handler.With(g.Public, h.ResetPassword)...)
}

func (h *Handler) ApprovePatient(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	adminID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	result, err := h.service.RequestApproval(c.Request.Context(), patientID, adminID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	resp := handler.NewSuccessResponse(result)
	resp.Message = "Patient approved. Activation email sent."
	if !result.EmailSent {
		resp.Message = "Patient approved but the activation email could not be sent. Share the activation link manually."
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PendingApprovals(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		handler.BindError(c, err)
		return
	}
	page = page.Normalize(100)

	patients, total, err := h.service.PendingApprovals(c.Request.Context(), page)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(handler.Paginated{
		Items:    patients,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}))
}

func (h *Handler) ApprovalStatistics(c *gin.Context) {
	stats, err := h.service.ApprovalStatistics(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

func (h *Handler) RejectPatient(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	adminID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	var req rejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.BindError(c, err)
			return
		}
	}

	if err := h.service.Reject(c.Request.Context(), patientID, adminID, req.Reason); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Patient registration rejected"))
}

type verifyTokenQuery struct {
	Token string `form:"token" binding:"required"`
	Email string `form:"email" binding:"required,email"`
}

func (h *Handler) VerifyToken(c *gin.Context) {
	var q verifyTokenQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.BindError(c, err)
		return
	}

	preview, err := h.service.VerifyActivation(c.Request.Context(), q.Token, q.Email)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(preview))
}

type activateRequest struct {
	Token string `json:"token" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) Activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	patient, err := h.service.Activate(c.Request.Context(), req.Token, req.Email)
	if err != nil {
		handler.Error(c, err)
		return
	}
	resp := handler.NewSuccessResponse(patient)
	resp.Message = "Account activated. You can now sign in."
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SendResetEmail(c *gin.Context) {
	doctorID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	adminID, ok := handler.ActorID(c)
	if !ok {
		return
	}

	result, err := h.service.SendPasswordReset(c.Request.Context(), doctorID, adminID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	resp := handler.NewSuccessResponse(result)
	resp.Message = "Password reset email sent"
	if !result.EmailSent {
		resp.Message = "Password reset email could not be sent. Share the reset link manually."
	}
	c.JSON(http.StatusOK, resp)
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

const forgotPasswordMessage = "If an account exists for this email, a reset link has been sent."

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.service.ForgotPassword(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, handler.NewMessageResponse(forgotPasswordMessage))
}

type resetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,password,max=72"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	if req.ConfirmPassword == "" {
		req.ConfirmPassword = req.NewPassword
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("Password reset successful"))
}
