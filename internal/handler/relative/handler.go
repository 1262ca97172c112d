package relative

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/careportal-api/internal/handler"
	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/service/account"
)

type Service interface {
	CreateRelative(ctx context.Context, in account.CreateRelativeInput, adminID uuid.UUID) (*account.InvitationResult, error)
	ListRelatives(ctx context.Context, status string, page model.Pagination) ([]*model.Actor, int, error)
	RelativeRequests(ctx context.Context, page model.Pagination) ([]*model.RelativeRequest, int, error)
	ResendInvitation(ctx context.Context, relativeID, adminID uuid.UUID) (*account.InvitationResult, error)
	VerifyInvitation(ctx context.Context, token string) (*account.InvitationPreview, error)
	CompleteSetup(ctx context.Context, token, password, confirm string) (*account.SetupResult, error)
	ResendInvitationByEmail(ctx context.Context, email string)
	RequestSetupHelp(ctx context.Context, email, message string)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guards) {
	admin := r.Group("/admin", g.Require(model.CapManageRelatives)...)
	{
		admin.POST("/create-relative-account", h.CreateRelative)
		admin.GET("/relatives", h.ListRelatives)
		admin.GET("/relative-requests", h.RelativeRequests)
		admin.POST("/resend-relative-invitation", h.ResendInvitation)
	}

	setup := r.Group("/relative-setup", g.Public...)
	{
		setup.GET("/verify-invitation/:token", h.VerifyInvitation)
		setup.POST("/complete-setup", h.CompleteSetup)
		setup.POST("/resend-setup-email", h.ResendSetupEmail)
		setup.POST("/help", h.Help)
	}
}

type createRelativeRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	EmergencyEmail string    `json:"emergency_email" binding:"required,email"`
	AccessLevel    string    `json:"access_level" binding:"access_level"`
	AdminNotes     string    `json:"admin_notes" binding:"max=2000"`
}

func (h *Handler) CreateRelative(c *gin.Context) {
	adminID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	var req createRelativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	result, err := h.service.CreateRelative(c.Request.Context(), account.CreateRelativeInput{
		PatientID:      req.PatientID,
		EmergencyEmail: req.EmergencyEmail,
		AccessLevel:    model.AccessLevel(req.AccessLevel),
		AdminNotes:     req.AdminNotes,
	}, adminID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	resp := handler.NewSuccessResponse(result)
	resp.Message = "Relative account created. Invitation email sent."
	if !result.EmailSent {
		resp.Message = "Relative account created but the invitation email could not be sent. Share the setup link manually."
	}
	c.JSON(http.StatusCreated, resp)
}

type listRelativesQuery struct {
	Status string `form:"status"`
	model.Pagination
}

func (h *Handler) ListRelatives(c *gin.Context) {
	var q listRelativesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.BindError(c, err)
		return
	}
	page := q.Pagination.Normalize(100)

	relatives, total, err := h.service.ListRelatives(c.Request.Context(), q.Status, page)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(handler.Paginated{
		Items:    relatives,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}))
}

func (h *Handler) RelativeRequests(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		handler.BindError(c, err)
		return
	}
	page = page.Normalize(100)

	requests, total, err := h.service.RelativeRequests(c.Request.Context(), page)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(handler.Paginated{
		Items:    requests,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}))
}

type resendInvitationRequest struct {
	RelativeID uuid.UUID `json:"relative_id" binding:"required"`
}

func (h *Handler) ResendInvitation(c *gin.Context) {
	adminID, ok := handler.ActorID(c)
	if !ok {
		return
	}
	var req resendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	result, err := h.service.ResendInvitation(c.Request.Context(), req.RelativeID, adminID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	resp := handler.NewSuccessResponse(result)
	resp.Message = "Invitation resent"
	if !result.EmailSent {
		resp.Message = "A new invitation was issued but the email could not be sent. Share the setup link manually."
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) VerifyInvitation(c *gin.Context) {
	preview, err := h.service.VerifyInvitation(c.Request.Context(), c.Param("token"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(preview))
}

type completeSetupRequest struct {
	Token           string `json:"token" binding:"required"`
	Password        string `json:"password" binding:"required,password,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

func (h *Handler) CompleteSetup(c *gin.Context) {
	var req completeSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	result, err := h.service.CompleteSetup(c.Request.Context(), req.Token, req.Password, req.ConfirmPassword)
	if err != nil {
		handler.Error(c, err)
		return
	}
	resp := handler.NewSuccessResponse(result)
	resp.Message = "Account setup complete"
	c.JSON(http.StatusOK, resp)
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

const resendMessage = "If a pending invitation exists for this email, a new setup link has been sent."

func (h *Handler) ResendSetupEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.service.ResendInvitationByEmail(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, handler.NewMessageResponse(resendMessage))
}

type helpRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Message string `json:"message" binding:"max=2000"`
}

func (h *Handler) Help(c *gin.Context) {
	var req helpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.service.RequestSetupHelp(c.Request.Context(), req.Email, req.Message)
	c.JSON(http.StatusOK, handler.NewMessageResponse("Your request has been passed on to an administrator."))
}
