package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

// Context keys set by the auth middleware.
const (
	ContextActorID   = "actor_id"
	ContextActorRole = "actor_role"
	ContextRequestID = "request_id"
)

type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// NewMessageResponse is a success without payload.
func NewMessageResponse(message string) *Response {
	return &Response{
		Status:  "success",
		Message: message,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes err as a JSON error response. Internal causes are logged and
// never sent to the client.
func Error(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString(ContextRequestID)).
			Str("path", c.FullPath()).
			Msg("request failed")
	}

	c.AbortWithStatusJSON(status, &Response{
		Status:  "error",
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
}

// BindError turns a binding failure into a validation error naming the
// offending fields.
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		Error(c, apperrors.Validation("invalid request body"))
		return
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	Error(c, apperrors.Validation(strings.Join(msgs, "; ")))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "access_level":
		return fe.Field() + " must be one of view_only, caretaker, emergency_only"
	case "password", "min":
		return fe.Field() + " is too short"
	case "max":
		return fe.Field() + " is too long"
	case "eqfield":
		return fe.Field() + " must match " + fe.Param()
	case "uuid":
		return fe.Field() + " must be a valid id"
	default:
		return fe.Field() + " is invalid"
	}
}

// ParamID parses a UUID path parameter.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		Error(c, apperrors.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// ActorID is the authenticated caller's id.
func ActorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextActorID)
	if !ok {
		Error(c, apperrors.Unauthorized(nil))
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		Error(c, apperrors.Unauthorized(nil))
		return uuid.Nil, false
	}
	return id, true
}

// Paginated wraps a page of items with its total.
type Paginated struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
