package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careportal-api/internal/handler"
	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/pkg/auth"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and puts the caller's id and role
// in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			handler.Error(c, &apperrors.AppError{Code: apperrors.ErrUnauthorized, Message: "missing authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			handler.Error(c, &apperrors.AppError{Code: apperrors.ErrUnauthorized, Message: "invalid authorization format"})
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "session has expired"
			}
			handler.Error(c, &apperrors.AppError{Code: apperrors.ErrUnauthorized, Message: msg, Err: err})
			return
		}

		role, err := model.ParseRole(claims.Role)
		if err != nil {
			handler.Error(c, &apperrors.AppError{Code: apperrors.ErrUnauthorized, Message: "invalid token", Err: err})
			return
		}

		c.Set(handler.ContextActorID, claims.UserID)
		c.Set(handler.ContextActorRole, role)
		c.Next()
	}
}

// RequireCapability lets the request through only when the caller's role
// grants c.
func (m *AuthMiddleware) RequireCapability(c model.Capability) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		role, _ := ctx.Get(handler.ContextActorRole)
		if r, ok := role.(model.Role); ok && r.Can(c) {
			ctx.Next()
			return
		}
		handler.Error(ctx, apperrors.Forbidden("permission denied"))
	}
}
