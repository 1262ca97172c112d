package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careportal-api/internal/model"
)

// Guards are the middleware chains the router puts in front of routes.
// Handlers ask for the capability a route needs rather than a role.
type Guards struct {
	Authenticate gin.HandlerFunc
	Capability   func(model.Capability) gin.HandlerFunc
	// Public guards unauthenticated token endpoints.
	Public []gin.HandlerFunc
}

// Require is the chain admitting authenticated callers whose role grants c.
func (g Guards) Require(c model.Capability) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if g.Authenticate != nil {
		chain = append(chain, g.Authenticate)
	}
	if g.Capability != nil {
		chain = append(chain, g.Capability(c))
	}
	return chain
}

// With appends h to chain without aliasing chain's backing array.
func With(chain []gin.HandlerFunc, h ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(chain)+len(h))
	out = append(out, chain...)
	return append(out, h...)
}
