package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careportal-api/internal/handler"
	"github.com/jwalitptl/careportal-api/internal/handler/health"
	"github.com/jwalitptl/careportal-api/internal/handler/prometheus"
	"github.com/jwalitptl/careportal-api/internal/middleware"
)

// Handler is a route module mounted under /api/v1.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup, handler.Guards)
}

type Config struct {
	CORS     middleware.CORSConfig
	Security middleware.SecurityConfig
	Timeout  middleware.TimeoutConfig
	// RateLimit guards the public token endpoints. Nil disables it.
	RateLimit *middleware.RateLimiterConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   *health.Handler
	metrics  *prometheus.Handler
	handlers []Handler
	limiter  *middleware.RateLimiter
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	config Config,
	handlers ...Handler,
) *Router {
	engine := gin.New()

	if config.Timeout.Duration <= 0 {
		config.Timeout = middleware.DefaultTimeoutConfig()
	}

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   healthH,
		metrics:  metricsH,
		handlers: handlers,
	}
	if config.RateLimit != nil {
		r.limiter = middleware.NewRateLimiter(*config.RateLimit)
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		metricsH.Middleware(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORS),
		middleware.Timeout(config.Timeout),
	)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("route not found"))
	})
	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)

	guards := r.guards()
	for _, h := range r.handlers {
		h.RegisterRoutes(api, guards)
	}
}

func (r *Router) guards() handler.Guards {
	g := handler.Guards{
		Authenticate: r.auth.Authenticate(),
		Capability:   r.auth.RequireCapability,
	}
	if r.limiter != nil {
		g.Public = []gin.HandlerFunc{r.limiter.RateLimit()}
	}
	return g
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
