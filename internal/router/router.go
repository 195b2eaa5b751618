package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/bloodbank/internal/handler/prometheus"
	"github.com/jwalitptl/bloodbank/internal/middleware"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers groups the route owners by the access they require.
type Handlers struct {
	Health Handler
	Auth   Handler

	// Staff routes require an authenticated admin or staff member.
	BloodRequests Handler
	BloodUnits    Handler
	Donations     Handler
	Donors        Handler

	// Admin routes require an authenticated admin.
	Users Handler
	Audit Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	MaxBodyBytes     int64
	CORSConfig       middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	metrics  *prometheus.Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	metrics *prometheus.Handler,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		metrics:  metrics,
	}

	engine.Use(
		middleware.RequestID(log),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorLogger(log),
		metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.MaxBodyBytes),
		middleware.AuditContext(),
	)

	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	r.setup()
	return r
}

func (r *Router) setup() {
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.handlers.Health.RegisterRoutes(api)
	r.handlers.Auth.RegisterRoutes(api)

	staff := api.Group("")
	staff.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(model.UserRoleAdmin, model.UserRoleStaff),
	)
	r.handlers.BloodRequests.RegisterRoutes(staff)
	r.handlers.BloodUnits.RegisterRoutes(staff)
	r.handlers.Donations.RegisterRoutes(staff)
	r.handlers.Donors.RegisterRoutes(staff)

	admin := api.Group("")
	admin.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(model.UserRoleAdmin),
	)
	r.handlers.Users.RegisterRoutes(admin)
	r.handlers.Audit.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
