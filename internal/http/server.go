// README: API gateway; builds the gin engine and registers routes.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transitguide/internal/http/handlers"
	"transitguide/internal/http/middleware"
)

type ServerDeps struct {
	Planner         handlers.Planner
	Log             *zap.Logger
	RateLimitPerMin int
	RequestTimeout  time.Duration
	TrustedProxies  []string
}

type Server struct {
	planner handlers.Planner
	log     *zap.Logger
	limiter *middleware.RateLimiter
	timeout time.Duration
	proxies []string
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		planner: deps.Planner,
		log:     deps.Log,
		limiter: middleware.NewRateLimiter(deps.RateLimitPerMin),
		timeout: deps.RequestTimeout,
		proxies: deps.TrustedProxies,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	// Client IPs key the rate limiter, so X-Forwarded-For is only honoured
	// from configured proxies.
	if err := r.SetTrustedProxies(s.proxies); err != nil {
		s.log.Error("invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.Logging(s.log), middleware.Recovery(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	transit := handlers.NewTransitHandler(s.planner, s.timeout, s.log)
	api := r.Group("/api", middleware.RateLimit(s.limiter))
	api.POST("/transit/query", transit.Query)

	return r
}
