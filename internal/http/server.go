// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripease/internal/http/handlers"
	"tripease/internal/http/middleware"
	"tripease/internal/infra"
	"tripease/internal/modules/booking"
	"tripease/internal/modules/fare"
	"tripease/internal/modules/partner"
)

type ServerDeps struct {
	Booking    *booking.Service
	Fare       *fare.Service
	Partner    *partner.Service
	Identities middleware.IdentityService
	Verifier   infra.TokenVerifier
	Health     map[string]handlers.Check
	Logger     *zap.Logger

	PartnerAPIKey  string
	PartnerRate    int
	PartnerBurst   int
	AllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For; empty trusts no proxy.
	TrustedProxies []string
}

type Server struct {
	deps ServerDeps
	log  *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{deps: deps, log: log}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.deps.TrustedProxies); err != nil {
		s.log.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(s.log),
		middleware.Logging(s.log.Named("http")),
		middleware.CORS(s.deps.AllowedOrigins),
	)

	health := handlers.NewHealthHandler(s.deps.Health)
	r.GET("/health", health.Health)

	fareHandler := handlers.NewFareHandler(s.deps.Fare)
	r.POST("/fare/calculate", fareHandler.Calculate)

	ride := handlers.NewRideHandler(s.deps.Booking)
	rides := r.Group("/ride",
		middleware.Auth(s.deps.Verifier),
		middleware.Identify(s.deps.Identities, s.log.Named("auth")),
	)
	{
		rides.POST("/book", ride.Book)
		rides.GET("/pending", ride.Pending)
		rides.POST("/accept/:id", ride.Accept)
		rides.POST("/reject/:id", ride.Reject)
		rides.GET("/customer/bookings", ride.CustomerBookings)
		rides.GET("/driver/bookings", ride.DriverBookings)
		rides.POST("/start/:id", ride.Start)
		rides.POST("/complete/:id", ride.Complete)
		rides.GET("/:id", ride.Get)
	}

	ext := handlers.NewPartnerHandler(s.deps.Partner)
	external := r.Group("/api/external/ride",
		middleware.RateLimit(s.deps.PartnerRate, s.deps.PartnerBurst, s.log.Named("ratelimit")),
		middleware.APIKey(s.deps.PartnerAPIKey, s.log.Named("partner")),
	)
	{
		external.POST("/book", ext.Book)
		external.GET("/health", ext.Health)
		external.GET("/:id/status", ext.Status)
		external.POST("/:id/cancel", ext.Cancel)
		external.GET("/external/:source/:externalId/status", ext.StatusByExternal)
		external.GET("/source/:source/bookings", ext.SourceBookings)
	}

	return r
}
