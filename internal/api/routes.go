// routes.go - Route registration and middleware wiring
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/marker-map/backend/internal/config"
	"github.com/marker-map/backend/internal/logging"
	"github.com/marker-map/backend/internal/storage"
	"github.com/marker-map/backend/internal/web"
	"golang.org/x/time/rate"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store   storage.MarkerStore
	Config  *config.AppConfig
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Marker MarkerHandler
}

// apiPrefixes are never answered by the embedded frontend
var apiPrefixes = []string{"/markers", "/health"}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Store),
		Marker: NewMarkerHandler(deps.Store),
	}
}

// NewServer builds the Echo instance with middleware, API routes and the
// embedded frontend.
func NewServer(deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	SetupMiddleware(e, deps.Config)
	RegisterRoutes(e, NewHandlers(deps))

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e, apiPrefixes...); err != nil {
			logging.Warn().Err(err).Msg("failed to register static routes")
		}
	}
	return e
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)

	e.GET("/markers", handlers.Marker.HandleListMarkers)
	e.POST("/markers", handlers.Marker.HandleCreateMarker)
}

// SetupMiddleware configures common middleware. CORS runs before the body
// and rate limits so rejected requests still carry CORS headers.
func SetupMiddleware(e *echo.Echo, appCfg *config.AppConfig) {
	e.HTTPErrorHandler = ErrorHandler
	cfg := appCfg.Server
	logger := logging.With("http")

	// c.RealIP keys the rate limiter, so forwarded headers only count when
	// the server sits behind a proxy on a private network
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(middleware.RequestID())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !cfg.EnableRequestLogging || c.Path() == "/health"
		},
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := logger.Info()
			if v.Error != nil {
				event = logger.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error().Err(err).Bytes("stack", stack).Msg("panic recovered")
			return err
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: web.ContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	}))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: appCfg.GetAllowOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       600,
	}))

	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.RateLimit.Enabled {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst:     cfg.RateLimit.Burst,
				ExpiresIn: cfg.RateLimit.ExpiresIn,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return RespondWithError(c, NewBadRequestError("unable to identify client"))
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return RespondWithError(c, NewRateLimitError())
			},
		}))
	}
}
