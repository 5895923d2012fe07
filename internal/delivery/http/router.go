package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"fxhedz/internal/metrics"
	custommiddleware "fxhedz/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	AuthHandler         *AuthHandler
	OAuthHandler        *OAuthHandler // nil when web login is not configured
	SubscriptionHandler *SubscriptionHandler
	SignalHandler       *SignalHandler
	Authenticator       *custommiddleware.Authenticator
	Metrics             *metrics.Registry
	Logger              *zap.Logger
	AllowOrigins        []string
}

// quietPaths are polled by every open client and are not access-logged
var quietPaths = map[string]bool{
	"/api/signals":        true,
	"/api/subscription":   true,
	"/api/public-preview": true,
	"/health":             true,
}

// NewServer creates the public API server with all routes configured
func NewServer(config *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(config.Logger)
	SetupRoutes(e, config)
	return e
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	// Middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return quietPaths[c.Request().URL.Path]
		},
	}))
	e.Use(middleware.Recover())
	if len(config.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     config.AllowOrigins,
			AllowCredentials: true,
			AllowHeaders: []string{
				echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization,
				custommiddleware.DeviceHeader,
			},
		}))
	} else {
		e.Use(middleware.CORS())
	}
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	if config.Metrics != nil {
		e.Use(metrics.EchoMiddleware(config.Metrics))
	}

	auth := config.Authenticator

	// API group
	api := e.Group("/api")

	// Native token routes (public)
	api.POST("/native-auth", config.AuthHandler.NativeAuth)
	api.POST("/refresh", config.AuthHandler.Refresh)

	// Device reset requires a session or access token
	api.POST("/reset-devices", config.AuthHandler.ResetDevices, auth.Required)

	// Access and signal routes accept optional credentials
	api.GET("/subscription", config.SubscriptionHandler.GetSubscription, auth.Optional)
	api.GET("/signals", config.SignalHandler.GetSignals, auth.Optional)
	api.GET("/public-preview", config.SignalHandler.PublicPreview)

	// Web login
	if config.OAuthHandler != nil {
		web := api.Group("/auth")
		{
			web.GET("/signin", config.OAuthHandler.SignIn)
			web.GET("/callback", config.OAuthHandler.Callback)
			web.POST("/signout", config.OAuthHandler.SignOut)
			web.GET("/session", config.OAuthHandler.Session, auth.Optional)
		}
	}
}
