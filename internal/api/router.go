package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/clientdesk/clients-api/docs"
	"github.com/clientdesk/clients-api/internal/api/handler"
	"github.com/clientdesk/clients-api/internal/api/middleware"
	"github.com/clientdesk/clients-api/internal/core/ports"
	infrahttp "github.com/clientdesk/clients-api/internal/infrastructure/http"
	"github.com/clientdesk/clients-api/internal/infrastructure/http/handlers"
)

// avatarBodyLimit leaves room for multipart framing around a 5 MiB image.
const avatarBodyLimit = "6M"

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Logger    zerolog.Logger
	JWTSecret string

	AuthService   ports.AuthService
	ClientService ports.ClientService
	Users         middleware.UserFinder

	// Probes are pinged by GET /health/ready.
	Probes map[string]handlers.Pinger

	// Registry receives the HTTP metrics of this router. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry
}

type rootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(metricsMiddleware(reg))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, rootResponse{Status: "ok", Message: "clients api is running"})
	})
	e.GET("/metrics", metricsHandler(reg))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Health probes (no auth required) ---
	infrahttp.RegisterProbes(e, deps.Probes)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.AuthService)
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Client routes (owner-scoped) ---
	clientHandler := handler.NewClientHandler(deps.ClientService)
	clients := e.Group("/clients", middleware.Auth(deps.JWTSecret, deps.Users))
	clients.GET("", clientHandler.List)
	clients.POST("", clientHandler.Create)
	clients.GET("/:id", clientHandler.Get)
	clients.PUT("/:id", clientHandler.Replace)
	clients.PATCH("/:id", clientHandler.Patch)
	clients.DELETE("/:id", clientHandler.Delete)
	clients.PUT("/:id/favorite", clientHandler.SetFavorite)
	clients.PUT("/:id/rating", clientHandler.SetRating)
	clients.POST("/:id/trash", clientHandler.Trash)
	clients.POST("/:id/restore", clientHandler.Restore)
	clients.PUT("/:id/avatar", clientHandler.UploadAvatar, echomiddleware.BodyLimit(avatarBodyLimit))
	clients.GET("/:id/avatar", clientHandler.Avatar)

	return e
}

func metricsMiddleware(reg *prometheus.Registry) echo.MiddlewareFunc {
	return echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "clients",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	})
}

// metricsHandler exposes the router's HTTP metrics together with the default
// registry, which carries the application counters and runtime collectors.
func metricsHandler(reg *prometheus.Registry) echo.HandlerFunc {
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{reg, prometheus.DefaultGatherer},
	})
}
