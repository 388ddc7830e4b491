package http

import (
	"github.com/labstack/echo/v4"

	"github.com/clientdesk/clients-api/internal/infrastructure/http/handlers"
)

// RegisterProbes mounts the unauthenticated health probes on e. Every entry
// in deps is pinged by the readiness probe.
func RegisterProbes(e *echo.Echo, deps map[string]handlers.Pinger) {
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps)

	e.GET("/health", healthHandler.Liveness)            // liveness
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness
}
