package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
	"github.com/docuforge/docuforge/cmd/docuforge/routes"
	"github.com/docuforge/docuforge/common/bootstrap"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, crypto, KV, bus, DB)
	components, err := bootstrap.Setup(ctx, "docuforge")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap docuforge: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Shutdown(ctx)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		status := map[string]any{
			"status":  "ok",
			"service": "docuforge",
		}
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["error"] = err.Error()
		}
		status["backendReachable"] = c.Gateway.IsReachable(ec.Request().Context())
		return ec.JSON(200, status)
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterFileRoutes(e, c)
	routes.RegisterProcessingRoutes(e, c)
	routes.RegisterAuthRoutes(e, c)
	routes.RegisterCloudRoutes(e, c)
	routes.RegisterStateRoutes(e, c)
	routes.RegisterHistoryRoutes(e, c)
}

// startServer starts the Echo server on the configured port
func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("starting docuforge", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
