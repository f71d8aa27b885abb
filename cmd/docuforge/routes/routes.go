package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
	"github.com/docuforge/docuforge/cmd/docuforge/handlers"
)

// RegisterFileRoutes registers the file plane routes
func RegisterFileRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewFileHandler(c)

	files := e.Group("/api/v1/files")
	{
		files.POST("", h.Upload)
		files.GET("", h.List)
		files.POST("/clear", h.Clear)
		files.GET("/:id/metadata", h.Metadata)
		files.PATCH("/:id/metadata", h.UpdateMetadata)
		files.GET("/:id/download", h.Download)
		files.GET("/:id/analysis", h.Analyze)
		files.DELETE("/:id", h.Delete)
	}
}

// RegisterProcessingRoutes registers the processing service routes
func RegisterProcessingRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewProcessingHandler(c)

	process := e.Group("/api/v1/process")
	{
		process.POST("/compress", h.Compress)
		process.POST("/convert", h.Convert)
		process.GET("/convert/:id/preview", h.ConvertPreview)
		process.POST("/ocr", h.OCR)
		process.POST("/ai", h.AI)
		process.POST("/cancel", h.Cancel)
	}
}

// RegisterAuthRoutes registers session management routes
func RegisterAuthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAuthHandler(c)

	auth := e.Group("/api/v1/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/register", h.Register)
		auth.POST("/logout", h.Logout)
		auth.GET("/session", h.Session)
	}
}

// RegisterCloudRoutes registers cloud provider routes
func RegisterCloudRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewCloudHandler(c)

	cloud := e.Group("/api/v1/cloud/:provider")
	{
		cloud.GET("/auth-url", h.AuthURL)
		cloud.POST("/callback", h.Callback)
		cloud.GET("/status", h.Status)
		cloud.POST("/upload", h.Upload)
		cloud.POST("/download", h.Download)
		cloud.GET("/list", h.List)
		cloud.POST("/folder", h.CreateFolder)
		cloud.POST("/revoke", h.Revoke)
	}
}

// RegisterStateRoutes registers app state routes
func RegisterStateRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewStateHandler(c)

	state := e.Group("/api/v1/state")
	{
		state.GET("", h.Get)
		state.PATCH("", h.Update)
		state.PUT("/processing-mode", h.SetProcessingMode)
	}
}

// RegisterHistoryRoutes registers history routes
func RegisterHistoryRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewHistoryHandler(c)

	history := e.Group("/api/v1/history")
	{
		history.GET("", h.Archive)
		history.GET("/:service", h.Service)
	}
}
