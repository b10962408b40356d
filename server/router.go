// Package server exposes the task queue over HTTP and a websocket event stream.
package server

import (
	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(TraceID(), Logging(h.logger), Recovery(h.logger))

	api := router.Group("/api")
	api.GET("/status", h.Status)
	api.GET("/events", h.Events)

	tasks := api.Group("/tasks", h.RequireSupported)
	tasks.GET("", h.ListTasks)
	tasks.POST("/files", h.RequireWorker, h.UploadFiles)
	tasks.POST("/transfer", h.RequireWorker, h.Transfer)
	tasks.POST("/url", h.RequireWorker, h.SubmitURL)
	tasks.GET("/:id", h.GetTask)
	tasks.GET("/:id/image", h.Image)
	tasks.GET("/:id/source", h.Source)

	return router
}
