package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	"enrollment-sync/internal/api/handler"
	"enrollment-sync/pkg/router"

	_ "enrollment-sync/docs" // registers the swagger document
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/healthz", h.Health)

	r.POST("/api/v1/csv", h.SubmitCSV)
	r.GET("/api/v1/queue", h.GetQueueStatus)
	// More specific routes first
	r.POST("/api/v1/queue/next", h.ProcessNext)
	r.GET(handler.QueueItemPattern, h.GetQueueItem)
	r.GET("/api/v1/records/export", h.ExportRecords)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
