// Package routes exposes the engine over HTTP.
package routes

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ramsey-B/clover/pkg/engine"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Engine is the part of *engine.Engine the handlers use.
type Engine interface {
	IngestBatch(ctx context.Context, req engine.IngestRequest) (*models.IngestResult, error)
	RebuildClusters(ctx context.Context, batchID string) (*models.RebuildResult, error)
	GetClusters(ctx context.Context, batchID string, kind models.KindFilter, page, pageSize int) (*models.ClusterPage, error)
	ResolveClusters(ctx context.Context, batchID string, kind models.KindFilter, page, pageSize int) (*models.ClusterPage, error)
	DeleteBatch(ctx context.Context, batchID string) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, filter models.BatchFilter) (*models.BatchPage, error)
	Preview(ctx context.Context, batchID string, page, pageSize int) (*models.RecordPage, error)
	SearchByIdentifier(ctx context.Context, batchID, value string) ([]models.Record, error)
	Stats(ctx context.Context, batchID string) (*models.ClusterStats, error)
}

type Handler struct {
	engine Engine
	// MaxUploadBytes caps the multipart body; 0 means no cap
	maxUploadBytes int64
	logger         ectologger.Logger
}

func NewHandler(e Engine, maxUploadBytes int64, logger ectologger.Logger) *Handler {
	return &Handler{
		engine:         e,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Register mounts the batch and cluster routes under /api/v1 and the
// Prometheus scrape endpoint at /metrics.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api/v1/batches")
	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/:batch_id", h.Get)
	g.DELETE("/:batch_id", h.Delete)
	g.GET("/:batch_id/records", h.Preview)
	g.GET("/:batch_id/records/search", h.Search)
	g.GET("/:batch_id/clusters", h.Clusters)
	g.POST("/:batch_id/clusters/rebuild", h.Rebuild)
	g.GET("/:batch_id/clusters/stats", h.Stats)
}

// PageRequest is the paging shared by list endpoints
type PageRequest struct {
	Page     int `query:"page" validate:"omitempty,min=1"`
	PageSize int `query:"page_size" validate:"omitempty,min=1,max=500"`
}
