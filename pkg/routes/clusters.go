package routes

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type ClustersRequest struct {
	PageRequest
	Kind string `query:"kind"`
	// Source "resolver" recomputes from the records instead of reading the cache
	Source string `query:"source" validate:"omitempty,oneof=cache resolver"`
}

// Clusters handles GET /batches/:batch_id/clusters
func (h *Handler) Clusters(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ClusterHandler.Clusters")
	defer span.End()

	req, err := BindRequest[ClustersRequest](c)
	if err != nil {
		return err
	}

	kind, err := models.ParseKindFilter(req.Kind)
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	batchID := c.Param("batch_id")
	var page *models.ClusterPage
	if req.Source == "resolver" {
		page, err = h.engine.ResolveClusters(ctx, batchID, kind, req.Page, req.PageSize)
	} else {
		page, err = h.engine.GetClusters(ctx, batchID, kind, req.Page, req.PageSize)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, page)
}

// Rebuild handles POST /batches/:batch_id/clusters/rebuild. It answers 409
// while another rebuild of the batch holds the lock.
func (h *Handler) Rebuild(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ClusterHandler.Rebuild")
	defer span.End()

	result, err := h.engine.RebuildClusters(ctx, c.Param("batch_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, result)
}

// Stats handles GET /batches/:batch_id/clusters/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ClusterHandler.Stats")
	defer span.End()

	stats, err := h.engine.Stats(ctx, c.Param("batch_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
