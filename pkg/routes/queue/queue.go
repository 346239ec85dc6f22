package queue

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	ctxmiddleware "github.com/Ramsey-B/stem/pkg/context"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/queue"
)

// Register registers review queue routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/stats", Stats)
}

// List returns a page of the review queue with match candidates
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "queue_handler.List")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	params := queue.ListParams{
		Page:      page,
		PageSize:  pageSize,
		Search:    c.QueryParam("search"),
		SortBy:    c.QueryParam("sort_by"),
		SortOrder: c.QueryParam("sort_order"),
	}

	ctx, svc, err := ectoinject.GetContext[*queue.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue service")
	}

	response, err := svc.List(ctx, tenantID, params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response)
}

// Stats returns review queue statistics
func Stats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "queue_handler.Stats")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*queue.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue service")
	}

	stats, err := svc.Stats(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
