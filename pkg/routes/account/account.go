package account

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	ctxmiddleware "github.com/Ramsey-B/stem/pkg/context"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/accounts"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/queue"
)

var validate = validator.New()

// Register registers account routes
func Register(g *echo.Group) {
	g.GET("/search", Search)
	g.GET("/:id", Detail)
	g.POST("/merge", Merge)
}

// Detail returns one account with its aliases, contacts, and merge history
func Detail(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "account_handler.Detail")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*accounts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account service")
	}

	detail, err := svc.Detail(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, detail)
}

// Search is the typeahead account lookup backing the resolve UI
func Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "account_handler.Search")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	term := c.QueryParam("q")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, svc, err := ectoinject.GetContext[*queue.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue service")
	}

	results, err := svc.SearchAccounts(ctx, tenantID, term, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, results)
}

// Merge consolidates the source account into the target account
func Merge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "account_handler.Merge")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.MergeAccountsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge engine")
	}

	result, err := engine.MergeAccounts(ctx, tenantID, req.SourceAccountID, req.TargetAccountID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
