package call

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	ctxmiddleware "github.com/Ramsey-B/stem/pkg/context"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/queue"
	"github.com/Ramsey-B/fern/pkg/resolution"
)

var validate = validator.New()

// Register registers call resolution routes
func Register(g *echo.Group) {
	g.GET("/:id", Detail)
	g.POST("/:id/resolve", Resolve)
	g.POST("/:id/create-account", CreateAccount)
	g.POST("/bulk-resolve", BulkResolve)
	g.POST("/dismiss", Dismiss)
}

// Detail returns one call with its participants and, while it is queued,
// its current match candidates
func Detail(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "call_handler.Detail")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*queue.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue service")
	}

	item, err := svc.CallDetail(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// Resolve assigns a call to an account
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "call_handler.Resolve")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	callID := c.Param("id")

	var req models.ResolveCallRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution service")
	}

	result, err := svc.ResolveCall(ctx, tenantID, callID, req.AccountID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// BulkResolve assigns up to the batch limit of calls to one account atomically
func BulkResolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "call_handler.BulkResolve")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.BulkResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution service")
	}

	result, err := svc.BulkResolve(ctx, tenantID, req.CallIDs, req.AccountID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Dismiss hides queued calls from review atomically
func Dismiss(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "call_handler.Dismiss")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.DismissRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution service")
	}

	result, err := svc.DismissCalls(ctx, tenantID, req.CallIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// CreateAccount provisions a new account from a call and resolves the call to it
func CreateAccount(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "call_handler.CreateAccount")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	callID := c.Param("id")

	var req models.CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution service")
	}

	result, err := svc.CreateAccountFromCall(ctx, tenantID, callID, req.Name, req.PrimaryDomain)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}
