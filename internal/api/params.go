package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"workflow-scheme/backend/internal/auth"
)

func pathInt64(c echo.Context, name string) (int64, error) {
	var v int64
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return v, nil
}

// query binds an optional (or, with required, mandatory) form query parameter.
// dest keeps its value when the parameter is absent.
func query(c echo.Context, name string, required bool, dest any) error {
	if err := runtime.BindQueryParameter("form", true, required, name, c.QueryParams(), dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return nil
}

func bindBody(c echo.Context, dest any) error {
	if err := c.Bind(dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

// orgID returns the organization path parameter. requireOrganization has
// already checked it.
func orgID(c echo.Context) int64 {
	id, _ := c.Get(orgContextKey).(int64)
	return id
}

const orgContextKey = "organization_id"

// requireOrganization binds :organization_id and rejects callers outside it.
func requireOrganization(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathInt64(c, "organization_id")
		if err != nil {
			return err
		}
		p, ok := auth.FromContext(c.Request().Context())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated principal")
		}
		if !p.CanAccess(id) {
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("no access to organization %d", id))
		}
		c.Set(orgContextKey, id)
		return next(c)
	}
}

// requireScope rejects principals lacking scope.
func requireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := auth.FromContext(c.Request().Context())
			if !ok || !p.HasScope(scope) {
				return echo.NewHTTPError(http.StatusForbidden, "missing scope "+scope)
			}
			return next(c)
		}
	}
}
