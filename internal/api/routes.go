package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"workflow-scheme/backend/internal/auth"
)

// NewEcho builds the echo instance with middleware, health and the /api/v1 routes.
// authz guards everything under /api/v1.
func NewEcho(s *Server, authz *auth.Auth) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = ProblemHandler(s.Logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(otelecho.Middleware("workflow-scheme"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.Logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID)
			return nil
		},
	}))

	e.GET("/health", s.HandleHealth)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	RegisterHandlers(apiGroup, s)
	return e
}

// RegisterHandlers mounts the REST routes on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	read := requireScope(auth.ScopeSchemeRead)
	write := requireScope(auth.ScopeSchemeWrite)
	execute := requireScope(auth.ScopeTransformExecute)

	g.GET("/config_codes", s.ListConfigCodes, read)
	g.POST("/config_codes/:service", s.RegisterConfigCodes, write)

	org := g.Group("/organizations/:organization_id", requireOrganization)

	org.GET("/schemes", s.ListSchemes, read)
	org.POST("/schemes", s.CreateScheme, write)
	org.GET("/schemes/check_name", s.CheckName, read)
	org.PUT("/schemes/:scheme_id", s.UpdateScheme, write)
	org.DELETE("/schemes/:scheme_id", s.DeleteScheme, write)
	org.GET("/schemes/:scheme_id/config", s.QuerySchemeWithConfig, read)
	org.POST("/schemes/:scheme_id/configs/:state_machine_id", s.CreateConfig, write)
	org.DELETE("/schemes/:scheme_id/configs/:state_machine_id", s.DeleteConfig, write)
	org.PUT("/schemes/:scheme_id/default/:state_machine_id", s.UpdateDefaultConfig, write)
	org.GET("/schemes/:scheme_id/check_deploy", s.CheckDeploy, read)
	org.POST("/schemes/:scheme_id/deploy", s.Deploy, write)
	org.DELETE("/schemes/:scheme_id/draft", s.DeleteDraft, write)
	org.PUT("/schemes/:scheme_id/deploy_progress", s.UpdateDeployProgress, write)
	org.POST("/schemes/:scheme_id/activate", s.ActivateForProject, write)
	org.GET("/state_machines/:state_machine_id/schemes", s.QuerySchemesByStateMachine, read)

	org.POST("/instances/guard", s.EvaluateGuard, execute)
	org.POST("/instances/post_action", s.RunPostAction, execute)
	org.GET("/instances/transforms", s.ListAvailableTransforms, read)
	org.GET("/state_machines/:state_machine_id/init_transform", s.QueryInitTransform, read)
	org.GET("/state_machines/:state_machine_id/init_status", s.QueryInitStatusID, read)
	org.GET("/transforms/:transform_id/unconfigured_codes", s.ListUnconfiguredCodes, read)

	org.GET("/projects/:project_id/config", s.QueryProjectConfig, read)
	org.POST("/projects/:project_id/config", s.AssociateProject, write)
	org.GET("/projects/:project_id/state_machine", s.QueryProjectStateMachine, read)
	org.GET("/projects/:project_id/statuses", s.QueryProjectStatuses, read)
	org.GET("/projects/:project_id/transforms", s.QueryProjectTransforms, read)
	org.GET("/projects/:project_id/first_status", s.QueryProjectFirstStatus, read)
	org.GET("/state_machines/:state_machine_id/projects", s.QueryProjectsByStateMachine, read)
}

func noContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
