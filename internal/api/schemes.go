package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workflow-scheme/backend/pkg/models"
)

// SchemeRequest is the body of scheme create and update calls.
type SchemeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Version is required on update.
	Version int64 `json:"version"`
}

// DeployRequest carries the change items confirmed by the caller after check_deploy.
type DeployRequest struct {
	ChangeItems []*models.SchemeChangeItem `json:"change_items"`
}

// ListSchemes (GET /organizations/{organization_id}/schemes)
func (s *Server) ListSchemes(c echo.Context) error {
	var filter models.SchemeFilter
	if err := query(c, "name", false, &filter.Name); err != nil {
		return err
	}
	schemes, err := s.Schemes.ListSchemes(c.Request().Context(), orgID(c), filter)
	if err != nil {
		return err
	}
	if schemes == nil {
		schemes = []*models.Scheme{}
	}
	return c.JSON(http.StatusOK, schemes)
}

// CreateScheme (POST /organizations/{organization_id}/schemes)
func (s *Server) CreateScheme(c echo.Context) error {
	var req SchemeRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	scheme, err := s.Schemes.CreateScheme(c.Request().Context(), orgID(c), req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, scheme)
}

// CheckName (GET /organizations/{organization_id}/schemes/check_name)
func (s *Server) CheckName(c echo.Context) error {
	var name string
	if err := query(c, "name", true, &name); err != nil {
		return err
	}
	free, err := s.Schemes.CheckName(c.Request().Context(), orgID(c), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"available": free})
}

// UpdateScheme (PUT /organizations/{organization_id}/schemes/{scheme_id})
func (s *Server) UpdateScheme(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	var req SchemeRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.Version <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "version is required")
	}
	scheme, err := s.Schemes.UpdateScheme(c.Request().Context(), &models.Scheme{
		ID:             schemeID,
		OrganizationID: orgID(c),
		Name:           req.Name,
		Description:    req.Description,
		Version:        req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scheme)
}

// DeleteScheme (DELETE /organizations/{organization_id}/schemes/{scheme_id})
func (s *Server) DeleteScheme(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	if err := s.Schemes.DeleteScheme(c.Request().Context(), orgID(c), schemeID); err != nil {
		return err
	}
	return noContent(c)
}

// QuerySchemeWithConfig (GET /organizations/{organization_id}/schemes/{scheme_id}/config)
func (s *Server) QuerySchemeWithConfig(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	isDraft := true
	if err := query(c, "is_draft", false, &isDraft); err != nil {
		return err
	}
	view, err := s.Schemes.QuerySchemeWithConfig(c.Request().Context(), models.GenerationOf(isDraft), orgID(c), schemeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func schemeAndMachine(c echo.Context) (int64, int64, error) {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return 0, 0, err
	}
	machineID, err := pathInt64(c, "state_machine_id")
	if err != nil {
		return 0, 0, err
	}
	return schemeID, machineID, nil
}

// CreateConfig (POST /organizations/{organization_id}/schemes/{scheme_id}/configs/{state_machine_id})
func (s *Server) CreateConfig(c echo.Context) error {
	schemeID, machineID, err := schemeAndMachine(c)
	if err != nil {
		return err
	}
	var inputs []models.ConfigInput
	if err := bindBody(c, &inputs); err != nil {
		return err
	}
	view, err := s.Schemes.CreateConfig(c.Request().Context(), orgID(c), schemeID, machineID, inputs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// DeleteConfig (DELETE /organizations/{organization_id}/schemes/{scheme_id}/configs/{state_machine_id})
func (s *Server) DeleteConfig(c echo.Context) error {
	schemeID, machineID, err := schemeAndMachine(c)
	if err != nil {
		return err
	}
	view, err := s.Schemes.DeleteConfig(c.Request().Context(), orgID(c), schemeID, machineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// UpdateDefaultConfig (PUT /organizations/{organization_id}/schemes/{scheme_id}/default/{state_machine_id})
func (s *Server) UpdateDefaultConfig(c echo.Context) error {
	schemeID, machineID, err := schemeAndMachine(c)
	if err != nil {
		return err
	}
	view, err := s.Schemes.UpdateDefaultConfig(c.Request().Context(), orgID(c), schemeID, machineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// CheckDeploy (GET /organizations/{organization_id}/schemes/{scheme_id}/check_deploy)
func (s *Server) CheckDeploy(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	items, err := s.Deploys.CheckDeploy(c.Request().Context(), orgID(c), schemeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// Deploy (POST /organizations/{organization_id}/schemes/{scheme_id}/deploy)
func (s *Server) Deploy(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	var version int64
	if err := query(c, "version", true, &version); err != nil {
		return err
	}
	var req DeployRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ok, err := s.Deploys.Deploy(c.Request().Context(), orgID(c), schemeID, req.ChangeItems, version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"deployed": ok})
}

// DeleteDraft (DELETE /organizations/{organization_id}/schemes/{scheme_id}/draft)
func (s *Server) DeleteDraft(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	view, err := s.Deploys.DeleteDraft(c.Request().Context(), orgID(c), schemeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// UpdateDeployProgress (PUT /organizations/{organization_id}/schemes/{scheme_id}/deploy_progress)
func (s *Server) UpdateDeployProgress(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	var progress int
	if err := query(c, "progress", true, &progress); err != nil {
		return err
	}
	ok, err := s.Deploys.UpdateDeployProgress(c.Request().Context(), orgID(c), schemeID, progress)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"updated": ok})
}

// ActivateForProject (POST /organizations/{organization_id}/schemes/{scheme_id}/activate)
func (s *Server) ActivateForProject(c echo.Context) error {
	schemeID, err := pathInt64(c, "scheme_id")
	if err != nil {
		return err
	}
	scheme, err := s.Deploys.ActivateForProject(c.Request().Context(), orgID(c), schemeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scheme)
}

// QuerySchemesByStateMachine (GET /organizations/{organization_id}/state_machines/{state_machine_id}/schemes)
func (s *Server) QuerySchemesByStateMachine(c echo.Context) error {
	machineID, err := pathInt64(c, "state_machine_id")
	if err != nil {
		return err
	}
	schemes, err := s.Schemes.QuerySchemesByStateMachine(c.Request().Context(), orgID(c), machineID)
	if err != nil {
		return err
	}
	if schemes == nil {
		schemes = []*models.Scheme{}
	}
	return c.JSON(http.StatusOK, schemes)
}
