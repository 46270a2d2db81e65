package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workflow-scheme/backend/pkg/models"
)

// GuardRequest asks whether an instance may take a transform.
type GuardRequest struct {
	ServiceCode string        `json:"service_code"`
	TransformID int64         `json:"transform_id"`
	Input       *models.Input `json:"input"`
}

// PostActionRequest runs a transform's actions after the instance moved to TargetNodeID.
type PostActionRequest struct {
	ServiceCode  string        `json:"service_code"`
	TransformID  int64         `json:"transform_id"`
	TargetNodeID int64         `json:"target_node_id"`
	Input        *models.Input `json:"input"`
}

func requireServiceCode(code string) error {
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "service_code is required")
	}
	return nil
}

// EvaluateGuard (POST /organizations/{organization_id}/instances/guard)
func (s *Server) EvaluateGuard(c echo.Context) error {
	var req GuardRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if err := requireServiceCode(req.ServiceCode); err != nil {
		return err
	}
	res, err := s.Pipeline.EvaluateGuard(c.Request().Context(), orgID(c), req.ServiceCode, req.TransformID, req.Input, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// RunPostAction (POST /organizations/{organization_id}/instances/post_action)
func (s *Server) RunPostAction(c echo.Context) error {
	var req PostActionRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if err := requireServiceCode(req.ServiceCode); err != nil {
		return err
	}
	res, err := s.Pipeline.RunPostAction(c.Request().Context(), orgID(c), req.ServiceCode, req.TransformID, req.TargetNodeID, req.Input, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ListAvailableTransforms (GET /organizations/{organization_id}/instances/transforms)
func (s *Server) ListAvailableTransforms(c echo.Context) error {
	var (
		serviceCode                     string
		machineID, instanceID, statusID int64
	)
	for _, p := range []struct {
		name string
		dest any
	}{
		{"service_code", &serviceCode},
		{"state_machine_id", &machineID},
		{"instance_id", &instanceID},
		{"status_id", &statusID},
	} {
		if err := query(c, p.name, true, p.dest); err != nil {
			return err
		}
	}
	infos, err := s.Pipeline.ListAvailableTransforms(c.Request().Context(), orgID(c), serviceCode, machineID, instanceID, statusID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, infos)
}

// QueryInitTransform (GET /organizations/{organization_id}/state_machines/{state_machine_id}/init_transform)
func (s *Server) QueryInitTransform(c echo.Context) error {
	machineID, err := pathInt64(c, "state_machine_id")
	if err != nil {
		return err
	}
	detail, err := s.Pipeline.QueryInitTransform(c.Request().Context(), orgID(c), machineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// QueryInitStatusID (GET /organizations/{organization_id}/state_machines/{state_machine_id}/init_status)
func (s *Server) QueryInitStatusID(c echo.Context) error {
	machineID, err := pathInt64(c, "state_machine_id")
	if err != nil {
		return err
	}
	statusID, err := s.Pipeline.QueryInitStatusID(c.Request().Context(), orgID(c), machineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"status_id": statusID})
}

// ListUnconfiguredCodes (GET /organizations/{organization_id}/transforms/{transform_id}/unconfigured_codes)
func (s *Server) ListUnconfiguredCodes(c echo.Context) error {
	transformID, err := pathInt64(c, "transform_id")
	if err != nil {
		return err
	}
	var kind string
	if err := query(c, "kind", true, &kind); err != nil {
		return err
	}
	codes, err := s.Codes.ListUnconfigured(c.Request().Context(), orgID(c), transformID, kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, codes)
}

// ListConfigCodes (GET /config_codes)
func (s *Server) ListConfigCodes(c echo.Context) error {
	var kind string
	if err := query(c, "kind", false, &kind); err != nil {
		return err
	}
	codes, err := s.Codes.List(c.Request().Context(), kind)
	if err != nil {
		return err
	}
	if codes == nil {
		codes = []*models.ConfigCode{}
	}
	return c.JSON(http.StatusOK, codes)
}

// RegisterConfigCodes (POST /config_codes/{service})
func (s *Server) RegisterConfigCodes(c echo.Context) error {
	service := c.Param("service")
	var codes []*models.ConfigCode
	if err := bindBody(c, &codes); err != nil {
		return err
	}
	if err := s.Codes.Register(c.Request().Context(), service, codes); err != nil {
		return err
	}
	return noContent(c)
}
