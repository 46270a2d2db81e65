package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workflow-scheme/backend/pkg/models"
)

// AssociateRequest binds a project to a scheme for one apply type.
type AssociateRequest struct {
	SchemeID  int64            `json:"scheme_id"`
	ApplyType models.ApplyType `json:"apply_type"`
}

func applyType(c echo.Context) (models.ApplyType, error) {
	var v string
	if err := query(c, "apply_type", true, &v); err != nil {
		return "", err
	}
	return models.ApplyType(v), nil
}

// projectIssueQuery binds the path project and the apply_type and issue_type_id
// query parameters shared by the project lookups.
func projectIssueQuery(c echo.Context, issueTypeRequired bool) (projectID int64, at models.ApplyType, issueTypeID int64, err error) {
	if projectID, err = pathInt64(c, "project_id"); err != nil {
		return
	}
	if at, err = applyType(c); err != nil {
		return
	}
	err = query(c, "issue_type_id", issueTypeRequired, &issueTypeID)
	return
}

// AssociateProject (POST /organizations/{organization_id}/projects/{project_id}/config)
func (s *Server) AssociateProject(c echo.Context) error {
	projectID, err := pathInt64(c, "project_id")
	if err != nil {
		return err
	}
	var req AssociateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	pc, err := s.Projects.Associate(c.Request().Context(), orgID(c), projectID, req.SchemeID, req.ApplyType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pc)
}

// QueryProjectConfig (GET /organizations/{organization_id}/projects/{project_id}/config)
func (s *Server) QueryProjectConfig(c echo.Context) error {
	projectID, err := pathInt64(c, "project_id")
	if err != nil {
		return err
	}
	detail, err := s.Projects.QueryByProject(c.Request().Context(), orgID(c), projectID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// QueryProjectStateMachine (GET /organizations/{organization_id}/projects/{project_id}/state_machine)
func (s *Server) QueryProjectStateMachine(c echo.Context) error {
	projectID, at, issueTypeID, err := projectIssueQuery(c, true)
	if err != nil {
		return err
	}
	id, err := s.Projects.QueryStateMachineID(c.Request().Context(), orgID(c), projectID, at, issueTypeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"state_machine_id": id})
}

// QueryProjectStatuses (GET /organizations/{organization_id}/projects/{project_id}/statuses)
// Without issue_type_id every status of the project's machines is returned.
func (s *Server) QueryProjectStatuses(c echo.Context) error {
	projectID, at, issueTypeID, err := projectIssueQuery(c, false)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	var statuses []*models.Status
	if issueTypeID != 0 {
		statuses, err = s.Projects.QueryStatusByIssueType(ctx, orgID(c), projectID, at, issueTypeID)
	} else {
		statuses, err = s.Projects.QueryStatusByProject(ctx, orgID(c), projectID, at)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statuses)
}

// QueryProjectTransforms (GET /organizations/{organization_id}/projects/{project_id}/transforms)
func (s *Server) QueryProjectTransforms(c echo.Context) error {
	projectID, at, issueTypeID, err := projectIssueQuery(c, true)
	if err != nil {
		return err
	}
	var instanceID, currentStatusID int64
	if err := query(c, "instance_id", true, &instanceID); err != nil {
		return err
	}
	if err := query(c, "current_status_id", true, &currentStatusID); err != nil {
		return err
	}
	transforms, err := s.Projects.QueryTransforms(c.Request().Context(), orgID(c), projectID, at, issueTypeID, instanceID, currentStatusID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transforms)
}

// QueryProjectFirstStatus (GET /organizations/{organization_id}/projects/{project_id}/first_status)
func (s *Server) QueryProjectFirstStatus(c echo.Context) error {
	projectID, at, issueTypeID, err := projectIssueQuery(c, true)
	if err != nil {
		return err
	}
	statusID, err := s.Projects.QueryFirstStatus(c.Request().Context(), orgID(c), projectID, at, issueTypeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"status_id": statusID})
}

// QueryProjectsByStateMachine (GET /organizations/{organization_id}/state_machines/{state_machine_id}/projects)
func (s *Server) QueryProjectsByStateMachine(c echo.Context) error {
	machineID, err := pathInt64(c, "state_machine_id")
	if err != nil {
		return err
	}
	ids, err := s.Projects.QueryProjectIDsByStateMachine(c.Request().Context(), orgID(c), machineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ids)
}
