package services

import (
	"context"
	"errors"
	"fmt"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// ProjectConfigService binds projects to schemes and answers workflow questions
// about a project's issues through the bound scheme's live generation.
type ProjectConfigService struct {
	repo      repository.Repository
	schemes   *SchemeService
	deploys   *DeployCoordinator
	pipeline  *Pipeline
	directory Directory
	logger    Logger
}

// NewProjectConfigService creates a new ProjectConfigService.
func NewProjectConfigService(repo repository.Repository, schemes *SchemeService, deploys *DeployCoordinator, pipeline *Pipeline, directory Directory, logger Logger) *ProjectConfigService {
	return &ProjectConfigService{
		repo:      repo,
		schemes:   schemes,
		deploys:   deploys,
		pipeline:  pipeline,
		directory: directory,
		logger:    logger,
	}
}

func validateApplyType(applyType models.ApplyType) error {
	if !applyType.Valid() {
		return fmt.Errorf("illegal apply type %q: %w", applyType, ErrValidation)
	}
	return nil
}

// Associate binds the project to schemeID for applyType and activates the scheme
// on its first association. Repeating an existing binding is a no-op; rebinding
// the project to a different scheme is rejected.
func (s *ProjectConfigService) Associate(ctx context.Context, orgID, projectID, schemeID int64, applyType models.ApplyType) (*models.ProjectConfig, error) {
	if err := validateApplyType(applyType); err != nil {
		return nil, err
	}
	if projectID <= 0 {
		return nil, fmt.Errorf("project id is required: %w", ErrValidation)
	}

	pc, err := s.repo.GetProjectConfig(ctx, orgID, projectID, applyType)
	switch {
	case err == nil:
		if pc.SchemeID != schemeID {
			return nil, fmt.Errorf("project %d already uses scheme %d for %s: %w", projectID, pc.SchemeID, applyType, ErrValidation)
		}
	case errors.Is(err, repository.ErrNotFound):
		if _, err := s.repo.GetScheme(ctx, orgID, schemeID); err != nil {
			return nil, err
		}
		pc = &models.ProjectConfig{OrganizationID: orgID, ProjectID: projectID, SchemeID: schemeID, ApplyType: applyType}
		if err := s.repo.CreateProjectConfig(ctx, pc); err != nil {
			return nil, err
		}
		s.logger.Info("Project bound to scheme", "organization_id", orgID, "project_id", projectID, "scheme_id", schemeID, "apply_type", applyType)
	default:
		return nil, err
	}

	// Activation is idempotent, so a retried association heals a failed one.
	if _, err := s.deploys.ActivateForProject(ctx, orgID, schemeID); err != nil {
		return nil, err
	}
	return pc, nil
}

// QueryByProject returns every scheme the project is bound to, rendered from its
// live generation.
func (s *ProjectConfigService) QueryByProject(ctx context.Context, orgID, projectID int64) (*models.ProjectConfigDetail, error) {
	configs, err := s.repo.ListProjectConfigs(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	detail := &models.ProjectConfigDetail{ProjectID: projectID, Schemes: make(map[models.ApplyType]*models.SchemeView, len(configs))}
	for _, pc := range configs {
		view, err := s.schemes.QuerySchemeWithConfig(ctx, models.Live, orgID, pc.SchemeID)
		if err != nil {
			return nil, err
		}
		detail.Schemes[pc.ApplyType] = view
	}
	return detail, nil
}

func (s *ProjectConfigService) boundScheme(ctx context.Context, orgID, projectID int64, applyType models.ApplyType) (int64, error) {
	if err := validateApplyType(applyType); err != nil {
		return 0, err
	}
	pc, err := s.repo.GetProjectConfig(ctx, orgID, projectID, applyType)
	if err != nil {
		return 0, fmt.Errorf("project %d has no scheme for %s: %w", projectID, applyType, err)
	}
	return pc.SchemeID, nil
}

// QueryStateMachineID resolves the machine an issue type of the project runs on:
// the live entry for the issue type, or the live default entry.
func (s *ProjectConfigService) QueryStateMachineID(ctx context.Context, orgID, projectID int64, applyType models.ApplyType, issueTypeID int64) (int64, error) {
	schemeID, err := s.boundScheme(ctx, orgID, projectID, applyType)
	if err != nil {
		return 0, err
	}
	cfg, err := s.repo.GetConfig(ctx, models.Live, orgID, schemeID, issueTypeID)
	if err != nil {
		return 0, fmt.Errorf("scheme %d has no live machine for issue type %d: %w", schemeID, issueTypeID, err)
	}
	return cfg.StateMachineID, nil
}

// QueryStatusByIssueType returns the ordered statuses of the machine the issue type resolves to.
func (s *ProjectConfigService) QueryStatusByIssueType(ctx context.Context, orgID, projectID int64, applyType models.ApplyType, issueTypeID int64) ([]*models.Status, error) {
	machineID, err := s.QueryStateMachineID(ctx, orgID, projectID, applyType, issueTypeID)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(ctx, s.directory, orgID)
	if err != nil {
		return nil, err
	}
	m, ok := catalog[machineID]
	if !ok {
		return nil, fmt.Errorf("state machine %d is unknown to the directory: %w", machineID, ErrUpstream)
	}
	return append([]*models.Status{}, m.Statuses...), nil
}

// QueryStatusByProject returns the distinct statuses of every machine the project's
// live generation references, in machine order.
func (s *ProjectConfigService) QueryStatusByProject(ctx context.Context, orgID, projectID int64, applyType models.ApplyType) ([]*models.Status, error) {
	schemeID, err := s.boundScheme(ctx, orgID, projectID, applyType)
	if err != nil {
		return nil, err
	}
	live, err := s.repo.ListConfigs(ctx, models.Live, orgID, schemeID)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(ctx, s.directory, orgID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	statuses := []*models.Status{}
	for _, id := range machineIDs(live) {
		m, ok := catalog[id]
		if !ok {
			return nil, fmt.Errorf("state machine %d is unknown to the directory: %w", id, ErrUpstream)
		}
		for _, st := range m.Statuses {
			if !seen[st.ID] {
				seen[st.ID] = true
				statuses = append(statuses, st)
			}
		}
	}
	return statuses, nil
}

// QueryTransforms lists the transforms an issue in currentStatusID may take, each
// with its end status. An entry staying in currentStatusID is appended when no
// transform already ends there. The apply type selects the evaluating service.
func (s *ProjectConfigService) QueryTransforms(ctx context.Context, orgID, projectID int64, applyType models.ApplyType, issueTypeID, instanceID, currentStatusID int64) ([]*models.ProjectTransform, error) {
	machineID, err := s.QueryStateMachineID(ctx, orgID, projectID, applyType, issueTypeID)
	if err != nil {
		return nil, err
	}
	infos, err := s.pipeline.ListAvailableTransforms(ctx, orgID, string(applyType), machineID, instanceID, currentStatusID)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(ctx, s.directory, orgID)
	if err != nil {
		return nil, err
	}
	statusByID := make(map[int64]*models.Status)
	for _, m := range catalog {
		for _, st := range m.Statuses {
			statusByID[st.ID] = st
		}
	}

	out := make([]*models.ProjectTransform, 0, len(infos)+1)
	stays := false
	for _, info := range infos {
		if info.EndStatusID == currentStatusID {
			stays = true
		}
		out = append(out, &models.ProjectTransform{TransformInfo: info, EndStatus: statusByID[info.EndStatusID]})
	}
	if !stays {
		out = append(out, &models.ProjectTransform{
			TransformInfo: &models.TransformInfo{
				StartStatusID: currentStatusID,
				EndStatusID:   currentStatusID,
				Type:          models.TransformTypeCustom,
				Conditions:    []*models.TransformConfig{},
			},
			EndStatus: statusByID[currentStatusID],
		})
	}
	return out, nil
}

// QueryProjectIDsByStateMachine groups, by apply type, the projects whose bound
// scheme references machineID in its live generation.
func (s *ProjectConfigService) QueryProjectIDsByStateMachine(ctx context.Context, orgID, machineID int64) (map[models.ApplyType][]int64, error) {
	out := make(map[models.ApplyType][]int64)
	schemeIDs, err := s.repo.ListSchemeIDsReferencing(ctx, models.Live, orgID, machineID)
	if err != nil {
		return nil, err
	}
	if len(schemeIDs) == 0 {
		return out, nil
	}
	configs, err := s.repo.ListProjectConfigsBySchemes(ctx, orgID, schemeIDs)
	if err != nil {
		return nil, err
	}
	for _, pc := range configs {
		out[pc.ApplyType] = append(out[pc.ApplyType], pc.ProjectID)
	}
	return out, nil
}

// QueryFirstStatus returns the status a new issue of the given type starts in.
func (s *ProjectConfigService) QueryFirstStatus(ctx context.Context, orgID, projectID int64, applyType models.ApplyType, issueTypeID int64) (int64, error) {
	machineID, err := s.QueryStateMachineID(ctx, orgID, projectID, applyType, issueTypeID)
	if err != nil {
		return 0, err
	}
	return s.pipeline.QueryInitStatusID(ctx, orgID, machineID)
}
