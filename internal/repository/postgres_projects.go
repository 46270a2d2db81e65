package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"workflow-scheme/backend/pkg/models"
)

const projectConfigColumns = `id, organization_id, project_id, scheme_id, apply_type, created_at`

func scanProjectConfig(row pgx.Row) (*models.ProjectConfig, error) {
	var p models.ProjectConfig
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.ProjectID, &p.SchemeID, &p.ApplyType, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProjectConfig binds a project to a scheme for one apply type.
func (s *PostgresRepository) CreateProjectConfig(ctx context.Context, pc *models.ProjectConfig) error {
	row := s.db.QueryRow(ctx, `
INSERT INTO project_config (organization_id, project_id, scheme_id, apply_type)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`, pc.OrganizationID, pc.ProjectID, pc.SchemeID, pc.ApplyType)
	if err := row.Scan(&pc.ID, &pc.CreatedAt); err != nil {
		return fmt.Errorf("repository: create project config: %w", wrapWriteErr(err))
	}
	return nil
}

// GetProjectConfig returns a project's binding for an apply type.
func (s *PostgresRepository) GetProjectConfig(ctx context.Context, orgID, projectID int64, applyType models.ApplyType) (*models.ProjectConfig, error) {
	p, err := scanProjectConfig(s.db.QueryRow(ctx, `
SELECT `+projectConfigColumns+` FROM project_config
WHERE organization_id = $1 AND project_id = $2 AND apply_type = $3`, orgID, projectID, applyType))
	if err != nil {
		return nil, notFound(err, "get project config")
	}
	return p, nil
}

// ListProjectConfigs lists every binding of a project.
func (s *PostgresRepository) ListProjectConfigs(ctx context.Context, orgID, projectID int64) ([]*models.ProjectConfig, error) {
	return s.listProjectConfigs(ctx, `
SELECT `+projectConfigColumns+` FROM project_config
WHERE organization_id = $1 AND project_id = $2 ORDER BY apply_type`, orgID, projectID)
}

// ListProjectConfigsBySchemes lists the bindings onto the given schemes.
func (s *PostgresRepository) ListProjectConfigsBySchemes(ctx context.Context, orgID int64, schemeIDs []int64) ([]*models.ProjectConfig, error) {
	return s.listProjectConfigs(ctx, `
SELECT `+projectConfigColumns+` FROM project_config
WHERE organization_id = $1 AND scheme_id = ANY($2) ORDER BY project_id, apply_type`, orgID, schemeIDs)
}

func (s *PostgresRepository) listProjectConfigs(ctx context.Context, sql string, args ...any) ([]*models.ProjectConfig, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: list project configs: %w", err)
	}
	configs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ProjectConfig, error) {
		return scanProjectConfig(row)
	})
	if err != nil {
		return nil, fmt.Errorf("repository: scan project config: %w", err)
	}
	return configs, nil
}
