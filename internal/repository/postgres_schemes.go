package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"workflow-scheme/backend/pkg/models"
)

const schemeColumns = `id, organization_id, name, description, status, deploy_status, deploy_progress, version, created_at, updated_at`

func scanScheme(row pgx.Row) (*models.Scheme, error) {
	var s models.Scheme
	err := row.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Description, &s.Status, &s.DeployStatus,
		&s.DeployProgress, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSchemes(rows pgx.Rows) ([]*models.Scheme, error) {
	defer rows.Close()
	var schemes []*models.Scheme
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, s)
	}
	return schemes, rows.Err()
}

// CreateScheme inserts a scheme.
func (s *PostgresRepository) CreateScheme(ctx context.Context, scheme *models.Scheme) error {
	if scheme.Status == "" {
		scheme.Status = models.SchemeStatusCreate
	}
	if scheme.DeployStatus == "" {
		scheme.DeployStatus = models.DeployStatusNone
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO state_machine_scheme (organization_id, name, description, status, deploy_status, deploy_progress)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, version, created_at, updated_at`,
		scheme.OrganizationID, scheme.Name, scheme.Description, scheme.Status, scheme.DeployStatus, scheme.DeployProgress)
	if err := row.Scan(&scheme.ID, &scheme.Version, &scheme.CreatedAt, &scheme.UpdatedAt); err != nil {
		return fmt.Errorf("repository: create scheme: %w", wrapWriteErr(err))
	}
	return nil
}

// GetScheme retrieves a scheme by its ID.
func (s *PostgresRepository) GetScheme(ctx context.Context, orgID, schemeID int64) (*models.Scheme, error) {
	scheme, err := scanScheme(s.db.QueryRow(ctx,
		`SELECT `+schemeColumns+` FROM state_machine_scheme WHERE organization_id = $1 AND id = $2`, orgID, schemeID))
	if err != nil {
		return nil, notFound(err, "get scheme")
	}
	return scheme, nil
}

// FindSchemeByName retrieves a scheme by its name.
func (s *PostgresRepository) FindSchemeByName(ctx context.Context, orgID int64, name string) (*models.Scheme, error) {
	scheme, err := scanScheme(s.db.QueryRow(ctx,
		`SELECT `+schemeColumns+` FROM state_machine_scheme WHERE organization_id = $1 AND name = $2`, orgID, name))
	if err != nil {
		return nil, notFound(err, "find scheme by name")
	}
	return scheme, nil
}

// ListSchemes lists an organization's schemes.
func (s *PostgresRepository) ListSchemes(ctx context.Context, orgID int64, filter models.SchemeFilter) ([]*models.Scheme, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+schemeColumns+` FROM state_machine_scheme
WHERE organization_id = $1 AND ($2::text = '' OR name ILIKE '%' || $2::text || '%')
ORDER BY id DESC`, orgID, filter.Name)
	if err != nil {
		return nil, fmt.Errorf("repository: list schemes: %w", err)
	}
	return collectSchemes(rows)
}

// ListSchemesByIDs loads the given schemes.
func (s *PostgresRepository) ListSchemesByIDs(ctx context.Context, orgID int64, ids []int64) ([]*models.Scheme, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT `+schemeColumns+` FROM state_machine_scheme
WHERE organization_id = $1 AND id = ANY($2) ORDER BY id`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: list schemes by ids: %w", err)
	}
	return collectSchemes(rows)
}

// UpdateScheme updates name and description under an optimistic version check.
func (s *PostgresRepository) UpdateScheme(ctx context.Context, scheme *models.Scheme) error {
	row := s.db.QueryRow(ctx, `
UPDATE state_machine_scheme
SET name = $1, description = $2, version = version + 1, updated_at = now()
WHERE organization_id = $3 AND id = $4 AND version = $5
RETURNING version, updated_at`,
		scheme.Name, scheme.Description, scheme.OrganizationID, scheme.ID, scheme.Version)
	if err := row.Scan(&scheme.Version, &scheme.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return s.conflictOrMissing(ctx, scheme.OrganizationID, scheme.ID)
		}
		return fmt.Errorf("repository: update scheme: %w", wrapWriteErr(err))
	}
	return nil
}

// SetSchemeStatus changes the lifecycle status.
func (s *PostgresRepository) SetSchemeStatus(ctx context.Context, orgID, schemeID int64, status models.SchemeStatus) error {
	tag, err := s.db.Exec(ctx, `
UPDATE state_machine_scheme SET status = $1, version = version + 1, updated_at = now()
WHERE organization_id = $2 AND id = $3`, status, orgID, schemeID)
	return expectOne(tag, err, "set scheme status")
}

// ClaimDeploy atomically checks and sets (version, deploy_status) for a publish.
func (s *PostgresRepository) ClaimDeploy(ctx context.Context, orgID, schemeID, expectedVersion int64) (*models.Scheme, error) {
	scheme, err := scanScheme(s.db.QueryRow(ctx, `
UPDATE state_machine_scheme
SET status = $1, deploy_status = $2, deploy_progress = 0, version = version + 1, updated_at = now()
WHERE organization_id = $3 AND id = $4 AND version = $5 AND deploy_status <> $2
RETURNING `+schemeColumns,
		models.SchemeStatusActive, models.DeployStatusDoing, orgID, schemeID, expectedVersion))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, s.conflictOrMissing(ctx, orgID, schemeID)
		}
		return nil, fmt.Errorf("repository: claim deploy: %w", err)
	}
	return scheme, nil
}

// UpdateDeployProgress records deploy progress.
func (s *PostgresRepository) UpdateDeployProgress(ctx context.Context, orgID, schemeID int64, progress int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE state_machine_scheme
SET deploy_progress = $1,
    deploy_status = CASE WHEN $1 = 100 THEN $2 ELSE deploy_status END,
    updated_at = now()
WHERE organization_id = $3 AND id = $4`, progress, models.DeployStatusDone, orgID, schemeID)
	if err != nil {
		return false, fmt.Errorf("repository: update deploy progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteScheme removes a scheme.
func (s *PostgresRepository) DeleteScheme(ctx context.Context, orgID, schemeID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM state_machine_scheme WHERE organization_id = $1 AND id = $2`, orgID, schemeID)
	return expectOne(tag, err, "delete scheme")
}

func (s *PostgresRepository) conflictOrMissing(ctx context.Context, orgID, schemeID int64) error {
	if _, err := s.GetScheme(ctx, orgID, schemeID); err != nil {
		return err
	}
	return fmt.Errorf("repository: scheme %d: %w", schemeID, ErrConflict)
}
