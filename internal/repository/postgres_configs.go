package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"workflow-scheme/backend/pkg/models"
)

const configColumns = `id, organization_id, scheme_id, state_machine_id, COALESCE(issue_type_id, 0), is_default, sequence`

func scanConfig(row pgx.Row) (*models.SchemeConfig, error) {
	var c models.SchemeConfig
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.SchemeID, &c.StateMachineID, &c.IssueTypeID, &c.IsDefault, &c.Sequence); err != nil {
		return nil, err
	}
	return &c, nil
}

// nullableIssueType stores the default entry's issue type as NULL.
func nullableIssueType(cfg *models.SchemeConfig) *int64 {
	if cfg.IsDefault {
		return nil
	}
	id := cfg.IssueTypeID
	return &id
}

// GetConfig returns the entry for an issue type or the default entry.
func (s *PostgresRepository) GetConfig(ctx context.Context, gen models.Generation, orgID, schemeID, issueTypeID int64) (*models.SchemeConfig, error) {
	table, err := configTable(gen)
	if err != nil {
		return nil, err
	}
	cfg, err := scanConfig(s.db.QueryRow(ctx, `
SELECT `+configColumns+` FROM `+table+`
WHERE organization_id = $1 AND scheme_id = $2 AND (issue_type_id = $3 OR is_default)
ORDER BY is_default ASC LIMIT 1`, orgID, schemeID, issueTypeID))
	if err != nil {
		return nil, notFound(err, "get config")
	}
	return cfg, nil
}

// GetDefaultConfig returns the default entry.
func (s *PostgresRepository) GetDefaultConfig(ctx context.Context, gen models.Generation, orgID, schemeID int64) (*models.SchemeConfig, error) {
	table, err := configTable(gen)
	if err != nil {
		return nil, err
	}
	cfg, err := scanConfig(s.db.QueryRow(ctx, `
SELECT `+configColumns+` FROM `+table+`
WHERE organization_id = $1 AND scheme_id = $2 AND is_default`, orgID, schemeID))
	if err != nil {
		return nil, notFound(err, "get default config")
	}
	return cfg, nil
}

// ListConfigs returns a scheme's entries, default entry first.
func (s *PostgresRepository) ListConfigs(ctx context.Context, gen models.Generation, orgID, schemeID int64) ([]*models.SchemeConfig, error) {
	table, err := configTable(gen)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
SELECT `+configColumns+` FROM `+table+`
WHERE organization_id = $1 AND scheme_id = $2
ORDER BY is_default DESC, sequence, id`, orgID, schemeID)
	if err != nil {
		return nil, fmt.Errorf("repository: list configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.SchemeConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scan config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// InsertConfig inserts one entry.
func (s *PostgresRepository) InsertConfig(ctx context.Context, gen models.Generation, cfg *models.SchemeConfig) error {
	table, err := configTable(gen)
	if err != nil {
		return err
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO `+table+` (organization_id, scheme_id, state_machine_id, issue_type_id, is_default, sequence)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		cfg.OrganizationID, cfg.SchemeID, cfg.StateMachineID, nullableIssueType(cfg), cfg.IsDefault, cfg.Sequence)
	if err := row.Scan(&cfg.ID); err != nil {
		return fmt.Errorf("repository: insert config: %w", wrapWriteErr(err))
	}
	return nil
}

// ReplaceForStateMachine swaps the non-default entries of one machine for entries.
func (s *PostgresRepository) ReplaceForStateMachine(ctx context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64, entries []*models.SchemeConfig) error {
	table, err := configTable(gen)
	if err != nil {
		return err
	}
	issueTypes := make([]int64, 0, len(entries))
	for _, e := range entries {
		issueTypes = append(issueTypes, e.IssueTypeID)
	}
	return s.InTx(ctx, func(tx Repository) error {
		pg := tx.(*PostgresRepository)
		if _, err := pg.db.Exec(ctx, `
DELETE FROM `+table+`
WHERE organization_id = $1 AND scheme_id = $2 AND NOT is_default
  AND (state_machine_id = $3 OR issue_type_id = ANY($4))`, orgID, schemeID, stateMachineID, issueTypes); err != nil {
			return fmt.Errorf("repository: replace configs: %w", err)
		}
		for _, e := range entries {
			e.OrganizationID, e.SchemeID, e.StateMachineID, e.IsDefault = orgID, schemeID, stateMachineID, false
			if err := pg.InsertConfig(ctx, gen, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteForStateMachine removes a machine's non-default entries.
func (s *PostgresRepository) DeleteForStateMachine(ctx context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64) (int64, error) {
	table, err := configTable(gen)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `
DELETE FROM `+table+`
WHERE organization_id = $1 AND scheme_id = $2 AND state_machine_id = $3 AND NOT is_default`, orgID, schemeID, stateMachineID)
	if err != nil {
		return 0, fmt.Errorf("repository: delete configs for state machine: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateDefaultStateMachine repoints the default entry.
func (s *PostgresRepository) UpdateDefaultStateMachine(ctx context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64) error {
	table, err := configTable(gen)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE `+table+` SET state_machine_id = $1
WHERE organization_id = $2 AND scheme_id = $3 AND is_default`, stateMachineID, orgID, schemeID)
	return expectOne(tag, err, "update default config")
}

// DeleteConfigs removes every entry of a scheme.
func (s *PostgresRepository) DeleteConfigs(ctx context.Context, gen models.Generation, orgID, schemeID int64) (int64, error) {
	table, err := configTable(gen)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM `+table+` WHERE organization_id = $1 AND scheme_id = $2`, orgID, schemeID)
	if err != nil {
		return 0, fmt.Errorf("repository: delete configs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListSchemeIDsReferencing lists schemes with an entry pointing at a machine.
func (s *PostgresRepository) ListSchemeIDsReferencing(ctx context.Context, gen models.Generation, orgID, stateMachineID int64) ([]int64, error) {
	table, err := configTable(gen)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT scheme_id FROM `+table+`
WHERE organization_id = $1 AND state_machine_id = $2 ORDER BY scheme_id`, orgID, stateMachineID)
	if err != nil {
		return nil, fmt.Errorf("repository: list referencing schemes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("repository: list referencing schemes: %w", err)
	}
	return ids, nil
}
