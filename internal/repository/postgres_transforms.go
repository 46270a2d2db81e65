package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"workflow-scheme/backend/pkg/models"
)

// CreateNode inserts a node.
func (s *PostgresRepository) CreateNode(ctx context.Context, node *models.Node) error {
	if node.Type == "" {
		node.Type = models.NodeTypeCustom
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO state_machine_node (organization_id, state_machine_id, status_id, type)
VALUES ($1, $2, $3, $4) RETURNING id`, node.OrganizationID, node.StateMachineID, node.StatusID, node.Type)
	if err := row.Scan(&node.ID); err != nil {
		return fmt.Errorf("repository: create node: %w", wrapWriteErr(err))
	}
	return nil
}

func scanNode(row pgx.Row) (*models.Node, error) {
	var n models.Node
	if err := row.Scan(&n.ID, &n.OrganizationID, &n.StateMachineID, &n.StatusID, &n.Type); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNode retrieves a node by id.
func (s *PostgresRepository) GetNode(ctx context.Context, orgID, nodeID int64) (*models.Node, error) {
	n, err := scanNode(s.db.QueryRow(ctx, `
SELECT id, organization_id, state_machine_id, status_id, type FROM state_machine_node
WHERE organization_id = $1 AND id = $2`, orgID, nodeID))
	if err != nil {
		return nil, notFound(err, "get node")
	}
	return n, nil
}

// ListNodes lists a machine's nodes.
func (s *PostgresRepository) ListNodes(ctx context.Context, orgID, stateMachineID int64) ([]*models.Node, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, organization_id, state_machine_id, status_id, type FROM state_machine_node
WHERE organization_id = $1 AND state_machine_id = $2 ORDER BY id`, orgID, stateMachineID)
	if err != nil {
		return nil, fmt.Errorf("repository: list nodes: %w", err)
	}
	defer rows.Close()
	var nodes []*models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

const transformColumns = `id, organization_id, state_machine_id, name, start_node_id, end_node_id, type, condition_strategy`

func scanTransform(row pgx.Row) (*models.Transform, error) {
	var t models.Transform
	if err := row.Scan(&t.ID, &t.OrganizationID, &t.StateMachineID, &t.Name, &t.StartNodeID, &t.EndNodeID, &t.Type, &t.ConditionStrategy); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransform inserts a transform.
func (s *PostgresRepository) CreateTransform(ctx context.Context, t *models.Transform) error {
	if t.Type == "" {
		t.Type = models.TransformTypeCustom
	}
	if t.ConditionStrategy == "" {
		t.ConditionStrategy = models.ConditionStrategyAll
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO state_machine_transform (organization_id, state_machine_id, name, start_node_id, end_node_id, type, condition_strategy)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		t.OrganizationID, t.StateMachineID, t.Name, t.StartNodeID, t.EndNodeID, t.Type, t.ConditionStrategy)
	if err := row.Scan(&t.ID); err != nil {
		return fmt.Errorf("repository: create transform: %w", wrapWriteErr(err))
	}
	return nil
}

// GetTransform retrieves a transform by id.
func (s *PostgresRepository) GetTransform(ctx context.Context, orgID, transformID int64) (*models.Transform, error) {
	t, err := scanTransform(s.db.QueryRow(ctx, `
SELECT `+transformColumns+` FROM state_machine_transform WHERE organization_id = $1 AND id = $2`, orgID, transformID))
	if err != nil {
		return nil, notFound(err, "get transform")
	}
	return t, nil
}

// ListTransforms lists a machine's transforms.
func (s *PostgresRepository) ListTransforms(ctx context.Context, orgID, stateMachineID int64) ([]*models.Transform, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+transformColumns+` FROM state_machine_transform
WHERE organization_id = $1 AND state_machine_id = $2 ORDER BY id`, orgID, stateMachineID)
	if err != nil {
		return nil, fmt.Errorf("repository: list transforms: %w", err)
	}
	defer rows.Close()
	var transforms []*models.Transform
	for rows.Next() {
		t, err := scanTransform(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scan transform: %w", err)
		}
		transforms = append(transforms, t)
	}
	return transforms, rows.Err()
}

// CreateTransformConfig attaches a config code to a transform.
func (s *PostgresRepository) CreateTransformConfig(ctx context.Context, cfg *models.TransformConfig) error {
	var params []byte
	if len(cfg.Parameters) > 0 {
		params = cfg.Parameters
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO state_machine_config (organization_id, transform_id, code, kind, parameters, sequence)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		cfg.OrganizationID, cfg.TransformID, cfg.Code, cfg.Kind, params, cfg.Sequence)
	if err := row.Scan(&cfg.ID); err != nil {
		return fmt.Errorf("repository: create transform config: %w", wrapWriteErr(err))
	}
	return nil
}

// ListTransformConfigs lists configs attached to the given transforms.
func (s *PostgresRepository) ListTransformConfigs(ctx context.Context, orgID int64, transformIDs []int64, kind models.ConfigKind) ([]*models.TransformConfig, error) {
	if len(transformIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT id, organization_id, transform_id, code, kind, parameters, sequence FROM state_machine_config
WHERE organization_id = $1 AND transform_id = ANY($2) AND ($3::text = '' OR kind = $3::text)
ORDER BY transform_id, sequence, id`, orgID, transformIDs, string(kind))
	if err != nil {
		return nil, fmt.Errorf("repository: list transform configs: %w", err)
	}
	defer rows.Close()
	var configs []*models.TransformConfig
	for rows.Next() {
		var c models.TransformConfig
		var params []byte
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.TransformID, &c.Code, &c.Kind, &params, &c.Sequence); err != nil {
			return nil, fmt.Errorf("repository: scan transform config: %w", err)
		}
		c.Parameters = params
		configs = append(configs, &c)
	}
	return configs, rows.Err()
}

// ListConfigCodes lists registered config codes.
func (s *PostgresRepository) ListConfigCodes(ctx context.Context, kind models.ConfigKind) ([]*models.ConfigCode, error) {
	rows, err := s.db.Query(ctx, `
SELECT code, service, kind, name, description FROM config_code
WHERE ($1::text = '' OR kind = $1::text) ORDER BY code`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("repository: list config codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ConfigCode, error) {
		var c models.ConfigCode
		err := row.Scan(&c.Code, &c.Service, &c.Kind, &c.Name, &c.Description)
		return &c, err
	})
	if err != nil {
		return nil, fmt.Errorf("repository: list config codes: %w", err)
	}
	return codes, nil
}

// ReplaceConfigCodes replaces a service's registered codes.
func (s *PostgresRepository) ReplaceConfigCodes(ctx context.Context, service string, codes []*models.ConfigCode) error {
	return s.InTx(ctx, func(tx Repository) error {
		pg := tx.(*PostgresRepository)
		if _, err := pg.db.Exec(ctx, `DELETE FROM config_code WHERE service = $1`, service); err != nil {
			return fmt.Errorf("repository: replace config codes: %w", err)
		}
		for _, c := range codes {
			tag, err := pg.db.Exec(ctx, `
INSERT INTO config_code (code, service, kind, name, description) VALUES ($1, $2, $3, $4, $5)`,
				c.Code, service, c.Kind, c.Name, c.Description)
			if err := expectOne(tag, err, "insert config code"); err != nil {
				return err
			}
		}
		return nil
	})
}
