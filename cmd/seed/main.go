package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"workflow-scheme/backend/internal/config"
	"workflow-scheme/backend/internal/logging"
	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// machine describes a deployed state machine: statuses in order (the first is
// the init node) and the transforms between them.
type machine struct {
	id         int64
	statuses   []int64
	transforms []transform
}

type transform struct {
	name     string
	from, to int // indexes into statuses; -1 means "from anywhere"
	configs  []models.TransformConfig
}

var demoMachines = []machine{
	{
		id:       1,
		statuses: []int64{101, 102, 103},
		transforms: []transform{
			{name: "Start", from: 0, to: 1, configs: []models.TransformConfig{
				{Code: "only_assignee", Kind: models.ConfigKindCondition},
			}},
			{name: "Finish", from: 1, to: 2, configs: []models.TransformConfig{
				{Code: "required_field", Kind: models.ConfigKindValidator, Parameters: []byte(`{"field":"resolution"}`)},
				{Code: "notify_reporter", Kind: models.ConfigKindAction},
			}},
			{name: "Reopen", from: -1, to: 0},
		},
	},
	{
		id:       2,
		statuses: []int64{101, 201, 103},
		transforms: []transform{
			{name: "Review", from: 0, to: 1},
			{name: "Approve", from: 1, to: 2, configs: []models.TransformConfig{
				{Code: "only_reporter", Kind: models.ConfigKindCondition},
			}},
		},
	},
}

var demoCodes = []*models.ConfigCode{
	{Code: "only_assignee", Kind: models.ConfigKindCondition, Name: "Only the assignee"},
	{Code: "only_reporter", Kind: models.ConfigKindCondition, Name: "Only the reporter"},
	{Code: "required_field", Kind: models.ConfigKindValidator, Name: "Required field"},
	{Code: "notify_reporter", Kind: models.ConfigKindAction, Name: "Notify the reporter"},
	{Code: "webhook", Kind: models.ConfigKindTrigger, Name: "Call a webhook"},
}

func main() {
	var (
		configPath string
		orgID      int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, orgID)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().Int64Var(&orgID, "org", 1, "organization to seed")
	if err := cmd.Execute(); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}

func run(ctx context.Context, configPath string, orgID int64) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}
	repo := repository.NewPostgresRepository(pool)

	if err := repo.ReplaceConfigCodes(ctx, "agile", demoCodes); err != nil {
		return fmt.Errorf("failed to register config codes: %w", err)
	}
	logger.Info("Registered config codes", "service", "agile", "count", len(demoCodes))

	for _, m := range demoMachines {
		existing, err := repo.ListNodes(ctx, orgID, m.id)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			logger.Info("Skipping existing state machine", "state_machine_id", m.id)
			continue
		}
		if err := repo.InTx(ctx, func(tx repository.Repository) error { return seedMachine(ctx, tx, orgID, m) }); err != nil {
			return fmt.Errorf("failed to seed state machine %d: %w", m.id, err)
		}
		logger.Info("Seeded state machine", "state_machine_id", m.id, "transforms", len(m.transforms))
	}

	const name = "Default scheme"
	if _, err := repo.FindSchemeByName(ctx, orgID, name); err == nil {
		logger.Info("Skipping existing scheme", "name", name)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	} else {
		scheme := &models.Scheme{OrganizationID: orgID, Name: name, Description: "Seeded demo scheme"}
		err := repo.InTx(ctx, func(tx repository.Repository) error {
			if err := tx.CreateScheme(ctx, scheme); err != nil {
				return err
			}
			return tx.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
				OrganizationID: orgID, SchemeID: scheme.ID, StateMachineID: demoMachines[0].id, IsDefault: true,
			})
		})
		if err != nil {
			return fmt.Errorf("failed to create scheme: %w", err)
		}
		logger.Info("Seeded scheme", "name", name, "id", scheme.ID)
	}

	logger.Info("Seeding complete!")
	return nil
}

func seedMachine(ctx context.Context, tx repository.Repository, orgID int64, m machine) error {
	nodes := make([]*models.Node, len(m.statuses))
	for i, statusID := range m.statuses {
		n := &models.Node{OrganizationID: orgID, StateMachineID: m.id, StatusID: statusID, Type: models.NodeTypeCustom}
		if i == 0 {
			n.Type = models.NodeTypeInit
		}
		if err := tx.CreateNode(ctx, n); err != nil {
			return err
		}
		nodes[i] = n
	}

	initT := &models.Transform{OrganizationID: orgID, StateMachineID: m.id, Name: "Create", EndNodeID: nodes[0].ID, Type: models.TransformTypeInit}
	if err := tx.CreateTransform(ctx, initT); err != nil {
		return err
	}
	for _, tr := range m.transforms {
		t := &models.Transform{OrganizationID: orgID, StateMachineID: m.id, Name: tr.name, EndNodeID: nodes[tr.to].ID}
		if tr.from < 0 {
			t.Type = models.TransformTypeAll
		} else {
			t.StartNodeID = nodes[tr.from].ID
		}
		if err := tx.CreateTransform(ctx, t); err != nil {
			return err
		}
		for i, c := range tr.configs {
			c.OrganizationID, c.TransformID, c.Sequence = orgID, t.ID, i
			if err := tx.CreateTransformConfig(ctx, &c); err != nil {
				return err
			}
		}
	}
	return nil
}
