package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// SchemeService manages schemes and edits to their draft generation.
type SchemeService struct {
	repo      repository.Repository
	directory Directory
	logger    Logger
}

// NewSchemeService creates a new SchemeService.
func NewSchemeService(repo repository.Repository, directory Directory, logger Logger) *SchemeService {
	return &SchemeService{repo: repo, directory: directory, logger: logger}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("scheme name is required: %w", ErrValidation)
	}
	return name, nil
}

// CheckName reports whether name is free within the organization.
func (s *SchemeService) CheckName(ctx context.Context, orgID int64, name string) (bool, error) {
	name, err := validateName(name)
	if err != nil {
		return false, err
	}
	_, err = s.repo.FindSchemeByName(ctx, orgID, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

// CreateScheme creates a scheme in CREATE status whose draft default entry points
// at the organization's default state machine.
func (s *SchemeService) CreateScheme(ctx context.Context, orgID int64, name, description string) (*models.Scheme, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	free, err := s.CheckName(ctx, orgID, name)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, fmt.Errorf("scheme name %q is taken: %w", name, ErrValidation)
	}
	machine, err := s.directory.QueryDefaultStateMachine(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("query default state machine: %w: %v", ErrUpstream, err)
	}

	scheme := &models.Scheme{OrganizationID: orgID, Name: name, Description: description, Status: models.SchemeStatusCreate}
	err = s.repo.InTx(ctx, func(tx repository.Repository) error {
		if err := tx.CreateScheme(ctx, scheme); err != nil {
			return err
		}
		return tx.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: orgID,
			SchemeID:       scheme.ID,
			StateMachineID: machine.ID,
			IsDefault:      true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create scheme: %w", err)
	}
	s.logger.Info("scheme created", "organization_id", orgID, "scheme_id", scheme.ID, "default_state_machine_id", machine.ID)
	return scheme, nil
}

// UpdateScheme changes name and description. scheme.Version must match the stored version.
func (s *SchemeService) UpdateScheme(ctx context.Context, scheme *models.Scheme) (*models.Scheme, error) {
	name, err := validateName(scheme.Name)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindSchemeByName(ctx, scheme.OrganizationID, name)
	if err == nil && existing.ID != scheme.ID {
		return nil, fmt.Errorf("scheme name %q is taken: %w", name, ErrValidation)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	scheme.Name = name
	if err := s.repo.UpdateScheme(ctx, scheme); err != nil {
		return nil, err
	}
	return s.repo.GetScheme(ctx, scheme.OrganizationID, scheme.ID)
}

// DeleteScheme removes a scheme that has never been activated, along with its configuration.
func (s *SchemeService) DeleteScheme(ctx context.Context, orgID, schemeID int64) error {
	return s.repo.InTx(ctx, func(tx repository.Repository) error {
		scheme, err := tx.GetScheme(ctx, orgID, schemeID)
		if err != nil {
			return err
		}
		if scheme.Status != models.SchemeStatusCreate {
			return fmt.Errorf("scheme %d is %s and cannot be deleted: %w", schemeID, scheme.Status, ErrValidation)
		}
		for _, gen := range []models.Generation{models.Draft, models.Live} {
			if _, err := tx.DeleteConfigs(ctx, gen, orgID, schemeID); err != nil {
				return err
			}
		}
		return tx.DeleteScheme(ctx, orgID, schemeID)
	})
}

// ListSchemes lists the organization's schemes.
func (s *SchemeService) ListSchemes(ctx context.Context, orgID int64, filter models.SchemeFilter) ([]*models.Scheme, error) {
	return s.repo.ListSchemes(ctx, orgID, filter)
}

// QuerySchemeWithConfig returns a scheme with one generation's entries grouped by machine.
func (s *SchemeService) QuerySchemeWithConfig(ctx context.Context, gen models.Generation, orgID, schemeID int64) (*models.SchemeView, error) {
	if !gen.Valid() {
		return nil, fmt.Errorf("unknown generation %q: %w", gen, ErrValidation)
	}
	return buildView(ctx, s.repo, gen, orgID, schemeID)
}

// QuerySchemesByStateMachine lists schemes whose draft or live generation uses a machine.
func (s *SchemeService) QuerySchemesByStateMachine(ctx context.Context, orgID, stateMachineID int64) ([]*models.Scheme, error) {
	var ids []int64
	for _, gen := range []models.Generation{models.Live, models.Draft} {
		genIDs, err := s.repo.ListSchemeIDsReferencing(ctx, gen, orgID, stateMachineID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, genIDs...)
	}
	slices.Sort(ids)
	return s.repo.ListSchemesByIDs(ctx, orgID, slices.Compact(ids))
}

// CreateConfig maps issue types onto a machine in the draft generation. Issue types
// already mapped elsewhere move to this machine; the machine's previous mapping is replaced.
func (s *SchemeService) CreateConfig(ctx context.Context, orgID, schemeID, stateMachineID int64, inputs []models.ConfigInput) (*models.SchemeView, error) {
	if stateMachineID <= 0 {
		return nil, fmt.Errorf("state machine id is required: %w", ErrValidation)
	}
	entries := make([]*models.SchemeConfig, 0, len(inputs))
	seen := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		if in.IssueTypeID <= 0 {
			return nil, fmt.Errorf("issue type id must be positive: %w", ErrValidation)
		}
		if seen[in.IssueTypeID] {
			return nil, fmt.Errorf("issue type %d listed twice: %w", in.IssueTypeID, ErrValidation)
		}
		seen[in.IssueTypeID] = true
		entries = append(entries, &models.SchemeConfig{IssueTypeID: in.IssueTypeID, Sequence: in.Sequence})
	}
	return s.editDraft(ctx, orgID, schemeID, func(tx repository.Repository) error {
		return tx.ReplaceForStateMachine(ctx, models.Draft, orgID, schemeID, stateMachineID, entries)
	})
}

// DeleteConfig unmaps every issue type explicitly mapped onto a machine in the draft.
// The default entry is never removed.
func (s *SchemeService) DeleteConfig(ctx context.Context, orgID, schemeID, stateMachineID int64) (*models.SchemeView, error) {
	return s.editDraft(ctx, orgID, schemeID, func(tx repository.Repository) error {
		n, err := tx.DeleteForStateMachine(ctx, models.Draft, orgID, schemeID, stateMachineID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no draft entries for state machine %d: %w", stateMachineID, ErrNotFound)
		}
		return nil
	})
}

// UpdateDefaultConfig repoints the draft default entry at another machine.
func (s *SchemeService) UpdateDefaultConfig(ctx context.Context, orgID, schemeID, stateMachineID int64) (*models.SchemeView, error) {
	if stateMachineID <= 0 {
		return nil, fmt.Errorf("state machine id is required: %w", ErrValidation)
	}
	return s.editDraft(ctx, orgID, schemeID, func(tx repository.Repository) error {
		return tx.UpdateDefaultStateMachine(ctx, models.Draft, orgID, schemeID, stateMachineID)
	})
}

// editDraft applies edit and moves an ACTIVE scheme to DRAFT in the same transaction.
func (s *SchemeService) editDraft(ctx context.Context, orgID, schemeID int64, edit func(tx repository.Repository) error) (*models.SchemeView, error) {
	err := s.repo.InTx(ctx, func(tx repository.Repository) error {
		scheme, err := tx.GetScheme(ctx, orgID, schemeID)
		if err != nil {
			return err
		}
		if err := edit(tx); err != nil {
			return err
		}
		if scheme.Status == models.SchemeStatusActive {
			return tx.SetSchemeStatus(ctx, orgID, schemeID, models.SchemeStatusDraft)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buildView(ctx, s.repo, models.Draft, orgID, schemeID)
}

// buildView groups a generation's entries by machine, default machine first. The
// default entry contributes no issue type; it is flagged as covering unassigned ones.
func buildView(ctx context.Context, repo repository.Repository, gen models.Generation, orgID, schemeID int64) (*models.SchemeView, error) {
	scheme, err := repo.GetScheme(ctx, orgID, schemeID)
	if err != nil {
		return nil, err
	}
	configs, err := repo.ListConfigs(ctx, gen, orgID, schemeID)
	if err != nil {
		return nil, err
	}

	view := &models.SchemeView{Scheme: scheme, Generation: gen, Machines: []*models.StateMachineView{}}
	byMachine := make(map[int64]*models.StateMachineView)
	group := func(machineID int64) *models.StateMachineView {
		mv, ok := byMachine[machineID]
		if !ok {
			mv = &models.StateMachineView{StateMachineID: machineID, IssueTypeIDs: []int64{}}
			byMachine[machineID] = mv
			view.Machines = append(view.Machines, mv)
		}
		return mv
	}
	// ListConfigs yields the default entry first.
	for _, c := range configs {
		mv := group(c.StateMachineID)
		if c.IsDefault {
			mv.IncludesUnassigned = true
			continue
		}
		mv.IssueTypeIDs = append(mv.IssueTypeIDs, c.IssueTypeID)
	}
	return view, nil
}
