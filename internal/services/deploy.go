package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// DeployCoordinator publishes a scheme's draft generation as its live generation.
type DeployCoordinator struct {
	repo       repository.Repository
	directory  Directory
	impact     ImpactChecker
	notifier   Notifier
	logger     Logger
	metrics    *metrics
	newBackOff func() backoff.BackOff
}

// DeployOption customizes a DeployCoordinator.
type DeployOption func(*DeployCoordinator)

// WithBackOff sets the retry policy for best-effort machine (de)activation.
func WithBackOff(newBackOff func() backoff.BackOff) DeployOption {
	return func(d *DeployCoordinator) { d.newBackOff = newBackOff }
}

// NewDeployCoordinator creates a new DeployCoordinator.
func NewDeployCoordinator(repo repository.Repository, directory Directory, impact ImpactChecker, notifier Notifier, logger Logger, opts ...DeployOption) *DeployCoordinator {
	d := &DeployCoordinator{
		repo:      repo,
		directory: directory,
		impact:    impact,
		notifier:  notifier,
		logger:    logger,
		metrics:   newMetrics(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckDeploy previews the issue types a publish would force to migrate, with
// their affected issue counts. It never writes.
func (d *DeployCoordinator) CheckDeploy(ctx context.Context, orgID, schemeID int64) ([]*models.SchemeChangeItem, error) {
	if _, err := d.repo.GetScheme(ctx, orgID, schemeID); err != nil {
		return nil, err
	}
	items, err := NewDiffEngine(d.repo, d.directory).ComputeChangeItems(ctx, orgID, schemeID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	query := &models.ImpactQuery{SchemeID: schemeID, IssueTypeIDs: make([]int64, 0, len(items))}
	for _, item := range items {
		query.IssueTypeIDs = append(query.IssueTypeIDs, item.IssueTypeID)
	}
	counts, err := d.impact.CheckSchemeChangeImpact(ctx, orgID, query)
	if err != nil {
		return nil, fmt.Errorf("check scheme change impact: %w: %v", ErrUpstream, err)
	}
	for _, item := range items {
		item.IssueCount = counts[item.IssueTypeID]
	}
	return items, nil
}

// Deploy copies the draft generation over the live one. The claim on the scheme,
// the diff and the copy share one transaction; notification and machine
// (de)activation happen after commit and never fail the call.
func (d *DeployCoordinator) Deploy(ctx context.Context, orgID, schemeID int64, changeItems []*models.SchemeChangeItem, expectedVersion int64) (bool, error) {
	var diff *models.DeployDiff
	err := d.repo.InTx(ctx, func(tx repository.Repository) error {
		if _, err := tx.ClaimDeploy(ctx, orgID, schemeID, expectedVersion); err != nil {
			return err
		}
		var err error
		if diff, err = NewDiffEngine(tx, d.directory).ComputeChangedStatuses(ctx, orgID, schemeID); err != nil {
			return err
		}
		return copyGeneration(ctx, tx, orgID, schemeID, models.Draft, models.Live, true)
	})
	d.metrics.deploy(ctx, err == nil)
	if err != nil {
		return false, fmt.Errorf("deploy scheme %d: %w", schemeID, err)
	}
	d.logger.Info("scheme deployed", "organization_id", orgID, "scheme_id", schemeID,
		"added_statuses", diff.AddedStatusIDs, "removed_statuses", diff.RemovedStatusIDs)

	notification := &models.ChangeNotification{
		EventID:          uuid.NewString(),
		OrganizationID:   orgID,
		SchemeID:         schemeID,
		AddedStatusIDs:   diff.AddedStatusIDs,
		RemovedStatusIDs: diff.RemovedStatusIDs,
		ChangeItems:      changeItems,
	}
	if err := d.notifier.NotifySchemeDeployed(ctx, notification); err != nil {
		d.logger.Error("failed to hand off deploy notification", "organization_id", orgID, "scheme_id", schemeID, "error", err)
	}
	if len(diff.AddedMachineIDs) > 0 {
		d.bestEffort(ctx, "activate state machines", orgID, schemeID, func() error {
			return d.directory.ActivateMachines(ctx, orgID, diff.AddedMachineIDs)
		})
	}
	if len(diff.RemovedMachineIDs) > 0 {
		d.bestEffort(ctx, "deactivate state machines", orgID, schemeID, func() error {
			return d.directory.DeactivateMachines(ctx, orgID, diff.RemovedMachineIDs)
		})
	}
	return true, nil
}

func (d *DeployCoordinator) bestEffort(ctx context.Context, what string, orgID, schemeID int64, op func() error) {
	if err := backoff.Retry(op, backoff.WithContext(d.newBackOff(), ctx)); err != nil {
		d.logger.Error("failed to "+what, "organization_id", orgID, "scheme_id", schemeID, "error", err)
	}
}

// DeleteDraft discards unpublished edits by copying the live generation back over
// the draft, and returns the resulting configuration.
func (d *DeployCoordinator) DeleteDraft(ctx context.Context, orgID, schemeID int64) (*models.SchemeView, error) {
	err := d.repo.InTx(ctx, func(tx repository.Repository) error {
		scheme, err := tx.GetScheme(ctx, orgID, schemeID)
		if err != nil {
			return err
		}
		if scheme.Status == models.SchemeStatusCreate {
			return fmt.Errorf("scheme %d has never been published: %w", schemeID, ErrValidation)
		}
		if err := copyGeneration(ctx, tx, orgID, schemeID, models.Live, models.Draft, true); err != nil {
			return err
		}
		return tx.SetSchemeStatus(ctx, orgID, schemeID, models.SchemeStatusActive)
	})
	if err != nil {
		return nil, fmt.Errorf("delete draft of scheme %d: %w", schemeID, err)
	}
	return buildView(ctx, d.repo, models.Live, orgID, schemeID)
}

// UpdateDeployProgress records progress reported by the downstream deploy
// workflow; 100 completes the deploy.
func (d *DeployCoordinator) UpdateDeployProgress(ctx context.Context, orgID, schemeID int64, progress int) (bool, error) {
	if progress < 0 || progress > 100 {
		return false, fmt.Errorf("deploy progress %d out of range: %w", progress, ErrValidation)
	}
	ok, err := d.repo.UpdateDeployProgress(ctx, orgID, schemeID, progress)
	if err != nil {
		return false, err
	}
	if ok && progress == 100 {
		d.logger.Info("scheme deploy completed", "organization_id", orgID, "scheme_id", schemeID)
	}
	return ok, nil
}

// ActivateForProject handles a scheme's first association with a consuming
// project: a CREATE scheme becomes ACTIVE with its draft copied to live, and the
// machines it uses are activated. Schemes that are already active are returned as-is.
func (d *DeployCoordinator) ActivateForProject(ctx context.Context, orgID, schemeID int64) (*models.Scheme, error) {
	activated := false
	err := d.repo.InTx(ctx, func(tx repository.Repository) error {
		scheme, err := tx.GetScheme(ctx, orgID, schemeID)
		if err != nil {
			return err
		}
		if scheme.Status != models.SchemeStatusCreate {
			return nil
		}
		if err := copyGeneration(ctx, tx, orgID, schemeID, models.Draft, models.Live, false); err != nil {
			return err
		}
		activated = true
		return tx.SetSchemeStatus(ctx, orgID, schemeID, models.SchemeStatusActive)
	})
	if err != nil {
		return nil, fmt.Errorf("activate scheme %d: %w", schemeID, err)
	}

	if activated {
		live, err := d.repo.ListConfigs(ctx, models.Live, orgID, schemeID)
		if err != nil {
			return nil, err
		}
		if ids := machineIDs(live); len(ids) > 0 {
			d.bestEffort(ctx, "activate state machines", orgID, schemeID, func() error {
				return d.directory.ActivateMachines(ctx, orgID, ids)
			})
		}
	}
	return d.repo.GetScheme(ctx, orgID, schemeID)
}

// copyGeneration copies every entry of from into to, optionally clearing to first.
// Each entry gets a new id in the target generation.
func copyGeneration(ctx context.Context, tx repository.Repository, orgID, schemeID int64, from, to models.Generation, clearTarget bool) error {
	if clearTarget {
		if _, err := tx.DeleteConfigs(ctx, to, orgID, schemeID); err != nil {
			return err
		}
	}
	entries, err := tx.ListConfigs(ctx, from, orgID, schemeID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		c := *e
		c.ID = 0
		if err := tx.InsertConfig(ctx, to, &c); err != nil {
			return err
		}
	}
	return nil
}
