package services

import (
	"context"

	"workflow-scheme/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Directory is the state-machine service that owns machines and their statuses.
type Directory interface {
	// QueryAllWithStatus returns every machine of the organization with its ordered statuses.
	QueryAllWithStatus(ctx context.Context, orgID int64) ([]*models.StateMachineWithStatus, error)
	// QueryDefaultStateMachine returns the machine new schemes start on.
	QueryDefaultStateMachine(ctx context.Context, orgID int64) (*models.StateMachine, error)
	ActivateMachines(ctx context.Context, orgID int64, machineIDs []int64) error
	DeactivateMachines(ctx context.Context, orgID int64, machineIDs []int64) error
	QueryInitStatus(ctx context.Context, orgID, machineID int64) (int64, error)
}

// ImpactChecker counts issues affected by a scheme change.
type ImpactChecker interface {
	// CheckSchemeChangeImpact returns issue counts keyed by issue type.
	CheckSchemeChangeImpact(ctx context.Context, orgID int64, query *models.ImpactQuery) (map[int64]int64, error)
}

// Evaluator dispatches config batches to the service that registered their codes.
type Evaluator interface {
	ExecuteCondition(ctx context.Context, serviceCode string, strategy models.ConditionStrategy, in *models.Input) (*models.ExecuteResult, error)
	ExecuteValidator(ctx context.Context, serviceCode string, in *models.Input) (*models.ExecuteResult, error)
	ExecuteAction(ctx context.Context, serviceCode string, targetStatusID int64, transformType models.TransformType, in *models.Input) (*models.ExecuteResult, error)
	// FilterTransforms returns the subset of candidates whose conditions currently hold.
	FilterTransforms(ctx context.Context, serviceCode string, instanceID int64, candidates []*models.TransformInfo) ([]*models.TransformInfo, error)
}

// Notifier hands a publish's change notification to downstream services.
// Implementations must not block on delivery.
type Notifier interface {
	NotifySchemeDeployed(ctx context.Context, n *models.ChangeNotification) error
}
