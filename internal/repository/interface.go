package repository

import (
	"context"

	"workflow-scheme/backend/pkg/models"
)

// SchemeStore persists schemes together with their lifecycle and deploy fields.
type SchemeStore interface {
	// CreateScheme inserts a scheme and fills in its id and version.
	CreateScheme(ctx context.Context, scheme *models.Scheme) error
	// GetScheme retrieves a scheme by id within an organization.
	GetScheme(ctx context.Context, orgID, schemeID int64) (*models.Scheme, error)
	// FindSchemeByName returns the scheme with the given name, or ErrNotFound.
	FindSchemeByName(ctx context.Context, orgID int64, name string) (*models.Scheme, error)
	// ListSchemes lists an organization's schemes ordered by id descending.
	ListSchemes(ctx context.Context, orgID int64, filter models.SchemeFilter) ([]*models.Scheme, error)
	// ListSchemesByIDs loads the given schemes, skipping unknown ids.
	ListSchemesByIDs(ctx context.Context, orgID int64, ids []int64) ([]*models.Scheme, error)
	// UpdateScheme writes name and description if scheme.Version still matches,
	// and advances scheme.Version. A stale version yields ErrConflict.
	UpdateScheme(ctx context.Context, scheme *models.Scheme) error
	// SetSchemeStatus changes the lifecycle status and advances the version.
	SetSchemeStatus(ctx context.Context, orgID, schemeID int64, status models.SchemeStatus) error
	// ClaimDeploy is a single compare-and-swap over (version, deploy status): it succeeds only
	// when the stored version equals expectedVersion and no deploy is in flight, and then sets the
	// scheme active, marks the deploy as doing, resets progress and advances the version.
	ClaimDeploy(ctx context.Context, orgID, schemeID, expectedVersion int64) (*models.Scheme, error)
	// UpdateDeployProgress records progress; reaching 100 marks the deploy done.
	// It reports whether a row was updated.
	UpdateDeployProgress(ctx context.Context, orgID, schemeID int64, progress int) (bool, error)
	// DeleteScheme removes the scheme row.
	DeleteScheme(ctx context.Context, orgID, schemeID int64) error
}

// ConfigStore gives typed access to the draft and live configuration generations.
type ConfigStore interface {
	// GetConfig returns the entry for an issue type, falling back to the default entry.
	GetConfig(ctx context.Context, gen models.Generation, orgID, schemeID, issueTypeID int64) (*models.SchemeConfig, error)
	// GetDefaultConfig returns the generation's default entry.
	GetDefaultConfig(ctx context.Context, gen models.Generation, orgID, schemeID int64) (*models.SchemeConfig, error)
	// ListConfigs returns every entry of a scheme, default entry first.
	ListConfigs(ctx context.Context, gen models.Generation, orgID, schemeID int64) ([]*models.SchemeConfig, error)
	// InsertConfig inserts one entry; anything other than exactly one affected row is ErrPersistence.
	InsertConfig(ctx context.Context, gen models.Generation, cfg *models.SchemeConfig) error
	// ReplaceForStateMachine deletes the non-default entries pointing at stateMachineID and any
	// non-default entry sharing an issue type with entries, then inserts entries.
	ReplaceForStateMachine(ctx context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64, entries []*models.SchemeConfig) error
	// DeleteForStateMachine removes the non-default entries pointing at a machine.
	DeleteForStateMachine(ctx context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64) (int64, error)
	// UpdateDefaultStateMachine repoints the default entry.
	UpdateDefaultStateMachine(ctx context.Context, gen models.Generation, orgID, schemeID, stateMachineID int64) error
	// DeleteConfigs removes every entry of a scheme in a generation.
	DeleteConfigs(ctx context.Context, gen models.Generation, orgID, schemeID int64) (int64, error)
	// ListSchemeIDsReferencing lists the distinct schemes with an entry pointing at a machine.
	ListSchemeIDsReferencing(ctx context.Context, gen models.Generation, orgID, stateMachineID int64) ([]int64, error)
}

// TransformStore holds deployed nodes, transforms, their configs and the config-code registry.
type TransformStore interface {
	CreateNode(ctx context.Context, node *models.Node) error
	GetNode(ctx context.Context, orgID, nodeID int64) (*models.Node, error)
	ListNodes(ctx context.Context, orgID, stateMachineID int64) ([]*models.Node, error)

	CreateTransform(ctx context.Context, transform *models.Transform) error
	GetTransform(ctx context.Context, orgID, transformID int64) (*models.Transform, error)
	ListTransforms(ctx context.Context, orgID, stateMachineID int64) ([]*models.Transform, error)

	CreateTransformConfig(ctx context.Context, cfg *models.TransformConfig) error
	// ListTransformConfigs returns configs of the given transforms ordered by transform,
	// sequence and id. An empty kind matches every kind.
	ListTransformConfigs(ctx context.Context, orgID int64, transformIDs []int64, kind models.ConfigKind) ([]*models.TransformConfig, error)

	// ListConfigCodes lists registered codes; an empty kind matches every kind.
	ListConfigCodes(ctx context.Context, kind models.ConfigKind) ([]*models.ConfigCode, error)
	// ReplaceConfigCodes swaps every code registered by service for codes.
	ReplaceConfigCodes(ctx context.Context, service string, codes []*models.ConfigCode) error
}

// ProjectConfigStore records which scheme each project consumes per apply type.
type ProjectConfigStore interface {
	// CreateProjectConfig inserts a binding; a second binding for the same project and
	// apply type is ErrPersistence.
	CreateProjectConfig(ctx context.Context, pc *models.ProjectConfig) error
	// GetProjectConfig returns the project's binding for an apply type, or ErrNotFound.
	GetProjectConfig(ctx context.Context, orgID, projectID int64, applyType models.ApplyType) (*models.ProjectConfig, error)
	// ListProjectConfigs returns every binding of a project ordered by apply type.
	ListProjectConfigs(ctx context.Context, orgID, projectID int64) ([]*models.ProjectConfig, error)
	// ListProjectConfigsBySchemes returns the bindings onto any of schemeIDs ordered by project.
	ListProjectConfigsBySchemes(ctx context.Context, orgID int64, schemeIDs []int64) ([]*models.ProjectConfig, error)
}

// Repository aggregates the stores behind one transactional boundary.
type Repository interface {
	SchemeStore
	ConfigStore
	TransformStore
	ProjectConfigStore

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
	// InTx runs fn against a repository bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Repository) error) error
}
