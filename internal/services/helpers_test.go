package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/internal/logging"
	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

const org int64 = 7

var errBoom = errors.New("boom")

func machine(id int64, statuses ...int64) *models.StateMachineWithStatus {
	m := &models.StateMachineWithStatus{ID: id}
	for _, s := range statuses {
		m.Statuses = append(m.Statuses, &models.Status{ID: s})
	}
	return m
}

type fakeDirectory struct {
	mu          sync.Mutex
	machines    []*models.StateMachineWithStatus
	defaultID   int64
	initStatus  map[int64]int64
	queryErr    error
	activateErr error
	activated   [][]int64
	deactivated [][]int64
	activations int
}

func (f *fakeDirectory) QueryAllWithStatus(context.Context, int64) ([]*models.StateMachineWithStatus, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.machines, nil
}

func (f *fakeDirectory) QueryDefaultStateMachine(context.Context, int64) (*models.StateMachine, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &models.StateMachine{ID: f.defaultID, Name: "default"}, nil
}

func (f *fakeDirectory) ActivateMachines(_ context.Context, _ int64, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations++
	if f.activateErr != nil {
		return f.activateErr
	}
	f.activated = append(f.activated, ids)
	return nil
}

func (f *fakeDirectory) DeactivateMachines(_ context.Context, _ int64, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, ids)
	return nil
}

func (f *fakeDirectory) QueryInitStatus(_ context.Context, _ int64, machineID int64) (int64, error) {
	id, ok := f.initStatus[machineID]
	if !ok {
		return 0, errBoom
	}
	return id, nil
}

type fakeImpact struct {
	counts  map[int64]int64
	err     error
	queries []*models.ImpactQuery
}

func (f *fakeImpact) CheckSchemeChangeImpact(_ context.Context, _ int64, q *models.ImpactQuery) (map[int64]int64, error) {
	f.queries = append(f.queries, q)
	return f.counts, f.err
}

type fakeNotifier struct {
	err  error
	sent []*models.ChangeNotification
}

func (f *fakeNotifier) NotifySchemeDeployed(_ context.Context, n *models.ChangeNotification) error {
	f.sent = append(f.sent, n)
	return f.err
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) ExecuteCondition(ctx context.Context, serviceCode string, strategy models.ConditionStrategy, in *models.Input) (*models.ExecuteResult, error) {
	args := m.Called(ctx, serviceCode, strategy, in)
	res, _ := args.Get(0).(*models.ExecuteResult)
	return res, args.Error(1)
}

func (m *mockEvaluator) ExecuteValidator(ctx context.Context, serviceCode string, in *models.Input) (*models.ExecuteResult, error) {
	args := m.Called(ctx, serviceCode, in)
	res, _ := args.Get(0).(*models.ExecuteResult)
	return res, args.Error(1)
}

func (m *mockEvaluator) ExecuteAction(ctx context.Context, serviceCode string, targetStatusID int64, transformType models.TransformType, in *models.Input) (*models.ExecuteResult, error) {
	args := m.Called(ctx, serviceCode, targetStatusID, transformType, in)
	res, _ := args.Get(0).(*models.ExecuteResult)
	return res, args.Error(1)
}

func (m *mockEvaluator) FilterTransforms(ctx context.Context, serviceCode string, instanceID int64, candidates []*models.TransformInfo) ([]*models.TransformInfo, error) {
	args := m.Called(ctx, serviceCode, instanceID, candidates)
	res, _ := args.Get(0).([]*models.TransformInfo)
	return res, args.Error(1)
}

type fixture struct {
	repo     *repository.MemoryRepository
	dir      *fakeDirectory
	impact   *fakeImpact
	notifier *fakeNotifier
	schemes  *SchemeService
	deploys  *DeployCoordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: repository.NewMemoryRepository(),
		dir: &fakeDirectory{
			defaultID: 1,
			machines: []*models.StateMachineWithStatus{
				machine(1, 1, 2, 3),
				machine(2, 2, 3, 4),
				machine(3, 1, 2, 3, 5),
			},
		},
		impact:   &fakeImpact{counts: map[int64]int64{}},
		notifier: &fakeNotifier{},
	}
	logger := logging.NoOpLogger{}
	f.schemes = NewSchemeService(f.repo, f.dir, logger)
	f.deploys = NewDeployCoordinator(f.repo, f.dir, f.impact, f.notifier, logger,
		WithBackOff(func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1) }))
	return f
}

// seedScheme creates a scheme and writes the given entries straight into each generation.
func (f *fixture) seedScheme(t *testing.T, name string, live, draft []*models.SchemeConfig) *models.Scheme {
	t.Helper()
	ctx := context.Background()
	s := &models.Scheme{OrganizationID: org, Name: name}
	require.NoError(t, f.repo.CreateScheme(ctx, s))
	for gen, entries := range map[models.Generation][]*models.SchemeConfig{models.Live: live, models.Draft: draft} {
		for _, e := range entries {
			c := *e
			c.OrganizationID, c.SchemeID = org, s.ID
			require.NoError(t, f.repo.InsertConfig(ctx, gen, &c))
		}
	}
	return s
}

func def(machineID int64) *models.SchemeConfig {
	return &models.SchemeConfig{StateMachineID: machineID, IsDefault: true}
}

func edge(issueTypeID, machineID int64) *models.SchemeConfig {
	return &models.SchemeConfig{StateMachineID: machineID, IssueTypeID: issueTypeID}
}

type configKey struct {
	machine, issueType int64
	isDefault          bool
	sequence           int
}

// projection drops ids so two generations can be compared pointwise.
func projection(t *testing.T, repo repository.Repository, gen models.Generation, schemeID int64) map[configKey]bool {
	t.Helper()
	configs, err := repo.ListConfigs(context.Background(), gen, org, schemeID)
	require.NoError(t, err)
	out := make(map[configKey]bool, len(configs))
	for _, c := range configs {
		out[configKey{c.StateMachineID, c.IssueTypeID, c.IsDefault, c.Sequence}] = true
	}
	return out
}
