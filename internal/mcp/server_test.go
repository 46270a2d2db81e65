package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/internal/auth"
	"workflow-scheme/backend/internal/logging"
	"workflow-scheme/backend/internal/messaging"
	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/internal/services"
	"workflow-scheme/backend/pkg/models"
)

type stubDirectory struct{}

func (stubDirectory) QueryAllWithStatus(context.Context, int64) ([]*models.StateMachineWithStatus, error) {
	return []*models.StateMachineWithStatus{{ID: 1, Statuses: []*models.Status{{ID: 1}}}}, nil
}

func (stubDirectory) QueryDefaultStateMachine(context.Context, int64) (*models.StateMachine, error) {
	return &models.StateMachine{ID: 1}, nil
}

func (stubDirectory) ActivateMachines(context.Context, int64, []int64) error   { return nil }
func (stubDirectory) DeactivateMachines(context.Context, int64, []int64) error { return nil }
func (stubDirectory) QueryInitStatus(context.Context, int64, int64) (int64, error) {
	return 0, errors.New("unknown")
}

type stubImpact struct{}

func (stubImpact) CheckSchemeChangeImpact(context.Context, int64, *models.ImpactQuery) (map[int64]int64, error) {
	return map[int64]int64{}, nil
}

func newTestServer(t *testing.T) (*Server, *models.Scheme) {
	t.Helper()
	logger := logging.NoOpLogger{}
	repo := repository.NewMemoryRepository()
	schemes := services.NewSchemeService(repo, stubDirectory{}, logger)
	deploys := services.NewDeployCoordinator(repo, stubDirectory{}, stubImpact{}, messaging.LogNotifier{Logger: logger}, logger)
	pipeline := services.NewPipeline(repo, nil, stubDirectory{}, logger)
	scheme, err := schemes.CreateScheme(context.Background(), 7, "Delivery", "")
	require.NoError(t, err)
	return NewServer(schemes, deploys, pipeline, services.NewConfigCodeService(repo, logger)), scheme
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func asOrg(orgIDs ...int64) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{Subject: "u", OrganizationIDs: orgIDs})
}

func TestQuerySchemeWithConfig(t *testing.T) {
	s, scheme := newTestServer(t)

	res, err := s.handleQuerySchemeWithConfig(asOrg(7), call(map[string]interface{}{
		"organization_id": float64(7),
		"scheme_id":       float64(scheme.ID),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var view models.SchemeView
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &view))
	assert.Equal(t, models.Draft, view.Generation)
	require.Len(t, view.Machines, 1)
	assert.Equal(t, int64(1), view.Machines[0].StateMachineID)
}

func TestQuerySchemeWithConfig_Denied(t *testing.T) {
	s, scheme := newTestServer(t)
	args := map[string]interface{}{"organization_id": float64(7), "scheme_id": float64(scheme.ID)}

	for _, ctx := range []context.Context{context.Background(), asOrg(8)} {
		res, err := s.handleQuerySchemeWithConfig(ctx, call(args))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
}

func TestToolArgumentErrors(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := asOrg(7)

	res, err := s.handleCheckDeploy(ctx, call(map[string]interface{}{"organization_id": float64(7)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "scheme_id")

	res, err = s.handleListAvailableTransforms(ctx, call(map[string]interface{}{
		"organization_id": float64(7), "service_code": "agile", "state_machine_id": float64(1), "instance_id": 1.5,
	}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "instance_id")

	var req mcp.CallToolRequest
	req.Params.Arguments = "not a map"
	res, err = s.handleCheckDeploy(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCheckDeployAndTransforms(t *testing.T) {
	s, scheme := newTestServer(t)
	ctx := asOrg(7)

	res, err := s.handleCheckDeploy(ctx, call(map[string]interface{}{"organization_id": float64(7), "scheme_id": float64(scheme.ID)}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.JSONEq(t, `[]`, text(t, res))

	res, err = s.handleListAvailableTransforms(ctx, call(map[string]interface{}{
		"organization_id": float64(7), "service_code": "agile",
		"state_machine_id": float64(1), "instance_id": float64(3), "status_id": float64(1),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.JSONEq(t, `[]`, text(t, res))

	res, err = s.handleListConfigCodes(ctx, call(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, text(t, res))
}
