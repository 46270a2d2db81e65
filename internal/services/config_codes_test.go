package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/internal/logging"
	"workflow-scheme/backend/pkg/models"
)

func codes(t *testing.T, got []*models.ConfigCode) []string {
	t.Helper()
	out := make([]string, 0, len(got))
	for _, c := range got {
		out = append(out, c.Code)
	}
	return out
}

func TestConfigCodeService_Register(t *testing.T) {
	ctx := context.Background()
	w := newWorkflow(t)
	svc := NewConfigCodeService(w.repo, logging.NoOpLogger{})

	require.NoError(t, svc.Register(ctx, " agile ", []*models.ConfigCode{
		{Code: "only_assignee", Kind: "CONDITION", Name: "Only assignee"},
		{Code: "required_field", Kind: models.ConfigKindValidator},
	}))
	require.NoError(t, svc.Register(ctx, "test", []*models.ConfigCode{
		{Code: "run_pipeline", Kind: models.ConfigKindAction},
	}))

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"only_assignee", "required_field", "run_pipeline"}, codes(t, all))
	assert.Equal(t, "agile", all[0].Service)
	assert.Equal(t, models.ConfigKindCondition, all[0].Kind)

	// Re-registering replaces only that service's codes.
	require.NoError(t, svc.Register(ctx, "agile", []*models.ConfigCode{
		{Code: "only_reporter", Kind: models.ConfigKindCondition},
	}))
	all, err = svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"only_reporter", "run_pipeline"}, codes(t, all))

	conditions, err := svc.List(ctx, "condition")
	require.NoError(t, err)
	assert.Equal(t, []string{"only_reporter"}, codes(t, conditions))
}

func TestConfigCodeService_RegisterRejects(t *testing.T) {
	ctx := context.Background()
	w := newWorkflow(t)
	svc := NewConfigCodeService(w.repo, logging.NoOpLogger{})
	require.NoError(t, svc.Register(ctx, "agile", []*models.ConfigCode{{Code: "shared", Kind: models.ConfigKindTrigger}}))

	tests := []struct {
		name    string
		service string
		codes   []*models.ConfigCode
		wantErr error
	}{
		{"no service", " ", []*models.ConfigCode{{Code: "a", Kind: models.ConfigKindAction}}, ErrValidation},
		{"empty code", "test", []*models.ConfigCode{{Code: "", Kind: models.ConfigKindAction}}, ErrValidation},
		{"bad kind", "test", []*models.ConfigCode{{Code: "a", Kind: "hook"}}, ErrValidation},
		{"duplicate in batch", "test", []*models.ConfigCode{
			{Code: "a", Kind: models.ConfigKindAction}, {Code: "a", Kind: models.ConfigKindTrigger},
		}, ErrValidation},
		{"owned by another service", "test", []*models.ConfigCode{{Code: "shared", Kind: models.ConfigKindAction}}, ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Register(ctx, tt.service, tt.codes), tt.wantErr)
		})
	}

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, codes(t, all))

	_, err = svc.List(ctx, "hook")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfigCodeService_ListUnconfigured(t *testing.T) {
	ctx := context.Background()
	w := newWorkflow(t)
	svc := NewConfigCodeService(w.repo, logging.NoOpLogger{})
	require.NoError(t, svc.Register(ctx, "agile", []*models.ConfigCode{
		{Code: "only_assignee", Kind: models.ConfigKindCondition},
		{Code: "only_reporter", Kind: models.ConfigKindCondition},
		{Code: "required_field", Kind: models.ConfigKindValidator},
	}))
	w.attach(t, w.start, models.ConfigKindCondition, "only_assignee")

	got, err := svc.ListUnconfigured(ctx, org, w.start.ID, "condition")
	require.NoError(t, err)
	assert.Equal(t, []string{"only_reporter"}, codes(t, got))

	got, err = svc.ListUnconfigured(ctx, org, w.close.ID, "action")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = svc.ListUnconfigured(ctx, org, 999, "condition")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ListUnconfigured(ctx, org, w.start.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTransformConfigResolver_Detail(t *testing.T) {
	ctx := context.Background()
	w := newWorkflow(t)
	w.attach(t, w.close, models.ConfigKindCondition, "c")
	w.attach(t, w.close, models.ConfigKindValidator, "v")
	w.attach(t, w.close, models.ConfigKindAction, "a1")
	w.attach(t, w.close, models.ConfigKindAction, "a2")
	w.attach(t, w.start, models.ConfigKindAction, "other")
	r := NewTransformConfigResolver(w.repo)

	d, err := r.Detail(ctx, org, w.close)
	require.NoError(t, err)
	assert.Len(t, d.Conditions, 1)
	assert.Len(t, d.Validators, 1)
	assert.NotNil(t, d.Triggers)
	assert.Empty(t, d.Triggers)
	require.Len(t, d.Actions, 2)
	assert.Equal(t, "a1", d.Actions[0].Code)

	_, err = r.Resolve(ctx, org, w.close.ID, "hook")
	assert.ErrorIs(t, err, ErrValidation)
	many, err := r.ResolveMany(ctx, org, []int64{w.start.ID, w.close.ID}, models.ConfigKindAction)
	require.NoError(t, err)
	assert.Len(t, many[w.start.ID], 1)
	assert.Len(t, many[w.close.ID], 2)
}
