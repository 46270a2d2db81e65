package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/pkg/models"
)

const testOrg int64 = 42

// runContract exercises behaviour every Repository implementation must share.
func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	newScheme := func(t *testing.T, repo Repository, name string) *models.Scheme {
		s := &models.Scheme{OrganizationID: testOrg, Name: name}
		require.NoError(t, repo.CreateScheme(ctx, s))
		return s
	}

	t.Run("create and get scheme", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "alpha")
		assert.NotZero(t, s.ID)
		assert.Equal(t, int64(1), s.Version)

		got, err := repo.GetScheme(ctx, testOrg, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SchemeStatusCreate, got.Status)
		assert.Equal(t, models.DeployStatusNone, got.DeployStatus)

		_, err = repo.GetScheme(ctx, testOrg+1, s.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		err = repo.CreateScheme(ctx, &models.Scheme{OrganizationID: testOrg, Name: "alpha"})
		assert.ErrorIs(t, err, ErrPersistence)
	})

	t.Run("update scheme checks version", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "beta")
		stale := *s

		s.Description = "changed"
		require.NoError(t, repo.UpdateScheme(ctx, s))
		assert.Equal(t, int64(2), s.Version)

		stale.Description = "lost update"
		assert.ErrorIs(t, repo.UpdateScheme(ctx, &stale), ErrConflict)
	})

	t.Run("claim deploy is a single compare-and-swap", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "gamma")

		claimed, err := repo.ClaimDeploy(ctx, testOrg, s.ID, s.Version)
		require.NoError(t, err)
		assert.Equal(t, models.SchemeStatusActive, claimed.Status)
		assert.Equal(t, models.DeployStatusDoing, claimed.DeployStatus)
		assert.Equal(t, s.Version+1, claimed.Version)

		_, err = repo.ClaimDeploy(ctx, testOrg, s.ID, s.Version)
		assert.ErrorIs(t, err, ErrConflict)
		// Still doing, so even the current version is refused.
		_, err = repo.ClaimDeploy(ctx, testOrg, s.ID, claimed.Version)
		assert.ErrorIs(t, err, ErrConflict)

		_, err = repo.ClaimDeploy(ctx, testOrg, s.ID+1000, 1)
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := repo.UpdateDeployProgress(ctx, testOrg, s.ID, 100)
		require.NoError(t, err)
		assert.True(t, ok)
		done, err := repo.GetScheme(ctx, testOrg, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeployStatusDone, done.DeployStatus)
		assert.Equal(t, claimed.Version, done.Version)

		ok, err = repo.UpdateDeployProgress(ctx, testOrg, s.ID+1000, 50)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("config generations are independent", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "delta")
		require.NoError(t, repo.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 1, IsDefault: true,
		}))
		require.NoError(t, repo.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 2, IssueTypeID: 7,
		}))

		live, err := repo.ListConfigs(ctx, models.Live, testOrg, s.ID)
		require.NoError(t, err)
		assert.Empty(t, live)

		draft, err := repo.ListConfigs(ctx, models.Draft, testOrg, s.ID)
		require.NoError(t, err)
		require.Len(t, draft, 2)
		assert.True(t, draft[0].IsDefault)

		cfg, err := repo.GetConfig(ctx, models.Draft, testOrg, s.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(2), cfg.StateMachineID)

		cfg, err = repo.GetConfig(ctx, models.Draft, testOrg, s.ID, 99)
		require.NoError(t, err)
		assert.True(t, cfg.IsDefault)
		assert.Equal(t, int64(1), cfg.StateMachineID)
	})

	t.Run("default and issue type uniqueness", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "epsilon")
		require.NoError(t, repo.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 1, IsDefault: true,
		}))
		err := repo.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 2, IsDefault: true,
		})
		assert.ErrorIs(t, err, ErrPersistence)

		require.NoError(t, repo.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 2, IssueTypeID: 5,
		}))
		err = repo.InsertConfig(ctx, models.Draft, &models.SchemeConfig{
			OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 3, IssueTypeID: 5,
		})
		assert.ErrorIs(t, err, ErrPersistence)
	})

	t.Run("replace for state machine moves issue types", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "zeta")
		for _, c := range []*models.SchemeConfig{
			{OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 1, IsDefault: true},
			{OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 2, IssueTypeID: 10},
			{OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 2, IssueTypeID: 11},
			{OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 3, IssueTypeID: 12},
		} {
			require.NoError(t, repo.InsertConfig(ctx, models.Draft, c))
		}

		err := repo.ReplaceForStateMachine(ctx, models.Draft, testOrg, s.ID, 2, []*models.SchemeConfig{
			{IssueTypeID: 10}, {IssueTypeID: 12},
		})
		require.NoError(t, err)

		got := map[int64]int64{}
		configs, err := repo.ListConfigs(ctx, models.Draft, testOrg, s.ID)
		require.NoError(t, err)
		for _, c := range configs {
			if !c.IsDefault {
				got[c.IssueTypeID] = c.StateMachineID
			}
		}
		assert.Equal(t, map[int64]int64{10: 2, 12: 2}, got)

		ids, err := repo.ListSchemeIDsReferencing(ctx, models.Draft, testOrg, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{s.ID}, ids)

		n, err := repo.DeleteForStateMachine(ctx, models.Draft, testOrg, s.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		require.NoError(t, repo.UpdateDefaultStateMachine(ctx, models.Draft, testOrg, s.ID, 9))
		def, err := repo.GetDefaultConfig(ctx, models.Draft, testOrg, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(9), def.StateMachineID)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		repo := newRepo(t)
		s := newScheme(t, repo, "eta")
		boom := errors.New("boom")

		err := repo.InTx(ctx, func(tx Repository) error {
			if err := tx.InsertConfig(ctx, models.Live, &models.SchemeConfig{
				OrganizationID: testOrg, SchemeID: s.ID, StateMachineID: 1, IsDefault: true,
			}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		live, err := repo.ListConfigs(ctx, models.Live, testOrg, s.ID)
		require.NoError(t, err)
		assert.Empty(t, live)
	})

	t.Run("transforms and config codes", func(t *testing.T) {
		repo := newRepo(t)
		start := &models.Node{OrganizationID: testOrg, StateMachineID: 3, StatusID: 100, Type: models.NodeTypeInit}
		end := &models.Node{OrganizationID: testOrg, StateMachineID: 3, StatusID: 101}
		require.NoError(t, repo.CreateNode(ctx, start))
		require.NoError(t, repo.CreateNode(ctx, end))

		tr := &models.Transform{OrganizationID: testOrg, StateMachineID: 3, Name: "start", StartNodeID: start.ID, EndNodeID: end.ID}
		require.NoError(t, repo.CreateTransform(ctx, tr))
		assert.Equal(t, models.TransformTypeCustom, tr.Type)
		assert.Equal(t, models.ConditionStrategyAll, tr.ConditionStrategy)

		for i, kind := range []models.ConfigKind{models.ConfigKindValidator, models.ConfigKindCondition, models.ConfigKindCondition} {
			require.NoError(t, repo.CreateTransformConfig(ctx, &models.TransformConfig{
				OrganizationID: testOrg, TransformID: tr.ID, Code: "c" + string(rune('a'+i)), Kind: kind, Sequence: 3 - i,
			}))
		}
		conds, err := repo.ListTransformConfigs(ctx, testOrg, []int64{tr.ID}, models.ConfigKindCondition)
		require.NoError(t, err)
		require.Len(t, conds, 2)
		assert.Equal(t, "cc", conds[0].Code)

		all, err := repo.ListTransformConfigs(ctx, testOrg, []int64{tr.ID}, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		nodes, err := repo.ListNodes(ctx, testOrg, 3)
		require.NoError(t, err)
		assert.Len(t, nodes, 2)

		require.NoError(t, repo.ReplaceConfigCodes(ctx, "agile", []*models.ConfigCode{
			{Code: "only_assignee", Kind: models.ConfigKindCondition, Name: "Only assignee"},
			{Code: "required_field", Kind: models.ConfigKindValidator, Name: "Required field"},
		}))
		require.NoError(t, repo.ReplaceConfigCodes(ctx, "agile", []*models.ConfigCode{
			{Code: "only_assignee", Kind: models.ConfigKindCondition, Name: "Only assignee"},
		}))
		codes, err := repo.ListConfigCodes(ctx, "")
		require.NoError(t, err)
		require.Len(t, codes, 1)
		assert.Equal(t, "agile", codes[0].Service)
	})

	t.Run("project configs", func(t *testing.T) {
		repo := newRepo(t)
		a, b := newScheme(t, repo, "agile"), newScheme(t, repo, "testing")

		pc := &models.ProjectConfig{OrganizationID: testOrg, ProjectID: 9, SchemeID: a.ID, ApplyType: models.ApplyTypeAgile}
		require.NoError(t, repo.CreateProjectConfig(ctx, pc))
		assert.NotZero(t, pc.ID)
		require.NoError(t, repo.CreateProjectConfig(ctx, &models.ProjectConfig{
			OrganizationID: testOrg, ProjectID: 9, SchemeID: b.ID, ApplyType: models.ApplyTypeTest,
		}))
		require.NoError(t, repo.CreateProjectConfig(ctx, &models.ProjectConfig{
			OrganizationID: testOrg, ProjectID: 4, SchemeID: a.ID, ApplyType: models.ApplyTypeAgile,
		}))

		err := repo.CreateProjectConfig(ctx, &models.ProjectConfig{
			OrganizationID: testOrg, ProjectID: 9, SchemeID: b.ID, ApplyType: models.ApplyTypeAgile,
		})
		assert.ErrorIs(t, err, ErrPersistence)

		got, err := repo.GetProjectConfig(ctx, testOrg, 9, models.ApplyTypeAgile)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.SchemeID)
		_, err = repo.GetProjectConfig(ctx, testOrg, 9, models.ApplyTypeProgram)
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := repo.ListProjectConfigs(ctx, testOrg, 9)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, models.ApplyTypeAgile, all[0].ApplyType)

		bound, err := repo.ListProjectConfigsBySchemes(ctx, testOrg, []int64{a.ID})
		require.NoError(t, err)
		require.Len(t, bound, 2)
		assert.Equal(t, int64(4), bound[0].ProjectID)
		assert.Equal(t, int64(9), bound[1].ProjectID)
	})
}
