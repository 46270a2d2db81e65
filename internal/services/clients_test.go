package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/pkg/models"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestHTTPDirectory(t *testing.T) {
	var activated []int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/organizations/7/state_machines/query_all_with_status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []*models.StateMachineWithStatus{machine(1, 10, 20)})
	})
	mux.HandleFunc("GET /v1/organizations/7/state_machines/default", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, models.StateMachine{ID: 1, Name: "default"})
	})
	mux.HandleFunc("POST /v1/organizations/7/state_machines/active_state_machines", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&activated))
		writeJSON(t, w, true)
	})
	mux.HandleFunc("POST /v1/organizations/7/state_machines/not_active_state_machines", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, false)
	})
	mux.HandleFunc("GET /v1/organizations/7/instances/query_init_status_id", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("state_machine_id"))
		writeJSON(t, w, 30)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	dir := NewHTTPDirectory(srv.URL, srv.Client())

	machines, err := dir.QueryAllWithStatus(ctx, org)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, []int64{10, 20}, machines[0].StatusIDs())

	def, err := dir.QueryDefaultStateMachine(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, int64(1), def.ID)

	require.NoError(t, dir.ActivateMachines(ctx, org, []int64{2, 3}))
	assert.Equal(t, []int64{2, 3}, activated)
	assert.Error(t, dir.DeactivateMachines(ctx, org, []int64{1}))

	status, err := dir.QueryInitStatus(ctx, org, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(30), status)

	_, err = dir.QueryAllWithStatus(ctx, 8)
	assert.ErrorContains(t, err, "status code 404")
}

func TestHTTPImpactChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/organizations/7/schemes/check_scheme_change", r.URL.Path)
		var q models.ImpactQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, int64(4), q.SchemeID)
		writeJSON(t, w, map[string]int64{"10": 3, "11": 0})
	}))
	defer srv.Close()

	counts, err := NewHTTPImpactChecker(srv.URL, srv.Client()).
		CheckSchemeChangeImpact(context.Background(), org, &models.ImpactQuery{SchemeID: 4, IssueTypeIDs: []int64{10, 11}})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{10: 3, 11: 0}, counts)
}

func TestHTTPEvaluator(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path+"?"+r.URL.RawQuery)
		switch {
		case strings.HasSuffix(r.URL.Path, "/filter_transform"):
			var candidates []*models.TransformInfo
			require.NoError(t, json.NewDecoder(r.Body).Decode(&candidates))
			writeJSON(t, w, candidates[:1])
		case strings.HasSuffix(r.URL.Path, "/execute_config_validator"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			var in models.Input
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Len(t, in.Configs, 1)
			writeJSON(t, w, models.NewExecuteResult(true, ""))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	ev := NewHTTPEvaluator(srv.URL+"/%s", srv.Client())
	in := &models.Input{InstanceID: 9, Configs: []*models.TransformConfig{{Code: "c"}}}

	res, err := ev.ExecuteCondition(ctx, "agile", models.ConditionStrategyAll, in)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	res, err = ev.ExecuteAction(ctx, "agile", 30, models.TransformTypeAll, in)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	_, err = ev.ExecuteValidator(ctx, "agile", in)
	assert.ErrorIs(t, err, ErrRemoteEvaluation)

	filtered, err := ev.FilterTransforms(ctx, "test", 9, []*models.TransformInfo{{ID: 1}, {ID: 2}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(1), filtered[0].ID)

	assert.Equal(t, []string{
		"/agile/v1/statemachine/execute_config_condition?condition_strategy=all",
		"/agile/v1/statemachine/execute_config_action?target_status_id=30&transform_type=all",
		"/agile/v1/statemachine/execute_config_validator?",
		"/test/v1/statemachine/filter_transform?instance_id=9",
	}, seen)
}

func TestHTTPEvaluator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	ev := NewHTTPEvaluator(srv.URL+"/%s", &http.Client{Timeout: time.Second})
	_, err := ev.ExecuteCondition(context.Background(), "agile", models.ConditionStrategyAll, &models.Input{})
	assert.ErrorIs(t, err, ErrRemoteEvaluation)
}

func TestNewHTTPClient_ClientCredentials(t *testing.T) {
	tokens := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokens++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			writeJSON(t, w, map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(t, w, models.StateMachine{ID: 5})
	}))
	defer srv.Close()

	client := NewHTTPClient(context.Background(), ClientConfig{
		Timeout:      time.Second,
		TokenURL:     srv.URL + "/token",
		ClientID:     "scheme",
		ClientSecret: "secret",
	})
	dir := NewHTTPDirectory(srv.URL, client)
	for i := range 2 {
		m, err := dir.QueryDefaultStateMachine(context.Background(), org)
		require.NoError(t, err, fmt.Sprint("call ", i))
		assert.Equal(t, int64(5), m.ID)
	}
	assert.Equal(t, 1, tokens)
}

func TestNewHTTPClient_NoTokenURL(t *testing.T) {
	client := NewHTTPClient(context.Background(), ClientConfig{Timeout: 3 * time.Second})
	assert.Equal(t, 3*time.Second, client.Timeout)
	assert.Nil(t, client.Transport)
}

func catalogServer(t *testing.T, body string) *HTTPDirectory {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPDirectory(srv.URL, srv.Client())
}

func TestDiffEngine_NullMachineFromDirectory(t *testing.T) {
	f := newFixture(t)
	s := f.seedScheme(t, "null", []*models.SchemeConfig{def(1)}, []*models.SchemeConfig{def(1)})
	engine := NewDiffEngine(f.repo, catalogServer(t, `[null]`))

	_, err := engine.ComputeChangedStatuses(context.Background(), org, s.ID)
	assert.ErrorIs(t, err, ErrUpstream)
	_, err = engine.ComputeChangeItems(context.Background(), org, s.ID)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestDiffEngine_NullStatusesFromDirectory(t *testing.T) {
	f := newFixture(t)
	s := f.seedScheme(t, "holes",
		[]*models.SchemeConfig{def(1), edge(5, 1)},
		[]*models.SchemeConfig{def(1), edge(5, 2)})
	engine := NewDiffEngine(f.repo, catalogServer(t,
		`[{"id":1,"statuses":[null,{"id":1}]},{"id":2,"statuses":[{"id":2},null]}]`))

	diff, err := engine.ComputeChangedStatuses(context.Background(), org, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, diff.AddedStatusIDs)
	assert.Equal(t, []int64{1}, diff.RemovedStatusIDs)

	items, err := engine.ComputeChangeItems(context.Background(), org, s.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, items[0].StatusChangeItems, 1)
	assert.Equal(t, int64(1), items[0].StatusChangeItems[0].OldStatus.ID)
	assert.Equal(t, int64(2), items[0].StatusChangeItems[0].NewStatus.ID)
}
