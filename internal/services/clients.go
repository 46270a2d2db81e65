package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"workflow-scheme/backend/pkg/models"
)

// ClientConfig configures the HTTP clients used to reach collaborator services.
type ClientConfig struct {
	Timeout      time.Duration
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewHTTPClient returns an http.Client bounded by cfg.Timeout. When a token URL is
// configured, requests carry a client-credentials bearer token.
func NewHTTPClient(ctx context.Context, cfg ClientConfig) *http.Client {
	base := &http.Client{Timeout: cfg.Timeout}
	if cfg.TokenURL == "" {
		return base
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = cfg.Timeout
	return client
}

// doJSON sends body as JSON (when non-nil) and decodes a 200 response into out.
func doJSON(ctx context.Context, client *http.Client, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status code %d", method, target, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// HTTPDirectory is an HTTP implementation of the Directory interface.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a new HTTPDirectory.
func NewHTTPDirectory(baseURL string, client *http.Client) *HTTPDirectory {
	return &HTTPDirectory{baseURL: baseURL, client: client}
}

func (c *HTTPDirectory) orgURL(orgID int64, path string) string {
	return fmt.Sprintf("%s/v1/organizations/%d%s", c.baseURL, orgID, path)
}

// QueryAllWithStatus returns every machine of the organization with its statuses.
func (c *HTTPDirectory) QueryAllWithStatus(ctx context.Context, orgID int64) ([]*models.StateMachineWithStatus, error) {
	var machines []*models.StateMachineWithStatus
	if err := doJSON(ctx, c.client, http.MethodGet, c.orgURL(orgID, "/state_machines/query_all_with_status"), nil, &machines); err != nil {
		return nil, err
	}
	return machines, nil
}

// QueryDefaultStateMachine returns the organization's default machine.
func (c *HTTPDirectory) QueryDefaultStateMachine(ctx context.Context, orgID int64) (*models.StateMachine, error) {
	var machine models.StateMachine
	if err := doJSON(ctx, c.client, http.MethodGet, c.orgURL(orgID, "/state_machines/default"), nil, &machine); err != nil {
		return nil, err
	}
	return &machine, nil
}

// ActivateMachines marks machines as used by an active scheme.
func (c *HTTPDirectory) ActivateMachines(ctx context.Context, orgID int64, machineIDs []int64) error {
	return c.setActive(ctx, orgID, "/state_machines/active_state_machines", machineIDs)
}

// DeactivateMachines marks machines as no longer used.
func (c *HTTPDirectory) DeactivateMachines(ctx context.Context, orgID int64, machineIDs []int64) error {
	return c.setActive(ctx, orgID, "/state_machines/not_active_state_machines", machineIDs)
}

func (c *HTTPDirectory) setActive(ctx context.Context, orgID int64, path string, machineIDs []int64) error {
	var ok bool
	if err := doJSON(ctx, c.client, http.MethodPost, c.orgURL(orgID, path), machineIDs, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state machine service refused %s for %v", path, machineIDs)
	}
	return nil
}

// QueryInitStatus returns the status of a machine's initial node.
func (c *HTTPDirectory) QueryInitStatus(ctx context.Context, orgID, machineID int64) (int64, error) {
	q := url.Values{"state_machine_id": {strconv.FormatInt(machineID, 10)}}
	var statusID int64
	if err := doJSON(ctx, c.client, http.MethodGet, c.orgURL(orgID, "/instances/query_init_status_id?"+q.Encode()), nil, &statusID); err != nil {
		return 0, err
	}
	return statusID, nil
}

// HTTPImpactChecker is an HTTP implementation of the ImpactChecker interface.
type HTTPImpactChecker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPImpactChecker creates a new HTTPImpactChecker.
func NewHTTPImpactChecker(baseURL string, client *http.Client) *HTTPImpactChecker {
	return &HTTPImpactChecker{baseURL: baseURL, client: client}
}

// CheckSchemeChangeImpact asks the issue service how many issues each issue type would move.
func (c *HTTPImpactChecker) CheckSchemeChangeImpact(ctx context.Context, orgID int64, query *models.ImpactQuery) (map[int64]int64, error) {
	target := fmt.Sprintf("%s/v1/organizations/%d/schemes/check_scheme_change", c.baseURL, orgID)
	counts := map[int64]int64{}
	if err := doJSON(ctx, c.client, http.MethodPost, target, query, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// HTTPEvaluator addresses the service that registered a config code by its
// service code, formatted into urlTemplate (for example "http://%s").
type HTTPEvaluator struct {
	urlTemplate string
	client      *http.Client
}

// NewHTTPEvaluator creates a new HTTPEvaluator.
func NewHTTPEvaluator(urlTemplate string, client *http.Client) *HTTPEvaluator {
	return &HTTPEvaluator{urlTemplate: urlTemplate, client: client}
}

func (c *HTTPEvaluator) endpoint(serviceCode, path string, q url.Values) string {
	target := fmt.Sprintf(c.urlTemplate, serviceCode) + "/v1/statemachine/" + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return target
}

func (c *HTTPEvaluator) execute(ctx context.Context, target string, in *models.Input) (*models.ExecuteResult, error) {
	var result models.ExecuteResult
	if err := doJSON(ctx, c.client, http.MethodPost, target, in, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteEvaluation, err)
	}
	return &result, nil
}

// ExecuteCondition evaluates a condition batch under strategy.
func (c *HTTPEvaluator) ExecuteCondition(ctx context.Context, serviceCode string, strategy models.ConditionStrategy, in *models.Input) (*models.ExecuteResult, error) {
	return c.execute(ctx, c.endpoint(serviceCode, "execute_config_condition", url.Values{"condition_strategy": {string(strategy)}}), in)
}

// ExecuteValidator evaluates a validator batch.
func (c *HTTPEvaluator) ExecuteValidator(ctx context.Context, serviceCode string, in *models.Input) (*models.ExecuteResult, error) {
	return c.execute(ctx, c.endpoint(serviceCode, "execute_config_validator", nil), in)
}

// ExecuteAction runs an action batch for a transition into targetStatusID.
func (c *HTTPEvaluator) ExecuteAction(ctx context.Context, serviceCode string, targetStatusID int64, transformType models.TransformType, in *models.Input) (*models.ExecuteResult, error) {
	q := url.Values{
		"target_status_id": {strconv.FormatInt(targetStatusID, 10)},
		"transform_type":   {string(transformType)},
	}
	return c.execute(ctx, c.endpoint(serviceCode, "execute_config_action", q), in)
}

// FilterTransforms drops candidates whose conditions do not hold for the instance.
func (c *HTTPEvaluator) FilterTransforms(ctx context.Context, serviceCode string, instanceID int64, candidates []*models.TransformInfo) ([]*models.TransformInfo, error) {
	q := url.Values{"instance_id": {strconv.FormatInt(instanceID, 10)}}
	var filtered []*models.TransformInfo
	if err := doJSON(ctx, c.client, http.MethodPost, c.endpoint(serviceCode, "filter_transform", q), candidates, &filtered); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteEvaluation, err)
	}
	return filtered, nil
}
