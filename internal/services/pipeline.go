package services

import (
	"context"
	"errors"
	"fmt"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// Pipeline prepares transform configs for one transition attempt, dispatches them
// to remote evaluators and folds the answers into a single verdict.
type Pipeline struct {
	store     repository.TransformStore
	resolver  *TransformConfigResolver
	evaluator Evaluator
	directory Directory
	logger    Logger
	metrics   *metrics
}

// NewPipeline creates a new Pipeline.
func NewPipeline(store repository.TransformStore, evaluator Evaluator, directory Directory, logger Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		resolver:  NewTransformConfigResolver(store),
		evaluator: evaluator,
		directory: directory,
		logger:    logger,
		metrics:   newMetrics(),
	}
}

func withConfigs(in *models.Input, configs []*models.TransformConfig) *models.Input {
	batch := models.Input{}
	if in != nil {
		batch = *in
	}
	batch.Configs = configs
	return &batch
}

// EvaluateGuard runs the transform's condition batch and then, if it passed, its
// validator batch. Remote faults fail the guard; they are never returned as errors.
// The result is also stored in ec when ec is non-nil.
func (p *Pipeline) EvaluateGuard(ctx context.Context, orgID int64, serviceCode string, transformID int64, in *models.Input, ec *models.ExecutionContext) (*models.ExecuteResult, error) {
	transform, err := p.store.GetTransform(ctx, orgID, transformID)
	if err != nil {
		return nil, err
	}
	conditions, err := p.resolver.Resolve(ctx, orgID, transformID, models.ConfigKindCondition)
	if err != nil {
		return nil, err
	}
	validators, err := p.resolver.Resolve(ctx, orgID, transformID, models.ConfigKindValidator)
	if err != nil {
		return nil, err
	}

	result := models.NewExecuteResult(true, "")
	if len(conditions) > 0 {
		res, err := p.evaluator.ExecuteCondition(ctx, serviceCode, transform.ConditionStrategy, withConfigs(in, conditions))
		p.logRemoteFault(err, "condition", orgID, transformID)
		result = settle(res, err, guardFallbackMessage)
	}
	if result.Succeeded() && len(validators) > 0 {
		res, err := p.evaluator.ExecuteValidator(ctx, serviceCode, withConfigs(in, validators))
		p.logRemoteFault(err, "validator", orgID, transformID)
		result = settle(res, err, guardFallbackMessage)
	}

	if ec != nil {
		ec.SetExecuteResult(result)
	}
	p.metrics.evaluation(ctx, "guard", result.Succeeded())
	return result, nil
}

// RunPostAction dispatches the transform's action batch for a transition into the
// status bound to targetNodeID.
func (p *Pipeline) RunPostAction(ctx context.Context, orgID int64, serviceCode string, transformID, targetNodeID int64, in *models.Input, ec *models.ExecutionContext) (*models.ExecuteResult, error) {
	transform, err := p.store.GetTransform(ctx, orgID, transformID)
	if err != nil {
		return nil, err
	}
	actions, err := p.resolver.Resolve(ctx, orgID, transformID, models.ConfigKindAction)
	if err != nil {
		return nil, err
	}
	node, err := p.store.GetNode(ctx, orgID, targetNodeID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && node.StatusID == 0) {
		return nil, fmt.Errorf("node %d: %w", targetNodeID, ErrMissingTargetStatus)
	}
	if err != nil {
		return nil, err
	}

	res, err := p.evaluator.ExecuteAction(ctx, serviceCode, node.StatusID, transform.Type, withConfigs(in, actions))
	p.logRemoteFault(err, "action", orgID, transformID)
	if err == nil && res != nil && res.Success == nil {
		p.logger.Error("action evaluator returned no verdict", "organization_id", orgID, "transform_id", transformID)
	}
	result := settle(res, err, postActionFallbackMessage)

	if ec != nil {
		ec.SetExecuteResult(result)
	}
	p.metrics.evaluation(ctx, "post_action", result.Succeeded())
	return result, nil
}

func (p *Pipeline) logRemoteFault(err error, kind string, orgID, transformID int64) {
	if err != nil {
		p.logger.Error("remote "+kind+" evaluation failed", "organization_id", orgID, "transform_id", transformID, "error", err)
	}
}

// ListAvailableTransforms returns the transforms leaving statusID that the instance
// may take. When any candidate carries conditions the list is filtered remotely;
// if that call fails the result is empty.
func (p *Pipeline) ListAvailableTransforms(ctx context.Context, orgID int64, serviceCode string, machineID, instanceID, statusID int64) ([]*models.TransformInfo, error) {
	transforms, err := p.store.ListTransforms(ctx, orgID, machineID)
	if err != nil {
		return nil, err
	}
	nodes, err := p.store.ListNodes(ctx, orgID, machineID)
	if err != nil {
		return nil, err
	}
	nodeStatus := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		nodeStatus[n.ID] = n.StatusID
	}

	var leaving []*models.Transform
	var ids []int64
	for _, t := range transforms {
		if t.Type == models.TransformTypeAll || (t.StartNodeID != 0 && nodeStatus[t.StartNodeID] == statusID) {
			leaving = append(leaving, t)
			ids = append(ids, t.ID)
		}
	}
	if len(leaving) == 0 {
		return []*models.TransformInfo{}, nil
	}
	conditions, err := p.resolver.ResolveMany(ctx, orgID, ids, models.ConfigKindCondition)
	if err != nil {
		return nil, err
	}

	needFilter := false
	infos := make([]*models.TransformInfo, 0, len(leaving))
	for _, t := range leaving {
		conds := conditions[t.ID]
		if len(conds) > 0 {
			needFilter = true
		} else {
			conds = []*models.TransformConfig{}
		}
		infos = append(infos, &models.TransformInfo{
			ID:                t.ID,
			Name:              t.Name,
			StartStatusID:     nodeStatus[t.StartNodeID],
			EndStatusID:       nodeStatus[t.EndNodeID],
			Type:              t.Type,
			ConditionStrategy: t.ConditionStrategy,
			Conditions:        conds,
		})
	}
	if !needFilter {
		return infos, nil
	}

	filtered, err := p.evaluator.FilterTransforms(ctx, serviceCode, instanceID, infos)
	if err != nil {
		p.logger.Error("transform filter call failed, offering no transforms",
			"organization_id", orgID, "state_machine_id", machineID, "instance_id", instanceID, "error", err)
		p.metrics.filterFallback(ctx)
		return []*models.TransformInfo{}, nil
	}
	if filtered == nil {
		filtered = []*models.TransformInfo{}
	}
	return filtered, nil
}

// QueryInitTransform returns the machine's init transform with its configs.
func (p *Pipeline) QueryInitTransform(ctx context.Context, orgID, machineID int64) (*models.TransformDetail, error) {
	transforms, err := p.store.ListTransforms(ctx, orgID, machineID)
	if err != nil {
		return nil, err
	}
	for _, t := range transforms {
		if t.Type == models.TransformTypeInit {
			return p.resolver.Detail(ctx, orgID, t)
		}
	}
	return nil, fmt.Errorf("state machine %d has no init transform: %w", machineID, ErrNotFound)
}

// QueryInitStatusID returns the status bound to the machine's init node. Machines
// with no locally deployed nodes are looked up in the directory.
func (p *Pipeline) QueryInitStatusID(ctx context.Context, orgID, machineID int64) (int64, error) {
	nodes, err := p.store.ListNodes(ctx, orgID, machineID)
	if err != nil {
		return 0, err
	}
	for _, n := range nodes {
		if n.Type == models.NodeTypeInit {
			return n.StatusID, nil
		}
	}
	if len(nodes) > 0 {
		return 0, fmt.Errorf("state machine %d has no init node: %w", machineID, ErrNotFound)
	}
	statusID, err := p.directory.QueryInitStatus(ctx, orgID, machineID)
	if err != nil {
		return 0, fmt.Errorf("query init status: %w: %v", ErrUpstream, err)
	}
	return statusID, nil
}
