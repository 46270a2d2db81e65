package services

import (
	"context"
	"fmt"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// TransformConfigResolver returns the configs attached to transforms.
type TransformConfigResolver struct {
	store repository.TransformStore
}

// NewTransformConfigResolver creates a new TransformConfigResolver.
func NewTransformConfigResolver(store repository.TransformStore) *TransformConfigResolver {
	return &TransformConfigResolver{store: store}
}

// Resolve returns a transform's configs of one kind in sequence order.
func (r *TransformConfigResolver) Resolve(ctx context.Context, orgID, transformID int64, kind models.ConfigKind) ([]*models.TransformConfig, error) {
	if _, ok := models.ParseConfigKind(string(kind)); !ok {
		return nil, fmt.Errorf("unknown config kind %q: %w", kind, ErrValidation)
	}
	configs, err := r.store.ListTransformConfigs(ctx, orgID, []int64{transformID}, kind)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*models.TransformConfig{}
	}
	return configs, nil
}

// ResolveMany groups configs of one kind by transform id.
func (r *TransformConfigResolver) ResolveMany(ctx context.Context, orgID int64, transformIDs []int64, kind models.ConfigKind) (map[int64][]*models.TransformConfig, error) {
	configs, err := r.store.ListTransformConfigs(ctx, orgID, transformIDs, kind)
	if err != nil {
		return nil, err
	}
	grouped := make(map[int64][]*models.TransformConfig, len(transformIDs))
	for _, c := range configs {
		grouped[c.TransformID] = append(grouped[c.TransformID], c)
	}
	return grouped, nil
}

// Detail returns a transform with all of its configs grouped by kind.
func (r *TransformConfigResolver) Detail(ctx context.Context, orgID int64, transform *models.Transform) (*models.TransformDetail, error) {
	configs, err := r.store.ListTransformConfigs(ctx, orgID, []int64{transform.ID}, "")
	if err != nil {
		return nil, err
	}
	d := &models.TransformDetail{
		Transform:  transform,
		Conditions: []*models.TransformConfig{},
		Validators: []*models.TransformConfig{},
		Triggers:   []*models.TransformConfig{},
		Actions:    []*models.TransformConfig{},
	}
	for _, c := range configs {
		switch c.Kind {
		case models.ConfigKindCondition:
			d.Conditions = append(d.Conditions, c)
		case models.ConfigKindValidator:
			d.Validators = append(d.Validators, c)
		case models.ConfigKindTrigger:
			d.Triggers = append(d.Triggers, c)
		case models.ConfigKindAction:
			d.Actions = append(d.Actions, c)
		}
	}
	return d, nil
}
