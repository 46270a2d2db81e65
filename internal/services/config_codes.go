package services

import (
	"context"
	"fmt"
	"strings"

	"workflow-scheme/backend/internal/repository"
	"workflow-scheme/backend/pkg/models"
)

// ConfigCodeService keeps the registry of codes external services can evaluate.
type ConfigCodeService struct {
	store    repository.TransformStore
	resolver *TransformConfigResolver
	logger   Logger
}

// NewConfigCodeService creates a new ConfigCodeService.
func NewConfigCodeService(store repository.TransformStore, logger Logger) *ConfigCodeService {
	return &ConfigCodeService{store: store, resolver: NewTransformConfigResolver(store), logger: logger}
}

func parseKind(s string, allowEmpty bool) (models.ConfigKind, error) {
	if s == "" && allowEmpty {
		return "", nil
	}
	kind, ok := models.ParseConfigKind(strings.ToLower(s))
	if !ok {
		return "", fmt.Errorf("unknown config kind %q: %w", s, ErrValidation)
	}
	return kind, nil
}

// Register replaces every code service registered before with codes.
func (s *ConfigCodeService) Register(ctx context.Context, service string, codes []*models.ConfigCode) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service is required: %w", ErrValidation)
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c == nil || strings.TrimSpace(c.Code) == "" {
			return fmt.Errorf("config code is required: %w", ErrValidation)
		}
		kind, err := parseKind(string(c.Kind), false)
		if err != nil {
			return err
		}
		if seen[c.Code] {
			return fmt.Errorf("config code %q listed twice: %w", c.Code, ErrValidation)
		}
		seen[c.Code] = true
		c.Kind = kind
		c.Service = service
	}
	if err := s.store.ReplaceConfigCodes(ctx, service, codes); err != nil {
		return err
	}
	s.logger.Info("config codes registered", "service", service, "count", len(codes))
	return nil
}

// List returns registered codes, optionally restricted to one kind.
func (s *ConfigCodeService) List(ctx context.Context, kind string) ([]*models.ConfigCode, error) {
	k, err := parseKind(kind, true)
	if err != nil {
		return nil, err
	}
	return s.store.ListConfigCodes(ctx, k)
}

// ListUnconfigured returns the registered codes of kind not yet attached to a transform.
func (s *ConfigCodeService) ListUnconfigured(ctx context.Context, orgID, transformID int64, kind string) ([]*models.ConfigCode, error) {
	k, err := parseKind(kind, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetTransform(ctx, orgID, transformID); err != nil {
		return nil, err
	}
	attached, err := s.resolver.Resolve(ctx, orgID, transformID, k)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(attached))
	for _, c := range attached {
		used[c.Code] = true
	}
	codes, err := s.store.ListConfigCodes(ctx, k)
	if err != nil {
		return nil, err
	}
	out := []*models.ConfigCode{}
	for _, c := range codes {
		if !used[c.Code] {
			out = append(out, c)
		}
	}
	return out, nil
}
