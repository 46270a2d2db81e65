package services

import (
	"errors"

	"workflow-scheme/backend/internal/repository"
)

var (
	// ErrValidation marks a request rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrentModification means the scheme version moved or a deploy is in flight.
	ErrConcurrentModification = repository.ErrConflict
	ErrNotFound               = repository.ErrNotFound
	// ErrPersistence means a write did not affect the expected rows.
	ErrPersistence = repository.ErrPersistence
	// ErrRemoteEvaluation wraps any fault of a condition, validator, action or filter collaborator.
	ErrRemoteEvaluation = errors.New("remote evaluation failed")
	// ErrMissingTargetStatus means a post action's target node maps to no status.
	ErrMissingTargetStatus = errors.New("target node has no status")
	// ErrUpstream wraps collaborator failures on read paths.
	ErrUpstream = errors.New("collaborator call failed")
)
