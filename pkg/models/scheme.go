// Package models defines the domain models for the workflow scheme service
package models

import (
	"time"
)

// SchemeStatus is the lifecycle status of a scheme.
type SchemeStatus string

const (
	SchemeStatusCreate SchemeStatus = "create"
	SchemeStatusActive SchemeStatus = "active"
	// SchemeStatusDraft marks an active scheme whose draft has unpublished edits.
	SchemeStatusDraft SchemeStatus = "draft"
)

// Valid reports whether s is a known lifecycle status.
func (s SchemeStatus) Valid() bool {
	switch s {
	case SchemeStatusCreate, SchemeStatusActive, SchemeStatusDraft:
		return true
	}
	return false
}

// DeployStatus tracks the asynchronous part of a publish.
type DeployStatus string

const (
	DeployStatusNone  DeployStatus = "none"
	DeployStatusDoing DeployStatus = "doing"
	DeployStatusDone  DeployStatus = "done"
)

// Generation selects one of the two parallel configuration collections.
type Generation string

const (
	Draft Generation = "draft"
	Live  Generation = "live"
)

// Valid reports whether g names a known generation.
func (g Generation) Valid() bool {
	return g == Draft || g == Live
}

// GenerationOf maps the is_draft flag used by callers to a Generation.
func GenerationOf(isDraft bool) Generation {
	if isDraft {
		return Draft
	}
	return Live
}

// Scheme is an organization-scoped mapping from issue types to state machines.
type Scheme struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Status         SchemeStatus `json:"status"`
	DeployStatus   DeployStatus `json:"deploy_status"`
	DeployProgress int          `json:"deploy_progress"`
	Version        int64        `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SchemeFilter narrows a scheme listing.
type SchemeFilter struct {
	Name string
}

// SchemeConfig is one (scheme, issue type) -> state machine edge in a generation.
// The default entry has IsDefault set and its IssueTypeID carries no meaning; every
// issue type without an explicit entry resolves to the default entry's machine.
type SchemeConfig struct {
	ID             int64 `json:"id"`
	OrganizationID int64 `json:"organization_id"`
	SchemeID       int64 `json:"scheme_id"`
	StateMachineID int64 `json:"state_machine_id"`
	IssueTypeID    int64 `json:"issue_type_id,omitempty"`
	IsDefault      bool  `json:"is_default"`
	Sequence       int   `json:"sequence"`
}

// ConfigInput is a caller-supplied draft edge for createConfig.
type ConfigInput struct {
	IssueTypeID int64 `json:"issue_type_id"`
	Sequence    int   `json:"sequence"`
}

// SchemeView is a scheme plus one generation's configuration grouped by machine.
type SchemeView struct {
	*Scheme
	Generation Generation          `json:"generation"`
	Machines   []*StateMachineView `json:"machines"`
}

// StateMachineView lists the issue types mapped onto one state machine.
// The default machine is always first and has IncludesUnassigned set.
type StateMachineView struct {
	StateMachineID     int64   `json:"state_machine_id"`
	IssueTypeIDs       []int64 `json:"issue_type_ids"`
	IncludesUnassigned bool    `json:"includes_unassigned"`
}
