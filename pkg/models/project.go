package models

import "time"

// ApplyType names the consuming product a project binds a scheme for.
type ApplyType string

const (
	ApplyTypeAgile   ApplyType = "agile"
	ApplyTypeTest    ApplyType = "test"
	ApplyTypeProgram ApplyType = "program"
)

// Valid reports whether a is a known apply type.
func (a ApplyType) Valid() bool {
	switch a {
	case ApplyTypeAgile, ApplyTypeTest, ApplyTypeProgram:
		return true
	}
	return false
}

// ProjectConfig binds a project to the scheme it uses for one apply type.
// A project has at most one scheme per apply type.
type ProjectConfig struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	ProjectID      int64     `json:"project_id"`
	SchemeID       int64     `json:"scheme_id"`
	ApplyType      ApplyType `json:"apply_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProjectConfigDetail is a project's schemes keyed by apply type, each rendered
// from its live generation.
type ProjectConfigDetail struct {
	ProjectID int64                     `json:"project_id"`
	Schemes   map[ApplyType]*SchemeView `json:"schemes"`
}

// ProjectTransform is a transform offered to an issue, with its end status
// resolved from the directory. A zero ID marks the stay-in-place entry.
type ProjectTransform struct {
	*TransformInfo
	EndStatus *Status `json:"end_status,omitempty"`
}
