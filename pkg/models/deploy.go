package models

// DeployDiff is the request-scoped difference between the draft and live status universes.
type DeployDiff struct {
	AddedStatusIDs    []int64 `json:"added_status_ids"`
	RemovedStatusIDs  []int64 `json:"removed_status_ids"`
	AddedMachineIDs   []int64 `json:"added_state_machine_ids"`
	RemovedMachineIDs []int64 `json:"removed_state_machine_ids"`
}

// SchemeChangeItem describes one issue type whose effective machine differs between generations.
type SchemeChangeItem struct {
	IssueTypeID       int64               `json:"issue_type_id"`
	OldStateMachineID int64               `json:"old_state_machine_id"`
	NewStateMachineID int64               `json:"new_state_machine_id"`
	IssueCount        int64               `json:"issue_count"`
	StatusChangeItems []*StatusChangeItem `json:"status_change_items"`
}

// StatusChangeItem pairs a status that disappears with its migration target in the new machine.
type StatusChangeItem struct {
	OldStatus *Status `json:"old_status"`
	NewStatus *Status `json:"new_status,omitempty"`
}

// ChangeNotification is the message handed to downstream services after a publish.
type ChangeNotification struct {
	EventID          string              `json:"event_id"`
	OrganizationID   int64               `json:"organization_id"`
	SchemeID         int64               `json:"scheme_id"`
	AddedStatusIDs   []int64             `json:"added_status_ids"`
	RemovedStatusIDs []int64             `json:"removed_status_ids"`
	ChangeItems      []*SchemeChangeItem `json:"change_items"`
}

// ImpactQuery asks the issue service how many issues a scheme change touches.
type ImpactQuery struct {
	SchemeID     int64   `json:"scheme_id"`
	IssueTypeIDs []int64 `json:"issue_type_ids"`
}
