package models

// Status is a workflow status owned by the state-machine directory.
type Status struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// StateMachineWithStatus is a machine together with its ordered status list.
// The first status is the machine's migration default.
type StateMachineWithStatus struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name,omitempty"`
	Statuses []*Status `json:"statuses"`
}

// StatusIDs returns the ids of the machine's statuses in order.
func (m *StateMachineWithStatus) StatusIDs() []int64 {
	ids := make([]int64, 0, len(m.Statuses))
	for _, s := range m.Statuses {
		ids = append(ids, s.ID)
	}
	return ids
}

// StateMachine is the directory's summary of a machine.
type StateMachine struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// NodeType distinguishes a machine's initial node from ordinary nodes.
type NodeType string

const (
	NodeTypeInit   NodeType = "init"
	NodeTypeCustom NodeType = "custom"
)

// Node is a workflow node of a deployed machine, bound to one status.
type Node struct {
	ID             int64    `json:"id"`
	OrganizationID int64    `json:"organization_id"`
	StateMachineID int64    `json:"state_machine_id"`
	StatusID       int64    `json:"status_id"`
	Type           NodeType `json:"type"`
}
