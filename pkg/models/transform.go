package models

import "encoding/json"

// ConfigKind tags a transform configuration entry.
type ConfigKind string

const (
	ConfigKindCondition ConfigKind = "condition"
	ConfigKindValidator ConfigKind = "validator"
	ConfigKindTrigger   ConfigKind = "trigger"
	ConfigKindAction    ConfigKind = "action"
)

// ParseConfigKind validates a kind supplied by a caller.
func ParseConfigKind(s string) (ConfigKind, bool) {
	k := ConfigKind(s)
	switch k {
	case ConfigKindCondition, ConfigKindValidator, ConfigKindTrigger, ConfigKindAction:
		return k, true
	}
	return "", false
}

// TransformType classifies a transform.
type TransformType string

const (
	TransformTypeCustom TransformType = "custom"
	TransformTypeInit   TransformType = "init"
	// TransformTypeAll leaves every status of its machine.
	TransformTypeAll TransformType = "all"
)

// ConditionStrategy tells the condition evaluator how to combine results.
type ConditionStrategy string

const (
	ConditionStrategyAll ConditionStrategy = "all"
	ConditionStrategyOne ConditionStrategy = "one"
)

// Transform is a directed transition between two nodes of a machine.
type Transform struct {
	ID                int64             `json:"id"`
	OrganizationID    int64             `json:"organization_id"`
	StateMachineID    int64             `json:"state_machine_id"`
	Name              string            `json:"name"`
	StartNodeID       int64             `json:"start_node_id"`
	EndNodeID         int64             `json:"end_node_id"`
	Type              TransformType     `json:"type"`
	ConditionStrategy ConditionStrategy `json:"condition_strategy"`
}

// TransformConfig attaches one externally registered code to a transform.
type TransformConfig struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	TransformID    int64           `json:"transform_id"`
	Code           string          `json:"code"`
	Kind           ConfigKind      `json:"kind"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	Sequence       int             `json:"sequence"`
}

// ConfigCode is a code an external service registered as evaluable.
type ConfigCode struct {
	Code        string     `json:"code"`
	Service     string     `json:"service"`
	Kind        ConfigKind `json:"kind"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
}

// TransformInfo is a candidate transform offered to an instance.
type TransformInfo struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	StartStatusID     int64              `json:"start_status_id"`
	EndStatusID       int64              `json:"end_status_id"`
	Type              TransformType      `json:"type"`
	ConditionStrategy ConditionStrategy  `json:"condition_strategy"`
	Conditions        []*TransformConfig `json:"conditions"`
}

// TransformDetail is a transform with its configs grouped by kind.
type TransformDetail struct {
	*Transform
	Conditions []*TransformConfig `json:"conditions"`
	Validators []*TransformConfig `json:"validators"`
	Triggers   []*TransformConfig `json:"triggers"`
	Actions    []*TransformConfig `json:"actions"`
}

// Input is the contextual payload sent to remote evaluators with a config batch.
type Input struct {
	InstanceID int64              `json:"instance_id"`
	Invoker    string             `json:"invoker,omitempty"`
	Input      json.RawMessage    `json:"input,omitempty"`
	Configs    []*TransformConfig `json:"configs"`
}

// ExecuteResult is the contract every remote evaluator returns. A nil Success
// means the evaluator did not produce a verdict.
type ExecuteResult struct {
	Success        *bool  `json:"success"`
	ResultStatusID *int64 `json:"result_status_id,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Succeeded reports whether the result carries an explicit success verdict.
func (r *ExecuteResult) Succeeded() bool {
	return r != nil && r.Success != nil && *r.Success
}

// NewExecuteResult builds a result with an explicit verdict.
func NewExecuteResult(success bool, message string) *ExecuteResult {
	return &ExecuteResult{Success: &success, ErrorMessage: message}
}

// ExecutionContext carries values between the guard and post-action stages of one
// transition. A transition engine calling the pipeline in process passes the same
// context to both stages and reads the last ExecuteResult back. Each HTTP stage is
// its own request, so the handlers pass nil.
type ExecutionContext struct {
	Variables map[string]any
}

const executeResultKey = "executeResult"

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{Variables: make(map[string]any)}
}

// SetExecuteResult stashes the latest stage result.
func (c *ExecutionContext) SetExecuteResult(r *ExecuteResult) {
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	c.Variables[executeResultKey] = r
}

// ExecuteResult returns the stashed result, if any.
func (c *ExecutionContext) ExecuteResult() *ExecuteResult {
	if c == nil {
		return nil
	}
	r, _ := c.Variables[executeResultKey].(*ExecuteResult)
	return r
}
