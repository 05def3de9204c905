package model

import "time"

// RunStatus represents the lifecycle state of one execution.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusStopped   RunStatus = "stopped"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusError     RunStatus = "error"
)

// String returns the string representation of the status.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusPaused, StatusStopped, StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the run can no longer make progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// PipelineState is the single mutable record scoped to one run. The
// orchestrator owns it exclusively for the duration of the run; it is never
// shared across concurrent runs.
type PipelineState struct {
	UserInput         map[string]any        `json:"user_input"`
	NodeOutputs       map[string]NodeOutput `json:"node_outputs"`
	LastNodeOutput    *NodeOutput           `json:"last_node_output,omitempty"`
	StructuralOutputs map[string]NodeOutput `json:"structural_outputs,omitempty"`
	ExecutionUser     string                `json:"execution_user,omitempty"`

	// StagedPrompt holds a follow-on prompt staged by a condition action
	// (generate_content / generate_image) for the next generating node.
	StagedPrompt string `json:"staged_prompt,omitempty"`

	// SkipToNodeID redirects the next scheduled node when a condition
	// resolves a skip_to / skip_to_output action.
	SkipToNodeID string `json:"skip_to_node_id,omitempty"`
}

// NewPipelineState creates an empty state for a fresh run.
func NewPipelineState(userInput map[string]any, executionUser string) *PipelineState {
	return &PipelineState{
		UserInput:         userInput,
		NodeOutputs:       make(map[string]NodeOutput),
		StructuralOutputs: make(map[string]NodeOutput),
		ExecutionUser:     executionUser,
	}
}

// SetOutput records a node's output. The output becomes visible to the next
// node and, if it carries structure-editing permission, to the structural
// subset used by the content compiler.
func (p *PipelineState) SetOutput(nodeID string, out NodeOutput) {
	p.NodeOutputs[nodeID] = out
	p.LastNodeOutput = &out
	if out.Metadata.Permissions.CanEditStructure {
		p.StructuralOutputs[nodeID] = out
	}
}

// RederiveStructural rebuilds the structural-output subset from NodeOutputs.
// Used after a resume where only NodeOutputs were persisted.
func (p *PipelineState) RederiveStructural() {
	p.StructuralOutputs = make(map[string]NodeOutput)
	for id, out := range p.NodeOutputs {
		if out.Metadata.Permissions.CanEditStructure {
			p.StructuralOutputs[id] = out
		}
	}
}

// NodeError describes one node-level failure recorded on the execution record.
type NodeError struct {
	NodeID   string    `json:"node_id"`
	NodeName string    `json:"node_name,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Checkpoint is a durable snapshot captured on first failure, merged into
// the execution record, and deleted after a successful resume.
type Checkpoint struct {
	FailedAtNodeID   string                `json:"failed_at_node_id"`
	NodeOutputs      map[string]NodeOutput `json:"node_outputs"`
	CompletedNodeIDs []string              `json:"completed_node_ids"`
	UserInput        map[string]any        `json:"user_input"`
	ExecutionUser    string                `json:"execution_user,omitempty"`
	Timestamp        time.Time             `json:"timestamp"`
}

// ExecutionRecord is the durable view of one run's lifecycle.
type ExecutionRecord struct {
	ID               string      `json:"id"`
	EngineID         string      `json:"engine_id,omitempty"`
	Status           RunStatus   `json:"status"`
	CurrentNodeID    string      `json:"current_node_id,omitempty"`
	CompletedNodeIDs []string    `json:"completed_node_ids,omitempty"`
	Errors           []NodeError `json:"errors,omitempty"`
	Checkpoint       *Checkpoint `json:"checkpoint,omitempty"`

	// StopRequested is the durable out-of-process stop signal. The
	// orchestrator polls it before every node.
	StopRequested bool `json:"stop_requested,omitempty"`

	// Resumable tells the caller whether a retry is safe, as opposed to
	// having to start over.
	Resumable bool `json:"resumable,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordUpdate is a partial update merged into an ExecutionRecord by the
// store. Nil fields are left untouched so concurrent concerns writing
// disjoint fields never clobber each other.
type RecordUpdate struct {
	Status           *RunStatus  `json:"status,omitempty"`
	CurrentNodeID    *string     `json:"current_node_id,omitempty"`
	CompletedNodeIDs []string    `json:"completed_node_ids,omitempty"`
	AppendErrors     []NodeError `json:"append_errors,omitempty"`
	Checkpoint       *Checkpoint `json:"checkpoint,omitempty"`
	ClearCheckpoint  bool        `json:"clear_checkpoint,omitempty"`
	StopRequested    *bool       `json:"stop_requested,omitempty"`
	Resumable        *bool       `json:"resumable,omitempty"`
}

// Apply merges the update into the record in place.
func (u *RecordUpdate) Apply(rec *ExecutionRecord) {
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.CurrentNodeID != nil {
		rec.CurrentNodeID = *u.CurrentNodeID
	}
	if u.CompletedNodeIDs != nil {
		rec.CompletedNodeIDs = u.CompletedNodeIDs
	}
	if len(u.AppendErrors) > 0 {
		rec.Errors = append(rec.Errors, u.AppendErrors...)
	}
	if u.Checkpoint != nil {
		rec.Checkpoint = u.Checkpoint
	}
	if u.ClearCheckpoint {
		rec.Checkpoint = nil
	}
	if u.StopRequested != nil {
		rec.StopRequested = *u.StopRequested
	}
	if u.Resumable != nil {
		rec.Resumable = *u.Resumable
	}
	rec.UpdatedAt = time.Now().UTC()
}
