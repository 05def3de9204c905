package events

import (
	"context"

	"github.com/quillworks/loom/internal/model"
)

// Event topic constants
const (
	TopicRunStarted   = "loom.run.started"
	TopicRunPaused    = "loom.run.paused"
	TopicRunResumed   = "loom.run.resumed"
	TopicRunStopped   = "loom.run.stopped"
	TopicRunCompleted = "loom.run.completed"
	TopicRunErrored   = "loom.run.errored"

	TopicNodeStarted   = "loom.node.started"
	TopicNodeCompleted = "loom.node.completed"
	TopicNodeSkipped   = "loom.node.skipped"
	TopicNodeFailed    = "loom.node.failed"

	TopicCheckpointSaved   = "loom.checkpoint.saved"
	TopicCheckpointCleared = "loom.checkpoint.cleared"

	TopicEngineCreated = "loom.engine.created"
	TopicEngineUpdated = "loom.engine.updated"
	TopicEngineDeleted = "loom.engine.deleted"

	// Control topics carry signals addressed to a running execution,
	// possibly from a different process than the one executing it.
	TopicControlPause  = "loom.control.pause"
	TopicControlResume = "loom.control.resume"
	TopicControlStop   = "loom.control.stop"
)

// Event types

type RunStarted struct {
	ExecutionID string `json:"execution_id"`
	EngineID    string `json:"engine_id,omitempty"`
	NodeCount   int    `json:"node_count"`
}

type RunPaused struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Reason      string `json:"reason,omitempty"`
}

type RunResumed struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

type RunStopped struct {
	ExecutionID    string `json:"execution_id"`
	CompletedNodes int    `json:"completed_nodes"`
}

type RunCompleted struct {
	ExecutionID string            `json:"execution_id"`
	TokenUsage  model.TokenTotals `json:"token_usage"`
}

type RunErrored struct {
	ExecutionID string `json:"execution_id"`
	Message     string `json:"message"`
}

type NodeStarted struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	NodeName    string `json:"node_name,omitempty"`
	Kind        string `json:"kind"`
}

type NodeCompleted struct {
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeName    string         `json:"node_name,omitempty"`
	AIUsage     *model.AIUsage `json:"ai_usage,omitempty"`
}

type NodeSkipped struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Reason      string `json:"reason"`
}

type NodeFailed struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Message     string `json:"message"`
}

type CheckpointSaved struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

type CheckpointCleared struct {
	ExecutionID string `json:"execution_id"`
}

type EngineCreated struct {
	Engine *model.Engine `json:"engine"`
}

type EngineUpdated struct {
	Engine  *model.Engine  `json:"engine"`
	Changes map[string]any `json:"changes,omitempty"` // field name -> new value
}

type EngineDeleted struct {
	EngineID string `json:"engine_id"`
}

// ControlSignal is the payload for the loom.control.* topics. Guidance is
// only meaningful on resume, where it biases the retried node's prompt.
type ControlSignal struct {
	ExecutionID string `json:"execution_id"`
	Guidance    string `json:"guidance,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
