// Package client provides a transport-agnostic interface for the loom
// service and an HTTP/JSON implementation that talks to the loom REST API.
package client

import (
	"context"

	"github.com/quillworks/loom/internal/model"
)

// LoomClient is the interface that all loom CLI commands use to communicate
// with the loom server. It is implemented by HTTPClient (default) and can be
// backed by any transport.
type LoomClient interface {
	// Engine definitions
	CreateEngine(ctx context.Context, req *EngineRequest) (*model.Engine, error)
	GetEngine(ctx context.Context, id string) (*model.Engine, error)
	ListEngines(ctx context.Context, status string) ([]*model.Engine, error)
	UpdateEngine(ctx context.Context, id string, req *EngineRequest) (*model.Engine, error)
	DeleteEngine(ctx context.Context, id string) error

	// Runs
	StartRun(ctx context.Context, req *StartRunRequest) (*StartRunResponse, error)
	StartRunWait(ctx context.Context, req *StartRunRequest) (*model.RunResult, error)
	GetRun(ctx context.Context, id string) (*model.ExecutionRecord, error)
	GetResult(ctx context.Context, id string) (*model.RunResult, error)
	ListRuns(ctx context.Context, limit int) ([]*model.ExecutionRecord, error)
	PauseRun(ctx context.Context, id string) error
	ResumeRun(ctx context.Context, id, guidance string) error
	StopRun(ctx context.Context, id string) error

	// Events
	StreamEvents(ctx context.Context, topics []string, fn EventHandler) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// EventHandler receives one server-sent event at a time. The topic is the
// event's bus subject; data is the raw JSON payload.
type EventHandler func(topic string, data []byte)

// EngineRequest holds parameters for creating or replacing an engine.
type EngineRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status,omitempty"`
	Nodes       []model.Node `json:"nodes"`
	Edges       []model.Edge `json:"edges"`
	CreatedBy   string       `json:"created_by,omitempty"`
}

// StartRunRequest holds parameters for starting a run. Either EngineID or
// inline Nodes must be set.
type StartRunRequest struct {
	EngineID  string         `json:"engine_id,omitempty"`
	Nodes     []model.Node   `json:"nodes,omitempty"`
	Edges     []model.Edge   `json:"edges,omitempty"`
	UserInput map[string]any `json:"user_input,omitempty"`
	User      string         `json:"user,omitempty"`
	Formats   []string       `json:"formats,omitempty"`
}

// StartRunResponse is the response from an asynchronous StartRun.
type StartRunResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}
