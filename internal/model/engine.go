package model

import "time"

// EngineStatus represents the publication state of an engine definition.
type EngineStatus string

const (
	EngineDraft    EngineStatus = "draft"
	EngineActive   EngineStatus = "active"
	EngineArchived EngineStatus = "archived"
)

// String returns the string representation of the status.
func (s EngineStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s EngineStatus) IsValid() bool {
	switch s {
	case EngineDraft, EngineActive, EngineArchived:
		return true
	}
	return false
}

// Engine is a stored pipeline definition: the nodes and edges a run
// executes, plus dashboard bookkeeping.
type Engine struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Status      EngineStatus `json:"status"`
	Nodes       []Node       `json:"nodes"`
	Edges       []Edge       `json:"edges"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
