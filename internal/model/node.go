package model

// NodeKind identifies what a node does when the orchestrator reaches it.
type NodeKind string

const (
	KindInput     NodeKind = "input"
	KindProcess   NodeKind = "process"
	KindPreview   NodeKind = "preview"
	KindCondition NodeKind = "condition"
	KindOutput    NodeKind = "output"
)

// String returns the string representation of the kind.
func (k NodeKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindInput, KindProcess, KindPreview, KindCondition, KindOutput:
		return true
	}
	return false
}

// Role classifies what a process node is allowed to do with the document.
// Well-known constants are provided below, but roles are extensible; the
// permission table decides what an unknown role may do (nothing).
type Role string

const (
	RoleContentWriter  Role = "content_writer"
	RoleEditor         Role = "editor"
	RoleOutliner       Role = "outliner"
	RoleWorldBuilder   Role = "world_builder"
	RolePlotter        Role = "plotter"
	RoleResearcher     Role = "researcher"
	RoleImageGenerator Role = "image_generator"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Position is the node's placement on the design canvas. The graph compiler
// uses it to recover the author's intended reading order.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AIConfig carries the generation settings a process node was authored with.
type AIConfig struct {
	Models       []string `json:"models,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	UserPrompt   string   `json:"user_prompt,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

// Enabled reports whether the node has any prompt configured, i.e. whether
// executing it will call an AI provider.
func (c *AIConfig) Enabled() bool {
	return c != nil && (c.SystemPrompt != "" || c.UserPrompt != "")
}

// Permission is the capability set attached to a node for one run.
// Derived once by the permission resolver; immutable afterwards.
type Permission struct {
	CanWriteContent  bool `json:"can_write_content"`
	CanEditStructure bool `json:"can_edit_structure"`
	CanProofRead     bool `json:"can_proof_read"`
}

// None reports whether the permission grants no capability at all.
func (p Permission) None() bool {
	return !p.CanWriteContent && !p.CanEditStructure && !p.CanProofRead
}

// Node is a unit of work in the execution graph. Immutable once the graph
// is compiled.
type Node struct {
	ID          string      `json:"id"`
	Kind        NodeKind    `json:"kind"`
	Label       string      `json:"label"`
	Role        Role        `json:"role,omitempty"`
	Position    Position    `json:"position"`
	AIConfig    *AIConfig   `json:"ai_config,omitempty"`
	Permissions *Permission `json:"permissions,omitempty"`

	// Condition is set only on condition-kind nodes.
	Condition *Condition `json:"condition,omitempty"`
}

// Edge is a directed dependency: Source must execute before Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Condition is a branch predicate attached to a condition-kind node.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`

	// PassAction / FailAction are resolved after evaluation.
	PassAction *ConditionAction `json:"pass_action,omitempty"`
	FailAction *ConditionAction `json:"fail_action,omitempty"`
}

// ConditionAction is the follow-on behavior a condition resolves to.
type ConditionAction struct {
	Type   string `json:"type"` // generate_content, generate_image, skip_to, skip_to_output, continue
	Target string `json:"target,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}
