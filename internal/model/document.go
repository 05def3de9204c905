package model

// Section is one chapter of a compiled document.
type Section struct {
	Number  int    `json:"number"`
	Title   string `json:"title,omitempty"` // empty when no title could be resolved
	Content string `json:"content"`
	Words   int    `json:"words"`

	// SourceNodeID records which node produced the text.
	SourceNodeID string `json:"source_node_id,omitempty"`

	// Degraded marks a best-effort fallback section built when no node
	// produced writable content.
	Degraded bool `json:"degraded,omitempty"`
}

// Structural holds the front-matter contributed by structure-editing nodes.
// ChapterTitles is the canonical source of chapter titles and overrides
// titles extracted from chapter text.
type Structural struct {
	Foreword        string         `json:"foreword,omitempty"`
	Introduction    string         `json:"introduction,omitempty"`
	TableOfContents string         `json:"table_of_contents,omitempty"`
	ChapterTitles   map[int]string `json:"chapter_titles,omitempty"`
}

// CompiledDocument is the merged, permission-filtered output of a run.
type CompiledDocument struct {
	Chapters        []Section  `json:"chapters"`
	Structural      Structural `json:"structural"`
	TotalWords      int        `json:"total_words"`
	TotalCharacters int        `json:"total_characters"`
}

// Deliverable describes one rendered export of the compiled document.
type Deliverable struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type,omitempty"`
	Location    string `json:"location,omitempty"` // storage URL/key when uploaded
	Size        int    `json:"size,omitempty"`
}

// RunResult is the final shape returned to the caller. On stop or failure
// it carries whatever was completed.
type RunResult struct {
	ExecutionID string                `json:"execution_id"`
	Status      RunStatus             `json:"status"`
	Stopped     bool                  `json:"stopped,omitempty"`
	NodeOutputs map[string]NodeOutput `json:"node_outputs"`
	Document    *CompiledDocument     `json:"document,omitempty"`
	Deliverable []Deliverable         `json:"deliverables,omitempty"`
	TokenUsage  TokenTotals           `json:"token_usage"`
	TokenLedger []LedgerEntry         `json:"token_ledger,omitempty"`

	// FailedNodeID / FailedNodeName identify the failing node on pause or
	// error, alongside Resumable, so the caller can distinguish "retry
	// safely" from "start over".
	FailedNodeID   string `json:"failed_node_id,omitempty"`
	FailedNodeName string `json:"failed_node_name,omitempty"`
	Resumable      bool   `json:"resumable,omitempty"`
}

// TokenTotals is the aggregate AI usage for a run.
type TokenTotals struct {
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	TotalWords  int     `json:"total_words"`
}

// LedgerEntry is one node's contribution to the token ledger, in execution
// order.
type LedgerEntry struct {
	NodeID   string  `json:"node_id"`
	NodeName string  `json:"node_name,omitempty"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
	Words    int     `json:"words"`
	Model    string  `json:"model,omitempty"`
	Provider string  `json:"provider,omitempty"`
}
