package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentKind tags which arm of the Content union is populated.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentChapters ContentKind = "chapters"
	ContentData     ContentKind = "structured"
)

// Chapter is one narrative section produced by a content-writer node.
type Chapter struct {
	Number  int    `json:"number"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Content is a tagged union over the payload shapes a node can produce:
// plain text, an ordered chapter list, or structured data. Exactly one arm
// is populated, selected by Kind.
type Content struct {
	Kind       ContentKind    `json:"kind"`
	Text       string         `json:"text,omitempty"`
	Chapters   []Chapter      `json:"chapters,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
}

// TextContent wraps plain text in a Content union.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// ChapterContent wraps a chapter list in a Content union.
func ChapterContent(chapters []Chapter) Content {
	return Content{Kind: ContentChapters, Chapters: chapters}
}

// DataContent wraps structured data in a Content union.
func DataContent(data map[string]any) Content {
	return Content{Kind: ContentData, Structured: data}
}

// Validate checks that exactly the tagged arm is populated.
func (c Content) Validate() error {
	switch c.Kind {
	case ContentText, ContentChapters, ContentData:
		return nil
	}
	return fmt.Errorf("unknown content kind %q", c.Kind)
}

// PlainText flattens the union to a single string for heuristics that only
// care about raw text (quality scoring, cleanup, word counts).
func (c Content) PlainText() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentChapters:
		var out string
		for i, ch := range c.Chapters {
			if i > 0 {
				out += "\n\n"
			}
			out += ch.Content
		}
		return out
	case ContentData:
		b, err := json.Marshal(c.Structured)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// AIUsage records what one provider call consumed.
type AIUsage struct {
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
	Words    int     `json:"words"`
	Model    string  `json:"model,omitempty"`
	Provider string  `json:"provider,omitempty"`
}

// OutputMetadata annotates a node output for downstream consumers.
type OutputMetadata struct {
	NodeID      string     `json:"node_id"`
	NodeName    string     `json:"node_name"`
	Permissions Permission `json:"permissions"`
	Timestamp   time.Time  `json:"timestamp"`

	// Title is a chapter/section title the handler attached explicitly.
	Title string `json:"title,omitempty"`

	// Skipped is set when the orchestrator bypassed the node and carried
	// its predecessor's content forward. SkipReason says why.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	// Degraded marks best-effort fallback content.
	Degraded bool `json:"degraded,omitempty"`
}

// NodeOutput is the immutable result of executing one node. Retries replace
// the whole record in PipelineState.NodeOutputs; they never patch it.
type NodeOutput struct {
	Kind     NodeKind       `json:"kind"`
	Content  Content        `json:"content"`
	Metadata OutputMetadata `json:"metadata"`
	AIUsage  *AIUsage       `json:"ai_usage,omitempty"`
}
