// Package render turns a compiled document into export formats.
//
// The orchestrator only supplies the document and a format name; rendering
// details live behind the Renderer interface. Plain text and markdown are
// built in; binary formats (pdf, docx, epub) are external collaborators
// registered at startup.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quillworks/loom/internal/model"
)

// Options carries typography hints a renderer may honor or ignore.
type Options struct {
	FontFamily string `json:"font_family,omitempty"`
	FontSize   int    `json:"font_size,omitempty"`
	LineHeight string `json:"line_height,omitempty"`
}

// Renderer renders a compiled document into one format.
type Renderer interface {
	// Format is the name callers request ("txt", "markdown", ...).
	Format() string
	// ContentType is the MIME type of the rendered bytes.
	ContentType() string
	Render(doc *model.CompiledDocument, opts Options) ([]byte, error)
}

// Registry maps format names to renderers.
type Registry struct {
	renderers map[string]Renderer
}

// NewRegistry returns a registry preloaded with the built-in renderers.
func NewRegistry(extra ...Renderer) *Registry {
	r := &Registry{renderers: make(map[string]Renderer)}
	r.Register(&Text{})
	r.Register(&Markdown{})
	for _, ren := range extra {
		r.Register(ren)
	}
	return r
}

// Register adds a renderer, replacing any prior one for the same format.
func (r *Registry) Register(ren Renderer) {
	r.renderers[ren.Format()] = ren
}

// For returns the renderer for a format name.
func (r *Registry) For(format string) (Renderer, error) {
	ren, ok := r.renderers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("no renderer for format %q", format)
	}
	return ren, nil
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.renderers))
	for f := range r.renderers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Text renders the document as plain text.
type Text struct{}

func (*Text) Format() string      { return "txt" }
func (*Text) ContentType() string { return "text/plain; charset=utf-8" }

func (*Text) Render(doc *model.CompiledDocument, _ Options) ([]byte, error) {
	var b strings.Builder
	if doc.Structural.Foreword != "" {
		b.WriteString(doc.Structural.Foreword)
		b.WriteString("\n\n")
	}
	if doc.Structural.Introduction != "" {
		b.WriteString(doc.Structural.Introduction)
		b.WriteString("\n\n")
	}
	if doc.Structural.TableOfContents != "" {
		b.WriteString(doc.Structural.TableOfContents)
		b.WriteString("\n\n")
	}
	for _, ch := range doc.Chapters {
		if ch.Title != "" {
			fmt.Fprintf(&b, "Chapter %d: %s\n\n", ch.Number, ch.Title)
		} else {
			fmt.Fprintf(&b, "Chapter %d\n\n", ch.Number)
		}
		b.WriteString(ch.Content)
		b.WriteString("\n\n")
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), nil
}

// Markdown renders the document as markdown.
type Markdown struct{}

func (*Markdown) Format() string      { return "markdown" }
func (*Markdown) ContentType() string { return "text/markdown; charset=utf-8" }

func (*Markdown) Render(doc *model.CompiledDocument, _ Options) ([]byte, error) {
	var b strings.Builder
	if doc.Structural.Foreword != "" {
		b.WriteString("## Foreword\n\n")
		b.WriteString(doc.Structural.Foreword)
		b.WriteString("\n\n")
	}
	if doc.Structural.Introduction != "" {
		b.WriteString("## Introduction\n\n")
		b.WriteString(doc.Structural.Introduction)
		b.WriteString("\n\n")
	}
	if doc.Structural.TableOfContents != "" {
		b.WriteString("## Contents\n\n")
		b.WriteString(doc.Structural.TableOfContents)
		b.WriteString("\n\n")
	}
	for _, ch := range doc.Chapters {
		if ch.Title != "" {
			fmt.Fprintf(&b, "# Chapter %d: %s\n\n", ch.Number, ch.Title)
		} else {
			fmt.Fprintf(&b, "# Chapter %d\n\n", ch.Number)
		}
		b.WriteString(ch.Content)
		b.WriteString("\n\n")
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), nil
}
