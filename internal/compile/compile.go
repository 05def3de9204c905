// Package compile merges node outputs into one structured document.
//
// Permission filtering happens here: nodes without content or structure
// capability ran, but their text is not narrative output and never reaches
// the document. Structure-editing nodes feed front-matter and the canonical
// chapter-title map; content-writing nodes feed chapters, with raw text
// split on chapter-boundary headings first.
package compile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quillworks/loom/internal/model"
)

// Compiler assembles compiled documents. The zero value uses the default
// cleanup transforms.
type Compiler struct {
	Transforms []Transform
}

// New returns a Compiler with the default cleanup pipeline.
func New() *Compiler {
	return &Compiler{}
}

// OrderedOutputs flattens a state's output map into execution order,
// using output timestamps with node id as tiebreaker. This keeps document
// assembly deterministic whether compiled live or after a resume.
func OrderedOutputs(state *model.PipelineState) []model.NodeOutput {
	outs := make([]model.NodeOutput, 0, len(state.NodeOutputs))
	for _, out := range state.NodeOutputs {
		outs = append(outs, out)
	}
	sort.SliceStable(outs, func(i, j int) bool {
		ti, tj := outs[i].Metadata.Timestamp, outs[j].Metadata.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return outs[i].Metadata.NodeID < outs[j].Metadata.NodeID
	})
	return outs
}

// Document merges outputs (in execution order) into a compiled document.
func (c *Compiler) Document(outputs []model.NodeOutput) *model.CompiledDocument {
	doc := &model.CompiledDocument{
		Structural: model.Structural{ChapterTitles: make(map[int]string)},
	}

	// Structural pass first: the title map must be complete before chapter
	// titles are resolved.
	for _, out := range outputs {
		if out.Metadata.Permissions.CanEditStructure {
			c.applyStructural(doc, out)
		}
	}

	nextNumber := 1
	for _, out := range outputs {
		perm := out.Metadata.Permissions
		if perm.CanEditStructure || !perm.CanWriteContent {
			// Structural nodes contribute front-matter only; nodes with
			// neither capability are excluded from the body entirely.
			continue
		}
		nextNumber = c.appendChapters(doc, out, nextNumber)
	}

	if len(doc.Chapters) == 0 {
		c.fallbackSection(doc, outputs)
	}

	for i := range doc.Chapters {
		doc.Chapters[i].Words = countWords(doc.Chapters[i].Content)
		doc.TotalWords += doc.Chapters[i].Words
		doc.TotalCharacters += len(doc.Chapters[i].Content)
	}
	if len(doc.Structural.ChapterTitles) == 0 {
		doc.Structural.ChapterTitles = nil
	}
	return doc
}

// applyStructural folds one structure-editing output into the front-matter.
func (c *Compiler) applyStructural(doc *model.CompiledDocument, out model.NodeOutput) {
	switch out.Content.Kind {
	case model.ContentData:
		data := out.Content.Structured
		if s, ok := data["foreword"].(string); ok && s != "" {
			doc.Structural.Foreword = s
		}
		if s, ok := data["introduction"].(string); ok && s != "" {
			doc.Structural.Introduction = s
		}
		if s, ok := data["table_of_contents"].(string); ok && s != "" {
			doc.Structural.TableOfContents = s
		}
		if titles, ok := data["chapter_titles"].(map[string]any); ok {
			for k, v := range titles {
				num, err := strconv.Atoi(k)
				if err != nil {
					continue
				}
				if title, ok := v.(string); ok && title != "" {
					doc.Structural.ChapterTitles[num] = title
				}
			}
		}
	default:
		text := Cleanup(out.Content.PlainText(), c.Transforms)
		if text == "" {
			return
		}
		// Chapter-title lines become canonical title-map entries.
		for _, m := range chapterHeadingRe.FindAllStringSubmatch(text, -1) {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if title := strings.TrimSpace(m[2]); title != "" {
				doc.Structural.ChapterTitles[num] = title
			}
		}
		label := strings.ToLower(out.Metadata.NodeName)
		switch {
		case strings.Contains(label, "foreword"):
			doc.Structural.Foreword = text
		case strings.Contains(label, "introduction") || strings.Contains(label, "intro"):
			doc.Structural.Introduction = text
		case strings.Contains(label, "contents") || strings.Contains(label, "toc") || strings.Contains(label, "outline"):
			doc.Structural.TableOfContents = text
		}
	}
}

// appendChapters splits one writable output into chapter sections and
// appends them, returning the next sequential chapter number.
func (c *Compiler) appendChapters(doc *model.CompiledDocument, out model.NodeOutput, nextNumber int) int {
	switch out.Content.Kind {
	case model.ContentChapters:
		for _, ch := range out.Content.Chapters {
			num := ch.Number
			if num <= 0 {
				num = nextNumber
			}
			body := Cleanup(ch.Content, c.Transforms)
			headingTitle := extractHeadingTitle(body)
			body = StripChapterHeading(body)
			if body == "" {
				continue
			}
			title := firstNonEmpty(ch.Title, headingTitle, out.Metadata.Title)
			doc.Chapters = append(doc.Chapters, c.section(doc, num, title, body, out))
			if num >= nextNumber {
				nextNumber = num + 1
			}
		}
	case model.ContentText:
		text := Cleanup(out.Content.Text, c.Transforms)
		for _, slice := range splitChapters(text) {
			num := slice.Number
			if num <= 0 {
				num = nextNumber
			}
			if slice.Body == "" && slice.Title == "" {
				continue
			}
			title := firstNonEmpty(slice.Title, out.Metadata.Title)
			doc.Chapters = append(doc.Chapters, c.section(doc, num, title, slice.Body, out))
			if num >= nextNumber {
				nextNumber = num + 1
			}
		}
	case model.ContentData:
		// A writable node that produced structured data contributes body
		// text only when it carries an explicit content field.
		text, _ := out.Content.Structured["content"].(string)
		text = Cleanup(text, c.Transforms)
		if text == "" {
			return nextNumber
		}
		doc.Chapters = append(doc.Chapters, c.section(doc, nextNumber, out.Metadata.Title, text, out))
		nextNumber++
	}
	return nextNumber
}

// section builds one Section, resolving the title by precedence: structural
// title map, then the title already resolved from text/metadata, then empty.
// A placeholder is never synthesized; exporters decide how to render an
// empty title.
func (c *Compiler) section(doc *model.CompiledDocument, num int, resolvedTitle, body string, out model.NodeOutput) model.Section {
	title := resolvedTitle
	if mapped, ok := doc.Structural.ChapterTitles[num]; ok && mapped != "" {
		title = mapped
	}
	return model.Section{
		Number:       num,
		Title:        title,
		Content:      body,
		SourceNodeID: out.Metadata.NodeID,
	}
}

// fallbackSection builds a best-effort single section from the first output
// with any text at all, marked degraded, rather than returning an empty
// document.
func (c *Compiler) fallbackSection(doc *model.CompiledDocument, outputs []model.NodeOutput) {
	for _, out := range outputs {
		text := Cleanup(out.Content.PlainText(), c.Transforms)
		if text == "" {
			continue
		}
		doc.Chapters = append(doc.Chapters, model.Section{
			Number:       1,
			Title:        out.Metadata.Title,
			Content:      text,
			SourceNodeID: out.Metadata.NodeID,
			Degraded:     true,
		})
		return
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// RenderTOC formats the chapter-title map as a table of contents when no
// structural node supplied one explicitly.
func RenderTOC(titles map[int]string) string {
	if len(titles) == 0 {
		return ""
	}
	nums := make([]int, 0, len(titles))
	for n := range titles {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var b strings.Builder
	for _, n := range nums {
		fmt.Fprintf(&b, "%d. %s\n", n, titles[n])
	}
	return b.String()
}
