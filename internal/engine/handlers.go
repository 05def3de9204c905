package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/provider"
)

// wordsPerChapter derives a chapter count from a requested word count when
// the user declared no chapter count.
const wordsPerChapter = 1500

// generate performs one bounded provider call for a node.
func (e *Engine) generate(ctx context.Context, node model.Node, prompt string) (*provider.Result, error) {
	if !node.AIConfig.Enabled() && prompt == "" {
		return nil, fmt.Errorf("node %q has no prompt configured", node.ID)
	}

	var models []string
	var system string
	maxTokens := 0
	temperature := 0.0
	if node.AIConfig != nil {
		models = node.AIConfig.Models
		system = node.AIConfig.SystemPrompt
		maxTokens = node.AIConfig.MaxTokens
		temperature = node.AIConfig.Temperature
	}
	modelID, err := e.providers.FirstModel(models)
	if err != nil {
		// Fail fast with a clear error when no configured provider serves
		// the requested models.
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, e.generateTimeout)
	defer cancel()
	return e.providers.Generate(genCtx, provider.Request{
		Prompt:       prompt,
		SystemPrompt: system,
		Model:        modelID,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	})
}

// buildPrompt assembles the prompt for a node: the authored prompt, any
// prompt staged by a condition action, and resume guidance for a retried
// node.
func buildPrompt(node model.Node, state *model.PipelineState, guidance string) string {
	var parts []string
	if node.AIConfig != nil && node.AIConfig.UserPrompt != "" {
		parts = append(parts, node.AIConfig.UserPrompt)
	}
	if state.StagedPrompt != "" {
		parts = append(parts, state.StagedPrompt)
	}
	if prev := previousText(state); prev != "" {
		parts = append(parts, "Existing draft:\n"+prev)
	}
	if guidance != "" {
		parts = append(parts, "Additional guidance: "+guidance)
	}
	return strings.Join(parts, "\n\n")
}

func previousText(state *model.PipelineState) string {
	if state.LastNodeOutput == nil {
		return ""
	}
	if state.LastNodeOutput.Kind == model.KindInput {
		return ""
	}
	return state.LastNodeOutput.Content.PlainText()
}

func usageOf(res *provider.Result) *model.AIUsage {
	return &model.AIUsage{
		Tokens:   res.Tokens,
		Cost:     res.Cost,
		Words:    len(strings.Fields(res.Text)),
		Model:    res.Model,
		Provider: res.Provider,
	}
}

// runSingleShot is the plain generation handler.
func (e *Engine) runSingleShot(ctx context.Context, node model.Node, perm model.Permission, state *model.PipelineState, guidance string) (*nodeResult, error) {
	prompt := buildPrompt(node, state, guidance)
	res, err := e.generate(ctx, node, prompt)
	if err != nil {
		return nil, err
	}
	state.StagedPrompt = ""

	return &nodeResult{output: model.NodeOutput{
		Kind:    node.Kind,
		Content: model.TextContent(res.Text),
		Metadata: model.OutputMetadata{
			NodeID:      node.ID,
			NodeName:    node.Label,
			Permissions: perm,
			Timestamp:   time.Now().UTC(),
		},
		AIUsage: usageOf(res),
	}}, nil
}

// runMultiChapter generates target chapters sequentially, one provider call
// per chapter, and aggregates usage across calls.
func (e *Engine) runMultiChapter(ctx context.Context, node model.Node, perm model.Permission, state *model.PipelineState, target int, guidance string) (*nodeResult, error) {
	base := buildPrompt(node, state, guidance)
	titles := structuralTitles(state)

	chapters := make([]model.Chapter, 0, target)
	usage := &model.AIUsage{}
	for c := 1; c <= target; c++ {
		prompt := fmt.Sprintf("%s\n\nWrite chapter %d of %d.", base, c, target)
		if title := titles[c]; title != "" {
			prompt += fmt.Sprintf(" The chapter title is %q.", title)
		}
		res, err := e.generate(ctx, node, prompt)
		if err != nil {
			return nil, fmt.Errorf("chapter %d: %w", c, err)
		}
		chapters = append(chapters, model.Chapter{
			Number:  c,
			Title:   titles[c],
			Content: res.Text,
		})
		usage.Tokens += res.Tokens
		usage.Cost += res.Cost
		usage.Words += len(strings.Fields(res.Text))
		usage.Model = res.Model
		usage.Provider = res.Provider
	}
	state.StagedPrompt = ""

	return &nodeResult{output: model.NodeOutput{
		Kind:    node.Kind,
		Content: model.ChapterContent(chapters),
		Metadata: model.OutputMetadata{
			NodeID:      node.ID,
			NodeName:    node.Label,
			Permissions: perm,
			Timestamp:   time.Now().UTC(),
		},
		AIUsage: usage,
	}}, nil
}

// runRefinement scores the existing text first and skips the AI call
// entirely when the score clears the threshold. An explicit cost-saving
// short-circuit.
func (e *Engine) runRefinement(ctx context.Context, node model.Node, perm model.Permission, state *model.PipelineState, guidance string) (*nodeResult, error) {
	existing := previousText(state)
	if score := qualityScore(existing); score >= qualityThreshold {
		return e.skipNode(node, perm, state,
			fmt.Sprintf("quality score %.2f at or above threshold %.2f", score, qualityThreshold)), nil
	}

	prompt := buildPrompt(node, state, guidance)
	if prompt == "" {
		prompt = "Proofread and refine the existing draft, preserving its structure and voice."
	} else {
		prompt += "\n\nProofread and refine the existing draft, preserving its structure and voice."
	}
	res, err := e.generate(ctx, node, prompt)
	if err != nil {
		return nil, err
	}
	state.StagedPrompt = ""

	return &nodeResult{output: model.NodeOutput{
		Kind:    node.Kind,
		Content: model.TextContent(res.Text),
		Metadata: model.OutputMetadata{
			NodeID:      node.ID,
			NodeName:    node.Label,
			Permissions: perm,
			Timestamp:   time.Now().UTC(),
		},
		AIUsage: usageOf(res),
	}}, nil
}

// runImage stages an image generation. The text provider produces the image
// description/reference; actual raster generation is an external concern.
func (e *Engine) runImage(ctx context.Context, node model.Node, perm model.Permission, state *model.PipelineState, guidance string) (*nodeResult, error) {
	prompt := buildPrompt(node, state, guidance)
	res, err := e.generate(ctx, node, prompt)
	if err != nil {
		return nil, err
	}
	state.StagedPrompt = ""

	return &nodeResult{output: model.NodeOutput{
		Kind: node.Kind,
		Content: model.DataContent(map[string]any{
			"image_prompt": prompt,
			"image_result": res.Text,
		}),
		Metadata: model.OutputMetadata{
			NodeID:      node.ID,
			NodeName:    node.Label,
			Permissions: perm,
			Timestamp:   time.Now().UTC(),
		},
		AIUsage: usageOf(res),
	}}, nil
}

// dispatchPreview generates a bounded number of attempts for human
// approval, carrying prior customer feedback into each next attempt.
func (e *Engine) dispatchPreview(ctx context.Context, node model.Node, state *model.PipelineState, guidance string) (*nodeResult, error) {
	perm := e.resolver.Resolve(node)
	feedback, _ := state.UserInput["customer_feedback"].(string)

	var lastErr error
	for attempt := 1; attempt <= e.previewAttempts; attempt++ {
		prompt := buildPrompt(node, state, guidance)
		if feedback != "" {
			prompt += "\n\nPrior customer feedback to address: " + feedback
		}
		if attempt > 1 && lastErr != nil {
			prompt += fmt.Sprintf("\n\n(Attempt %d of %d.)", attempt, e.previewAttempts)
		}
		res, err := e.generate(ctx, node, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		state.StagedPrompt = ""
		return &nodeResult{output: model.NodeOutput{
			Kind:    node.Kind,
			Content: model.TextContent(res.Text),
			Metadata: model.OutputMetadata{
				NodeID:      node.ID,
				NodeName:    node.Label,
				Permissions: perm,
				Timestamp:   time.Now().UTC(),
			},
			AIUsage: usageOf(res),
		}}, nil
	}
	return nil, fmt.Errorf("preview failed after %d attempts: %w", e.previewAttempts, lastErr)
}

// structuralTitles collects the canonical chapter-title map from structural
// outputs produced so far.
func structuralTitles(state *model.PipelineState) map[int]string {
	titles := make(map[int]string)
	for _, out := range state.StructuralOutputs {
		if out.Content.Kind != model.ContentData {
			continue
		}
		raw, ok := out.Content.Structured["chapter_titles"].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range raw {
			num, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			if title, ok := v.(string); ok && title != "" {
				titles[num] = title
			}
		}
	}
	return titles
}

// chapterTarget resolves the requested chapter count from user input: a
// declared chapter_count (including range strings like "6-8", resolved to
// the upper bound), or one derived from word_count. Zero means no
// multi-chapter intent.
func chapterTarget(state *model.PipelineState) int {
	if v, ok := state.UserInput["chapter_count"]; ok {
		if n := parseChapterCount(v); n > 0 {
			return n
		}
	}
	if v, ok := state.UserInput["word_count"]; ok {
		if words, ok := asInt(v); ok && words > 0 {
			n := words / wordsPerChapter
			if n < 1 {
				n = 1
			}
			return n
		}
	}
	return 0
}

var chapterRangeRe = regexp.MustCompile(`^\s*(\d+)\s*-\s*(\d+)\s*$`)

// parseChapterCount accepts numbers and range strings; "6-8" resolves to 8.
func parseChapterCount(v any) int {
	switch t := v.(type) {
	case string:
		if m := chapterRangeRe.FindStringSubmatch(t); m != nil {
			upper, _ := strconv.Atoi(m[2])
			return upper
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		if n, ok := asInt(v); ok {
			return n
		}
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}

// chaptersWritten counts chapter sections produced by writer nodes so far.
func chaptersWritten(state *model.PipelineState) int {
	n := 0
	for _, out := range state.NodeOutputs {
		if !out.Metadata.Permissions.CanWriteContent {
			continue
		}
		if out.Content.Kind == model.ContentChapters {
			n += len(out.Content.Chapters)
		}
	}
	return n
}
