package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quillworks/loom/internal/compile"
	"github.com/quillworks/loom/internal/condition"
	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/perms"
	"github.com/quillworks/loom/internal/render"
)

// nodeResult is what one dispatched node hands back to the loop.
type nodeResult struct {
	output       model.NodeOutput
	action       *model.ConditionAction
	document     *model.CompiledDocument
	deliverables []model.Deliverable
}

// dispatch executes one node by kind. All node-level failures return an
// error for the loop to convert into a paused checkpoint; nothing below
// this point decides terminal state.
func (e *Engine) dispatch(ctx context.Context, req RunRequest, node model.Node, order []model.Node, state *model.PipelineState, guidance string) (*nodeResult, error) {
	switch node.Kind {
	case model.KindInput:
		return e.dispatchInput(node, state)
	case model.KindProcess:
		return e.dispatchProcess(ctx, node, state, guidance)
	case model.KindPreview:
		return e.dispatchPreview(ctx, node, state, guidance)
	case model.KindCondition:
		return e.dispatchCondition(node, order, state)
	case model.KindOutput:
		return e.dispatchOutput(ctx, req, node, state)
	default:
		return nil, fmt.Errorf("unknown node kind %q", node.Kind)
	}
}

// dispatchInput wraps the sanitized user input into an immutable envelope.
// Input handling always succeeds; an absent map is an empty envelope, never
// a node failure the loop would retry forever.
func (e *Engine) dispatchInput(node model.Node, state *model.PipelineState) (*nodeResult, error) {
	if state.UserInput == nil {
		state.UserInput = map[string]any{}
	}
	out := model.NodeOutput{
		Kind:    model.KindInput,
		Content: model.DataContent(map[string]any{"user_input": state.UserInput}),
		Metadata: model.OutputMetadata{
			NodeID:    node.ID,
			NodeName:  node.Label,
			Timestamp: time.Now().UTC(),
		},
	}
	return &nodeResult{output: out}, nil
}

// dispatchProcess resolves the node's permissions and branches by role.
func (e *Engine) dispatchProcess(ctx context.Context, node model.Node, state *model.PipelineState, guidance string) (*nodeResult, error) {
	perm := e.resolver.Resolve(node)
	role := perms.RoleFor(node)

	switch {
	case role == model.RoleImageGenerator:
		return e.runImage(ctx, node, perm, state, guidance)

	case role == model.RoleContentWriter:
		target := chapterTarget(state)
		if have := chaptersWritten(state); target > 1 && have >= target {
			// A duplicate writer node whose chapter target is already met
			// adds nothing; carry the predecessor forward.
			return e.skipNode(node, perm, state,
				fmt.Sprintf("chapter target %d already met", target)), nil
		}
		if target > 1 {
			return e.runMultiChapter(ctx, node, perm, state, target, guidance)
		}
		return e.runSingleShot(ctx, node, perm, state, guidance)

	case role == model.RoleEditor:
		return e.runRefinement(ctx, node, perm, state, guidance)

	default:
		return e.runSingleShot(ctx, node, perm, state, guidance)
	}
}

// dispatchCondition evaluates the predicate and applies the resolved action
// to pipeline state.
func (e *Engine) dispatchCondition(node model.Node, order []model.Node, state *model.PipelineState) (*nodeResult, error) {
	if node.Condition == nil {
		return nil, InputError(fmt.Sprintf("condition node %q has no condition", node.ID))
	}
	res, err := condition.Evaluate(node.Condition, state)
	if err != nil {
		return nil, fmt.Errorf("evaluate condition: %w", err)
	}

	action := condition.Action(node.Condition, res)
	if action != nil {
		switch action.Type {
		case "generate_content", "generate_image":
			state.StagedPrompt = action.Prompt
			action = nil // staged for the next generating node, no redirect
		case "skip_to", "skip_to_output":
			state.SkipToNodeID = action.Target
		case "continue", "":
			action = nil
		default:
			return nil, fmt.Errorf("unknown condition action %q", action.Type)
		}
	}

	out := model.NodeOutput{
		Kind: model.KindCondition,
		Content: model.DataContent(map[string]any{
			"field":       node.Condition.Field,
			"field_value": res.FieldValue,
			"passed":      res.Passed,
		}),
		Metadata: model.OutputMetadata{
			NodeID:    node.ID,
			NodeName:  node.Label,
			Timestamp: time.Now().UTC(),
		},
	}
	e.logger.Info("condition evaluated",
		"node", node.ID,
		"field", node.Condition.Field,
		"operator", node.Condition.Operator,
		"passed", res.Passed)
	return &nodeResult{output: out, action: action}, nil
}

// dispatchOutput compiles the document, renders each requested format, and
// packages one deliverable descriptor per format.
func (e *Engine) dispatchOutput(ctx context.Context, req RunRequest, node model.Node, state *model.PipelineState) (*nodeResult, error) {
	doc := e.compiler.Document(compile.OrderedOutputs(state))

	formats := req.Formats
	if len(formats) == 0 {
		formats = []string{"txt"}
	}

	var deliverables []model.Deliverable
	for _, format := range formats {
		ren, err := e.renderers.For(format)
		if err != nil {
			return nil, err
		}
		data, err := ren.Render(doc, render.Options{})
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		d := model.Deliverable{
			Format:      format,
			ContentType: ren.ContentType(),
			Size:        len(data),
		}
		if e.uploader != nil {
			location, err := e.uploader.Upload(ctx, req.ExecutionID, format, ren.ContentType(), data)
			if err != nil {
				return nil, fmt.Errorf("upload %s deliverable: %w", format, err)
			}
			d.Location = location
		}
		deliverables = append(deliverables, d)
	}

	out := model.NodeOutput{
		Kind: model.KindOutput,
		Content: model.DataContent(map[string]any{
			"chapters":    len(doc.Chapters),
			"total_words": doc.TotalWords,
			"formats":     formats,
		}),
		Metadata: model.OutputMetadata{
			NodeID:    node.ID,
			NodeName:  node.Label,
			Timestamp: time.Now().UTC(),
		},
	}
	return &nodeResult{output: out, document: doc, deliverables: deliverables}, nil
}

// skipNode returns the predecessor's content unchanged, with the skip
// recorded in metadata. Skips are never silent.
func (e *Engine) skipNode(node model.Node, perm model.Permission, state *model.PipelineState, reason string) *nodeResult {
	content := model.TextContent("")
	if state.LastNodeOutput != nil {
		content = state.LastNodeOutput.Content
	}
	e.logger.Info("node skipped", "node", node.ID, "reason", reason)
	return &nodeResult{output: model.NodeOutput{
		Kind:    node.Kind,
		Content: content,
		Metadata: model.OutputMetadata{
			NodeID:      node.ID,
			NodeName:    node.Label,
			Permissions: perm,
			Timestamp:   time.Now().UTC(),
			Skipped:     true,
			SkipReason:  reason,
		},
	}}
}
