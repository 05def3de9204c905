// Package engine runs compiled pipelines: it owns pipeline state, dispatches
// nodes by kind, tracks usage, and drives checkpoint, pause, resume and stop
// for long multi-node executions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillworks/loom/internal/checkpoint"
	"github.com/quillworks/loom/internal/compile"
	"github.com/quillworks/loom/internal/events"
	"github.com/quillworks/loom/internal/export"
	"github.com/quillworks/loom/internal/graph"
	"github.com/quillworks/loom/internal/ledger"
	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/perms"
	"github.com/quillworks/loom/internal/provider"
	"github.com/quillworks/loom/internal/render"
	"github.com/quillworks/loom/internal/sanitize"
	"github.com/quillworks/loom/internal/store"
)

// InputError indicates invalid caller input. Transport layers map this to
// HTTP 400.
type InputError string

func (e InputError) Error() string { return string(e) }

// RunRequest describes one execution.
type RunRequest struct {
	ExecutionID   string
	EngineID      string
	Nodes         []model.Node
	Edges         []model.Edge
	UserInput     map[string]any
	ExecutionUser string
	Formats       []string
}

// Engine executes pipelines. A single Engine serves many concurrent runs;
// each run's PipelineState is owned by exactly one call to Execute or
// Resume.
type Engine struct {
	store       store.Store
	providers   *provider.Registry
	resolver    perms.Resolver
	compiler    *compile.Compiler
	renderers   *render.Registry
	publisher   events.Publisher
	registry    *Registry
	checkpoints *checkpoint.Manager
	uploader    export.Uploader
	logger      *slog.Logger

	generateTimeout time.Duration
	previewAttempts int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithUploader enables deliverable upload to object storage.
func WithUploader(u export.Uploader) Option {
	return func(e *Engine) { e.uploader = u }
}

// WithResolver swaps the permission resolver.
func WithResolver(r perms.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithRenderers swaps the renderer registry.
func WithRenderers(r *render.Registry) Option {
	return func(e *Engine) { e.renderers = r }
}

// WithGenerateTimeout bounds a single provider call. Long-form generation
// legitimately runs for many minutes; the default is 30 minutes.
func WithGenerateTimeout(d time.Duration) Option {
	return func(e *Engine) { e.generateTimeout = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New returns an Engine backed by the given store, providers and publisher.
func New(s store.Store, providers *provider.Registry, publisher events.Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		providers:       providers,
		resolver:        perms.New(),
		compiler:        compile.New(),
		renderers:       render.NewRegistry(),
		publisher:       publisher,
		registry:        NewRegistry(),
		checkpoints:     checkpoint.NewManager(s),
		logger:          slog.Default(),
		generateTimeout: 30 * time.Minute,
		previewAttempts: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the run registry for control-signal wiring.
func (e *Engine) Runs() *Registry {
	return e.registry
}

// Pause asks a live run to pause before its next node.
func (e *Engine) Pause(executionID string) error {
	c, ok := e.registry.Get(executionID)
	if !ok {
		return fmt.Errorf("execution %q is not running", executionID)
	}
	c.RequestPause()
	return nil
}

// ResumeSignal releases a paused in-process run, optionally with guidance
// that biases the retried node's prompt. Runs paused in another process are
// resumed via Resume instead.
func (e *Engine) ResumeSignal(executionID, guidance string) error {
	c, ok := e.registry.Get(executionID)
	if !ok {
		return fmt.Errorf("execution %q is not running in this process", executionID)
	}
	c.Resume(guidance)
	return nil
}

// Stop requests a stop both in-process and durably, so the signal reaches
// the run even when it executes in a different process.
func (e *Engine) Stop(ctx context.Context, executionID string) error {
	if c, ok := e.registry.Get(executionID); ok {
		c.RequestStop()
	}
	requested := true
	err := e.store.MergeWriteRecord(ctx, executionID, &model.RecordUpdate{
		StopRequested: &requested,
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("record stop request: %w", err)
	}
	return nil
}

// Execute runs a pipeline from the beginning.
func (e *Engine) Execute(ctx context.Context, req RunRequest) (*model.RunResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	order, err := graph.Compile(req.Nodes, req.Edges)
	if err != nil {
		return nil, InputError(fmt.Sprintf("compile graph: %v", err))
	}

	now := time.Now().UTC()
	rec := &model.ExecutionRecord{
		ID:        req.ExecutionID,
		EngineID:  req.EngineID,
		Status:    model.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	state := model.NewPipelineState(sanitize.Map(req.UserInput), req.ExecutionUser)
	return e.run(ctx, req, order, state, 0, nil, "", false)
}

// Resume reloads an execution's checkpoint and re-enters the loop at the
// node that failed, so the failed node retries. Guidance, when non-empty,
// biases the retried node's prompt. After a successful resume the
// checkpoint is deleted.
func (e *Engine) Resume(ctx context.Context, req RunRequest, guidance string) (*model.RunResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	cp, err := e.checkpoints.Load(ctx, req.ExecutionID)
	if err != nil {
		return nil, err
	}

	order, err := graph.Compile(req.Nodes, req.Edges)
	if err != nil {
		return nil, InputError(fmt.Sprintf("compile graph: %v", err))
	}

	idx := graph.Index(order, cp.FailedAtNodeID)
	if idx < 0 {
		return nil, InputError(fmt.Sprintf("checkpointed node %q is not in the pipeline", cp.FailedAtNodeID))
	}

	running := model.StatusRunning
	if err := e.store.MergeWriteRecord(ctx, req.ExecutionID, &model.RecordUpdate{Status: &running}); err != nil {
		return nil, fmt.Errorf("mark record running: %w", err)
	}

	state := checkpoint.Restore(cp)
	e.publish(ctx, events.TopicRunResumed, events.RunResumed{
		ExecutionID: req.ExecutionID,
		NodeID:      cp.FailedAtNodeID,
	})
	return e.run(ctx, req, order, state, idx, cp.CompletedNodeIDs, guidance, true)
}

func validateRequest(req RunRequest) error {
	if req.ExecutionID == "" {
		return InputError("execution_id is required")
	}
	if len(req.Nodes) == 0 {
		return InputError("at least one node is required")
	}
	return nil
}

// run is the orchestrator loop. It owns state exclusively until it returns.
// The resumed flag is set by Resume, never inferred from indices: a
// checkpoint at the first node of the order carries no completed nodes but
// must still be cleared on completion.
func (e *Engine) run(ctx context.Context, req RunRequest, order []model.Node, state *model.PipelineState, startIdx int, completed []string, guidance string, resumed bool) (*model.RunResult, error) {
	controls, err := e.registry.Register(req.ExecutionID)
	if err != nil {
		return nil, InputError(err.Error())
	}
	defer e.registry.Deregister(req.ExecutionID)

	e.publish(ctx, events.TopicRunStarted, events.RunStarted{
		ExecutionID: req.ExecutionID,
		EngineID:    req.EngineID,
		NodeCount:   len(order),
	})

	// The ledger folds whatever outputs already exist, so resumed runs and
	// fresh runs accumulate identically.
	ledg := ledger.Recompute(state.NodeOutputs)

	var (
		document     *model.CompiledDocument
		deliverables []model.Deliverable
	)

	i := startIdx
	for i < len(order) {
		node := order[i]

		// Stop is checked before every node, via the in-process flag and
		// the durable out-of-process signal.
		if controls.StopRequested() || e.stopRequestedDurably(ctx, req.ExecutionID) {
			return e.finishStopped(ctx, req.ExecutionID, state, ledg, completed), nil
		}

		if controls.takePauseRequest() {
			g, ok := e.pauseAndWait(ctx, req.ExecutionID, node, state, completed, controls, "pause requested", nil)
			if !ok {
				return e.pausedResult(req.ExecutionID, node, state, ledg), nil
			}
			guidance = g
			resumed = true // a checkpoint was written and consumed in-process
			continue       // re-enter at the same index
		}

		e.publish(ctx, events.TopicNodeStarted, events.NodeStarted{
			ExecutionID: req.ExecutionID,
			NodeID:      node.ID,
			NodeName:    node.Label,
			Kind:        node.Kind.String(),
		})

		res, err := e.dispatch(ctx, req, node, order, state, guidance)
		guidance = "" // consumed by the node it was addressed to
		if err != nil {
			nodeErr := model.NodeError{
				NodeID:   node.ID,
				NodeName: node.Label,
				Message:  err.Error(),
				At:       time.Now().UTC(),
			}
			e.publish(ctx, events.TopicNodeFailed, events.NodeFailed{
				ExecutionID: req.ExecutionID,
				NodeID:      node.ID,
				Message:     err.Error(),
			})
			g, ok := e.pauseAndWait(ctx, req.ExecutionID, node, state, completed, controls, err.Error(), &nodeErr)
			if !ok {
				return e.pausedResult(req.ExecutionID, node, state, ledg), nil
			}
			guidance = g
			resumed = true
			continue // retry the same index; never silently advance past a failed node
		}

		state.SetOutput(node.ID, res.output)
		ledg.Add(res.output)
		completed = append(completed, node.ID)
		if res.document != nil {
			document = res.document
			deliverables = res.deliverables
		}

		current := node.ID
		if err := e.store.MergeWriteRecord(ctx, req.ExecutionID, &model.RecordUpdate{
			CurrentNodeID:    &current,
			CompletedNodeIDs: completed,
		}); err != nil {
			// Progress bookkeeping failing means a later resume cannot be
			// trusted. Treat like checkpoint persistence: fatal.
			return e.finishError(ctx, req.ExecutionID, state, ledg, fmt.Errorf("record progress: %w", err))
		}

		if res.output.Metadata.Skipped {
			e.publish(ctx, events.TopicNodeSkipped, events.NodeSkipped{
				ExecutionID: req.ExecutionID,
				NodeID:      node.ID,
				Reason:      res.output.Metadata.SkipReason,
			})
		} else {
			e.publish(ctx, events.TopicNodeCompleted, events.NodeCompleted{
				ExecutionID: req.ExecutionID,
				NodeID:      node.ID,
				NodeName:    node.Label,
				AIUsage:     res.output.AIUsage,
			})
		}

		if next := e.redirectIndex(res.action, order); next >= 0 {
			state.SkipToNodeID = ""
			i = next
			continue
		}
		i++
	}

	if resumed {
		if err := e.checkpoints.Clear(ctx, req.ExecutionID); err != nil {
			e.logger.Warn("clear checkpoint after resume", "execution_id", req.ExecutionID, "err", err)
		} else {
			e.publish(ctx, events.TopicCheckpointCleared, events.CheckpointCleared{ExecutionID: req.ExecutionID})
		}
	}

	done := model.StatusCompleted
	if err := e.store.MergeWriteRecord(ctx, req.ExecutionID, &model.RecordUpdate{Status: &done}); err != nil {
		return e.finishError(ctx, req.ExecutionID, state, ledg, fmt.Errorf("record completion: %w", err))
	}

	e.publish(ctx, events.TopicRunCompleted, events.RunCompleted{
		ExecutionID: req.ExecutionID,
		TokenUsage:  ledg.Totals(),
	})

	return &model.RunResult{
		ExecutionID: req.ExecutionID,
		Status:      model.StatusCompleted,
		NodeOutputs: state.NodeOutputs,
		Document:    document,
		Deliverable: deliverables,
		TokenUsage:  ledg.Totals(),
		TokenLedger: ledg.Entries(),
	}, nil
}

// pauseAndWait checkpoints the run, marks it paused, and blocks until an
// in-process resume signal or context cancellation. The second return is
// false when the caller should hand back a paused result instead of
// retrying. Checkpoint persistence failure is fatal and reported through
// the record's error status.
func (e *Engine) pauseAndWait(ctx context.Context, executionID string, node model.Node, state *model.PipelineState, completed []string, controls *Controls, reason string, nodeErr *model.NodeError) (string, bool) {
	if err := e.checkpoints.Save(ctx, executionID, node.ID, state, completed); err != nil {
		// A run whose checkpoint cannot be persisted cannot be safely
		// resumed later; surface a terminal error state, not paused.
		e.logger.Error("checkpoint persistence failed", "execution_id", executionID, "err", err)
		e.markError(ctx, executionID, err)
		return "", false
	}
	e.publish(ctx, events.TopicCheckpointSaved, events.CheckpointSaved{
		ExecutionID: executionID,
		NodeID:      node.ID,
	})

	paused := model.StatusPaused
	current := node.ID
	update := &model.RecordUpdate{Status: &paused, CurrentNodeID: &current}
	if nodeErr != nil {
		update.AppendErrors = []model.NodeError{*nodeErr}
	}
	if err := e.store.MergeWriteRecord(ctx, executionID, update); err != nil {
		e.logger.Error("record pause failed", "execution_id", executionID, "err", err)
		e.markError(ctx, executionID, err)
		return "", false
	}

	e.publish(ctx, events.TopicRunPaused, events.RunPaused{
		ExecutionID: executionID,
		NodeID:      node.ID,
		Reason:      reason,
	})
	e.logger.Info("run paused", "execution_id", executionID, "node", node.ID, "reason", reason)

	select {
	case guidance := <-controls.resumeSignal():
		running := model.StatusRunning
		if err := e.store.MergeWriteRecord(ctx, executionID, &model.RecordUpdate{Status: &running}); err != nil {
			e.logger.Error("record resume failed", "execution_id", executionID, "err", err)
			e.markError(ctx, executionID, err)
			return "", false
		}
		e.publish(ctx, events.TopicRunResumed, events.RunResumed{
			ExecutionID: executionID,
			NodeID:      node.ID,
		})
		return guidance, true
	case <-ctx.Done():
		// The caller is gone; the checkpoint stays for an out-of-process
		// resume.
		return "", false
	}
}

func (e *Engine) pausedResult(executionID string, node model.Node, state *model.PipelineState, ledg *ledger.Ledger) *model.RunResult {
	return &model.RunResult{
		ExecutionID:    executionID,
		Status:         model.StatusPaused,
		NodeOutputs:    state.NodeOutputs,
		TokenUsage:     ledg.Totals(),
		TokenLedger:    ledg.Entries(),
		FailedNodeID:   node.ID,
		FailedNodeName: node.Label,
		Resumable:      true,
	}
}

// finishStopped returns every output accumulated so far; stopping never
// discards generated content.
func (e *Engine) finishStopped(ctx context.Context, executionID string, state *model.PipelineState, ledg *ledger.Ledger, completed []string) *model.RunResult {
	stopped := model.StatusStopped
	if err := e.store.MergeWriteRecord(ctx, executionID, &model.RecordUpdate{Status: &stopped}); err != nil {
		e.logger.Warn("record stop failed", "execution_id", executionID, "err", err)
	}
	e.publish(ctx, events.TopicRunStopped, events.RunStopped{
		ExecutionID:    executionID,
		CompletedNodes: len(completed),
	})
	e.logger.Info("run stopped", "execution_id", executionID, "completed_nodes", len(completed))
	return &model.RunResult{
		ExecutionID: executionID,
		Status:      model.StatusStopped,
		Stopped:     true,
		NodeOutputs: state.NodeOutputs,
		TokenUsage:  ledg.Totals(),
		TokenLedger: ledg.Entries(),
	}
}

func (e *Engine) finishError(ctx context.Context, executionID string, state *model.PipelineState, ledg *ledger.Ledger, cause error) (*model.RunResult, error) {
	e.markError(ctx, executionID, cause)
	return &model.RunResult{
		ExecutionID: executionID,
		Status:      model.StatusError,
		NodeOutputs: state.NodeOutputs,
		TokenUsage:  ledg.Totals(),
		TokenLedger: ledg.Entries(),
	}, cause
}

func (e *Engine) markError(ctx context.Context, executionID string, cause error) {
	status := model.StatusError
	if err := e.store.MergeWriteRecord(ctx, executionID, &model.RecordUpdate{Status: &status}); err != nil {
		e.logger.Error("record error status failed", "execution_id", executionID, "err", err)
	}
	e.publish(ctx, events.TopicRunErrored, events.RunErrored{
		ExecutionID: executionID,
		Message:     cause.Error(),
	})
}

// stopRequestedDurably polls the durable record for an out-of-process stop.
// Read failures are logged, not fatal; the in-process flag still covers the
// common case.
func (e *Engine) stopRequestedDurably(ctx context.Context, executionID string) bool {
	rec, err := e.store.ReadRecord(ctx, executionID)
	if err != nil {
		e.logger.Warn("read stop signal", "execution_id", executionID, "err", err)
		return false
	}
	return rec.StopRequested
}

// redirectIndex resolves a condition action into the next loop index, or -1
// for no redirect.
func (e *Engine) redirectIndex(action *model.ConditionAction, order []model.Node) int {
	if action == nil {
		return -1
	}
	switch action.Type {
	case "skip_to":
		return graph.Index(order, action.Target)
	case "skip_to_output":
		for idx, n := range order {
			if n.Kind == model.KindOutput {
				return idx
			}
		}
	}
	return -1
}

func (e *Engine) publish(ctx context.Context, topic string, event any) {
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Warn("publish event", "topic", topic, "err", err)
	}
}
