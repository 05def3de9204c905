package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/quillworks/loom/internal/checkpoint"
	"github.com/quillworks/loom/internal/events"
	"github.com/quillworks/loom/internal/ledger"
	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/provider"
	"github.com/quillworks/loom/internal/store"
)

func testNode(id string, kind model.NodeKind, label string, x float64) model.Node {
	n := model.Node{
		ID:       id,
		Kind:     kind,
		Label:    label,
		Position: model.Position{X: x},
	}
	if kind == model.KindProcess || kind == model.KindPreview {
		n.AIConfig = &model.AIConfig{
			Models:     []string{"dev-model"},
			UserPrompt: "Work on the draft for " + label + ".",
		}
	}
	return n
}

func chainEdges(ids ...string) []model.Edge {
	edges := make([]model.Edge, 0, len(ids)-1)
	for i := 1; i < len(ids); i++ {
		edges = append(edges, model.Edge{Source: ids[i-1], Target: ids[i]})
	}
	return edges
}

func testEngine(t *testing.T, st store.Store) (*Engine, *provider.Scripted) {
	t.Helper()
	scripted := provider.NewScripted("dev", "dev-model")
	providers := provider.NewRegistry()
	providers.Register(scripted)
	return New(st, providers, &events.NoopPublisher{}), scripted
}

// strongProse builds text that clears the refinement quality threshold, so
// editor nodes skip their provider call.
func strongProse() string {
	para := `He ran across the courtyard and grabbed the gleaming rail. "Hold the gate!" she shouted. The tower looked silent against the golden sky. They raced onward without a word.`
	block := strings.TrimSpace(strings.Repeat(para+" ", 8))
	paras := make([]string, 6)
	for i := range paras {
		paras[i] = block
	}
	return strings.Join(paras, "\n\n")
}

func TestExecuteEndToEnd(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)
	scripted.Respond(
		provider.ScriptedResponse{Text: "The storm broke over the harbor."},
		provider.ScriptedResponse{Text: "By dawn the ships were gone."},
		provider.ScriptedResponse{Text: "The storm broke over the harbor. By dawn the ships were gone."},
	)

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-e2e",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			testNode("write", model.KindProcess, "Chapter Writer", 100),
			testNode("edit", model.KindProcess, "Proofread Pass", 200),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges:         chainEdges("in", "write", "edit", "out"),
		UserInput:     map[string]any{"topic": "storms", "chapter_count": 2},
		ExecutionUser: "ines",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}
	if len(res.NodeOutputs) != 4 {
		t.Fatalf("NodeOutputs = %d", len(res.NodeOutputs))
	}
	if res.Document == nil || len(res.Document.Chapters) != 2 {
		t.Fatalf("Document = %+v", res.Document)
	}
	if len(res.Deliverable) != 1 || res.Deliverable[0].Format != "txt" || res.Deliverable[0].Size == 0 {
		t.Fatalf("Deliverable = %+v", res.Deliverable)
	}

	// Two chapter calls plus the refinement of weak prose.
	calls := scripted.Calls()
	if len(calls) != 3 {
		t.Fatalf("provider calls = %d", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "chapter 1 of 2") || !strings.Contains(calls[1].Prompt, "chapter 2 of 2") {
		t.Fatalf("chapter prompts = %q / %q", calls[0].Prompt, calls[1].Prompt)
	}

	if res.TokenUsage.TotalTokens == 0 || len(res.TokenLedger) != 2 {
		t.Fatalf("TokenUsage = %+v ledger = %+v", res.TokenUsage, res.TokenLedger)
	}

	rec, err := st.ReadRecord(context.Background(), "run-e2e")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.Status != model.StatusCompleted || len(rec.CompletedNodeIDs) != 4 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestEditorSkipsStrongProse(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)
	scripted.Respond(provider.ScriptedResponse{Text: strongProse()})

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-skip",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			testNode("write", model.KindProcess, "Chapter Writer", 100),
			testNode("edit", model.KindProcess, "Proofread Pass", 200),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges:     chainEdges("in", "write", "edit", "out"),
		UserInput: map[string]any{"topic": "gates"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := len(scripted.Calls()); got != 1 {
		t.Fatalf("provider calls = %d, want only the writer", got)
	}
	edit := res.NodeOutputs["edit"]
	if !edit.Metadata.Skipped || !strings.Contains(edit.Metadata.SkipReason, "quality score") {
		t.Fatalf("edit metadata = %+v", edit.Metadata)
	}
	// The skip carries the writer's content forward untouched.
	if edit.Content.PlainText() != res.NodeOutputs["write"].Content.PlainText() {
		t.Fatal("skipped editor did not carry predecessor content")
	}
}

func TestDuplicateWriterSkippedAtChapterTarget(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-dup",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			testNode("write1", model.KindProcess, "Chapter Writer", 100),
			testNode("write2", model.KindProcess, "Chapter Writer Again", 200),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges:     chainEdges("in", "write1", "write2", "out"),
		UserInput: map[string]any{"chapter_count": 2},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := len(scripted.Calls()); got != 2 {
		t.Fatalf("provider calls = %d, want 2 chapters from the first writer", got)
	}
	second := res.NodeOutputs["write2"]
	if !second.Metadata.Skipped || !strings.Contains(second.Metadata.SkipReason, "chapter target") {
		t.Fatalf("write2 metadata = %+v", second.Metadata)
	}
}

func TestConditionSkipToOutput(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)

	cond := testNode("gate", model.KindCondition, "Genre Gate", 50)
	cond.Condition = &model.Condition{
		Field:      "genre",
		Operator:   "equals",
		Value:      "summary",
		PassAction: &model.ConditionAction{Type: "skip_to_output"},
	}

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-cond",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			cond,
			testNode("write", model.KindProcess, "Chapter Writer", 100),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges:     chainEdges("in", "gate", "write", "out"),
		UserInput: map[string]any{"genre": "summary"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}
	if len(scripted.Calls()) != 0 {
		t.Fatalf("provider calls = %d, want none after skip_to_output", len(scripted.Calls()))
	}
	if _, ok := res.NodeOutputs["write"]; ok {
		t.Fatal("writer executed despite skip_to_output")
	}
	if _, ok := res.NodeOutputs["out"]; !ok {
		t.Fatal("output node did not run")
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	st := store.NewMemory()
	e, _ := testEngine(t, st)

	var inputErr InputError
	_, err := e.Execute(context.Background(), RunRequest{Nodes: []model.Node{testNode("in", model.KindInput, "Input", 0)}})
	if !errors.As(err, &inputErr) {
		t.Fatalf("missing execution id: err = %v", err)
	}

	_, err = e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-cycle",
		Nodes: []model.Node{
			testNode("a", model.KindProcess, "A", 0),
			testNode("b", model.KindProcess, "B", 100),
		},
		Edges: []model.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
	})
	if !errors.As(err, &inputErr) {
		t.Fatalf("cycle: err = %v", err)
	}
}

// gatedProvider blocks each generation until the test releases it, so the
// test can inject control signals while a node is in flight.
type gatedProvider struct {
	inner   *provider.Scripted
	entered chan struct{}
	release chan struct{}
}

func newGated(inner *provider.Scripted) *gatedProvider {
	return &gatedProvider{inner: inner, entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedProvider) Name() string     { return g.inner.Name() }
func (g *gatedProvider) Models() []string { return g.inner.Models() }

func (g *gatedProvider) Generate(ctx context.Context, req provider.Request) (*provider.Result, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Generate(ctx, req)
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestStopPreservesPartialOutputs(t *testing.T) {
	st := store.NewMemory()
	gated := newGated(provider.NewScripted("dev", "dev-model"))
	providers := provider.NewRegistry()
	providers.Register(gated)
	e := New(st, providers, &events.NoopPublisher{})

	type runOut struct {
		res *model.RunResult
		err error
	}
	done := make(chan runOut, 1)
	go func() {
		res, err := e.Execute(context.Background(), RunRequest{
			ExecutionID: "run-stop",
			Nodes: []model.Node{
				testNode("in", model.KindInput, "Input", 0),
				testNode("write", model.KindProcess, "Chapter Writer", 100),
				testNode("edit", model.KindProcess, "Proofread Pass", 200),
				testNode("out", model.KindOutput, "Output", 300),
			},
			Edges:     chainEdges("in", "write", "edit", "out"),
			UserInput: map[string]any{"topic": "storms"},
		})
		done <- runOut{res, err}
	}()

	// Stop while the writer's provider call is in flight; it is observed
	// before the editor runs.
	waitSignal(t, gated.entered, "writer generation")
	if err := e.Stop(context.Background(), "run-stop"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(gated.release)

	out := <-done
	if out.err != nil {
		t.Fatalf("Execute: %v", out.err)
	}
	if out.res.Status != model.StatusStopped || !out.res.Stopped {
		t.Fatalf("result = %+v", out.res)
	}
	if _, ok := out.res.NodeOutputs["write"]; !ok {
		t.Fatal("writer output discarded on stop")
	}
	if _, ok := out.res.NodeOutputs["edit"]; ok {
		t.Fatal("editor ran after stop")
	}

	rec, _ := st.ReadRecord(context.Background(), "run-stop")
	if rec.Status != model.StatusStopped {
		t.Fatalf("record status = %s", rec.Status)
	}
}

func TestPauseThenResumeSignal(t *testing.T) {
	st := store.NewMemory()
	gated := newGated(provider.NewScripted("dev", "dev-model"))
	providers := provider.NewRegistry()
	providers.Register(gated)
	e := New(st, providers, &events.NoopPublisher{})

	done := make(chan *model.RunResult, 1)
	go func() {
		res, err := e.Execute(context.Background(), RunRequest{
			ExecutionID: "run-pause",
			Nodes: []model.Node{
				testNode("in", model.KindInput, "Input", 0),
				testNode("write", model.KindProcess, "Chapter Writer", 100),
				testNode("edit", model.KindProcess, "Proofread Pass", 200),
				testNode("out", model.KindOutput, "Output", 300),
			},
			Edges:     chainEdges("in", "write", "edit", "out"),
			UserInput: map[string]any{"topic": "storms"},
		})
		if err != nil {
			t.Errorf("Execute: %v", err)
		}
		done <- res
	}()

	waitSignal(t, gated.entered, "writer generation")
	if err := e.Pause("run-pause"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	gated.release <- struct{}{} // let the writer finish; pause lands before the editor

	// Wait for the run to reach paused state durably.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := st.ReadRecord(context.Background(), "run-pause")
		if err == nil && rec.Status == model.StatusPaused {
			if rec.Checkpoint == nil || rec.Checkpoint.FailedAtNodeID != "edit" {
				t.Fatalf("checkpoint = %+v", rec.Checkpoint)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run never paused")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := e.ResumeSignal("run-pause", "tighter prose"); err != nil {
		t.Fatalf("ResumeSignal: %v", err)
	}
	gated.release <- struct{}{} // editor generation

	res := <-done
	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}

	calls := gated.inner.Calls()
	if len(calls) != 2 {
		t.Fatalf("provider calls = %d", len(calls))
	}
	if !strings.Contains(calls[1].Prompt, "Additional guidance: tighter prose") {
		t.Fatalf("editor prompt missing guidance: %q", calls[1].Prompt)
	}
}

func TestResumeRetriesCheckpointedNode(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e, scripted := testEngine(t, st)

	nodes := []model.Node{
		testNode("in", model.KindInput, "Input", 0),
		testNode("write", model.KindProcess, "Chapter Writer", 100),
		testNode("edit", model.KindProcess, "Proofread Pass", 200),
		testNode("out", model.KindOutput, "Output", 300),
	}
	edges := chainEdges("in", "write", "edit", "out")

	// Seed the record and checkpoint as a prior process would have left
	// them after the editor failed.
	st.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-res", Status: model.StatusPaused})
	state := model.NewPipelineState(map[string]any{"topic": "storms"}, "ines")
	state.SetOutput("in", model.NodeOutput{
		Kind:    model.KindInput,
		Content: model.DataContent(map[string]any{"user_input": state.UserInput}),
		Metadata: model.OutputMetadata{
			NodeID: "in", NodeName: "Input", Timestamp: time.Now().UTC(),
		},
	})
	state.SetOutput("write", model.NodeOutput{
		Kind:    model.KindProcess,
		Content: model.TextContent("The storm broke over the harbor."),
		Metadata: model.OutputMetadata{
			NodeID: "write", NodeName: "Chapter Writer",
			Permissions: model.Permission{CanWriteContent: true},
			Timestamp:   time.Now().UTC(),
		},
		AIUsage: &model.AIUsage{Tokens: 40, Cost: 0.0004, Words: 6, Model: "dev-model", Provider: "dev"},
	})
	if err := checkpoint.NewManager(st).Save(ctx, "run-res", "edit", state, []string{"in", "write"}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	res, err := e.Resume(ctx, RunRequest{
		ExecutionID: "run-res",
		Nodes:       nodes,
		Edges:       edges,
	}, "expand the ending")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}
	calls := scripted.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want only the retried editor", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "Additional guidance: expand the ending") {
		t.Fatalf("retry prompt missing guidance: %q", calls[0].Prompt)
	}
	if !strings.Contains(calls[0].Prompt, "Existing draft:") {
		t.Fatalf("retry prompt lost prior draft: %q", calls[0].Prompt)
	}

	// Live accumulation across the resume matches a from-scratch recompute.
	recomputed := ledger.Recompute(res.NodeOutputs)
	if res.TokenUsage != recomputed.Totals() {
		t.Fatalf("TokenUsage = %+v, recomputed = %+v", res.TokenUsage, recomputed.Totals())
	}

	rec, _ := st.ReadRecord(ctx, "run-res")
	if rec.Status != model.StatusCompleted || rec.Checkpoint != nil || rec.Resumable {
		t.Fatalf("record after resume = %+v", rec)
	}
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e, _ := testEngine(t, st)
	st.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-none", Status: model.StatusFailed})

	_, err := e.Resume(ctx, RunRequest{
		ExecutionID: "run-none",
		Nodes:       []model.Node{testNode("in", model.KindInput, "Input", 0)},
	}, "")
	var noCP *checkpoint.ErrNoCheckpoint
	if !errors.As(err, &noCP) {
		t.Fatalf("err = %v, want ErrNoCheckpoint", err)
	}
}

func TestProcessNodeWithoutAIConfigPausesCleanly(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)
	scripted.Respond(provider.ScriptedResponse{Text: "The storm broke over the harbor."})

	// A process node carrying no ai_config is valid graph data; it must
	// land in a resumable pause, never crash the run.
	bare := model.Node{ID: "sum", Kind: model.KindProcess, Label: "Summary Generator", Position: model.Position{X: 200}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *model.RunResult, 1)
	go func() {
		res, err := e.Execute(ctx, RunRequest{
			ExecutionID: "run-bare",
			Nodes: []model.Node{
				testNode("in", model.KindInput, "Input", 0),
				testNode("write", model.KindProcess, "Chapter Writer", 100),
				bare,
				testNode("out", model.KindOutput, "Output", 300),
			},
			Edges:     chainEdges("in", "write", "sum", "out"),
			UserInput: map[string]any{"topic": "storms"},
		})
		if err != nil {
			t.Errorf("Execute: %v", err)
		}
		done <- res
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := st.ReadRecord(context.Background(), "run-bare")
		if err == nil && rec.Status == model.StatusPaused {
			if rec.Checkpoint == nil || rec.Checkpoint.FailedAtNodeID != "sum" {
				t.Fatalf("checkpoint = %+v", rec.Checkpoint)
			}
			if len(rec.Errors) == 0 || !strings.Contains(rec.Errors[0].Message, "no configured provider") {
				t.Fatalf("errors = %+v", rec.Errors)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run never paused")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	res := <-done
	if res.Status != model.StatusPaused || !res.Resumable || res.FailedNodeID != "sum" {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := res.NodeOutputs["write"]; !ok {
		t.Fatal("writer output discarded by the pause")
	}
}

func TestExecuteWithoutUserInputCompletes(t *testing.T) {
	st := store.NewMemory()
	e, _ := testEngine(t, st)

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-noinput",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			testNode("write", model.KindProcess, "Chapter Writer", 100),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges: chainEdges("in", "write", "out"),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}

	// Absent input is an empty envelope, not a retried node failure.
	in := res.NodeOutputs["in"]
	envelope, ok := in.Content.Structured["user_input"].(map[string]any)
	if !ok || len(envelope) != 0 {
		t.Fatalf("input envelope = %#v", in.Content.Structured["user_input"])
	}

	rec, _ := st.ReadRecord(context.Background(), "run-noinput")
	if rec.Status != model.StatusCompleted {
		t.Fatalf("record status = %s", rec.Status)
	}
}

func TestResumeClearsCheckpointAtFirstNode(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e, _ := testEngine(t, st)

	nodes := []model.Node{
		testNode("write", model.KindProcess, "Chapter Writer", 0),
		testNode("out", model.KindOutput, "Output", 100),
	}
	edges := chainEdges("write", "out")

	// The checkpointed node is the first of the compiled order, so no node
	// has completed yet; the checkpoint must still be consumed.
	st.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-first", Status: model.StatusPaused})
	state := model.NewPipelineState(map[string]any{"topic": "storms"}, "ines")
	if err := checkpoint.NewManager(st).Save(ctx, "run-first", "write", state, nil); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	res, err := e.Resume(ctx, RunRequest{ExecutionID: "run-first", Nodes: nodes, Edges: edges}, "")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}

	rec, _ := st.ReadRecord(ctx, "run-first")
	if rec.Checkpoint != nil || rec.Resumable {
		t.Fatalf("record kept its checkpoint after resume: %+v", rec)
	}
}

func TestResumeTwiceProducesSameDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e, scripted := testEngine(t, st)

	nodes := []model.Node{
		testNode("in", model.KindInput, "Input", 0),
		testNode("write", model.KindProcess, "Chapter Writer", 100),
		testNode("edit", model.KindProcess, "Proofread Pass", 200),
		testNode("out", model.KindOutput, "Output", 300),
	}
	edges := chainEdges("in", "write", "edit", "out")

	seed := func() {
		state := model.NewPipelineState(map[string]any{"topic": "storms"}, "ines")
		state.SetOutput("in", model.NodeOutput{
			Kind:    model.KindInput,
			Content: model.DataContent(map[string]any{"user_input": state.UserInput}),
			Metadata: model.OutputMetadata{
				NodeID: "in", NodeName: "Input", Timestamp: time.Now().UTC(),
			},
		})
		state.SetOutput("write", model.NodeOutput{
			Kind:    model.KindProcess,
			Content: model.TextContent("The storm broke over the harbor."),
			Metadata: model.OutputMetadata{
				NodeID: "write", NodeName: "Chapter Writer",
				Permissions: model.Permission{CanWriteContent: true},
				Timestamp:   time.Now().UTC(),
			},
		})
		if err := checkpoint.NewManager(st).Save(ctx, "run-twice", "edit", state, []string{"in", "write"}); err != nil {
			t.Fatalf("seed checkpoint: %v", err)
		}
	}

	st.CreateRecord(ctx, &model.ExecutionRecord{ID: "run-twice", Status: model.StatusPaused})
	req := RunRequest{ExecutionID: "run-twice", Nodes: nodes, Edges: edges}

	seed()
	scripted.Respond(provider.ScriptedResponse{Text: "The storm broke over the harbor, and held."})
	first, err := e.Resume(ctx, req, "")
	if err != nil {
		t.Fatalf("first Resume: %v", err)
	}

	seed()
	scripted.Respond(provider.ScriptedResponse{Text: "The storm broke over the harbor, and held."})
	second, err := e.Resume(ctx, req, "")
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}

	if first.Status != model.StatusCompleted || second.Status != model.StatusCompleted {
		t.Fatalf("statuses = %s / %s", first.Status, second.Status)
	}
	if !reflect.DeepEqual(first.Document, second.Document) {
		t.Fatalf("documents diverged:\nfirst:  %+v\nsecond: %+v", first.Document, second.Document)
	}
}

func TestPreviewCarriesCustomerFeedback(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-preview",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			testNode("prev", model.KindPreview, "Cover Preview", 100),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges:     chainEdges("in", "prev", "out"),
		UserInput: map[string]any{"customer_feedback": "less blue"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}

	calls := scripted.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "Prior customer feedback to address: less blue") {
		t.Fatalf("preview prompt missing feedback: %q", calls[0].Prompt)
	}
	if _, ok := res.NodeOutputs["prev"]; !ok {
		t.Fatal("preview output missing")
	}
}

func TestPreviewRetriesBoundedAttempts(t *testing.T) {
	st := store.NewMemory()
	e, scripted := testEngine(t, st)
	scripted.Respond(
		provider.ScriptedResponse{Err: errors.New("provider overloaded")},
		provider.ScriptedResponse{Err: errors.New("provider overloaded")},
		provider.ScriptedResponse{Text: "A lighthouse against a pale sky."},
	)

	res, err := e.Execute(context.Background(), RunRequest{
		ExecutionID: "run-preview-retry",
		Nodes: []model.Node{
			testNode("in", model.KindInput, "Input", 0),
			testNode("prev", model.KindPreview, "Cover Preview", 100),
			testNode("out", model.KindOutput, "Output", 300),
		},
		Edges:     chainEdges("in", "prev", "out"),
		UserInput: map[string]any{"topic": "lighthouses"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != model.StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}

	calls := scripted.Calls()
	if len(calls) != 3 {
		t.Fatalf("provider calls = %d, want one per attempt", len(calls))
	}
	if !strings.Contains(calls[2].Prompt, "(Attempt 3 of 3.)") {
		t.Fatalf("third attempt prompt = %q", calls[2].Prompt)
	}
	if got := res.NodeOutputs["prev"].Content.PlainText(); got != "A lighthouse against a pale sky." {
		t.Fatalf("preview content = %q", got)
	}
}
