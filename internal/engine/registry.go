package engine

import (
	"fmt"
	"sync"
)

// Controls is the in-process signalling surface for one running execution.
// The orchestrator polls it between nodes; HTTP handlers and the NATS
// control subscriber write to it.
type Controls struct {
	mu         sync.Mutex
	stopped    bool
	pauseAsked bool
	resumeCh   chan string // carries optional resume guidance
}

func newControls() *Controls {
	return &Controls{resumeCh: make(chan string, 1)}
}

// RequestStop marks the run for stopping; observed before the next node.
func (c *Controls) RequestStop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// StopRequested reports whether an in-process stop has been requested.
func (c *Controls) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// RequestPause asks the run to pause before its next node.
func (c *Controls) RequestPause() {
	c.mu.Lock()
	c.pauseAsked = true
	c.mu.Unlock()
}

// takePauseRequest consumes a pending pause request.
func (c *Controls) takePauseRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	asked := c.pauseAsked
	c.pauseAsked = false
	return asked
}

// Resume releases a paused run. Guidance, when non-empty, biases the
// retried node's prompt. A second resume before the run observes the first
// is dropped rather than queued.
func (c *Controls) Resume(guidance string) {
	select {
	case c.resumeCh <- guidance:
	default:
	}
}

// resumeSignal is the channel a paused orchestrator blocks on.
func (c *Controls) resumeSignal() <-chan string {
	return c.resumeCh
}

// Registry tracks live executions so control signals can be addressed by
// execution id. Runs register on start and deregister on any terminal
// state; the map is never exposed directly.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Controls
}

// NewRegistry returns an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Controls)}
}

// Register adds a run and returns its controls. Registering an id twice is
// an error; one execution id maps to at most one live run.
func (r *Registry) Register(executionID string) (*Controls, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[executionID]; ok {
		return nil, fmt.Errorf("execution %q is already running", executionID)
	}
	c := newControls()
	r.runs[executionID] = c
	return c, nil
}

// Deregister removes a run once it reaches a terminal state.
func (r *Registry) Deregister(executionID string) {
	r.mu.Lock()
	delete(r.runs, executionID)
	r.mu.Unlock()
}

// Get returns the controls for a live run, if any.
func (r *Registry) Get(executionID string) (*Controls, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.runs[executionID]
	return c, ok
}

// Live returns the ids of all currently registered runs.
func (r *Registry) Live() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.runs))
	for id := range r.runs {
		out = append(out, id)
	}
	return out
}
