package provider

import (
	"context"
	"strings"
	"sync"
)

// Scripted is a deterministic in-memory provider used by engine tests and
// local development. Responses are served in registration order; when the
// script runs out, a canned completion derived from the prompt is returned.
type Scripted struct {
	ProviderName string
	ModelIDs     []string
	CostPerToken float64

	mu        sync.Mutex
	responses []ScriptedResponse
	calls     []Request
}

// ScriptedResponse is one canned generation result.
type ScriptedResponse struct {
	Text string
	Err  error
}

// NewScripted returns a scripted provider serving the given models.
func NewScripted(name string, models ...string) *Scripted {
	return &Scripted{ProviderName: name, ModelIDs: models, CostPerToken: 0.00001}
}

// Respond appends canned responses to the script.
func (s *Scripted) Respond(responses ...ScriptedResponse) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
	return s
}

// Calls returns a copy of every request seen so far.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Scripted) Name() string {
	return s.ProviderName
}

func (s *Scripted) Models() []string {
	return append([]string(nil), s.ModelIDs...)
}

func (s *Scripted) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	var resp ScriptedResponse
	if len(s.responses) > 0 {
		resp = s.responses[0]
		s.responses = s.responses[1:]
	} else {
		resp = ScriptedResponse{Text: cannedCompletion(req.Prompt)}
	}
	s.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	tokens := len(strings.Fields(resp.Text)) * 4 / 3
	if tokens == 0 {
		tokens = 1
	}
	return &Result{
		Text:     resp.Text,
		Tokens:   tokens,
		Cost:     float64(tokens) * s.CostPerToken,
		Model:    req.Model,
		Provider: s.ProviderName,
	}, nil
}

func cannedCompletion(prompt string) string {
	head := prompt
	if len(head) > 60 {
		head = head[:60]
	}
	return "Generated text for: " + head
}
