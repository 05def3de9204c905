// Package server exposes the workflow engine over HTTP with an SSE
// event stream, and listens for control signals on the event bus.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quillworks/loom/internal/engine"
	"github.com/quillworks/loom/internal/events"
	"github.com/quillworks/loom/internal/idgen"
	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/provider"
	"github.com/quillworks/loom/internal/store"
)

// Server ties the HTTP surface to the engine, the store and the event bus.
type Server struct {
	store     store.Store
	engine    *engine.Engine
	publisher events.Publisher
	providers *provider.Registry
	logger    *slog.Logger
	hub       *sseHub

	mu      sync.Mutex
	results map[string]*model.RunResult
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a Server around an engine and its collaborators. The
// broadcaster must be the same one the engine publishes through, so that
// run and node events reach the SSE stream.
func New(st store.Store, eng *engine.Engine, b *Broadcaster, providers *provider.Registry, opts ...Option) *Server {
	s := &Server{
		store:     st,
		engine:    eng,
		publisher: b,
		providers: providers,
		logger:    slog.Default(),
		hub:       b.hub,
		results:   make(map[string]*model.RunResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// startRun launches a run in the background and caches its result.
func (s *Server) startRun(req engine.RunRequest) {
	go func() {
		result, err := s.engine.Execute(context.Background(), req)
		if err != nil {
			s.logger.Error("run failed", "execution_id", req.ExecutionID, "error", err)
		}
		if result != nil {
			s.storeResult(req.ExecutionID, result)
		}
	}()
}

// runAndWait executes a run synchronously on behalf of a waiting request.
func (s *Server) runAndWait(ctx context.Context, req engine.RunRequest) (*model.RunResult, error) {
	result, err := s.engine.Execute(ctx, req)
	if result != nil {
		s.storeResult(req.ExecutionID, result)
	}
	return result, err
}

func (s *Server) storeResult(executionID string, result *model.RunResult) {
	s.mu.Lock()
	s.results[executionID] = result
	s.mu.Unlock()
}

func (s *Server) publishEvent(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publish event", "topic", topic, "error", err)
	}
}

func (s *Server) result(executionID string) (*model.RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[executionID]
	return r, ok
}

// buildRunRequest resolves an engine definition into an executable request.
// Inline nodes take precedence over a stored engine id.
func (s *Server) buildRunRequest(ctx context.Context, in runRequestBody) (engine.RunRequest, error) {
	req := engine.RunRequest{
		ExecutionID:   in.ExecutionID,
		EngineID:      in.EngineID,
		Nodes:         in.Nodes,
		Edges:         in.Edges,
		UserInput:     in.UserInput,
		ExecutionUser: in.User,
		Formats:       in.Formats,
	}
	if req.ExecutionID == "" {
		id, err := idgen.NewRunID()
		if err != nil {
			return engine.RunRequest{}, fmt.Errorf("generate run id: %w", err)
		}
		req.ExecutionID = id
	}
	if len(req.Nodes) == 0 && in.EngineID != "" {
		eng, err := s.store.GetEngine(ctx, in.EngineID)
		if err != nil {
			return engine.RunRequest{}, err
		}
		req.Nodes = eng.Nodes
		req.Edges = eng.Edges
	}
	if len(req.Nodes) == 0 {
		return engine.RunRequest{}, engine.InputError("run requires an engine_id or inline nodes")
	}
	return req, nil
}

// StartControlListener subscribes to the control topics and forwards
// pause, resume and stop signals to the engine. Returns an unsubscribe
// func that tears down all three subscriptions.
func (s *Server) StartControlListener(sub events.Subscriber) (func(), error) {
	var cancels []func()
	cancelAll := func() {
		for _, c := range cancels {
			c()
		}
	}

	listen := func(topic string, handle func(events.ControlSignal)) error {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		cancels = append(cancels, cancel)
		go func() {
			for data := range ch {
				var sig events.ControlSignal
				if err := json.Unmarshal(data, &sig); err != nil {
					s.logger.Warn("bad control signal", "topic", topic, "error", err)
					continue
				}
				if sig.ExecutionID == "" {
					continue
				}
				handle(sig)
			}
		}()
		return nil
	}

	err := listen(events.TopicControlPause, func(sig events.ControlSignal) {
		if err := s.engine.Pause(sig.ExecutionID); err != nil {
			s.logger.Warn("pause signal ignored", "execution_id", sig.ExecutionID, "error", err)
		}
	})
	if err == nil {
		err = listen(events.TopicControlResume, func(sig events.ControlSignal) {
			if err := s.engine.ResumeSignal(sig.ExecutionID, sig.Guidance); err != nil {
				s.logger.Warn("resume signal ignored", "execution_id", sig.ExecutionID, "error", err)
			}
		})
	}
	if err == nil {
		err = listen(events.TopicControlStop, func(sig events.ControlSignal) {
			if err := s.engine.Stop(context.Background(), sig.ExecutionID); err != nil {
				s.logger.Warn("stop signal ignored", "execution_id", sig.ExecutionID, "error", err)
			}
		})
	}
	if err != nil {
		cancelAll()
		return nil, err
	}
	return cancelAll, nil
}
