package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quillworks/loom/internal/events"
)

const (
	sseRingSize     = 1000
	sseClientBuffer = 64
	sseKeepalive    = 15 * time.Second
)

type sseEvent struct {
	id    uint64
	topic string
	data  []byte
}

type sseClient struct {
	ch     chan sseEvent
	topics []string
}

// sseHub fans events out to connected SSE clients. A bounded ring of
// recent events supports Last-Event-ID replay after a reconnect.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	ring    []sseEvent
	nextID  uint64
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		nextID:  1,
	}
}

func (h *sseHub) register(topics []string) *sseClient {
	c := &sseClient{
		ch:     make(chan sseEvent, sseClientBuffer),
		topics: topics,
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unregister(c *sseClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.ch)
	}
	h.mu.Unlock()
}

func (h *sseHub) broadcast(topic string, data []byte) {
	h.mu.Lock()
	ev := sseEvent{id: h.nextID, topic: topic, data: data}
	h.nextID++
	h.ring = append(h.ring, ev)
	if len(h.ring) > sseRingSize {
		h.ring = h.ring[len(h.ring)-sseRingSize:]
	}
	for c := range h.clients {
		if !matchesAny(c.topics, topic) {
			continue
		}
		select {
		case c.ch <- ev:
		default:
			// Slow client; drop rather than stall the broadcast.
		}
	}
	h.mu.Unlock()
}

// replay returns buffered events newer than afterID that match the filter.
func (h *sseHub) replay(afterID uint64, topics []string) []sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sseEvent
	for _, ev := range h.ring {
		if ev.id > afterID && matchesAny(topics, ev.topic) {
			out = append(out, ev)
		}
	}
	return out
}

// matchesAny reports whether topic matches any of the subject filters.
// Filters use bus wildcard syntax: "*" matches one token, ">" matches
// the rest of the subject. An empty filter list matches everything.
func matchesAny(filters []string, topic string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if matchTopic(f, topic) {
			return true
		}
	}
	return false
}

func matchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fp := strings.Split(filter, ".")
	tp := strings.Split(topic, ".")
	for i, part := range fp {
		if part == ">" {
			return i < len(tp)
		}
		if i >= len(tp) {
			return false
		}
		if part != "*" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// handleEventStream serves GET /v1/events/stream. Clients may narrow the
// stream with ?topics=loom.node.completed,loom.run.> and resume a dropped
// connection with the standard Last-Event-ID header.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := s.hub.register(topics)
	defer s.hub.unregister(client)

	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		for _, ev := range s.hub.replay(lastID, topics) {
			writeSSEEvent(w, ev)
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-client.ch:
			if !ok {
				return
			}
			writeSSEEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev sseEvent) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.id, ev.topic, ev.data)
}

// Broadcaster mirrors every published event onto the SSE hub while
// forwarding it to the underlying publisher. Construct one, hand it to
// both the engine and the server, and connected dashboards see the same
// events the bus does.
type Broadcaster struct {
	hub  *sseHub
	next events.Publisher
}

func NewBroadcaster(next events.Publisher) *Broadcaster {
	return &Broadcaster{hub: newSSEHub(), next: next}
}

func (b *Broadcaster) Publish(ctx context.Context, topic string, event any) error {
	if data, err := json.Marshal(event); err == nil {
		b.hub.broadcast(topic, data)
	}
	return b.next.Publish(ctx, topic, event)
}

func (b *Broadcaster) Close() error {
	return b.next.Close()
}
