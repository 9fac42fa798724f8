package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager fans domain events out to SSE connections, grouped by tenant.
// It implements events.Subscriber.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- []byte]struct{} // TenantID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for the tenant. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(tenantID string) (<-chan []byte, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, 16)
	if _, ok := sm.subscribers[tenantID]; !ok {
		sm.subscribers[tenantID] = make(map[chan<- []byte]struct{})
	}
	sm.subscribers[tenantID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[tenantID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, tenantID)
				}
			}
		})
	}
}

// Subscribers reports how many connections are open for the tenant.
func (sm *StreamManager) Subscribers(tenantID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[tenantID])
}

// Handle implements events.Subscriber.
func (sm *StreamManager) Handle(_ context.Context, evt domain.DomainEvent) error {
	msg, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	sm.Broadcast(evt.TenantID, msg)
	return nil
}

// Broadcast sends msg to every connection of the tenant without blocking.
func (sm *StreamManager) Broadcast(tenantID string, msg []byte) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[tenantID] {
		select {
		case ch <- msg:
		default:
			// Slow client.
			sm.logger.Warn("sse client buffer full, dropping event", "tenant", tenantID)
		}
	}
}

// SubscribeEvents handles GET /v1/events/{tenant}. The optional "types" query
// parameter is a comma separated list of event types to keep.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("streaming not supported by response writer")
		return
	}

	tenant := chi.URLParam(r, "tenant")
	var filter map[domain.EventType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		filter = make(map[domain.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			filter[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(tenant)
	defer cancel()
	s.logger.Debug("sse client connected", "tenant", tenant)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "tenant", tenant)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil {
				var head struct {
					Type domain.EventType `json:"type"`
				}
				if err := json.Unmarshal(msg, &head); err == nil && !filter[head.Type] {
					continue
				}
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
