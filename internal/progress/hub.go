// Package progress carries per-analysis push events from the pipeline to
// streaming subscribers. Delivery is best-effort: events published with no
// subscriber, or to a subscriber that cannot keep up, are dropped. Nothing
// is persisted or replayed.
package progress

import (
	"sync"
	"time"
)

// EventType identifies the kind of a progress event.
type EventType string

const (
	EventLog                   EventType = "log"
	EventPartialExpertAnalysis EventType = "partial_expert_analysis"
	EventPartialYearScenario   EventType = "partial_year_scenario"
	EventPartialPhaseResult    EventType = "partial_phase_result"
)

// Event is one structured progress notification.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// LogPayload carries a free-form progress message.
type LogPayload struct {
	Message string `json:"message"`
}

// ExpertAnalysisPayload announces one completed (expert, year) analysis.
type ExpertAnalysisPayload struct {
	Expert          string    `json:"expert"`
	Year            int       `json:"year"`
	Content         string    `json:"content"`
	Recommendations []string  `json:"recommendations"`
	CompletedAt     time.Time `json:"completed_at"`
}

// YearScenarioPayload announces one completed per-year scenario synthesis.
type YearScenarioPayload struct {
	Year        int       `json:"year"`
	Content     string    `json:"content"`
	CompletedAt time.Time `json:"completed_at"`
}

// PhaseResultPayload announces a completed single-call phase.
type PhaseResultPayload struct {
	Phase       int       `json:"phase"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	CompletedAt time.Time `json:"completed_at"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than blocking the
// pipeline.
const subscriberBuffer = 64

// Hub fans events out to subscribers keyed by analysis ID.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for events about analysisID. The returned cancel
// function unregisters and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(analysisID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[analysisID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[analysisID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[analysisID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, analysisID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of analysisID without blocking.
func (h *Hub) Publish(analysisID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[analysisID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers for analysisID.
func (h *Hub) SubscriberCount(analysisID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[analysisID])
}
