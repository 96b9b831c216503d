package service

import (
	"sync"

	"tclab_control/internal/controller"
	"tclab_control/internal/models"
)

// Live event kinds.
const (
	LiveSample = "sample"
	LivePhase  = "phase"
	LiveRun    = "run"
)

const defaultLiveBuffer = 64

// LiveEvent is one message on the live stream.
type LiveEvent struct {
	Type   string           `json:"type"`
	RunID  string           `json:"run_id"`
	Phase  controller.Phase `json:"phase,omitempty"`
	Sample *models.Sample   `json:"sample,omitempty"`
	Run    *models.Run      `json:"run,omitempty"`
}

// Hub fans out live events. Publish never blocks: a subscriber whose buffer
// is full misses the event.
type Hub struct {
	mu   sync.Mutex
	subs map[chan LiveEvent]struct{}
	buf  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultLiveBuffer
	}
	return &Hub{subs: make(map[chan LiveEvent]struct{}), buf: buffer}
}

// Subscribe returns a channel of events and a func that unsubscribes and
// closes it. The func is safe to call more than once.
func (h *Hub) Subscribe() (<-chan LiveEvent, func()) {
	ch := make(chan LiveEvent, h.buf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room for it and reports how
// many got it.
func (h *Hub) Publish(ev LiveEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for ch := range h.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
