package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/2beens/tableorder/internal/auth"
	"github.com/2beens/tableorder/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

const (
	EventReady = "ready"
	EventPing  = "ping"
)

// Hub fans order lifecycle events out to live, authenticated stream
// subscribers. Delivery is best-effort, at-most-once per subscriber per
// broadcast: a dead or unauthorized subscriber is pruned, never retried,
// and one broken connection never aborts the fan-out for the others.
type Hub struct {
	mutex       sync.Mutex
	subscribers map[*Subscriber]struct{}

	checker           auth.Checker
	heartbeatInterval time.Duration
	metrics           *metrics.Manager
}

func NewHub(
	checker auth.Checker,
	heartbeatInterval time.Duration,
	metrics *metrics.Manager,
) *Hub {
	return &Hub{
		subscribers:       make(map[*Subscriber]struct{}),
		checker:           checker,
		heartbeatInterval: heartbeatInterval,
		metrics:           metrics,
	}
}

// Register sends the handshake event and adds the subscriber to the live
// set. The caller must have validated the subscriber token already; a failed
// handshake write closes the subscriber right away.
func (h *Hub) Register(sub *Subscriber) {
	handshake, err := json.Marshal(map[string]any{
		"message": "stream ready",
		"now":     time.Now().UnixMilli(),
	})
	if err != nil {
		log.Errorf("event hub, marshal handshake: %s", err)
		sub.Close()
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := sub.send(EventReady, handshake); err != nil {
		log.Errorf("event hub, handshake send failed: %s", err)
		sub.Close()
		return
	}

	h.subscribers[sub] = struct{}{}
	h.metrics.GaugeStreamSubscribers.Set(float64(len(h.subscribers)))
	log.Debugf("event hub, subscriber registered, now: %d", len(h.subscribers))
}

// Unregister removes a subscriber on client-initiated disconnect
func (h *Hub) Unregister(sub *Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.remove(sub)
}

// Broadcast delivers the event to every live subscriber, re-validating each
// subscriber session first. Fan-out for one event completes before the next
// broadcast is processed, so each subscriber sees events in program order.
func (h *Hub) Broadcast(ctx context.Context, eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("event hub, marshal %s payload: %s", eventName, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for sub := range h.subscribers {
		if _, err := h.checker.Validate(ctx, sub.token); err != nil {
			log.Debugf("event hub, pruning subscriber with dead session")
			h.remove(sub)
			h.metrics.CounterPrunedSubscribers.Inc()
			continue
		}

		if err := sub.send(eventName, data); err != nil {
			log.Debugf("event hub, pruning subscriber, send failed: %s", err)
			h.remove(sub)
			h.metrics.CounterPrunedSubscribers.Inc()
		}
	}

	h.metrics.CounterEventsBroadcast.WithLabelValues(eventName).Inc()
}

// Run emits the periodic heartbeat until the context is done. The ping keeps
// transport intermediaries from timing the connections out and doubles as the
// session revalidation pass when no business events flow.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Broadcast(ctx, EventPing, map[string]int64{
				"now": time.Now().UnixMilli(),
			})
		}
	}
}

// callers must hold h.mutex
func (h *Hub) remove(sub *Subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	sub.Close()
	h.metrics.GaugeStreamSubscribers.Set(float64(len(h.subscribers)))
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	log.Debugf("event hub, closing %d subscribers ...", len(h.subscribers))
	for sub := range h.subscribers {
		h.remove(sub)
	}
}
