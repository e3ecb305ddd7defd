package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/keymend/keymend/internal/reconcile"
)

// eventHub fans reconcile progress events out to WebSocket watchers. Slow
// subscribers drop events rather than blocking the reconciler.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan reconcile.Event]struct{}
}

var hub = &eventHub{subs: make(map[chan reconcile.Event]struct{})}

func (h *eventHub) subscribe() chan reconcile.Event {
	ch := make(chan reconcile.Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan reconcile.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *eventHub) publish(ev reconcile.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PublishReconcileEvent is wired as the reconciler's OnEvent callback.
func PublishReconcileEvent(ev reconcile.Event) {
	hub.publish(ev)
}

// WatchReconcile handles GET /api/v1/reconcile/watch. It streams reconcile
// progress events to the client as JSON text frames until the client
// disconnects.
func WatchReconcile(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[watch] Failed to accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
