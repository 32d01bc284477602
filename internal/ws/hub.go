package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"wagate/internal/bus"
	"wagate/internal/wa"
)

// frame is the wire shape of every message on the realtime channel, in
// both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type getContactsRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// subscriber is one connected realtime client. Outbound frames go
// through a buffered channel drained by a per-connection writer; a
// saturated subscriber misses frames rather than blocking the hub.
type subscriber struct {
	out chan outFrame
}

func (s *subscriber) push(f outFrame) {
	select {
	case s.out <- f:
	default:
	}
}

// Hub relays lifecycle events from the bus to every connected
// subscriber and answers per-subscriber contact listing requests.
// Broadcast is best-effort: one subscriber's failure never blocks the
// others.
type Hub struct {
	client wa.MessagingClient
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	cancel context.CancelFunc
}

// NewHub creates a hub relaying events for the given client.
func NewHub(client wa.MessagingClient, b *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		client: client,
		bus:    b,
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Start begins relaying session lifecycle events to subscribers.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("session.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				h.relay(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the relay loop. Connected subscribers stay connected but
// receive no further lifecycle events.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// relay maps a bus event onto the realtime wire vocabulary.
func (h *Hub) relay(evt bus.Event) {
	switch evt.Kind {
	case bus.KindQR:
		h.broadcast(outFrame{Event: "qr", Data: evt.Payload})
	case bus.KindReady:
		h.broadcast(outFrame{Event: "ready"})
	case bus.KindAuthFailure:
		h.broadcast(outFrame{Event: "auth_failure", Data: evt.Payload})
	case bus.KindDisconnected, bus.KindError:
		h.broadcast(outFrame{Event: "error", Data: evt.Payload})
	}
}

func (h *Hub) broadcast(f outFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.push(f)
	}
}

// SubscriberCount returns the number of connected realtime clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Handler upgrades the request to a websocket connection and serves it
// until the client goes away.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser dashboards connect from arbitrary origins.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	sub := &subscriber{out: make(chan outFrame, 32)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		_ = conn.CloseNow()
	}()

	// Writer: drains the subscriber's outbound queue.
	go func() {
		for {
			select {
			case f := <-sub.out:
				if err := wsjson.Write(ctx, conn, f); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Reader: handles inbound requests until the connection drops.
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return
		}
		switch f.Event {
		case "getContacts":
			h.handleGetContacts(ctx, sub, f.Data)
		default:
			h.logger.Debug("ignoring unknown realtime event", zap.String("event", f.Event))
		}
	}
}

// handleGetContacts answers a contact listing request. Replies, success
// or error, go to the requesting subscriber only.
func (h *Hub) handleGetContacts(ctx context.Context, sub *subscriber, raw json.RawMessage) {
	var req getContactsRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			sub.push(outFrame{Event: "error", Data: "malformed getContacts request"})
			return
		}
	}
	contacts, err := h.listContacts(ctx, req.Page, req.PageSize)
	if err != nil {
		h.logger.Warn("contact listing failed", zap.Error(err))
		sub.push(outFrame{Event: "error", Data: "failed to fetch contacts"})
		return
	}
	sub.push(outFrame{Event: "contactsList", Data: contacts})
}
