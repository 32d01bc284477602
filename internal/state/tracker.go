package state

import (
	"sync"
	"time"

	"wagate/internal/bus"
)

// Snapshot is a point-in-time copy of the session flags.
type Snapshot struct {
	Connected bool
	QRIssued  bool
}

// Tracker owns the two flags describing the messaging client session:
// whether the client is authenticated and connected, and whether a login
// QR code has already been handed to subscribers. All mutation goes
// through the named transition methods; each transition publishes the
// matching lifecycle event on the bus.
//
// Invariant: QRIssued is cleared whenever Connected drops or an auth
// failure occurs, so at most one QR code is in flight per authentication
// attempt.
type Tracker struct {
	mu        sync.Mutex
	connected bool
	qrIssued  bool
	bus       *bus.Bus
}

// NewTracker creates a tracker with both flags false.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{bus: b}
}

// Snapshot returns the current flags.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{Connected: t.connected, QRIssued: t.qrIssued}
}

// Connected reports whether the client is authenticated and ready.
func (t *Tracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// MarkReady records a successful authentication.
func (t *Tracker) MarkReady() {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.publish(bus.KindReady, nil)
}

// MarkAuthFailure records an authentication failure and re-enables QR
// emission.
func (t *Tracker) MarkAuthFailure(reason string) {
	t.reset()
	t.publish(bus.KindAuthFailure, reason)
}

// MarkDisconnected records a connection loss and re-enables QR emission.
func (t *Tracker) MarkDisconnected(reason string) {
	t.reset()
	t.publish(bus.KindDisconnected, reason)
}

// MarkError records a client-level error. The session is treated as no
// longer usable until re-authentication, same as a disconnect.
func (t *Tracker) MarkError(errMsg string) {
	t.reset()
	t.publish(bus.KindError, errMsg)
}

// TryIssueQR applies the QR emission guard: a login code offer is
// accepted only while the session is neither connected nor already
// showing a code. Returns true when the caller should broadcast the code.
func (t *Tracker) TryIssueQR() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected || t.qrIssued {
		return false
	}
	t.qrIssued = true
	return true
}

func (t *Tracker) reset() {
	t.mu.Lock()
	t.connected = false
	t.qrIssued = false
	t.mu.Unlock()
}

func (t *Tracker) publish(kind string, payload any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
