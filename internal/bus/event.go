package bus

import "time"

// Event kinds published by the gateway. Subscribers filter by prefix,
// so "session." matches every lifecycle event.
const (
	KindQR           = "session.qr"
	KindReady        = "session.ready"
	KindAuthFailure  = "session.auth_failure"
	KindDisconnected = "session.disconnected"
	KindError        = "session.error"

	KindSendAttempt = "delivery.attempt"
	KindSendFailed  = "delivery.failed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
