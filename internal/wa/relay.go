package wa

import (
	"time"

	"wagate/internal/bus"
	"wagate/internal/qr"
	"wagate/internal/state"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// relay translates whatsmeow lifecycle events into tracker transitions.
// The tracker publishes the matching bus events itself, so everything
// downstream (websocket hub, reconnect supervisor) observes the same
// stream regardless of which client event produced it.
type relay struct {
	tracker *state.Tracker
	logger  *zap.Logger
}

func newRelay(tracker *state.Tracker, logger *zap.Logger) *relay {
	return &relay{tracker: tracker, logger: logger}
}

func (r *relay) handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		r.logger.Info("WhatsApp connected")
		r.tracker.MarkReady()
	case *events.Disconnected:
		r.logger.Warn("WhatsApp disconnected")
		r.tracker.MarkDisconnected("connection closed")
	case *events.LoggedOut:
		r.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		r.tracker.MarkAuthFailure(evt.Reason.String())
	case *events.StreamError:
		r.logger.Error("WhatsApp stream error", zap.String("code", evt.Code))
		r.tracker.MarkError("stream error: " + evt.Code)
	}
}

// relayQR drains the pairing channel. Codes pass through the tracker's
// emission guard so rapid re-offers do not flicker on the subscriber side.
func (a *Adapter) relayQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if !a.tracker.TryIssueQR() {
				continue
			}
			dataURL, err := qr.DataURL(item.Code)
			if err != nil {
				a.logger.Error("failed to encode qr code", zap.Error(err))
				continue
			}
			a.bus.Publish(bus.Event{Kind: bus.KindQR, Timestamp: time.Now(), Payload: dataURL})
		case "success":
			a.logger.Info("QR pairing succeeded")
		case "timeout":
			a.logger.Warn("QR pairing timed out")
			a.tracker.MarkAuthFailure("qr timeout")
		default:
			if item.Error != nil {
				a.logger.Error("QR pairing failed", zap.Error(item.Error))
				a.tracker.MarkAuthFailure(item.Error.Error())
			}
		}
	}
}
