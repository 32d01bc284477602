package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wagate/internal/bus"
	"wagate/internal/store"
	"wagate/internal/wa"
)

// Dispatcher turns logical send requests into timed delivery attempts
// against the messaging client.
//
// Bulk and future-dated sends are fire-and-forget: acceptance is
// acknowledged before any attempt fires, and per-recipient outcomes are
// observable only through logging and delivery.* bus events. Group and
// media sends are synchronous and report the true outcome.
type Dispatcher struct {
	client wa.MessagingClient
	db     *store.DB // journal for future-dated batches; nil disables persistence
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a dispatcher.
func New(client wa.MessagingClient, db *store.DB, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{client: client, db: db, bus: b, logger: logger}
}

// ScheduleBulk validates and normalizes the whole batch up front, then
// arms one timer per recipient: recipient i fires i*spacing after
// acceptance. Returns the number of scheduled attempts. The caller gets
// its answer before any attempt runs; a recipient's failure never
// affects the others.
func (d *Dispatcher) ScheduleBulk(numbers []string, message string, spacing time.Duration) (int, error) {
	if len(numbers) == 0 || message == "" {
		return 0, fmt.Errorf("%w: numbers and message are required", ErrInvalidRequest)
	}
	addrs, err := normalizeAll(numbers)
	if err != nil {
		return 0, err
	}

	for i, addr := range addrs {
		addr := addr
		time.AfterFunc(time.Duration(i)*spacing, func() {
			d.attempt(addr, message)
		})
	}
	return len(addrs), nil
}

// ScheduleAt validates the batch and arms a single timer: every
// recipient fires at the same instant, with no inter-recipient spacing.
// The batch is journalled so a daemon restart before the fire time does
// not lose it. Returns the batch ID.
func (d *Dispatcher) ScheduleAt(numbers []string, message string, at time.Time) (string, error) {
	if len(numbers) == 0 || message == "" {
		return "", fmt.Errorf("%w: numbers and message are required", ErrInvalidRequest)
	}
	if !at.After(time.Now()) {
		return "", fmt.Errorf("%w: timestamp must be in the future", ErrInvalidRequest)
	}
	addrs, err := normalizeAll(numbers)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if d.db != nil {
		if err := d.db.InsertSchedule(&store.Schedule{
			ID:         id,
			Recipients: addrs,
			Message:    message,
			FireAt:     at.UnixMilli(),
		}); err != nil {
			return "", fmt.Errorf("journal schedule: %w", err)
		}
	}

	d.armBatch(id, addrs, message, time.Until(at))
	return id, nil
}

// Rearm re-arms journalled batches after a restart. Past-due batches
// fire immediately.
func (d *Dispatcher) Rearm() error {
	if d.db == nil {
		return nil
	}
	pending, err := d.db.PendingSchedules()
	if err != nil {
		return fmt.Errorf("load pending schedules: %w", err)
	}
	for _, s := range pending {
		delay := time.Until(time.UnixMilli(s.FireAt))
		if delay < 0 {
			delay = 0
		}
		d.armBatch(s.ID, s.Recipients, s.Message, delay)
	}
	if len(pending) > 0 {
		d.logger.Info("re-armed journalled schedules", zap.Int("count", len(pending)))
	}
	return nil
}

func (d *Dispatcher) armBatch(id string, addrs []string, message string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		for _, addr := range addrs {
			d.attempt(addr, message)
		}
		if d.db != nil {
			if err := d.db.DeleteSchedule(id); err != nil {
				d.logger.Error("failed to remove fired schedule", zap.Error(err), zap.String("batch_id", id))
			}
		}
	})
}

// attempt performs one fire-and-forget send. Failures terminate here.
func (d *Dispatcher) attempt(addr, message string) {
	err := d.client.SendText(context.Background(), addr, message)
	if err != nil {
		d.logger.Error("send attempt failed", zap.Error(err), zap.String("to", addr))
		d.publish(bus.KindSendFailed, map[string]string{"to": addr, "error": err.Error()})
		return
	}
	d.logger.Info("message sent", zap.String("to", addr))
	d.publish(bus.KindSendAttempt, map[string]string{"to": addr})
}

// SendToGroup resolves groupName by case-insensitive exact match against
// the live group list and sends synchronously. The lookup happens once,
// immediately before the send; a rename in between is not guarded.
func (d *Dispatcher) SendToGroup(ctx context.Context, groupName, message string) error {
	if groupName == "" || message == "" {
		return fmt.Errorf("%w: groupName and message are required", ErrInvalidRequest)
	}
	groups, err := d.client.GetGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for _, g := range groups {
		if strings.EqualFold(g.Name, groupName) {
			if err := d.client.SendText(ctx, g.JID, message); err != nil {
				return fmt.Errorf("send to group %q: %w", groupName, err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, groupName)
}

// SendMedia resolves the recipient to a platform identifier and sends
// the blob synchronously with an optional caption.
func (d *Dispatcher) SendMedia(ctx context.Context, number string, data []byte, mimeType, fileName, caption string) error {
	digits := digitsOf(number)
	if digits == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, number)
	}
	jid, err := d.client.ResolveNumber(ctx, digits)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if jid == "" {
		return fmt.Errorf("%w: %q is not registered", ErrInvalidRecipient, number)
	}
	if err := d.client.SendMedia(ctx, jid, data, mimeType, fileName, caption); err != nil {
		return fmt.Errorf("send media: %w", err)
	}
	return nil
}

// ListGroups returns the names of all joined groups.
func (d *Dispatcher) ListGroups(ctx context.Context) ([]string, error) {
	groups, err := d.client.GetGroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names, nil
}

// normalizeAll rejects the whole batch on the first malformed number, so
// validation failures surface before any scheduling happens.
func normalizeAll(numbers []string) ([]string, error) {
	addrs := make([]string, 0, len(numbers))
	for _, n := range numbers {
		addr, err := Normalize(n)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (d *Dispatcher) publish(kind string, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
