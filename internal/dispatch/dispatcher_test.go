package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"wagate/internal/bus"
	"wagate/internal/store"
	"wagate/internal/wa"
)

// fakeClient records calls and returns configurable results.
type fakeClient struct {
	mu       sync.Mutex
	sends    []sendCall
	media    []mediaCall
	groups   []wa.Group
	resolves map[string]string // digits -> jid
	sendErr  map[string]error  // addr -> error
}

type sendCall struct {
	Addr string
	Text string
	At   time.Time
}

type mediaCall struct {
	Addr    string
	Mime    string
	Caption string
}

func (f *fakeClient) Initialize(context.Context) error { return nil }
func (f *fakeClient) Teardown()                        {}

func (f *fakeClient) SendText(_ context.Context, addr, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendCall{Addr: addr, Text: text, At: time.Now()})
	if err, ok := f.sendErr[addr]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) SendMedia(_ context.Context, addr string, _ []byte, mime, _, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, mediaCall{Addr: addr, Mime: mime, Caption: caption})
	return nil
}

func (f *fakeClient) GetGroups(context.Context) ([]wa.Group, error)     { return f.groups, nil }
func (f *fakeClient) GetContacts(context.Context) ([]wa.Contact, error) { return nil, nil }

func (f *fakeClient) ResolveNumber(_ context.Context, digits string) (string, error) {
	return f.resolves[digits], nil
}

func (f *fakeClient) sentAddrs() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sendCall, len(f.sends))
	copy(out, f.sends)
	return out
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestScheduleBulkSpacingAndOrder(t *testing.T) {
	fake := &fakeClient{}
	d := New(fake, nil, nil, zap.NewNop())

	const spacing = 100 * time.Millisecond
	accepted := time.Now()

	n, err := d.ScheduleBulk([]string{"555-1234", "555-5678", "555-9999"}, "hi", spacing)
	returned := time.Now()
	if err != nil {
		t.Fatalf("ScheduleBulk() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("scheduled %d attempts, want 3", n)
	}
	// Acceptance is fire-and-forget: the call must return well before the
	// later attempts are due.
	if returned.Sub(accepted) >= spacing {
		t.Errorf("ScheduleBulk blocked for %v, want immediate return", returned.Sub(accepted))
	}

	time.Sleep(3*spacing + 100*time.Millisecond)

	sends := fake.sentAddrs()
	if len(sends) != 3 {
		t.Fatalf("got %d send attempts, want 3", len(sends))
	}
	wantAddrs := []string{"5551234@c.us", "5555678@c.us", "5559999@c.us"}
	for i, s := range sends {
		if s.Addr != wantAddrs[i] {
			t.Errorf("attempt %d addr = %q, want %q", i, s.Addr, wantAddrs[i])
		}
		if s.Text != "hi" {
			t.Errorf("attempt %d text = %q, want hi", i, s.Text)
		}
		// Attempt i never fires before its scheduled instant.
		if earliest := accepted.Add(time.Duration(i) * spacing); s.At.Before(earliest) {
			t.Errorf("attempt %d fired at +%v, want >= +%v", i, s.At.Sub(accepted), time.Duration(i)*spacing)
		}
	}
}

func TestScheduleBulkValidation(t *testing.T) {
	fake := &fakeClient{}
	d := New(fake, nil, nil, zap.NewNop())

	cases := []struct {
		name    string
		numbers []string
		message string
	}{
		{"no numbers", nil, "hi"},
		{"no message", []string{"5551234"}, ""},
		{"malformed number", []string{"5551234", "---"}, "hi"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.ScheduleBulk(tt.numbers, tt.message, 10*time.Millisecond)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}

	// A rejected batch schedules nothing, even for its valid numbers.
	time.Sleep(100 * time.Millisecond)
	if sends := fake.sentAddrs(); len(sends) != 0 {
		t.Errorf("got %d send attempts after rejected batches, want 0", len(sends))
	}
}

func TestScheduleBulkFailureIsolation(t *testing.T) {
	fake := &fakeClient{sendErr: map[string]error{"1@c.us": fmt.Errorf("recipient gone")}}
	b := bus.New()
	failed, unsub := b.Subscribe(bus.KindSendFailed, 10)
	defer unsub()

	d := New(fake, nil, b, zap.NewNop())
	if _, err := d.ScheduleBulk([]string{"1", "2"}, "hi", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)

	// The first recipient's failure must not suppress the second attempt.
	sends := fake.sentAddrs()
	if len(sends) != 2 {
		t.Fatalf("got %d send attempts, want 2", len(sends))
	}

	select {
	case evt := <-failed:
		payload, ok := evt.Payload.(map[string]string)
		if !ok || payload["to"] != "1@c.us" {
			t.Errorf("failure payload = %v, want to=1@c.us", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery.failed event")
	}
}

func TestScheduleAtRejectsPastTimestamp(t *testing.T) {
	fake := &fakeClient{}
	db := testDB(t)
	d := New(fake, db, nil, zap.NewNop())

	_, err := d.ScheduleAt([]string{"5551234"}, "hi", time.Now().Add(-time.Second))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}

	pending, err := db.PendingSchedules()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("journalled %d batches for rejected request, want 0", len(pending))
	}
}

func TestScheduleAtFiresBatchTogether(t *testing.T) {
	fake := &fakeClient{}
	db := testDB(t)
	d := New(fake, db, nil, zap.NewNop())

	fireAt := time.Now().Add(150 * time.Millisecond)
	id, err := d.ScheduleAt([]string{"111", "222", "333"}, "later", fireAt)
	if err != nil {
		t.Fatalf("ScheduleAt() error = %v", err)
	}
	if id == "" {
		t.Fatal("empty batch id")
	}

	// Journalled while pending.
	pending, err := db.PendingSchedules()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v, want one batch %s", pending, id)
	}

	time.Sleep(500 * time.Millisecond)

	sends := fake.sentAddrs()
	if len(sends) != 3 {
		t.Fatalf("got %d send attempts, want 3", len(sends))
	}
	for i, s := range sends {
		if s.At.Before(fireAt) {
			t.Errorf("attempt %d fired at %v, before scheduled instant %v", i, s.At, fireAt)
		}
	}

	// Fired batches leave the journal.
	pending, err = db.PendingSchedules()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("journal still holds %d batches after firing, want 0", len(pending))
	}
}

func TestRearmFiresPastDueBatch(t *testing.T) {
	fake := &fakeClient{}
	db := testDB(t)

	// Simulate a batch journalled by a previous run whose fire time has
	// already passed.
	if err := db.InsertSchedule(&store.Schedule{
		ID:         "stale",
		Recipients: []string{"5551234@c.us"},
		Message:    "overdue",
		FireAt:     time.Now().Add(-time.Minute).UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	d := New(fake, db, nil, zap.NewNop())
	if err := d.Rearm(); err != nil {
		t.Fatalf("Rearm() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	sends := fake.sentAddrs()
	if len(sends) != 1 || sends[0].Addr != "5551234@c.us" || sends[0].Text != "overdue" {
		t.Fatalf("sends = %+v, want one overdue attempt", sends)
	}
}

func TestSendToGroup(t *testing.T) {
	fake := &fakeClient{groups: []wa.Group{
		{JID: "123-456@g.us", Name: "Family"},
		{JID: "789-012@g.us", Name: "Work Chat"},
	}}
	d := New(fake, nil, nil, zap.NewNop())

	// Case-insensitive exact match.
	if err := d.SendToGroup(context.Background(), "family", "hello"); err != nil {
		t.Fatalf("SendToGroup() error = %v", err)
	}
	sends := fake.sentAddrs()
	if len(sends) != 1 || sends[0].Addr != "123-456@g.us" {
		t.Fatalf("sends = %+v, want one to 123-456@g.us", sends)
	}
}

func TestSendToGroupNotFound(t *testing.T) {
	fake := &fakeClient{groups: []wa.Group{{JID: "1@g.us", Name: "Family"}}}
	d := New(fake, nil, nil, zap.NewNop())

	err := d.SendToGroup(context.Background(), "Fam", "hello")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound (substring must not match)", err)
	}
	// No send may be attempted for an unmatched name.
	if sends := fake.sentAddrs(); len(sends) != 0 {
		t.Errorf("got %d send attempts, want 0", len(sends))
	}
}

func TestSendMedia(t *testing.T) {
	fake := &fakeClient{resolves: map[string]string{"5551234": "5551234@s.whatsapp.net"}}
	d := New(fake, nil, nil, zap.NewNop())

	err := d.SendMedia(context.Background(), "555-1234", []byte("img"), "image/png", "pic.png", "a caption")
	if err != nil {
		t.Fatalf("SendMedia() error = %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.media) != 1 {
		t.Fatalf("got %d media sends, want 1", len(fake.media))
	}
	got := fake.media[0]
	if got.Addr != "5551234@s.whatsapp.net" || got.Mime != "image/png" || got.Caption != "a caption" {
		t.Errorf("media call = %+v, want resolved addr with caption", got)
	}
}

func TestSendMediaInvalidRecipient(t *testing.T) {
	fake := &fakeClient{resolves: map[string]string{}}
	d := New(fake, nil, nil, zap.NewNop())

	for _, number := range []string{"no-digits", "555-0000"} {
		err := d.SendMedia(context.Background(), number, []byte("x"), "image/png", "p.png", "")
		if !errors.Is(err, ErrInvalidRecipient) {
			t.Errorf("SendMedia(%q) error = %v, want ErrInvalidRecipient", number, err)
		}
	}
}

func TestListGroups(t *testing.T) {
	fake := &fakeClient{groups: []wa.Group{
		{JID: "1@g.us", Name: "Family"},
		{JID: "2@g.us", Name: "Work"},
	}}
	d := New(fake, nil, nil, zap.NewNop())

	names, err := d.ListGroups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "Family" || names[1] != "Work" {
		t.Errorf("names = %v, want [Family Work]", names)
	}
}
