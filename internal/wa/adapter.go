package wa

import (
	"context"
	"fmt"
	"strings"

	"wagate/internal/bus"
	"wagate/internal/session"
	"wagate/internal/state"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client behind MessagingClient and feeds its
// lifecycle events into the session tracker.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	tracker   *state.Tracker
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ MessagingClient = (*Adapter)(nil)

// NewAdapter creates a whatsmeow adapter for the given session.
func NewAdapter(ctx context.Context, sessionName string, tracker *state.Tracker, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wagate", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", session.DeviceDBPath(sessionName)),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		tracker:   tracker,
		bus:       b,
		logger:    logger,
	}
	a.client.AddEventHandler(newRelay(tracker, logger).handle)
	return a, nil
}

// IsLoggedIn returns whether the adapter has stored credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// PhoneNumber returns the phone number from the device store, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// Initialize connects to WhatsApp. When no credentials are stored it
// starts the QR pairing flow and relays offered codes to subscribers
// through the tracker's emission guard.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.IsLoggedIn() {
		a.logger.Info("connecting with stored credentials")
		return a.client.Connect()
	}

	// GetQRChannel must be called before Connect.
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	go a.relayQR(qrChan)
	return nil
}

// Teardown drops the live connection. Stored credentials are kept.
func (a *Adapter) Teardown() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// SendText sends a plain text message to the given address.
func (a *Adapter) SendText(ctx context.Context, addr string, text string) error {
	to, err := types.ParseJID(addr)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	_, err = a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendMedia uploads the blob and sends it to the given address. Images go
// out as image messages with the caption attached; everything else is
// sent as a document.
func (a *Adapter) SendMedia(ctx context.Context, addr string, data []byte, mimeType, fileName, caption string) error {
	to, err := types.ParseJID(addr)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}

	mediaType := whatsmeow.MediaDocument
	if strings.HasPrefix(mimeType, "image/") {
		mediaType = whatsmeow.MediaImage
	}

	up, err := a.client.Upload(ctx, data, mediaType)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}

	msg := &waE2E.Message{}
	if mediaType == whatsmeow.MediaImage {
		msg.ImageMessage = &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           &up.URL,
			DirectPath:    &up.DirectPath,
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &up.FileLength,
		}
	} else {
		msg.DocumentMessage = &waE2E.DocumentMessage{
			Title:         proto.String(fileName),
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           &up.URL,
			DirectPath:    &up.DirectPath,
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &up.FileLength,
		}
	}

	if _, err := a.client.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("send media: %w", err)
	}
	return nil
}

// GetGroups returns the groups the session is currently a member of.
func (a *Adapter) GetGroups(ctx context.Context) ([]Group, error) {
	infos, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	groups := make([]Group, 0, len(infos))
	for _, g := range infos {
		groups = append(groups, Group{JID: g.JID.String(), Name: g.Name})
	}
	return groups, nil
}

// GetContacts returns all contacts from the whatsmeow device store.
func (a *Adapter) GetContacts(ctx context.Context) ([]Contact, error) {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	contacts := make([]Contact, 0, len(all))
	for jid, info := range all {
		normalized := jid.ToNonAD()
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		contacts = append(contacts, Contact{
			JID:    normalized.String(),
			Name:   name,
			Number: normalized.User,
			IsUser: normalized.Server == types.DefaultUserServer,
		})
	}
	return contacts, nil
}

// ResolveNumber checks registration of a digits-only number and returns
// its canonical platform identifier, or "" when unregistered.
func (a *Adapter) ResolveNumber(ctx context.Context, digits string) (string, error) {
	resp, err := a.client.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return "", fmt.Errorf("resolve number: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", nil
	}
	return resp[0].JID.String(), nil
}
