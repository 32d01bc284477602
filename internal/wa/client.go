package wa

import "context"

// Contact is a single entry from the client's contact store.
type Contact struct {
	JID    string
	Name   string
	Number string
	IsUser bool
}

// Group is a joined group chat.
type Group struct {
	JID  string
	Name string
}

// MessagingClient is the capability surface the gateway core depends on.
// The production implementation wraps whatsmeow; tests substitute a fake.
type MessagingClient interface {
	// Initialize connects the client, starting the QR login flow when no
	// credentials are stored yet.
	Initialize(ctx context.Context) error
	// Teardown releases the live connection. The device store survives, so
	// a later Initialize reuses stored credentials.
	Teardown()

	SendText(ctx context.Context, addr string, text string) error
	SendMedia(ctx context.Context, addr string, data []byte, mimeType, fileName, caption string) error

	GetGroups(ctx context.Context) ([]Group, error)
	GetContacts(ctx context.Context) ([]Contact, error)
	// ResolveNumber maps a digits-only phone number to the platform
	// identifier used for addressing. Returns "" when the number is not
	// registered on the platform.
	ResolveNumber(ctx context.Context, digits string) (string, error)
}
