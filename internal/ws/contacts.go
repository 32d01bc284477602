package ws

import (
	"context"
	"fmt"
	"sort"

	"wagate/internal/wa"
)

// ContactSummary is the shape pushed to subscribers for contact listings.
type ContactSummary struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// listContacts fetches the full contact set, keeps user contacts only,
// and returns the requested 1-indexed page. Out-of-range pages yield an
// empty slice, not an error.
func (h *Hub) listContacts(ctx context.Context, page, pageSize int) ([]ContactSummary, error) {
	if page < 1 || pageSize < 1 {
		return nil, fmt.Errorf("page and pageSize must be >= 1")
	}
	contacts, err := h.client.GetContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	return pageContacts(contacts, page, pageSize), nil
}

// pageContacts filters to user contacts, orders them by number for a
// stable listing, and slices out the requested page.
func pageContacts(contacts []wa.Contact, page, pageSize int) []ContactSummary {
	users := make([]wa.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.IsUser {
			users = append(users, c)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Number < users[j].Number })

	start := (page - 1) * pageSize
	if start >= len(users) {
		return []ContactSummary{}
	}
	end := start + pageSize
	if end > len(users) {
		end = len(users)
	}

	out := make([]ContactSummary, 0, end-start)
	for _, c := range users[start:end] {
		name := c.Name
		if name == "" {
			name = "Unknown"
		}
		out = append(out, ContactSummary{Name: name, Number: c.Number})
	}
	return out
}
