// Package cart is the cart model and storage shared by the API server and the
// storefront client.
package cart

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Item is one cart line. Product metadata is denormalized so the cart renders
// without a catalog lookup.
type Item struct {
	ID       string         `json:"id" validate:"required,max=64"`
	Title    string         `json:"title" validate:"required,max=200"`
	Price    float64        `json:"price" validate:"gte=0"`
	Quantity int            `json:"quantity" validate:"gte=1,lte=999"`
	Image    string         `json:"image,omitempty" validate:"omitempty,max=2048"`
	Category string         `json:"category,omitempty" validate:"omitempty,max=80"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type storedItem struct {
	ID       json.RawMessage `json:"id"`
	Title    *string         `json:"title"`
	Price    *float64        `json:"price"`
	Quantity *int            `json:"quantity"`
	Image    string          `json:"image"`
	Category string          `json:"category"`
	Metadata map[string]any  `json:"metadata"`
}

// decodeItems parses a stored cart, dropping every element that lacks an id or
// title or carries a non-numeric price or quantity. A payload that is not a
// JSON array yields ok=false.
func decodeItems(payload string) (items []Item, dropped int, ok bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return []Item{}, 0, false
	}
	items = make([]Item, 0, len(raw))
	for _, element := range raw {
		item, valid := decodeItem(element)
		if !valid {
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped, true
}

func decodeItem(raw json.RawMessage) (Item, bool) {
	var stored storedItem
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Item{}, false
	}
	id, ok := scalarID(stored.ID)
	if !ok || stored.Title == nil || strings.TrimSpace(*stored.Title) == "" {
		return Item{}, false
	}
	if stored.Price == nil || stored.Quantity == nil {
		return Item{}, false
	}
	return Item{
		ID:       id,
		Title:    *stored.Title,
		Price:    *stored.Price,
		Quantity: *stored.Quantity,
		Image:    stored.Image,
		Category: stored.Category,
		Metadata: stored.Metadata,
	}, true
}

// scalarID accepts string or numeric ids, since older clients stored both.
func scalarID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
