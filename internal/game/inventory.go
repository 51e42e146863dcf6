// Package game models the parts of the game client that the tracker reads:
// the player's inventory, whether a player is logged in, and the host
// framework's update tick.
package game

import (
	"fmt"

	"github.com/TheNickoos/GilsTracker/internal/tracker"
)

// GilItemID is the base item id of gil inside the currency container.
const GilItemID uint32 = 1

// CurrencyContainer holds gil and the other currencies.
const CurrencyContainer = "currency"

// Item is one inventory slot.
type Item struct {
	BaseItemID uint32 `json:"baseItemId"`
	Quantity   int64  `json:"quantity"`
}

// IsEmpty reports whether the slot holds nothing.
func (i Item) IsEmpty() bool {
	return i.BaseItemID == 0
}

// Inventory maps container names to their slots. A nil Inventory means the
// client has not loaded one yet.
type Inventory map[string][]Item

// Quantity returns the quantity of item id in container. It fails with
// tracker.ErrUnavailable when the container is not loaded or does not hold
// the item.
func (inv Inventory) Quantity(container string, id uint32) (int64, error) {
	items, ok := inv[container]
	if !ok {
		return 0, fmt.Errorf("container %q not loaded: %w", container, tracker.ErrUnavailable)
	}
	for _, it := range items {
		if !it.IsEmpty() && it.BaseItemID == id {
			return it.Quantity, nil
		}
	}
	return 0, fmt.Errorf("item %d not in %q: %w", id, container, tracker.ErrUnavailable)
}

// Gil returns the gil quantity held in the currency container.
func (inv Inventory) Gil() (int64, error) {
	return inv.Quantity(CurrencyContainer, GilItemID)
}
