// Package cart holds a shopper's line items between visits and checkout.
//
// A Cart is rehydrated from a snapshot Storage and writes the whole snapshot
// back after every mutation. Rehydration never fails: a missing or corrupt
// snapshot yields an empty cart.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidItem = errors.New("cart item requires an id")

// Storage persists cart snapshots by cart id. A missing snapshot is
// reported as (nil, nil).
type Storage interface {
	LoadCart(ctx context.Context, cartID string) ([]byte, error)
	SaveCart(ctx context.Context, cartID string, snapshot []byte) error
}

type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	Quantity int             `json:"quantity"`
	Category string          `json:"category,omitempty"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	mu      sync.Mutex
	id      string
	items   []Item
	storage Storage
	logger  *zap.Logger
}

// New loads the cart identified by cartID from storage.
func New(ctx context.Context, storage Storage, cartID string, logger *zap.Logger) *Cart {
	c := &Cart{id: cartID, storage: storage, logger: logger}

	data, err := storage.LoadCart(ctx, cartID)
	if err != nil {
		logger.Warn("Failed to load cart, starting empty", zap.String("cart_id", cartID), zap.Error(err))
		return c
	}
	if len(data) == 0 {
		return c
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Warn("Discarding unreadable cart snapshot", zap.String("cart_id", cartID), zap.Error(err))
		return c
	}
	c.items = lo.Filter(items, func(item Item, _ int) bool {
		return item.ID != "" && item.Quantity > 0
	})
	return c
}

func (c *Cart) ID() string {
	return c.id
}

// AddItem merges item into the cart. A quantity below one counts as one.
func (c *Cart) AddItem(ctx context.Context, item Item) error {
	if item.ID == "" {
		return ErrInvalidItem
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, idx, ok := lo.FindIndexOf(c.items, func(existing Item) bool { return existing.ID == item.ID }); ok {
		c.items[idx].Quantity += item.Quantity
	} else {
		c.items = append(c.items, item)
	}
	return c.persist(ctx)
}

// UpdateQuantity replaces the quantity of line id in place; q <= 0 removes it.
func (c *Cart) UpdateQuantity(ctx context.Context, id string, q int) error {
	if q <= 0 {
		return c.RemoveItem(ctx, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(c.items, func(existing Item) bool { return existing.ID == id })
	if !ok {
		return nil
	}
	c.items[idx].Quantity = q
	return c.persist(ctx)
}

// RemoveItem deletes line id; absent ids are a no-op.
func (c *Cart) RemoveItem(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := lo.Reject(c.items, func(existing Item, _ int) bool { return existing.ID == id })
	if len(kept) == len(c.items) {
		return nil
	}
	c.items = kept
	return c.persist(ctx)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	return c.persist(ctx)
}

// Items returns a copy of the current lines in insertion order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Count is the sum of quantities.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return lo.SumBy(c.items, func(item Item) int { return item.Quantity })
}

// Total is the sum of price times quantity, computed on every call.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	return lo.Reduce(c.items, func(acc decimal.Decimal, item Item, _ int) decimal.Decimal {
		return acc.Add(item.LineTotal())
	}, decimal.Zero)
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items) == 0
}

// persist writes the snapshot. The in-memory change stands even when the
// write fails.
func (c *Cart) persist(ctx context.Context) error {
	items := c.items
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := c.storage.SaveCart(ctx, c.id, data); err != nil {
		c.logger.Error("Failed to persist cart", zap.String("cart_id", c.id), zap.Error(err))
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}
