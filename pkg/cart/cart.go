// Package cart holds the line items of the order in progress. Every
// mutation is written through to the persistence adapter before returning.
package cart

import (
	"context"
	"fmt"

	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store owns the cart. It is not safe for concurrent use; the engine actor
// serialises access.
type Store struct {
	items  []models.CartItem
	store  storage.Store
	logger *zap.Logger
}

func NewStore(store storage.Store, logger *zap.Logger) *Store {
	return &Store{store: store, logger: logger}
}

// Load replaces the in-memory cart with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	s.items = nil
	var items []models.CartItem
	if _, err := s.store.Get(ctx, storage.KeyCart, &items); err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}
	s.items = items
	return nil
}

// Items returns a copy of the cart in insertion order.
func (s *Store) Items() []models.CartItem {
	return append([]models.CartItem(nil), s.items...)
}

func (s *Store) IsEmpty() bool { return len(s.items) == 0 }

// Count is the total number of units across all lines.
func (s *Store) Count() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s *Store) Subtotal() decimal.Decimal {
	return Subtotal(s.items)
}

// Subtotal sums quantity × unit price over items.
func Subtotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (s *Store) indexOf(medicineID int64) int {
	for i := range s.items {
		if s.items[i].MedicineID == medicineID {
			return i
		}
	}
	return -1
}

// AddItem increments the quantity of an existing line or appends a new one
// with quantity 1. A negative unit price is rejected before the cart changes.
func (s *Store) AddItem(ctx context.Context, medicineID int64, name string, unitPrice decimal.Decimal) error {
	if unitPrice.IsNegative() {
		return apperr.NewValidation("unit price must not be negative", "price")
	}
	if i := s.indexOf(medicineID); i >= 0 {
		s.items[i].Quantity++
	} else {
		s.items = append(s.items, models.CartItem{
			MedicineID: medicineID,
			Name:       name,
			UnitPrice:  unitPrice,
			Quantity:   1,
		})
	}
	s.logger.Info("Added to cart", zap.Int64("medicine_id", medicineID), zap.String("name", name))
	return s.persist(ctx)
}

// UpdateQuantity adds delta to a line's quantity, removing the line when the
// result drops to zero or below. Unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, medicineID int64, delta int) error {
	i := s.indexOf(medicineID)
	if i < 0 {
		return nil
	}
	if s.items[i].Quantity+delta <= 0 {
		return s.RemoveItem(ctx, medicineID)
	}
	s.items[i].Quantity += delta
	s.logger.Info("Cart quantity updated",
		zap.Int64("medicine_id", medicineID),
		zap.Int("quantity", s.items[i].Quantity))
	return s.persist(ctx)
}

// RemoveItem drops a line. Unknown ids are ignored and nothing is written.
func (s *Store) RemoveItem(ctx context.Context, medicineID int64) error {
	i := s.indexOf(medicineID)
	if i < 0 {
		return nil
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	s.logger.Info("Removed from cart", zap.Int64("medicine_id", medicineID))
	return s.persist(ctx)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.items = nil
	return s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) error {
	items := s.items
	if items == nil {
		items = []models.CartItem{}
	}
	if err := s.store.Set(ctx, storage.KeyCart, items); err != nil {
		s.logger.Error("Failed to persist cart", zap.Error(err))
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}
