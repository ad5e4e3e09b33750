// Package ledger is the append-only history of placed orders.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/storage"
	"go.uber.org/zap"
)

var ErrDuplicateOrder = errors.New("order id already in ledger")

// Ledger keeps orders in append order. Orders are never updated or removed.
type Ledger struct {
	orders []models.Order
	ids    map[string]struct{}
	store  storage.Store
	logger *zap.Logger
}

func New(store storage.Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		ids:    make(map[string]struct{}),
		store:  store,
		logger: logger,
	}
}

// Load replaces the ledger with the persisted orders. On error the ledger is
// left empty.
func (l *Ledger) Load(ctx context.Context) error {
	l.orders = nil
	l.ids = make(map[string]struct{})
	var orders []models.Order
	if _, err := l.store.Get(ctx, storage.KeyOrders, &orders); err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}
	l.orders = orders
	for _, o := range orders {
		l.ids[o.OrderID] = struct{}{}
	}
	return nil
}

// Contains reports whether an order id is already taken.
func (l *Ledger) Contains(orderID string) bool {
	_, ok := l.ids[orderID]
	return ok
}

func (l *Ledger) Len() int { return len(l.orders) }

// Append stores a copy of order at the end of the ledger and writes the
// whole sequence.
func (l *Ledger) Append(ctx context.Context, order models.Order) error {
	if l.Contains(order.OrderID) {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.OrderID)
	}

	next := append(l.orders[:len(l.orders):len(l.orders)], order.Clone())
	if err := l.store.Set(ctx, storage.KeyOrders, next); err != nil {
		l.logger.Error("Failed to persist orders", zap.String("order_id", order.OrderID), zap.Error(err))
		return fmt.Errorf("failed to persist orders: %w", err)
	}
	l.orders = next
	l.ids[order.OrderID] = struct{}{}

	l.logger.Info("Order appended",
		zap.String("order_id", order.OrderID),
		zap.Int("ledger_size", len(l.orders)))
	return nil
}

// List returns every order, most recently appended first.
func (l *Ledger) List() []models.Order {
	out := make([]models.Order, 0, len(l.orders))
	for i := len(l.orders) - 1; i >= 0; i-- {
		out = append(out, l.orders[i].Clone())
	}
	return out
}
