package cart

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) (*Store, *storage.MemoryStore) {
	t.Helper()
	mem := storage.NewMemoryStore()
	return NewStore(mem, zap.NewNop()), mem
}

func TestAddItem_DeduplicatesByMedicineID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.AddItem(ctx, 1, "Paracetamol", price("10"))
	_ = s.AddItem(ctx, 2, "Cetirizine", price("5"))
	_ = s.AddItem(ctx, 1, "Paracetamol", price("10"))

	items := s.Items()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].MedicineID != 1 || items[0].Quantity != 2 {
		t.Errorf("first line = %+v", items[0])
	}
	if items[1].MedicineID != 2 || items[1].Quantity != 1 {
		t.Errorf("second line = %+v", items[1])
	}
}

func TestAddItem_QuantityEqualsCallCount(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		s, _ := newTestStore(t)
		calls := map[int64]int{}
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			id := int64(rng.Intn(6))
			calls[id]++
			_ = s.AddItem(ctx, id, "m", price("1.25"))
		}

		items := s.Items()
		if len(items) != len(calls) {
			t.Fatalf("round %d: %d lines for %d distinct ids", round, len(items), len(calls))
		}
		for _, it := range items {
			if it.Quantity != calls[it.MedicineID] {
				t.Fatalf("round %d: id %d quantity %d, want %d", round, it.MedicineID, it.Quantity, calls[it.MedicineID])
			}
		}
	}
}

func TestAddItem_RejectsNegativePrice(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	err := s.AddItem(ctx, 1, "Paracetamol", price("-5"))
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !s.IsEmpty() {
		t.Errorf("items = %+v, want empty cart", s.Items())
	}
	if _, ok := mem.Raw(storage.KeyCart); ok {
		t.Error("cart persisted after rejected add")
	}

	if err := s.AddItem(ctx, 2, "Free sample", decimal.Zero); err != nil {
		t.Errorf("zero price rejected: %v", err)
	}
}

func TestSubtotal_MatchesLineSum(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	prices := []decimal.Decimal{price("0"), price("9.99"), price("12.50"), price("100"), price("0.01")}

	for round := 0; round < 50; round++ {
		s, _ := newTestStore(t)
		for i := 0; i < 30; i++ {
			id := int64(rng.Intn(len(prices)))
			switch rng.Intn(3) {
			case 0, 1:
				_ = s.AddItem(ctx, id, "m", prices[id])
			case 2:
				_ = s.UpdateQuantity(ctx, id, rng.Intn(5)-2)
			}
		}

		want := decimal.Zero
		for _, it := range s.Items() {
			want = want.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		if got := s.Subtotal(); !got.Equal(want) {
			t.Fatalf("round %d: subtotal %s, want %s", round, got, want)
		}
	}
}

func TestSubtotal_EmptyCart(t *testing.T) {
	s, _ := newTestStore(t)
	if !s.Subtotal().IsZero() {
		t.Errorf("subtotal = %s, want 0", s.Subtotal())
	}
	if !s.IsEmpty() || s.Count() != 0 {
		t.Error("new cart should be empty")
	}
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_ = s.AddItem(ctx, 1, "A", price("10"))

	if err := s.UpdateQuantity(ctx, 1, 3); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.Items()[0].Quantity; got != 4 {
		t.Errorf("quantity = %d, want 4", got)
	}
	if s.Count() != 4 {
		t.Errorf("count = %d, want 4", s.Count())
	}
}

func TestUpdateQuantity_NegativeEqualsRemove(t *testing.T) {
	ctx := context.Background()

	a, memA := newTestStore(t)
	b, memB := newTestStore(t)
	for _, s := range []*Store{a, b} {
		_ = s.AddItem(ctx, 1, "A", price("10"))
		_ = s.AddItem(ctx, 1, "A", price("10"))
		_ = s.AddItem(ctx, 2, "B", price("5"))
	}

	_ = a.UpdateQuantity(ctx, 1, -2)
	_ = b.RemoveItem(ctx, 1)

	rawA, _ := memA.Raw(storage.KeyCart)
	rawB, _ := memB.Raw(storage.KeyCart)
	if !bytes.Equal(rawA, rawB) {
		t.Errorf("persisted carts differ:\n%s\n%s", rawA, rawB)
	}
	for _, it := range a.Items() {
		if it.MedicineID == 1 {
			t.Error("item 1 still present after update to zero")
		}
	}
}

func TestUpdateQuantity_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	_ = s.AddItem(ctx, 1, "A", price("10"))
	before, _ := mem.Raw(storage.KeyCart)

	if err := s.UpdateQuantity(ctx, 99, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	after, _ := mem.Raw(storage.KeyCart)
	if !bytes.Equal(before, after) {
		t.Error("cart changed after updating an unknown id")
	}
}

func TestRemoveItem_AbsentIDLeavesCartUnchanged(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	_ = s.AddItem(ctx, 1, "A", price("10"))
	_ = s.AddItem(ctx, 2, "B", price("5"))
	before, _ := mem.Raw(storage.KeyCart)
	itemsBefore := s.Items()

	if err := s.RemoveItem(ctx, 3); err != nil {
		t.Fatalf("remove: %v", err)
	}

	after, _ := mem.Raw(storage.KeyCart)
	if !bytes.Equal(before, after) {
		t.Errorf("persisted cart changed:\n%s\n%s", before, after)
	}
	itemsAfter := s.Items()
	if len(itemsAfter) != len(itemsBefore) {
		t.Fatalf("len %d -> %d", len(itemsBefore), len(itemsAfter))
	}
	for i := range itemsBefore {
		if itemsBefore[i] != itemsAfter[i] {
			t.Errorf("line %d changed: %+v -> %+v", i, itemsBefore[i], itemsAfter[i])
		}
	}
}

func TestRemoveItem_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for id := int64(1); id <= 4; id++ {
		_ = s.AddItem(ctx, id, "m", price("1"))
	}
	_ = s.RemoveItem(ctx, 2)

	var ids []int64
	for _, it := range s.Items() {
		ids = append(ids, it.MedicineID)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 4 {
		t.Errorf("ids = %v, want [1 3 4]", ids)
	}
}

func TestClearPersistsEmptyCart(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	_ = s.AddItem(ctx, 1, "A", price("10"))

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	raw, ok := mem.Raw(storage.KeyCart)
	if !ok || string(raw) != "[]" {
		t.Errorf("persisted cart = %q", raw)
	}
	if !s.IsEmpty() {
		t.Error("cart not empty after clear")
	}
}

func TestLoadHydratesFromStore(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	_ = mem.Set(ctx, storage.KeyCart, []models.CartItem{{MedicineID: 7, Name: "X", UnitPrice: price("3"), Quantity: 2}})

	s := NewStore(mem, zap.NewNop())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Count() != 2 || !s.Subtotal().Equal(price("6")) {
		t.Errorf("count=%d subtotal=%s", s.Count(), s.Subtotal())
	}
}

type failingStore struct{ storage.MemoryStore }

func (f *failingStore) Set(context.Context, string, interface{}) error {
	return errors.New("disk full")
}

func TestPersistFailureIsReturned(t *testing.T) {
	s := NewStore(&failingStore{}, zap.NewNop())
	if err := s.AddItem(context.Background(), 1, "A", price("1")); err == nil {
		t.Fatal("expected persistence error")
	}
}
