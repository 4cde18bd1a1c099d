package application

import (
	"context"
	"errors"
	"testing"

	"depot/internal/service/inventory/domain"
	"depot/internal/service/inventory/infrastructure/memory"
)

func seedAllocation(t *testing.T, store *memory.AllocationStore, itemID, warehouseID string, quantity, reserved int) {
	t.Helper()
	alloc, err := domain.NewAllocation(itemID, warehouseID)
	if err != nil {
		t.Fatalf("new allocation: %v", err)
	}
	alloc.Quantity = quantity
	alloc.ReservedQuantity = reserved
	if err := store.Create(context.Background(), alloc); err != nil {
		t.Fatalf("create allocation: %v", err)
	}
}

func TestSelectorPinnedWarehouse(t *testing.T) {
	store := memory.NewAllocationStore()
	seedAllocation(t, store, "item-1", "wh-1", 10, 4)
	selector := NewSelector(store)

	legs, err := selector.Select(context.Background(), "item-1", "wh-1", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(legs) != 1 || legs[0].WarehouseID != "wh-1" || legs[0].Quantity != 6 {
		t.Fatalf("unexpected legs: %+v", legs)
	}

	if _, err := selector.Select(context.Background(), "item-1", "wh-1", 7); !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
	if _, err := selector.Select(context.Background(), "item-1", "wh-9", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown warehouse, got %v", err)
	}
}

func TestSelectorGreedySpansWarehousesInOrder(t *testing.T) {
	store := memory.NewAllocationStore()
	seedAllocation(t, store, "item-1", "wh-2", 10, 0)
	seedAllocation(t, store, "item-1", "wh-1", 5, 0)
	seedAllocation(t, store, "item-1", "wh-3", 4, 4) // 无可用量，应被跳过
	selector := NewSelector(store)

	legs, err := selector.Select(context.Background(), "item-1", "", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Leg{{WarehouseID: "wh-1", Quantity: 5}, {WarehouseID: "wh-2", Quantity: 3}}
	if len(legs) != len(want) {
		t.Fatalf("got %d legs, want %d: %+v", len(legs), len(want), legs)
	}
	for i := range want {
		if legs[i] != want[i] {
			t.Fatalf("leg %d = %+v, want %+v", i, legs[i], want[i])
		}
	}
}

func TestSelectorGreedyFailures(t *testing.T) {
	store := memory.NewAllocationStore()
	selector := NewSelector(store)

	if _, err := selector.Select(context.Background(), "item-unknown", "", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown item, got %v", err)
	}

	seedAllocation(t, store, "item-1", "wh-1", 5, 0)
	seedAllocation(t, store, "item-1", "wh-2", 3, 0)
	if _, err := selector.Select(context.Background(), "item-1", "", 9); !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory when total falls short, got %v", err)
	}

	if _, err := selector.Select(context.Background(), "", "", 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
