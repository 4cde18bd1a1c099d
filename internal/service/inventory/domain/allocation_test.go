package domain

import "testing"

func TestNewAllocationValidation(t *testing.T) {
	if _, err := NewAllocation("", "wh-1"); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for empty item, got %v", err)
	}
	if _, err := NewAllocation("item-1", ""); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for empty warehouse, got %v", err)
	}
	alloc, err := NewAllocation("item-1", "wh-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Quantity != 0 || alloc.ReservedQuantity != 0 {
		t.Fatalf("new allocation should start empty, got %d/%d", alloc.Quantity, alloc.ReservedQuantity)
	}
}

func TestAllocationReserveGuards(t *testing.T) {
	alloc := &Allocation{ItemID: "item-1", WarehouseID: "wh-1", Quantity: 10, ReservedQuantity: 4}

	if alloc.AvailableQuantity() != 6 {
		t.Fatalf("available = %d, want 6", alloc.AvailableQuantity())
	}
	if alloc.Reserve(7) {
		t.Fatal("reserve beyond available quantity must fail")
	}
	if alloc.Reserve(0) || alloc.Reserve(-1) {
		t.Fatal("non-positive reserve must fail")
	}
	if !alloc.Reserve(6) {
		t.Fatal("reserve of exactly the available quantity must succeed")
	}
	if alloc.ReservedQuantity != 10 || alloc.AvailableQuantity() != 0 {
		t.Fatalf("after reserve: reserved=%d available=%d", alloc.ReservedQuantity, alloc.AvailableQuantity())
	}
}

func TestAllocationReleaseAndCommit(t *testing.T) {
	alloc := &Allocation{Quantity: 10, ReservedQuantity: 6}

	if alloc.Release(7) {
		t.Fatal("release beyond reserved quantity must fail")
	}
	if !alloc.Release(2) {
		t.Fatal("release within reserved quantity must succeed")
	}
	if alloc.Quantity != 10 || alloc.ReservedQuantity != 4 {
		t.Fatalf("release must not touch physical quantity: %d/%d", alloc.Quantity, alloc.ReservedQuantity)
	}

	if alloc.Commit(5) {
		t.Fatal("commit beyond reserved quantity must fail")
	}
	if !alloc.Commit(4) {
		t.Fatal("commit within reserved quantity must succeed")
	}
	if alloc.Quantity != 6 || alloc.ReservedQuantity != 0 {
		t.Fatalf("commit must decrement both counters: %d/%d", alloc.Quantity, alloc.ReservedQuantity)
	}
}

func TestAllocationAdjustGuards(t *testing.T) {
	alloc := &Allocation{Quantity: 10, ReservedQuantity: 6}

	if alloc.Adjust(0) {
		t.Fatal("zero adjustment must fail")
	}
	if alloc.Adjust(-5) {
		t.Fatal("adjustment below reserved quantity must fail")
	}
	if !alloc.Adjust(-4) {
		t.Fatal("adjustment down to reserved quantity must succeed")
	}
	if alloc.Quantity != 6 {
		t.Fatalf("quantity = %d, want 6", alloc.Quantity)
	}

	empty := &Allocation{Quantity: 3}
	if empty.Adjust(-4) {
		t.Fatal("adjustment below zero must fail")
	}
	if !empty.Adjust(-3) {
		t.Fatal("adjustment down to zero must succeed")
	}
}
