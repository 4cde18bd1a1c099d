package application

import (
	"context"
	"sort"

	"depot/internal/service/inventory/domain"
	"depot/internal/service/inventory/domain/port"
)

// Leg 是一次预占请求在单个仓库上的份额。
type Leg struct {
	WarehouseID string
	Quantity    int
}

// Selector 为预占请求挑选供货仓库。
//
// 指定仓库时走单腿路径；未指定时按仓库 ID 升序贪心扫描所有可用分配，
// 升序是固定约定：天然的遍历顺序不构成正确性保证，确定性必须显式建立。
// 选择本身不持有库存，真正的持有由调用方对每条腿做条件预占并在失败时
// 整体回滚，保证对外不可见部分持有的中间态。
type Selector struct {
	allocations port.AllocationRepository
}

func NewSelector(allocations port.AllocationRepository) *Selector {
	return &Selector{allocations: allocations}
}

// Select 返回 (仓库, 数量) 腿的有序列表，数量之和恰好等于请求量。
// 可用总量不足时整体失败，返回 domain.ErrInsufficientInventory。
func (s *Selector) Select(ctx context.Context, itemID, warehouseID string, quantity int) ([]Leg, error) {
	if itemID == "" || quantity <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	if warehouseID != "" {
		return s.selectPinned(ctx, itemID, warehouseID, quantity)
	}
	return s.selectGreedy(ctx, itemID, quantity)
}

func (s *Selector) selectPinned(ctx context.Context, itemID, warehouseID string, quantity int) ([]Leg, error) {
	alloc, err := s.allocations.Get(ctx, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	if alloc.AvailableQuantity() < quantity {
		return nil, domain.ErrInsufficientInventory
	}
	return []Leg{{WarehouseID: warehouseID, Quantity: quantity}}, nil
}

func (s *Selector) selectGreedy(ctx context.Context, itemID string, quantity int) ([]Leg, error) {
	allocs, err := s.allocations.ListByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(allocs) == 0 {
		return nil, domain.ErrNotFound
	}
	// 仓储层已按仓库 ID 升序返回，这里再排一次，不依赖实现细节
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].WarehouseID < allocs[j].WarehouseID })

	var legs []Leg
	remaining := quantity
	for _, alloc := range allocs {
		available := alloc.AvailableQuantity()
		if available <= 0 {
			continue
		}
		take := available
		if take > remaining {
			take = remaining
		}
		legs = append(legs, Leg{WarehouseID: alloc.WarehouseID, Quantity: take})
		remaining -= take
		if remaining == 0 {
			return legs, nil
		}
	}
	return nil, domain.ErrInsufficientInventory
}
