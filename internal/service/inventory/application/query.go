package application

import (
	"context"
	"time"

	"depot/internal/service/inventory/domain"
)

// WarehouseAvailability 单个仓库的可用性视图。
type WarehouseAvailability struct {
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	Reserved    int    `json:"reserved"`
	Available   int    `json:"available"`
	FromCache   bool   `json:"from_cache"`
}

// Availability 返回某商品在各仓库的可用性。可用数优先取 Redis 快照，
// 快照是尽力刷新的，数字可能短暂落后于存储层。
func (s *Service) Availability(ctx context.Context, itemID string) ([]WarehouseAvailability, error) {
	if itemID == "" {
		return nil, domain.ErrInvalidArgument
	}
	allocs, err := s.allocations.ListByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	result := make([]WarehouseAvailability, 0, len(allocs))
	for _, alloc := range allocs {
		entry := WarehouseAvailability{
			WarehouseID: alloc.WarehouseID,
			Quantity:    alloc.Quantity,
			Reserved:    alloc.ReservedQuantity,
			Available:   alloc.AvailableQuantity(),
		}
		if s.cache != nil {
			if v, ok, err := s.cache.Get(ctx, itemID, alloc.WarehouseID); err == nil && ok {
				entry.Available = v
				entry.FromCache = true
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

// LowStock 返回可用数量不高于阈值的分配记录。
func (s *Service) LowStock(ctx context.Context, threshold int) ([]*domain.Allocation, error) {
	if threshold < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return s.allocations.ListLowStock(ctx, threshold)
}

// GetReservation 按 ID 查询预占。
func (s *Service) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.reservations.Get(ctx, id)
}

// ListReservationsByOrder 查询订单下的全部预占。
func (s *Service) ListReservationsByOrder(ctx context.Context, orderRef string) ([]*domain.Reservation, error) {
	return s.reservations.ListByOrderRef(ctx, orderRef)
}

// ListActiveReservationsByItem 查询某商品的全部活跃预占。
func (s *Service) ListActiveReservationsByItem(ctx context.Context, itemID string) ([]*domain.Reservation, error) {
	return s.reservations.ListActiveByItem(ctx, itemID)
}

// QueryLedger 按条件查询流水账本。
func (s *Service) QueryLedger(ctx context.Context, filter domain.LedgerFilter) ([]*domain.Transaction, error) {
	return s.ledger.Query(ctx, filter)
}

// SumLedgerByType 按流水类型聚合给定时间段的数量变化，用于对账。
func (s *Service) SumLedgerByType(ctx context.Context, itemID, warehouseID string, from, to time.Time) (map[domain.TransactionType]int, error) {
	if itemID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.ledger.SumByType(ctx, itemID, warehouseID, from, to)
}
