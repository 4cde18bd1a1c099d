// Package memory 提供端口契约的内存实现，用于测试和本地 -store=memory 运行。
// 语义与 GORM 实现一致：数量变更在锁内检查前置条件后一次完成，
// 等价于数据库里的 WHERE 守卫更新。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"depot/internal/service/inventory/domain"
)

type allocationKey struct {
	itemID      string
	warehouseID string
}

// AllocationStore 内存版库存分配存储。
type AllocationStore struct {
	mu    sync.Mutex
	rows  map[allocationKey]*domain.Allocation
}

func NewAllocationStore() *AllocationStore {
	return &AllocationStore{rows: make(map[allocationKey]*domain.Allocation)}
}

func (s *AllocationStore) Create(_ context.Context, alloc *domain.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allocationKey{alloc.ItemID, alloc.WarehouseID}
	if _, exists := s.rows[key]; exists {
		return domain.ErrConcurrencyConflict
	}
	cp := *alloc
	s.rows[key] = &cp
	return nil
}

func (s *AllocationStore) Get(_ context.Context, itemID, warehouseID string) (*domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[allocationKey{itemID, warehouseID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *AllocationStore) ListByItem(_ context.Context, itemID string) ([]*domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Allocation
	for key, row := range s.rows {
		if key.itemID == itemID {
			cp := *row
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WarehouseID < result[j].WarehouseID })
	return result, nil
}

func (s *AllocationStore) ListLowStock(_ context.Context, threshold int) ([]*domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Allocation
	for _, row := range s.rows {
		if row.AvailableQuantity() <= threshold {
			cp := *row
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ItemID != result[j].ItemID {
			return result[i].ItemID < result[j].ItemID
		}
		return result[i].WarehouseID < result[j].WarehouseID
	})
	return result, nil
}

// mutate 在锁内执行守卫动作，missErr 是前置条件失败时返回的错误。
func (s *AllocationStore) mutate(itemID, warehouseID string, missErr error, action func(*domain.Allocation) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[allocationKey{itemID, warehouseID}]
	if !ok {
		return domain.ErrNotFound
	}
	if !action(row) {
		return missErr
	}
	return nil
}

func (s *AllocationStore) Reserve(_ context.Context, itemID, warehouseID string, amount int) error {
	return s.mutate(itemID, warehouseID, domain.ErrInsufficientInventory, func(a *domain.Allocation) bool {
		return a.Reserve(amount)
	})
}

func (s *AllocationStore) Release(_ context.Context, itemID, warehouseID string, amount int) error {
	return s.mutate(itemID, warehouseID, domain.ErrConcurrencyConflict, func(a *domain.Allocation) bool {
		return a.Release(amount)
	})
}

func (s *AllocationStore) Commit(_ context.Context, itemID, warehouseID string, amount int) error {
	return s.mutate(itemID, warehouseID, domain.ErrConcurrencyConflict, func(a *domain.Allocation) bool {
		return a.Commit(amount)
	})
}

func (s *AllocationStore) Receive(_ context.Context, itemID, warehouseID string, amount int) error {
	return s.mutate(itemID, warehouseID, domain.ErrInvalidArgument, func(a *domain.Allocation) bool {
		return a.AddStock(amount)
	})
}

func (s *AllocationStore) Adjust(_ context.Context, itemID, warehouseID string, delta int) error {
	return s.mutate(itemID, warehouseID, domain.ErrConcurrencyConflict, func(a *domain.Allocation) bool {
		return a.Adjust(delta)
	})
}

// ReservationStore 内存版预占存储。
type ReservationStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Reservation
}

func NewReservationStore() *ReservationStore {
	return &ReservationStore{rows: make(map[string]*domain.Reservation)}
}

func (s *ReservationStore) Create(_ context.Context, res *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[res.ID]; exists {
		return domain.ErrConcurrencyConflict
	}
	cp := *res
	s.rows[res.ID] = &cp
	return nil
}

func (s *ReservationStore) Get(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *ReservationStore) ListByOrderRef(_ context.Context, orderRef string) ([]*domain.Reservation, error) {
	return s.list(func(r *domain.Reservation) bool { return r.OrderRef == orderRef })
}

func (s *ReservationStore) ListActiveByItem(_ context.Context, itemID string) ([]*domain.Reservation, error) {
	return s.list(func(r *domain.Reservation) bool {
		return r.ItemID == itemID && r.Status == domain.StatusConfirmed
	})
}

func (s *ReservationStore) ListExpired(_ context.Context, now time.Time) ([]*domain.Reservation, error) {
	return s.list(func(r *domain.Reservation) bool {
		return r.Status == domain.StatusConfirmed && r.IsExpired(now)
	})
}

func (s *ReservationStore) list(match func(*domain.Reservation) bool) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Reservation
	for _, row := range s.rows {
		if match(row) {
			cp := *row
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *ReservationStore) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if row.Status != domain.StatusConfirmed {
		return domain.ErrConcurrencyConflict
	}
	row.ExpiresAt = expiresAt
	row.UpdatedAt = time.Now()
	return nil
}

func (s *ReservationStore) Transition(_ context.Context, id string, to domain.ReservationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if row.Status != domain.StatusConfirmed {
		return false, nil
	}
	row.Status = to
	row.UpdatedAt = time.Now()
	return true, nil
}

// LedgerStore 内存版流水账本。追加后按值保存，对外只读。
type LedgerStore struct {
	mu   sync.Mutex
	rows []domain.Transaction
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

func (s *LedgerStore) Append(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *tx)
	return nil
}

func (s *LedgerStore) Query(_ context.Context, filter domain.LedgerFilter) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Transaction
	for i := range s.rows {
		row := s.rows[i]
		if filter.ItemID != "" && row.ItemID != filter.ItemID {
			continue
		}
		if filter.WarehouseID != "" && row.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Type != "" && row.Type != filter.Type {
			continue
		}
		if filter.ReferenceID != "" && row.ReferenceID != filter.ReferenceID {
			continue
		}
		if !filter.From.IsZero() && row.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !row.Timestamp.Before(filter.To) {
			continue
		}
		cp := row
		result = append(result, &cp)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *LedgerStore) SumByType(_ context.Context, itemID, warehouseID string, from, to time.Time) (map[domain.TransactionType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[domain.TransactionType]int)
	for _, row := range s.rows {
		if row.ItemID != itemID {
			continue
		}
		if warehouseID != "" && row.WarehouseID != warehouseID {
			continue
		}
		if !from.IsZero() && row.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !row.Timestamp.Before(to) {
			continue
		}
		sums[row.Type] += row.Quantity
	}
	return sums, nil
}
