package port

import (
	"context"
	"time"

	"depot/internal/service/inventory/domain"
)

// AllocationRepository 是库存分配存储的出站端口。
//
// Reserve / Release / Commit / Receive / Adjust 必须实现为单条带前置条件的
// 原子更新（数据库 WHERE 守卫或等价的 CAS），而不是读取-修改-写回两步，
// 否则并发下会丢失更新。前置条件失败时：
//   - Reserve 返回 domain.ErrInsufficientInventory
//   - 其余操作返回 domain.ErrConcurrencyConflict
//   - 目标行不存在一律返回 domain.ErrNotFound
type AllocationRepository interface {
	Create(ctx context.Context, alloc *domain.Allocation) error
	Get(ctx context.Context, itemID, warehouseID string) (*domain.Allocation, error)

	// ListByItem 返回某商品在所有仓库的分配记录，按仓库 ID 升序。
	// 排序是选仓确定性的基础，实现必须保证。
	ListByItem(ctx context.Context, itemID string) ([]*domain.Allocation, error)

	// ListLowStock 返回可用数量 <= threshold 的分配记录。
	ListLowStock(ctx context.Context, threshold int) ([]*domain.Allocation, error)

	// Reserve 条件成立时原子执行 reserved_quantity += amount。
	// 条件: amount > 0 且 quantity - reserved_quantity >= amount。
	Reserve(ctx context.Context, itemID, warehouseID string, amount int) error

	// Release 条件成立时原子执行 reserved_quantity -= amount。
	// 条件: reserved_quantity >= amount。
	Release(ctx context.Context, itemID, warehouseID string, amount int) error

	// Commit 条件成立时原子执行 quantity -= amount 且 reserved_quantity -= amount。
	// 条件: reserved_quantity >= amount。
	Commit(ctx context.Context, itemID, warehouseID string, amount int) error

	// Receive 原子执行 quantity += amount，amount > 0。
	Receive(ctx context.Context, itemID, warehouseID string, amount int) error

	// Adjust 原子执行 quantity += delta，守卫调整后 quantity >= reserved_quantity 且 >= 0。
	Adjust(ctx context.Context, itemID, warehouseID string, delta int) error
}

// ReservationRepository 预占记录存储的出站端口。
type ReservationRepository interface {
	Create(ctx context.Context, res *domain.Reservation) error
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	ListByOrderRef(ctx context.Context, orderRef string) ([]*domain.Reservation, error)
	ListActiveByItem(ctx context.Context, itemID string) ([]*domain.Reservation, error)

	// ListExpired 返回 status = CONFIRMED 且 expires_at < now 的预占。
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Reservation, error)

	// UpdateExpiry 更新过期时间，仅对非终态记录生效。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// Transition 受状态守卫的终态流转：仅当当前状态仍为 CONFIRMED 时置为 to，
	// 返回本次调用是否赢得流转。竞争失败（已是终态）返回 false 而非错误，
	// 这是 cancel 与过期清扫之间恰好一次结算的仲裁点。
	Transition(ctx context.Context, id string, to domain.ReservationStatus) (bool, error)
}

// LedgerRepository 流水账本的出站端口。只有追加和查询，不暴露更新或删除。
type LedgerRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	Query(ctx context.Context, filter domain.LedgerFilter) ([]*domain.Transaction, error)

	// SumByType 按流水类型聚合某商品在给定时间段内的数量变化，用于对账。
	// warehouseID 为空表示跨仓库汇总。
	SumByType(ctx context.Context, itemID, warehouseID string, from, to time.Time) (map[domain.TransactionType]int, error)
}
