package domain

import (
	"time"

	"github.com/google/uuid"
)

// Allocation 是某个商品在某个仓库的库存记录，(ItemID, WarehouseID) 组合唯一。
// 它是可用库存的唯一事实来源：Quantity 为物理在库数量，ReservedQuantity 为
// 活跃预占持有的数量。
//
// 不变量: 0 <= ReservedQuantity <= Quantity。
// 记录一经创建永不删除，数量归零的行保留。
type Allocation struct {
	ID               string
	ItemID           string
	WarehouseID      string
	Quantity         int
	ReservedQuantity int

	// 库位元数据
	BinLocation string
	Aisle       string
	Rack        string
	Notes       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAllocation 在首次收货时创建库存分配记录。
func NewAllocation(itemID, warehouseID string) (*Allocation, error) {
	if itemID == "" || warehouseID == "" {
		return nil, ErrInvalidArgument
	}
	now := time.Now()
	return &Allocation{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		WarehouseID: warehouseID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AvailableQuantity 可供新预占使用的数量。
func (a *Allocation) AvailableQuantity() int {
	return a.Quantity - a.ReservedQuantity
}

// Reserve 预占指定数量。仅当 amount > 0 且可用数量充足时成功。
func (a *Allocation) Reserve(amount int) bool {
	if amount <= 0 || amount > a.AvailableQuantity() {
		return false
	}
	a.ReservedQuantity += amount
	a.UpdatedAt = time.Now()
	return true
}

// Release 归还之前预占的数量，不扣减物理库存。
func (a *Allocation) Release(amount int) bool {
	if amount <= 0 || amount > a.ReservedQuantity {
		return false
	}
	a.ReservedQuantity -= amount
	a.UpdatedAt = time.Now()
	return true
}

// Commit 将预占转为永久扣减：物理数量与预占数量同时减少。
func (a *Allocation) Commit(amount int) bool {
	if amount <= 0 || amount > a.ReservedQuantity {
		return false
	}
	a.Quantity -= amount
	a.ReservedQuantity -= amount
	a.UpdatedAt = time.Now()
	return true
}

// AddStock 入库，amount 必须为正。
func (a *Allocation) AddStock(amount int) bool {
	if amount <= 0 {
		return false
	}
	a.Quantity += amount
	a.UpdatedAt = time.Now()
	return true
}

// Adjust 人工调整物理数量。调整后不允许 Quantity < ReservedQuantity 或 < 0。
func (a *Allocation) Adjust(delta int) bool {
	next := a.Quantity + delta
	if delta == 0 || next < 0 || next < a.ReservedQuantity {
		return false
	}
	a.Quantity = next
	a.UpdatedAt = time.Now()
	return true
}
