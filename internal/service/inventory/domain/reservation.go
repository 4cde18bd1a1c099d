package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus 预占状态。状态机单向流转：
// CONFIRMED -> COMPLETED | CANCELLED | EXPIRED，终态之间互斥且不可再变更。
type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusExpired   ReservationStatus = "EXPIRED"
)

// Reservation 是一条限时库存持有记录。每条预占绑定唯一的 (商品, 仓库) 腿：
// 一次跨仓库的逻辑请求会产生多条预占，各自独立结算，保留完整的供货溯源。
//
// 不变量：预占持有的数量在其生命周期内恰好被归还（release 或 commit）一次。
type Reservation struct {
	ID          string
	ItemID      string
	WarehouseID string
	Quantity    int
	OrderRef    string
	ActorID     string
	ExpiresAt   time.Time
	Status      ReservationStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReservation 创建初始状态为 CONFIRMED 的预占记录。
// 必填字段在构造时校验，非法参数直接拒绝。
func NewReservation(itemID, warehouseID string, quantity int, orderRef, actorID string, ttl time.Duration) (*Reservation, error) {
	if itemID == "" || warehouseID == "" || orderRef == "" {
		return nil, ErrInvalidArgument
	}
	if quantity <= 0 || ttl <= 0 {
		return nil, ErrInvalidArgument
	}
	now := time.Now()
	return &Reservation{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		OrderRef:    orderRef,
		ActorID:     actorID,
		ExpiresAt:   now.Add(ttl),
		Status:      StatusConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsTerminal 是否处于终态。
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled || r.Status == StatusExpired
}

// IsExpired 给定时刻是否已过期。
func (r *Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Extend 延长过期时间。终态或已过期的预占不做任何变更，返回 false。
func (r *Reservation) Extend(minutes int, now time.Time) bool {
	if r.IsTerminal() || r.IsExpired(now) {
		return false
	}
	r.ExpiresAt = r.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	r.UpdatedAt = now
	return true
}
