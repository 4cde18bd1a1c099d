package infrastructure

import (
	"time"

	"depot/internal/service/inventory/domain"
)

// AllocationModel 对应 inventory_allocations 表，(item_id, warehouse_id) 唯一。
type AllocationModel struct {
	ID               string `gorm:"primaryKey;size:36"`
	ItemID           string `gorm:"size:64;uniqueIndex:idx_item_warehouse,priority:1;index"`
	WarehouseID      string `gorm:"size:64;uniqueIndex:idx_item_warehouse,priority:2"`
	Quantity         int    `gorm:"not null"`
	ReservedQuantity int    `gorm:"not null"`
	BinLocation      string `gorm:"size:64"`
	Aisle            string `gorm:"size:32"`
	Rack             string `gorm:"size:32"`
	Notes            string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (AllocationModel) TableName() string {
	return "inventory_allocations"
}

// ReservationModel 对应 inventory_reservations 表。
type ReservationModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	ItemID      string    `gorm:"size:64;index"`
	WarehouseID string    `gorm:"size:64"`
	Quantity    int       `gorm:"not null"`
	OrderRef    string    `gorm:"size:64;index"`
	ActorID     string    `gorm:"size:64"`
	ExpiresAt   time.Time `gorm:"index"`
	Status      string    `gorm:"size:16;index"`
	Notes       string    `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ReservationModel) TableName() string {
	return "inventory_reservations"
}

// TransactionModel 对应 inventory_transactions 表。只插入，永不更新或删除。
type TransactionModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	ItemID        string    `gorm:"size:64;index:idx_item_time,priority:1"`
	WarehouseID   string    `gorm:"size:64;index"`
	Quantity      int       `gorm:"not null"`
	Type          string    `gorm:"size:16;index"`
	ReferenceID   string    `gorm:"size:64;index"`
	ReferenceType string    `gorm:"size:32"`
	ActorID       string    `gorm:"size:64"`
	Note          string    `gorm:"type:text"`
	Timestamp     time.Time `gorm:"index:idx_item_time,priority:2"`
}

func (TransactionModel) TableName() string {
	return "inventory_transactions"
}

// --- 数据库模型与领域模型的转换 ---

func toDomainAllocation(m *AllocationModel) *domain.Allocation {
	return &domain.Allocation{
		ID:               m.ID,
		ItemID:           m.ItemID,
		WarehouseID:      m.WarehouseID,
		Quantity:         m.Quantity,
		ReservedQuantity: m.ReservedQuantity,
		BinLocation:      m.BinLocation,
		Aisle:            m.Aisle,
		Rack:             m.Rack,
		Notes:            m.Notes,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func fromDomainAllocation(a *domain.Allocation) *AllocationModel {
	return &AllocationModel{
		ID:               a.ID,
		ItemID:           a.ItemID,
		WarehouseID:      a.WarehouseID,
		Quantity:         a.Quantity,
		ReservedQuantity: a.ReservedQuantity,
		BinLocation:      a.BinLocation,
		Aisle:            a.Aisle,
		Rack:             a.Rack,
		Notes:            a.Notes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		ID:          m.ID,
		ItemID:      m.ItemID,
		WarehouseID: m.WarehouseID,
		Quantity:    m.Quantity,
		OrderRef:    m.OrderRef,
		ActorID:     m.ActorID,
		ExpiresAt:   m.ExpiresAt,
		Status:      domain.ReservationStatus(m.Status),
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromDomainReservation(r *domain.Reservation) *ReservationModel {
	return &ReservationModel{
		ID:          r.ID,
		ItemID:      r.ItemID,
		WarehouseID: r.WarehouseID,
		Quantity:    r.Quantity,
		OrderRef:    r.OrderRef,
		ActorID:     r.ActorID,
		ExpiresAt:   r.ExpiresAt,
		Status:      string(r.Status),
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toDomainTransaction(m *TransactionModel) *domain.Transaction {
	return &domain.Transaction{
		ID:            m.ID,
		ItemID:        m.ItemID,
		WarehouseID:   m.WarehouseID,
		Quantity:      m.Quantity,
		Type:          domain.TransactionType(m.Type),
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		ActorID:       m.ActorID,
		Note:          m.Note,
		Timestamp:     m.Timestamp,
	}
}

func fromDomainTransaction(t *domain.Transaction) *TransactionModel {
	return &TransactionModel{
		ID:            t.ID,
		ItemID:        t.ItemID,
		WarehouseID:   t.WarehouseID,
		Quantity:      t.Quantity,
		Type:          string(t.Type),
		ReferenceID:   t.ReferenceID,
		ReferenceType: t.ReferenceType,
		ActorID:       t.ActorID,
		Note:          t.Note,
		Timestamp:     t.Timestamp,
	}
}
