package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType 库存流水类型。
type TransactionType string

const (
	TransactionReceipt     TransactionType = "RECEIPT"     // 采购/入库
	TransactionSale        TransactionType = "SALE"        // 预占结算为销售扣减
	TransactionReservation TransactionType = "RESERVATION" // 临时预占
	TransactionRelease     TransactionType = "RELEASE"     // 预占释放
	TransactionTransfer    TransactionType = "TRANSFER"    // 仓库间调拨
	TransactionAdjustment  TransactionType = "ADJUSTMENT"  // 人工调整
)

// Transaction 是账本中一条只追加、不可变的流水记录。
// Allocation 的 Quantity 或 ReservedQuantity 每次变更都必须恰好对应一条流水。
type Transaction struct {
	ID            string
	ItemID        string
	WarehouseID   string
	Quantity      int // 带符号的数量变化
	Type          TransactionType
	ReferenceID   string
	ReferenceType string
	ActorID       string
	Note          string
	Timestamp     time.Time
}

// LedgerFilter 账本查询条件，零值字段表示不过滤。
type LedgerFilter struct {
	ItemID      string
	WarehouseID string
	Type        TransactionType
	ReferenceID string
	From        time.Time
	To          time.Time
	Limit       int
}

func newTransaction(itemID, warehouseID string, quantity int, txType TransactionType, refID, refType, actorID, note string) *Transaction {
	return &Transaction{
		ID:            uuid.NewString(),
		ItemID:        itemID,
		WarehouseID:   warehouseID,
		Quantity:      quantity,
		Type:          txType,
		ReferenceID:   refID,
		ReferenceType: refType,
		ActorID:       actorID,
		Note:          note,
		Timestamp:     time.Now(),
	}
}

// NewReceiptTransaction 入库流水，数量为正。
func NewReceiptTransaction(itemID, warehouseID string, quantity int, refID, actorID, note string) *Transaction {
	return newTransaction(itemID, warehouseID, abs(quantity), TransactionReceipt, refID, "PURCHASE_ORDER", actorID, note)
}

// NewReservationTransaction 预占流水，数量为负，引用订单。
func NewReservationTransaction(itemID, warehouseID string, quantity int, orderRef, actorID string) *Transaction {
	return newTransaction(itemID, warehouseID, -abs(quantity), TransactionReservation, orderRef, "ORDER", actorID, "")
}

// NewReleaseTransaction 释放流水，数量为正，引用订单。
func NewReleaseTransaction(itemID, warehouseID string, quantity int, orderRef, actorID, note string) *Transaction {
	return newTransaction(itemID, warehouseID, abs(quantity), TransactionRelease, orderRef, "ORDER", actorID, note)
}

// NewSaleTransaction 销售扣减流水，数量为负，引用订单。
func NewSaleTransaction(itemID, warehouseID string, quantity int, orderRef, actorID string) *Transaction {
	return newTransaction(itemID, warehouseID, -abs(quantity), TransactionSale, orderRef, "ORDER", actorID, "")
}

// NewAdjustmentTransaction 人工调整流水，保留带符号数量与调整原因。
func NewAdjustmentTransaction(itemID, warehouseID string, delta int, reason, actorID string) *Transaction {
	return newTransaction(itemID, warehouseID, delta, TransactionAdjustment, "", "MANUAL", actorID, reason)
}

// NewTransferTransactions 调拨流水对：源仓为负、目的仓为正，共享同一个引用 ID
// 以便对账时配对。
func NewTransferTransactions(itemID, fromWarehouseID, toWarehouseID string, quantity int, actorID string) (*Transaction, *Transaction) {
	refID := uuid.NewString()
	out := newTransaction(itemID, fromWarehouseID, -abs(quantity), TransactionTransfer, refID, "TRANSFER", actorID, "transfer to "+toWarehouseID)
	in := newTransaction(itemID, toWarehouseID, abs(quantity), TransactionTransfer, refID, "TRANSFER", actorID, "transfer from "+fromWarehouseID)
	return out, in
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
