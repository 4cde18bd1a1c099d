package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"depot/internal/service/inventory/domain"
	"depot/internal/service/inventory/domain/port"
	"depot/internal/service/inventory/infrastructure/memory"
)

// recordingNotifier 记录收到的事件，可配置为持续失败。
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ReservationNotification
	fail   bool
}

func (n *recordingNotifier) NotifyReservationOutcome(_ context.Context, event domain.ReservationNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return domain.ErrNotificationFailure
	}
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) received() []domain.ReservationNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ReservationNotification, len(n.events))
	copy(out, n.events)
	return out
}

type fixture struct {
	svc         *Service
	allocations *memory.AllocationStore
	reservation *memory.ReservationStore
	ledger      *memory.LedgerStore
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		allocations: memory.NewAllocationStore(),
		reservation: memory.NewReservationStore(),
		ledger:      memory.NewLedgerStore(),
		notifier:    &recordingNotifier{},
	}
	f.svc = NewService(f.allocations, f.reservation, f.ledger, f.notifier, nil, 24*time.Hour)
	return f
}

func (f *fixture) receive(t *testing.T, warehouseID string, quantity int) {
	t.Helper()
	err := f.svc.Receive(context.Background(), ReceiveCommand{
		ItemID: "item-1", WarehouseID: warehouseID, Quantity: quantity, ReferenceID: "po-1", ActorID: "clerk",
	})
	if err != nil {
		t.Fatalf("receive into %s: %v", warehouseID, err)
	}
}

func (f *fixture) allocation(t *testing.T, warehouseID string) *domain.Allocation {
	t.Helper()
	alloc, err := f.allocations.Get(context.Background(), "item-1", warehouseID)
	if err != nil {
		t.Fatalf("get allocation %s: %v", warehouseID, err)
	}
	return alloc
}

func (f *fixture) ledgerRows(t *testing.T, txType domain.TransactionType) []*domain.Transaction {
	t.Helper()
	rows, err := f.ledger.Query(context.Background(), domain.LedgerFilter{ItemID: "item-1", Type: txType})
	if err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	return rows
}

func TestReserveCompleteRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	created, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 4, OrderRef: "order-1", ActorID: "buyer", TTL: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected a single-leg reservation, got %d", len(created))
	}

	alloc := f.allocation(t, "wh-1")
	if alloc.Quantity != 10 || alloc.ReservedQuantity != 4 {
		t.Fatalf("after reserve: quantity=%d reserved=%d", alloc.Quantity, alloc.ReservedQuantity)
	}

	allOK, err := f.svc.Complete(ctx, "order-1", "buyer")
	if err != nil || !allOK {
		t.Fatalf("complete: allOK=%t err=%v", allOK, err)
	}

	alloc = f.allocation(t, "wh-1")
	if alloc.Quantity != 6 || alloc.ReservedQuantity != 0 {
		t.Fatalf("after complete: quantity=%d reserved=%d", alloc.Quantity, alloc.ReservedQuantity)
	}

	got, err := f.reservation.Get(ctx, created[0].ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("reservation status = %s, want COMPLETED", got.Status)
	}

	// 流水：入库、预占、销售各一条，预占和销售为负数
	if rows := f.ledgerRows(t, domain.TransactionReceipt); len(rows) != 1 || rows[0].Quantity != 10 {
		t.Fatalf("unexpected RECEIPT rows: %+v", rows)
	}
	if rows := f.ledgerRows(t, domain.TransactionReservation); len(rows) != 1 || rows[0].Quantity != -4 {
		t.Fatalf("unexpected RESERVATION rows: %+v", rows)
	}
	if rows := f.ledgerRows(t, domain.TransactionSale); len(rows) != 1 || rows[0].Quantity != -4 {
		t.Fatalf("unexpected SALE rows: %+v", rows)
	}
	if rows := f.ledgerRows(t, domain.TransactionRelease); len(rows) != 0 {
		t.Fatalf("completion must not write RELEASE rows: %+v", rows)
	}
}

func TestReserveInsufficientInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 3)

	_, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", Quantity: 5, OrderRef: "order-1", TTL: time.Minute,
	})
	if !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}

	alloc := f.allocation(t, "wh-1")
	if alloc.ReservedQuantity != 0 {
		t.Fatalf("failed reserve must not hold stock, reserved=%d", alloc.ReservedQuantity)
	}
	if rows := f.ledgerRows(t, domain.TransactionReservation); len(rows) != 0 {
		t.Fatalf("failed reserve must not write RESERVATION rows: %+v", rows)
	}
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []ReserveCommand{
		{ItemID: "", Quantity: 1, OrderRef: "order-1", TTL: time.Minute},
		{ItemID: "item-1", Quantity: 0, OrderRef: "order-1", TTL: time.Minute},
		{ItemID: "item-1", Quantity: 1, OrderRef: "", TTL: time.Minute},
		{ItemID: "item-1", Quantity: 1, OrderRef: "order-1", TTL: 0},
		{ItemID: "item-1", Quantity: 1, OrderRef: "order-1", TTL: 48 * time.Hour}, // 超出上限
	}
	for i, cmd := range cases {
		if _, err := f.svc.Reserve(ctx, cmd); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestReserveSpansWarehousesAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 5)
	f.receive(t, "wh-2", 10)

	created, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", Quantity: 8, OrderRef: "order-1", TTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected one reservation per leg, got %d", len(created))
	}
	if created[0].WarehouseID != "wh-1" || created[0].Quantity != 5 {
		t.Fatalf("first leg = %s/%d, want wh-1/5", created[0].WarehouseID, created[0].Quantity)
	}
	if created[1].WarehouseID != "wh-2" || created[1].Quantity != 3 {
		t.Fatalf("second leg = %s/%d, want wh-2/3", created[1].WarehouseID, created[1].Quantity)
	}
	if rows := f.ledgerRows(t, domain.TransactionReservation); len(rows) != 2 {
		t.Fatalf("expected one RESERVATION row per leg: %+v", rows)
	}
}

// failingLegRepo 让指定仓库的条件预占失败，模拟选仓和持有之间被并发请求抢走库存。
type failingLegRepo struct {
	port.AllocationRepository
	failWarehouse string
}

func (r *failingLegRepo) Reserve(ctx context.Context, itemID, warehouseID string, amount int) error {
	if warehouseID == r.failWarehouse {
		return domain.ErrInsufficientInventory
	}
	return r.AllocationRepository.Reserve(ctx, itemID, warehouseID, amount)
}

func TestReserveRollsBackHeldLegsOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 5)
	f.receive(t, "wh-2", 10)

	svc := NewService(
		&failingLegRepo{AllocationRepository: f.allocations, failWarehouse: "wh-2"},
		f.reservation, f.ledger, f.notifier, nil, 24*time.Hour,
	)

	_, err := svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", Quantity: 8, OrderRef: "order-1", TTL: time.Minute,
	})
	if !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}

	// 第一条腿的临时持有必须被逆序补偿掉
	if alloc := f.allocation(t, "wh-1"); alloc.ReservedQuantity != 0 {
		t.Fatalf("wh-1 still holds %d after rollback", alloc.ReservedQuantity)
	}
	list, _ := f.reservation.ListByOrderRef(ctx, "order-1")
	if len(list) != 0 {
		t.Fatalf("failed reserve must not leave reservations behind: %+v", list)
	}
}

func TestCancelReleasesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	if _, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 4, OrderRef: "order-1", TTL: time.Minute,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	for i := 0; i < 2; i++ {
		allOK, err := f.svc.Cancel(ctx, "order-1")
		if err != nil || !allOK {
			t.Fatalf("cancel #%d: allOK=%t err=%v", i+1, allOK, err)
		}
	}

	alloc := f.allocation(t, "wh-1")
	if alloc.Quantity != 10 || alloc.ReservedQuantity != 0 {
		t.Fatalf("after cancel: quantity=%d reserved=%d", alloc.Quantity, alloc.ReservedQuantity)
	}
	// 幂等：重复取消不得产生第二条 RELEASE 流水
	if rows := f.ledgerRows(t, domain.TransactionRelease); len(rows) != 1 || rows[0].Quantity != 4 {
		t.Fatalf("expected exactly one RELEASE row, got %+v", rows)
	}
}

func TestCompleteAfterCancelIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	if _, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 4, OrderRef: "order-1", TTL: time.Minute,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, "order-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	allOK, err := f.svc.Complete(ctx, "order-1", "buyer")
	if err != nil || !allOK {
		t.Fatalf("complete after cancel: allOK=%t err=%v", allOK, err)
	}
	// 取消已经归还了持有，complete 不得再扣减物理库存
	alloc := f.allocation(t, "wh-1")
	if alloc.Quantity != 10 {
		t.Fatalf("quantity = %d, cancel followed by complete must not double settle", alloc.Quantity)
	}
	if rows := f.ledgerRows(t, domain.TransactionSale); len(rows) != 0 {
		t.Fatalf("lost completion must not write SALE rows: %+v", rows)
	}
}

func TestCompleteUnknownOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Complete(context.Background(), "order-missing", "buyer"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), "order-missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// missingAllocRepo 模拟 Allocation 行丢失的数据异常。
type missingAllocRepo struct {
	port.AllocationRepository
	missingWarehouse string
}

func (r *missingAllocRepo) Get(ctx context.Context, itemID, warehouseID string) (*domain.Allocation, error) {
	if warehouseID == r.missingWarehouse {
		return nil, domain.ErrNotFound
	}
	return r.AllocationRepository.Get(ctx, itemID, warehouseID)
}

func TestCompleteLeavesLegUnresolvedWhenAllocationMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 5)
	f.receive(t, "wh-2", 10)

	created, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", Quantity: 8, OrderRef: "order-1", TTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	svc := NewService(
		&missingAllocRepo{AllocationRepository: f.allocations, missingWarehouse: "wh-2"},
		f.reservation, f.ledger, f.notifier, nil, 24*time.Hour,
	)
	allOK, err := svc.Complete(ctx, "order-1", "buyer")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if allOK {
		t.Fatal("complete with a missing allocation must report partial success")
	}

	// 健康的腿正常结算，异常的腿保持 CONFIRMED 等待人工处理
	for _, res := range created {
		got, err := f.reservation.Get(ctx, res.ID)
		if err != nil {
			t.Fatalf("get reservation: %v", err)
		}
		switch got.WarehouseID {
		case "wh-1":
			if got.Status != domain.StatusCompleted {
				t.Fatalf("healthy leg status = %s, want COMPLETED", got.Status)
			}
		case "wh-2":
			if got.Status != domain.StatusConfirmed {
				t.Fatalf("broken leg status = %s, want CONFIRMED", got.Status)
			}
		}
	}
}

func TestExtendMovesExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	created, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 1, OrderRef: "order-1", TTL: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	before := created[0].ExpiresAt

	res, err := f.svc.Extend(ctx, created[0].ID, 20)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got := res.ExpiresAt.Sub(before); got != 20*time.Minute {
		t.Fatalf("expiry moved by %v, want 20m", got)
	}

	if _, err := f.svc.Extend(ctx, created[0].ID, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero minutes, got %v", err)
	}
	if _, err := f.svc.Extend(ctx, "res-missing", 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExtendTerminalReservationIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	created, _ := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 1, OrderRef: "order-1", TTL: 10 * time.Minute,
	})
	if _, err := f.svc.Cancel(ctx, "order-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	res, err := f.svc.Extend(ctx, created[0].ID, 20)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if res.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", res.Status)
	}
	if !res.ExpiresAt.Equal(created[0].ExpiresAt) {
		t.Fatal("extend of a terminal reservation must not move the expiry")
	}
}

func TestSweepExpiredReleasesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	created, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 4, OrderRef: "order-1", TTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// 未到期的扫描什么都不处理
	processed, err := f.svc.SweepExpired(ctx, time.Now())
	if err != nil || processed != 0 {
		t.Fatalf("early sweep: processed=%d err=%v", processed, err)
	}

	processed, err = f.svc.SweepExpired(ctx, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	got, _ := f.reservation.Get(ctx, created[0].ID)
	if got.Status != domain.StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", got.Status)
	}
	if alloc := f.allocation(t, "wh-1"); alloc.Quantity != 10 || alloc.ReservedQuantity != 0 {
		t.Fatalf("after sweep: quantity=%d reserved=%d", alloc.Quantity, alloc.ReservedQuantity)
	}
	if rows := f.ledgerRows(t, domain.TransactionRelease); len(rows) != 1 {
		t.Fatalf("expected exactly one RELEASE row, got %+v", rows)
	}

	// 过期通知发给订单流程
	var sawExpired bool
	for _, event := range f.notifier.received() {
		if event.Status == domain.NotifyExpired && event.OrderRef == "order-1" {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Fatal("expected an EXPIRED notification for order-1")
	}

	// 再扫一次不得重复结算
	processed, err = f.svc.SweepExpired(ctx, time.Now().Add(2*time.Minute))
	if err != nil || processed != 0 {
		t.Fatalf("second sweep: processed=%d err=%v", processed, err)
	}
}

func TestNotificationFailureDoesNotAffectReservation(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	created, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 4, OrderRef: "order-1", TTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve must succeed despite notification failure: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(created))
	}
	if alloc := f.allocation(t, "wh-1"); alloc.ReservedQuantity != 4 {
		t.Fatalf("reserved = %d, want 4", alloc.ReservedQuantity)
	}
}

func TestTransferMovesStockAndPairsLedgerRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	err := f.svc.Transfer(ctx, TransferCommand{
		ItemID: "item-1", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: 4, ActorID: "ops",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if alloc := f.allocation(t, "wh-1"); alloc.Quantity != 6 {
		t.Fatalf("source quantity = %d, want 6", alloc.Quantity)
	}
	if alloc := f.allocation(t, "wh-2"); alloc.Quantity != 4 {
		t.Fatalf("destination quantity = %d, want 4", alloc.Quantity)
	}

	rows := f.ledgerRows(t, domain.TransactionTransfer)
	if len(rows) != 2 {
		t.Fatalf("expected a pair of TRANSFER rows, got %d", len(rows))
	}
	if rows[0].ReferenceID == "" || rows[0].ReferenceID != rows[1].ReferenceID {
		t.Fatalf("paired rows must share a reference id: %q vs %q", rows[0].ReferenceID, rows[1].ReferenceID)
	}
	if rows[0].Quantity+rows[1].Quantity != 0 {
		t.Fatalf("paired rows must net to zero: %d and %d", rows[0].Quantity, rows[1].Quantity)
	}
}

func TestTransferRespectsReservedStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	if _, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 7, OrderRef: "order-1", TTL: time.Minute,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// 可用只剩 3，调拨 4 必须失败且不动库存
	err := f.svc.Transfer(ctx, TransferCommand{
		ItemID: "item-1", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: 4, ActorID: "ops",
	})
	if !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
	if alloc := f.allocation(t, "wh-1"); alloc.Quantity != 10 {
		t.Fatalf("failed transfer must not move stock, quantity=%d", alloc.Quantity)
	}
}

func TestAdjustGuardsInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "wh-1", 10)

	if _, err := f.svc.Reserve(ctx, ReserveCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: 6, OrderRef: "order-1", TTL: time.Minute,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	err := f.svc.Adjust(ctx, AdjustCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Delta: -5, Reason: "cycle count", ActorID: "ops",
	})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("adjustment below reserved quantity must fail, got %v", err)
	}

	if err := f.svc.Adjust(ctx, AdjustCommand{
		ItemID: "item-1", WarehouseID: "wh-1", Delta: -4, Reason: "cycle count", ActorID: "ops",
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if alloc := f.allocation(t, "wh-1"); alloc.Quantity != 6 {
		t.Fatalf("quantity = %d, want 6", alloc.Quantity)
	}
	if rows := f.ledgerRows(t, domain.TransactionAdjustment); len(rows) != 1 || rows[0].Quantity != -4 {
		t.Fatalf("unexpected ADJUSTMENT rows: %+v", rows)
	}

	if err := f.svc.Adjust(ctx, AdjustCommand{ItemID: "item-1", WarehouseID: "wh-1", Delta: 0, Reason: "noop"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero delta must be rejected, got %v", err)
	}
}
