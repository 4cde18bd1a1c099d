package application

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"depot/internal/pkg/logger"
	"depot/internal/service/inventory/domain"
)

// ReceiveCommand 入库请求。
type ReceiveCommand struct {
	ItemID      string
	WarehouseID string
	Quantity    int
	ReferenceID string
	ActorID     string
	Note        string
	BinLocation string
	Aisle       string
	Rack        string
}

// Receive 收货入库。首次收到某 (商品, 仓库) 的货时创建分配记录，
// 之后累加物理数量并写一条 RECEIPT 流水。
func (s *Service) Receive(ctx context.Context, cmd ReceiveCommand) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Receive", trace.WithAttributes(
		attribute.String("item.id", cmd.ItemID),
		attribute.String("warehouse.id", cmd.WarehouseID),
		attribute.Int("quantity", cmd.Quantity),
	))
	defer span.End()

	if cmd.ItemID == "" || cmd.WarehouseID == "" || cmd.Quantity <= 0 {
		return domain.ErrInvalidArgument
	}

	if err := s.ensureAllocation(ctx, cmd); err != nil {
		return err
	}
	if err := s.allocations.Receive(ctx, cmd.ItemID, cmd.WarehouseID, cmd.Quantity); err != nil {
		span.RecordError(err)
		return err
	}
	s.appendLedger(ctx, domain.NewReceiptTransaction(cmd.ItemID, cmd.WarehouseID, cmd.Quantity, cmd.ReferenceID, cmd.ActorID, cmd.Note))
	s.refreshSnapshot(ctx, cmd.ItemID, cmd.WarehouseID)
	return nil
}

// ensureAllocation 保证分配行存在。并发首次入库时创建可能撞唯一键，
// 撞上说明别人已建好，继续即可。
func (s *Service) ensureAllocation(ctx context.Context, cmd ReceiveCommand) error {
	_, err := s.allocations.Get(ctx, cmd.ItemID, cmd.WarehouseID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	alloc, err := domain.NewAllocation(cmd.ItemID, cmd.WarehouseID)
	if err != nil {
		return err
	}
	alloc.BinLocation = cmd.BinLocation
	alloc.Aisle = cmd.Aisle
	alloc.Rack = cmd.Rack
	if err := s.allocations.Create(ctx, alloc); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil
		}
		return err
	}
	return nil
}

// AdjustCommand 人工调整请求，delta 带符号。
type AdjustCommand struct {
	ItemID      string
	WarehouseID string
	Delta       int
	Reason      string
	ActorID     string
}

// Adjust 人工修正物理数量（盘点差异等）。调整不允许打破
// quantity >= reserved_quantity >= 0 的不变量。
func (s *Service) Adjust(ctx context.Context, cmd AdjustCommand) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Adjust", trace.WithAttributes(
		attribute.String("item.id", cmd.ItemID),
		attribute.Int("delta", cmd.Delta),
	))
	defer span.End()

	if cmd.ItemID == "" || cmd.WarehouseID == "" || cmd.Delta == 0 || cmd.Reason == "" {
		return domain.ErrInvalidArgument
	}
	if err := s.allocations.Adjust(ctx, cmd.ItemID, cmd.WarehouseID, cmd.Delta); err != nil {
		span.RecordError(err)
		return err
	}
	s.appendLedger(ctx, domain.NewAdjustmentTransaction(cmd.ItemID, cmd.WarehouseID, cmd.Delta, cmd.Reason, cmd.ActorID))
	s.refreshSnapshot(ctx, cmd.ItemID, cmd.WarehouseID)
	return nil
}

// TransferCommand 仓库间调拨请求。
type TransferCommand struct {
	ItemID          string
	FromWarehouseID string
	ToWarehouseID   string
	Quantity        int
	ActorID         string
}

// Transfer 在仓库间调拨未被预占的库存。源仓可用数量不足时整体失败；
// 目的仓入库失败时补偿源仓。成对写两条共享引用 ID 的 TRANSFER 流水。
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Transfer", trace.WithAttributes(
		attribute.String("item.id", cmd.ItemID),
		attribute.String("warehouse.from", cmd.FromWarehouseID),
		attribute.String("warehouse.to", cmd.ToWarehouseID),
		attribute.Int("quantity", cmd.Quantity),
	))
	defer span.End()

	if cmd.ItemID == "" || cmd.FromWarehouseID == "" || cmd.ToWarehouseID == "" ||
		cmd.FromWarehouseID == cmd.ToWarehouseID || cmd.Quantity <= 0 {
		return domain.ErrInvalidArgument
	}

	// 源仓扣减的守卫条件恰好是「可用数量充足」，守卫失败对调用方就是库存不足
	if err := s.allocations.Adjust(ctx, cmd.ItemID, cmd.FromWarehouseID, -cmd.Quantity); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return domain.ErrInsufficientInventory
		}
		return err
	}

	if err := s.ensureAllocation(ctx, ReceiveCommand{ItemID: cmd.ItemID, WarehouseID: cmd.ToWarehouseID}); err == nil {
		err = s.allocations.Receive(ctx, cmd.ItemID, cmd.ToWarehouseID, cmd.Quantity)
		if err == nil {
			out, in := domain.NewTransferTransactions(cmd.ItemID, cmd.FromWarehouseID, cmd.ToWarehouseID, cmd.Quantity, cmd.ActorID)
			s.appendLedger(ctx, out)
			s.appendLedger(ctx, in)
			s.refreshSnapshot(ctx, cmd.ItemID, cmd.FromWarehouseID)
			s.refreshSnapshot(ctx, cmd.ItemID, cmd.ToWarehouseID)
			return nil
		}
	}

	// 目的仓入库失败，补偿源仓
	if err := s.allocations.Receive(ctx, cmd.ItemID, cmd.FromWarehouseID, cmd.Quantity); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("item_id", cmd.ItemID).
			Str("warehouse_id", cmd.FromWarehouseID).
			Msg("transfer: compensation failed, stock stranded, manual reconciliation required")
	}
	return domain.ErrConcurrencyConflict
}
