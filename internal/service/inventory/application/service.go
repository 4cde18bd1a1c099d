package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"depot/internal/pkg/logger"
	"depot/internal/service/inventory/domain"
	"depot/internal/service/inventory/domain/port"
)

const serviceName = "inventory-service"

// Service 是预占编排器：对外提供 reserve / extend / complete / cancel /
// sweep 以及入库、调整、调拨和各类查询，内部把选仓、库存原子原语、
// 流水账本和通知串成完整操作。
//
// 终态结算遵循 claim-then-act：先通过受状态守卫的 Transition 赢得终态流转，
// 再执行数量动作。谁先赢得流转谁负责结算，输掉的一方什么都不做，
// 保证每条预占持有的数量在生命周期内恰好被归还一次。
type Service struct {
	allocations  port.AllocationRepository
	reservations port.ReservationRepository
	ledger       port.LedgerRepository
	notifier     port.Notifier
	cache        port.AvailabilityCache // 可为 nil，只影响读路径
	selector     *Selector
	tracer       trace.Tracer
	maxTTL       time.Duration
}

// NewService 组装预占编排器。cache 传 nil 表示不启用快照。
func NewService(
	allocations port.AllocationRepository,
	reservations port.ReservationRepository,
	ledger port.LedgerRepository,
	notifier port.Notifier,
	cache port.AvailabilityCache,
	maxTTL time.Duration,
) *Service {
	return &Service{
		allocations:  allocations,
		reservations: reservations,
		ledger:       ledger,
		notifier:     notifier,
		cache:        cache,
		selector:     NewSelector(allocations),
		tracer:       otel.Tracer(serviceName),
		maxTTL:       maxTTL,
	}
}

// ReserveCommand 预占请求。WarehouseID 为空表示由选仓器跨仓库分配。
type ReserveCommand struct {
	ItemID      string
	WarehouseID string
	Quantity    int
	OrderRef    string
	ActorID     string
	TTL         time.Duration
}

// Reserve 创建限时库存持有。多腿请求是全有或全无的：任何一条腿的条件预占
// 失败，都会按逆序释放此前已持有的腿，再整体返回 InsufficientInventory，
// 外部观察者永远看不到部分持有的多腿预占。
func (s *Service) Reserve(ctx context.Context, cmd ReserveCommand) ([]*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.String("item.id", cmd.ItemID),
		attribute.Int("quantity", cmd.Quantity),
		attribute.String("order.ref", cmd.OrderRef),
	))
	defer span.End()

	if cmd.ItemID == "" || cmd.OrderRef == "" || cmd.Quantity <= 0 || cmd.TTL <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if s.maxTTL > 0 && cmd.TTL > s.maxTTL {
		return nil, fmt.Errorf("%w: ttl exceeds maximum %v", domain.ErrInvalidArgument, s.maxTTL)
	}

	legs, err := s.selector.Select(ctx, cmd.ItemID, cmd.WarehouseID, cmd.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientInventory) {
			insufficientRejections.Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		return nil, err
	}

	// 逐腿条件预占，失败时逆序补偿
	var held []Leg
	for _, leg := range legs {
		if err := s.allocations.Reserve(ctx, cmd.ItemID, leg.WarehouseID, leg.Quantity); err != nil {
			s.rollbackHeldLegs(ctx, cmd.ItemID, held)
			span.RecordError(err)
			span.SetStatus(codes.Error, "leg reserve failed")
			if errors.Is(err, domain.ErrInsufficientInventory) || errors.Is(err, domain.ErrNotFound) {
				insufficientRejections.Inc()
				return nil, domain.ErrInsufficientInventory
			}
			return nil, err
		}
		held = append(held, leg)
	}

	// 每条腿一条预占记录，保留完整的供货溯源
	created := make([]*domain.Reservation, 0, len(legs))
	for _, leg := range legs {
		res, err := domain.NewReservation(cmd.ItemID, leg.WarehouseID, leg.Quantity, cmd.OrderRef, cmd.ActorID, cmd.TTL)
		if err != nil {
			s.undoReserve(ctx, cmd, created, held)
			return nil, err
		}
		if err := s.reservations.Create(ctx, res); err != nil {
			s.undoReserve(ctx, cmd, created, held)
			span.RecordError(err)
			return nil, err
		}
		created = append(created, res)
		s.appendLedger(ctx, domain.NewReservationTransaction(cmd.ItemID, leg.WarehouseID, leg.Quantity, cmd.OrderRef, cmd.ActorID))
		s.refreshSnapshot(ctx, cmd.ItemID, leg.WarehouseID)
		reservationsCreated.Inc()
	}

	span.SetAttributes(attribute.Int("legs", len(created)))
	s.notify(ctx, domain.ReservationNotification{
		OrderRef: cmd.OrderRef,
		Status:   domain.NotifySuccess,
		Message:  fmt.Sprintf("reserved %d units of %s across %d warehouse(s)", cmd.Quantity, cmd.ItemID, len(created)),
	})
	return created, nil
}

// Extend 延长预占的过期时间。终态或已过期的预占不变更，原样返回。
func (s *Service) Extend(ctx context.Context, reservationID string, minutes int) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Extend")
	defer span.End()

	if minutes <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !res.Extend(minutes, time.Now()) {
		// no-op：已终态或已过期，交给清扫器/既有终态处理
		return res, nil
	}
	if err := s.reservations.UpdateExpiry(ctx, res.ID, res.ExpiresAt); err != nil {
		return nil, err
	}
	return res, nil
}

// Complete 把订单下所有非终态预占结算为销售扣减。单条腿失败不影响其余腿
// （部分成功策略），返回值表示是否全部成功，失败的腿留给人工处理。
func (s *Service) Complete(ctx context.Context, orderRef, actorID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Complete", trace.WithAttributes(
		attribute.String("order.ref", orderRef),
	))
	defer span.End()

	list, err := s.reservations.ListByOrderRef(ctx, orderRef)
	if err != nil {
		return false, err
	}
	if len(list) == 0 {
		return false, domain.ErrNotFound
	}

	allOK := true
	for _, res := range list {
		if res.IsTerminal() {
			continue
		}
		// Allocation 缺行属于数据异常：不流转状态，留在 CONFIRMED 等待人工处理
		if _, err := s.allocations.Get(ctx, res.ItemID, res.WarehouseID); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", res.ID).
				Str("item_id", res.ItemID).
				Str("warehouse_id", res.WarehouseID).
				Msg("complete: allocation missing, leg left unresolved")
			allOK = false
			continue
		}

		won, err := s.reservations.Transition(ctx, res.ID, domain.StatusCompleted)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("reservation_id", res.ID).Msg("complete: transition failed")
			allOK = false
			continue
		}
		if !won {
			// cancel 或清扫器已抢先结算
			continue
		}

		if err := s.allocations.Commit(ctx, res.ItemID, res.WarehouseID, res.Quantity); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", res.ID).
				Int("quantity", res.Quantity).
				Msg("complete: commit failed after claim, manual reconciliation required")
			allOK = false
			continue
		}
		s.appendLedger(ctx, domain.NewSaleTransaction(res.ItemID, res.WarehouseID, res.Quantity, orderRef, actorID))
		s.refreshSnapshot(ctx, res.ItemID, res.WarehouseID)
		reservationsCompleted.Inc()
	}

	status := domain.NotifySuccess
	if !allOK {
		status = domain.NotifyFailure
	}
	s.notify(ctx, domain.ReservationNotification{
		OrderRef: orderRef,
		Status:   status,
		Message:  fmt.Sprintf("order %s completion processed, all_legs_ok=%t", orderRef, allOK),
	})
	return allOK, nil
}

// Cancel 释放订单下所有非终态预占。对已终态的预占是无操作（幂等），
// 不会产生新的流水。
func (s *Service) Cancel(ctx context.Context, orderRef string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Cancel", trace.WithAttributes(
		attribute.String("order.ref", orderRef),
	))
	defer span.End()

	list, err := s.reservations.ListByOrderRef(ctx, orderRef)
	if err != nil {
		return false, err
	}
	if len(list) == 0 {
		return false, domain.ErrNotFound
	}

	allOK := true
	for _, res := range list {
		if res.IsTerminal() {
			continue
		}
		if ok := s.settleRelease(ctx, res, domain.StatusCancelled, "cancelled by order workflow"); !ok {
			allOK = false
			continue
		}
		reservationsCancelled.Inc()
	}
	return allOK, nil
}

// SweepExpired 释放截至 now 已过期的 CONFIRMED 预占，返回处理条数。
// 与手工 cancel 的竞争由 Transition 的状态守卫仲裁：谁先赢谁结算。
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.SweepExpired")
	defer span.End()

	expired, err := s.reservations.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, res := range expired {
		if ok := s.settleRelease(ctx, res, domain.StatusExpired, "expired hold released by sweeper"); !ok {
			continue
		}
		processed++
		reservationsExpired.Inc()
		s.notify(ctx, domain.ReservationNotification{
			OrderRef: res.OrderRef,
			Status:   domain.NotifyExpired,
			Message:  fmt.Sprintf("reservation %s for %d units of %s expired", res.ID, res.Quantity, res.ItemID),
		})
	}
	span.SetAttributes(attribute.Int("processed", processed))
	return processed, nil
}

// settleRelease 是 cancel 与过期清扫共用的释放路径：
// 赢得终态流转 -> 归还预占数量 -> 写 RELEASE 流水。
func (s *Service) settleRelease(ctx context.Context, res *domain.Reservation, to domain.ReservationStatus, note string) bool {
	won, err := s.reservations.Transition(ctx, res.ID, to)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("reservation_id", res.ID).Msg("release: transition failed")
		return false
	}
	if !won {
		// 另一个参与者已结算，本次什么都不做
		return true
	}
	if err := s.allocations.Release(ctx, res.ItemID, res.WarehouseID, res.Quantity); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", res.ID).
			Int("quantity", res.Quantity).
			Msg("release: allocation release failed after claim, manual reconciliation required")
		return false
	}
	s.appendLedger(ctx, domain.NewReleaseTransaction(res.ItemID, res.WarehouseID, res.Quantity, res.OrderRef, res.ActorID, note))
	s.refreshSnapshot(ctx, res.ItemID, res.WarehouseID)
	return true
}

// rollbackHeldLegs 逆序释放本次调用中已经持有成功的腿。
func (s *Service) rollbackHeldLegs(ctx context.Context, itemID string, held []Leg) {
	for i := len(held) - 1; i >= 0; i-- {
		leg := held[i]
		if err := s.allocations.Release(ctx, itemID, leg.WarehouseID, leg.Quantity); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("item_id", itemID).
				Str("warehouse_id", leg.WarehouseID).
				Int("quantity", leg.Quantity).
				Msg("rollback: failed to release provisional hold")
		}
	}
}

// undoReserve 预占记录落库中途失败时的整体补偿：
// 已创建的记录走取消路径，未落库的腿直接释放。
func (s *Service) undoReserve(ctx context.Context, cmd ReserveCommand, created []*domain.Reservation, held []Leg) {
	settled := make(map[string]bool, len(created))
	for _, res := range created {
		s.settleRelease(ctx, res, domain.StatusCancelled, "reserve aborted")
		settled[res.WarehouseID] = true
	}
	for i := len(held) - 1; i >= 0; i-- {
		leg := held[i]
		if settled[leg.WarehouseID] {
			continue
		}
		if err := s.allocations.Release(ctx, cmd.ItemID, leg.WarehouseID, leg.Quantity); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("warehouse_id", leg.WarehouseID).Msg("undo reserve: release failed")
		}
	}
}

func (s *Service) appendLedger(ctx context.Context, tx *domain.Transaction) {
	if err := s.ledger.Append(ctx, tx); err != nil {
		// 账本缺一条流水是对账事故，必须高可见地暴露
		logger.Ctx(ctx).Error().Err(err).
			Str("type", string(tx.Type)).
			Str("item_id", tx.ItemID).
			Int("quantity", tx.Quantity).
			Msg("LEDGER APPEND FAILED, audit trail incomplete")
	}
}

func (s *Service) refreshSnapshot(ctx context.Context, itemID, warehouseID string) {
	if s.cache == nil {
		return
	}
	alloc, err := s.allocations.Get(ctx, itemID, warehouseID)
	if err != nil {
		return
	}
	if err := s.cache.Refresh(ctx, itemID, warehouseID, alloc.AvailableQuantity()); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("item_id", itemID).Msg("availability snapshot refresh failed")
	}
}

// notify 尽力而为地投递通知：失败只记日志和计数，绝不影响本地状态。
func (s *Service) notify(ctx context.Context, event domain.ReservationNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyReservationOutcome(ctx, event); err != nil {
		notificationFailures.Inc()
		logger.Ctx(ctx).Warn().Err(err).
			Str("order_ref", event.OrderRef).
			Str("status", string(event.Status)).
			Msg("reservation outcome notification failed")
	}
}
