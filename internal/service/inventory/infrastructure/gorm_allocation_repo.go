package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"depot/internal/service/inventory/domain"
)

// GormAllocationRepository 是 AllocationRepository 的 GORM 实现。
//
// 所有数量变更都是单条 WHERE 守卫的 UPDATE：前置条件写进谓词，
// 通过 RowsAffected 判断是否命中，不做读取-修改-写回，并发下没有丢失更新。
type GormAllocationRepository struct {
	db *gorm.DB
}

func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

func (r *GormAllocationRepository) Create(ctx context.Context, alloc *domain.Allocation) error {
	err := r.db.WithContext(ctx).Create(fromDomainAllocation(alloc)).Error
	if err != nil {
		// 唯一键冲突说明并发创建输给了别人，调用方按已存在处理
		if isDuplicateKey(err) {
			return domain.ErrConcurrencyConflict
		}
		return pkgerrors.Wrap(err, "create allocation")
	}
	return nil
}

func (r *GormAllocationRepository) Get(ctx context.Context, itemID, warehouseID string) (*domain.Allocation, error) {
	var model AllocationModel
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "get allocation")
	}
	return toDomainAllocation(&model), nil
}

func (r *GormAllocationRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.Allocation, error) {
	var models []*AllocationModel
	// 仓库 ID 升序是选仓确定性的约定，由这里保证
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("warehouse_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list allocations by item")
	}
	result := make([]*domain.Allocation, len(models))
	for i, m := range models {
		result[i] = toDomainAllocation(m)
	}
	return result, nil
}

func (r *GormAllocationRepository) ListLowStock(ctx context.Context, threshold int) ([]*domain.Allocation, error) {
	var models []*AllocationModel
	err := r.db.WithContext(ctx).
		Where("quantity - reserved_quantity <= ?", threshold).
		Order("item_id ASC, warehouse_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list low stock")
	}
	result := make([]*domain.Allocation, len(models))
	for i, m := range models {
		result[i] = toDomainAllocation(m)
	}
	return result, nil
}

func (r *GormAllocationRepository) Reserve(ctx context.Context, itemID, warehouseID string, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	res := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("item_id = ? AND warehouse_id = ? AND quantity - reserved_quantity >= ?", itemID, warehouseID, amount).
		UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity + ?", amount))
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "reserve allocation")
	}
	if res.RowsAffected == 0 {
		return r.classifyMiss(ctx, itemID, warehouseID, domain.ErrInsufficientInventory)
	}
	return nil
}

func (r *GormAllocationRepository) Release(ctx context.Context, itemID, warehouseID string, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	res := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("item_id = ? AND warehouse_id = ? AND reserved_quantity >= ?", itemID, warehouseID, amount).
		UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity - ?", amount))
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "release allocation")
	}
	if res.RowsAffected == 0 {
		return r.classifyMiss(ctx, itemID, warehouseID, domain.ErrConcurrencyConflict)
	}
	return nil
}

func (r *GormAllocationRepository) Commit(ctx context.Context, itemID, warehouseID string, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	res := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("item_id = ? AND warehouse_id = ? AND reserved_quantity >= ?", itemID, warehouseID, amount).
		Updates(map[string]interface{}{
			"quantity":          gorm.Expr("quantity - ?", amount),
			"reserved_quantity": gorm.Expr("reserved_quantity - ?", amount),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "commit allocation")
	}
	if res.RowsAffected == 0 {
		return r.classifyMiss(ctx, itemID, warehouseID, domain.ErrConcurrencyConflict)
	}
	return nil
}

func (r *GormAllocationRepository) Receive(ctx context.Context, itemID, warehouseID string, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	res := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", amount))
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "receive stock")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormAllocationRepository) Adjust(ctx context.Context, itemID, warehouseID string, delta int) error {
	if delta == 0 {
		return domain.ErrInvalidArgument
	}
	// 守卫：调整后 quantity >= reserved_quantity 且 >= 0
	res := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("item_id = ? AND warehouse_id = ? AND quantity + ? >= reserved_quantity AND quantity + ? >= 0",
			itemID, warehouseID, delta, delta).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "adjust allocation")
	}
	if res.RowsAffected == 0 {
		return r.classifyMiss(ctx, itemID, warehouseID, domain.ErrConcurrencyConflict)
	}
	return nil
}

// classifyMiss 区分「行不存在」与「前置条件失败」两种零命中。
func (r *GormAllocationRepository) classifyMiss(ctx context.Context, itemID, warehouseID string, precondErr error) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		Count(&count).Error; err != nil {
		return pkgerrors.Wrap(err, "classify update miss")
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return precondErr
}

func isDuplicateKey(err error) bool {
	return pkgerrors.Is(err, gorm.ErrDuplicatedKey)
}
