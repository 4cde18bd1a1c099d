package infrastructure

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"depot/internal/service/inventory/domain"
)

const defaultQueryLimit = 500

// GormLedgerRepository 是流水账本的 GORM 实现。只有 INSERT 和 SELECT，
// 类型上就不提供更新或删除。
type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	if err := r.db.WithContext(ctx).Create(fromDomainTransaction(tx)).Error; err != nil {
		return pkgerrors.Wrap(err, "append ledger record")
	}
	return nil
}

func (r *GormLedgerRepository) Query(ctx context.Context, filter domain.LedgerFilter) ([]*domain.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&TransactionModel{})
	if filter.ItemID != "" {
		q = q.Where("item_id = ?", filter.ItemID)
	}
	if filter.WarehouseID != "" {
		q = q.Where("warehouse_id = ?", filter.WarehouseID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.ReferenceID != "" {
		q = q.Where("reference_id = ?", filter.ReferenceID)
	}
	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("timestamp < ?", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > defaultQueryLimit {
		limit = defaultQueryLimit
	}

	var models []*TransactionModel
	if err := q.Order("timestamp ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "query ledger")
	}
	result := make([]*domain.Transaction, len(models))
	for i, m := range models {
		result[i] = toDomainTransaction(m)
	}
	return result, nil
}

func (r *GormLedgerRepository) SumByType(ctx context.Context, itemID, warehouseID string, from, to time.Time) (map[domain.TransactionType]int, error) {
	type row struct {
		Type  string
		Total int
	}
	q := r.db.WithContext(ctx).Model(&TransactionModel{}).
		Select("type, SUM(quantity) AS total").
		Where("item_id = ?", itemID).
		Group("type")
	if warehouseID != "" {
		q = q.Where("warehouse_id = ?", warehouseID)
	}
	if !from.IsZero() {
		q = q.Where("timestamp >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("timestamp < ?", to)
	}

	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "sum ledger by type")
	}
	sums := make(map[domain.TransactionType]int, len(rows))
	for _, r := range rows {
		sums[domain.TransactionType(r.Type)] = r.Total
	}
	return sums, nil
}
