package infrastructure

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"depot/internal/service/inventory/domain"
)

// GormReservationRepository 是 ReservationRepository 的 GORM 实现。
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	if err := r.db.WithContext(ctx).Create(fromDomainReservation(res)).Error; err != nil {
		return pkgerrors.Wrap(err, "create reservation")
	}
	return nil
}

func (r *GormReservationRepository) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "get reservation")
	}
	return toDomainReservation(&model), nil
}

func (r *GormReservationRepository) ListByOrderRef(ctx context.Context, orderRef string) ([]*domain.Reservation, error) {
	var models []*ReservationModel
	err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list reservations by order")
	}
	return toDomainReservations(models), nil
}

func (r *GormReservationRepository) ListActiveByItem(ctx context.Context, itemID string) ([]*domain.Reservation, error) {
	var models []*ReservationModel
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND status = ?", itemID, string(domain.StatusConfirmed)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list active reservations")
	}
	return toDomainReservations(models), nil
}

func (r *GormReservationRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	var models []*ReservationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.StatusConfirmed), now).
		Order("expires_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list expired reservations")
	}
	return toDomainReservations(models), nil
}

func (r *GormReservationRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusConfirmed)).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "update reservation expiry")
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrencyConflict
	}
	return nil
}

// Transition 受状态守卫的终态流转。WHERE status = CONFIRMED 保证并发的
// cancel / complete / 清扫之间只有一个赢家，RowsAffected 即胜负结果。
func (r *GormReservationRepository) Transition(ctx context.Context, id string, to domain.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusConfirmed)).
		Update("status", string(to))
	if res.Error != nil {
		return false, pkgerrors.Wrap(res.Error, "transition reservation")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	// 零命中：要么已是终态（输掉竞争），要么记录不存在
	var count int64
	if err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ?", id).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(err, "transition classify")
	}
	if count == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func toDomainReservations(models []*ReservationModel) []*domain.Reservation {
	result := make([]*domain.Reservation, len(models))
	for i, m := range models {
		result[i] = toDomainReservation(m)
	}
	return result
}
