package infrastructure

import (
	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenMySQL 建立数据库连接并迁移三张表。
// TranslateError 让唯一键冲突映射为 gorm.ErrDuplicatedKey，
// 并发首次入库的冲突处理依赖它。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open mysql")
	}
	if err := db.AutoMigrate(&AllocationModel{}, &ReservationModel{}, &TransactionModel{}); err != nil {
		return nil, pkgerrors.Wrap(err, "auto migrate")
	}
	return db, nil
}
