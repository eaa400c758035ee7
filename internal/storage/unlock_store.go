package storage

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
)

// UnlockStore 解密审计记录存储
// 追加多、查询少的小表，直接走 GORM，不做内存缓存
type UnlockStore struct {
	db *gorm.DB
}

// NewUnlockStore 创建审计存储并迁移表结构
func NewUnlockStore(db *gorm.DB) (*UnlockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	if err := db.AutoMigrate(&model.UnlockRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate unlock_records: %w", err)
	}
	return &UnlockStore{db: db}, nil
}

// Append 追加一条审计记录
func (s *UnlockStore) Append(record model.UnlockRecord) error {
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to append unlock record: %w", err)
	}
	return nil
}

// ListRecent 按时间倒序取最近 limit 条记录
func (s *UnlockStore) ListRecent(limit int) ([]model.UnlockRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []model.UnlockRecord
	err := s.db.Order("id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unlock records: %w", err)
	}
	return records, nil
}

// CountByStatus 按检测状态码统计记录数
func (s *UnlockStore) CountByStatus(statusCode int) (int64, error) {
	var count int64
	err := s.db.Model(&model.UnlockRecord{}).
		Where("status_code = ?", statusCode).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unlock records: %w", err)
	}
	return count, nil
}
