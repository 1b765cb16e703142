package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"gorm.io/gorm"
)

// SyncQueueRepository 同步队列仓储
type SyncQueueRepository struct {
	db *gorm.DB
}

// NewSyncQueueRepository 创建同步队列仓储
func NewSyncQueueRepository(db *gorm.DB) *SyncQueueRepository {
	return &SyncQueueRepository{db: db}
}

// Append 追加队列项
func (r *SyncQueueRepository) Append(ctx context.Context, item *entity.SyncQueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// ListPending 获取待同步项（时间升序，保证重放顺序）
func (r *SyncQueueRepository) ListPending(ctx context.Context, limit int) ([]entity.SyncQueueItem, error) {
	var items []entity.SyncQueueItem
	query := r.db.WithContext(ctx).
		Where("status = ?", entity.SyncStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&items).Error
	return items, err
}

// List 获取队列项列表
func (r *SyncQueueRepository) List(ctx context.Context, page, pageSize int, status string) ([]entity.SyncQueueItem, int64, error) {
	var items []entity.SyncQueueItem
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.SyncQueueItem{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkSynced 标记队列项已同步
func (r *SyncQueueRepository) MarkSynced(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.SyncQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    entity.SyncStatusSynced,
			"synced_at": now,
		}).Error
}

// CountPending 统计待同步项数量
func (r *SyncQueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SyncQueueItem{}).
		Where("status = ?", entity.SyncStatusPending).
		Count(&count).Error
	return count, err
}
