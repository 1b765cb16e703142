package entity

import (
	"time"
)

// SyncQueueItem 同步队列项，本地变更的追加式日志，等待重放到远端
type SyncQueueItem struct {
	ID         string     `json:"id" gorm:"primaryKey;size:32"`
	Operation  string     `json:"operation" gorm:"size:32;not null;index"`
	EntityType string     `json:"entity_type" gorm:"size:32;not null"`
	EntityID   string     `json:"entity_id" gorm:"size:32;not null;index"`
	Payload    JSONB      `json:"payload" gorm:"type:jsonb"`
	Status     string     `json:"status" gorm:"size:16;not null;default:pending;index"`
	SyncedAt   *time.Time `json:"synced_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (SyncQueueItem) TableName() string {
	return "sync_queue_items"
}

// 同步队列项状态
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
)

// 同步操作名
const (
	SyncOpCreateDefect     = "create_defect"
	SyncOpUpdateDefect     = "update_defect"
	SyncOpDeleteDefect     = "delete_defect"
	SyncOpCloseDefect      = "close_defect"
	SyncOpReopenDefect     = "reopen_defect"
	SyncOpBulkUpdateAssets = "bulk_update_assets"
	SyncOpCreateWorkOrder  = "create_work_order"
	SyncOpUpdateWorkOrder  = "update_work_order"
)
