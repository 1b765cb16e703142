package entity

import (
	"time"
)

// PMSchedule 预防性维护计划
type PMSchedule struct {
	ID              string     `json:"id" gorm:"primaryKey;size:32"`
	Code            string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	AssetID         string     `json:"asset_id" gorm:"size:32;not null;index"`
	Name            string     `json:"name" gorm:"size:256;not null"`
	Description     string     `json:"description" gorm:"type:text"`
	FrequencyDays   int        `json:"frequency_days" gorm:"not null"`
	NextDueAt       time.Time  `json:"next_due_at" gorm:"not null;index"`
	LastCompletedAt *time.Time `json:"last_completed_at"`
	Active          bool       `json:"active" gorm:"not null;default:true"`
	CreatedBy       string     `json:"created_by" gorm:"size:32"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// 关联
	Asset *Asset `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
}

func (PMSchedule) TableName() string {
	return "pm_schedules"
}

// PMWorkOrder 预防性维护工单，由到期计划生成
type PMWorkOrder struct {
	ID              string     `json:"id" gorm:"primaryKey;size:32"`
	Code            string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	ScheduleID      string     `json:"schedule_id" gorm:"size:32;not null;index"`
	AssetID         string     `json:"asset_id" gorm:"size:32;not null;index"`
	Status          string     `json:"status" gorm:"size:16;not null;default:pending"`
	DueAt           time.Time  `json:"due_at" gorm:"not null"`
	CompletedAt     *time.Time `json:"completed_at"`
	CompletedBy     string     `json:"completed_by" gorm:"size:32"`
	CompletedByName string     `json:"completed_by_name" gorm:"size:128"`
	Notes           string     `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// 关联
	Schedule *PMSchedule `json:"schedule,omitempty" gorm:"foreignKey:ScheduleID"`
	Asset    *Asset      `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
}

func (PMWorkOrder) TableName() string {
	return "pm_work_orders"
}

// 工单状态
const (
	WorkOrderStatusPending   = "pending"
	WorkOrderStatusCompleted = "completed"
	WorkOrderStatusOverdue   = "overdue"
)
