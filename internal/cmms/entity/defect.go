package entity

import (
	"time"
)

// Defect 缺陷实体
type Defect struct {
	ID                      string     `json:"id" gorm:"primaryKey;size:32"`
	Code                    string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Title                   string     `json:"title" gorm:"size:256;not null"`
	Description             string     `json:"description" gorm:"type:text"`
	AssetID                 string     `json:"asset_id" gorm:"size:32;not null;index"`
	SiteID                  string     `json:"site_id" gorm:"size:32;index"`
	Status                  string     `json:"status" gorm:"size:16;not null;default:open"`
	SeverityModel           string     `json:"severity_model" gorm:"size:16;not null;default:lmh"`
	Severity                string     `json:"severity" gorm:"size:16;not null"`
	UnsafeDoNotUse          bool       `json:"unsafe_do_not_use" gorm:"not null;default:false"`
	TargetRectificationDate *time.Time `json:"target_rectification_date"`
	AssigneeID              string     `json:"assignee_id" gorm:"size:32"`
	ComplianceTags          JSONBArray `json:"compliance_tags" gorm:"type:jsonb"`
	RecommendedActions      JSONBArray `json:"recommended_actions" gorm:"type:jsonb"`
	ActionTaken             string     `json:"action_taken" gorm:"type:text"`
	ParentDefectID          *string    `json:"parent_defect_id" gorm:"size:32;index"`
	RecurrenceCount         int        `json:"recurrence_count" gorm:"not null;default:0"`
	ReopenedCount           int        `json:"reopened_count" gorm:"not null;default:0"`
	ReportedBy              string     `json:"reported_by" gorm:"size:32;not null"`
	ClosedAt                *time.Time `json:"closed_at"`
	ClosedBy                string     `json:"closed_by" gorm:"size:32"`
	ClosedByName            string     `json:"closed_by_name" gorm:"size:128"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`

	// 关联（parent是基于ID的弱引用，不是所有权关系）
	Asset       *Asset             `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
	Assignee    *User              `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
	History     []DefectHistory    `json:"history,omitempty" gorm:"foreignKey:DefectID"`
	Comments    []DefectComment    `json:"comments,omitempty" gorm:"foreignKey:DefectID"`
	Attachments []DefectAttachment `json:"attachments,omitempty" gorm:"foreignKey:DefectID"`
}

func (Defect) TableName() string {
	return "defects"
}

// DefectHistory 缺陷历史记录（追加式，不可变）
type DefectHistory struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	DefectID  string    `json:"defect_id" gorm:"size:32;not null;index"`
	Type      string    `json:"type" gorm:"size:32;not null"`
	Summary   string    `json:"summary" gorm:"size:512;not null"`
	ActorID   string    `json:"actor_id" gorm:"size:32;not null"`
	ActorName string    `json:"actor_name" gorm:"size:128"`
	Detail    JSONB     `json:"detail" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
}

func (DefectHistory) TableName() string {
	return "defect_histories"
}

// DefectComment 缺陷评论（追加式）
type DefectComment struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	DefectID   string    `json:"defect_id" gorm:"size:32;not null;index"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	AuthorID   string    `json:"author_id" gorm:"size:32;not null"`
	AuthorName string    `json:"author_name" gorm:"size:128"`
	CreatedAt  time.Time `json:"created_at"`
}

func (DefectComment) TableName() string {
	return "defect_comments"
}

// DefectAttachment 缺陷附件，文件本体存MinIO
type DefectAttachment struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	DefectID   string    `json:"defect_id" gorm:"size:32;not null;index"`
	FileID     string    `json:"file_id" gorm:"size:64;not null"`
	FileName   string    `json:"file_name" gorm:"size:256;not null"`
	FileSize   int64     `json:"file_size"`
	UploadedBy string    `json:"uploaded_by" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (DefectAttachment) TableName() string {
	return "defect_attachments"
}

// DefectSummary 缺陷汇总，每次变更后全量重算
type DefectSummary struct {
	Total   int64 `json:"total"`
	Open    int64 `json:"open"`
	Overdue int64 `json:"overdue"`
	Unsafe  int64 `json:"unsafe"`
}

// 缺陷状态常量
const (
	DefectStatusDraft        = "draft"
	DefectStatusOpen         = "open"
	DefectStatusAcknowledged = "acknowledged"
	DefectStatusInProgress   = "in_progress"
	DefectStatusDeferred     = "deferred"
	DefectStatusClosed       = "closed"
	DefectStatusOverdue      = "overdue"
)

// 严重度模型
const (
	SeverityModelLMH   = "lmh"
	SeverityModelMajor = "major"
)

// LMH严重度
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Major严重度
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// 历史记录类型
const (
	HistoryTypeCreate       = "create"
	HistoryTypeClose        = "close"
	HistoryTypeReopen       = "reopen"
	HistoryTypeStatusChange = "status_change"
)

// IsDefectStatus 判断是否为合法缺陷状态
func IsDefectStatus(s string) bool {
	switch s {
	case DefectStatusDraft, DefectStatusOpen, DefectStatusAcknowledged,
		DefectStatusInProgress, DefectStatusDeferred, DefectStatusClosed,
		DefectStatusOverdue:
		return true
	}
	return false
}

// IsSeverityForModel 判断严重度取值是否属于指定模型
func IsSeverityForModel(model, severity string) bool {
	switch model {
	case SeverityModelLMH:
		return severity == SeverityLow || severity == SeverityMedium || severity == SeverityHigh
	case SeverityModelMajor:
		return severity == SeverityMinor || severity == SeverityMajor || severity == SeverityCritical
	}
	return false
}
