package entity

import (
	"time"
)

// Asset 资产实体
type Asset struct {
	ID                string     `json:"id" gorm:"primaryKey;size:32"`
	Code              string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name              string     `json:"name" gorm:"size:256;not null"`
	Category          string     `json:"category" gorm:"size:64"`
	SerialNumber      string     `json:"serial_number" gorm:"size:128"`
	OperationalStatus string     `json:"operational_status" gorm:"size:32;not null;default:in_use"`
	LifecycleStatus   string     `json:"lifecycle_status" gorm:"size:32;not null;default:active"`
	ComplianceRating  string     `json:"compliance_rating" gorm:"size:16;default:green"`
	Criticality       string     `json:"criticality" gorm:"size:16;default:medium"`
	SiteID            string     `json:"site_id" gorm:"size:32;index"`
	OwnerID           string     `json:"owner_id" gorm:"size:32"`
	Ownership         string     `json:"ownership" gorm:"size:16;default:owned"`
	OpenDefectCount   int        `json:"open_defect_count" gorm:"not null;default:0"`
	OpenCheckCount    int        `json:"open_check_count" gorm:"not null;default:0"`
	CommissionedAt    *time.Time `json:"commissioned_at"`
	LastServicedAt    *time.Time `json:"last_serviced_at"`
	CreatedBy         string     `json:"created_by" gorm:"size:32"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// 关联
	Owner *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

func (Asset) TableName() string {
	return "assets"
}

// 运行状态常量
const (
	AssetOpInUse          = "in_use"
	AssetOpOutOfUse       = "out_of_use"
	AssetOpOffHirePending = "off_hire_pending"
	AssetOpOffHired       = "off_hired"
	AssetOpQuarantined    = "quarantined"
	AssetOpArchived       = "archived"
)

// 生命周期状态常量
const (
	AssetLifecycleActive         = "active"
	AssetLifecycleExpected       = "expected"
	AssetLifecycleDecommissioned = "decommissioned"
	AssetLifecycleDisposed       = "disposed"
)

// RAG合规评级
const (
	ComplianceRed   = "red"
	ComplianceAmber = "amber"
	ComplianceGreen = "green"
)

// 资产关键度
const (
	CriticalityLow    = "low"
	CriticalityMedium = "medium"
	CriticalityHigh   = "high"
)

// 持有方式
const (
	OwnershipOwned = "owned"
	OwnershipHired = "hired"
)

// IsOperationalStatus 判断是否为合法运行状态
func IsOperationalStatus(s string) bool {
	switch s {
	case AssetOpInUse, AssetOpOutOfUse, AssetOpOffHirePending,
		AssetOpOffHired, AssetOpQuarantined, AssetOpArchived:
		return true
	}
	return false
}

// IsLifecycleStatus 判断是否为合法生命周期状态
func IsLifecycleStatus(s string) bool {
	switch s {
	case AssetLifecycleActive, AssetLifecycleExpected,
		AssetLifecycleDecommissioned, AssetLifecycleDisposed:
		return true
	}
	return false
}

// IsComplianceRating 判断是否为合法RAG评级
func IsComplianceRating(s string) bool {
	switch s {
	case ComplianceRed, ComplianceAmber, ComplianceGreen:
		return true
	}
	return false
}
