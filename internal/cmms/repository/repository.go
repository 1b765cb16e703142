package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	User      *UserRepository
	Asset     *AssetRepository
	Defect    *DefectRepository
	PM        *PMRepository
	SyncQueue *SyncQueueRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db),
		Asset:     NewAssetRepository(db),
		Defect:    NewDefectRepository(db),
		PM:        NewPMRepository(db),
		SyncQueue: NewSyncQueueRepository(db),
	}
}
