package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"gorm.io/gorm"
)

// AssetRepository 资产仓储
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository 创建资产仓储
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// FindByID 根据ID查找资产
func (r *AssetRepository) FindByID(ctx context.Context, id string) (*entity.Asset, error) {
	var asset entity.Asset
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("id = ?", id).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// FindByCode 根据编码查找资产
func (r *AssetRepository) FindByCode(ctx context.Context, code string) (*entity.Asset, error) {
	var asset entity.Asset
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// Create 创建资产
func (r *AssetRepository) Create(ctx context.Context, asset *entity.Asset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// Update 更新资产
func (r *AssetRepository) Update(ctx context.Context, asset *entity.Asset) error {
	return r.db.WithContext(ctx).Save(asset).Error
}

// Delete 删除资产
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Asset{}).Error
}

// List 获取资产列表
func (r *AssetRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.Asset, int64, error) {
	var assets []entity.Asset
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Asset{})

	// 应用过滤条件
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ? OR serial_number ILIKE ?",
			"%"+keyword+"%", "%"+keyword+"%", "%"+keyword+"%")
	}
	if opStatus, ok := filters["operational_status"].(string); ok && opStatus != "" {
		query = query.Where("operational_status = ?", opStatus)
	}
	if lcStatus, ok := filters["lifecycle_status"].(string); ok && lcStatus != "" {
		query = query.Where("lifecycle_status = ?", lcStatus)
	}
	if rating, ok := filters["compliance_rating"].(string); ok && rating != "" {
		query = query.Where("compliance_rating = ?", rating)
	}
	if criticality, ok := filters["criticality"].(string); ok && criticality != "" {
		query = query.Where("criticality = ?", criticality)
	}
	if siteID, ok := filters["site_id"].(string); ok && siteID != "" {
		query = query.Where("site_id = ?", siteID)
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.
		Preload("Owner").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&assets).Error
	if err != nil {
		return nil, 0, err
	}

	return assets, total, nil
}

// GenerateCode 生成资产编码
func (r *AssetRepository) GenerateCode(ctx context.Context) (string, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw("SELECT nextval('asset_code_seq')").Scan(&seq).Error
	if err != nil {
		return "", err
	}
	year := time.Now().Year()
	return fmt.Sprintf("AST-%d-%04d", year, seq), nil
}

// AddOpenDefectCount 调整资产未关闭缺陷计数
func (r *AssetRepository) AddOpenDefectCount(ctx context.Context, assetID string, delta int) error {
	return r.db.WithContext(ctx).
		Model(&entity.Asset{}).
		Where("id = ?", assetID).
		Updates(map[string]interface{}{
			"open_defect_count": gorm.Expr("GREATEST(open_defect_count + ?, 0)", delta),
			"updated_at":        time.Now(),
		}).Error
}

// TouchLastServiced 更新资产最近保养时间
func (r *AssetRepository) TouchLastServiced(ctx context.Context, assetID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Asset{}).
		Where("id = ?", assetID).
		Updates(map[string]interface{}{
			"last_serviced_at": at,
			"updated_at":       time.Now(),
		}).Error
}
