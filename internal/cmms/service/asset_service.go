package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/sse"
	"github.com/google/uuid"
)

// ErrAssetHasOpenDefects 资产存在未关闭缺陷时禁止删除
var ErrAssetHasOpenDefects = errors.New("asset has open defects")

// AssetService 资产服务
type AssetService struct {
	repo    *repository.AssetRepository
	syncSvc *SyncService
}

// NewAssetService 创建资产服务
func NewAssetService(repo *repository.AssetRepository, syncSvc *SyncService) *AssetService {
	return &AssetService{repo: repo, syncSvc: syncSvc}
}

// CreateAssetRequest 创建资产请求
type CreateAssetRequest struct {
	Name              string     `json:"name" binding:"required"`
	Category          string     `json:"category"`
	SerialNumber      string     `json:"serial_number"`
	OperationalStatus string     `json:"operational_status"`
	LifecycleStatus   string     `json:"lifecycle_status"`
	ComplianceRating  string     `json:"compliance_rating"`
	Criticality       string     `json:"criticality"`
	SiteID            string     `json:"site_id"`
	OwnerID           string     `json:"owner_id"`
	Ownership         string     `json:"ownership"`
	CommissionedAt    *time.Time `json:"commissioned_at"`
}

// UpdateAssetRequest 更新资产请求
type UpdateAssetRequest struct {
	Name              *string    `json:"name"`
	Category          *string    `json:"category"`
	SerialNumber      *string    `json:"serial_number"`
	OperationalStatus *string    `json:"operational_status"`
	LifecycleStatus   *string    `json:"lifecycle_status"`
	ComplianceRating  *string    `json:"compliance_rating"`
	Criticality       *string    `json:"criticality"`
	SiteID            *string    `json:"site_id"`
	OwnerID           *string    `json:"owner_id"`
	Ownership         *string    `json:"ownership"`
	CommissionedAt    *time.Time `json:"commissioned_at"`
}

// BulkUpdateStatusRequest 批量状态更新请求
// OperationalStatus/LifecycleStatus至少提供一个，未提供的字段不变更
type BulkUpdateStatusRequest struct {
	AssetIDs          []string `json:"asset_ids" binding:"required"`
	OperationalStatus string   `json:"operational_status"`
	LifecycleStatus   string   `json:"lifecycle_status"`
}

// BulkUpdateError 批量更新中单项失败的记录
type BulkUpdateError struct {
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

// BulkUpdateResult 批量更新结果，部分失败不影响其余项
type BulkUpdateResult struct {
	Updated int               `json:"updated"`
	Errors  []BulkUpdateError `json:"errors"`
}

// List 获取资产列表
func (s *AssetService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) (map[string]interface{}, error) {
	assets, total, err := s.repo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"assets": assets,
		"total":  total,
	}, nil
}

// Get 获取资产详情
func (s *AssetService) Get(ctx context.Context, id string) (*entity.Asset, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 创建资产
func (s *AssetService) Create(ctx context.Context, userID string, req *CreateAssetRequest) (*entity.Asset, error) {
	opStatus := req.OperationalStatus
	if opStatus == "" {
		opStatus = entity.AssetOpInUse
	}
	lcStatus := req.LifecycleStatus
	if lcStatus == "" {
		lcStatus = entity.AssetLifecycleActive
	}

	check := entity.ValidateStatusCombination(opStatus, lcStatus)
	switch check.Outcome {
	case entity.StatusInvalid:
		return nil, fmt.Errorf("状态组合非法: %s", check.Message)
	case entity.StatusAutoCorrected:
		opStatus = check.Corrected.OperationalStatus
		lcStatus = check.Corrected.LifecycleStatus
	}

	rating := req.ComplianceRating
	if rating == "" {
		rating = entity.ComplianceGreen
	}
	criticality := req.Criticality
	if criticality == "" {
		criticality = entity.CriticalityMedium
	}
	ownership := req.Ownership
	if ownership == "" {
		ownership = entity.OwnershipOwned
	}

	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成资产编码失败: %w", err)
	}

	asset := &entity.Asset{
		ID:                uuid.New().String()[:32],
		Code:              code,
		Name:              req.Name,
		Category:          req.Category,
		SerialNumber:      req.SerialNumber,
		OperationalStatus: opStatus,
		LifecycleStatus:   lcStatus,
		ComplianceRating:  rating,
		Criticality:       criticality,
		SiteID:            req.SiteID,
		OwnerID:           req.OwnerID,
		Ownership:         ownership,
		CommissionedAt:    req.CommissionedAt,
		CreatedBy:         userID,
	}

	if err := s.repo.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("创建资产失败: %w", err)
	}

	sse.PublishAssetUpdate(asset.ID, "created")
	return asset, nil
}

// Update 更新资产
func (s *AssetService) Update(ctx context.Context, id string, req *UpdateAssetRequest) (*entity.Asset, error) {
	asset, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// 状态字段先单独校验组合，未变更的字段用现值参与判定
	if req.OperationalStatus != nil || req.LifecycleStatus != nil {
		opStatus := asset.OperationalStatus
		lcStatus := asset.LifecycleStatus
		if req.OperationalStatus != nil {
			opStatus = *req.OperationalStatus
		}
		if req.LifecycleStatus != nil {
			lcStatus = *req.LifecycleStatus
		}
		check := entity.ValidateStatusCombination(opStatus, lcStatus)
		switch check.Outcome {
		case entity.StatusInvalid:
			return nil, fmt.Errorf("状态组合非法: %s", check.Message)
		case entity.StatusAutoCorrected:
			opStatus = check.Corrected.OperationalStatus
			lcStatus = check.Corrected.LifecycleStatus
		}
		asset.OperationalStatus = opStatus
		asset.LifecycleStatus = lcStatus
	}

	if req.Name != nil {
		asset.Name = *req.Name
	}
	if req.Category != nil {
		asset.Category = *req.Category
	}
	if req.SerialNumber != nil {
		asset.SerialNumber = *req.SerialNumber
	}
	if req.ComplianceRating != nil {
		if !entity.IsComplianceRating(*req.ComplianceRating) {
			return nil, fmt.Errorf("非法RAG评级: %s", *req.ComplianceRating)
		}
		asset.ComplianceRating = *req.ComplianceRating
	}
	if req.Criticality != nil {
		asset.Criticality = *req.Criticality
	}
	if req.SiteID != nil {
		asset.SiteID = *req.SiteID
	}
	if req.OwnerID != nil {
		asset.OwnerID = *req.OwnerID
	}
	if req.Ownership != nil {
		asset.Ownership = *req.Ownership
	}
	if req.CommissionedAt != nil {
		asset.CommissionedAt = req.CommissionedAt
	}

	if err := s.repo.Update(ctx, asset); err != nil {
		return nil, fmt.Errorf("更新资产失败: %w", err)
	}

	sse.PublishAssetUpdate(asset.ID, "updated")
	return asset, nil
}

// Delete 删除资产，存在未关闭缺陷时拒绝
func (s *AssetService) Delete(ctx context.Context, id string) error {
	asset, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if asset.OpenDefectCount > 0 {
		return ErrAssetHasOpenDefects
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除资产失败: %w", err)
	}
	sse.PublishAssetUpdate(id, "deleted")
	return nil
}

// BulkUpdateStatus 批量更新资产状态
// 逐项校验和落库，单项失败只记入Errors，不回滚其余项
func (s *AssetService) BulkUpdateStatus(ctx context.Context, userID string, req *BulkUpdateStatusRequest) (*BulkUpdateResult, error) {
	if req.OperationalStatus == "" && req.LifecycleStatus == "" {
		return nil, errors.New("未提供任何状态字段")
	}

	result := &BulkUpdateResult{Errors: []BulkUpdateError{}}
	var updatedIDs []string

	for _, assetID := range req.AssetIDs {
		asset, err := s.repo.FindByID(ctx, assetID)
		if err != nil {
			reason := "查询资产失败"
			if errors.Is(err, repository.ErrNotFound) {
				reason = "资产不存在"
			}
			result.Errors = append(result.Errors, BulkUpdateError{AssetID: assetID, Reason: reason})
			continue
		}

		// 单字段更新时用资产现有的另一字段参与组合判定
		opStatus := asset.OperationalStatus
		lcStatus := asset.LifecycleStatus
		if req.OperationalStatus != "" {
			opStatus = req.OperationalStatus
		}
		if req.LifecycleStatus != "" {
			lcStatus = req.LifecycleStatus
		}

		check := entity.ValidateStatusCombination(opStatus, lcStatus)
		switch check.Outcome {
		case entity.StatusInvalid:
			result.Errors = append(result.Errors, BulkUpdateError{AssetID: assetID, Reason: check.Message})
			continue
		case entity.StatusAutoCorrected:
			opStatus = check.Corrected.OperationalStatus
			lcStatus = check.Corrected.LifecycleStatus
		}

		asset.OperationalStatus = opStatus
		asset.LifecycleStatus = lcStatus
		if err := s.repo.Update(ctx, asset); err != nil {
			result.Errors = append(result.Errors, BulkUpdateError{AssetID: assetID, Reason: "更新资产失败"})
			continue
		}

		result.Updated++
		updatedIDs = append(updatedIDs, assetID)
		sse.PublishAssetUpdate(assetID, "status_updated")
	}

	if len(updatedIDs) > 0 {
		s.syncSvc.Add(ctx, entity.SyncOpBulkUpdateAssets, "asset", "", entity.JSONB{
			"asset_ids":          updatedIDs,
			"operational_status": req.OperationalStatus,
			"lifecycle_status":   req.LifecycleStatus,
			"actor_id":           userID,
		})
	}

	return result, nil
}
