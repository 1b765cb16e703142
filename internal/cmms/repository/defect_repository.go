package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"gorm.io/gorm"
)

// DefectRepository 缺陷仓储
type DefectRepository struct {
	db *gorm.DB
}

// NewDefectRepository 创建缺陷仓储
func NewDefectRepository(db *gorm.DB) *DefectRepository {
	return &DefectRepository{db: db}
}

// FindByID 根据ID查找缺陷
func (r *DefectRepository) FindByID(ctx context.Context, id string) (*entity.Defect, error) {
	var defect entity.Defect
	err := r.db.WithContext(ctx).
		Preload("Asset").
		Preload("Assignee").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Attachments").
		Where("id = ?", id).
		First(&defect).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &defect, nil
}

// FindByCode 根据编码查找缺陷
func (r *DefectRepository) FindByCode(ctx context.Context, code string) (*entity.Defect, error) {
	var defect entity.Defect
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&defect).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &defect, nil
}

// Create 创建缺陷
func (r *DefectRepository) Create(ctx context.Context, defect *entity.Defect) error {
	return r.db.WithContext(ctx).Create(defect).Error
}

// Update 更新缺陷
func (r *DefectRepository) Update(ctx context.Context, defect *entity.Defect) error {
	return r.db.WithContext(ctx).Omit("History", "Comments", "Attachments", "Asset", "Assignee").Save(defect).Error
}

// Delete 硬删除缺陷及其从属记录，并解除子缺陷的parent引用
// parent_defect_id是弱引用，删除父缺陷时置空，避免悬挂
func (r *DefectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Defect{}).
			Where("parent_defect_id = ?", id).
			Updates(map[string]interface{}{
				"parent_defect_id": nil,
				"updated_at":       time.Now(),
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("defect_id = ?", id).Delete(&entity.DefectHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("defect_id = ?", id).Delete(&entity.DefectComment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("defect_id = ?", id).Delete(&entity.DefectAttachment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.Defect{}).Error
	})
}

// List 获取缺陷列表
func (r *DefectRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.Defect, int64, error) {
	var defects []entity.Defect
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Defect{})

	// 应用过滤条件
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		query = query.Where("title ILIKE ? OR code ILIKE ?", "%"+keyword+"%", "%"+keyword+"%")
	}
	if assetID, ok := filters["asset_id"].(string); ok && assetID != "" {
		query = query.Where("asset_id = ?", assetID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if severity, ok := filters["severity"].(string); ok && severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if assigneeID, ok := filters["assignee_id"].(string); ok && assigneeID != "" {
		query = query.Where("assignee_id = ?", assigneeID)
	}
	if siteID, ok := filters["site_id"].(string); ok && siteID != "" {
		query = query.Where("site_id = ?", siteID)
	}
	if unsafe, ok := filters["unsafe"].(bool); ok && unsafe {
		query = query.Where("unsafe_do_not_use = true")
	}
	if overdue, ok := filters["overdue"].(bool); ok && overdue {
		query = query.Where("status <> ? AND target_rectification_date < ?",
			entity.DefectStatusClosed, time.Now())
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.
		Preload("Asset").
		Preload("Assignee").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&defects).Error
	if err != nil {
		return nil, 0, err
	}

	return defects, total, nil
}

// ListChildren 获取以指定缺陷为parent的复发缺陷
func (r *DefectRepository) ListChildren(ctx context.Context, parentID string) ([]entity.Defect, error) {
	var defects []entity.Defect
	err := r.db.WithContext(ctx).
		Where("parent_defect_id = ?", parentID).
		Order("created_at ASC").
		Find(&defects).Error
	return defects, err
}

// GenerateCode 生成缺陷编码
func (r *DefectRepository) GenerateCode(ctx context.Context) (string, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw("SELECT nextval('defect_code_seq')").Scan(&seq).Error
	if err != nil {
		return "", err
	}
	year := time.Now().Year()
	return fmt.Sprintf("DEF-%d-%04d", year, seq), nil
}

// AppendHistory 追加历史记录
func (r *DefectRepository) AppendHistory(ctx context.Context, h *entity.DefectHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// AppendComment 追加评论
func (r *DefectRepository) AppendComment(ctx context.Context, c *entity.DefectComment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// AppendAttachment 追加附件记录
func (r *DefectRepository) AppendAttachment(ctx context.Context, a *entity.DefectAttachment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// ListHistory 获取历史记录（时间升序）
func (r *DefectRepository) ListHistory(ctx context.Context, defectID string) ([]entity.DefectHistory, error) {
	var entries []entity.DefectHistory
	err := r.db.WithContext(ctx).
		Where("defect_id = ?", defectID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// ListComments 获取评论（时间升序）
func (r *DefectRepository) ListComments(ctx context.Context, defectID string) ([]entity.DefectComment, error) {
	var comments []entity.DefectComment
	err := r.db.WithContext(ctx).
		Where("defect_id = ?", defectID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

// Summary 全量重算缺陷汇总
func (r *DefectRepository) Summary(ctx context.Context) (*entity.DefectSummary, error) {
	summary := &entity.DefectSummary{}
	db := r.db.WithContext(ctx).Model(&entity.Defect{})

	if err := db.Session(&gorm.Session{}).Count(&summary.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("status <> ?", entity.DefectStatusClosed).
		Count(&summary.Open).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("status <> ? AND target_rectification_date < ?", entity.DefectStatusClosed, time.Now()).
		Count(&summary.Overdue).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("unsafe_do_not_use = true AND status <> ?", entity.DefectStatusClosed).
		Count(&summary.Unsafe).Error; err != nil {
		return nil, err
	}
	return summary, nil
}
