package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"gorm.io/gorm"
)

// PMRepository 预防性维护仓储
type PMRepository struct {
	db *gorm.DB
}

// NewPMRepository 创建预防性维护仓储
func NewPMRepository(db *gorm.DB) *PMRepository {
	return &PMRepository{db: db}
}

// FindScheduleByID 根据ID查找维护计划
func (r *PMRepository) FindScheduleByID(ctx context.Context, id string) (*entity.PMSchedule, error) {
	var schedule entity.PMSchedule
	err := r.db.WithContext(ctx).
		Preload("Asset").
		Where("id = ?", id).
		First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

// CreateSchedule 创建维护计划
func (r *PMRepository) CreateSchedule(ctx context.Context, schedule *entity.PMSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

// UpdateSchedule 更新维护计划
func (r *PMRepository) UpdateSchedule(ctx context.Context, schedule *entity.PMSchedule) error {
	return r.db.WithContext(ctx).Omit("Asset").Save(schedule).Error
}

// ListSchedules 获取维护计划列表
func (r *PMRepository) ListSchedules(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.PMSchedule, int64, error) {
	var schedules []entity.PMSchedule
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PMSchedule{})
	if assetID, ok := filters["asset_id"].(string); ok && assetID != "" {
		query = query.Where("asset_id = ?", assetID)
	}
	if active, ok := filters["active"].(bool); ok {
		query = query.Where("active = ?", active)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Asset").
		Order("next_due_at ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&schedules).Error
	if err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// ListDueSchedules 获取截至asOf已到期的活跃维护计划
func (r *PMRepository) ListDueSchedules(ctx context.Context, asOf time.Time) ([]entity.PMSchedule, error) {
	var schedules []entity.PMSchedule
	err := r.db.WithContext(ctx).
		Where("active = true AND next_due_at <= ?", asOf).
		Order("next_due_at ASC").
		Find(&schedules).Error
	return schedules, err
}

// GenerateScheduleCode 生成维护计划编码
func (r *PMRepository) GenerateScheduleCode(ctx context.Context) (string, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw("SELECT nextval('pm_code_seq')").Scan(&seq).Error
	if err != nil {
		return "", err
	}
	year := time.Now().Year()
	return fmt.Sprintf("PM-%d-%04d", year, seq), nil
}

// FindWorkOrderByID 根据ID查找工单
func (r *PMRepository) FindWorkOrderByID(ctx context.Context, id string) (*entity.PMWorkOrder, error) {
	var wo entity.PMWorkOrder
	err := r.db.WithContext(ctx).
		Preload("Schedule").
		Preload("Asset").
		Where("id = ?", id).
		First(&wo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &wo, nil
}

// CreateWorkOrder 创建工单
func (r *PMRepository) CreateWorkOrder(ctx context.Context, wo *entity.PMWorkOrder) error {
	return r.db.WithContext(ctx).Create(wo).Error
}

// UpdateWorkOrder 更新工单
func (r *PMRepository) UpdateWorkOrder(ctx context.Context, wo *entity.PMWorkOrder) error {
	return r.db.WithContext(ctx).Omit("Schedule", "Asset").Save(wo).Error
}

// HasPendingWorkOrder 判断计划是否已有未完成工单（避免重复生成）
func (r *PMRepository) HasPendingWorkOrder(ctx context.Context, scheduleID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.PMWorkOrder{}).
		Where("schedule_id = ? AND status = ?", scheduleID, entity.WorkOrderStatusPending).
		Count(&count).Error
	return count > 0, err
}

// ListWorkOrders 获取工单列表
func (r *PMRepository) ListWorkOrders(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.PMWorkOrder, int64, error) {
	var orders []entity.PMWorkOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PMWorkOrder{})
	if assetID, ok := filters["asset_id"].(string); ok && assetID != "" {
		query = query.Where("asset_id = ?", assetID)
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if scheduleID, ok := filters["schedule_id"].(string); ok && scheduleID != "" {
		query = query.Where("schedule_id = ?", scheduleID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Schedule").
		Preload("Asset").
		Order("due_at ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// CountDueWorkOrders 统计未完成工单数量
func (r *PMRepository) CountDueWorkOrders(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.PMWorkOrder{}).
		Where("status = ?", entity.WorkOrderStatusPending).
		Count(&count).Error
	return count, err
}

// GenerateWorkOrderCode 生成工单编码
func (r *PMRepository) GenerateWorkOrderCode(ctx context.Context) (string, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw("SELECT nextval('wo_code_seq')").Scan(&seq).Error
	if err != nil {
		return "", err
	}
	year := time.Now().Year()
	return fmt.Sprintf("WO-%d-%04d", year, seq), nil
}
