package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/sse"
	"github.com/google/uuid"
)

// ErrWorkOrderNotPending 已完成的工单不可重复完成
var ErrWorkOrderNotPending = errors.New("work order is not pending")

// PMService 预防性维护服务
type PMService struct {
	repo      *repository.PMRepository
	assetRepo *repository.AssetRepository
	syncSvc   *SyncService
}

// NewPMService 创建预防性维护服务
func NewPMService(repo *repository.PMRepository, assetRepo *repository.AssetRepository, syncSvc *SyncService) *PMService {
	return &PMService{repo: repo, assetRepo: assetRepo, syncSvc: syncSvc}
}

// CreateScheduleRequest 创建维护计划请求
type CreateScheduleRequest struct {
	AssetID       string     `json:"asset_id" binding:"required"`
	Name          string     `json:"name" binding:"required"`
	Description   string     `json:"description"`
	FrequencyDays int        `json:"frequency_days" binding:"required,min=1"`
	FirstDueAt    *time.Time `json:"first_due_at"`
}

// UpdateScheduleRequest 更新维护计划请求
type UpdateScheduleRequest struct {
	Name          *string    `json:"name"`
	Description   *string    `json:"description"`
	FrequencyDays *int       `json:"frequency_days"`
	NextDueAt     *time.Time `json:"next_due_at"`
	Active        *bool      `json:"active"`
}

// CompleteWorkOrderRequest 完成工单请求
type CompleteWorkOrderRequest struct {
	Notes string `json:"notes"`
}

// ListSchedules 获取维护计划列表
func (s *PMService) ListSchedules(ctx context.Context, page, pageSize int, filters map[string]interface{}) (map[string]interface{}, error) {
	schedules, total, err := s.repo.ListSchedules(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"schedules": schedules,
		"total":     total,
	}, nil
}

// GetSchedule 获取维护计划详情
func (s *PMService) GetSchedule(ctx context.Context, id string) (*entity.PMSchedule, error) {
	return s.repo.FindScheduleByID(ctx, id)
}

// CreateSchedule 创建维护计划
func (s *PMService) CreateSchedule(ctx context.Context, userID string, req *CreateScheduleRequest) (*entity.PMSchedule, error) {
	if _, err := s.assetRepo.FindByID(ctx, req.AssetID); err != nil {
		return nil, err
	}

	code, err := s.repo.GenerateScheduleCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成维护计划编码失败: %w", err)
	}

	nextDue := time.Now().AddDate(0, 0, req.FrequencyDays)
	if req.FirstDueAt != nil {
		nextDue = *req.FirstDueAt
	}

	schedule := &entity.PMSchedule{
		ID:            uuid.New().String()[:32],
		Code:          code,
		AssetID:       req.AssetID,
		Name:          req.Name,
		Description:   req.Description,
		FrequencyDays: req.FrequencyDays,
		NextDueAt:     nextDue,
		Active:        true,
		CreatedBy:     userID,
	}

	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("创建维护计划失败: %w", err)
	}
	return schedule, nil
}

// UpdateSchedule 更新维护计划
func (s *PMService) UpdateSchedule(ctx context.Context, id string, req *UpdateScheduleRequest) (*entity.PMSchedule, error) {
	schedule, err := s.repo.FindScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.Description != nil {
		schedule.Description = *req.Description
	}
	if req.FrequencyDays != nil {
		if *req.FrequencyDays < 1 {
			return nil, errors.New("维护频率必须为正数")
		}
		schedule.FrequencyDays = *req.FrequencyDays
	}
	if req.NextDueAt != nil {
		schedule.NextDueAt = *req.NextDueAt
	}
	if req.Active != nil {
		schedule.Active = *req.Active
	}

	if err := s.repo.UpdateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("更新维护计划失败: %w", err)
	}
	return schedule, nil
}

// GenerateDueWorkOrders 扫描到期计划并生成工单
// 已有未完成工单的计划跳过，next_due_at滚动到asOf之后
func (s *PMService) GenerateDueWorkOrders(ctx context.Context, asOf time.Time) (int, error) {
	schedules, err := s.repo.ListDueSchedules(ctx, asOf)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, schedule := range schedules {
		hasPending, err := s.repo.HasPendingWorkOrder(ctx, schedule.ID)
		if err != nil {
			log.Printf("[PM] pending check failed: schedule=%s err=%v", schedule.ID, err)
			continue
		}
		if hasPending {
			continue
		}

		code, err := s.repo.GenerateWorkOrderCode(ctx)
		if err != nil {
			log.Printf("[PM] work order code failed: schedule=%s err=%v", schedule.ID, err)
			continue
		}

		wo := &entity.PMWorkOrder{
			ID:         uuid.New().String()[:32],
			Code:       code,
			ScheduleID: schedule.ID,
			AssetID:    schedule.AssetID,
			Status:     entity.WorkOrderStatusPending,
			DueAt:      schedule.NextDueAt,
		}
		if err := s.repo.CreateWorkOrder(ctx, wo); err != nil {
			log.Printf("[PM] work order create failed: schedule=%s err=%v", schedule.ID, err)
			continue
		}

		// 滚动到asOf之后，避免下轮重复生成
		next := schedule.NextDueAt
		for !next.After(asOf) {
			next = next.AddDate(0, 0, schedule.FrequencyDays)
		}
		schedule.NextDueAt = next
		if err := s.repo.UpdateSchedule(ctx, &schedule); err != nil {
			log.Printf("[PM] schedule roll failed: schedule=%s err=%v", schedule.ID, err)
		}

		s.syncSvc.Add(ctx, entity.SyncOpCreateWorkOrder, "work_order", wo.ID, entity.JSONB{
			"code":        wo.Code,
			"schedule_id": wo.ScheduleID,
			"asset_id":    wo.AssetID,
			"due_at":      wo.DueAt,
		})
		sse.PublishWorkOrderUpdate(wo.ID, wo.AssetID, "created")
		created++
	}

	return created, nil
}

// ListWorkOrders 获取工单列表
func (s *PMService) ListWorkOrders(ctx context.Context, page, pageSize int, filters map[string]interface{}) (map[string]interface{}, error) {
	orders, total, err := s.repo.ListWorkOrders(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"work_orders": orders,
		"total":       total,
	}, nil
}

// CountPendingWorkOrders 统计未完成工单数量
func (s *PMService) CountPendingWorkOrders(ctx context.Context) (int64, error) {
	return s.repo.CountDueWorkOrders(ctx)
}

// GetWorkOrder 获取工单详情
func (s *PMService) GetWorkOrder(ctx context.Context, id string) (*entity.PMWorkOrder, error) {
	return s.repo.FindWorkOrderByID(ctx, id)
}

// CompleteWorkOrder 完成工单，同步更新资产最近保养时间
func (s *PMService) CompleteWorkOrder(ctx context.Context, id, userID, userName string, req *CompleteWorkOrderRequest) (*entity.PMWorkOrder, error) {
	wo, err := s.repo.FindWorkOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wo.Status != entity.WorkOrderStatusPending {
		return nil, ErrWorkOrderNotPending
	}

	now := time.Now()
	wo.Status = entity.WorkOrderStatusCompleted
	wo.CompletedAt = &now
	wo.CompletedBy = userID
	wo.CompletedByName = userName
	wo.Notes = req.Notes

	if err := s.repo.UpdateWorkOrder(ctx, wo); err != nil {
		return nil, fmt.Errorf("完成工单失败: %w", err)
	}

	if err := s.assetRepo.TouchLastServiced(ctx, wo.AssetID, now); err != nil {
		log.Printf("[PM] last serviced update failed: asset=%s err=%v", wo.AssetID, err)
	}

	if schedule, err := s.repo.FindScheduleByID(ctx, wo.ScheduleID); err == nil {
		schedule.LastCompletedAt = &now
		if err := s.repo.UpdateSchedule(ctx, schedule); err != nil {
			log.Printf("[PM] schedule completion stamp failed: schedule=%s err=%v", schedule.ID, err)
		}
	}

	s.syncSvc.Add(ctx, entity.SyncOpUpdateWorkOrder, "work_order", wo.ID, entity.JSONB{
		"code":     wo.Code,
		"asset_id": wo.AssetID,
		"status":   wo.Status,
		"actor_id": userID,
	})
	sse.PublishWorkOrderUpdate(wo.ID, wo.AssetID, "completed")
	return wo, nil
}
