package handler

import (
	"errors"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/gin-gonic/gin"
)

// PMHandler 预防性维护处理器
type PMHandler struct {
	svc *service.PMService
}

// NewPMHandler 创建预防性维护处理器
func NewPMHandler(svc *service.PMService) *PMHandler {
	return &PMHandler{svc: svc}
}

// ListSchedules 维护计划列表
// GET /api/v1/pm/schedules
func (h *PMHandler) ListSchedules(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"asset_id": c.Query("asset_id"),
	}
	if c.Query("active") == "true" {
		filters["active"] = true
	} else if c.Query("active") == "false" {
		filters["active"] = false
	}

	result, err := h.svc.ListSchedules(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取维护计划列表失败: "+err.Error())
		return
	}
	Success(c, result)
}

// GetSchedule 维护计划详情
// GET /api/v1/pm/schedules/:id
func (h *PMHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.svc.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "维护计划不存在")
			return
		}
		InternalError(c, "获取维护计划失败: "+err.Error())
		return
	}
	Success(c, schedule)
}

// CreateSchedule 创建维护计划
// POST /api/v1/pm/schedules
func (h *PMHandler) CreateSchedule(c *gin.Context) {
	var req service.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	schedule, err := h.svc.CreateSchedule(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "资产不存在")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Created(c, schedule)
}

// UpdateSchedule 更新维护计划
// PUT /api/v1/pm/schedules/:id
func (h *PMHandler) UpdateSchedule(c *gin.Context) {
	var req service.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	schedule, err := h.svc.UpdateSchedule(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "维护计划不存在")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, schedule)
}

// GenerateWorkOrders 扫描到期计划生成工单
// POST /api/v1/pm/generate
func (h *PMHandler) GenerateWorkOrders(c *gin.Context) {
	created, err := h.svc.GenerateDueWorkOrders(c.Request.Context(), time.Now())
	if err != nil {
		InternalError(c, "生成工单失败: "+err.Error())
		return
	}
	Success(c, gin.H{"created": created})
}

// ListWorkOrders 工单列表
// GET /api/v1/pm/work-orders
func (h *PMHandler) ListWorkOrders(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"asset_id":    c.Query("asset_id"),
		"status":      c.Query("status"),
		"schedule_id": c.Query("schedule_id"),
	}

	result, err := h.svc.ListWorkOrders(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取工单列表失败: "+err.Error())
		return
	}
	Success(c, result)
}

// GetWorkOrder 工单详情
// GET /api/v1/pm/work-orders/:id
func (h *PMHandler) GetWorkOrder(c *gin.Context) {
	wo, err := h.svc.GetWorkOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "工单不存在")
			return
		}
		InternalError(c, "获取工单失败: "+err.Error())
		return
	}
	Success(c, wo)
}

// CompleteWorkOrder 完成工单
// POST /api/v1/pm/work-orders/:id/complete
func (h *PMHandler) CompleteWorkOrder(c *gin.Context) {
	var req service.CompleteWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	wo, err := h.svc.CompleteWorkOrder(c.Request.Context(), c.Param("id"), GetUserID(c), GetUserName(c), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "工单不存在")
			return
		}
		if errors.Is(err, service.ErrWorkOrderNotPending) {
			Conflict(c, "工单已完成，不能重复完成")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, wo)
}
