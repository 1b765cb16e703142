package handler

import (
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/gin-gonic/gin"
)

// DashboardHandler 仪表盘处理器
type DashboardHandler struct {
	defectSvc *service.DefectService
	pmSvc     *service.PMService
	syncSvc   *service.SyncService
}

// NewDashboardHandler 创建仪表盘处理器
func NewDashboardHandler(defectSvc *service.DefectService, pmSvc *service.PMService, syncSvc *service.SyncService) *DashboardHandler {
	return &DashboardHandler{defectSvc: defectSvc, pmSvc: pmSvc, syncSvc: syncSvc}
}

// Summary 仪表盘汇总：缺陷汇总 + 未完成工单数 + 待同步数
// GET /api/v1/dashboard/summary
func (h *DashboardHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()

	defects, err := h.defectSvc.Summary(ctx)
	if err != nil {
		InternalError(c, "获取缺陷汇总失败: "+err.Error())
		return
	}

	pendingWorkOrders, err := h.pmSvc.CountPendingWorkOrders(ctx)
	if err != nil {
		InternalError(c, "统计未完成工单失败: "+err.Error())
		return
	}

	pendingSync, err := h.syncSvc.CountPending(ctx)
	if err != nil {
		InternalError(c, "获取同步状态失败: "+err.Error())
		return
	}

	Success(c, gin.H{
		"defects":             defects,
		"pending_work_orders": pendingWorkOrders,
		"pending_sync":        pendingSync,
	})
}
