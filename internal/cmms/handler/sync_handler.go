package handler

import (
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/gin-gonic/gin"
)

// SyncHandler 同步队列处理器
type SyncHandler struct {
	svc        *service.SyncService
	flushBatch int
}

// NewSyncHandler 创建同步队列处理器
func NewSyncHandler(svc *service.SyncService, flushBatch int) *SyncHandler {
	if flushBatch <= 0 {
		flushBatch = 100
	}
	return &SyncHandler{svc: svc, flushBatch: flushBatch}
}

// List 队列项列表
// GET /api/v1/sync/queue
func (h *SyncHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	result, err := h.svc.List(c.Request.Context(), page, pageSize, c.Query("status"))
	if err != nil {
		InternalError(c, "获取同步队列失败: "+err.Error())
		return
	}
	Success(c, result)
}

// Status 队列状态
// GET /api/v1/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	pending, err := h.svc.CountPending(c.Request.Context())
	if err != nil {
		InternalError(c, "获取同步状态失败: "+err.Error())
		return
	}
	Success(c, gin.H{"pending": pending})
}

// Flush 触发一次同步重放
// POST /api/v1/sync/flush
func (h *SyncHandler) Flush(c *gin.Context) {
	result, err := h.svc.Flush(c.Request.Context(), h.flushBatch)
	if err != nil {
		InternalError(c, "同步重放失败: "+err.Error())
		return
	}
	Success(c, result)
}
