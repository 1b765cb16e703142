package handler

import (
	"errors"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/gin-gonic/gin"
)

// DefectHandler 缺陷处理器
type DefectHandler struct {
	svc       *service.DefectService
	exportSvc *service.ExportService
}

// NewDefectHandler 创建缺陷处理器
func NewDefectHandler(svc *service.DefectService, exportSvc *service.ExportService) *DefectHandler {
	return &DefectHandler{svc: svc, exportSvc: exportSvc}
}

// List 缺陷列表
// GET /api/v1/defects
func (h *DefectHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"keyword":     c.Query("keyword"),
		"asset_id":    c.Query("asset_id"),
		"status":      c.Query("status"),
		"severity":    c.Query("severity"),
		"assignee_id": c.Query("assignee_id"),
		"site_id":     c.Query("site_id"),
	}
	if c.Query("unsafe") == "true" {
		filters["unsafe"] = true
	}
	if c.Query("overdue") == "true" {
		filters["overdue"] = true
	}

	result, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取缺陷列表失败: "+err.Error())
		return
	}
	Success(c, result)
}

// Summary 缺陷汇总
// GET /api/v1/defects/summary
func (h *DefectHandler) Summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		InternalError(c, "获取缺陷汇总失败: "+err.Error())
		return
	}
	Success(c, summary)
}

// Get 缺陷详情
// GET /api/v1/defects/:id
func (h *DefectHandler) Get(c *gin.Context) {
	defect, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "缺陷不存在")
			return
		}
		InternalError(c, "获取缺陷失败: "+err.Error())
		return
	}
	Success(c, defect)
}

// Create 创建缺陷
// POST /api/v1/defects
func (h *DefectHandler) Create(c *gin.Context) {
	var req service.CreateDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	defect, err := h.svc.Create(c.Request.Context(), GetUserID(c), GetUserName(c), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "资产不存在")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Created(c, defect)
}

// Update 更新缺陷
// PUT /api/v1/defects/:id
func (h *DefectHandler) Update(c *gin.Context) {
	var req service.UpdateDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	defect, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetUserID(c), GetUserName(c), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "缺陷不存在")
			return
		}
		if errors.Is(err, service.ErrDefectAlreadyClosed) {
			Conflict(c, "缺陷已关闭")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, defect)
}

// Delete 删除缺陷
// DELETE /api/v1/defects/:id
func (h *DefectHandler) Delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "缺陷不存在")
			return
		}
		InternalError(c, "删除缺陷失败: "+err.Error())
		return
	}
	Success(c, nil)
}

// Close 关闭缺陷
// POST /api/v1/defects/:id/close
func (h *DefectHandler) Close(c *gin.Context) {
	var req service.CloseDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	defect, err := h.svc.Close(c.Request.Context(), c.Param("id"), GetUserID(c), GetUserName(c), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "缺陷不存在")
			return
		}
		if errors.Is(err, service.ErrDefectAlreadyClosed) {
			Conflict(c, "缺陷已关闭，不能重复关闭")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, defect)
}

// Reopen 重开缺陷
// POST /api/v1/defects/:id/reopen
func (h *DefectHandler) Reopen(c *gin.Context) {
	var req service.ReopenDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	defect, err := h.svc.Reopen(c.Request.Context(), c.Param("id"), GetUserID(c), GetUserName(c), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "缺陷不存在")
			return
		}
		if errors.Is(err, service.ErrDefectNotClosed) {
			Conflict(c, "缺陷未关闭，不能重开")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, defect)
}

// AddComment 追加评论
// POST /api/v1/defects/:id/comments
func (h *DefectHandler) AddComment(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	comment, err := h.svc.AddComment(c.Request.Context(), c.Param("id"), GetUserID(c), GetUserName(c), req.Body)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "缺陷不存在")
			return
		}
		InternalError(c, "追加评论失败: "+err.Error())
		return
	}
	Created(c, comment)
}

// ListComments 评论列表
// GET /api/v1/defects/:id/comments
func (h *DefectHandler) ListComments(c *gin.Context) {
	comments, err := h.svc.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取评论失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": comments})
}

// ListHistory 历史记录列表
// GET /api/v1/defects/:id/history
func (h *DefectHandler) ListHistory(c *gin.Context) {
	entries, err := h.svc.ListHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取历史记录失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": entries})
}

// ListChildren 复发子缺陷列表
// GET /api/v1/defects/:id/children
func (h *DefectHandler) ListChildren(c *gin.Context) {
	children, err := h.svc.ListChildren(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取复发缺陷失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": children})
}

// Export 导出缺陷
// GET /api/v1/defects/export?format=xlsx|csv
func (h *DefectHandler) Export(c *gin.Context) {
	filters := map[string]interface{}{
		"keyword":  c.Query("keyword"),
		"asset_id": c.Query("asset_id"),
		"status":   c.Query("status"),
		"severity": c.Query("severity"),
		"site_id":  c.Query("site_id"),
	}

	if c.Query("format") == "csv" {
		data, filename, err := h.exportSvc.ExportDefectsCSV(c.Request.Context(), filters)
		if err != nil {
			InternalError(c, "导出缺陷失败: "+err.Error())
			return
		}
		c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
		c.Data(200, "text/csv; charset=gbk", data)
		return
	}

	f, filename, err := h.exportSvc.ExportDefectsXLSX(c.Request.Context(), filters)
	if err != nil {
		InternalError(c, "导出缺陷失败: "+err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
