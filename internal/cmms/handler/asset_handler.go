package handler

import (
	"errors"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/gin-gonic/gin"
)

// AssetHandler 资产处理器
type AssetHandler struct {
	svc       *service.AssetService
	exportSvc *service.ExportService
}

// NewAssetHandler 创建资产处理器
func NewAssetHandler(svc *service.AssetService, exportSvc *service.ExportService) *AssetHandler {
	return &AssetHandler{svc: svc, exportSvc: exportSvc}
}

// List 资产列表
// GET /api/v1/assets
func (h *AssetHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"keyword":            c.Query("keyword"),
		"operational_status": c.Query("operational_status"),
		"lifecycle_status":   c.Query("lifecycle_status"),
		"compliance_rating":  c.Query("compliance_rating"),
		"criticality":        c.Query("criticality"),
		"site_id":            c.Query("site_id"),
	}

	result, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取资产列表失败: "+err.Error())
		return
	}
	Success(c, result)
}

// Get 资产详情
// GET /api/v1/assets/:id
func (h *AssetHandler) Get(c *gin.Context) {
	asset, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "资产不存在")
			return
		}
		InternalError(c, "获取资产失败: "+err.Error())
		return
	}
	Success(c, asset)
}

// Create 创建资产
// POST /api/v1/assets
func (h *AssetHandler) Create(c *gin.Context) {
	var req service.CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	asset, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Created(c, asset)
}

// Update 更新资产
// PUT /api/v1/assets/:id
func (h *AssetHandler) Update(c *gin.Context) {
	var req service.UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	asset, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "资产不存在")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	Success(c, asset)
}

// Delete 删除资产
// DELETE /api/v1/assets/:id
func (h *AssetHandler) Delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "资产不存在")
			return
		}
		if errors.Is(err, service.ErrAssetHasOpenDefects) {
			Conflict(c, "资产存在未关闭缺陷，不能删除")
			return
		}
		InternalError(c, "删除资产失败: "+err.Error())
		return
	}
	Success(c, nil)
}

// BulkUpdateStatus 批量更新资产状态
// POST /api/v1/assets/bulk-status
func (h *AssetHandler) BulkUpdateStatus(c *gin.Context) {
	var req service.BulkUpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if len(req.AssetIDs) == 0 {
		BadRequest(c, "资产ID列表不能为空")
		return
	}

	result, err := h.svc.BulkUpdateStatus(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, result)
}

// Export 导出资产为xlsx
// GET /api/v1/assets/export
func (h *AssetHandler) Export(c *gin.Context) {
	filters := map[string]interface{}{
		"keyword":            c.Query("keyword"),
		"operational_status": c.Query("operational_status"),
		"lifecycle_status":   c.Query("lifecycle_status"),
		"site_id":            c.Query("site_id"),
	}

	f, filename, err := h.exportSvc.ExportAssetsXLSX(c.Request.Context(), filters)
	if err != nil {
		InternalError(c, "导出资产失败: "+err.Error())
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
