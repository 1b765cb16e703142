package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/bitfantasy/nimo-cmms/internal/config"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	User      *UserHandler
	Asset     *AssetHandler
	Defect    *DefectHandler
	PM        *PMHandler
	Sync      *SyncHandler
	Upload    *UploadHandler
	Dashboard *DashboardHandler
	SSE       *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		User:      NewUserHandler(svc.User),
		Asset:     NewAssetHandler(svc.Asset, svc.Export),
		Defect:    NewDefectHandler(svc.Defect, svc.Export),
		PM:        NewPMHandler(svc.PM),
		Sync:      NewSyncHandler(svc.Sync, cfg.Sync.FlushBatch),
		Upload:    NewUploadHandler(svc.Attachment),
		Dashboard: NewDashboardHandler(svc.Defect, svc.PM, svc.Sync),
		SSE:       NewSSEHandler(),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetUserName 从上下文获取用户名
func GetUserName(c *gin.Context) string {
	userName, _ := c.Get("user_name")
	if name, ok := userName.(string); ok {
		return name
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// ============================================================
// User Handler
// ============================================================

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		InternalError(c, "获取用户列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": users})
}

// Search 搜索用户（按名字模糊匹配）
// GET /api/v1/users/search?q=xxx
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		BadRequest(c, "搜索关键字不能为空")
		return
	}
	users, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		InternalError(c, "搜索用户失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": users})
}
