package handler

import (
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/gin-gonic/gin"
)

// UploadHandler 附件上传处理器
type UploadHandler struct {
	svc *service.AttachmentService
}

// NewUploadHandler 创建附件上传处理器
func NewUploadHandler(svc *service.AttachmentService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// Upload 上传附件到对象存储
// POST /api/v1/upload
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		// 也尝试获取单文件
		files = form.File["file"]
	}
	if len(files) == 0 {
		BadRequest(c, "没有上传文件")
		return
	}

	var uploaded []service.UploadResult

	for _, fileHeader := range files {
		src, err := fileHeader.Open()
		if err != nil {
			InternalError(c, "读取上传文件失败: "+err.Error())
			return
		}

		result, err := h.svc.Upload(c.Request.Context(), src, fileHeader.Filename,
			fileHeader.Size, fileHeader.Header.Get("Content-Type"))
		src.Close()
		if err != nil {
			InternalError(c, "上传文件失败: "+err.Error())
			return
		}

		uploaded = append(uploaded, *result)
	}

	Success(c, uploaded)
}

// Download 生成临时下载链接
// GET /api/v1/files/url?file_id=xxx
func (h *UploadHandler) Download(c *gin.Context) {
	fileID := c.Query("file_id")
	if fileID == "" {
		BadRequest(c, "file_id不能为空")
		return
	}

	url, err := h.svc.PresignedURL(c.Request.Context(), fileID, 15*time.Minute)
	if err != nil {
		InternalError(c, "生成下载链接失败: "+err.Error())
		return
	}
	Success(c, gin.H{"url": url})
}
