package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// AttachmentService 附件存储服务，文件本体存MinIO，元数据由调用方落库
type AttachmentService struct {
	minioClient *minio.Client
	bucketName  string
}

// NewAttachmentService 创建附件存储服务
func NewAttachmentService(minioClient *minio.Client, bucketName string) *AttachmentService {
	return &AttachmentService{minioClient: minioClient, bucketName: bucketName}
}

// UploadResult 上传结果
type UploadResult struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// Upload 上传附件文件
func (s *AttachmentService) Upload(ctx context.Context, reader io.Reader, fileName string, fileSize int64, contentType string) (*UploadResult, error) {
	if s.minioClient == nil {
		return nil, fmt.Errorf("storage not configured")
	}

	// 生成存储路径
	objectName := fmt.Sprintf("attachments/%s/%s%s", time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))

	_, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	return &UploadResult{
		FileID:   objectName,
		FileName: fileName,
		FileSize: fileSize,
	}, nil
}

// Download 下载附件文件
func (s *AttachmentService) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if s.minioClient == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	object, err := s.minioClient.GetObject(ctx, s.bucketName, fileID, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return object, nil
}

// PresignedURL 生成临时下载链接
func (s *AttachmentService) PresignedURL(ctx context.Context, fileID string, expiry time.Duration) (string, error) {
	if s.minioClient == nil {
		return "", fmt.Errorf("storage not configured")
	}
	u, err := s.minioClient.PresignedGetObject(ctx, s.bucketName, fileID, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
