package service

import (
	"context"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

// Services 服务集合
type Services struct {
	User       *UserService
	Asset      *AssetService
	Defect     *DefectService
	PM         *PMService
	Sync       *SyncService
	Export     *ExportService
	Attachment *AttachmentService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config) *Services {
	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			// MinIO不可用时降级运行，附件上传返回错误
			minioClient = nil
		}
	}

	syncSvc := NewSyncService(repos.SyncQueue, rdb, cfg.Sync.OutboxKey)
	defectSvc := NewDefectService(repos.Defect, repos.Asset, repos.User, syncSvc, rdb)

	return &Services{
		User:       NewUserService(repos.User),
		Asset:      NewAssetService(repos.Asset, syncSvc),
		Defect:     defectSvc,
		PM:         NewPMService(repos.PM, repos.Asset, syncSvc),
		Sync:       syncSvc,
		Export:     NewExportService(repos.Asset, repos.Defect),
		Attachment: NewAttachmentService(minioClient, cfg.MinIO.Bucket),
	}
}

// UserService 用户服务
type UserService struct {
	repo *repository.UserRepository
}

// NewUserService 创建用户服务
func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Get 获取用户详情
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.FindByID(ctx, id)
}

// ListAll 获取所有活跃用户
func (s *UserService) ListAll(ctx context.Context) ([]entity.User, error) {
	return s.repo.ListActive(ctx)
}

// Search 搜索用户（按名字/邮箱模糊匹配）
func (s *UserService) Search(ctx context.Context, query string) ([]entity.User, error) {
	return s.repo.Search(ctx, query)
}
