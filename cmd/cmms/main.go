package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/handler"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/bitfantasy/nimo-cmms/internal/config"
	"github.com/bitfantasy/nimo-cmms/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-cmms service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 建表
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Asset{},
		&entity.Defect{},
		&entity.DefectHistory{},
		&entity.DefectComment{},
		&entity.DefectAttachment{},
		&entity.SyncQueueItem{},
		&entity.PMSchedule{},
		&entity.PMWorkOrder{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 编码序列和补充索引（AutoMigrate不覆盖）
	migrationSQL := []string{
		"CREATE SEQUENCE IF NOT EXISTS asset_code_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS defect_code_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS pm_code_seq START 1",
		"CREATE SEQUENCE IF NOT EXISTS wo_code_seq START 1",
		"CREATE INDEX IF NOT EXISTS idx_defects_status_target ON defects(status, target_rectification_date)",
		"CREATE INDEX IF NOT EXISTS idx_defects_unsafe ON defects(unsafe_do_not_use) WHERE unsafe_do_not_use = true",
		"CREATE INDEX IF NOT EXISTS idx_sync_queue_pending ON sync_queue_items(created_at) WHERE status = 'pending'",
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("Migration SQL warning (may already exist)", zap.String("sql", sql), zap.Error(err))
		}
	}
	zapLogger.Info("Database migration completed")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, cfg)
	handlers := handler.NewHandlers(services, cfg)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// 静态文件服务 - 前端 (hashed filenames → immutable cache)
	r.Use(func(c *gin.Context) {
		if len(c.Request.URL.Path) > 8 && c.Request.URL.Path[:8] == "/assets/" {
			c.Header("Cache-Control", "public, max-age=31536000, immutable")
		}
		c.Next()
	})
	r.Static("/assets", "./web/cmms/assets")
	r.StaticFile("/logo.svg", "./web/cmms/logo.svg")

	// SPA 路由回退 - 所有非 API 路由返回 index.html
	r.NoRoute(func(c *gin.Context) {
		// 如果是 API 请求，返回 404
		if len(c.Request.URL.Path) > 4 && c.Request.URL.Path[:5] == "/api/" {
			c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
			return
		}
		indexData, err := os.ReadFile("./web/cmms/index.html")
		if err != nil {
			c.String(http.StatusInternalServerError, "index.html not found")
			return
		}
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexData)
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// SSE 实时推送（需要认证，支持 query param token）
		sseGroup := v1.Group("/sse")
		sseGroup.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			sseGroup.GET("/events", h.SSE.Stream)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// 用户
			users := authorized.Group("/users")
			{
				users.GET("", h.User.List)
				users.GET("/search", h.User.Search)
			}

			// 资产
			assets := authorized.Group("/assets")
			{
				assets.GET("", h.Asset.List)
				assets.GET("/export", h.Asset.Export)
				assets.POST("", h.Asset.Create)
				assets.POST("/bulk-status", h.Asset.BulkUpdateStatus)
				assets.GET("/:id", h.Asset.Get)
				assets.PUT("/:id", h.Asset.Update)
				assets.DELETE("/:id", middleware.RequireRole("cmms_admin"), h.Asset.Delete)
			}

			// 缺陷
			defects := authorized.Group("/defects")
			{
				defects.GET("", h.Defect.List)
				defects.GET("/summary", h.Defect.Summary)
				defects.GET("/export", h.Defect.Export)
				defects.POST("", h.Defect.Create)
				defects.GET("/:id", h.Defect.Get)
				defects.PUT("/:id", h.Defect.Update)
				defects.DELETE("/:id", middleware.RequireRole("cmms_admin"), h.Defect.Delete)
				defects.POST("/:id/close", h.Defect.Close)
				defects.POST("/:id/reopen", h.Defect.Reopen)
				defects.GET("/:id/comments", h.Defect.ListComments)
				defects.POST("/:id/comments", h.Defect.AddComment)
				defects.GET("/:id/history", h.Defect.ListHistory)
				defects.GET("/:id/children", h.Defect.ListChildren)
			}

			// 预防性维护
			pm := authorized.Group("/pm")
			{
				pm.GET("/schedules", h.PM.ListSchedules)
				pm.POST("/schedules", h.PM.CreateSchedule)
				pm.GET("/schedules/:id", h.PM.GetSchedule)
				pm.PUT("/schedules/:id", h.PM.UpdateSchedule)
				pm.POST("/generate", h.PM.GenerateWorkOrders)
				pm.GET("/work-orders", h.PM.ListWorkOrders)
				pm.GET("/work-orders/:id", h.PM.GetWorkOrder)
				pm.POST("/work-orders/:id/complete", h.PM.CompleteWorkOrder)
			}

			// 仪表盘
			authorized.GET("/dashboard/summary", h.Dashboard.Summary)

			// 同步队列
			sync := authorized.Group("/sync")
			{
				sync.GET("/queue", h.Sync.List)
				sync.GET("/status", h.Sync.Status)
				sync.POST("/flush", h.Sync.Flush)
			}

			// 附件
			authorized.POST("/upload", h.Upload.Upload)
			authorized.GET("/files/url", h.Upload.Download)
		}
	}
}
