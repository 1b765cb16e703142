package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SyncService 同步队列服务
// 本地变更先落库排队，Flush时按入队顺序重放到Redis outbox
type SyncService struct {
	repo      *repository.SyncQueueRepository
	rdb       *redis.Client
	outboxKey string
}

// NewSyncService 创建同步队列服务
func NewSyncService(repo *repository.SyncQueueRepository, rdb *redis.Client, outboxKey string) *SyncService {
	if outboxKey == "" {
		outboxKey = "cmms:sync:outbox"
	}
	return &SyncService{repo: repo, rdb: rdb, outboxKey: outboxKey}
}

// FlushResult 单次Flush的结果
type FlushResult struct {
	Flushed int `json:"flushed"`
	Pending int `json:"pending"`
}

// Add 入队一条变更记录
// 排队失败只记日志，不阻断主流程
func (s *SyncService) Add(ctx context.Context, operation, entityType, entityID string, payload entity.JSONB) {
	item := &entity.SyncQueueItem{
		ID:         uuid.New().String()[:32],
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Status:     entity.SyncStatusPending,
	}
	if err := s.repo.Append(ctx, item); err != nil {
		log.Printf("[SYNC] enqueue failed: op=%s entity=%s/%s err=%v", operation, entityType, entityID, err)
	}
}

// Flush 将待同步项按入队顺序推送到Redis outbox并标记synced
// 推送失败的项保持pending，下次Flush重试；Redis不可用时整体跳过
func (s *SyncService) Flush(ctx context.Context, batch int) (*FlushResult, error) {
	items, err := s.repo.ListPending(ctx, batch)
	if err != nil {
		return nil, err
	}

	result := &FlushResult{}
	if s.rdb != nil {
		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				log.Printf("[SYNC] marshal failed: id=%s err=%v", item.ID, err)
				continue
			}
			if err := s.rdb.LPush(ctx, s.outboxKey, data).Err(); err != nil {
				log.Printf("[SYNC] push failed: id=%s err=%v", item.ID, err)
				break
			}
			if err := s.repo.MarkSynced(ctx, item.ID); err != nil {
				log.Printf("[SYNC] mark synced failed: id=%s err=%v", item.ID, err)
				continue
			}
			result.Flushed++
		}
	}

	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	result.Pending = int(pending)
	return result, nil
}

// List 获取队列项列表
func (s *SyncService) List(ctx context.Context, page, pageSize int, status string) (map[string]interface{}, error) {
	items, total, err := s.repo.List(ctx, page, pageSize, status)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"items": items,
		"total": total,
	}, nil
}

// CountPending 统计待同步项数量
func (s *SyncService) CountPending(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx)
}
