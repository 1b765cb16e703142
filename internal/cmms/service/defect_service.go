package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/sse"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 缺陷生命周期错误
var (
	ErrDefectAlreadyClosed = errors.New("defect already closed")
	ErrDefectNotClosed     = errors.New("defect is not closed")
)

// 缺陷汇总缓存键
const defectSummaryKey = "cmms:defect:summary"

// DefectService 缺陷服务
type DefectService struct {
	repo      *repository.DefectRepository
	assetRepo *repository.AssetRepository
	userRepo  *repository.UserRepository
	syncSvc   *SyncService
	rdb       *redis.Client
}

// NewDefectService 创建缺陷服务
func NewDefectService(repo *repository.DefectRepository, assetRepo *repository.AssetRepository,
	userRepo *repository.UserRepository, syncSvc *SyncService, rdb *redis.Client) *DefectService {
	return &DefectService{
		repo:      repo,
		assetRepo: assetRepo,
		userRepo:  userRepo,
		syncSvc:   syncSvc,
		rdb:       rdb,
	}
}

// CreateDefectRequest 创建缺陷请求
type CreateDefectRequest struct {
	Title                   string            `json:"title" binding:"required"`
	Description             string            `json:"description"`
	AssetID                 string            `json:"asset_id" binding:"required"`
	SeverityModel           string            `json:"severity_model"`
	Severity                string            `json:"severity" binding:"required"`
	UnsafeDoNotUse          bool              `json:"unsafe_do_not_use"`
	TargetRectificationDate *time.Time        `json:"target_rectification_date"`
	AssigneeID              string            `json:"assignee_id"`
	ComplianceTags          entity.JSONBArray `json:"compliance_tags"`
	RecommendedActions      entity.JSONBArray `json:"recommended_actions"`
	Draft                   bool              `json:"draft"`
}

// UpdateDefectRequest 更新缺陷请求
type UpdateDefectRequest struct {
	Title                   *string           `json:"title"`
	Description             *string           `json:"description"`
	Status                  *string           `json:"status"`
	Severity                *string           `json:"severity"`
	UnsafeDoNotUse          *bool             `json:"unsafe_do_not_use"`
	TargetRectificationDate *time.Time        `json:"target_rectification_date"`
	AssigneeID              *string           `json:"assignee_id"`
	ComplianceTags          entity.JSONBArray `json:"compliance_tags"`
	RecommendedActions      entity.JSONBArray `json:"recommended_actions"`
}

// CloseDefectRequest 关闭缺陷请求
type CloseDefectRequest struct {
	ActionTaken     string              `json:"action_taken" binding:"required"`
	Notes           string              `json:"notes"`
	ReturnToService bool                `json:"return_to_service"`
	Attachments     []AttachmentPayload `json:"attachments"`
}

// AttachmentPayload 关闭时随附的附件元数据，文件本体已上传MinIO
type AttachmentPayload struct {
	FileID   string `json:"file_id" binding:"required"`
	FileName string `json:"file_name" binding:"required"`
	FileSize int64  `json:"file_size"`
}

// ReopenDefectRequest 重开缺陷请求
// IsNewOccurrence为true时创建复发缺陷，原缺陷保持关闭
type ReopenDefectRequest struct {
	Reason          string              `json:"reason" binding:"required"`
	IsNewOccurrence bool                `json:"is_new_occurrence"`
	Attachments     []AttachmentPayload `json:"attachments"`
}

// List 获取缺陷列表
func (s *DefectService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) (map[string]interface{}, error) {
	defects, total, err := s.repo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"defects": defects,
		"total":   total,
	}, nil
}

// Get 获取缺陷详情
func (s *DefectService) Get(ctx context.Context, id string) (*entity.Defect, error) {
	return s.repo.FindByID(ctx, id)
}

// ListChildren 获取复发子缺陷
func (s *DefectService) ListChildren(ctx context.Context, parentID string) ([]entity.Defect, error) {
	return s.repo.ListChildren(ctx, parentID)
}

// ListHistory 获取历史记录
func (s *DefectService) ListHistory(ctx context.Context, defectID string) ([]entity.DefectHistory, error) {
	return s.repo.ListHistory(ctx, defectID)
}

// ListComments 获取评论
func (s *DefectService) ListComments(ctx context.Context, defectID string) ([]entity.DefectComment, error) {
	return s.repo.ListComments(ctx, defectID)
}

// Create 创建缺陷
func (s *DefectService) Create(ctx context.Context, userID, userName string, req *CreateDefectRequest) (*entity.Defect, error) {
	asset, err := s.assetRepo.FindByID(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}

	model := req.SeverityModel
	if model == "" {
		model = entity.SeverityModelLMH
	}
	if !entity.IsSeverityForModel(model, req.Severity) {
		return nil, fmt.Errorf("严重度%s不属于模型%s", req.Severity, model)
	}

	status := entity.DefectStatusOpen
	if req.Draft {
		status = entity.DefectStatusDraft
	}

	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成缺陷编码失败: %w", err)
	}

	defect := &entity.Defect{
		ID:                      uuid.New().String()[:32],
		Code:                    code,
		Title:                   req.Title,
		Description:             req.Description,
		AssetID:                 asset.ID,
		SiteID:                  asset.SiteID,
		Status:                  status,
		SeverityModel:           model,
		Severity:                req.Severity,
		UnsafeDoNotUse:          req.UnsafeDoNotUse,
		TargetRectificationDate: req.TargetRectificationDate,
		AssigneeID:              req.AssigneeID,
		ComplianceTags:          req.ComplianceTags,
		RecommendedActions:      req.RecommendedActions,
		ReportedBy:              userID,
	}

	if err := s.repo.Create(ctx, defect); err != nil {
		return nil, fmt.Errorf("创建缺陷失败: %w", err)
	}

	s.appendHistory(ctx, defect.ID, entity.HistoryTypeCreate, fmt.Sprintf("Defect %s raised", defect.Code),
		userID, userName, entity.JSONB{"severity": defect.Severity, "unsafe": defect.UnsafeDoNotUse})

	if err := s.assetRepo.AddOpenDefectCount(ctx, asset.ID, 1); err != nil {
		log.Printf("[DEFECT] open count increment failed: asset=%s err=%v", asset.ID, err)
	}

	s.afterMutation(ctx, defect, "created", entity.SyncOpCreateDefect, userID)
	return defect, nil
}

// Update 更新缺陷字段
func (s *DefectService) Update(ctx context.Context, id, userID, userName string, req *UpdateDefectRequest) (*entity.Defect, error) {
	defect, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if defect.Status == entity.DefectStatusClosed {
		return nil, ErrDefectAlreadyClosed
	}

	oldStatus := defect.Status
	if req.Status != nil {
		if !entity.IsDefectStatus(*req.Status) {
			return nil, fmt.Errorf("非法缺陷状态: %s", *req.Status)
		}
		// 关闭和重开走专用接口，普通更新不接受
		if *req.Status == entity.DefectStatusClosed {
			return nil, errors.New("关闭缺陷需使用close接口")
		}
		defect.Status = *req.Status
	}
	if req.Title != nil {
		defect.Title = *req.Title
	}
	if req.Description != nil {
		defect.Description = *req.Description
	}
	if req.Severity != nil {
		if !entity.IsSeverityForModel(defect.SeverityModel, *req.Severity) {
			return nil, fmt.Errorf("严重度%s不属于模型%s", *req.Severity, defect.SeverityModel)
		}
		defect.Severity = *req.Severity
	}
	if req.UnsafeDoNotUse != nil {
		defect.UnsafeDoNotUse = *req.UnsafeDoNotUse
	}
	if req.TargetRectificationDate != nil {
		defect.TargetRectificationDate = req.TargetRectificationDate
	}
	if req.AssigneeID != nil {
		defect.AssigneeID = *req.AssigneeID
	}
	if req.ComplianceTags != nil {
		defect.ComplianceTags = req.ComplianceTags
	}
	if req.RecommendedActions != nil {
		defect.RecommendedActions = req.RecommendedActions
	}

	if err := s.repo.Update(ctx, defect); err != nil {
		return nil, fmt.Errorf("更新缺陷失败: %w", err)
	}

	if req.Status != nil && *req.Status != oldStatus {
		s.appendHistory(ctx, defect.ID, entity.HistoryTypeStatusChange,
			fmt.Sprintf("Status changed from %s to %s", oldStatus, defect.Status),
			userID, userName, entity.JSONB{"from": oldStatus, "to": defect.Status})
	}

	s.afterMutation(ctx, defect, "updated", entity.SyncOpUpdateDefect, userID)
	return defect, nil
}

// AddComment 追加评论
func (s *DefectService) AddComment(ctx context.Context, defectID, userID, userName, body string) (*entity.DefectComment, error) {
	if _, err := s.repo.FindByID(ctx, defectID); err != nil {
		return nil, err
	}
	comment := &entity.DefectComment{
		ID:         uuid.New().String()[:32],
		DefectID:   defectID,
		Body:       body,
		AuthorID:   userID,
		AuthorName: userName,
	}
	if err := s.repo.AppendComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("追加评论失败: %w", err)
	}
	sse.PublishDefectUpdate(defectID, "", "commented")
	return comment, nil
}

// Close 关闭缺陷
// 已关闭的缺陷返回ErrDefectAlreadyClosed，调用方映射为冲突
func (s *DefectService) Close(ctx context.Context, id, userID, userName string, req *CloseDefectRequest) (*entity.Defect, error) {
	defect, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if defect.Status == entity.DefectStatusClosed {
		return nil, ErrDefectAlreadyClosed
	}

	now := time.Now()
	wasUnsafe := defect.UnsafeDoNotUse

	defect.Status = entity.DefectStatusClosed
	defect.ActionTaken = req.ActionTaken
	defect.ClosedAt = &now
	defect.ClosedBy = userID
	defect.ClosedByName = userName
	if req.ReturnToService && defect.UnsafeDoNotUse {
		defect.UnsafeDoNotUse = false
	}

	if err := s.repo.Update(ctx, defect); err != nil {
		return nil, fmt.Errorf("关闭缺陷失败: %w", err)
	}

	// 关闭说明以评论形式留档，actionTaken原样保留
	body := fmt.Sprintf("Action: %s.", req.ActionTaken)
	if req.Notes != "" {
		body = body + " " + req.Notes
	}
	comment := &entity.DefectComment{
		ID:         uuid.New().String()[:32],
		DefectID:   defect.ID,
		Body:       body,
		AuthorID:   userID,
		AuthorName: userName,
	}
	if err := s.repo.AppendComment(ctx, comment); err != nil {
		log.Printf("[DEFECT] close comment failed: defect=%s err=%v", defect.ID, err)
	}

	for _, a := range req.Attachments {
		att := &entity.DefectAttachment{
			ID:         uuid.New().String()[:32],
			DefectID:   defect.ID,
			FileID:     a.FileID,
			FileName:   a.FileName,
			FileSize:   a.FileSize,
			UploadedBy: userID,
		}
		if err := s.repo.AppendAttachment(ctx, att); err != nil {
			log.Printf("[DEFECT] close attachment failed: defect=%s file=%s err=%v", defect.ID, a.FileID, err)
		}
	}

	s.appendHistory(ctx, defect.ID, entity.HistoryTypeClose,
		fmt.Sprintf("Defect closed: %s", req.ActionTaken),
		userID, userName, entity.JSONB{"action_taken": req.ActionTaken, "return_to_service": req.ReturnToService})

	if req.ReturnToService && wasUnsafe {
		s.appendHistory(ctx, defect.ID, entity.HistoryTypeStatusChange,
			"Unsafe flag cleared, asset returned to service",
			userID, userName, nil)
	}

	if err := s.assetRepo.AddOpenDefectCount(ctx, defect.AssetID, -1); err != nil {
		log.Printf("[DEFECT] open count decrement failed: asset=%s err=%v", defect.AssetID, err)
	}

	s.afterMutation(ctx, defect, "closed", entity.SyncOpCloseDefect, userID)
	return defect, nil
}

// Reopen 重开缺陷
// IsNewOccurrence为true时创建复发缺陷并返回新缺陷，否则原缺陷就地重开
func (s *DefectService) Reopen(ctx context.Context, id, userID, userName string, req *ReopenDefectRequest) (*entity.Defect, error) {
	defect, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if defect.Status != entity.DefectStatusClosed {
		return nil, ErrDefectNotClosed
	}

	if req.IsNewOccurrence {
		return s.reopenAsRecurrence(ctx, defect, userID, userName, req.Reason)
	}

	defect.Status = entity.DefectStatusOpen
	defect.ReopenedCount++
	defect.ClosedAt = nil
	defect.ClosedBy = ""
	defect.ClosedByName = ""

	if err := s.repo.Update(ctx, defect); err != nil {
		return nil, fmt.Errorf("重开缺陷失败: %w", err)
	}

	for _, a := range req.Attachments {
		att := &entity.DefectAttachment{
			ID:         uuid.New().String()[:32],
			DefectID:   defect.ID,
			FileID:     a.FileID,
			FileName:   a.FileName,
			FileSize:   a.FileSize,
			UploadedBy: userID,
		}
		if err := s.repo.AppendAttachment(ctx, att); err != nil {
			log.Printf("[DEFECT] reopen attachment failed: defect=%s file=%s err=%v", defect.ID, a.FileID, err)
		}
	}

	s.appendHistory(ctx, defect.ID, entity.HistoryTypeReopen,
		fmt.Sprintf("Defect reopened: %s", req.Reason),
		userID, userName, entity.JSONB{"reason": req.Reason})

	comment := &entity.DefectComment{
		ID:         uuid.New().String()[:32],
		DefectID:   defect.ID,
		Body:       fmt.Sprintf("Reopened: %s", req.Reason),
		AuthorID:   userID,
		AuthorName: userName,
	}
	if err := s.repo.AppendComment(ctx, comment); err != nil {
		log.Printf("[DEFECT] reopen comment failed: defect=%s err=%v", defect.ID, err)
	}

	if err := s.assetRepo.AddOpenDefectCount(ctx, defect.AssetID, 1); err != nil {
		log.Printf("[DEFECT] open count increment failed: asset=%s err=%v", defect.AssetID, err)
	}

	s.afterMutation(ctx, defect, "reopened", entity.SyncOpReopenDefect, userID)
	return defect, nil
}

// reopenAsRecurrence 以复发方式重开：原缺陷保持关闭并累计复发次数，新建子缺陷
func (s *DefectService) reopenAsRecurrence(ctx context.Context, source *entity.Defect, userID, userName, reason string) (*entity.Defect, error) {
	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成缺陷编码失败: %w", err)
	}

	parentID := source.ID
	recurrence := &entity.Defect{
		ID:                 uuid.New().String()[:32],
		Code:               code,
		Title:              source.Title,
		Description:        fmt.Sprintf("Recurrence of %s: %s", source.Code, reason),
		AssetID:            source.AssetID,
		SiteID:             source.SiteID,
		Status:             entity.DefectStatusOpen,
		SeverityModel:      source.SeverityModel,
		Severity:           source.Severity,
		AssigneeID:         source.AssigneeID,
		ComplianceTags:     source.ComplianceTags,
		RecommendedActions: source.RecommendedActions,
		ParentDefectID:     &parentID,
		ReportedBy:         userID,
	}

	if err := s.repo.Create(ctx, recurrence); err != nil {
		return nil, fmt.Errorf("创建复发缺陷失败: %w", err)
	}

	source.RecurrenceCount++
	if err := s.repo.Update(ctx, source); err != nil {
		return nil, fmt.Errorf("更新原缺陷复发次数失败: %w", err)
	}

	s.appendHistory(ctx, recurrence.ID, entity.HistoryTypeCreate,
		fmt.Sprintf("Raised as recurrence of %s", source.Code),
		userID, userName, entity.JSONB{"parent_defect_id": source.ID, "reason": reason})
	s.appendHistory(ctx, source.ID, entity.HistoryTypeReopen,
		fmt.Sprintf("Recurrence %s raised: %s", recurrence.Code, reason),
		userID, userName, entity.JSONB{"recurrence_id": recurrence.ID, "reason": reason})

	if err := s.assetRepo.AddOpenDefectCount(ctx, recurrence.AssetID, 1); err != nil {
		log.Printf("[DEFECT] open count increment failed: asset=%s err=%v", recurrence.AssetID, err)
	}

	s.afterMutation(ctx, recurrence, "recurrence_created", entity.SyncOpReopenDefect, userID)
	return recurrence, nil
}

// Delete 硬删除缺陷
func (s *DefectService) Delete(ctx context.Context, id, userID string) error {
	defect, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除缺陷失败: %w", err)
	}
	if defect.Status != entity.DefectStatusClosed {
		if err := s.assetRepo.AddOpenDefectCount(ctx, defect.AssetID, -1); err != nil {
			log.Printf("[DEFECT] open count decrement failed: asset=%s err=%v", defect.AssetID, err)
		}
	}
	s.afterMutation(ctx, defect, "deleted", entity.SyncOpDeleteDefect, userID)
	return nil
}

// Summary 获取缺陷汇总，优先读缓存
func (s *DefectService) Summary(ctx context.Context) (*entity.DefectSummary, error) {
	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, defectSummaryKey).Bytes(); err == nil {
			var summary entity.DefectSummary
			if err := json.Unmarshal(data, &summary); err == nil {
				return &summary, nil
			}
		}
	}
	return s.refreshSummary(ctx)
}

// refreshSummary 全量重算汇总并回写缓存
func (s *DefectService) refreshSummary(ctx context.Context) (*entity.DefectSummary, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if data, err := json.Marshal(summary); err == nil {
			if err := s.rdb.Set(ctx, defectSummaryKey, data, 0).Err(); err != nil {
				log.Printf("[DEFECT] summary cache write failed: err=%v", err)
			}
		}
	}
	return summary, nil
}

// appendHistory 写一条历史记录，失败只记日志
func (s *DefectService) appendHistory(ctx context.Context, defectID, historyType, summary, actorID, actorName string, detail entity.JSONB) {
	h := &entity.DefectHistory{
		ID:        uuid.New().String()[:32],
		DefectID:  defectID,
		Type:      historyType,
		Summary:   summary,
		ActorID:   actorID,
		ActorName: actorName,
		Detail:    detail,
	}
	if err := s.repo.AppendHistory(ctx, h); err != nil {
		log.Printf("[DEFECT] history append failed: defect=%s type=%s err=%v", defectID, historyType, err)
	}
}

// afterMutation 变更后的统一收尾：排队同步、重算汇总、广播事件
func (s *DefectService) afterMutation(ctx context.Context, defect *entity.Defect, action, syncOp, userID string) {
	s.syncSvc.Add(ctx, syncOp, "defect", defect.ID, entity.JSONB{
		"code":     defect.Code,
		"asset_id": defect.AssetID,
		"status":   defect.Status,
		"action":   action,
		"actor_id": userID,
	})
	if _, err := s.refreshSummary(ctx); err != nil {
		log.Printf("[DEFECT] summary refresh failed: err=%v", err)
	}
	sse.PublishDefectUpdate(defect.ID, defect.AssetID, action)
}
