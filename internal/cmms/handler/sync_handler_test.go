package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/testutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupSyncTest(t *testing.T) (*gin.Engine, *gorm.DB, *service.SyncService) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin@test.com")

	repos := repository.NewRepositories(db)
	syncSvc := service.NewSyncService(repos.SyncQueue, nil, "")
	syncHandler := NewSyncHandler(syncSvc, 100)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	sync := api.Group("/sync")
	sync.GET("/queue", syncHandler.List)
	sync.GET("/status", syncHandler.Status)
	sync.POST("/flush", syncHandler.Flush)

	return router, db, syncSvc
}

func TestSyncQueueAndStatus(t *testing.T) {
	router, _, syncSvc := setupSyncTest(t)
	token := testutil.DefaultTestToken()

	ctx := context.Background()
	syncSvc.Add(ctx, entity.SyncOpCreateDefect, "defect", "defect-001", entity.JSONB{"code": "DEF-1-0001"})
	syncSvc.Add(ctx, entity.SyncOpUpdateDefect, "defect", "defect-001", entity.JSONB{"code": "DEF-1-0001"})

	w := testutil.DoRequest(router, "GET", "/api/v1/sync/status", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Status failed: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["pending"].(float64) != 2 {
		t.Errorf("Expected 2 pending, got %v", data["pending"])
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/sync/queue?status=pending", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("List failed: %d %s", w.Code, w.Body.String())
	}
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["total"].(float64) != 2 {
		t.Errorf("Expected total 2, got %v", data["total"])
	}
	items := data["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	ops := map[string]bool{}
	for _, it := range items {
		ops[it.(map[string]interface{})["operation"].(string)] = true
	}
	if !ops[entity.SyncOpCreateDefect] || !ops[entity.SyncOpUpdateDefect] {
		t.Errorf("Unexpected operations in queue: %v", ops)
	}
}

// Without a reachable outbox, flush pushes nothing and every item stays pending.
func TestSyncFlushWithoutOutbox(t *testing.T) {
	router, db, syncSvc := setupSyncTest(t)
	token := testutil.DefaultTestToken()

	syncSvc.Add(context.Background(), entity.SyncOpCloseDefect, "defect", "defect-002", entity.JSONB{"code": "DEF-1-0002"})

	w := testutil.DoRequest(router, "POST", "/api/v1/sync/flush", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Flush failed: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["flushed"].(float64) != 0 {
		t.Errorf("Expected 0 flushed, got %v", data["flushed"])
	}
	if data["pending"].(float64) != 1 {
		t.Errorf("Expected 1 pending, got %v", data["pending"])
	}

	var item entity.SyncQueueItem
	db.First(&item, "entity_id = ?", "defect-002")
	if item.Status != entity.SyncStatusPending {
		t.Errorf("Expected item still pending, got %s", item.Status)
	}
}
