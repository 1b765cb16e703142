package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/testutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupPMTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin@test.com")
	testutil.SeedTestAsset(t, db, "asset-pm-001", "AST-T-0200", "Compressor 4", entity.AssetOpInUse, entity.AssetLifecycleActive)

	repos := repository.NewRepositories(db)
	syncSvc := service.NewSyncService(repos.SyncQueue, nil, "")
	pmSvc := service.NewPMService(repos.PM, repos.Asset, syncSvc)
	pmHandler := NewPMHandler(pmSvc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	pm := api.Group("/pm")
	pm.GET("/schedules", pmHandler.ListSchedules)
	pm.POST("/schedules", pmHandler.CreateSchedule)
	pm.GET("/schedules/:id", pmHandler.GetSchedule)
	pm.PUT("/schedules/:id", pmHandler.UpdateSchedule)
	pm.POST("/generate", pmHandler.GenerateWorkOrders)
	pm.GET("/work-orders", pmHandler.ListWorkOrders)
	pm.GET("/work-orders/:id", pmHandler.GetWorkOrder)
	pm.POST("/work-orders/:id/complete", pmHandler.CompleteWorkOrder)

	return router, db
}

func createTestSchedule(t *testing.T, router *gin.Engine, token string, firstDue time.Time) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/pm/schedules", map[string]interface{}{
		"asset_id":       "asset-pm-001",
		"name":           "90 day thorough examination",
		"frequency_days": 90,
		"first_due_at":   firstDue.Format(time.RFC3339),
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to create schedule: %d %s", w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func TestPMCreateSchedule(t *testing.T) {
	router, _ := setupPMTest(t)
	token := testutil.DefaultTestToken()

	data := createTestSchedule(t, router, token, time.Now().AddDate(0, 0, 30))
	code, ok := data["code"].(string)
	if !ok || len(code) < 4 || code[:3] != "PM-" {
		t.Errorf("Expected code starting with 'PM-', got %v", data["code"])
	}
	if data["active"] != true {
		t.Errorf("Expected schedule active by default, got %v", data["active"])
	}
}

func TestPMCreateScheduleUnknownAsset(t *testing.T) {
	router, _ := setupPMTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/pm/schedules", map[string]interface{}{
		"asset_id":       "asset-missing",
		"name":           "Ghost schedule",
		"frequency_days": 30,
	}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPMGenerateWorkOrders(t *testing.T) {
	router, db := setupPMTest(t)
	token := testutil.DefaultTestToken()

	// Due yesterday, so generation picks it up
	data := createTestSchedule(t, router, token, time.Now().AddDate(0, 0, -1))
	scheduleID := data["id"].(string)

	w := testutil.DoRequest(router, "POST", "/api/v1/pm/generate", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Generate failed: %d %s", w.Code, w.Body.String())
	}
	gen := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if gen["created"].(float64) != 1 {
		t.Fatalf("Expected 1 work order created, got %v", gen["created"])
	}

	var wo entity.PMWorkOrder
	if err := db.First(&wo, "schedule_id = ?", scheduleID).Error; err != nil {
		t.Fatalf("Work order not persisted: %v", err)
	}
	if wo.Status != entity.WorkOrderStatusPending {
		t.Errorf("Expected pending work order, got %s", wo.Status)
	}

	// next_due_at rolled past now
	var schedule entity.PMSchedule
	db.First(&schedule, "id = ?", scheduleID)
	if !schedule.NextDueAt.After(time.Now()) {
		t.Errorf("Expected next_due_at rolled into the future, got %v", schedule.NextDueAt)
	}

	// Generated work order is queued for sync
	var count int64
	db.Model(&entity.SyncQueueItem{}).Where("operation = ?", entity.SyncOpCreateWorkOrder).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 work order sync item, got %d", count)
	}
}

func TestPMGenerateSkipsScheduleWithPendingOrder(t *testing.T) {
	router, db := setupPMTest(t)
	token := testutil.DefaultTestToken()

	data := createTestSchedule(t, router, token, time.Now().AddDate(0, 0, -1))
	scheduleID := data["id"].(string)

	w := testutil.DoRequest(router, "POST", "/api/v1/pm/generate", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Generate failed: %d %s", w.Code, w.Body.String())
	}

	// Force the schedule due again while its work order is still pending
	db.Model(&entity.PMSchedule{}).Where("id = ?", scheduleID).
		Update("next_due_at", time.Now().AddDate(0, 0, -1))

	w = testutil.DoRequest(router, "POST", "/api/v1/pm/generate", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Second generate failed: %d %s", w.Code, w.Body.String())
	}
	gen := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if gen["created"].(float64) != 0 {
		t.Errorf("Expected 0 created while a work order is pending, got %v", gen["created"])
	}

	var count int64
	db.Model(&entity.PMWorkOrder{}).Where("schedule_id = ?", scheduleID).Count(&count)
	if count != 1 {
		t.Errorf("Expected exactly 1 work order, got %d", count)
	}
}

func TestPMCompleteWorkOrder(t *testing.T) {
	router, db := setupPMTest(t)
	token := testutil.DefaultTestToken()

	createTestSchedule(t, router, token, time.Now().AddDate(0, 0, -1))
	w := testutil.DoRequest(router, "POST", "/api/v1/pm/generate", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Generate failed: %d %s", w.Code, w.Body.String())
	}

	var wo entity.PMWorkOrder
	if err := db.First(&wo).Error; err != nil {
		t.Fatalf("Work order not found: %v", err)
	}

	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/pm/work-orders/%s/complete", wo.ID),
		map[string]interface{}{"notes": "All checks passed"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Complete failed: %d %s", w.Code, w.Body.String())
	}

	completed := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if completed["status"] != entity.WorkOrderStatusCompleted {
		t.Errorf("Expected completed, got %v", completed["status"])
	}
	if completed["completed_at"] == nil {
		t.Error("Expected completed_at set")
	}

	// Completion stamps the asset and the schedule
	var asset entity.Asset
	db.First(&asset, "id = ?", "asset-pm-001")
	if asset.LastServicedAt == nil {
		t.Error("Expected asset last_serviced_at stamped")
	}
	var schedule entity.PMSchedule
	db.First(&schedule, "id = ?", wo.ScheduleID)
	if schedule.LastCompletedAt == nil {
		t.Error("Expected schedule last_completed_at stamped")
	}

	// Completing twice conflicts
	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/pm/work-orders/%s/complete", wo.ID),
		map[string]interface{}{"notes": "again"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 on double complete, got %d: %s", w.Code, w.Body.String())
	}
}
