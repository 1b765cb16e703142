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

func setupDefectTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin@test.com")
	testutil.SeedTestAsset(t, db, "asset-def-001", "AST-T-0100", "Excavator 12", entity.AssetOpInUse, entity.AssetLifecycleActive)

	repos := repository.NewRepositories(db)
	syncSvc := service.NewSyncService(repos.SyncQueue, nil, "")
	defectSvc := service.NewDefectService(repos.Defect, repos.Asset, repos.User, syncSvc, nil)
	exportSvc := service.NewExportService(repos.Asset, repos.Defect)
	defectHandler := NewDefectHandler(defectSvc, exportSvc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	defects := api.Group("/defects")
	defects.GET("", defectHandler.List)
	defects.GET("/summary", defectHandler.Summary)
	defects.POST("", defectHandler.Create)
	defects.GET("/:id", defectHandler.Get)
	defects.PUT("/:id", defectHandler.Update)
	defects.DELETE("/:id", defectHandler.Delete)
	defects.POST("/:id/close", defectHandler.Close)
	defects.POST("/:id/reopen", defectHandler.Reopen)
	defects.GET("/:id/comments", defectHandler.ListComments)
	defects.POST("/:id/comments", defectHandler.AddComment)
	defects.GET("/:id/history", defectHandler.ListHistory)
	defects.GET("/:id/children", defectHandler.ListChildren)

	return router, db
}

func createTestDefect(t *testing.T, router *gin.Engine, token string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	if body == nil {
		body = map[string]interface{}{}
	}
	if _, ok := body["title"]; !ok {
		body["title"] = "Hydraulic leak"
	}
	if _, ok := body["asset_id"]; !ok {
		body["asset_id"] = "asset-def-001"
	}
	if _, ok := body["severity"]; !ok {
		body["severity"] = entity.SeverityHigh
	}

	w := testutil.DoRequest(router, "POST", "/api/v1/defects", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to create defect: %d %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

func TestDefectCreate(t *testing.T) {
	router, db := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, map[string]interface{}{
		"title":             "Cracked boom weld",
		"unsafe_do_not_use": true,
	})

	if data["status"] != entity.DefectStatusOpen {
		t.Errorf("Expected status open, got %v", data["status"])
	}
	if data["severity_model"] != entity.SeverityModelLMH {
		t.Errorf("Expected default severity model, got %v", data["severity_model"])
	}

	// Reading the defect back returns the server-assigned code and an
	// initialized history trail
	w := testutil.DoRequest(router, "GET", "/api/v1/defects/"+data["id"].(string), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Get failed: %d %s", w.Code, w.Body.String())
	}
	got := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if got["code"] != data["code"] {
		t.Errorf("Round-trip code mismatch: %v vs %v", got["code"], data["code"])
	}
	if got["title"] != "Cracked boom weld" {
		t.Errorf("Round-trip title mismatch: %v", got["title"])
	}
	history, ok := got["history"].([]interface{})
	if !ok || len(history) != 1 {
		t.Errorf("Expected 1 history entry on fresh defect, got %v", got["history"])
	}

	// Asset open defect counter moves with the create
	var asset entity.Asset
	db.First(&asset, "id = ?", "asset-def-001")
	if asset.OpenDefectCount != 1 {
		t.Errorf("Expected open_defect_count 1, got %d", asset.OpenDefectCount)
	}

	// Mutation lands in the offline sync queue as pending
	var pending int64
	db.Model(&entity.SyncQueueItem{}).Where("status = ?", entity.SyncStatusPending).Count(&pending)
	if pending != 1 {
		t.Errorf("Expected 1 pending sync item, got %d", pending)
	}
}

func TestDefectCreateSeverityModelMismatch(t *testing.T) {
	router, _ := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/defects", map[string]interface{}{
		"title":          "Bad severity",
		"asset_id":       "asset-def-001",
		"severity_model": entity.SeverityModelMajor,
		"severity":       entity.SeverityHigh, // belongs to the low/medium/high model
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDefectCloseClearsUnsafeAndWritesHistory(t *testing.T) {
	router, db := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, map[string]interface{}{
		"unsafe_do_not_use": true,
	})
	defectID := data["id"].(string)

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", defectID), map[string]interface{}{
		"action_taken":      "Replaced hydraulic hose",
		"notes":             "Pressure tested after repair",
		"return_to_service": true,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	closed := resp["data"].(map[string]interface{})
	if closed["status"] != entity.DefectStatusClosed {
		t.Errorf("Expected status closed, got %v", closed["status"])
	}
	if closed["unsafe_do_not_use"] != false {
		t.Errorf("Expected unsafe flag cleared, got %v", closed["unsafe_do_not_use"])
	}
	if closed["action_taken"] != "Replaced hydraulic hose" {
		t.Errorf("Expected action_taken preserved, got %v", closed["action_taken"])
	}
	if closed["closed_at"] == nil {
		t.Error("Expected closed_at set")
	}

	// The close leaves a comment carrying action and notes
	var comments []entity.DefectComment
	db.Where("defect_id = ?", defectID).Order("created_at ASC").Find(&comments)
	if len(comments) != 1 {
		t.Fatalf("Expected 1 comment, got %d", len(comments))
	}
	wantBody := "Action: Replaced hydraulic hose. Pressure tested after repair"
	if comments[0].Body != wantBody {
		t.Errorf("Comment body = %q, want %q", comments[0].Body, wantBody)
	}

	// History: create + close + unsafe-cleared status change
	var history []entity.DefectHistory
	db.Where("defect_id = ?", defectID).Order("created_at ASC").Find(&history)
	if len(history) != 3 {
		t.Fatalf("Expected 3 history entries, got %d", len(history))
	}
	types := map[string]int{}
	for _, h := range history {
		types[h.Type]++
	}
	if types[entity.HistoryTypeClose] != 1 || types[entity.HistoryTypeStatusChange] != 1 {
		t.Errorf("Unexpected history types: %v", types)
	}

	// Counter returns to zero
	var asset entity.Asset
	db.First(&asset, "id = ?", "asset-def-001")
	if asset.OpenDefectCount != 0 {
		t.Errorf("Expected open_defect_count 0, got %d", asset.OpenDefectCount)
	}
}

func TestDefectCloseAlreadyClosed(t *testing.T) {
	router, _ := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, nil)
	defectID := data["id"].(string)

	closeBody := map[string]interface{}{"action_taken": "Fixed"}
	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", defectID), closeBody, token)
	if w.Code != http.StatusOK {
		t.Fatalf("First close failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", defectID), closeBody, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 on second close, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDefectUpdateRejectsClosed(t *testing.T) {
	router, _ := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, nil)
	defectID := data["id"].(string)

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", defectID),
		map[string]interface{}{"action_taken": "Fixed"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Close failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "PUT", "/api/v1/defects/"+defectID,
		map[string]interface{}{"title": "Edited after close"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 updating closed defect, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDefectReopenInPlace(t *testing.T) {
	router, db := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, nil)
	defectID := data["id"].(string)

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", defectID),
		map[string]interface{}{"action_taken": "Fixed"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Close failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/reopen", defectID),
		map[string]interface{}{"reason": "Leak returned after a week"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Reopen failed: %d %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	reopened := resp["data"].(map[string]interface{})
	if reopened["id"] != defectID {
		t.Errorf("In-place reopen must return the same defect, got %v", reopened["id"])
	}
	if reopened["status"] != entity.DefectStatusOpen {
		t.Errorf("Expected status open, got %v", reopened["status"])
	}
	if reopened["reopened_count"].(float64) != 1 {
		t.Errorf("Expected reopened_count 1, got %v", reopened["reopened_count"])
	}
	if reopened["closed_at"] != nil {
		t.Errorf("Expected closed_at cleared, got %v", reopened["closed_at"])
	}

	var comments []entity.DefectComment
	db.Where("defect_id = ? AND body LIKE 'Reopened:%'", defectID).Find(&comments)
	if len(comments) != 1 {
		t.Errorf("Expected 1 reopen comment, got %d", len(comments))
	}

	var asset entity.Asset
	db.First(&asset, "id = ?", "asset-def-001")
	if asset.OpenDefectCount != 1 {
		t.Errorf("Expected open_defect_count 1 after reopen, got %d", asset.OpenDefectCount)
	}
}

func TestDefectReopenAsRecurrence(t *testing.T) {
	router, db := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, nil)
	defectID := data["id"].(string)
	defectCode := data["code"].(string)

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", defectID),
		map[string]interface{}{"action_taken": "Fixed"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Close failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/reopen", defectID), map[string]interface{}{
		"reason":            "Same fault on night shift",
		"is_new_occurrence": true,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Recurrence reopen failed: %d %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	recurrence := resp["data"].(map[string]interface{})
	if recurrence["id"] == defectID {
		t.Fatal("Recurrence must be a new defect")
	}
	if recurrence["parent_defect_id"] != defectID {
		t.Errorf("Expected parent_defect_id %s, got %v", defectID, recurrence["parent_defect_id"])
	}
	if recurrence["status"] != entity.DefectStatusOpen {
		t.Errorf("Expected recurrence open, got %v", recurrence["status"])
	}
	wantDesc := fmt.Sprintf("Recurrence of %s: Same fault on night shift", defectCode)
	if recurrence["description"] != wantDesc {
		t.Errorf("Description = %q, want %q", recurrence["description"], wantDesc)
	}

	// The source stays closed with recurrence_count bumped
	var source entity.Defect
	db.First(&source, "id = ?", defectID)
	if source.Status != entity.DefectStatusClosed {
		t.Errorf("Source must stay closed, got %s", source.Status)
	}
	if source.RecurrenceCount != 1 {
		t.Errorf("Expected recurrence_count 1, got %d", source.RecurrenceCount)
	}

	// Recurrence shows up under the parent's children
	w = testutil.DoRequest(router, "GET", fmt.Sprintf("/api/v1/defects/%s/children", defectID), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("List children failed: %d", w.Code)
	}
	childData := testutil.ParseResponse(w)["data"].(map[string]interface{})
	children := childData["items"].([]interface{})
	if len(children) != 1 {
		t.Errorf("Expected 1 child defect, got %d", len(children))
	}
}

func TestDefectReopenNotClosed(t *testing.T) {
	router, _ := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	data := createTestDefect(t, router, token, nil)
	defectID := data["id"].(string)

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/reopen", defectID),
		map[string]interface{}{"reason": "Still broken"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 reopening open defect, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDefectSummary(t *testing.T) {
	router, _ := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	past := time.Now().AddDate(0, 0, -3).Format(time.RFC3339)
	createTestDefect(t, router, token, map[string]interface{}{
		"title":             "Unsafe guard missing",
		"unsafe_do_not_use": true,
	})
	createTestDefect(t, router, token, map[string]interface{}{
		"title":                     "Overdue greasing",
		"target_rectification_date": past,
	})
	closedData := createTestDefect(t, router, token, map[string]interface{}{
		"title": "Already handled",
	})

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/defects/%s/close", closedData["id"]),
		map[string]interface{}{"action_taken": "Fixed"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Close failed: %d %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/defects/summary", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Summary failed: %d %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	summary := resp["data"].(map[string]interface{})
	if summary["total"].(float64) != 3 {
		t.Errorf("Expected total 3, got %v", summary["total"])
	}
	if summary["open"].(float64) != 2 {
		t.Errorf("Expected open 2, got %v", summary["open"])
	}
	if summary["overdue"].(float64) != 1 {
		t.Errorf("Expected overdue 1, got %v", summary["overdue"])
	}
	if summary["unsafe"].(float64) != 1 {
		t.Errorf("Expected unsafe 1, got %v", summary["unsafe"])
	}
}

func TestDefectListUnsafeFilter(t *testing.T) {
	router, _ := setupDefectTest(t)
	token := testutil.DefaultTestToken()

	createTestDefect(t, router, token, map[string]interface{}{
		"title":             "Unsafe one",
		"unsafe_do_not_use": true,
	})
	createTestDefect(t, router, token, map[string]interface{}{
		"title": "Safe one",
	})

	w := testutil.DoRequest(router, "GET", "/api/v1/defects?unsafe=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("List failed: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["total"].(float64) != 1 {
		t.Errorf("Expected 1 unsafe defect, got %v", data["total"])
	}
}
