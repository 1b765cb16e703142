package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/entity"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/service"
	"github.com/bitfantasy/nimo-cmms/internal/cmms/testutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupAssetTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	testutil.SeedTestUser(t, db, "test-user-001", "Test Admin", "admin@test.com")

	repos := repository.NewRepositories(db)
	syncSvc := service.NewSyncService(repos.SyncQueue, nil, "")
	assetSvc := service.NewAssetService(repos.Asset, syncSvc)
	exportSvc := service.NewExportService(repos.Asset, repos.Defect)
	assetHandler := NewAssetHandler(assetSvc, exportSvc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	assets := api.Group("/assets")
	assets.GET("", assetHandler.List)
	assets.POST("", assetHandler.Create)
	assets.POST("/bulk-status", assetHandler.BulkUpdateStatus)
	assets.GET("/:id", assetHandler.Get)
	assets.PUT("/:id", assetHandler.Update)
	assets.DELETE("/:id", assetHandler.Delete)

	return router, db
}

func TestAssetCreate(t *testing.T) {
	router, _ := setupAssetTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/assets", map[string]interface{}{
		"name":     "Tower Crane 7",
		"category": "lifting",
		"site_id":  "site-001",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	code, ok := data["code"].(string)
	if !ok || !strings.HasPrefix(code, "AST-") {
		t.Errorf("Expected code starting with 'AST-', got %v", data["code"])
	}
	if data["operational_status"] != entity.AssetOpInUse {
		t.Errorf("Expected default operational status in_use, got %v", data["operational_status"])
	}
	if data["lifecycle_status"] != entity.AssetLifecycleActive {
		t.Errorf("Expected default lifecycle status active, got %v", data["lifecycle_status"])
	}
}

func TestAssetCreateAutoCorrects(t *testing.T) {
	router, _ := setupAssetTest(t)
	token := testutil.DefaultTestToken()

	// archived + active corrects lifecycle to decommissioned
	w := testutil.DoRequest(router, "POST", "/api/v1/assets", map[string]interface{}{
		"name":               "Retired Genset",
		"operational_status": entity.AssetOpArchived,
		"lifecycle_status":   entity.AssetLifecycleActive,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["lifecycle_status"] != entity.AssetLifecycleDecommissioned {
		t.Errorf("Expected corrected lifecycle decommissioned, got %v", data["lifecycle_status"])
	}
	if data["operational_status"] != entity.AssetOpArchived {
		t.Errorf("Expected operational status archived, got %v", data["operational_status"])
	}
}

func TestAssetBulkUpdateStatusPartialFailure(t *testing.T) {
	router, db := setupAssetTest(t)
	token := testutil.DefaultTestToken()

	a1 := testutil.SeedTestAsset(t, db, "asset-bulk-01", "AST-T-0001", "Pump A", entity.AssetOpInUse, entity.AssetLifecycleActive)
	a2 := testutil.SeedTestAsset(t, db, "asset-bulk-02", "AST-T-0002", "Pump B", entity.AssetOpOutOfUse, entity.AssetLifecycleActive)
	a3 := testutil.SeedTestAsset(t, db, "asset-bulk-03", "AST-T-0003", "Pump C", entity.AssetOpOffHirePending, entity.AssetLifecycleActive)

	// disposed: in_use and out_of_use auto-correct to archived, off_hire_pending is hard-invalid
	w := testutil.DoRequest(router, "POST", "/api/v1/assets/bulk-status", map[string]interface{}{
		"asset_ids":        []string{a1.ID, a2.ID, a3.ID, "asset-missing"},
		"lifecycle_status": entity.AssetLifecycleDisposed,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if updated := data["updated"].(float64); updated != 2 {
		t.Errorf("Expected 2 updated, got %v", updated)
	}
	errs := data["errors"].([]interface{})
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", len(errs), errs)
	}

	// The updated assets carry the auto-corrected operational status
	var got entity.Asset
	if err := db.First(&got, "id = ?", a1.ID).Error; err != nil {
		t.Fatalf("reload asset: %v", err)
	}
	if got.OperationalStatus != entity.AssetOpArchived || got.LifecycleStatus != entity.AssetLifecycleDisposed {
		t.Errorf("Expected (archived, disposed), got (%s, %s)", got.OperationalStatus, got.LifecycleStatus)
	}

	// The invalid asset is untouched
	got = entity.Asset{}
	if err := db.First(&got, "id = ?", a3.ID).Error; err != nil {
		t.Fatalf("reload asset: %v", err)
	}
	if got.OperationalStatus != entity.AssetOpOffHirePending || got.LifecycleStatus != entity.AssetLifecycleActive {
		t.Errorf("Invalid asset must be unchanged, got (%s, %s)", got.OperationalStatus, got.LifecycleStatus)
	}

	// Bulk update is recorded in the sync queue once
	var count int64
	db.Model(&entity.SyncQueueItem{}).Where("operation = ?", entity.SyncOpBulkUpdateAssets).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 bulk sync queue item, got %d", count)
	}
}

func TestAssetBulkUpdateSingleFieldUsesExisting(t *testing.T) {
	router, db := setupAssetTest(t)
	token := testutil.DefaultTestToken()

	// decommissioned asset: off_hire_pending against it is hard-invalid
	a := testutil.SeedTestAsset(t, db, "asset-single-01", "AST-T-0010", "Old Hoist", entity.AssetOpOutOfUse, entity.AssetLifecycleDecommissioned)

	w := testutil.DoRequest(router, "POST", "/api/v1/assets/bulk-status", map[string]interface{}{
		"asset_ids":          []string{a.ID},
		"operational_status": entity.AssetOpOffHirePending,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if updated := data["updated"].(float64); updated != 0 {
		t.Errorf("Expected 0 updated, got %v", updated)
	}
	if errs := data["errors"].([]interface{}); len(errs) != 1 {
		t.Errorf("Expected 1 error, got %d", len(errs))
	}
}

func TestAssetDeleteWithOpenDefects(t *testing.T) {
	router, db := setupAssetTest(t)
	token := testutil.DefaultTestToken()

	a := testutil.SeedTestAsset(t, db, "asset-del-01", "AST-T-0020", "Lift 3", entity.AssetOpInUse, entity.AssetLifecycleActive)
	db.Model(&entity.Asset{}).Where("id = ?", a.ID).Update("open_defect_count", 1)

	w := testutil.DoRequest(router, "DELETE", "/api/v1/assets/"+a.ID, nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
}
