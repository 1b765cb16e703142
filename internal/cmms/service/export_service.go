package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-cmms/internal/cmms/repository"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// ExportService 导出服务
type ExportService struct {
	assetRepo  *repository.AssetRepository
	defectRepo *repository.DefectRepository
}

// NewExportService 创建导出服务
func NewExportService(assetRepo *repository.AssetRepository, defectRepo *repository.DefectRepository) *ExportService {
	return &ExportService{assetRepo: assetRepo, defectRepo: defectRepo}
}

// 导出分页上限，超出部分截断
const exportPageSize = 10000

var assetExportHeaders = []string{
	"编码", "名称", "类别", "序列号", "运行状态", "生命周期状态",
	"RAG评级", "关键度", "站点", "持有方式", "未关闭缺陷数",
	"投用时间", "最近保养时间",
}

var defectExportHeaders = []string{
	"编码", "标题", "资产编码", "状态", "严重度", "禁用标记",
	"整改期限", "负责人", "复发次数", "重开次数", "上报时间", "关闭时间",
}

// ExportAssetsXLSX 导出资产为xlsx
func (s *ExportService) ExportAssetsXLSX(ctx context.Context, filters map[string]interface{}) (*excelize.File, string, error) {
	assets, _, err := s.assetRepo.List(ctx, 1, exportPageSize, filters)
	if err != nil {
		return nil, "", fmt.Errorf("list assets: %w", err)
	}

	f := excelize.NewFile()
	sheet := "Assets"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range assetExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx, asset := range assets {
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), asset.Code)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), asset.Name)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), asset.Category)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), asset.SerialNumber)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), asset.OperationalStatus)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), asset.LifecycleStatus)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), asset.ComplianceRating)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), asset.Criticality)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), asset.SiteID)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), asset.Ownership)
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), asset.OpenDefectCount)
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), formatDate(asset.CommissionedAt))
		f.SetCellValue(sheet, fmt.Sprintf("M%d", row), formatDate(asset.LastServicedAt))
	}

	colWidths := []float64{16, 24, 12, 16, 14, 14, 10, 8, 12, 10, 12, 12, 12}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("Assets_%s.xlsx", time.Now().Format("20060102"))
	return f, filename, nil
}

// ExportDefectsXLSX 导出缺陷为xlsx
func (s *ExportService) ExportDefectsXLSX(ctx context.Context, filters map[string]interface{}) (*excelize.File, string, error) {
	defects, _, err := s.defectRepo.List(ctx, 1, exportPageSize, filters)
	if err != nil {
		return nil, "", fmt.Errorf("list defects: %w", err)
	}

	f := excelize.NewFile()
	sheet := "Defects"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range defectExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx, defect := range defects {
		row := rowIdx + 2
		assetCode := ""
		if defect.Asset != nil {
			assetCode = defect.Asset.Code
		}
		unsafe := "否"
		if defect.UnsafeDoNotUse {
			unsafe = "是"
		}
		assignee := ""
		if defect.Assignee != nil {
			assignee = defect.Assignee.Name
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), defect.Code)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), defect.Title)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), assetCode)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), defect.Status)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), defect.Severity)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), unsafe)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), formatDate(defect.TargetRectificationDate))
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), assignee)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), defect.RecurrenceCount)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), defect.ReopenedCount)
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), defect.CreatedAt.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), formatDate(defect.ClosedAt))
	}

	colWidths := []float64{16, 30, 16, 12, 10, 8, 12, 12, 8, 8, 12, 12}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("Defects_%s.xlsx", time.Now().Format("20060102"))
	return f, filename, nil
}

// ExportDefectsCSV 导出缺陷为CSV
// UTF-8 → GBK，保证Excel直接打开不乱码
func (s *ExportService) ExportDefectsCSV(ctx context.Context, filters map[string]interface{}) ([]byte, string, error) {
	defects, _, err := s.defectRepo.List(ctx, 1, exportPageSize, filters)
	if err != nil {
		return nil, "", fmt.Errorf("list defects: %w", err)
	}

	var buf bytes.Buffer
	gbkWriter := transform.NewWriter(&buf, simplifiedchinese.GBK.NewEncoder())
	w := csv.NewWriter(gbkWriter)

	if err := w.Write(defectExportHeaders); err != nil {
		return nil, "", fmt.Errorf("write csv header: %w", err)
	}
	for _, defect := range defects {
		assetCode := ""
		if defect.Asset != nil {
			assetCode = defect.Asset.Code
		}
		unsafe := "否"
		if defect.UnsafeDoNotUse {
			unsafe = "是"
		}
		assignee := ""
		if defect.Assignee != nil {
			assignee = defect.Assignee.Name
		}
		record := []string{
			defect.Code,
			defect.Title,
			assetCode,
			defect.Status,
			defect.Severity,
			unsafe,
			formatDate(defect.TargetRectificationDate),
			assignee,
			fmt.Sprintf("%d", defect.RecurrenceCount),
			fmt.Sprintf("%d", defect.ReopenedCount),
			defect.CreatedAt.Format("2006-01-02"),
			formatDate(defect.ClosedAt),
		}
		if err := w.Write(record); err != nil {
			return nil, "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	if err := gbkWriter.Close(); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("Defects_%s.csv", time.Now().Format("20060102"))
	return buf.Bytes(), filename, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
