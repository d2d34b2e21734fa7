package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wafer_project/dao"
	"wafer_project/entity"

	"github.com/klauspost/compress/zip"
	"gorm.io/gorm"
)

const kflHeader = "defect_id,center_x,center_y,ai_adc_type,adc_type"

// ExportService 把晶圆缺陷数据导出为 KFL 平面文件和批量 ZIP 包。
// 导出产物写到系统分配的临时目录，并发导出不会互相覆盖。
type ExportService struct {
	indexDAO  *dao.WaferIndexDAO
	defectDAO *dao.DefectStoreDAO
}

func NewExportService(dbConn *gorm.DB) *ExportService {
	return &ExportService{
		indexDAO:  dao.NewWaferIndexDAO(dbConn),
		defectDAO: dao.NewDefectStoreDAO(),
	}
}

// ExportWaferKFL 导出单个晶圆。exportAll 或晶圆已标注完成时导出全部缺陷，
// 否则只导出人工类别与 AI 类别不同的缺陷。返回导出文件路径。
func (s *ExportService) ExportWaferKFL(ctx context.Context, waferID string, exportAll bool) (string, error) {
	wafer, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrWaferNotFound
		}
		return "", err
	}

	if !dao.HasDetailDB(wafer.FolderPath) {
		return "", dao.ErrStoreMissing
	}

	store, err := s.defectDAO.OpenStore(wafer.FolderPath)
	if err != nil {
		return "", err
	}

	all := exportAll || wafer.LabelStatus == entity.LabelStatusComplete
	defects, err := store.ExportRows(all)
	closeErr := store.Close()
	if err != nil {
		return "", err
	}
	if closeErr != nil {
		serviceLogger().Warn("close detail store failed", "error", closeErr)
	}

	tempDir, err := os.MkdirTemp("", "kfl_export_")
	if err != nil {
		return "", fmt.Errorf("create export scratch dir failed: %w", err)
	}

	exportPath := filepath.Join(tempDir, wafer.WaferName+"_defects.kfl")
	if err := writeKFLFile(exportPath, defects); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", err
	}

	serviceLogger().Info("晶圆导出完成",
		"wafer", wafer.WaferName, "rows", len(defects), "file", exportPath)
	return exportPath, nil
}

func writeKFLFile(path string, defects []entity.DefectInfo) error {
	var b strings.Builder
	b.WriteString(kflHeader)
	b.WriteByte('\n')
	for _, d := range defects {
		adcType := ""
		if d.AdcType != nil {
			adcType = strconv.Itoa(*d.AdcType)
		}
		fmt.Fprintf(&b, "%s,%d,%d,%d,%s\n", d.DefectID, d.CenterX, d.CenterY, d.AIAdcType, adcType)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write export file failed: %w", err)
	}
	return nil
}

// BatchExportKFL 批量导出多个晶圆并打成一个 ZIP 包。单个晶圆导出失败跳过，
// 全部失败才算批量失败。返回 ZIP 文件路径。
func (s *ExportService) BatchExportKFL(ctx context.Context, waferIDs []string) (string, error) {
	logger := serviceLogger().With("func", "BatchExportKFL")

	tempDir, err := os.MkdirTemp("", "kfl_batch_")
	if err != nil {
		return "", fmt.Errorf("create batch scratch dir failed: %w", err)
	}

	zipPath := filepath.Join(tempDir, "batch_export.zip")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create batch archive failed: %w", err)
	}
	zipWriter := zip.NewWriter(zipFile)

	exported := 0
	for _, waferID := range waferIDs {
		exportPath, expErr := s.ExportWaferKFL(ctx, waferID, false)
		if expErr != nil {
			logger.Warn("跳过导出失败的晶圆", "wafer_id", waferID, "error", expErr)
			continue
		}
		zipErr := addFileToZip(zipWriter, exportPath)
		// 单晶圆导出的临时目录进包后就没用了
		_ = os.RemoveAll(filepath.Dir(exportPath))
		if zipErr != nil {
			logger.Warn("写入 ZIP 失败，跳过", "file", exportPath, "error", zipErr)
			continue
		}
		exported++
	}

	if err := zipWriter.Close(); err != nil {
		_ = zipFile.Close()
		return "", fmt.Errorf("finalize batch archive failed: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return "", fmt.Errorf("close batch archive failed: %w", err)
	}

	if exported == 0 {
		_ = os.RemoveAll(tempDir)
		return "", ErrNoWaferExported
	}

	logger.Info("批量导出完成", "exported", exported, "archive", zipPath)
	return zipPath, nil
}

func addFileToZip(zipWriter *zip.Writer, filePath string) error {
	src, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zipWriter.Create(filepath.Base(filePath))
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
