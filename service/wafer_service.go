package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"wafer_project/dao"
	"wafer_project/entity"

	"gorm.io/gorm"
)

// WaferService 负责晶圆的发现加载、进度同步、标注与重置。
// 索引库句柄在构造时注入；对同一晶圆的变更操作用每晶圆互斥锁串行化，
// 避免并发重建/迁移同一个内层库。
type WaferService struct {
	indexDAO  *dao.WaferIndexDAO
	defectDAO *dao.DefectStoreDAO

	mu       sync.Mutex
	waferMus map[string]*sync.Mutex
}

func NewWaferService(dbConn *gorm.DB) *WaferService {
	return &WaferService{
		indexDAO:  dao.NewWaferIndexDAO(dbConn),
		defectDAO: dao.NewDefectStoreDAO(),
		waferMus:  make(map[string]*sync.Mutex),
	}
}

// lockWafer 拿到某个晶圆的互斥锁，返回解锁函数。
func (s *WaferService) lockWafer(waferID string) func() {
	s.mu.Lock()
	m, ok := s.waferMus[waferID]
	if !ok {
		m = &sync.Mutex{}
		s.waferMus[waferID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// LoadWaferFolders 扫描根目录下的晶圆文件夹并更新全局索引库。
// 单个晶圆的失败只记录到索引库（解析失败 + 错误信息），不影响其余晶圆。
func (s *WaferService) LoadWaferFolders(ctx context.Context, rootDir string, recursive bool) (entity.LoadSummary, error) {
	logger := serviceLogger().With("func", "LoadWaferFolders", "root", rootDir)

	summary := entity.LoadSummary{}
	folders, err := DiscoverWaferFolders(rootDir, recursive)
	if err != nil {
		return summary, err
	}

	for _, folder := range folders {
		waferID := ComputeWaferID(folder)
		waferName := filepath.Base(folder)

		unlock := s.lockWafer(waferID)
		err := s.loadOneWafer(ctx, waferID, folder)
		unlock()

		summary.TotalProcessed++
		if err != nil {
			logger.Warn("处理晶圆失败", "wafer", waferName, "error", err)
			s.persistLoadError(ctx, waferID, waferName, folder, err)
			summary.Failed++
			continue
		}
		summary.Success++
	}

	logger.Info("晶圆文件夹加载完成",
		"processed", summary.TotalProcessed, "success", summary.Success, "failed", summary.Failed)
	return summary, nil
}

func (s *WaferService) loadOneWafer(ctx context.Context, waferID, folder string) error {
	existing, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hasStore := dao.HasDetailDB(folder)

	switch {
	case existing == nil && !hasStore:
		// 首次加载：解析入库
		return s.ingestFresh(ctx, waferID, folder)

	case existing == nil && hasStore:
		// 有内层库但没有索引记录：先按表头数补一条索引，再做一次同步取真值
		count, cntErr := CountReportDefects(filepath.Join(folder, RawDataFileName))
		if cntErr != nil {
			return cntErr
		}
		wafer := &entity.WaferMetadata{
			WaferID:      waferID,
			WaferName:    filepath.Base(folder),
			FolderPath:   folder,
			TotalDefects: count,
			ParsedStatus: entity.ParsedStatusParsed,
		}
		if upErr := s.indexDAO.UpsertNew(ctx, wafer); upErr != nil {
			return upErr
		}
		return s.syncLocked(ctx, waferID, folder)

	default:
		// 已有索引记录：无条件强制重新同步，不信任缓存的计数
		return s.syncLocked(ctx, waferID, folder)
	}
}

// ingestFresh 首次摄入一个晶圆：校验前置条件、解析报告、建内层库、插索引记录。
func (s *WaferService) ingestFresh(ctx context.Context, waferID, folder string) error {
	if err := ValidateWaferFolder(folder); err != nil {
		return err
	}

	report, err := ParseReport(filepath.Join(folder, RawDataFileName))
	if err != nil {
		return err
	}
	if report.Skipped > 0 {
		serviceLogger().Warn("报告存在坏行", "folder", folder, "skipped", report.Skipped)
	}

	if _, err := s.defectDAO.CreateStore(folder, report.Defects); err != nil {
		return err
	}

	wafer := &entity.WaferMetadata{
		WaferID:      waferID,
		WaferName:    filepath.Base(folder),
		FolderPath:   folder,
		TotalDefects: len(report.Defects),
		ParsedStatus: entity.ParsedStatusParsed,
	}
	return s.indexDAO.UpsertNew(ctx, wafer)
}

// persistLoadError 把单个晶圆的加载失败落到索引库：已有记录就标错，
// 没有就插入一条解析失败的记录。
func (s *WaferService) persistLoadError(ctx context.Context, waferID, waferName, folder string, cause error) {
	msg := cause.Error()
	err := s.indexDAO.MarkError(ctx, waferID, msg)
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		serviceLogger().Error("记录晶圆失败状态出错", "wafer", waferName, "error", err)
		return
	}

	wafer := &entity.WaferMetadata{
		WaferID:      waferID,
		WaferName:    waferName,
		FolderPath:   folder,
		ParsedStatus: entity.ParsedStatusError,
		ParseError:   &msg,
	}
	if upErr := s.indexDAO.UpsertNew(ctx, wafer); upErr != nil {
		serviceLogger().Error("插入失败状态记录出错", "wafer", waferName, "error", upErr)
	}
}

// SyncProgress 手动触发一次晶圆进度同步。失败会把晶圆落为解析失败状态。
func (s *WaferService) SyncProgress(ctx context.Context, waferID string) error {
	unlock := s.lockWafer(waferID)
	defer unlock()

	wafer, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWaferNotFound
		}
		return err
	}

	if err := s.syncLocked(ctx, waferID, wafer.FolderPath); err != nil {
		if markErr := s.indexDAO.MarkError(ctx, waferID, err.Error()); markErr != nil {
			serviceLogger().Error("记录同步失败状态出错", "wafer_id", waferID, "error", markErr)
		}
		return err
	}
	return nil
}

// syncLocked 权威重算一个晶圆的派生字段并写回索引库。调用方必须已持有晶圆锁。
//
// 重算是只读的：完好的内层库只读取、不重建，已有的标注不会被抹掉。
// 仅当内层库缺失、表结构不完整、或报告显示应有数据而库是空的时才整库重建，
// 重建报零行时再重试一次。
func (s *WaferService) syncLocked(ctx context.Context, waferID, folder string) error {
	logger := serviceLogger().With("func", "syncLocked", "wafer_id", waferID)

	reportPath := filepath.Join(folder, RawDataFileName)
	if _, err := os.Stat(reportPath); err != nil {
		return ErrMissingReport
	}

	expected, err := CountReportDefects(reportPath)
	if err != nil {
		return err
	}

	needRebuild := false
	store, err := s.defectDAO.OpenStore(folder)
	if err != nil {
		if !errors.Is(err, dao.ErrStoreMissing) && !errors.Is(err, dao.ErrStoreCorrupt) {
			return err
		}
		logger.Info("内层数据库不可用，准备重建", "reason", err)
		needRebuild = true
	}

	var total int64
	if !needRebuild {
		total, err = store.CountTotal()
		if err != nil {
			_ = store.Close()
			return err
		}
		if total == 0 && expected > 0 {
			// 库是空壳而报告有数据，视同缺失
			_ = store.Close()
			logger.Warn("内层数据库为空，准备重建", "expected", expected)
			needRebuild = true
		}
	}

	if needRebuild {
		report, perr := ParseReport(reportPath)
		if perr != nil {
			return perr
		}

		total, err = s.defectDAO.CreateStore(folder, report.Defects)
		if err != nil && expected > 0 {
			// 零行重建只重试一次
			logger.Warn("重建内层数据库失败，重试一次", "error", err)
			total, err = s.defectDAO.CreateStore(folder, report.Defects)
		}
		if err != nil {
			return err
		}

		store, err = s.defectDAO.OpenStore(folder)
		if err != nil {
			return err
		}
	}

	labeled, err := store.CountLabeled()
	closeErr := store.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		logger.Warn("close detail store failed", "error", closeErr)
	}

	progress := entity.ComputeProgress(int(labeled), int(total))
	labelStatus := entity.DeriveLabelStatus(int(labeled), int(total))

	return s.indexDAO.UpdateStatus(ctx, waferID, map[string]interface{}{
		"total_defects":   total,
		"labeled_defects": labeled,
		"progress":        progress,
		"label_status":    labelStatus,
		"parsed_status":   entity.ParsedStatusParsed,
		"parse_error":     nil,
	})
}

// ResetWaferStatus 重置晶圆：删掉内层库文件，索引记录回到未解析状态但保留。
func (s *WaferService) ResetWaferStatus(ctx context.Context, waferID string) error {
	unlock := s.lockWafer(waferID)
	defer unlock()

	wafer, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWaferNotFound
		}
		return err
	}

	if err := s.defectDAO.RemoveStore(wafer.FolderPath); err != nil {
		return fmt.Errorf("remove detail store failed: %w", err)
	}
	return s.indexDAO.MarkUnparsed(ctx, waferID)
}

// GetWaferList 返回全部晶圆记录，按名称排序。
func (s *WaferService) GetWaferList(ctx context.Context) ([]entity.WaferMetadata, error) {
	return s.indexDAO.FindAll(ctx)
}

// GetWaferData 返回单个晶圆的缺陷明细，类别以显示名呈现。
func (s *WaferService) GetWaferData(ctx context.Context, waferID string) (*entity.WaferData, error) {
	wafer, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWaferNotFound
		}
		return nil, err
	}

	store, err := s.defectDAO.OpenStore(wafer.FolderPath)
	if err != nil {
		return nil, err
	}
	defects, err := store.List()
	closeErr := store.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		serviceLogger().Warn("close detail store failed", "error", closeErr)
	}

	views := make([]entity.DefectView, 0, len(defects))
	for _, d := range defects {
		view := entity.DefectView{
			DefectID:   d.DefectID,
			CenterX:    d.CenterX,
			CenterY:    d.CenterY,
			AIAdcType:  entity.AdcTypeName(d.AIAdcType),
			LabelCount: d.LabelCount,
		}
		if d.AdcType != nil {
			view.AdcType = entity.AdcTypeName(*d.AdcType)
		}
		if d.Severity != nil {
			view.Severity = *d.Severity
		}
		if d.Comment != nil {
			view.Comment = *d.Comment
		}
		views = append(views, view)
	}

	return &entity.WaferData{Wafer: *wafer, Defects: views}, nil
}

// SaveLabel 保存一条人工标注并同步进度。selector 优先按 defect_id 解析；
// 纯数字且不是现存 ID 时按 defect_id 升序的行号解析（兼容旧前端）。
// 调用方阻塞到进度同步完成。
func (s *WaferService) SaveLabel(ctx context.Context, waferID, selector, adcType, severity, comment string) error {
	unlock := s.lockWafer(waferID)
	defer unlock()

	wafer, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWaferNotFound
		}
		return err
	}

	code := entity.AdcTypeCode(adcType)
	if code == 0 {
		if n, convErr := strconv.Atoi(adcType); convErr == nil {
			code = n
		}
	}
	if !entity.ValidAdcType(code) {
		return ErrInvalidAdcType
	}

	store, err := s.defectDAO.OpenStore(wafer.FolderPath)
	if err != nil {
		return err
	}

	defectID, err := resolveSelector(store, selector)
	if err != nil {
		_ = store.Close()
		return err
	}

	err = store.Label(defectID, code, severity, comment)
	closeErr := store.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		serviceLogger().Warn("close detail store failed", "error", closeErr)
	}

	serviceLogger().Info("标注保存成功",
		"wafer_id", waferID, "defect_id", defectID, "adc_type", code)

	if err := s.syncLocked(ctx, waferID, wafer.FolderPath); err != nil {
		if markErr := s.indexDAO.MarkError(ctx, waferID, err.Error()); markErr != nil {
			serviceLogger().Error("记录同步失败状态出错", "wafer_id", waferID, "error", markErr)
		}
		return err
	}
	return nil
}

// resolveSelector 把行选择器解析成具体的 defect_id。
func resolveSelector(store *dao.DefectStore, selector string) (string, error) {
	exists, err := store.HasDefect(selector)
	if err != nil {
		return "", err
	}
	if exists {
		return selector, nil
	}

	index, convErr := strconv.Atoi(selector)
	if convErr != nil {
		return "", dao.ErrDefectNotFound
	}

	ids, err := store.DefectIDs()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(ids) {
		return "", ErrRowSelectorOutOfRange
	}
	return ids[index], nil
}

// EnterInnerLayer 进入内层标注前的准备：内层库缺失时从报告重建，
// 并校验表结构和数据非空。失败会把晶圆落为解析失败状态。
func (s *WaferService) EnterInnerLayer(ctx context.Context, waferID string) error {
	unlock := s.lockWafer(waferID)
	defer unlock()

	wafer, err := s.indexDAO.FindByID(ctx, waferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWaferNotFound
		}
		return err
	}

	if err := s.enterLocked(wafer.FolderPath); err != nil {
		msg := fmt.Sprintf("进入内层失败: %v", err)
		if markErr := s.indexDAO.MarkError(ctx, waferID, msg); markErr != nil {
			serviceLogger().Error("记录进入内层失败状态出错", "wafer_id", waferID, "error", markErr)
		}
		return err
	}
	return nil
}

func (s *WaferService) enterLocked(folder string) error {
	reportPath := filepath.Join(folder, RawDataFileName)
	if _, err := os.Stat(reportPath); err != nil {
		return ErrMissingReport
	}

	if !dao.HasDetailDB(folder) {
		report, err := ParseReport(reportPath)
		if err != nil {
			return err
		}
		if _, err := s.defectDAO.CreateStore(folder, report.Defects); err != nil {
			return err
		}
	}

	store, err := s.defectDAO.OpenStore(folder)
	if err != nil {
		return err
	}
	total, err := store.CountTotal()
	closeErr := store.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		serviceLogger().Warn("close detail store failed", "error", closeErr)
	}

	if total == 0 {
		return ErrNoDefectData
	}
	return nil
}
