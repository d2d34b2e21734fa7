package dao

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wafer_project/entity"
	"wafer_project/infrastructure/db"

	"gorm.io/gorm"
)

var (
	ErrStoreMissing  = errors.New("内层数据库不存在")
	ErrStoreCorrupt  = errors.New("内层数据库表结构不完整")
	ErrStoreCreation = errors.New("创建内层数据库失败")
)

// DetailDBFileName 内层明细库文件名，与晶圆文件夹同级存放。
const DetailDBFileName = "database.db"

// labeledRule 判定某条缺陷是否已标注的规则，打开明细库时确定一次。
type labeledRule int

const (
	// label_count >= 1 视为已标注（首选）
	ruleLabelCount labeledRule = iota
	// 兼容旧库：人工类别与 AI 类别不同，或 severity 非空
	ruleSeverity
	// 兼容最旧库：仅看人工类别与 AI 类别是否不同
	ruleAdcMismatch
)

func DetailDBPath(folderPath string) string {
	return filepath.Join(folderPath, DetailDBFileName)
}

// 同一明细库文件的打开补列和删旧建新在进程内串行化：
// 并发对同一库补列会撞 "duplicate column name"。
var (
	storePathMusMu sync.Mutex
	storePathMus   = make(map[string]*sync.Mutex)
)

func lockStorePath(dbPath string) func() {
	key := filepath.Clean(dbPath)

	storePathMusMu.Lock()
	m, ok := storePathMus[key]
	if !ok {
		m = &sync.Mutex{}
		storePathMus[key] = m
	}
	storePathMusMu.Unlock()

	m.Lock()
	return m.Unlock
}

func HasDetailDB(folderPath string) bool {
	_, err := os.Stat(DetailDBPath(folderPath))
	return err == nil
}

// DefectStore 单个晶圆明细库的打开句柄。
type DefectStore struct {
	db   *gorm.DB
	path string
	rule labeledRule
}

type DefectStoreDAO struct{}

func NewDefectStoreDAO() *DefectStoreDAO {
	return &DefectStoreDAO{}
}

// OpenStore 打开已存在的明细库。打开时做两件一次性的事：
// 按迁移前的列集合确定已标注判定规则；为旧库补齐标注相关列。
// 之后的写入路径不再做任何 schema 检查。
func (d *DefectStoreDAO) OpenStore(folderPath string) (*DefectStore, error) {
	dbPath := DetailDBPath(folderPath)
	unlock := lockStorePath(dbPath)
	defer unlock()

	if _, err := os.Stat(dbPath); err != nil {
		return nil, ErrStoreMissing
	}

	gormDB, err := db.OpenDetailDB(dbPath)
	if err != nil {
		return nil, err
	}

	migrator := gormDB.Migrator()
	if !migrator.HasTable(&entity.DefectInfo{}) {
		_ = db.CloseDB(gormDB)
		return nil, ErrStoreCorrupt
	}

	rule := ruleAdcMismatch
	switch {
	case migrator.HasColumn(&entity.DefectInfo{}, "LabelCount"):
		rule = ruleLabelCount
	case migrator.HasColumn(&entity.DefectInfo{}, "Severity"):
		rule = ruleSeverity
	}

	for _, field := range []string{"AdcType", "Severity", "Comment", "LabelTime", "LabelCount"} {
		if migrator.HasColumn(&entity.DefectInfo{}, field) {
			continue
		}
		if err := migrator.AddColumn(&entity.DefectInfo{}, field); err != nil {
			_ = db.CloseDB(gormDB)
			return nil, fmt.Errorf("migrate detail store failed (column=%s): %w", field, err)
		}
	}

	return &DefectStore{db: gormDB, path: dbPath, rule: rule}, nil
}

// CreateStore 从解析好的缺陷记录整库重建明细库。
// 删旧建新，整个导入在一个事务里；任何一步失败都会删掉库文件，不留半成品。
func (d *DefectStoreDAO) CreateStore(folderPath string, defects []entity.DefectInfo) (int64, error) {
	logger := daoLogger().With("func", "CreateStore", "folder", folderPath)

	if err := os.MkdirAll(folderPath, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create wafer folder failed: %v", ErrStoreCreation, err)
	}

	dbPath := DetailDBPath(folderPath)
	unlock := lockStorePath(dbPath)
	defer unlock()

	if _, err := os.Stat(dbPath); err == nil {
		if err := os.Remove(dbPath); err != nil {
			return 0, fmt.Errorf("%w: remove stale detail store failed: %v", ErrStoreCreation, err)
		}
		logger.Info("已删除旧的内层数据库", "path", dbPath)
	}

	gormDB, err := db.OpenDetailDB(dbPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreCreation, err)
	}

	fail := func(cause error) (int64, error) {
		_ = db.CloseDB(gormDB)
		_ = os.Remove(dbPath)
		return 0, fmt.Errorf("%w: %v", ErrStoreCreation, cause)
	}

	if err := gormDB.AutoMigrate(&entity.DefectInfo{}); err != nil {
		return fail(err)
	}

	if len(defects) > 0 {
		err = gormDB.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(defects, 200).Error
		})
		if err != nil {
			return fail(err)
		}
	}

	var count int64
	if err := gormDB.Model(&entity.DefectInfo{}).Count(&count).Error; err != nil {
		return fail(err)
	}
	if err := db.CloseDB(gormDB); err != nil {
		logger.Warn("close detail store failed", "error", err)
	}

	if count == 0 {
		_ = os.Remove(dbPath)
		return 0, fmt.Errorf("%w: 没有任何缺陷记录入库", ErrStoreCreation)
	}

	logger.Info("内层数据库创建完成", "path", dbPath, "rows", count)
	return count, nil
}

// RemoveStore 删除明细库文件；文件不存在视为成功。
func (d *DefectStoreDAO) RemoveStore(folderPath string) error {
	dbPath := DetailDBPath(folderPath)
	unlock := lockStorePath(dbPath)
	defer unlock()

	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}
	return os.Remove(dbPath)
}

func (s *DefectStore) Close() error {
	return db.CloseDB(s.db)
}

func (s *DefectStore) CountTotal() (int64, error) {
	var count int64
	err := s.db.Model(&entity.DefectInfo{}).Count(&count).Error
	return count, err
}

// CountLabeled 按打开时确定的规则统计已标注缺陷数。
func (s *DefectStore) CountLabeled() (int64, error) {
	query := s.db.Model(&entity.DefectInfo{})
	switch s.rule {
	case ruleLabelCount:
		query = query.Where("label_count >= 1")
	case ruleSeverity:
		query = query.Where(
			"(adc_type IS NOT NULL AND ai_adc_type != adc_type) OR (severity IS NOT NULL AND severity != '')")
	default:
		query = query.Where("adc_type IS NOT NULL AND ai_adc_type != adc_type")
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}

// List 返回全部缺陷记录，按 defect_id 升序，顺序稳定。
func (s *DefectStore) List() ([]entity.DefectInfo, error) {
	var defects []entity.DefectInfo
	err := s.db.Order("defect_id ASC").Find(&defects).Error
	return defects, err
}

// DefectIDs 返回按 defect_id 升序的全部缺陷 ID。
func (s *DefectStore) DefectIDs() ([]string, error) {
	var ids []string
	err := s.db.Model(&entity.DefectInfo{}).Order("defect_id ASC").Pluck("defect_id", &ids).Error
	return ids, err
}

// HasDefect 判断指定缺陷是否存在。
func (s *DefectStore) HasDefect(defectID string) (bool, error) {
	var count int64
	err := s.db.Model(&entity.DefectInfo{}).Where("defect_id = ?", defectID).Count(&count).Error
	return count > 0, err
}

// ExportRows 返回待导出的缺陷记录。all 为 false 时仅导出人工类别
// 与 AI 类别不同的记录。
func (s *DefectStore) ExportRows(all bool) ([]entity.DefectInfo, error) {
	if all {
		return s.List()
	}

	var defects []entity.DefectInfo
	err := s.db.Where("adc_type IS NOT NULL AND ai_adc_type != adc_type").
		Order("defect_id ASC").Find(&defects).Error
	return defects, err
}

// Label 对单条缺陷写入人工标注：类别、严重度、备注、标注时间，
// 并把标注次数加一。
func (s *DefectStore) Label(defectID string, adcType int, severity, comment string) error {
	now := time.Now()
	result := s.db.Model(&entity.DefectInfo{}).
		Where("defect_id = ?", defectID).
		Updates(map[string]interface{}{
			"adc_type":    adcType,
			"severity":    severity,
			"comment":     comment,
			"label_time":  now,
			"label_count": gorm.Expr("label_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("label defect failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDefectNotFound
	}
	return nil
}
