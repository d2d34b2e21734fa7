package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	entity2 "wafer_project/entity"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitIndexDB 打开全局索引库并确保表结构存在。
// 索引库句柄由调用方持有并注入到各层，不做包级全局状态。
func InitIndexDB(indexPath string) (*gorm.DB, error) {
	indexPath = strings.TrimSpace(indexPath)
	if indexPath == "" {
		return nil, errors.New("index store path is empty")
	}

	if dir := filepath.Dir(indexPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index store directory failed: %w", err)
		}
	}

	gormDB, err := gorm.Open(sqlite.Open(indexPath), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open index store failed (path=%s): %w", indexPath, err)
	}

	if err := ensureTables(gormDB); err != nil {
		return nil, err
	}

	return gormDB, nil
}

func ensureTables(gormDB *gorm.DB) error {
	models := []interface{}{
		&entity2.WaferMetadata{},
	}

	for _, m := range models {
		if gormDB.Migrator().HasTable(m) {
			continue
		}
		if err := gormDB.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate missing table failed: %w", err)
		}
	}

	return nil
}

// OpenDetailDB 打开一个内层明细库文件。sqlite 打开不存在的路径会直接建文件，
// 存在性判断由调用方负责。
func OpenDetailDB(dbPath string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open detail store failed (path=%s): %w", dbPath, err)
	}
	return gormDB, nil
}

// CloseDB 关闭 gorm 底层的 sql.DB。内层库会被删除重建，必须及时释放文件句柄。
func CloseDB(gormDB *gorm.DB) error {
	if gormDB == nil {
		return nil
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
