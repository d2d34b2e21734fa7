package dao

import (
	"context"
	"fmt"
	"strings"
	"time"

	entity2 "wafer_project/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WaferIndexDAO struct {
	DB *gorm.DB
}

func NewWaferIndexDAO(dbConn *gorm.DB) *WaferIndexDAO {
	return &WaferIndexDAO{
		DB: dbConn,
	}
}

// UpsertNew 插入新晶圆记录；wafer_id 已存在时不生效（幂等）。
func (d *WaferIndexDAO) UpsertNew(ctx context.Context, wafer *entity2.WaferMetadata) error {
	if wafer == nil {
		return ErrNilEntity
	}
	if strings.TrimSpace(wafer.WaferID) == "" {
		return ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return fmt.Errorf("upsert wafer failed: %w", err)
	}

	if wafer.LastOperated.IsZero() {
		wafer.LastOperated = time.Now()
	}

	// wafer_id 主键或 folder_path 唯一索引冲突都视为已存在，直接跳过
	return dbConn.Clauses(clause.OnConflict{DoNothing: true}).Create(wafer).Error
}

// UpdateStatus 将一组派生字段写回索引库，单条 UPDATE 完成。
// last_operated 总是随之刷新。
func (d *WaferIndexDAO) UpdateStatus(ctx context.Context, waferID string, fields map[string]interface{}) error {
	if strings.TrimSpace(waferID) == "" {
		return ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return fmt.Errorf("update wafer status failed: %w", err)
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["last_operated"] = time.Now()

	result := dbConn.Model(&entity2.WaferMetadata{}).
		Where("wafer_id = ?", waferID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update wafer status failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkError 将晶圆置为解析失败并记录错误信息。
func (d *WaferIndexDAO) MarkError(ctx context.Context, waferID, message string) error {
	return d.UpdateStatus(ctx, waferID, map[string]interface{}{
		"parsed_status": entity2.ParsedStatusError,
		"parse_error":   message,
	})
}

// MarkUnparsed 将晶圆重置为未解析并清空错误信息，行保留。
func (d *WaferIndexDAO) MarkUnparsed(ctx context.Context, waferID string) error {
	return d.UpdateStatus(ctx, waferID, map[string]interface{}{
		"parsed_status": entity2.ParsedStatusUnparsed,
		"parse_error":   nil,
	})
}

func (d *WaferIndexDAO) FindByID(ctx context.Context, waferID string) (*entity2.WaferMetadata, error) {
	if strings.TrimSpace(waferID) == "" {
		return nil, ErrInvalidID
	}

	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, fmt.Errorf("find wafer by id failed: %w", err)
	}

	var wafer entity2.WaferMetadata
	err = dbConn.Where("wafer_id = ?", waferID).First(&wafer).Error
	if err != nil {
		return nil, err
	}
	return &wafer, nil
}

// FindAll 返回全部晶圆记录，按名称稳定排序。
func (d *WaferIndexDAO) FindAll(ctx context.Context) ([]entity2.WaferMetadata, error) {
	dbConn, err := withContext(d.DB, ctx)
	if err != nil {
		return nil, fmt.Errorf("find wafers failed: %w", err)
	}

	var wafers []entity2.WaferMetadata
	err = dbConn.Order("wafer_name ASC").Find(&wafers).Error
	if err != nil {
		return nil, fmt.Errorf("query wafers failed: %w", err)
	}
	return wafers, nil
}
