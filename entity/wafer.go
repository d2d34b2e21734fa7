package entity

import (
	"math"
	"time"
)

// 标注状态
const (
	LabelStatusNotStarted = 0 // 未开始
	LabelStatusInProgress = 1 // 标注中
	LabelStatusComplete   = 2 // 标注完成
)

// 解析状态
const (
	ParsedStatusUnparsed = 0 // 未解析
	ParsedStatusParsed   = 1 // 解析成功
	ParsedStatusError    = 2 // 解析失败
)

type WaferMetadata struct {
	WaferID        string    `gorm:"primaryKey;column:wafer_id" json:"wafer_id"`
	WaferName      string    `gorm:"column:wafer_name;not null" json:"wafer_name"`
	FolderPath     string    `gorm:"column:folder_path;not null;uniqueIndex:idx_folder_path" json:"folder_path"`
	TotalDefects   int       `gorm:"column:total_defects;default:0" json:"total_defects"`
	LabeledDefects int       `gorm:"column:labeled_defects;default:0" json:"labeled_defects"`
	Progress       float64   `gorm:"column:progress;default:0" json:"progress"`
	LabelStatus    int       `gorm:"column:label_status;default:0;index:idx_label_status" json:"label_status"`
	ParsedStatus   int       `gorm:"column:parsed_status;not null;default:0" json:"parsed_status"`
	ParseError     *string   `gorm:"column:parse_error" json:"parse_error"`
	LastOperated   time.Time `gorm:"column:last_operated" json:"last_operated"`
	CreateTime     time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (WaferMetadata) TableName() string {
	return "wafer_metadata"
}

// ComputeProgress 计算标注进度百分比，保留 2 位小数；total 为 0 时进度为 0。
func ComputeProgress(labeled, total int) float64 {
	if total <= 0 {
		return 0
	}
	progress := float64(labeled) / float64(total) * 100
	return math.Round(progress*100) / 100
}

// DeriveLabelStatus 由 (已标注数, 总数) 推导标注状态。
// 完成：labeled == total 且 total > 0；标注中：0 < labeled < total；否则未开始。
func DeriveLabelStatus(labeled, total int) int {
	switch {
	case total > 0 && labeled == total:
		return LabelStatusComplete
	case labeled > 0:
		return LabelStatusInProgress
	default:
		return LabelStatusNotStarted
	}
}
