package service

import (
	"errors"
	"log/slog"

	"wafer_project/config"
)

var (
	ErrMissingReport         = errors.New("raw_data.txt文件不存在")
	ErrMissingImageAsset     = errors.New("明场/暗场图像文件缺失")
	ErrEmptyReport           = errors.New("raw_data.txt文件为空或格式不正确")
	ErrNoDefectData          = errors.New("内层数据库没有缺陷数据")
	ErrWaferNotFound         = errors.New("晶圆不存在")
	ErrRowSelectorOutOfRange = errors.New("缺陷行选择器越界")
	ErrInvalidAdcType        = errors.New("缺陷类别不合法")
	ErrNoWaferExported       = errors.New("没有找到可导出的晶圆")
)

func serviceLogger() *slog.Logger {
	if config.AppLogger != nil {
		return config.AppLogger.With("layer", "service")
	}
	if config.AppConfig == nil {
		return slog.Default().With("layer", "service")
	}

	logger := config.EnsureLoggerInitialized()
	if logger == nil {
		return slog.Default().With("layer", "service")
	}
	return logger.With("layer", "service")
}
