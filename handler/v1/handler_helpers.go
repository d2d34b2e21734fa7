package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"wafer_project/config"
	"wafer_project/dao"
	"wafer_project/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func handlerLogger() *slog.Logger {
	logger := config.EnsureLoggerInitialized()
	if logger == nil {
		return slog.Default().With("layer", "handler")
	}
	return logger.With("layer", "handler")
}

func writeHTTPError(ctx *gin.Context, err error) {
	logger := handlerLogger().With(
		"method", ctx.Request.Method,
		"path", ctx.FullPath(),
	)

	switch {
	case errors.Is(err, dao.ErrInvalidID),
		errors.Is(err, dao.ErrNilEntity),
		errors.Is(err, service.ErrInvalidAdcType),
		errors.Is(err, service.ErrRowSelectorOutOfRange):
		logger.Warn("request failed", "status", http.StatusBadRequest, "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrWaferNotFound),
		errors.Is(err, dao.ErrDefectNotFound),
		errors.Is(err, dao.ErrStoreMissing),
		errors.Is(err, gorm.ErrRecordNotFound):
		logger.Warn("request failed", "status", http.StatusNotFound, "error", err)
		ctx.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrMissingReport),
		errors.Is(err, service.ErrMissingImageAsset),
		errors.Is(err, service.ErrEmptyReport),
		errors.Is(err, service.ErrNoDefectData),
		errors.Is(err, service.ErrNoWaferExported),
		errors.Is(err, dao.ErrStoreCorrupt):
		logger.Warn("request failed", "status", http.StatusUnprocessableEntity, "error", err)
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
	default:
		logger.Error("request failed", "status", http.StatusInternalServerError, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
