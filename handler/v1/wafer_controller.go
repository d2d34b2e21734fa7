package v1

import (
	"net/http"
	"path/filepath"
	"strconv"

	"wafer_project/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type WaferController struct {
	waferService  *service.WaferService
	exportService *service.ExportService
}

func NewWaferController(dbConn *gorm.DB) *WaferController {
	return &WaferController{
		waferService:  service.NewWaferService(dbConn),
		exportService: service.NewExportService(dbConn),
	}
}

type loadWafersRequest struct {
	RootDir   string `json:"root_dir" binding:"required"`
	Recursive *bool  `json:"recursive"`
}

// LoadWafers handles POST /v1/wafers/load
func (c *WaferController) LoadWafers(ctx *gin.Context) {
	var req loadWafersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	summary, err := c.waferService.LoadWaferFolders(ctx.Request.Context(), req.RootDir, recursive)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	wafers, err := c.waferService.GetWaferList(ctx.Request.Context())
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  summary,
		"wafers":  wafers,
	})
}

// GetWaferList handles GET /v1/wafers
func (c *WaferController) GetWaferList(ctx *gin.Context) {
	wafers, err := c.waferService.GetWaferList(ctx.Request.Context())
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "wafers": wafers})
}

// GetWaferData handles GET /v1/wafers/:id/defects
func (c *WaferController) GetWaferData(ctx *gin.Context) {
	data, err := c.waferService.GetWaferData(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": data.Defects, "wafer": data.Wafer})
}

type saveLabelRequest struct {
	DefectID    string `json:"defect_id"`
	DefectIndex *int   `json:"defect_index"`
	AdcType     string `json:"adc_type" binding:"required"`
	Severity    string `json:"severity"`
	Comment     string `json:"comment"`
}

// SaveLabel handles POST /v1/wafers/:id/labels
func (c *WaferController) SaveLabel(ctx *gin.Context) {
	var req saveLabelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	selector := req.DefectID
	if selector == "" && req.DefectIndex != nil {
		selector = strconv.Itoa(*req.DefectIndex)
	}
	if selector == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "defect_id 或 defect_index 必填"})
		return
	}

	err := c.waferService.SaveLabel(
		ctx.Request.Context(), ctx.Param("id"), selector, req.AdcType, req.Severity, req.Comment)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "标注保存成功"})
}

// SyncWafer handles POST /v1/wafers/:id/sync
func (c *WaferController) SyncWafer(ctx *gin.Context) {
	if err := c.waferService.SyncProgress(ctx.Request.Context(), ctx.Param("id")); err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetWafer handles POST /v1/wafers/:id/reset
func (c *WaferController) ResetWafer(ctx *gin.Context) {
	if err := c.waferService.ResetWaferStatus(ctx.Request.Context(), ctx.Param("id")); err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// EnterInnerLayer handles POST /v1/wafers/:id/enter
func (c *WaferController) EnterInnerLayer(ctx *gin.Context) {
	waferID := ctx.Param("id")
	if err := c.waferService.EnterInnerLayer(ctx.Request.Context(), waferID); err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "成功进入内层标注",
		"redirect_url": "/inner_labeling.html?wafer_id=" + waferID,
	})
}

// ExportWafer handles GET /v1/wafers/:id/export
func (c *WaferController) ExportWafer(ctx *gin.Context) {
	exportAll := ctx.Query("export_all") == "true"

	exportPath, err := c.exportService.ExportWaferKFL(ctx.Request.Context(), ctx.Param("id"), exportAll)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.FileAttachment(exportPath, filepath.Base(exportPath))
}

type batchExportRequest struct {
	WaferIDs []string `json:"wafer_ids" binding:"required"`
}

// BatchExport handles POST /v1/wafers/export
func (c *WaferController) BatchExport(ctx *gin.Context) {
	var req batchExportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	zipPath, err := c.exportService.BatchExportKFL(ctx.Request.Context(), req.WaferIDs)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}
	ctx.FileAttachment(zipPath, filepath.Base(zipPath))
}
