package router

import (
	v2 "wafer_project/handler/v1"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func SetupRouter(dbConn *gorm.DB) *gin.Engine {
	waferController := v2.NewWaferController(dbConn)

	r := gin.Default()
	r.Use(gin.Recovery())

	v1Group := r.Group("/v1")
	{
		wafers := v1Group.Group("/wafers")
		{
			wafers.POST("/load", waferController.LoadWafers)
			wafers.GET("", waferController.GetWaferList)
			wafers.GET("/:id/defects", waferController.GetWaferData)
			wafers.POST("/:id/labels", waferController.SaveLabel)
			wafers.POST("/:id/sync", waferController.SyncWafer)
			wafers.POST("/:id/reset", waferController.ResetWafer)
			wafers.POST("/:id/enter", waferController.EnterInnerLayer)
			wafers.GET("/:id/export", waferController.ExportWafer)
			wafers.POST("/export", waferController.BatchExport)
		}
	}

	return r
}
