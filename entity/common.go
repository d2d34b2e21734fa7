package entity

// LoadSummary 批量加载晶圆文件夹的汇总结果
type LoadSummary struct {
	TotalProcessed int `json:"total_processed"` // 处理总数
	Success        int `json:"success"`         // 成功数
	Failed         int `json:"failed"`          // 失败数
}

// DefectView 面向前端的缺陷视图：类别以显示名呈现
type DefectView struct {
	DefectID   string `json:"defect_id"`
	CenterX    int    `json:"center_x"`
	CenterY    int    `json:"center_y"`
	AIAdcType  string `json:"ai_adc_type"`
	AdcType    string `json:"adc_type"`
	Severity   string `json:"severity"`
	Comment    string `json:"comment"`
	LabelCount int    `json:"label_count"`
}

// WaferData 单个晶圆的缺陷明细及概要
type WaferData struct {
	Wafer   WaferMetadata `json:"wafer"`
	Defects []DefectView  `json:"defects"`
}
