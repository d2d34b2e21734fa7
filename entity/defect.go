package entity

import "time"

type DefectInfo struct {
	DefectID   string     `gorm:"primaryKey;column:defect_id" json:"defect_id"`
	CenterX    int        `gorm:"column:center_x" json:"center_x"`
	CenterY    int        `gorm:"column:center_y" json:"center_y"`
	AIAdcType  int        `gorm:"column:ai_adc_type" json:"ai_adc_type"`
	AdcType    *int       `gorm:"column:adc_type" json:"adc_type"`
	Severity   *string    `gorm:"column:severity" json:"severity"`
	Comment    *string    `gorm:"column:comment" json:"comment"`
	LabelTime  *time.Time `gorm:"column:label_time" json:"label_time"`
	LabelCount int        `gorm:"column:label_count;default:0" json:"label_count"`
}

func (DefectInfo) TableName() string {
	return "defect_info"
}

// ADC 缺陷类别枚举 (1..5)
const (
	AdcTypeParticle = 1
	AdcTypeScratch  = 2
	AdcTypeStain    = 3
	AdcTypePinhole  = 4
	AdcTypeOther    = 5
)

var adcTypeNames = map[int]string{
	AdcTypeParticle: "Particle",
	AdcTypeScratch:  "Scratch",
	AdcTypeStain:    "Stain",
	AdcTypePinhole:  "Pinhole",
	AdcTypeOther:    "Other",
}

var adcTypeCodes = map[string]int{
	"Particle": AdcTypeParticle,
	"Scratch":  AdcTypeScratch,
	"Stain":    AdcTypeStain,
	"Pinhole":  AdcTypePinhole,
	"Other":    AdcTypeOther,
}

// AdcTypeName 返回类别编号对应的显示名，未知编号返回空串。
func AdcTypeName(code int) string {
	return adcTypeNames[code]
}

// AdcTypeCode 返回显示名对应的类别编号，未知名称返回 0。
func AdcTypeCode(name string) int {
	return adcTypeCodes[name]
}

// ValidAdcType 判断编号是否在合法枚举范围内。
func ValidAdcType(code int) bool {
	_, ok := adcTypeNames[code]
	return ok
}
