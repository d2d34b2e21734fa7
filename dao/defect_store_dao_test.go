package dao_test

import (
	"os"
	"sync"
	"testing"

	"wafer_project/dao"
	"wafer_project/entity"
	"wafer_project/infrastructure/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefects() []entity.DefectInfo {
	return []entity.DefectInfo{
		{DefectID: "D001", CenterX: 10, CenterY: 20, AIAdcType: 1},
		{DefectID: "D002", CenterX: 30, CenterY: 40, AIAdcType: 2},
		{DefectID: "D003", CenterX: 50, CenterY: 60, AIAdcType: 3},
	}
}

func TestCreateStoreAndCounts(t *testing.T) {
	folder := t.TempDir()
	defectDAO := dao.NewDefectStoreDAO()

	count, err := defectDAO.CreateStore(folder, sampleDefects())
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.True(t, dao.HasDetailDB(folder))

	store, err := defectDAO.OpenStore(folder)
	require.NoError(t, err)
	defer store.Close()

	total, err := store.CountTotal()
	assert.NoError(t, err)
	assert.EqualValues(t, 3, total)

	labeled, err := store.CountLabeled()
	assert.NoError(t, err)
	assert.EqualValues(t, 0, labeled, "新建库里没有任何已标注缺陷")

	defects, err := store.List()
	assert.NoError(t, err)
	require.Len(t, defects, 3)
	assert.Equal(t, "D001", defects[0].DefectID)
	assert.Equal(t, "D003", defects[2].DefectID)
	assert.Nil(t, defects[0].AdcType, "初始 adc_type 为空表示未标注")
}

func TestCreateStoreEmptyRowsFails(t *testing.T) {
	folder := t.TempDir()
	defectDAO := dao.NewDefectStoreDAO()

	_, err := defectDAO.CreateStore(folder, nil)
	assert.ErrorIs(t, err, dao.ErrStoreCreation)
	assert.False(t, dao.HasDetailDB(folder), "失败后不能留下库文件")
}

func TestCreateStoreReplacesStale(t *testing.T) {
	folder := t.TempDir()
	defectDAO := dao.NewDefectStoreDAO()

	_, err := defectDAO.CreateStore(folder, sampleDefects())
	require.NoError(t, err)

	count, err := defectDAO.CreateStore(folder, sampleDefects()[:1])
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "重建后只剩新数据")
}

func TestLabelIncrementsCount(t *testing.T) {
	folder := t.TempDir()
	defectDAO := dao.NewDefectStoreDAO()

	_, err := defectDAO.CreateStore(folder, sampleDefects())
	require.NoError(t, err)

	store, err := defectDAO.OpenStore(folder)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Label("D002", entity.AdcTypeStain, "high", "边缘划伤"))

	defects, err := store.List()
	require.NoError(t, err)
	var labeled *entity.DefectInfo
	for i := range defects {
		if defects[i].DefectID == "D002" {
			labeled = &defects[i]
		}
	}
	require.NotNil(t, labeled)
	require.NotNil(t, labeled.AdcType)
	assert.Equal(t, entity.AdcTypeStain, *labeled.AdcType)
	require.NotNil(t, labeled.Severity)
	assert.Equal(t, "high", *labeled.Severity)
	assert.NotNil(t, labeled.LabelTime)
	assert.Equal(t, 1, labeled.LabelCount)

	count, err := store.CountLabeled()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// 重复标注同一条：label_count 单调递增，已标注数不变
	require.NoError(t, store.Label("D002", entity.AdcTypeOther, "", ""))
	defects, err = store.List()
	require.NoError(t, err)
	for _, d := range defects {
		if d.DefectID == "D002" {
			assert.Equal(t, 2, d.LabelCount)
		}
	}
	count, err = store.CountLabeled()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestLabelUnknownDefect(t *testing.T) {
	folder := t.TempDir()
	defectDAO := dao.NewDefectStoreDAO()

	_, err := defectDAO.CreateStore(folder, sampleDefects())
	require.NoError(t, err)

	store, err := defectDAO.OpenStore(folder)
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.Label("NOPE", 1, "", ""), dao.ErrDefectNotFound)
}

func TestOpenStoreMissing(t *testing.T) {
	defectDAO := dao.NewDefectStoreDAO()

	_, err := defectDAO.OpenStore(t.TempDir())
	assert.ErrorIs(t, err, dao.ErrStoreMissing)
}

func TestOpenStoreCorrupt(t *testing.T) {
	folder := t.TempDir()
	// 空文件是合法的空 sqlite 库，但没有 defect_info 表
	require.NoError(t, os.WriteFile(dao.DetailDBPath(folder), nil, 0o644))

	defectDAO := dao.NewDefectStoreDAO()
	_, err := defectDAO.OpenStore(folder)
	assert.ErrorIs(t, err, dao.ErrStoreCorrupt)
}

// 只有基础列的旧库：回退到类别差异判定，打开时补齐标注列
func TestLegacyStoreAdcMismatchRule(t *testing.T) {
	folder := t.TempDir()
	createLegacyStore(t, folder, false)

	defectDAO := dao.NewDefectStoreDAO()
	store, err := defectDAO.OpenStore(folder)
	require.NoError(t, err)
	defer store.Close()

	labeled, err := store.CountLabeled()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, labeled, "只有类别差异的那条算已标注")

	// 迁移后的列立即可写
	assert.NoError(t, store.Label("L001", entity.AdcTypePinhole, "low", ""))
}

// 带 severity 列但没有 label_count 的旧库：severity 非空或类别差异判定
func TestLegacyStoreSeverityRule(t *testing.T) {
	folder := t.TempDir()
	createLegacyStore(t, folder, true)

	defectDAO := dao.NewDefectStoreDAO()
	store, err := defectDAO.OpenStore(folder)
	require.NoError(t, err)
	defer store.Close()

	labeled, err := store.CountLabeled()
	assert.NoError(t, err)
	assert.EqualValues(t, 2, labeled, "类别差异一条 + severity 非空一条")
}

// 并发打开同一个旧库：补列串行化，不能撞 duplicate column
func TestLegacyStoreConcurrentOpen(t *testing.T) {
	folder := t.TempDir()
	createLegacyStore(t, folder, false)

	defectDAO := dao.NewDefectStoreDAO()

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := defectDAO.OpenStore(folder)
			if err != nil {
				errs <- err
				return
			}
			_, err = store.CountLabeled()
			_ = store.Close()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

// createLegacyStore 造一个 label_count 列出现之前的旧明细库。
func createLegacyStore(t *testing.T, folder string, withSeverity bool) {
	t.Helper()

	gormDB, err := db.OpenDetailDB(dao.DetailDBPath(folder))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.CloseDB(gormDB)) }()

	ddl := `CREATE TABLE defect_info (
		defect_id TEXT PRIMARY KEY,
		center_x INTEGER,
		center_y INTEGER,
		ai_adc_type INTEGER,
		adc_type INTEGER`
	if withSeverity {
		ddl += `,
		severity TEXT`
	}
	ddl += `)`
	require.NoError(t, gormDB.Exec(ddl).Error)

	// L001 未标注；L002 人工类别与 AI 不同
	require.NoError(t, gormDB.Exec(
		`INSERT INTO defect_info (defect_id, center_x, center_y, ai_adc_type, adc_type) VALUES ('L001', 1, 2, 1, NULL)`).Error)
	require.NoError(t, gormDB.Exec(
		`INSERT INTO defect_info (defect_id, center_x, center_y, ai_adc_type, adc_type) VALUES ('L002', 3, 4, 1, 2)`).Error)
	if withSeverity {
		// L003 类别相同但 severity 非空
		require.NoError(t, gormDB.Exec(
			`INSERT INTO defect_info (defect_id, center_x, center_y, ai_adc_type, adc_type, severity) VALUES ('L003', 5, 6, 3, 3, 'high')`).Error)
	}
}
