package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverWaferFolders(t *testing.T) {
	root := t.TempDir()

	writeWaferFolder(t, root, "wafer_a", "D001,1,2,1")
	nested := filepath.Join(root, "lot_01")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeWaferFolder(t, nested, "wafer_b", "D001,1,2,1")
	// 没有 raw_data.txt 的目录不算晶圆
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not_a_wafer"), 0o755))

	flat, err := DiscoverWaferFolders(root, false)
	assert.NoError(t, err)
	require.Len(t, flat, 1)
	assert.Equal(t, filepath.Join(root, "wafer_a"), flat[0])

	recursive, err := DiscoverWaferFolders(root, true)
	assert.NoError(t, err)
	assert.Len(t, recursive, 2)
}

// 单个不可读子目录只跳过，不让整次扫描失败
func TestDiscoverWaferFoldersSkipsUnreadable(t *testing.T) {
	root := t.TempDir()

	writeWaferFolder(t, root, "wafer_a", "D001,1,2,1")
	writeWaferFolder(t, root, "wafer_b", "D001,1,2,1")

	blocked := filepath.Join(root, "blocked_lot")
	require.NoError(t, os.MkdirAll(blocked, 0o755))
	require.NoError(t, os.Chmod(blocked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	folders, err := DiscoverWaferFolders(root, true)
	assert.NoError(t, err)
	assert.Len(t, folders, 2)
}

func TestValidateWaferFolder(t *testing.T) {
	root := t.TempDir()
	folder := writeWaferFolder(t, root, "wafer_a", "D001,1,2,1")
	assert.NoError(t, ValidateWaferFolder(folder))

	require.NoError(t, os.Remove(filepath.Join(folder, DarkFieldFileName)))
	assert.ErrorIs(t, ValidateWaferFolder(folder), ErrMissingImageAsset)

	require.NoError(t, os.Remove(filepath.Join(folder, RawDataFileName)))
	assert.ErrorIs(t, ValidateWaferFolder(folder), ErrMissingReport)
}

func TestParseReportSkipsBadLines(t *testing.T) {
	root := t.TempDir()
	folder := writeWaferFolder(t, root, "wafer_a",
		"D001,10,20,1",
		"D002,30,40,2",
		"X,1,2", // 字段不足
		"D003,50,60,3",
	)

	report, err := ParseReport(filepath.Join(folder, RawDataFileName))
	require.NoError(t, err)
	assert.Len(t, report.Defects, 3)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, "D001", report.Defects[0].DefectID)
	assert.Equal(t, 10, report.Defects[0].CenterX)
	assert.Equal(t, 1, report.Defects[0].AIAdcType)
}

func TestParseReportRejectsBadValues(t *testing.T) {
	root := t.TempDir()
	folder := writeWaferFolder(t, root, "wafer_a",
		",10,20,1",       // 缺陷ID为空
		"D002,abc,40,2",  // 数值转换失败
		"D003,50,60,3,4", // 多余字段可以接受
	)

	report, err := ParseReport(filepath.Join(folder, RawDataFileName))
	require.NoError(t, err)
	assert.Len(t, report.Defects, 1)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, "D003", report.Defects[0].DefectID)
}

func TestParseReportEmpty(t *testing.T) {
	root := t.TempDir()
	// 只有注释和表头，没有数据行
	folder := writeWaferFolder(t, root, "wafer_a")

	_, err := ParseReport(filepath.Join(folder, RawDataFileName))
	assert.ErrorIs(t, err, ErrEmptyReport)

	// 文件只有注释行，连表头都没有
	empty := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(empty, RawDataFileName),
		[]byte("# nothing here\n\n"), 0o644))
	_, err = ParseReport(filepath.Join(empty, RawDataFileName))
	assert.ErrorIs(t, err, ErrEmptyReport)
}

func TestCountReportDefects(t *testing.T) {
	root := t.TempDir()
	folder := writeWaferFolder(t, root, "wafer_a",
		"D001,10,20,1",
		"D002,30,40,2",
	)

	count, err := CountReportDefects(filepath.Join(folder, RawDataFileName))
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
