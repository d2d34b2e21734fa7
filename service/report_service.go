package service

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wafer_project/entity"
)

// 晶圆文件夹内的固定文件名
const (
	RawDataFileName     = "raw_data.txt"
	BrightFieldFileName = "bright_field.png"
	DarkFieldFileName   = "dark_field.png"
)

// ParsedReport 原始检测报告的解析结果
type ParsedReport struct {
	Defects []entity.DefectInfo
	Skipped int // 被跳过的坏行数
}

// DiscoverWaferFolders 枚举候选晶圆文件夹：直接包含 raw_data.txt 的目录。
// recursive 为 true 时遍历整个子树，否则只看 root 的一级子目录。
func DiscoverWaferFolders(root string, recursive bool) ([]string, error) {
	var folders []string

	if recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// 根目录本身读不了才整体失败；子树读不了记一笔跳过
				if path == root {
					return err
				}
				serviceLogger().Warn("跳过不可读的目录", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if _, statErr := os.Stat(filepath.Join(path, RawDataFileName)); statErr == nil {
				folders = append(folders, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk wafer root failed: %w", err)
		}
		return folders, nil
	}

	items, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read wafer root failed: %w", err)
	}
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		folder := filepath.Join(root, item.Name())
		if _, statErr := os.Stat(filepath.Join(folder, RawDataFileName)); statErr == nil {
			folders = append(folders, folder)
		}
	}
	return folders, nil
}

// ValidateWaferFolder 校验晶圆文件夹的前置条件：原始报告和明暗场图像齐全。
func ValidateWaferFolder(folderPath string) error {
	if _, err := os.Stat(filepath.Join(folderPath, RawDataFileName)); err != nil {
		return ErrMissingReport
	}
	if _, err := os.Stat(filepath.Join(folderPath, BrightFieldFileName)); err != nil {
		return ErrMissingImageAsset
	}
	if _, err := os.Stat(filepath.Join(folderPath, DarkFieldFileName)); err != nil {
		return ErrMissingImageAsset
	}
	return nil
}

// readReportLines 读出报告里的有效行：去掉空行和 # 注释行。
func readReportLines(reportPath string) ([]string, error) {
	file, err := os.Open(reportPath)
	if err != nil {
		return nil, ErrMissingReport
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read report failed: %w", err)
	}
	return lines, nil
}

// CountReportDefects 按报告推算期望缺陷数：有效行数减去表头。
func CountReportDefects(reportPath string) (int, error) {
	lines, err := readReportLines(reportPath)
	if err != nil {
		return 0, err
	}
	// 表头之后没有任何数据行也算无效报告
	if len(lines) <= 1 {
		return 0, ErrEmptyReport
	}
	return len(lines) - 1, nil
}

// ParseReport 解析原始检测报告。第一条有效行是表头，丢弃；
// 之后每行要求至少 4 个逗号分隔字段：defect_id, center_x, center_y, ai_adc_type。
// 坏行跳过并计数，不致命；表头之后一行都解析不出来则整体失败。
func ParseReport(reportPath string) (*ParsedReport, error) {
	logger := serviceLogger().With("func", "ParseReport", "report", reportPath)

	lines, err := readReportLines(reportPath)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyReport
	}

	dataLines := lines[1:]
	result := &ParsedReport{}

	for i, line := range dataLines {
		lineNum := i + 2
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			logger.Warn("跳过坏行：字段数量不足", "line", lineNum, "content", line)
			result.Skipped++
			continue
		}

		defectID := strings.TrimSpace(parts[0])
		if defectID == "" {
			logger.Warn("跳过坏行：缺陷ID为空", "line", lineNum)
			result.Skipped++
			continue
		}

		centerX, errX := strconv.Atoi(strings.TrimSpace(parts[1]))
		centerY, errY := strconv.Atoi(strings.TrimSpace(parts[2]))
		aiAdcType, errT := strconv.Atoi(strings.TrimSpace(parts[3]))
		if errX != nil || errY != nil || errT != nil {
			logger.Warn("跳过坏行：数值转换失败", "line", lineNum, "content", line)
			result.Skipped++
			continue
		}

		// adc_type 初始为 NULL，表示未标注
		result.Defects = append(result.Defects, entity.DefectInfo{
			DefectID:  defectID,
			CenterX:   centerX,
			CenterY:   centerY,
			AIAdcType: aiAdcType,
		})
	}

	if len(result.Defects) == 0 {
		return nil, ErrEmptyReport
	}
	return result, nil
}
