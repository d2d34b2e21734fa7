package service

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// ComputeWaferID 由晶圆文件夹路径派生稳定 ID：规范化路径的 SHA256。
// 同一路径任何时候都得到同一 ID；ID 跟随路径而非内容，文件夹搬家后 ID 会变。
func ComputeWaferID(folderPath string) string {
	cleaned := filepath.Clean(folderPath)
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])
}
