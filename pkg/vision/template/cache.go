// Package template 管理按钮模板：缓存、查找最佳模板与按文字合成模板
//
// 每个标签在缓存中最多保留一份模板（得分最高的那份）。
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

// Entry 缓存中的一份模板
type Entry struct {
	// Label 按钮文字
	Label string `json:"label"`
	// Key 后端内的标识：磁盘后端为文件名，其他后端为内部键
	Key string `json:"key"`
	// Score 保存时的匹配分数
	Score float64 `json:"score"`
}

// Cache 模板缓存后端
type Cache interface {
	// Candidates 返回 label 的全部模板，顺序稳定
	Candidates(label string) ([]Entry, error)
	// Load 读取模板图像，调用方负责 Close
	Load(e Entry) (gocv.Mat, error)
	// Put 保存模板并返回新条目
	Put(label string, img gocv.Mat, score float64) (Entry, error)
	// EvictOthers 删除 label 下除 keep 以外的模板，单个删除失败不影响其他
	EvictOthers(label string, keep Entry) error
}

// SanitizeLabel 标签中的空格替换为下划线
func SanitizeLabel(label string) string {
	return strings.ReplaceAll(label, " ", "_")
}

// FileName 模板文件名: {label}_{score:.2f}.png
func FileName(label string, score float64) string {
	return fmt.Sprintf("%s_%.2f.png", SanitizeLabel(label), score)
}

var fileNamePattern = regexp.MustCompile(`^(.+)_(\d+(?:\.\d+)?)\.png$`)

// ParseFileName 解析模板文件名，返回标签部分（已替换空格）和分数
func ParseFileName(name string) (label string, score float64, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	score, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], score, true
}

// ValidateLabel 标签不能为空，也不能包含路径分隔符
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("标签不能为空")
	}
	if strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("标签不能包含路径分隔符: %q", label)
	}
	return nil
}
