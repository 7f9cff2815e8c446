package executor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultEvidenceQuality 失败截图的 JPEG 质量
const defaultEvidenceQuality = 80

// ScreenPather 提供最近一次截图的路径，*auto.Harness 实现了它
type ScreenPather interface {
	ScreenPath() string
}

// Option 执行器选项
type Option func(*Executor)

// WithEvidence 步骤失败时把最近一次截图以 JPEG 保存到 dir
func WithEvidence(dir string, quality int) Option {
	return func(e *Executor) {
		e.evidenceDir = dir
		if quality > 0 && quality <= 100 {
			e.evidenceQuality = quality
		}
	}
}

// evidenceName {用例}_{步骤}_{时间}.jpg，路径分隔符和空格替换为下划线
func evidenceName(caseName, stepID string, now time.Time) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	if caseName == "" {
		caseName = "case"
	}
	return fmt.Sprintf("%s_%s_%s.jpg", r.Replace(caseName), r.Replace(stepID), now.Format("20060102_150405"))
}

// encodeJPEG 把 PNG 截图转为 JPEG
func encodeJPEG(src string, quality int) ([]byte, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("打开截图失败: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("解码截图失败: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG 编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

// saveEvidence 保存失败截图，返回文件路径
func (e *Executor) saveEvidence(caseName, stepID string) (string, error) {
	sp, ok := e.actions.(ScreenPather)
	if !ok || e.evidenceDir == "" {
		return "", nil
	}
	data, err := encodeJPEG(sp.ScreenPath(), e.evidenceQuality)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.evidenceDir, 0755); err != nil {
		return "", fmt.Errorf("创建截图目录失败: %w", err)
	}
	path := filepath.Join(e.evidenceDir, evidenceName(caseName, stepID, time.Now()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("保存失败截图失败: %w", err)
	}
	return path, nil
}
