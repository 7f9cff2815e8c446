package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
)

// DiskCache 以目录保存 PNG 模板，文件名编码标签与分数
type DiskCache struct {
	dir string
}

var _ Cache = (*DiskCache)(nil)

// NewDiskCache 创建磁盘缓存，目录不存在时创建
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建模板目录失败: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir 模板目录
func (c *DiskCache) Dir() string {
	return c.dir
}

// Path 条目对应的文件路径
func (c *DiskCache) Path(e Entry) string {
	return filepath.Join(c.dir, e.Key)
}

// Candidates 标签完全一致的模板文件，按文件名排序
func (c *DiskCache) Candidates(label string) ([]Entry, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}

	files, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取模板目录失败: %w", err)
	}

	want := SanitizeLabel(label)
	var entries []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name, score, ok := ParseFileName(f.Name())
		if !ok || name != want {
			continue
		}
		entries = append(entries, Entry{Label: label, Key: f.Name(), Score: score})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Load 读取模板
func (c *DiskCache) Load(e Entry) (gocv.Mat, error) {
	return cv.ReadImage(c.Path(e))
}

// Put 先写临时文件再重命名，保证不会留下半个文件
func (c *DiskCache) Put(label string, img gocv.Mat, score float64) (Entry, error) {
	if err := ValidateLabel(label); err != nil {
		return Entry{}, err
	}

	data, err := cv.EncodePNG(img)
	if err != nil {
		return Entry{}, err
	}

	tmp, err := os.CreateTemp(c.dir, ".pending-*")
	if err != nil {
		return Entry{}, fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("写入模板失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("写入模板失败: %w", err)
	}

	e := Entry{Label: label, Key: FileName(label, score), Score: score}
	if err := os.Rename(tmpPath, c.Path(e)); err != nil {
		return Entry{}, fmt.Errorf("保存模板失败: %w", err)
	}
	return e, nil
}

// EvictOthers 删除同标签的其他文件
func (c *DiskCache) EvictOthers(label string, keep Entry) error {
	entries, err := c.Candidates(label)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.Key == keep.Key {
			continue
		}
		if err := os.Remove(c.Path(e)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("删除 %s 失败: %w", e.Key, err))
			continue
		}
		logger.Debug("删除旧模板: %s", e.Key)
	}
	return errors.Join(errs...)
}
