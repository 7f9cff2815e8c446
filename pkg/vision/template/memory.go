package template

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

type memEntry struct {
	entry Entry
	img   gocv.Mat
}

// MemoryCache 进程内模板缓存
type MemoryCache struct {
	mu      sync.Mutex
	seq     int
	entries map[string][]memEntry
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache 创建内存缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]memEntry)}
}

// Candidates 按写入顺序返回
func (c *MemoryCache) Candidates(label string) ([]Entry, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.entries[SanitizeLabel(label)]
	entries := make([]Entry, len(list))
	for i, m := range list {
		entries[i] = m.entry
	}
	return entries, nil
}

// Load 返回模板副本
func (c *MemoryCache) Load(e Entry) (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.entries[SanitizeLabel(e.Label)] {
		if m.entry.Key == e.Key {
			return m.img.Clone(), nil
		}
	}
	return gocv.NewMat(), fmt.Errorf("模板不存在: %s", e.Key)
}

// Put 保存模板副本
func (c *MemoryCache) Put(label string, img gocv.Mat, score float64) (Entry, error) {
	if err := ValidateLabel(label); err != nil {
		return Entry{}, err
	}
	if img.Empty() {
		return Entry{}, fmt.Errorf("模板图像为空")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	e := Entry{Label: label, Key: fmt.Sprintf("%s#%d", FileName(label, score), c.seq), Score: score}
	key := SanitizeLabel(label)
	c.entries[key] = append(c.entries[key], memEntry{entry: e, img: img.Clone()})
	return e, nil
}

// EvictOthers 删除同标签的其他模板
func (c *MemoryCache) EvictOthers(label string, keep Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := SanitizeLabel(label)
	var kept []memEntry
	for _, m := range c.entries[key] {
		if m.entry.Key == keep.Key {
			kept = append(kept, m)
			continue
		}
		m.img.Close()
	}
	if len(kept) == 0 {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = kept
	return nil
}

// Close 释放全部模板
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, list := range c.entries {
		for _, m := range list {
			m.img.Close()
		}
	}
	c.entries = make(map[string][]memEntry)
	return nil
}
