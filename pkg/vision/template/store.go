package template

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
)

// Scorer 模板打分
type Scorer interface {
	Score(screen, tpl gocv.Mat) cv.MatchResult
}

// Store 在缓存之上实现查找最佳模板和保存唯一模板
type Store struct {
	cache  Cache
	scorer Scorer
}

// NewStore 创建模板库
func NewStore(cache Cache, scorer Scorer) *Store {
	return &Store{cache: cache, scorer: scorer}
}

// Cache 底层缓存
func (s *Store) Cache() Cache {
	return s.cache
}

// FindBest 用 label 的全部模板匹配截图，返回分数最高的一份。
// 没有模板或全部无法读取时返回零值结果。分数相同时保留先出现的。
func (s *Store) FindBest(label string, screen gocv.Mat) (Entry, cv.MatchResult, error) {
	start := time.Now()

	entries, err := s.cache.Candidates(label)
	if err != nil {
		return Entry{}, cv.MatchResult{}, fmt.Errorf("读取模板缓存失败: %w", err)
	}

	var (
		best    Entry
		bestRes cv.MatchResult
		hasBest bool
	)
	for _, e := range entries {
		tpl, err := s.cache.Load(e)
		if err != nil {
			logger.Warn("模板 %s 无法读取，按 0 分处理: %v", e.Key, err)
			continue
		}
		res := s.scorer.Score(screen, tpl)
		tpl.Close()

		logger.Debug("  - %s: 分数 %.4f", e.Key, res.Score)
		if !hasBest || res.Score > bestRes.Score {
			best, bestRes, hasBest = e, res, true
		}
	}

	logger.LogEvent("TPL", bestRes.Found, logger.Since(start),
		fmt.Sprintf("%q 现有模板 %d 个, 最高分 %.4f", label, len(entries), bestRes.Score))
	return best, bestRes, nil
}

// Persist 保存 img 作为 label 的唯一模板。
// 删除旧模板失败只记录日志。
func (s *Store) Persist(label string, img gocv.Mat, score float64) (Entry, error) {
	e, err := s.cache.Put(label, img, score)
	if err != nil {
		return Entry{}, err
	}
	if err := s.cache.EvictOthers(label, e); err != nil {
		logger.Warn("清理 %q 的旧模板失败: %v", label, err)
	}
	logger.Info("保存模板: %s (分数 %.4f)", e.Key, score)
	return e, nil
}
