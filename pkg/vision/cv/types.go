package cv

import "image"

// MatchThreshold 默认模板匹配阈值
const MatchThreshold = 0.70

// MatchResult 模板匹配结果
type MatchResult struct {
	// Found 分数是否达到阈值，未达到时 Center 无意义
	Found bool `json:"found"`
	// Center 模板中心在截图中的坐标
	Center image.Point `json:"center"`
	// Rect 最佳匹配区域
	Rect image.Rectangle `json:"rect"`
	// Score 归一化相关系数，范围 [0, 1]
	Score float64 `json:"score"`
}
