package cv

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Options 匹配配置
type Options struct {
	Threshold float64
	Gray      bool
}

// Option 配置函数
type Option func(*Options)

// WithThreshold 设置匹配阈值
func WithThreshold(v float64) Option {
	return func(o *Options) {
		if v > 0 {
			o.Threshold = v
		}
	}
}

// WithGray 使用灰度图匹配（默认彩色）
func WithGray(gray bool) Option {
	return func(o *Options) {
		o.Gray = gray
	}
}

// Matcher 模板匹配器，使用 TM_CCOEFF_NORMED
type Matcher struct {
	opts Options
}

// NewMatcher 创建匹配器
func NewMatcher(opts ...Option) *Matcher {
	o := Options{Threshold: MatchThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	return &Matcher{opts: o}
}

// Threshold 当前阈值
func (m *Matcher) Threshold() float64 {
	return m.opts.Threshold
}

// Match 在 screen 中查找 tpl 的最佳位置。
// 模板大于截图时返回 *ImageSizeError。
func (m *Matcher) Match(screen, tpl gocv.Mat) (MatchResult, error) {
	if screen.Empty() || tpl.Empty() {
		return MatchResult{}, fmt.Errorf("输入图像为空")
	}
	if err := checkSourceLargerThanSearch(screen, tpl); err != nil {
		return MatchResult{}, err
	}

	src, search := screen, tpl
	if m.opts.Gray || screen.Channels() != tpl.Channels() {
		src = ToGray(screen)
		search = ToGray(tpl)
		defer src.Close()
		defer search.Close()
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(src, search, &result, gocv.TmCcoeffNormed, mask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	w, h := tpl.Cols(), tpl.Rows()
	score := clampScore(float64(maxVal))
	return MatchResult{
		Found:  score >= m.opts.Threshold,
		Center: image.Pt(maxLoc.X+w/2, maxLoc.Y+h/2),
		Rect:   image.Rect(maxLoc.X, maxLoc.Y, maxLoc.X+w, maxLoc.Y+h),
		Score:  score,
	}, nil
}

// Score 同 Match，但任何异常输入都视为分数 0
func (m *Matcher) Score(screen, tpl gocv.Mat) MatchResult {
	res, err := m.Match(screen, tpl)
	if err != nil {
		return MatchResult{}
	}
	return res
}

// ScoreFiles 读取两张图片后匹配，读取失败视为分数 0
func (m *Matcher) ScoreFiles(screenPath, tplPath string) MatchResult {
	screen, err := ReadImage(screenPath)
	if err != nil {
		return MatchResult{}
	}
	defer screen.Close()

	tpl, err := ReadImage(tplPath)
	if err != nil {
		return MatchResult{}
	}
	defer tpl.Close()

	return m.Score(screen, tpl)
}

// ExtractRegion 匹配后把截图中对应模板的区域保存到 out，用于排查匹配失败。
// 不论分数是否达到阈值都会保存最佳位置。
func (m *Matcher) ExtractRegion(screenPath, tplPath, out string) (MatchResult, error) {
	screen, err := ReadImage(screenPath)
	if err != nil {
		return MatchResult{}, err
	}
	defer screen.Close()

	tpl, err := ReadImage(tplPath)
	if err != nil {
		return MatchResult{}, err
	}
	defer tpl.Close()

	res, err := m.Match(screen, tpl)
	if err != nil {
		return MatchResult{}, err
	}

	region := screen.Region(res.Rect)
	defer region.Close()
	if err := WriteImage(out, region); err != nil {
		return res, fmt.Errorf("保存匹配区域失败: %w", err)
	}
	return res, nil
}

// clampScore 把 NaN/Inf 归零并限制到 [0, 1]
func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// checkSourceLargerThanSearch 检查源图像是否大于搜索图像
func checkSourceLargerThanSearch(source, search gocv.Mat) error {
	if source.Rows() < search.Rows() || source.Cols() < search.Cols() {
		return &ImageSizeError{
			SourceSize: [2]int{source.Cols(), source.Rows()},
			SearchSize: [2]int{search.Cols(), search.Rows()},
		}
	}
	return nil
}

// ImageSizeError 模板尺寸大于截图
type ImageSizeError struct {
	SourceSize [2]int
	SearchSize [2]int
}

func (e *ImageSizeError) Error() string {
	return fmt.Sprintf("搜索图像尺寸 %dx%d 大于源图像 %dx%d",
		e.SearchSize[0], e.SearchSize[1], e.SourceSize[0], e.SourceSize[1])
}
