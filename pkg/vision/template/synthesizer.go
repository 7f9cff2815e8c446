package template

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
)

// ErrSynthesisFailed 所有缩放比例都没有得到有效分数
var ErrSynthesisFailed = errors.New("模板合成失败")

const (
	// extraRight 文字右侧额外留白
	extraRight = 8
	// extraBottom 文字下方额外留白（下伸部）
	extraBottom = 10
)

// Scales 合成模板的缩放比例: 0.50 ~ 1.50，步长 0.05
func Scales() []float64 {
	scales := make([]float64, 0, 21)
	for pct := 50; pct <= 150; pct += 5 {
		scales = append(scales, float64(pct)/100)
	}
	return scales
}

// SynthOptions 合成配置
type SynthOptions struct {
	FontPath string
	FontSize float64
	Padding  int
}

// SynthOption 配置函数
type SynthOption func(*SynthOptions)

// WithFont 设置字体文件
func WithFont(path string) SynthOption {
	return func(o *SynthOptions) {
		o.FontPath = path
	}
}

// WithFontSize 设置参考字号
func WithFontSize(size float64) SynthOption {
	return func(o *SynthOptions) {
		if size > 0 {
			o.FontSize = size
		}
	}
}

// WithPadding 设置留白
func WithPadding(p int) SynthOption {
	return func(o *SynthOptions) {
		if p >= 0 {
			o.Padding = p
		}
	}
}

// Synthesizer 按文字渲染按钮模板，扫描缩放比例找出与截图最接近的一份
type Synthesizer struct {
	opts   SynthOptions
	face   font.Face
	store  *Store
	scorer Scorer
}

// NewSynthesizer 创建合成器
func NewSynthesizer(store *Store, scorer Scorer, opts ...SynthOption) *Synthesizer {
	o := SynthOptions{FontSize: 36, Padding: 10}
	for _, opt := range opts {
		opt(&o)
	}
	return &Synthesizer{
		opts:   o,
		face:   resolveFace(o.FontPath, o.FontSize),
		store:  store,
		scorer: scorer,
	}
}

// Close 释放字体
func (s *Synthesizer) Close() error {
	return s.face.Close()
}

// Render 黑底白字渲染 label 并做 5x5 高斯模糊
func (s *Synthesizer) Render(label string) (gocv.Mat, error) {
	if err := ValidateLabel(label); err != nil {
		return gocv.NewMat(), err
	}

	bounds, _ := font.BoundString(s.face, label)
	textW := (bounds.Max.X - bounds.Min.X).Ceil()
	textH := (bounds.Max.Y - bounds.Min.Y).Ceil()
	if textW <= 0 || textH <= 0 {
		return gocv.NewMat(), fmt.Errorf("文字 %q 没有可渲染的字形", label)
	}

	p := s.opts.Padding
	top := p * 2
	bottom := p*2 + extraBottom
	w := textW + 2*p + extraRight
	h := textH + top + bottom

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), image.Black, image.Point{}, draw.Src)

	// 以字体上沿为起点绘制，基线 = 上留白 + ascent
	ascent := s.face.Metrics().Ascent
	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.White,
		Face: s.face,
		Dot:  fixed.Point26_6{X: fixed.I(p), Y: fixed.I(top) + ascent},
	}
	d.DrawString(label)

	base, err := cv.ImageToMat(rgba)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer base.Close()

	blurred := gocv.NewMat()
	gocv.GaussianBlur(base, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	return blurred, nil
}

// resize 按比例缩放到截断后的整数尺寸，三次插值
func resize(img gocv.Mat, scale float64) (gocv.Mat, bool) {
	w := int(float64(img.Cols()) * scale)
	h := int(float64(img.Rows()) * scale)
	if w < 1 || h < 1 {
		return gocv.NewMat(), false
	}
	dst := gocv.NewMat()
	gocv.Resize(img, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationCubic)
	return dst, true
}

// Synthesize 渲染 label，在各缩放比例下与截图匹配，
// 保存分数最高的一份为 label 的唯一模板。分数相同时较小的比例胜出。
func (s *Synthesizer) Synthesize(label string, screen gocv.Mat) (Entry, cv.MatchResult, error) {
	start := time.Now()

	base, err := s.Render(label)
	if err != nil {
		return Entry{}, cv.MatchResult{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer base.Close()

	var (
		best      gocv.Mat
		bestRes   cv.MatchResult
		bestScale float64
		hasBest   bool
	)
	for _, scale := range Scales() {
		candidate, ok := resize(base, scale)
		if !ok {
			candidate.Close()
			continue
		}
		res := s.scorer.Score(screen, candidate)
		logger.Debug("  - 缩放 %.2f: 分数 %.4f", scale, res.Score)

		if res.Score > bestRes.Score {
			if hasBest {
				best.Close()
			}
			best, bestRes, bestScale, hasBest = candidate, res, scale, true
			continue
		}
		candidate.Close()
	}

	if !hasBest {
		logger.LogEvent("SYN", false, logger.Since(start), fmt.Sprintf("%q 所有缩放比例分数为 0", label))
		return Entry{}, cv.MatchResult{}, fmt.Errorf("%w: %q 所有缩放比例分数为 0", ErrSynthesisFailed, label)
	}
	defer best.Close()

	e, err := s.store.Persist(label, best, bestRes.Score)
	if err != nil {
		return Entry{}, bestRes, fmt.Errorf("保存合成模板失败: %w", err)
	}

	logger.LogEvent("SYN", bestRes.Found, logger.Since(start),
		fmt.Sprintf("%q 最佳缩放 %.2f, 分数 %.4f", label, bestScale, bestRes.Score))
	return e, bestRes, nil
}
