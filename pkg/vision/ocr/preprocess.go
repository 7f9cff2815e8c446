package ocr

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/internal/logger"
)

// MaxResize 放大倍率上限，超过时回退到 FallbackResize
const (
	MaxResize      = 4.0
	FallbackResize = 3.0
)

// Pass 一轮预处理参数
type Pass struct {
	// Invert 反色（白字黑底 -> 黑字白底）
	Invert bool `json:"invert" yaml:"invert"`
	// Threshold 自适应二值化
	Threshold bool `json:"threshold" yaml:"threshold"`
	// Resize 放大倍率
	Resize float64 `json:"resize" yaml:"resize"`
}

func (p Pass) String() string {
	return fmt.Sprintf("invert=%v threshold=%v resize=%.1f", p.Invert, p.Threshold, p.Resize)
}

// DefaultPasses 默认三轮预处理
func DefaultPasses() []Pass {
	return []Pass{
		{Invert: false, Threshold: false, Resize: 1.0},
		{Invert: true, Threshold: false, Resize: 2.0},
		{Invert: true, Threshold: true, Resize: 2.0},
	}
}

// EffectiveResize 实际使用的放大倍率
func (p Pass) EffectiveResize() float64 {
	switch {
	case p.Resize <= 0:
		return 1.0
	case p.Resize > MaxResize:
		return FallbackResize
	default:
		return p.Resize
	}
}

// Preprocess 灰度化，按需反色、二值化，再放大。返回单通道图像，调用方负责 Close。
func Preprocess(src gocv.Mat, p Pass) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("输入图像为空")
	}

	gray := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&gray)
	case 4:
		gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}

	if p.Invert {
		gocv.BitwiseNot(gray, &gray)
	}

	if p.Threshold {
		bin := gocv.NewMat()
		gocv.AdaptiveThreshold(gray, &bin, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, 15, 10)
		gray.Close()
		gray = bin
	}

	factor := p.EffectiveResize()
	if p.Resize > MaxResize {
		logger.Warn("放大倍率 %.1f 过大，调整为 %.1f", p.Resize, factor)
	}
	if factor != 1.0 {
		scaled := gocv.NewMat()
		gocv.Resize(gray, &scaled, image.Point{}, factor, factor, gocv.InterpolationCubic)
		gray.Close()
		gray = scaled
	}
	return gray, nil
}
