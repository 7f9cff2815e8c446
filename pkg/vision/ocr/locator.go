package ocr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/session"
	"github.com/zoeyai/zoeyprobe/pkg/vision/geometry"
)

// Options 定位配置
type Options struct {
	Passes     []Pass
	Similarity float64
}

// Option 配置函数
type Option func(*Options)

// WithPasses 设置预处理轮次
func WithPasses(passes ...Pass) Option {
	return func(o *Options) {
		if len(passes) > 0 {
			o.Passes = passes
		}
	}
}

// WithSimilarity 设置相似度阈值
func WithSimilarity(v float64) Option {
	return func(o *Options) {
		if v > 0 && v <= 1 {
			o.Similarity = v
		}
	}
}

// Locator 多轮预处理 + OCR 定位文字
type Locator struct {
	engine  Engine
	session *session.Session
	opts    Options
}

// NewLocator 创建定位器
func NewLocator(engine Engine, sess *session.Session, opts ...Option) *Locator {
	o := Options{Passes: DefaultPasses(), Similarity: DefaultSimilarity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Locator{engine: engine, session: sess, opts: o}
}

// Engine 底层引擎
func (l *Locator) Engine() Engine {
	return l.engine
}

// TempPath 第 idx 轮预处理图像的路径，与截图同目录
func TempPath(screenPath string, idx int) string {
	return filepath.Join(filepath.Dir(screenPath), fmt.Sprintf("screen_pre_%d.png", idx))
}

// Locate 在截图中查找 target，返回设备坐标。
//
// 依次执行各轮预处理，第一轮命中即返回；全部未命中返回 found=false。
// 单轮识别失败只记录日志，所有轮次都失败时返回错误。
func (l *Locator) Locate(screenPath, target string) (Location, bool, error) {
	start := time.Now()

	m, err := NewMatcher(target, l.opts.Similarity)
	if err != nil {
		return Location{}, false, err
	}

	src := gocv.IMRead(screenPath, gocv.IMReadColor)
	if src.Empty() {
		src.Close()
		return Location{}, false, fmt.Errorf("无法读取截图: %s", screenPath)
	}
	defer src.Close()

	var errs []error
	for idx, pass := range l.opts.Passes {
		loc, found, err := l.runPass(src, screenPath, idx, pass, m)
		if err != nil {
			logger.Warn("第 %d 轮 OCR 失败 (%s): %v", idx, pass, err)
			errs = append(errs, err)
			continue
		}
		if found {
			logger.LogEvent("OCR", true, logger.Since(start),
				fmt.Sprintf("%q -> (%d, %d) [%s %.3f, 第 %d 轮]", target, loc.X, loc.Y, loc.Kind, loc.Confidence, idx))
			return loc, true, nil
		}
		logger.Debug("第 %d 轮未找到 %q", idx, target)
	}

	logger.LogEvent("OCR", false, logger.Since(start), fmt.Sprintf("所有预处理轮次均未找到 %q", target))
	if len(errs) == len(l.opts.Passes) {
		return Location{}, false, errors.Join(errs...)
	}
	return Location{}, false, nil
}

func (l *Locator) runPass(src gocv.Mat, screenPath string, idx int, pass Pass, m *Matcher) (Location, bool, error) {
	pre, err := Preprocess(src, pass)
	if err != nil {
		return Location{}, false, err
	}
	imgW, imgH := pre.Cols(), pre.Rows()

	tmp := TempPath(screenPath, idx)
	defer os.Remove(tmp)

	ok := gocv.IMWrite(tmp, pre)
	pre.Close()
	if !ok {
		return Location{}, false, fmt.Errorf("写入预处理图像失败: %s", tmp)
	}

	tokens, err := l.engine.Tokens(tmp)
	if err != nil {
		return Location{}, false, err
	}

	best, found := Best(m.Candidates(tokens))
	if !found {
		return Location{}, false, nil
	}

	res := l.session.Resolution()
	fallback := l.session.ResizeFactor() / pass.EffectiveResize()
	cx := float64(best.Box.Min.X+best.Box.Max.X) / 2
	cy := float64(best.Box.Min.Y+best.Box.Max.Y) / 2
	p := geometry.ToDevice(cx, cy, imgW, imgH, res, fallback)

	logger.Debug("第 %d 轮: 图像 %dx%d, 设备 %s, 图像坐标 (%.1f, %.1f) -> (%d, %d)",
		idx, imgW, imgH, res, cx, cy, p.X, p.Y)

	return Location{
		X:          p.X,
		Y:          p.Y,
		Text:       best.Text,
		Box:        best.Box,
		Confidence: best.Confidence,
		Kind:       best.Kind,
		Pass:       idx,
	}, true, nil
}

// AllText 截图中识别到的全部文字，空格分隔
func (l *Locator) AllText(screenPath string) (string, error) {
	tokens, err := l.engine.Tokens(screenPath)
	if err != nil {
		return "", err
	}
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !t.Blank() {
			words = append(words, strings.TrimSpace(t.Text))
		}
	}
	return strings.Join(words, " "), nil
}
