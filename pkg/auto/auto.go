// Package auto 组合设备、模板匹配和 OCR，提供按钮点击、文字点击等高级操作
//
//	h, err := auto.NewFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	h.TapButton(ctx, "확인")
//	h.TapText(ctx, "로그인", auto.WithMustExist(false))
package auto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/device"
	"github.com/zoeyai/zoeyprobe/pkg/session"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
	"github.com/zoeyai/zoeyprobe/pkg/vision/ocr"
	"github.com/zoeyai/zoeyprobe/pkg/vision/template"
)

// Deps 组装 Harness 所需的组件
type Deps struct {
	Device      device.Device
	Session     *session.Session
	Matcher     *cv.Matcher
	Store       *template.Store
	Synthesizer *template.Synthesizer
	Locator     *ocr.Locator
	// ScreenPath 工作截图路径
	ScreenPath string
	// Swipe 方向滑动参数，零值时使用默认值
	Swipe device.SwipeSpec
	// Closers Close 时依次释放
	Closers []io.Closer
}

// Harness 测试动作入口，非并发安全
type Harness struct {
	device     device.Device
	session    *session.Session
	matcher    *cv.Matcher
	store      *template.Store
	synth      *template.Synthesizer
	locator    *ocr.Locator
	screenPath string
	swipe      device.SwipeSpec
	closers    []io.Closer
}

// New 创建 Harness
func New(d Deps) (*Harness, error) {
	switch {
	case d.Device == nil:
		return nil, errors.New("缺少设备")
	case d.Session == nil:
		return nil, errors.New("缺少会话")
	case d.Matcher == nil || d.Store == nil || d.Synthesizer == nil:
		return nil, errors.New("缺少模板组件")
	case d.Locator == nil:
		return nil, errors.New("缺少 OCR 定位器")
	}
	if d.ScreenPath == "" {
		d.ScreenPath = "screen.png"
	}
	if d.Swipe == (device.SwipeSpec{}) {
		d.Swipe = device.DefaultSwipe()
	}
	return &Harness{
		device:     d.Device,
		session:    d.Session,
		matcher:    d.Matcher,
		store:      d.Store,
		synth:      d.Synthesizer,
		locator:    d.Locator,
		screenPath: d.ScreenPath,
		swipe:      d.Swipe,
		closers:    d.Closers,
	}, nil
}

// Device 底层设备
func (h *Harness) Device() device.Device {
	return h.device
}

// Session 会话状态
func (h *Harness) Session() *session.Session {
	return h.session
}

// Store 模板库
func (h *Harness) Store() *template.Store {
	return h.store
}

// Locator OCR 定位器
func (h *Harness) Locator() *ocr.Locator {
	return h.locator
}

// ScreenPath 工作截图路径
func (h *Harness) ScreenPath() string {
	return h.screenPath
}

// Close 释放字体、OCR 引擎和模板缓存
func (h *Harness) Close() error {
	errs := []error{h.synth.Close()}
	for _, c := range h.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Capture 截图到工作路径
func (h *Harness) Capture(ctx context.Context) error {
	if err := h.device.Capture(ctx, h.screenPath); err != nil {
		return newError(ErrCaptureFailed, h.screenPath, err)
	}
	return nil
}

// captureMat 截图并读入内存，调用方负责 Close
func (h *Harness) captureMat(ctx context.Context) (gocv.Mat, error) {
	if err := h.Capture(ctx); err != nil {
		return gocv.NewMat(), err
	}
	img, err := cv.ReadImage(h.screenPath)
	if err != nil {
		return gocv.NewMat(), newError(ErrCaptureFailed, h.screenPath, err)
	}
	return img, nil
}

// Tap 点击设备坐标
func (h *Harness) Tap(ctx context.Context, x, y int) error {
	start := time.Now()
	err := h.device.Tap(ctx, x, y)
	logger.LogEvent("TAP", err == nil, logger.Since(start), fmt.Sprintf("(%d, %d)", x, y))
	return err
}

func (h *Harness) tapAndWait(ctx context.Context, x, y int, o *Options) error {
	if err := h.Tap(ctx, x, y); err != nil {
		return err
	}
	return sleep(ctx, o.Delay)
}

// TapButton 用模板匹配查找按钮并点击。
//
// 先用缓存中的模板匹配，分数不足时按文字合成新模板再匹配一次。
// 合成失败总是返回 ErrSynthesisFailed；仍未找到时按 MustExist 处理。
func (h *Harness) TapButton(ctx context.Context, label string, opts ...Option) (bool, error) {
	o := applyOptions(opts...)
	if err := template.ValidateLabel(label); err != nil {
		return false, newError(ErrInvalidInput, label, err)
	}

	screen, err := h.captureMat(ctx)
	if err != nil {
		return false, err
	}
	defer screen.Close()

	entry, res, err := h.store.FindBest(label, screen)
	if err != nil {
		return false, err
	}
	if res.Found {
		logger.Info("按钮 %q 命中缓存模板 %s (分数 %.4f)", label, entry.Key, res.Score)
		return true, h.tapAndWait(ctx, res.Center.X, res.Center.Y, o)
	}

	logger.Info("按钮 %q 没有可用模板 (最高分 %.4f)，合成新模板", label, res.Score)
	entry, res, err = h.synth.Synthesize(label, screen)
	if errors.Is(err, template.ErrSynthesisFailed) {
		return false, newError(ErrSynthesisFailed, label, err)
	}
	if err != nil {
		return false, err
	}
	if res.Found {
		logger.Info("按钮 %q 命中合成模板 %s (分数 %.4f)", label, entry.Key, res.Score)
		return true, h.tapAndWait(ctx, res.Center.X, res.Center.Y, o)
	}

	logger.Warn("按钮 %q 合成模板分数过低: %.4f (阈值 %.2f)", label, res.Score, h.matcher.Threshold())
	return h.notFound(label, o)
}

// TapText 用 OCR 查找文字并点击
func (h *Harness) TapText(ctx context.Context, text string, opts ...Option) (bool, error) {
	o := applyOptions(opts...)

	loc, found, err := h.locate(ctx, text)
	if err != nil {
		return false, err
	}
	if !found {
		h.logAllText(o)
		return h.notFound(text, o)
	}
	logger.Info("点击文字 %q: 识别为 %q (%d, %d)", text, loc.Text, loc.X, loc.Y)
	return true, h.tapAndWait(ctx, loc.X, loc.Y, o)
}

// FindText 检查文字是否在屏幕上
func (h *Harness) FindText(ctx context.Context, text string, opts ...Option) (bool, error) {
	o := applyOptions(opts...)

	loc, found, err := h.locate(ctx, text)
	if err != nil {
		return false, err
	}
	if !found {
		h.logAllText(o)
		return h.notFound(text, o)
	}
	logger.Info("找到文字 %q: 识别为 %q", text, loc.Text)
	return true, nil
}

// Locate 截图并返回文字的设备坐标
func (h *Harness) Locate(ctx context.Context, text string) (ocr.Location, bool, error) {
	return h.locate(ctx, text)
}

func (h *Harness) locate(ctx context.Context, text string) (ocr.Location, bool, error) {
	if strings.TrimSpace(text) == "" {
		return ocr.Location{}, false, newError(ErrInvalidInput, text, errors.New("文字为空"))
	}
	if err := h.Capture(ctx); err != nil {
		return ocr.Location{}, false, err
	}

	loc, found, err := h.locator.Locate(h.screenPath, text)
	if errors.Is(err, ocr.ErrInvalidTarget) {
		return ocr.Location{}, false, newError(ErrInvalidInput, text, err)
	}
	if err != nil {
		return ocr.Location{}, false, fmt.Errorf("OCR 定位 %q 失败: %w", text, err)
	}
	return loc, found, nil
}

// logAllText 必须存在的文字未找到时输出全部识别结果
func (h *Harness) logAllText(o *Options) {
	if !o.MustExist {
		return
	}
	all, err := h.locator.AllText(h.screenPath)
	if err != nil {
		logger.Warn("读取全部 OCR 文字失败: %v", err)
		return
	}
	logger.Info("OCR 识别到的全部文字: %s", all)
}

func (h *Harness) notFound(target string, o *Options) (bool, error) {
	if o.MustExist {
		return false, newError(ErrTextNotFound, target, nil)
	}
	logger.Info("未找到 %q，继续执行", target)
	return false, nil
}

// Swipe 按方向滑动
func (h *Harness) Swipe(ctx context.Context, direction string) error {
	d, err := device.ParseDirection(direction)
	if err != nil {
		return newError(ErrInvalidInput, direction, err)
	}
	return device.SwipeDirection(ctx, h.device, d, h.swipe)
}

// SwipeUntilText 最多滑动 maxSwipes 次直到文字出现。
// 每次滑动前先检查，找到返回 true，次数用完返回 false。
func (h *Harness) SwipeUntilText(ctx context.Context, text, direction string, maxSwipes int, delay time.Duration) (bool, error) {
	if _, err := device.ParseDirection(direction); err != nil {
		return false, newError(ErrInvalidInput, direction, err)
	}
	if maxSwipes <= 0 {
		maxSwipes = DefaultMaxSwipes
	}

	for attempt := 1; attempt <= maxSwipes; attempt++ {
		found, err := h.FindText(ctx, text, WithMustExist(false))
		if err != nil {
			return false, err
		}
		if found {
			logger.Info("第 %d 次检查找到 %q", attempt, text)
			return true, nil
		}
		if err := h.Swipe(ctx, direction); err != nil {
			return false, err
		}
		if err := sleep(ctx, delay); err != nil {
			return false, err
		}
	}
	logger.Warn("滑动 %d 次仍未找到 %q", maxSwipes, text)
	return false, nil
}

// SendKeys 已知键名发送按键，否则输入文字
func (h *Harness) SendKeys(ctx context.Context, value string) error {
	if value == "" {
		return newError(ErrInvalidInput, value, errors.New("按键为空"))
	}
	return device.SendKeys(ctx, h.device, value)
}

// sleep 可被 ctx 打断的等待
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
