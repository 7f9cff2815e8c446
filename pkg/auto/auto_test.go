package auto

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/pkg/config"
	"github.com/zoeyai/zoeyprobe/pkg/device"
	"github.com/zoeyai/zoeyprobe/pkg/session"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
	"github.com/zoeyai/zoeyprobe/pkg/vision/ocr"
	"github.com/zoeyai/zoeyprobe/pkg/vision/template"
)

// fakeDevice 截图时写出预设图像，记录所有动作
type fakeDevice struct {
	screen     gocv.Mat
	captureErr error
	captures   int
	actions    []string
}

func (d *fakeDevice) Capture(_ context.Context, path string) error {
	d.captures++
	if d.captureErr != nil {
		return d.captureErr
	}
	return cv.WriteImage(path, d.screen)
}

func (d *fakeDevice) Resolution(context.Context) (device.Resolution, error) {
	return device.Resolution{}, errors.New("未知")
}

func (d *fakeDevice) Tap(_ context.Context, x, y int) error {
	d.actions = append(d.actions, fmt.Sprintf("tap %d %d", x, y))
	return nil
}

func (d *fakeDevice) Swipe(_ context.Context, x1, y1, x2, y2 int, dur time.Duration) error {
	d.actions = append(d.actions, fmt.Sprintf("swipe %d %d %d %d %d", x1, y1, x2, y2, dur.Milliseconds()))
	return nil
}

func (d *fakeDevice) KeyEvent(_ context.Context, code int) error {
	d.actions = append(d.actions, fmt.Sprintf("key %d", code))
	return nil
}

func (d *fakeDevice) InputText(_ context.Context, text string) error {
	d.actions = append(d.actions, "text "+text)
	return nil
}

// fakeEngine 按调用顺序返回预设单词
type fakeEngine struct {
	results [][]ocr.Token
	calls   int
}

func (e *fakeEngine) Tokens(string) ([]ocr.Token, error) {
	i := e.calls
	e.calls++
	if i < len(e.results) {
		return e.results[i], nil
	}
	return nil, nil
}

func (e *fakeEngine) Close() error { return nil }

func noise(w, h int) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	gocv.RandU(&m, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 255, 255, 0))
	return m
}

type fixture struct {
	h      *Harness
	dev    *fakeDevice
	engine *fakeEngine
	cache  *template.MemoryCache
}

func newFixture(t *testing.T, screen gocv.Mat) *fixture {
	t.Helper()
	dev := &fakeDevice{screen: screen}
	engine := &fakeEngine{}
	cache := template.NewMemoryCache()
	matcher := cv.NewMatcher()
	store := template.NewStore(cache, matcher)
	sess := session.New(1.0)

	h, err := New(Deps{
		Device:      dev,
		Session:     sess,
		Matcher:     matcher,
		Store:       store,
		Synthesizer: template.NewSynthesizer(store, matcher),
		Locator:     ocr.NewLocator(engine, sess, ocr.WithPasses(ocr.Pass{Resize: 1.0})),
		ScreenPath:  filepath.Join(t.TempDir(), "screen.png"),
		Closers:     []io.Closer{cache},
	})
	if err != nil {
		t.Fatalf("创建 Harness 失败: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return &fixture{h: h, dev: dev, engine: engine, cache: cache}
}

func TestNewMissingDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("缺少组件时应返回错误")
	}
}

func TestTapButtonCachedTemplate(t *testing.T) {
	screen := noise(400, 300)
	defer screen.Close()
	f := newFixture(t, screen)

	tpl := screen.Region(image.Rect(100, 50, 160, 90))
	if _, err := f.cache.Put("확인", tpl, 0.95); err != nil {
		t.Fatal(err)
	}
	tpl.Close()

	ok, err := f.h.TapButton(context.Background(), "확인", WithDelay(0))
	if err != nil || !ok {
		t.Fatalf("应命中缓存模板: ok=%v err=%v", ok, err)
	}
	if len(f.dev.actions) != 1 || f.dev.actions[0] != "tap 130 70" {
		t.Errorf("点击位置不正确: %v", f.dev.actions)
	}
}

func TestTapButtonNotFound(t *testing.T) {
	screen := noise(300, 200)
	defer screen.Close()
	f := newFixture(t, screen)

	ok, err := f.h.TapButton(context.Background(), "시작", WithMustExist(false), WithDelay(0))
	if err != nil || ok {
		t.Fatalf("MustExist=false 时应返回 false, nil: ok=%v err=%v", ok, err)
	}
	if len(f.dev.actions) != 0 {
		t.Errorf("未找到时不应点击: %v", f.dev.actions)
	}

	_, err = f.h.TapButton(context.Background(), "시작", WithDelay(0))
	if !errors.Is(err, ErrTextNotFound) {
		t.Fatalf("期望 ErrTextNotFound, 实际 %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Target != "시작" {
		t.Errorf("错误应携带目标: %v", err)
	}
}

func TestTapButtonSynthesisFailed(t *testing.T) {
	// 纯色截图上所有缩放的分数都是 0
	screen := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 200, 300, gocv.MatTypeCV8UC3)
	defer screen.Close()
	f := newFixture(t, screen)

	_, err := f.h.TapButton(context.Background(), "OK", WithMustExist(false))
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("合成失败与 MustExist 无关，期望 ErrSynthesisFailed, 实际 %v", err)
	}
}

func TestTapButtonInvalidLabel(t *testing.T) {
	screen := noise(50, 50)
	defer screen.Close()
	f := newFixture(t, screen)

	for _, label := range []string{"", "a/b"} {
		if _, err := f.h.TapButton(context.Background(), label); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("标签 %q 期望 ErrInvalidInput, 实际 %v", label, err)
		}
	}
	if f.dev.captures != 0 {
		t.Error("参数无效时不应截图")
	}
}

func TestCaptureFailedAlwaysFatal(t *testing.T) {
	screen := noise(50, 50)
	defer screen.Close()
	f := newFixture(t, screen)
	f.dev.captureErr = errors.New("设备离线")

	if _, err := f.h.TapButton(context.Background(), "OK", WithMustExist(false)); !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("TapButton 期望 ErrCaptureFailed, 实际 %v", err)
	}
	if _, err := f.h.TapText(context.Background(), "OK", WithMustExist(false)); !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("TapText 期望 ErrCaptureFailed, 实际 %v", err)
	}
}

func TestTapText(t *testing.T) {
	screen := noise(400, 400)
	defer screen.Close()
	f := newFixture(t, screen)
	f.engine.results = [][]ocr.Token{
		{{Text: "로그인", Box: image.Rect(100, 200, 180, 230)}},
	}

	ok, err := f.h.TapText(context.Background(), "로그인", WithDelay(0))
	if err != nil || !ok {
		t.Fatalf("应找到文字: ok=%v err=%v", ok, err)
	}
	if len(f.dev.actions) != 1 || f.dev.actions[0] != "tap 140 215" {
		t.Errorf("点击位置不正确: %v", f.dev.actions)
	}
}

func TestFindTextMustExist(t *testing.T) {
	screen := noise(100, 100)
	defer screen.Close()
	f := newFixture(t, screen)

	ok, err := f.h.FindText(context.Background(), "확인", WithMustExist(false))
	if ok || err != nil {
		t.Errorf("MustExist=false: ok=%v err=%v", ok, err)
	}
	if _, err := f.h.FindText(context.Background(), "확인"); !errors.Is(err, ErrTextNotFound) {
		t.Errorf("期望 ErrTextNotFound, 实际 %v", err)
	}
	if _, err := f.h.FindText(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("空文字期望 ErrInvalidInput, 实际 %v", err)
	}
	if len(f.dev.actions) != 0 {
		t.Errorf("FindText 不应点击: %v", f.dev.actions)
	}
}

func TestSwipeUntilText(t *testing.T) {
	screen := noise(100, 100)
	defer screen.Close()
	f := newFixture(t, screen)
	f.engine.results = [][]ocr.Token{
		{},
		{{Text: "취소", Box: image.Rect(0, 0, 10, 10)}},
		{{Text: "설정", Box: image.Rect(0, 0, 10, 10)}},
	}

	found, err := f.h.SwipeUntilText(context.Background(), "설정", "up", 5, 0)
	if err != nil || !found {
		t.Fatalf("第三次检查应找到: found=%v err=%v", found, err)
	}
	want := []string{"swipe 540 1000 540 400 800", "swipe 540 1000 540 400 800"}
	if fmt.Sprint(f.dev.actions) != fmt.Sprint(want) {
		t.Errorf("期望滑动两次 %v, 实际 %v", want, f.dev.actions)
	}
}

func TestSwipeUntilTextGivesUp(t *testing.T) {
	screen := noise(100, 100)
	defer screen.Close()
	f := newFixture(t, screen)

	found, err := f.h.SwipeUntilText(context.Background(), "없음", "down", 3, 0)
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if len(f.dev.actions) != 3 {
		t.Errorf("期望滑动 3 次, 实际 %v", f.dev.actions)
	}

	if _, err := f.h.SwipeUntilText(context.Background(), "없음", "sideways", 3, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("无效方向期望 ErrInvalidInput, 实际 %v", err)
	}
}

func TestSendKeys(t *testing.T) {
	screen := noise(10, 10)
	defer screen.Close()
	f := newFixture(t, screen)
	ctx := context.Background()

	if err := f.h.SendKeys(ctx, "Enter"); err != nil {
		t.Fatal(err)
	}
	if err := f.h.SendKeys(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := f.h.SendKeys(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("空按键期望 ErrInvalidInput, 实际 %v", err)
	}
	want := []string{"key 66", "text hello"}
	if fmt.Sprint(f.dev.actions) != fmt.Sprint(want) {
		t.Errorf("期望 %v, 实际 %v", want, f.dev.actions)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("期望 context.Canceled, 实际 %v", err)
	}
}

func TestPasses(t *testing.T) {
	if got := Passes(config.OCRConfig{}); len(got) != 3 {
		t.Errorf("未配置时应使用默认三步, 实际 %v", got)
	}
	got := Passes(config.OCRConfig{Passes: []config.PassConfig{{Invert: true, Resize: 1.5}}})
	if len(got) != 1 || !got[0].Invert || got[0].Resize != 1.5 {
		t.Errorf("配置的预处理步骤未生效: %v", got)
	}
}

func TestOpenCacheBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"disk", "memory", "sqlite"} {
		cfg := config.TemplateConfig{
			Backend: backend,
			Dir:     filepath.Join(dir, "button_image"),
			DBPath:  filepath.Join(dir, "templates.db"),
		}
		cache, closer, err := OpenCache(cfg)
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if _, err := cache.Candidates("확인"); err != nil {
			t.Errorf("%s: Candidates 失败: %v", backend, err)
		}
		if closer != nil {
			closer.Close()
		}
	}
}
