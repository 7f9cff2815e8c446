// Package desktop 用 robotgo 驱动本机桌面，实现 device.Device
//
// 用于在桌面浏览器或模拟器窗口上运行同一套定位与点击流程。
// 截图坐标为物理像素，输入前按 DPI 换算。
package desktop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/device"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
)

// keyNames Android keycode 对应的 robotgo 键名
var keyNames = map[int]string{
	3:   "home",
	4:   "esc",
	19:  "up",
	20:  "down",
	21:  "left",
	22:  "right",
	61:  "tab",
	62:  "space",
	66:  "enter",
	67:  "backspace",
	111: "esc",
	112: "delete",
}

// KeyName 查找 keycode 对应的键名
func KeyName(code int) (string, bool) {
	name, ok := keyNames[code]
	return name, ok
}

// Desktop 本机桌面
type Desktop struct{}

var _ device.Device = (*Desktop)(nil)

// New 创建桌面设备
func New() *Desktop {
	return &Desktop{}
}

// Capture 全屏截图保存到 path
func (d *Desktop) Capture(_ context.Context, path string) error {
	start := time.Now()

	img, err := robotgo.CaptureImg()
	if err := saveCapture(img, err, path); err != nil {
		logger.LogEvent("SCREEN", false, logger.Since(start), err.Error())
		return err
	}
	b := img.Bounds()
	logger.LogEvent("SCREEN", true, logger.Since(start), fmt.Sprintf("%dx%d -> %s", b.Dx(), b.Dy(), path))
	return nil
}

// saveCapture 把截图写入 path 并校验文件可解码
func saveCapture(img image.Image, captureErr error, path string) error {
	if captureErr != nil {
		return fmt.Errorf("截图失败: %w", captureErr)
	}
	if img == nil || img.Bounds().Empty() {
		return errors.New("截图失败: 没有返回图像")
	}
	mat, err := cv.ImageToMat(img)
	if err != nil {
		return err
	}
	defer mat.Close()

	if err := cv.WriteImage(path, mat); err != nil {
		return err
	}
	return device.VerifyImage(path)
}

// Resolution 物理屏幕尺寸，与截图一致
func (d *Desktop) Resolution(context.Context) (device.Resolution, error) {
	w, h := PhysicalScreenSize()
	if w <= 0 || h <= 0 {
		return device.Resolution{}, fmt.Errorf("无法获取屏幕尺寸")
	}
	return device.Resolution{Width: w, Height: h}, nil
}

// Tap 左键单击截图坐标 (x, y)
func (d *Desktop) Tap(_ context.Context, x, y int) error {
	ix, iy := PointForInput(x, y)
	robotgo.Move(ix, iy)
	robotgo.Click("left", false)
	logger.Debug("点击 (%d, %d) -> 输入坐标 (%d, %d)", x, y, ix, iy)
	return nil
}

// Swipe 按住左键从起点平滑移动到终点，移动速度按 duration 估算
func (d *Desktop) Swipe(_ context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	sx, sy := PointForInput(x1, y1)
	ex, ey := PointForInput(x2, y2)
	robotgo.Move(sx, sy)
	if err := robotgo.Toggle("left"); err != nil {
		return fmt.Errorf("按下左键失败: %w", err)
	}

	low, high := smoothSpeed(math.Hypot(float64(ex-sx), float64(ey-sy)), duration)
	robotgo.MoveSmooth(ex, ey, low, high)

	if err := robotgo.Toggle("left", "up"); err != nil {
		return fmt.Errorf("松开左键失败: %w", err)
	}
	logger.Debug("拖拽 (%d, %d) -> (%d, %d), %v", x1, y1, x2, y2, duration)
	return nil
}

// smoothSpeed 换算 MoveSmooth 每步的停顿范围 (毫秒)。
// MoveSmooth 大约每像素一步，平均停顿为 duration / distance。
func smoothSpeed(distance float64, duration time.Duration) (low, high float64) {
	if duration <= 0 || distance < 1 {
		return 1.0, 3.0
	}
	step := float64(duration.Milliseconds()) / distance
	return step * 0.5, step * 1.5
}

// KeyEvent 按 Android keycode 发送对应按键
func (d *Desktop) KeyEvent(_ context.Context, code int) error {
	name, ok := KeyName(code)
	if !ok {
		return fmt.Errorf("桌面不支持 keycode %d", code)
	}
	if err := robotgo.KeyTap(name); err != nil {
		return fmt.Errorf("按键 %s 失败: %w", name, err)
	}
	return nil
}

// InputText 输入文字
func (d *Desktop) InputText(_ context.Context, text string) error {
	robotgo.TypeStr(text)
	return nil
}
