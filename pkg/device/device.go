// Package device 定义被测设备的能力接口
//
// 定位引擎只依赖这里的接口：截图、分辨率查询和输入动作。
// adb 子包实现 Android 设备，desktop 子包实现本机桌面。
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/pkg/vision/geometry"
)

// Resolution 设备分辨率
type Resolution = geometry.Resolution

// ErrCaptureCorrupt 截图文件已写入但无法解码
var ErrCaptureCorrupt = errors.New("截图文件损坏或无法打开")

// Capturer 截图能力
type Capturer interface {
	// Capture 将当前画面写入 path，失败或文件损坏时返回错误
	Capture(ctx context.Context, path string) error
}

// Resolver 分辨率查询能力，查询失败可以容忍
type Resolver interface {
	Resolution(ctx context.Context) (Resolution, error)
}

// Actuator 输入动作能力
type Actuator interface {
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	KeyEvent(ctx context.Context, code int) error
	InputText(ctx context.Context, text string) error
}

// Device 完整设备
type Device interface {
	Capturer
	Resolver
	Actuator
}

// VerifyImage 检查截图文件可以被解码
func VerifyImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("截图文件不存在: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s 为空文件", ErrCaptureCorrupt, path)
	}

	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	defer mat.Close()
	if mat.Empty() {
		return fmt.Errorf("%w: %s", ErrCaptureCorrupt, path)
	}
	return nil
}
