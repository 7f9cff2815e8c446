//go:build windows

package desktop

import (
	"math"
	"sync"
	"syscall"

	"github.com/go-vgo/robotgo"

	"github.com/zoeyai/zoeyprobe/internal/logger"
)

// Windows 下 robotgo.CaptureImg 返回物理像素，而 GetScreenSize / Move
// 可能工作在逻辑坐标。首次使用时比较两者尺寸得到 coordScale:
//
//	输入坐标 = 截图坐标 / coordScale

var (
	scaleMu      sync.Mutex
	scaleX       float64
	scaleY       float64
	scaleReady   bool
	cachedDPI    float64
	user32       = syscall.NewLazyDLL("user32.dll")
	gdi32        = syscall.NewLazyDLL("gdi32.dll")
	procGetDC    = user32.NewProc("GetDC")
	procRelDC    = user32.NewProc("ReleaseDC")
	procDevCaps  = gdi32.NewProc("GetDeviceCaps")
	procDPIForWn = user32.NewProc("GetDpiForWindow")
	procDesktop  = user32.NewProc("GetDesktopWindow")
)

const logPixelsX = 88

// DPIScale 系统 DPI 缩放，1.0 = 100%
func DPIScale() float64 {
	scaleMu.Lock()
	defer scaleMu.Unlock()
	return dpiScaleLocked()
}

func dpiScaleLocked() float64 {
	if cachedDPI > 0 {
		return cachedDPI
	}

	dpi := 0
	if procDPIForWn.Find() == nil {
		if hwnd, _, _ := procDesktop.Call(); hwnd != 0 {
			if d, _, _ := procDPIForWn.Call(hwnd); d > 0 {
				dpi = int(d)
			}
		}
	}
	if dpi == 0 && procGetDC.Find() == nil && procDevCaps.Find() == nil {
		if dc, _, _ := procGetDC.Call(0); dc != 0 {
			if d, _, _ := procDevCaps.Call(dc, uintptr(logPixelsX)); d > 0 {
				dpi = int(d)
			}
			procRelDC.Call(0, dc)
		}
	}
	if dpi <= 0 {
		dpi = 96
	}

	cachedDPI = sanitizeScale(float64(dpi) / 96.0)
	return cachedDPI
}

func coordScale() (float64, float64) {
	scaleMu.Lock()
	defer scaleMu.Unlock()

	if scaleReady {
		return scaleX, scaleY
	}
	scaleX, scaleY = 1.0, 1.0
	scaleReady = true

	rw, rh := robotgo.GetScreenSize()
	if rw <= 0 || rh <= 0 {
		return scaleX, scaleY
	}
	img, err := robotgo.CaptureImg()
	if err != nil || img == nil {
		s := dpiScaleLocked()
		scaleX, scaleY = s, s
		return scaleX, scaleY
	}
	scaleX = sanitizeScale(float64(img.Bounds().Dx()) / float64(rw))
	scaleY = sanitizeScale(float64(img.Bounds().Dy()) / float64(rh))

	logger.Debug("DPI=%.0f%% robotgo_screen=%dx%d coordScale=%.3f,%.3f",
		dpiScaleLocked()*100, rw, rh, scaleX, scaleY)
	return scaleX, scaleY
}

// sanitizeScale 超出 [0.5, 4] 或接近 1 时按 1 处理
func sanitizeScale(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0.5 || v > 4.0 || math.Abs(v-1.0) < 0.05 {
		return 1.0
	}
	return v
}

// ResetScaleCache 显示器设置变化后重新探测
func ResetScaleCache() {
	scaleMu.Lock()
	defer scaleMu.Unlock()
	scaleReady = false
	cachedDPI = 0
}

// PointForInput 截图物理坐标转 robotgo 输入坐标
func PointForInput(x, y int) (int, int) {
	sx, sy := coordScale()
	return ScaleInt(x, 1.0/sx), ScaleInt(y, 1.0/sy)
}

// PhysicalScreenSize 与截图分辨率一致的屏幕尺寸
func PhysicalScreenSize() (width, height int) {
	w, h := robotgo.GetScreenSize()
	sx, sy := coordScale()
	return ScaleInt(w, sx), ScaleInt(h, sy)
}

// ScaleInt 按系数缩放并四舍五入，系数非正时原样返回
func ScaleInt(value int, factor float64) int {
	if factor <= 0 {
		return value
	}
	return int(math.Round(float64(value) * factor))
}
