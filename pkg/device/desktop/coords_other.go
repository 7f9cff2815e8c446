//go:build !windows

package desktop

import (
	"math"

	"github.com/go-vgo/robotgo"
)

// PointForInput 非 Windows 平台截图坐标即输入坐标
func PointForInput(x, y int) (int, int) {
	return x, y
}

// DPIScale 非 Windows 平台返回 1.0
func DPIScale() float64 {
	return 1.0
}

// PhysicalScreenSize macOS Retina 由 robotgo 自行处理
func PhysicalScreenSize() (width, height int) {
	return robotgo.GetScreenSize()
}

// ResetScaleCache 非 Windows 平台无操作
func ResetScaleCache() {}

// ScaleInt 按系数缩放并四舍五入，系数非正时原样返回
func ScaleInt(value int, factor float64) int {
	if factor <= 0 {
		return value
	}
	return int(math.Round(float64(value) * factor))
}
