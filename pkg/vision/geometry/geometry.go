// Package geometry 将截图坐标换算为设备坐标
//
// 截图可能经过 OCR 预处理放大，也可能相对设备方向旋转了 90 度，
// 这里统一处理旋转检测、缩放和越界裁剪。
package geometry

import (
	"fmt"

	"github.com/zoeyai/zoeyprobe/internal/logger"
)

// RotationTolerance 判断截图是否旋转的尺寸容差（像素）
const RotationTolerance = 50

// MaxScaleWarning 缩放比例超过该值时输出警告
const MaxScaleWarning = 4.0

// Resolution 设备分辨率，宽高为 0 表示未知
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Known 分辨率是否已知
func (r Resolution) Known() bool {
	return r.Width > 0 && r.Height > 0
}

func (r Resolution) String() string {
	if !r.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Geometry 单次换算使用的截图与设备尺寸
type Geometry struct {
	CaptureWidth  int
	CaptureHeight int
	DeviceWidth   int
	DeviceHeight  int
	Rotated       bool
}

// Detect 比较截图尺寸与设备分辨率，宽高互换（容差内）时视为旋转
func Detect(imgW, imgH int, res Resolution) Geometry {
	g := Geometry{
		CaptureWidth:  imgW,
		CaptureHeight: imgH,
		DeviceWidth:   res.Width,
		DeviceHeight:  res.Height,
	}
	if res.Known() {
		g.Rotated = abs(imgW-res.Height) < RotationTolerance && abs(imgH-res.Width) < RotationTolerance
	}
	return g
}

// Point 设备坐标
type Point struct {
	X int
	Y int
}

// ToDevice 将截图中的点 (cx, cy) 换算到设备坐标。
//
// 分辨率已知时按 设备/截图 的比例缩放；未知时使用 fallback 系数。
// 缩放结果超出设备范围时再做一次旋转变换后重新计算，最后裁剪到屏幕内。
func ToDevice(cx, cy float64, imgW, imgH int, res Resolution, fallback float64) Point {
	g := Detect(imgW, imgH, res)

	var sx, sy float64
	if res.Known() && imgW > 0 && imgH > 0 {
		sx = float64(res.Width) / float64(imgW)
		sy = float64(res.Height) / float64(imgH)
		if sx > MaxScaleWarning || sy > MaxScaleWarning {
			logger.Warn("截图与设备分辨率差异过大 (scale_x=%.2f, scale_y=%.2f)，请检查放大倍率", sx, sy)
		}
	} else {
		if fallback <= 0 {
			fallback = 1.0
		}
		logger.Warn("设备分辨率未知，使用缩放系数 %.3f", fallback)
		sx, sy = fallback, fallback
	}

	if g.Rotated {
		cx, cy = rotate(cx, cy, imgW)
	}
	p := Point{X: int(cx * sx), Y: int(cy * sy)}

	if !res.Known() {
		return p
	}

	// 旋转判断可能漏判，越界时强制再转一次
	if p.X > res.Width || p.Y > res.Height {
		logger.Warn("坐标 (%d, %d) 超出屏幕 %s，强制旋转修正", p.X, p.Y, res)
		cx, cy = rotate(cx, cy, imgW)
		p = Point{X: int(cx * sx), Y: int(cy * sy)}
	}

	p.X = clamp(p.X, 0, res.Width-1)
	p.Y = clamp(p.Y, 0, res.Height-1)
	return p
}

// rotate (cx, cy) -> (cy, imgW - cx)
func rotate(cx, cy float64, imgW int) (float64, float64) {
	return cy, float64(imgW) - cx
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
