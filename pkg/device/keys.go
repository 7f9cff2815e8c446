package device

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// keyCodes Android KEYCODE 名称表
var keyCodes = map[string]int{
	"Tab":        61,
	"Enter":      66,
	"Back":       4,
	"Del":        67,
	"Delete":     67,
	"Home":       3,
	"Menu":       82,
	"Up":         19,
	"Down":       20,
	"Left":       21,
	"Right":      22,
	"Space":      62,
	"Escape":     111,
	"Search":     84,
	"Camera":     27,
	"VolumeUp":   24,
	"VolumeDown": 25,
	"Power":      26,
}

// KeyCode 按名称查找 keycode，名称区分大小写
func KeyCode(name string) (int, bool) {
	code, ok := keyCodes[name]
	return code, ok
}

// SendKeys 已知键名发送 keyevent，否则按文本输入
func SendKeys(ctx context.Context, a Actuator, value string) error {
	if code, ok := KeyCode(value); ok {
		return a.KeyEvent(ctx, code)
	}
	return a.InputText(ctx, value)
}

// Direction 滑动方向
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection 解析方向字符串（不区分大小写）
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Up, Down, Left, Right:
		return d, nil
	}
	return "", fmt.Errorf("未知的滑动方向 %q，可选 up, down, left, right", s)
}

// SwipeSpec 方向滑动参数
type SwipeSpec struct {
	X        int
	CenterY  int
	Distance int
	Duration time.Duration
}

// DefaultSwipe 默认滑动参数
func DefaultSwipe() SwipeSpec {
	return SwipeSpec{
		X:        540,
		CenterY:  1000,
		Distance: 600,
		Duration: 800 * time.Millisecond,
	}
}

// Points 计算起止坐标
func (s SwipeSpec) Points(d Direction) (x1, y1, x2, y2 int) {
	x1, y1 = s.X, s.CenterY
	switch d {
	case Up:
		return x1, y1, s.X, s.CenterY - s.Distance
	case Down:
		return x1, y1, s.X, s.CenterY + s.Distance
	case Left:
		return x1, y1, s.X - s.Distance, s.CenterY
	default:
		return x1, y1, s.X + s.Distance, s.CenterY
	}
}

// SwipeDirection 按方向滑动
func SwipeDirection(ctx context.Context, a Actuator, d Direction, spec SwipeSpec) error {
	d, err := ParseDirection(string(d))
	if err != nil {
		return err
	}
	x1, y1, x2, y2 := spec.Points(d)
	return a.Swipe(ctx, x1, y1, x2, y2, spec.Duration)
}
