package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
)

// Tap 点击设备坐标
func (b *Bridge) Tap(ctx context.Context, x, y int) error {
	if _, err := b.Shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return fmt.Errorf("点击 (%d, %d) 失败: %w", x, y, err)
	}
	logger.Info("ADB 点击: (%d, %d)", x, y)
	return nil
}

// Swipe 从 (x1, y1) 滑动到 (x2, y2)
func (b *Bridge) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	_, err := b.Shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(duration.Milliseconds(), 10))
	if err != nil {
		return fmt.Errorf("滑动失败: %w", err)
	}
	logger.Debug("ADB 滑动: (%d, %d) -> (%d, %d) %v", x1, y1, x2, y2, duration)
	return nil
}

// KeyEvent 发送 keyevent
func (b *Bridge) KeyEvent(ctx context.Context, code int) error {
	if _, err := b.Shell(ctx, "input", "keyevent", strconv.Itoa(code)); err != nil {
		return fmt.Errorf("发送按键 %d 失败: %w", code, err)
	}
	logger.Debug("ADB 按键: KEYCODE %d", code)
	return nil
}

// InputText 输入文本
func (b *Bridge) InputText(ctx context.Context, text string) error {
	if _, err := b.Shell(ctx, "input", "text", EscapeText(text)); err != nil {
		return fmt.Errorf("输入文本失败: %w", err)
	}
	logger.Debug("ADB 输入文本 (%d 字符)", len([]rune(text)))
	return nil
}

// shellSpecial 设备端 shell 需要转义的字符
const shellSpecial = "\\'\"`$&|;<>()*?~#!{}[]"

// EscapeText 转换为 input text 可接受的参数：空格写作 %s，shell 元字符加反斜杠
func EscapeText(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case r == ' ':
			sb.WriteString("%s")
		case strings.ContainsRune(shellSpecial, r):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
