package desktop

import (
	"errors"
	"strings"
)

// ErrPermissionDenied 桌面驱动缺少系统权限
var ErrPermissionDenied = errors.New("缺少桌面自动化所需的系统权限")

// PermissionStatus 权限状态
type PermissionStatus struct {
	// Accessibility 控制鼠标和键盘
	Accessibility bool `json:"accessibility"`
	// ScreenRecording 截屏
	ScreenRecording bool `json:"screen_recording"`
}

// Granted 全部权限已授予
func (s PermissionStatus) Granted() bool {
	return s.Accessibility && s.ScreenRecording
}

// Instructions 缺少权限时的授权说明
func (s PermissionStatus) Instructions() string {
	if s.Granted() {
		return ""
	}
	var b strings.Builder
	b.WriteString("需要授权以下权限才能正常工作:\n")
	if !s.Accessibility {
		b.WriteString("  - 辅助功能 (点击和键盘输入): 系统设置 > 隐私与安全性 > 辅助功能\n")
	}
	if !s.ScreenRecording {
		b.WriteString("  - 屏幕录制 (截屏和识别): 系统设置 > 隐私与安全性 > 屏幕录制\n")
	}
	b.WriteString("授权后需要重启终端才能生效。")
	return b.String()
}

// Preflight 检查权限，缺少时返回带说明的 ErrPermissionDenied
func Preflight() error {
	status := CheckPermissions()
	if status.Granted() {
		return nil
	}
	return errors.Join(ErrPermissionDenied, errors.New(status.Instructions()))
}
