package adb

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/session"
)

// App 被测应用
type App struct {
	Package  string `json:"package" yaml:"package"`
	Activity string `json:"activity" yaml:"activity"`
}

// ResumedActivityHas 判断 dumpsys activity 输出中前台 Activity 是否属于 pkg
func ResumedActivityHas(dumpsys, pkg string) bool {
	for _, line := range strings.Split(dumpsys, "\n") {
		if !strings.Contains(line, "topResumedActivity") && !strings.Contains(line, "mResumedActivity") {
			continue
		}
		if strings.Contains(line, pkg) {
			return true
		}
	}
	return false
}

// AppRunning 检查应用是否在前台运行。
//
// 应用只在后台存活时会被强制停止并返回 false，便于随后重新启动。
func (b *Bridge) AppRunning(ctx context.Context, pkg string) (bool, error) {
	if pkg == "" {
		return false, fmt.Errorf("包名不能为空")
	}

	dumpsys, err := b.Shell(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		logger.Warn("dumpsys 执行失败: %v", err)
	}

	var background bool
	if b.session.DeviceType() == session.TypeDevice {
		if ResumedActivityHas(dumpsys, pkg) {
			logger.Debug("%s 位于前台", pkg)
			return true, nil
		}
		out, err := b.Shell(ctx, "pidof", pkg)
		background = err == nil && strings.TrimSpace(out) != ""
	} else {
		if err == nil && strings.Contains(dumpsys, pkg) {
			logger.Debug("%s 正在运行", pkg)
			return true, nil
		}
		out, err := b.Shell(ctx, "ps")
		background = err == nil && strings.Contains(out, pkg)
	}

	if background {
		logger.Info("%s 在后台运行，强制停止", pkg)
		if err := b.ForceStop(ctx, pkg); err != nil {
			logger.Error("强制停止失败: %v", err)
		}
	}
	return false, nil
}

// ForceStop 强制停止应用
func (b *Bridge) ForceStop(ctx context.Context, pkg string) error {
	if _, err := b.Shell(ctx, "am", "force-stop", pkg); err != nil {
		return fmt.Errorf("停止 %s 失败: %w", pkg, err)
	}
	return nil
}

// Launch 启动应用：真机使用 monkey，模拟器使用 am start
func (b *Bridge) Launch(ctx context.Context, app App) error {
	var err error
	if b.session.DeviceType() == session.TypeDevice || app.Activity == "" {
		_, err = b.Shell(ctx, "monkey", "-p", app.Package, "-c", "android.intent.category.LAUNCHER", "1")
	} else {
		_, err = b.Shell(ctx, "am", "start", "-n", app.Package+"/"+app.Activity)
	}
	if err != nil {
		return fmt.Errorf("启动 %s 失败: %w", app.Package, err)
	}
	logger.Info("已启动 %s", app.Package)
	return nil
}

// EnsureApp 应用不在前台时启动它
func (b *Bridge) EnsureApp(ctx context.Context, app App) error {
	running, err := b.AppRunning(ctx, app.Package)
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	return b.Launch(ctx, app)
}
