package adb

import (
	"context"
	"fmt"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/cmdutil"
	"github.com/zoeyai/zoeyprobe/pkg/process"
	"github.com/zoeyai/zoeyprobe/pkg/session"
)

// quitGrace 结束模拟器时等待正常退出的时间
const quitGrace = 5 * time.Second

// SetupOptions 测试准备参数
type SetupOptions struct {
	// EmulatorProcess 模拟器进程名
	EmulatorProcess string
	// EmulatorLauncher 模拟器未运行时执行的程序
	EmulatorLauncher string
	// StartupTimeout 等待模拟器进程出现的最长时间
	StartupTimeout time.Duration
	// SettleDelay 模拟器进程出现后的等待时间
	SettleDelay time.Duration
	// App 被测应用，包名为空时不检查
	App App
}

// DefaultSetupOptions 默认准备参数
func DefaultSetupOptions() SetupOptions {
	return SetupOptions{
		EmulatorProcess: "crosvm",
		StartupTimeout:  60 * time.Second,
		SettleDelay:     10 * time.Second,
	}
}

// Setup 测试准备：确认模拟器在运行、连接设备、启动应用，最后记录设备分辨率
func (b *Bridge) Setup(ctx context.Context, opts SetupOptions) error {
	devices, err := b.Devices(ctx)
	if err != nil {
		return fmt.Errorf("获取设备列表失败: %w", err)
	}
	logger.Debug("ADB 设备: %+v", devices)

	if len(devices) > 1 && b.opts.Serial == "" {
		return fmt.Errorf("连接了 %d 台 ADB 设备，请只连接一台或指定序列号", len(devices))
	}

	// 没有设备时多半是模拟器还没起来
	emulator := len(devices) == 0 || devices[0].Type == session.TypeEmulator
	if emulator && opts.EmulatorProcess != "" {
		if err := ensureEmulator(ctx, opts); err != nil {
			return err
		}
	}

	if _, err := b.Connect(ctx); err != nil {
		return err
	}

	if opts.App.Package != "" {
		if err := b.EnsureApp(ctx, opts.App); err != nil {
			return err
		}
	}

	b.session.Init(ctx, b)
	return nil
}

func ensureEmulator(ctx context.Context, opts SetupOptions) error {
	if process.IsRunning(opts.EmulatorProcess) {
		logger.Debug("模拟器 %s 已在运行", opts.EmulatorProcess)
		return nil
	}
	if opts.EmulatorLauncher == "" {
		logger.Warn("模拟器 %s 未运行，且未配置启动程序", opts.EmulatorProcess)
		return nil
	}

	logger.Info("启动模拟器: %s", opts.EmulatorLauncher)
	cmd := cmdutil.Command(context.Background(), opts.EmulatorLauncher)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动模拟器失败: %w", err)
	}
	go cmd.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, opts.StartupTimeout)
	defer cancel()
	if err := process.WaitFor(waitCtx, opts.EmulatorProcess, 2*time.Second); err != nil {
		return fmt.Errorf("模拟器 %v 内未启动: %w", opts.StartupTimeout, err)
	}

	logger.Info("模拟器已启动，等待 %v", opts.SettleDelay)
	select {
	case <-time.After(opts.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QuitApp 测试结束：停止被测应用，然后结束模拟器进程。
// 模拟器 5 秒内没有退出时强制结束；未运行时直接返回。
func (b *Bridge) QuitApp(ctx context.Context, opts SetupOptions) error {
	if opts.App.Package != "" {
		if err := b.ForceStop(ctx, opts.App.Package); err != nil {
			logger.Warn("%v", err)
		}
	}
	if opts.EmulatorProcess == "" {
		return nil
	}
	if !process.IsRunning(opts.EmulatorProcess) {
		logger.Info("模拟器 %s 未运行", opts.EmulatorProcess)
		return nil
	}

	logger.Info("结束模拟器 %s", opts.EmulatorProcess)
	if err := process.TerminateByName(opts.EmulatorProcess, quitGrace); err != nil {
		return fmt.Errorf("结束模拟器失败: %w", err)
	}
	return nil
}
