package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/auto"
	"github.com/zoeyai/zoeyprobe/pkg/config"
	"github.com/zoeyai/zoeyprobe/pkg/device/adb"
	"github.com/zoeyai/zoeyprobe/pkg/device/desktop"
)

func configManager(c *cli.Context) *config.Manager {
	if path := c.String("config"); path != "" {
		return config.NewManagerWithFile(path)
	}
	return config.NewManager()
}

// loadConfig 读取配置文件并应用命令行参数，然后初始化日志
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := configManager(c).Load()
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)

	if err := logger.Default().Configure(logger.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File:    cfg.Log.File,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("driver"); v != "" {
		cfg.Device.Driver = v
	}
	if v := c.String("serial"); v != "" {
		cfg.Device.Serial = v
	}
	if v := c.String("screenshot"); v != "" {
		cfg.Device.ScreenshotPath = v
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
		cfg.Log.Console = true
	}
}

// openHarness 按配置组装 Harness，并完成设备准备：
// adb 设备检查模拟器、连接、启动应用；桌面驱动检查系统权限。
// 两者最后都会记录设备分辨率。
func openHarness(c *cli.Context) (*auto.Harness, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	h, err := auto.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx := c.Context
	switch dev := h.Device().(type) {
	case *adb.Bridge:
		if c.Bool("no-setup") {
			_, err = dev.Connect(ctx)
			if err == nil {
				h.Session().Init(ctx, dev)
			}
		} else {
			err = dev.Setup(ctx, setupOptions(cfg))
		}
	case *desktop.Desktop:
		if err = desktop.Preflight(); err != nil {
			desktop.OpenSettings(desktop.CheckPermissions())
		} else {
			h.Session().Init(ctx, dev)
		}
	}
	if err != nil {
		h.Close()
		return nil, nil, fmt.Errorf("设备准备失败: %w", err)
	}
	return h, cfg, nil
}

func setupOptions(cfg *config.Config) adb.SetupOptions {
	opts := adb.DefaultSetupOptions()
	opts.EmulatorProcess = cfg.Device.EmulatorProcess
	opts.EmulatorLauncher = cfg.Device.EmulatorLauncher
	opts.App = adb.App{Package: cfg.App.Package, Activity: cfg.App.Activity}
	return opts
}

// withHarness 打开 Harness 执行 fn，结束后释放
func withHarness(fn func(c *cli.Context, h *auto.Harness) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		h, _, err := openHarness(c)
		if err != nil {
			return err
		}
		defer h.Close()
		return fn(c, h)
	}
}
