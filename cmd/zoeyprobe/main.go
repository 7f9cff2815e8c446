package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globalFlags 所有命令共用的参数，优先级高于配置文件
var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "配置文件路径 (.yaml 或 .json)，默认 ~/.zoeyprobe/config.yaml",
		EnvVars: []string{"ZOEYPROBE_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "driver",
		Usage: "设备驱动: adb 或 desktop",
	},
	&cli.StringFlag{
		Name:    "serial",
		Aliases: []string{"s"},
		Usage:   "ADB 设备序列号",
	},
	&cli.StringFlag{
		Name:  "screenshot",
		Usage: "截图保存路径",
	},
	&cli.BoolFlag{
		Name:  "no-setup",
		Usage: "跳过模拟器检查和应用启动，只连接设备",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "输出调试日志",
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "zoeyprobe",
		Usage:   "基于图像和文字识别的移动端 UI 测试工具",
		Version: fmt.Sprintf("%s (build %s, commit %s)", Version, BuildTime, GitCommit),
		Description: `通过模板匹配和 OCR 在屏幕上定位按钮和文字并操作设备。

示例:
  zoeyprobe tap-button 확인
  zoeyprobe tap-text 로그인 --optional
  zoeyprobe swipe-until-text 설정 --direction up
  zoeyprobe run cases/login.yaml --result out/login.json
  zoeyprobe match screen.png button_image/확인_0.92.png`,
		Flags: globalFlags,
		Commands: []*cli.Command{
			tapButtonCommand,
			tapTextCommand,
			findTextCommand,
			locateCommand,
			swipeCommand,
			swipeUntilTextCommand,
			sendKeysCommand,
			matchCommand,
			devicesCommand,
			quitAppCommand,
			recordCommand,
			runCommand,
			configCommand,
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		stop()
		os.Exit(1)
	}
}
