package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/auto"
	"github.com/zoeyai/zoeyprobe/pkg/config"
	"github.com/zoeyai/zoeyprobe/pkg/device/adb"
	"github.com/zoeyai/zoeyprobe/pkg/executor"
	"github.com/zoeyai/zoeyprobe/pkg/session"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
	"github.com/zoeyai/zoeyprobe/pkg/vision/ocr"
)

var actionFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "optional",
		Usage: "未找到时不报错",
	},
	&cli.DurationFlag{
		Name:  "delay",
		Usage: "点击后等待时间",
		Value: auto.DefaultDelay,
	},
}

func actionOptions(c *cli.Context) []auto.Option {
	return []auto.Option{
		auto.WithMustExist(!c.Bool("optional")),
		auto.WithDelay(c.Duration("delay")),
	}
}

// requireArg 取第一个位置参数
func requireArg(c *cli.Context, name string) (string, error) {
	if c.Args().Len() < 1 {
		return "", fmt.Errorf("缺少参数 <%s>", name)
	}
	return c.Args().First(), nil
}

// reportFound 输出查找结果，未找到且必须存在的情况已由 Harness 返回错误
func reportFound(target string, found bool) {
	if found {
		fmt.Printf("找到 %q\n", target)
	} else {
		fmt.Printf("未找到 %q\n", target)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var tapButtonCommand = &cli.Command{
	Name:      "tap-button",
	Usage:     "用模板匹配查找按钮并点击，缓存中没有合适模板时按文字合成",
	ArgsUsage: "<label>",
	Flags:     actionFlags,
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		label, err := requireArg(c, "label")
		if err != nil {
			return err
		}
		found, err := h.TapButton(c.Context, label, actionOptions(c)...)
		if err != nil {
			return err
		}
		reportFound(label, found)
		return nil
	}),
}

var tapTextCommand = &cli.Command{
	Name:      "tap-text",
	Usage:     "用 OCR 查找文字并点击，支持 * 通配",
	ArgsUsage: "<text>",
	Flags:     actionFlags,
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		text, err := requireArg(c, "text")
		if err != nil {
			return err
		}
		found, err := h.TapText(c.Context, text, actionOptions(c)...)
		if err != nil {
			return err
		}
		reportFound(text, found)
		return nil
	}),
}

var findTextCommand = &cli.Command{
	Name:      "find-text",
	Usage:     "检查文字是否在屏幕上",
	ArgsUsage: "<text>",
	Flags:     actionFlags[:1],
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		text, err := requireArg(c, "text")
		if err != nil {
			return err
		}
		found, err := h.FindText(c.Context, text, auto.WithMustExist(!c.Bool("optional")))
		if err != nil {
			return err
		}
		reportFound(text, found)
		return nil
	}),
}

var locateCommand = &cli.Command{
	Name:      "locate",
	Usage:     "输出文字的设备坐标和识别详情 (JSON)",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "image",
			Usage: "识别已有截图，不连接设备",
		},
	},
	Action: func(c *cli.Context) error {
		text, err := requireArg(c, "text")
		if err != nil {
			return err
		}

		if img := c.String("image"); img != "" {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			// 离线识别不连接设备，坐标按缩放系数换算
			h, err := auto.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			defer h.Close()
			loc, found, err := h.Locator().Locate(img, text)
			if err != nil {
				return err
			}
			return printLocation(text, loc, found)
		}

		h, _, err := openHarness(c)
		if err != nil {
			return err
		}
		defer h.Close()
		loc, found, err := h.Locate(c.Context, text)
		if err != nil {
			return err
		}
		return printLocation(text, loc, found)
	},
}

func printLocation(text string, loc ocr.Location, found bool) error {
	return printJSON(map[string]interface{}{
		"target":   text,
		"found":    found,
		"location": loc,
	})
}

var swipeCommand = &cli.Command{
	Name:      "swipe",
	Usage:     "按方向滑动一次",
	ArgsUsage: "<up|down|left|right>",
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		dir, err := requireArg(c, "direction")
		if err != nil {
			return err
		}
		return h.Swipe(c.Context, dir)
	}),
}

var swipeUntilTextCommand = &cli.Command{
	Name:      "swipe-until-text",
	Usage:     "滑动直到文字出现",
	ArgsUsage: "<text>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "direction", Value: "up", Usage: "滑动方向"},
		&cli.IntFlag{Name: "max-swipes", Value: auto.DefaultMaxSwipes, Usage: "最多滑动次数"},
		&cli.DurationFlag{Name: "interval", Value: auto.DefaultSwipeDelay, Usage: "每次滑动后的等待时间"},
	},
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		text, err := requireArg(c, "text")
		if err != nil {
			return err
		}
		found, err := h.SwipeUntilText(c.Context, text, c.String("direction"), c.Int("max-swipes"), c.Duration("interval"))
		if err != nil {
			return err
		}
		if !found {
			return cli.Exit(fmt.Sprintf("滑动 %d 次仍未找到 %q", c.Int("max-swipes"), text), 2)
		}
		reportFound(text, true)
		return nil
	}),
}

var sendKeysCommand = &cli.Command{
	Name:      "send-keys",
	Usage:     "发送按键 (Enter、Back 等) 或输入文字",
	ArgsUsage: "<key-or-text>",
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		value, err := requireArg(c, "key-or-text")
		if err != nil {
			return err
		}
		return h.SendKeys(c.Context, value)
	}),
}

var matchCommand = &cli.Command{
	Name:      "match",
	Usage:     "计算模板在截图中的匹配分数，不连接设备",
	ArgsUsage: "<screen.png> <template.png>",
	Flags: []cli.Flag{
		&cli.Float64Flag{Name: "threshold", Value: cv.MatchThreshold, Usage: "匹配阈值"},
		&cli.BoolFlag{Name: "gray", Usage: "灰度匹配"},
		&cli.StringFlag{Name: "crop", Usage: "把匹配到的区域保存到该文件"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return errors.New("需要 <screen.png> <template.png> 两个参数")
		}
		m := cv.NewMatcher(cv.WithThreshold(c.Float64("threshold")), cv.WithGray(c.Bool("gray")))
		screen, tpl := c.Args().Get(0), c.Args().Get(1)
		out := c.String("crop")
		if out == "" {
			return printJSON(m.ScoreFiles(screen, tpl))
		}
		res, err := m.ExtractRegion(screen, tpl, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "匹配区域已保存到 %s (分数 %.4f)\n", out, res.Score)
		return printJSON(res)
	},
}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "列出 ADB 设备",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		b := adb.New(session.New(cfg.Device.ResizeFactor), adb.WithADBPath(cfg.Device.ADBPath))
		devices, err := b.Devices(c.Context)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("没有已连接的设备")
			return nil
		}
		for _, d := range devices {
			fmt.Printf("%-24s %-14s %s\n", d.Serial, d.Status, d.Type)
		}
		return nil
	},
}

var quitAppCommand = &cli.Command{
	Name:  "quit-app",
	Usage: "停止被测应用并结束模拟器进程",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		b := adb.New(session.New(cfg.Device.ResizeFactor),
			adb.WithADBPath(cfg.Device.ADBPath),
			adb.WithSerial(cfg.Device.Serial),
			adb.WithEmulatorPort(cfg.Device.EmulatorPort),
		)
		opts := setupOptions(cfg)
		// 设备不可达时只结束模拟器进程
		if _, err := b.Connect(c.Context); err != nil {
			logger.Warn("连接设备失败: %v", err)
			opts.App = adb.App{}
		}
		if err := b.QuitApp(c.Context, opts); err != nil {
			return err
		}
		fmt.Println("已结束")
		return nil
	},
}

var recordCommand = &cli.Command{
	Name:  "record",
	Usage: "录制设备屏幕，Ctrl+C 或到达时长后停止并拉取到本地",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Value: "video", Usage: "本地保存目录"},
		&cli.StringFlag{Name: "prefix", Value: "record", Usage: "文件名前缀"},
		&cli.DurationFlag{Name: "duration", Usage: "录制时长，0 表示直到中断"},
		&cli.IntFlag{Name: "bit-rate", Usage: "码率"},
	},
	Action: withHarness(func(c *cli.Context, h *auto.Harness) error {
		b, ok := h.Device().(*adb.Bridge)
		if !ok {
			return errors.New("录屏只支持 adb 设备")
		}
		rec, err := b.StartRecording(adb.RecordOptions{
			Prefix:  c.String("prefix"),
			BitRate: c.Int("bit-rate"),
		})
		if err != nil {
			return err
		}
		fmt.Println("录屏中，按 Ctrl+C 停止")

		wait := c.Context
		if d := c.Duration("duration"); d > 0 {
			var cancel context.CancelFunc
			wait, cancel = context.WithTimeout(wait, d)
			defer cancel()
		}
		<-wait.Done()

		// 父 ctx 已取消，拉取文件使用新的 ctx
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		h.Session().TakeRecording()
		local, err := rec.Stop(stopCtx, c.String("out"))
		if err != nil {
			return err
		}
		fmt.Printf("录屏已保存: %s\n", local)
		return nil
	}),
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "执行 YAML 测试用例",
	ArgsUsage: "<case.yaml>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "result", Usage: "结果 JSON 保存路径，多个用例时追加序号"},
		&cli.StringFlag{Name: "evidence", Value: "screenshots", Usage: "失败步骤截图保存目录，为空时不保存"},
		&cli.IntFlag{Name: "evidence-quality", Value: 80, Usage: "失败截图 JPEG 质量 (1-100)"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return errors.New("缺少用例文件")
		}
		cases := make([]*executor.Case, 0, c.Args().Len())
		for _, path := range c.Args().Slice() {
			tc, err := executor.LoadCase(path)
			if err != nil {
				return err
			}
			cases = append(cases, tc)
		}

		h, _, err := openHarness(c)
		if err != nil {
			return err
		}
		defer h.Close()

		ex := executor.New(h, executor.WithEvidence(c.String("evidence"), c.Int("evidence-quality")))
		failed := 0
		for i, tc := range cases {
			r := ex.Run(c.Context, tc)
			fmt.Printf("%-30s %s  passed=%d failed=%d skipped=%d (%dms)\n",
				tc.Name, status(r.Success), r.PassedSteps, r.FailedSteps, r.SkippedSteps, r.DurationMs)
			if !r.Success {
				failed++
			}
			if out := c.String("result"); out != "" {
				if err := executor.WriteResult(resultPath(out, i, len(cases)), r); err != nil {
					return err
				}
			}
		}
		if failed > 0 {
			return cli.Exit(fmt.Sprintf("%d/%d 个用例失败", failed, len(cases)), 1)
		}
		return nil
	},
}

func status(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

// resultPath 多个用例时在扩展名前追加序号
func resultPath(path string, idx, total int) string {
	if total <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), idx+1, ext)
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "查看或初始化配置文件",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "输出生效的配置 (文件 + 命令行参数)",
			Action: func(c *cli.Context) error {
				cfg, err := configManager(c).Load()
				if err != nil {
					return err
				}
				applyFlags(c, cfg)
				return printJSON(cfg)
			},
		},
		{
			Name:  "init",
			Usage: "写入默认配置",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "force", Usage: "覆盖已有文件"},
			},
			Action: func(c *cli.Context) error {
				m := configManager(c)
				if m.Exists() && !c.Bool("force") {
					return fmt.Errorf("配置文件已存在: %s (使用 --force 覆盖)", m.GetConfigFile())
				}
				if err := m.Save(config.Default()); err != nil {
					return err
				}
				fmt.Printf("配置已保存到 %s\n", m.GetConfigFile())
				return nil
			},
		},
	},
}
