// Package adb 通过 adb 命令驱动 Android 设备
package adb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/cmdutil"
	"github.com/zoeyai/zoeyprobe/pkg/device"
	"github.com/zoeyai/zoeyprobe/pkg/session"
)

// Options Bridge 配置
type Options struct {
	ADBPath      string
	Serial       string
	EmulatorPort int
	Timeout      time.Duration
}

// Option 配置函数
type Option func(*Options)

// WithADBPath 设置 adb 可执行文件
func WithADBPath(path string) Option {
	return func(o *Options) {
		if path != "" {
			o.ADBPath = path
		}
	}
}

// WithSerial 指定设备序列号
func WithSerial(serial string) Option {
	return func(o *Options) {
		o.Serial = serial
	}
}

// WithEmulatorPort 设置无设备时 adb connect 使用的端口
func WithEmulatorPort(port int) Option {
	return func(o *Options) {
		o.EmulatorPort = port
	}
}

// WithTimeout 设置单条 adb 命令超时
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// Bridge adb 设备桥，实现 device.Device
type Bridge struct {
	opts    Options
	session *session.Session
}

var _ device.Device = (*Bridge)(nil)

// New 创建 Bridge，设备序列号与类型记录在 sess 中
func New(sess *session.Session, opts ...Option) *Bridge {
	o := Options{
		ADBPath:      "adb",
		EmulatorPort: 6520,
		Timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Serial != "" {
		sess.SetDevice(o.Serial, Classify(o.Serial))
	}
	return &Bridge{opts: o, session: sess}
}

// Session 返回关联的会话
func (b *Bridge) Session() *session.Session {
	return b.session
}

// adb 执行 adb 命令，已选定设备时自动加 -s
func (b *Bridge) adb(ctx context.Context, args ...string) (string, error) {
	return cmdutil.Output(ctx, b.opts.Timeout, b.opts.ADBPath, b.args(args...)...)
}

func (b *Bridge) args(args ...string) []string {
	serial := b.session.Serial()
	cmdArgs := make([]string, 0, len(args)+2)
	if serial != "" {
		cmdArgs = append(cmdArgs, "-s", serial)
	}
	return append(cmdArgs, args...)
}

// Shell 在设备上执行 shell 命令
func (b *Bridge) Shell(ctx context.Context, args ...string) (string, error) {
	return b.adb(ctx, append([]string{"shell"}, args...)...)
}

// DeviceInfo adb devices 中的一行
type DeviceInfo struct {
	Serial string             `json:"serial"`
	Status string             `json:"status"`
	Type   session.DeviceType `json:"type"`
}

// Online 设备是否处于可用状态
func (d DeviceInfo) Online() bool {
	return d.Status == "device"
}

// Classify 根据序列号判断设备类型
func Classify(serial string) session.DeviceType {
	switch {
	case strings.HasPrefix(serial, "emulator-"),
		strings.HasPrefix(serial, "localhost:"),
		strings.HasPrefix(serial, "127.0.0.1:"):
		return session.TypeEmulator
	default:
		return session.TypeDevice
	}
}

// ParseDevices 解析 adb devices 输出
func ParseDevices(out string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Serial: parts[0],
			Status: parts[1],
			Type:   Classify(parts[0]),
		})
	}
	return devices
}

// Devices 列出 adb 可见的设备（不带 -s）
func (b *Bridge) Devices(ctx context.Context) ([]DeviceInfo, error) {
	out, err := cmdutil.Output(ctx, b.opts.Timeout, b.opts.ADBPath, "devices")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

func online(devices []DeviceInfo) []DeviceInfo {
	var result []DeviceInfo
	for _, d := range devices {
		if d.Online() {
			result = append(result, d)
		}
	}
	return result
}

// Connect 选定要使用的设备。
//
// 没有在线设备时尝试 adb connect localhost:{port}；
// 未指定序列号且有多台设备时返回错误。
// 选定后开启触摸点显示。
func (b *Bridge) Connect(ctx context.Context) (DeviceInfo, error) {
	devices, err := b.Devices(ctx)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("获取设备列表失败: %w", err)
	}

	available := online(devices)
	if len(available) == 0 && b.opts.EmulatorPort > 0 {
		addr := fmt.Sprintf("localhost:%d", b.opts.EmulatorPort)
		logger.Info("没有已连接的设备，尝试 adb connect %s", addr)
		out, err := cmdutil.Output(ctx, b.opts.Timeout, b.opts.ADBPath, "connect", addr)
		if err != nil {
			logger.Warn("adb connect 失败: %v", err)
		} else {
			logger.Debug("adb connect: %s", strings.TrimSpace(out))
		}

		if devices, err = b.Devices(ctx); err != nil {
			return DeviceInfo{}, fmt.Errorf("获取设备列表失败: %w", err)
		}
		available = online(devices)
	}

	if len(available) == 0 {
		return DeviceInfo{}, fmt.Errorf("没有可用的 ADB 设备")
	}

	var chosen DeviceInfo
	if serial := b.opts.Serial; serial != "" {
		found := false
		for _, d := range available {
			if d.Serial == serial {
				chosen, found = d, true
				break
			}
		}
		if !found {
			return DeviceInfo{}, fmt.Errorf("设备 %s 未连接", serial)
		}
	} else {
		if len(available) > 1 {
			serials := make([]string, len(available))
			for i, d := range available {
				serials[i] = d.Serial
			}
			return DeviceInfo{}, fmt.Errorf("连接了多台 ADB 设备 (%s)，请指定序列号", strings.Join(serials, ", "))
		}
		chosen = available[0]
	}

	b.session.SetDevice(chosen.Serial, chosen.Type)
	logger.Info("使用设备 %s (%s)", chosen.Serial, chosen.Type)

	if _, err := b.Shell(ctx, "settings", "put", "system", "show_touches", "1"); err != nil {
		logger.Warn("开启触摸点显示失败: %v", err)
	}
	return chosen, nil
}

var physicalSize = regexp.MustCompile(`Physical size: (\d+)x(\d+)`)

// ParseWMSize 解析 wm size 输出
func ParseWMSize(out string) (device.Resolution, bool) {
	m := physicalSize.FindStringSubmatch(out)
	if m == nil {
		return device.Resolution{}, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return device.Resolution{Width: w, Height: h}, true
}

// Resolution 通过 wm size 获取物理分辨率
func (b *Bridge) Resolution(ctx context.Context) (device.Resolution, error) {
	out, err := b.Shell(ctx, "wm", "size")
	if err != nil {
		return device.Resolution{}, err
	}
	res, ok := ParseWMSize(out)
	if !ok {
		return device.Resolution{}, fmt.Errorf("wm size 输出中没有分辨率: %q", strings.TrimSpace(out))
	}
	return res, nil
}
