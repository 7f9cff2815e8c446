package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/cmdutil"
	"github.com/zoeyai/zoeyprobe/pkg/device"
	"github.com/zoeyai/zoeyprobe/pkg/session"
)

// remoteScreenPath 真机截图的设备端临时文件
const remoteScreenPath = "/sdcard/__temp_screen__.png"

// Capture 截图保存到 path。
//
// 真机先 screencap 到设备再 pull，模拟器直接 exec-out。
// 写入后校验图片可以解码。
func (b *Bridge) Capture(ctx context.Context, path string) error {
	start := time.Now()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除旧截图失败: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建截图目录失败: %w", err)
		}
	}

	var err error
	if b.session.DeviceType() == session.TypeDevice && b.session.Serial() != "" {
		err = b.captureByPull(ctx, path)
	} else {
		err = b.captureByExecOut(ctx, path)
	}
	if err == nil {
		err = device.VerifyImage(path)
	}

	logger.LogEvent("ADB", err == nil, logger.Since(start), "screencap "+path)
	return err
}

func (b *Bridge) captureByPull(ctx context.Context, path string) error {
	if _, err := b.Shell(ctx, "screencap", "-p", remoteScreenPath); err != nil {
		return fmt.Errorf("设备截图失败: %w", err)
	}
	if _, err := b.adb(ctx, "pull", remoteScreenPath, path); err != nil {
		return fmt.Errorf("拉取截图失败: %w", err)
	}
	if _, err := b.Shell(ctx, "rm", remoteScreenPath); err != nil {
		logger.Warn("删除设备临时截图失败: %v", err)
	}
	return nil
}

func (b *Bridge) captureByExecOut(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建截图文件失败: %w", err)
	}
	defer f.Close()

	var stderr bytes.Buffer
	cmd := cmdutil.Command(ctx, b.opts.ADBPath, b.args("exec-out", "screencap", "-p")...)
	cmd.Stdout = f
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("adb exec-out screencap: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
