package adb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/cmdutil"
)

// stopGrace 停止录屏时等待进程退出的时间
const stopGrace = 5 * time.Second

// RecordOptions 录屏参数
type RecordOptions struct {
	// Prefix 文件名前缀，实际文件名为 {prefix}_{时间戳}.mp4
	Prefix string
	// BitRate 码率，默认 8Mbps
	BitRate int
	// Size 分辨率，例如 1080x2400，为空时使用设备分辨率
	Size string
}

// Recording 进行中的录屏，实现 session.Recording
type Recording struct {
	bridge *Bridge
	cmd    *exec.Cmd
	// done 录屏进程退出后关闭
	done chan struct{}

	stopOnce  sync.Once
	localPath string
	stopErr   error

	RemotePath string
}

// RecordArgs 构造 screenrecord 参数
func RecordArgs(opts RecordOptions, remotePath string) []string {
	bitRate := opts.BitRate
	if bitRate <= 0 {
		bitRate = 8000000
	}
	args := []string{"shell", "screenrecord", "--bit-rate=" + strconv.Itoa(bitRate)}
	if opts.Size != "" {
		args = append(args, "--size="+opts.Size)
	}
	return append(args, remotePath)
}

// RemoteRecordPath 生成设备端录屏文件路径
func RemoteRecordPath(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "record"
	}
	return path.Join("/sdcard", fmt.Sprintf("%s_%s.mp4", prefix, now.Format("20060102_150405")))
}

// StartRecording 在后台启动 screenrecord，并登记到会话
func (b *Bridge) StartRecording(opts RecordOptions) (*Recording, error) {
	remote := RemoteRecordPath(opts.Prefix, time.Now())

	// 录屏进程的生命周期由 Stop 控制，不绑定调用方的 ctx
	cmd := cmdutil.Command(context.Background(), b.opts.ADBPath, b.args(RecordArgs(opts, remote)...)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动录屏失败: %w", err)
	}

	r := &Recording{
		bridge:     b,
		cmd:        cmd,
		done:       make(chan struct{}),
		RemotePath: remote,
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("录屏进程退出: %v", err)
		}
		close(r.done)
	}()

	b.session.SetRecording(r)
	logger.Info("开始录屏: %s", remote)
	return r, nil
}

// Stop 结束录屏并拉取到 localDir，返回本地文件路径。
// 只有第一次调用生效，之后返回相同的结果。
func (r *Recording) Stop(ctx context.Context, localDir string) (string, error) {
	r.stopOnce.Do(func() {
		r.localPath, r.stopErr = r.stop(ctx, localDir)
	})
	return r.localPath, r.stopErr
}

func (r *Recording) stop(ctx context.Context, localDir string) (string, error) {
	if err := r.interrupt(); err != nil {
		logger.Warn("发送停止信号失败: %v", err)
	}

	select {
	case <-r.done:
	case <-time.After(stopGrace):
		logger.Warn("录屏进程 %v 内未退出，强制结束", stopGrace)
		if err := r.cmd.Process.Kill(); err != nil {
			logger.Warn("强制结束录屏进程失败: %v", err)
		}
		<-r.done
	}

	if localDir == "" {
		localDir = "."
	}
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return "", fmt.Errorf("创建录屏目录失败: %w", err)
	}
	local := filepath.Join(localDir, path.Base(r.RemotePath))

	if _, err := r.bridge.adb(ctx, "pull", r.RemotePath, local); err != nil {
		return "", fmt.Errorf("拉取录屏失败: %w", err)
	}
	logger.Info("录屏已保存: %s", local)
	return local, nil
}

func (r *Recording) interrupt() error {
	if runtime.GOOS == "windows" {
		return r.cmd.Process.Kill()
	}
	return r.cmd.Process.Signal(os.Interrupt)
}
