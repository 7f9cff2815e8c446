// Package process 提供宿主机进程查找与终止（用于模拟器检测）
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/zoeyai/zoeyprobe/internal/logger"
)

// ProcessInfo 进程信息
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// FindProcess 按名称查找进程 (不区分大小写，支持部分匹配)
func FindProcess(name string) ([]ProcessInfo, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	name = strings.ToLower(name)
	var matches []ProcessInfo

	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}

		// 无权限或已退出的进程直接跳过
		procName, err := proc.Name()
		if err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(procName), name) {
			exe, _ := proc.Exe()
			matches = append(matches, ProcessInfo{
				PID:  int(pid),
				Name: procName,
				Path: exe,
			})
		}
	}

	return matches, nil
}

// IsRunning 是否存在名称包含 name 的进程
func IsRunning(name string) bool {
	matches, err := FindProcess(name)
	if err != nil {
		logger.Warn("进程检测失败: %v", err)
		return false
	}
	return len(matches) > 0
}

// WaitFor 每隔 interval 检查一次，直到 name 进程出现或 ctx 结束
func WaitFor(ctx context.Context, name string, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if IsRunning(name) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("等待进程 %s 超时: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsProcessRunning 检查 PID 对应的进程是否正在运行
func IsProcessRunning(pid int) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil {
		return false
	}
	return running
}

// Terminate 先发送终止信号，等待 grace 后仍未退出则强制结束
func Terminate(pid int, grace time.Duration) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("进程不存在: PID=%d", pid)
	}

	if err := proc.Terminate(); err != nil {
		logger.Warn("终止进程失败 (PID: %d): %v，尝试强制结束", pid, err)
		return proc.Kill()
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			logger.Info("进程已正常退出 (PID: %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	logger.Warn("等待退出超时，强制结束 (PID: %d)", pid)
	if err := proc.Kill(); err != nil && IsProcessRunning(pid) {
		return fmt.Errorf("强制结束进程失败: %w", err)
	}
	return nil
}

// TerminateByName 终止所有名称包含 name 的进程
func TerminateByName(name string, grace time.Duration) error {
	matches, err := FindProcess(name)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range matches {
		if err := Terminate(p.PID, grace); err != nil {
			errs = append(errs, fmt.Errorf("%s (PID: %d): %w", p.Name, p.PID, err))
		}
	}
	return errors.Join(errs...)
}
