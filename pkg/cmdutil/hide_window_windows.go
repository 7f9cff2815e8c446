package cmdutil

import (
	"os/exec"
	"syscall"
)

// HideWindow 隐藏 adb 等子进程的控制台窗口
func HideWindow(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}
