//go:build !darwin

package desktop

// CheckPermissions 非 macOS 不需要额外授权
func CheckPermissions() PermissionStatus {
	return PermissionStatus{Accessibility: true, ScreenRecording: true}
}

// OpenSettings 非 macOS 无操作
func OpenSettings(PermissionStatus) {}
