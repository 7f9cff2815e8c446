// Package session 保存一次测试会话内的设备状态
//
// 设备分辨率、序列号、设备类型和正在进行的录屏句柄都在这里，
// 由调用方显式 Init / Reset，不做持久化。
package session

import (
	"context"
	"sync"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/device"
)

// DeviceType 设备类型
type DeviceType string

const (
	TypeUnknown  DeviceType = ""
	TypeEmulator DeviceType = "emulator"
	TypeDevice   DeviceType = "device"
)

// Recording 正在进行的录屏
type Recording interface {
	// Stop 结束录屏并把文件拉取到 localDir，返回本地路径
	Stop(ctx context.Context, localDir string) (string, error)
}

// Session 会话状态
type Session struct {
	mu           sync.RWMutex
	resolution   device.Resolution
	serial       string
	deviceType   DeviceType
	resizeFactor float64
	recording    Recording
}

// New 创建会话，resizeFactor 为分辨率未知时的缩放系数
func New(resizeFactor float64) *Session {
	if resizeFactor <= 0 {
		resizeFactor = 1.0
	}
	return &Session{resizeFactor: resizeFactor}
}

// Init 查询并记录设备分辨率。查询失败只记录警告，后续使用缩放系数。
func (s *Session) Init(ctx context.Context, r device.Resolver) {
	res, err := r.Resolution(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil || !res.Known() {
		logger.Warn("获取设备分辨率失败，使用缩放系数 %.2f: %v", s.resizeFactor, err)
		s.resolution = device.Resolution{}
		return
	}
	s.resolution = res
	logger.Info("设备分辨率: %s", res)
}

// Reset 清空会话状态，缩放系数保留
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolution = device.Resolution{}
	s.serial = ""
	s.deviceType = TypeUnknown
	s.recording = nil
}

// Resolution 最近一次获取的设备分辨率
func (s *Session) Resolution() device.Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolution
}

// SetResolution 直接设置分辨率
func (s *Session) SetResolution(res device.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolution = res
}

// SetDevice 记录连接的设备
func (s *Session) SetDevice(serial string, t DeviceType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial = serial
	s.deviceType = t
}

// Serial 设备序列号
func (s *Session) Serial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serial
}

// DeviceType 设备类型
func (s *Session) DeviceType() DeviceType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceType
}

// ResizeFactor 手动缩放系数
func (s *Session) ResizeFactor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resizeFactor
}

// SetResizeFactor 设置手动缩放系数，非正数忽略
func (s *Session) SetResizeFactor(f float64) {
	if f <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeFactor = f
}

// SetRecording 记录正在进行的录屏
func (s *Session) SetRecording(r Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = r
}

// TakeRecording 取出并清除录屏句柄
func (s *Session) TakeRecording() (Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recording
	s.recording = nil
	return r, r != nil
}
