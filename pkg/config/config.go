// Package config 提供测试工具的配置定义与持久化
//
// 配置文件支持 JSON 与 YAML 两种格式，按扩展名区分:
//
//	m := config.NewManagerWithFile("probe.yaml")
//	cfg, err := m.Load()
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DeviceConfig 设备连接配置
type DeviceConfig struct {
	// Driver 设备驱动: adb 或 desktop
	Driver string `json:"driver" yaml:"driver"`
	// ADBPath adb 可执行文件路径
	ADBPath string `json:"adb_path" yaml:"adb_path"`
	// Serial 设备序列号，为空时自动检测
	Serial string `json:"serial" yaml:"serial"`
	// EmulatorPort 模拟器 adb connect 端口
	EmulatorPort int `json:"emulator_port" yaml:"emulator_port"`
	// EmulatorProcess 模拟器进程名（用于检测是否在运行）
	EmulatorProcess string `json:"emulator_process" yaml:"emulator_process"`
	// EmulatorLauncher 模拟器未运行时执行的启动程序，为空时不自动启动
	EmulatorLauncher string `json:"emulator_launcher,omitempty" yaml:"emulator_launcher,omitempty"`
	// ScreenshotPath 截图保存路径
	ScreenshotPath string `json:"screenshot_path" yaml:"screenshot_path"`
	// ResizeFactor 无法获取设备分辨率时使用的手动缩放系数
	ResizeFactor float64 `json:"resize_factor" yaml:"resize_factor"`
}

// TemplateConfig 按钮模板配置
type TemplateConfig struct {
	// Backend 模板缓存后端: disk, memory, sqlite
	Backend string `json:"backend" yaml:"backend"`
	// Dir 模板目录（disk 后端）
	Dir string `json:"dir" yaml:"dir"`
	// DBPath SQLite 文件路径（sqlite 后端）
	DBPath string `json:"db_path" yaml:"db_path"`
	// FontPath 合成模板使用的字体
	FontPath string `json:"font_path" yaml:"font_path"`
	// FontSize 参考字号
	FontSize float64 `json:"font_size" yaml:"font_size"`
	// Padding 文字四周留白
	Padding int `json:"padding" yaml:"padding"`
	// MatchThreshold 模板匹配阈值
	MatchThreshold float64 `json:"match_threshold" yaml:"match_threshold"`
	// Gray 是否使用灰度匹配
	Gray bool `json:"gray" yaml:"gray"`
}

// PassConfig 单次 OCR 预处理参数
type PassConfig struct {
	Invert    bool    `json:"invert" yaml:"invert"`
	Threshold bool    `json:"threshold" yaml:"threshold"`
	Resize    float64 `json:"resize" yaml:"resize"`
}

// OCRConfig 文字识别配置
type OCRConfig struct {
	// Engine OCR 引擎: tesseract 或 paddle
	Engine string `json:"engine" yaml:"engine"`
	// Languages tesseract 语言
	Languages []string `json:"languages" yaml:"languages"`
	// SimilarityThreshold 模糊匹配阈值
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	// Passes 预处理步骤，为空时使用默认三步
	Passes []PassConfig `json:"passes,omitempty" yaml:"passes,omitempty"`

	// PaddleOCR 模型路径，为空时自动查找
	OnnxRuntimeLibPath string `json:"onnx_runtime_lib_path,omitempty" yaml:"onnx_runtime_lib_path,omitempty"`
	DetModelPath       string `json:"det_model_path,omitempty" yaml:"det_model_path,omitempty"`
	RecModelPath       string `json:"rec_model_path,omitempty" yaml:"rec_model_path,omitempty"`
	DictPath           string `json:"dict_path,omitempty" yaml:"dict_path,omitempty"`
}

// AppConfig 被测应用
type AppConfig struct {
	Package  string `json:"package" yaml:"package"`
	Activity string `json:"activity,omitempty" yaml:"activity,omitempty"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	Console bool   `json:"console" yaml:"console"`
	File    string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Config 完整配置
type Config struct {
	Device   DeviceConfig   `json:"device" yaml:"device"`
	Template TemplateConfig `json:"template" yaml:"template"`
	OCR      OCRConfig      `json:"ocr" yaml:"ocr"`
	App      AppConfig      `json:"app" yaml:"app"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Driver:          "adb",
			ADBPath:         "adb",
			EmulatorPort:    6520,
			EmulatorProcess: "crosvm",
			ScreenshotPath:  "screen.png",
			ResizeFactor:    1.0,
		},
		Template: TemplateConfig{
			Backend:        "disk",
			Dir:            "button_image",
			DBPath:         "button_image/templates.db",
			FontPath:       "NotoSansKR-Bold.ttf",
			FontSize:       36,
			Padding:        10,
			MatchThreshold: 0.7,
		},
		OCR: OCRConfig{
			Engine:              "tesseract",
			Languages:           []string{"kor", "eng"},
			SimilarityThreshold: 0.8,
		},
		Log: LogConfig{
			Level:   "INFO",
			Console: true,
		},
	}
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	var errs []error

	switch c.Device.Driver {
	case "adb", "desktop":
	default:
		errs = append(errs, fmt.Errorf("未知的设备驱动: %q", c.Device.Driver))
	}
	switch c.Template.Backend {
	case "disk", "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("未知的模板后端: %q", c.Template.Backend))
	}
	switch c.OCR.Engine {
	case "tesseract", "paddle":
	default:
		errs = append(errs, fmt.Errorf("未知的 OCR 引擎: %q", c.OCR.Engine))
	}
	if c.Template.MatchThreshold <= 0 || c.Template.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("匹配阈值超出 (0,1]: %v", c.Template.MatchThreshold))
	}
	if c.OCR.SimilarityThreshold <= 0 || c.OCR.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("相似度阈值超出 (0,1]: %v", c.OCR.SimilarityThreshold))
	}
	if c.Template.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("字号必须大于 0: %v", c.Template.FontSize))
	}
	if c.Device.ResizeFactor <= 0 {
		errs = append(errs, fmt.Errorf("缩放系数必须大于 0: %v", c.Device.ResizeFactor))
	}
	for i, p := range c.OCR.Passes {
		if p.Resize <= 0 {
			errs = append(errs, fmt.Errorf("预处理步骤 %d 的放大倍率必须大于 0: %v", i, p.Resize))
		}
	}

	return errors.Join(errs...)
}

// Manager 配置管理器
type Manager struct {
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建使用 ~/.zoeyprobe/config.yaml 的配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewManagerWithFile(filepath.Join(homeDir, ".zoeyprobe", "config.yaml"))
}

// NewManagerWithFile 使用指定文件创建配置管理器
func NewManagerWithFile(path string) *Manager {
	return &Manager{configFile: path}
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configFile))
	return ext == ".yaml" || ext == ".yml"
}

// Load 加载配置，文件不存在时返回默认配置。
// 文件中缺失的字段保留默认值。
func (m *Manager) Load() (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := Default()
	data, err := os.ReadFile(m.configFile)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if m.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return Default(), fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("配置无效: %w", err)
	}
	return cfg, nil
}

// Save 保存配置
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if m.isYAML() {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}
