package auto

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/config"
	"github.com/zoeyai/zoeyprobe/pkg/device"
	"github.com/zoeyai/zoeyprobe/pkg/device/adb"
	"github.com/zoeyai/zoeyprobe/pkg/device/desktop"
	"github.com/zoeyai/zoeyprobe/pkg/session"
	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
	"github.com/zoeyai/zoeyprobe/pkg/vision/ocr"
	"github.com/zoeyai/zoeyprobe/pkg/vision/template"
)

// NewDevice 按配置创建设备
func NewDevice(cfg config.DeviceConfig, sess *session.Session) device.Device {
	if cfg.Driver == "desktop" {
		return desktop.New()
	}
	return adb.New(sess,
		adb.WithADBPath(cfg.ADBPath),
		adb.WithSerial(cfg.Serial),
		adb.WithEmulatorPort(cfg.EmulatorPort),
	)
}

// OpenCache 按配置打开模板缓存。返回的 io.Closer 可能为 nil。
func OpenCache(cfg config.TemplateConfig) (template.Cache, io.Closer, error) {
	switch cfg.Backend {
	case "memory":
		c := template.NewMemoryCache()
		return c, c, nil
	case "sqlite":
		c, err := template.OpenSQLiteCache(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		c, err := template.NewDiskCache(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	}
}

// OpenEngine 按配置创建 OCR 引擎
func OpenEngine(cfg config.OCRConfig) (ocr.Engine, error) {
	if cfg.Engine == "paddle" {
		return ocr.NewPaddleEngine(ocr.PaddleConfig{
			OnnxRuntimeLibPath: cfg.OnnxRuntimeLibPath,
			DetModelPath:       cfg.DetModelPath,
			RecModelPath:       cfg.RecModelPath,
			DictPath:           cfg.DictPath,
		})
	}
	return ocr.NewTesseractEngine(cfg.Languages...)
}

// Passes 配置中的预处理步骤，为空时使用默认值
func Passes(cfg config.OCRConfig) []ocr.Pass {
	if len(cfg.Passes) == 0 {
		return ocr.DefaultPasses()
	}
	passes := make([]ocr.Pass, len(cfg.Passes))
	for i, p := range cfg.Passes {
		passes[i] = ocr.Pass{Invert: p.Invert, Threshold: p.Threshold, Resize: p.Resize}
	}
	return passes
}

// NewFromConfig 按配置组装全部组件。设备连接和会话初始化由调用方完成。
func NewFromConfig(cfg *config.Config) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	sess := session.New(cfg.Device.ResizeFactor)
	dev := NewDevice(cfg.Device, sess)

	cache, cacheCloser, err := OpenCache(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("打开模板缓存失败: %w", err)
	}
	var closers []io.Closer
	if cacheCloser != nil {
		closers = append(closers, cacheCloser)
	}

	engine, err := OpenEngine(cfg.OCR)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, fmt.Errorf("初始化 OCR 失败: %w", err)
	}
	closers = append(closers, engine)

	matcher := cv.NewMatcher(
		cv.WithThreshold(cfg.Template.MatchThreshold),
		cv.WithGray(cfg.Template.Gray),
	)
	store := template.NewStore(cache, matcher)
	synth := template.NewSynthesizer(store, matcher,
		template.WithFont(cfg.Template.FontPath),
		template.WithFontSize(cfg.Template.FontSize),
		template.WithPadding(cfg.Template.Padding),
	)
	locator := ocr.NewLocator(engine, sess,
		ocr.WithPasses(Passes(cfg.OCR)...),
		ocr.WithSimilarity(cfg.OCR.SimilarityThreshold),
	)

	logger.Debug("设备 %s, 模板后端 %s (%s), OCR 引擎 %s",
		cfg.Device.Driver, cfg.Template.Backend, filepath.Clean(cfg.Template.Dir), cfg.OCR.Engine)

	return New(Deps{
		Device:      dev,
		Session:     sess,
		Matcher:     matcher,
		Store:       store,
		Synthesizer: synth,
		Locator:     locator,
		ScreenPath:  cfg.Device.ScreenshotPath,
		Closers:     closers,
	})
}
