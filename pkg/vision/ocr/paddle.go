package ocr

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	goocr "github.com/getcharzp/go-ocr"
	"gocv.io/x/gocv"
)

// PaddleConfig PaddleOCR 模型配置
type PaddleConfig struct {
	// OnnxRuntimeLibPath ONNX Runtime 动态库路径
	OnnxRuntimeLibPath string
	// DetModelPath 检测模型路径
	DetModelPath string
	// RecModelPath 识别模型路径
	RecModelPath string
	// DictPath 字典文件路径
	DictPath string
}

// DefaultPaddleConfig 在可执行文件旁和当前目录下查找模型
func DefaultPaddleConfig() PaddleConfig {
	return PaddleConfig{
		OnnxRuntimeLibPath: defaultOnnxRuntimePath(),
		DetModelPath:       defaultModelPath("det.onnx"),
		RecModelPath:       defaultModelPath("rec.onnx"),
		DictPath:           defaultModelPath("dict.txt"),
	}
}

// withDefaults 未配置的路径使用默认查找结果
func (c PaddleConfig) withDefaults() PaddleConfig {
	d := DefaultPaddleConfig()
	if c.OnnxRuntimeLibPath == "" {
		c.OnnxRuntimeLibPath = d.OnnxRuntimeLibPath
	}
	if c.DetModelPath == "" {
		c.DetModelPath = d.DetModelPath
	}
	if c.RecModelPath == "" {
		c.RecModelPath = d.RecModelPath
	}
	if c.DictPath == "" {
		c.DictPath = d.DictPath
	}
	return c
}

// Available 模型文件是否齐全
func (c PaddleConfig) Available() bool {
	for _, p := range []string{c.OnnxRuntimeLibPath, c.DetModelPath, c.RecModelPath, c.DictPath} {
		if !fileExists(p) {
			return false
		}
	}
	return true
}

// PaddleEngine 基于 PaddleOCR ONNX 模型的行级识别，每行作为一个 Token
type PaddleEngine struct {
	mu     sync.Mutex
	engine goocr.Engine
}

var _ Engine = (*PaddleEngine)(nil)

// NewPaddleEngine 加载模型
func NewPaddleEngine(cfg PaddleConfig) (*PaddleEngine, error) {
	cfg = cfg.withDefaults()
	engine, err := goocr.NewPaddleOcrEngine(goocr.Config{
		OnnxRuntimeLibPath: cfg.OnnxRuntimeLibPath,
		DetModelPath:       cfg.DetModelPath,
		RecModelPath:       cfg.RecModelPath,
		DictPath:           cfg.DictPath,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 OCR 引擎失败: %w", err)
	}
	return &PaddleEngine{engine: engine}, nil
}

// Tokens 识别图片文件
func (e *PaddleEngine) Tokens(path string) ([]Token, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("无法读取图像: %s", path)
	}
	img, err := mat.ToImage()
	mat.Close()
	if err != nil {
		return nil, fmt.Errorf("图像转换失败: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine == nil {
		return nil, fmt.Errorf("OCR 引擎已关闭")
	}
	results, err := e.engine.RunOCR(img)
	if err != nil {
		return nil, fmt.Errorf("OCR 识别失败: %w", err)
	}

	tokens := make([]Token, 0, len(results))
	for _, r := range results {
		// Box: x1, y1, x2, y2
		tokens = append(tokens, Token{
			Text: r.Text,
			Box:  image.Rect(r.Box[0], r.Box[1], r.Box[2], r.Box[3]),
		})
	}
	return tokens, nil
}

// Close 释放模型
func (e *PaddleEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine != nil {
		e.engine.Destroy()
		e.engine = nil
	}
	return nil
}

// executableDir 可执行文件所在目录
func executableDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

// resourcesDir macOS .app 包内为 Contents/Resources，其他情况与可执行文件同目录
func resourcesDir() string {
	execDir := executableDir()
	if runtime.GOOS == "darwin" {
		dir := filepath.Join(execDir, "..", "Resources")
		if fileExists(dir) {
			return dir
		}
	}
	return execDir
}

func defaultOnnxRuntimePath() string {
	execDir := executableDir()
	resDir := resourcesDir()

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			filepath.Join(execDir, "..", "Frameworks", "libonnxruntime.dylib"),
			filepath.Join(execDir, "libonnxruntime.dylib"),
			filepath.Join(resDir, "lib", "onnxruntime_"+runtime.GOARCH+".dylib"),
			filepath.Join("models", "lib", "onnxruntime_"+runtime.GOARCH+".dylib"),
		}
	case "windows":
		paths = []string{
			filepath.Join(execDir, "onnxruntime.dll"),
			filepath.Join(resDir, "onnxruntime.dll"),
			filepath.Join("models", "lib", "onnxruntime.dll"),
		}
	default:
		paths = []string{
			filepath.Join(execDir, "libonnxruntime.so"),
			filepath.Join(resDir, "lib", "onnxruntime_"+runtime.GOARCH+".so"),
			filepath.Join("models", "lib", "onnxruntime_"+runtime.GOARCH+".so"),
		}
	}

	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return paths[len(paths)-1]
}

func defaultModelPath(name string) string {
	paths := []string{
		filepath.Join(resourcesDir(), "models", "paddle_weights", name),
		filepath.Join(executableDir(), "models", "paddle_weights", name),
		filepath.Join("models", "paddle_weights", name),
	}
	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return paths[0]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
