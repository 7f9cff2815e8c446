package ocr

import (
	"image"
	"image/color"
	"path/filepath"
	"runtime"
	"testing"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/pkg/session"
)

// projectRoot ocr_test.go -> ocr -> vision -> pkg -> 根目录
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "..")
}

// writeTextScreen 白底黑字截图
func writeTextScreen(t *testing.T, text string) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 200, 600, gocv.MatTypeCV8UC3)
	defer img.Close()
	gocv.PutText(&img, text, image.Pt(40, 120), gocv.FontHersheySimplex, 2.0, color.RGBA{A: 255}, 4)

	path := filepath.Join(t.TempDir(), "screen.png")
	if !gocv.IMWrite(path, img) {
		t.Fatalf("写入截图失败")
	}
	return path
}

func TestTesseractEngine(t *testing.T) {
	engine, err := NewTesseractEngine("eng")
	if err != nil {
		t.Skipf("Tesseract 不可用: %v", err)
	}
	defer engine.Close()

	screen := writeTextScreen(t, "Settings")
	tokens, err := engine.Tokens(screen)
	if err != nil {
		t.Skipf("Tesseract 识别失败: %v", err)
	}
	t.Logf("识别到 %d 个单词: %+v", len(tokens), tokens)

	l := NewLocator(engine, session.New(1.0))
	loc, found, err := l.Locate(screen, "Settings")
	if err != nil {
		t.Fatalf("Locate 失败: %v", err)
	}
	if !found {
		t.Skipf("当前 Tesseract 数据未识别出 Settings: %+v", tokens)
	}
	if loc.X < 40 || loc.X > 560 || loc.Y < 60 || loc.Y > 140 {
		t.Errorf("坐标 (%d, %d) 不在文字区域内", loc.X, loc.Y)
	}
}

func TestTesseractEngineClosed(t *testing.T) {
	engine, err := NewTesseractEngine("eng")
	if err != nil {
		t.Skipf("Tesseract 不可用: %v", err)
	}
	engine.Close()
	if _, err := engine.Tokens("screen.png"); err == nil {
		t.Error("关闭后调用应返回错误")
	}
	if err := engine.Close(); err != nil {
		t.Errorf("重复关闭不应报错: %v", err)
	}
}

func TestPaddleEngine(t *testing.T) {
	root := projectRoot()
	cfg := PaddleConfig{
		OnnxRuntimeLibPath: filepath.Join(root, "models", "lib", "onnxruntime_"+runtime.GOARCH+".so"),
		DetModelPath:       filepath.Join(root, "models", "paddle_weights", "det.onnx"),
		RecModelPath:       filepath.Join(root, "models", "paddle_weights", "rec.onnx"),
		DictPath:           filepath.Join(root, "models", "paddle_weights", "dict.txt"),
	}
	if runtime.GOOS == "darwin" {
		cfg.OnnxRuntimeLibPath = filepath.Join(root, "models", "lib", "onnxruntime_"+runtime.GOARCH+".dylib")
	}
	if !cfg.Available() {
		t.Skip("PaddleOCR 模型文件不存在")
	}

	engine, err := NewPaddleEngine(cfg)
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	defer engine.Close()

	tokens, err := engine.Tokens(writeTextScreen(t, "LOGIN"))
	if err != nil {
		t.Fatalf("识别失败: %v", err)
	}
	if len(tokens) == 0 {
		t.Fatal("未识别到文字")
	}
	for _, tk := range tokens {
		if tk.Box.Empty() {
			t.Errorf("边界框为空: %+v", tk)
		}
	}
}

func TestPaddleConfigDefaults(t *testing.T) {
	cfg := PaddleConfig{DictPath: "custom.txt"}.withDefaults()
	if cfg.DictPath != "custom.txt" {
		t.Errorf("已配置的路径不应被覆盖: %s", cfg.DictPath)
	}
	if cfg.DetModelPath == "" || cfg.RecModelPath == "" || cfg.OnnxRuntimeLibPath == "" {
		t.Errorf("未配置的路径应有默认值: %+v", cfg)
	}
}

func TestTokenBlank(t *testing.T) {
	if !(Token{Text: " \t"}).Blank() {
		t.Error("空白单词应为 Blank")
	}
	if (Token{Text: "a"}).Blank() {
		t.Error("非空单词不应为 Blank")
	}
}
