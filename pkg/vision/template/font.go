package template

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/zoeyai/zoeyprobe/internal/logger"
)

// systemFonts 未配置字体或配置的字体不可用时依次尝试
var systemFonts = []string{
	// macOS
	"/System/Library/Fonts/AppleSDGothicNeo.ttc",
	"/Library/Fonts/Arial Unicode.ttf",
	// Windows
	"C:\\Windows\\Fonts\\malgunbd.ttf",
	"C:\\Windows\\Fonts\\malgun.ttf",
	// Linux
	"/usr/share/fonts/truetype/nanum/NanumGothicBold.ttf",
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Bold.ttc",
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
}

// LoadFace 加载字体。单字体文件用 freetype 解析，
// 字体集合 (.ttc) 或 CFF 字体用 opentype 解析。
func LoadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体失败: %w", err)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".ttc") {
		if f, err := truetype.Parse(data); err == nil {
			return truetype.NewFace(f, &truetype.Options{
				Size:    size,
				DPI:     72,
				Hinting: font.HintingFull,
			}), nil
		}
	}

	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体 %s 失败: %w", path, err)
	}
	if coll.NumFonts() == 0 {
		return nil, fmt.Errorf("字体文件 %s 中没有字体", path)
	}
	f, err := coll.Font(0)
	if err != nil {
		return nil, fmt.Errorf("解析字体 %s 失败: %w", path, err)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// resolveFace 依次尝试配置字体、系统字体，最后使用 Go 内置字体（仅拉丁字符）
func resolveFace(path string, size float64) font.Face {
	candidates := systemFonts
	if path != "" {
		candidates = append([]string{path}, systemFonts...)
	}

	for _, p := range candidates {
		face, err := LoadFace(p, size)
		if err == nil {
			if p != path {
				logger.Debug("使用系统字体: %s", p)
			}
			return face
		}
		if p == path {
			logger.Warn("字体 %s 不可用: %v", path, err)
		}
	}

	logger.Warn("未找到可用的 CJK 字体，使用 Go 内置字体，韩文/中文按钮将无法合成")
	f, _ := truetype.Parse(goregular.TTF)
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}
