package ocr

import (
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine 基于 Tesseract 的单词级识别
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

var _ Engine = (*TesseractEngine)(nil)

// NewTesseractEngine 创建引擎，languages 为空时使用 kor+eng
func NewTesseractEngine(languages ...string) (*TesseractEngine, error) {
	if len(languages) == 0 {
		languages = []string{"kor", "eng"}
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("设置 OCR 语言失败: %w", err)
	}
	return &TesseractEngine{client: client}, nil
}

// Tokens 返回单词及边界框
func (e *TesseractEngine) Tokens(path string) ([]Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil, fmt.Errorf("OCR 引擎已关闭")
	}
	if err := e.client.SetImage(path); err != nil {
		return nil, fmt.Errorf("加载图像失败: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR 识别失败: %w", err)
	}

	tokens := make([]Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, Token{Text: b.Word, Box: b.Box})
	}
	return tokens, nil
}

// Close 释放 Tesseract 实例
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
