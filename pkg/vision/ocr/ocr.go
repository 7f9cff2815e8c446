// Package ocr 在截图中定位文字
//
// 截图经过多轮预处理后交给 OCR 引擎得到单词及其边界框，
// 相邻单词拼接成候选窗口，与目标文字做精确、通配或相似度匹配，
// 命中后把边界框中心换算为设备坐标。
package ocr

import (
	"errors"
	"image"
	"strings"
)

// ErrInvalidTarget 目标文字为空或规范化后为空
var ErrInvalidTarget = errors.New("目标文字无效")

// Token 引擎识别出的一个单词（或一行）
type Token struct {
	Text string `json:"text"`
	// Box 在预处理后图像中的边界框
	Box image.Rectangle `json:"box"`
}

// Blank 文字是否为空白
func (t Token) Blank() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Engine OCR 引擎
type Engine interface {
	// Tokens 识别图片文件，按阅读顺序返回单词
	Tokens(path string) ([]Token, error)
	Close() error
}

// Kind 匹配方式
type Kind string

const (
	KindExact      Kind = "exact"
	KindSimilarity Kind = "similarity"
	KindPattern    Kind = "pattern"
)

// Location 定位结果
type Location struct {
	// X, Y 设备坐标
	X int `json:"x"`
	Y int `json:"y"`
	// Text 命中的原始窗口文字
	Text string `json:"text"`
	// Box 命中窗口在预处理图像中的合并边界框
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"`
	Kind       Kind            `json:"kind"`
	// Pass 命中的预处理轮次
	Pass int `json:"pass"`
}
