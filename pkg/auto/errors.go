package auto

import (
	"errors"
	"fmt"

	"github.com/zoeyai/zoeyprobe/pkg/vision/template"
)

// 错误类型，用 errors.Is 判断
var (
	// ErrCaptureFailed 截图失败，总是致命
	ErrCaptureFailed = errors.New("截图失败")
	// ErrSynthesisFailed 所有缩放比例都无法生成可用模板
	ErrSynthesisFailed = template.ErrSynthesisFailed
	// ErrTextNotFound 要求必须存在的按钮或文字没有找到
	ErrTextNotFound = errors.New("未找到")
	// ErrInvalidInput 标签、文字或方向无效
	ErrInvalidInput = errors.New("参数无效")
)

// Error 携带目标的错误
type Error struct {
	// Kind 上面的错误类型之一
	Kind error
	// Target 按钮标签或文字
	Target string
	// Err 底层错误，可为 nil
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v %q: %v", e.Kind, e.Target, e.Err)
	}
	return fmt.Sprintf("%v: %q", e.Kind, e.Target)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, target string, err error) *Error {
	return &Error{Kind: kind, Target: target, Err: err}
}
