package auto

import "time"

// 默认参数
const (
	DefaultDelay      = time.Second
	DefaultMaxSwipes  = 5
	DefaultSwipeDelay = 500 * time.Millisecond
)

// Options 单次操作配置
type Options struct {
	// MustExist 未找到时返回 ErrTextNotFound，否则返回 false
	MustExist bool
	// Delay 点击后的等待时间
	Delay time.Duration
}

// Option 配置函数
type Option func(*Options)

// DefaultOptions 默认必须存在，点击后等待 1 秒
func DefaultOptions() *Options {
	return &Options{
		MustExist: true,
		Delay:     DefaultDelay,
	}
}

func applyOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMustExist 设置未找到时是否报错
func WithMustExist(v bool) Option {
	return func(o *Options) {
		o.MustExist = v
	}
}

// WithDelay 设置点击后的等待时间
func WithDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.Delay = d
		}
	}
}
