package executor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 步骤类型
const (
	StepTapButton      = "tap_button"
	StepTapText        = "tap_text"
	StepFindText       = "find_text"
	StepSwipe          = "swipe"
	StepSwipeUntilText = "swipe_until_text"
	StepSendKeys       = "send_keys"
	StepWait           = "wait"
)

// Case 一个测试用例文件
//
//	name: 로그인
//	stop_on_fail: true
//	steps:
//	  - tap_button: 확인
//	  - tap_text: 로그인
//	    must_exist: false
//	  - swipe_until_text: 설정
//	    direction: up
//	  - send_keys: Enter
//	  - wait: 2s
type Case struct {
	Name       string `yaml:"name"`
	StopOnFail bool   `yaml:"stop_on_fail"`
	Steps      []Step `yaml:"-"`

	SourcePath string `yaml:"-"`
}

// Step 单个步骤
type Step struct {
	ID     string
	Type   string
	Target string
	Line   int

	MustExist *bool
	Delay     *time.Duration

	// 滑动参数
	Direction string
	MaxSwipes int
	Interval  time.Duration

	// wait
	Duration time.Duration
}

// stepFields 步骤中除类型键以外的可选字段
type stepFields struct {
	ID        string         `yaml:"id"`
	MustExist *bool          `yaml:"must_exist"`
	Delay     *time.Duration `yaml:"delay"`
	Direction string         `yaml:"direction"`
	MaxSwipes int            `yaml:"max_swipes"`
	Interval  time.Duration  `yaml:"interval"`
}

var stepTypes = map[string]bool{
	StepTapButton:      true,
	StepTapText:        true,
	StepFindText:       true,
	StepSwipe:          true,
	StepSwipeUntilText: true,
	StepSendKeys:       true,
	StepWait:           true,
}

// ParseError 带位置的解析错误
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadCase 读取用例文件
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取用例文件失败: %w", err)
	}
	return ParseCase(data, path)
}

// ParseCase 解析用例 YAML
func ParseCase(data []byte, sourcePath string) (*Case, error) {
	var doc struct {
		Name       string      `yaml:"name"`
		StopOnFail bool        `yaml:"stop_on_fail"`
		Steps      []yaml.Node `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}
	if len(doc.Steps) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "用例没有步骤"}
	}

	c := &Case{Name: doc.Name, StopOnFail: doc.StopOnFail, SourcePath: sourcePath}
	for i := range doc.Steps {
		step, err := parseStep(&doc.Steps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("%d", i+1)
		}
		c.Steps = append(c.Steps, step)
	}
	return c, nil
}

// parseStep 每个步骤是一个映射，其中恰好一个键为步骤类型，值为目标
func parseStep(node *yaml.Node, path string) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return Step{}, &ParseError{Path: path, Line: node.Line, Message: "步骤必须是映射"}
	}

	step := Step{Line: node.Line}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if !stepTypes[key.Value] {
			continue
		}
		if step.Type != "" {
			return Step{}, &ParseError{Path: path, Line: key.Line,
				Message: fmt.Sprintf("步骤同时包含 %s 和 %s", step.Type, key.Value)}
		}
		if val.Kind != yaml.ScalarNode {
			return Step{}, &ParseError{Path: path, Line: val.Line,
				Message: fmt.Sprintf("%s 的值必须是字符串", key.Value)}
		}
		step.Type = key.Value
		step.Target = val.Value
	}
	if step.Type == "" {
		return Step{}, &ParseError{Path: path, Line: node.Line, Message: "未知的步骤类型"}
	}

	var f stepFields
	if err := node.Decode(&f); err != nil {
		return Step{}, &ParseError{Path: path, Line: node.Line, Message: err.Error()}
	}
	step.ID = f.ID
	step.MustExist = f.MustExist
	step.Delay = f.Delay
	step.Direction = f.Direction
	step.MaxSwipes = f.MaxSwipes
	step.Interval = f.Interval

	switch step.Type {
	case StepWait:
		d, err := time.ParseDuration(step.Target)
		if err != nil || d < 0 {
			return Step{}, &ParseError{Path: path, Line: node.Line,
				Message: fmt.Sprintf("无效的等待时间 %q", step.Target)}
		}
		step.Duration = d
	case StepSwipe:
		// swipe: up 的值就是方向
		step.Direction = step.Target
	case StepSwipeUntilText:
		if step.Direction == "" {
			step.Direction = "up"
		}
	}
	return step, nil
}
