package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/auto"
)

// fakeActions 记录调用，按目标返回预设结果
type fakeActions struct {
	calls   []string
	missing map[string]bool
	errs    map[string]error
}

func (f *fakeActions) find(kind, target string, opts []auto.Option) (bool, error) {
	o := auto.DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	f.calls = append(f.calls, fmt.Sprintf("%s %s must=%v delay=%s", kind, target, o.MustExist, o.Delay))
	if err := f.errs[target]; err != nil {
		return false, err
	}
	if f.missing[target] {
		if o.MustExist {
			return false, auto.ErrTextNotFound
		}
		return false, nil
	}
	return true, nil
}

func (f *fakeActions) TapButton(_ context.Context, label string, opts ...auto.Option) (bool, error) {
	return f.find("tap_button", label, opts)
}

func (f *fakeActions) TapText(_ context.Context, text string, opts ...auto.Option) (bool, error) {
	return f.find("tap_text", text, opts)
}

func (f *fakeActions) FindText(_ context.Context, text string, opts ...auto.Option) (bool, error) {
	return f.find("find_text", text, opts)
}

func (f *fakeActions) Swipe(_ context.Context, direction string) error {
	f.calls = append(f.calls, "swipe "+direction)
	return nil
}

func (f *fakeActions) SwipeUntilText(_ context.Context, text, direction string, maxSwipes int, delay time.Duration) (bool, error) {
	f.calls = append(f.calls, fmt.Sprintf("swipe_until_text %s %s %d %s", text, direction, maxSwipes, delay))
	return !f.missing[text], nil
}

func (f *fakeActions) SendKeys(_ context.Context, value string) error {
	f.calls = append(f.calls, "send_keys "+value)
	return nil
}

const sampleCase = `
name: 로그인
stop_on_fail: false
steps:
  - tap_button: 확인
  - tap_text: 로그인
    must_exist: false
    delay: 0s
  - swipe: down
  - swipe_until_text: 설정
    max_swipes: 3
    interval: 10ms
  - id: enter
    send_keys: Enter
  - wait: 1ms
`

func TestParseCase(t *testing.T) {
	c, err := ParseCase([]byte(sampleCase), "login.yaml")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if c.Name != "로그인" || c.StopOnFail || len(c.Steps) != 6 {
		t.Fatalf("用例解析不正确: %+v", c)
	}

	types := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		types[i] = s.Type
	}
	want := "tap_button tap_text swipe swipe_until_text send_keys wait"
	if got := strings.Join(types, " "); got != want {
		t.Errorf("步骤类型 %q, 期望 %q", got, want)
	}

	if s := c.Steps[1]; s.MustExist == nil || *s.MustExist || s.Delay == nil || *s.Delay != 0 {
		t.Errorf("tap_text 可选字段解析不正确: %+v", s)
	}
	if s := c.Steps[2]; s.Direction != "down" {
		t.Errorf("swipe 方向 %q", s.Direction)
	}
	if s := c.Steps[3]; s.Direction != "up" || s.MaxSwipes != 3 || s.Interval != 10*time.Millisecond {
		t.Errorf("swipe_until_text 参数不正确: %+v", s)
	}
	if c.Steps[0].ID != "1" || c.Steps[4].ID != "enter" {
		t.Errorf("步骤 ID 不正确: %q %q", c.Steps[0].ID, c.Steps[4].ID)
	}
	if c.Steps[5].Duration != time.Millisecond {
		t.Errorf("wait 时间 %s", c.Steps[5].Duration)
	}
}

func TestParseCaseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		line int
	}{
		{"无步骤", "name: x\n", 1},
		{"未知类型", "steps:\n  - click: 확인\n", 2},
		{"多个类型", "steps:\n  - tap_text: a\n    tap_button: b\n", 3},
		{"非映射", "steps:\n  - 확인\n", 2},
		{"无效等待", "steps:\n  - wait: soon\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCase([]byte(tt.yaml), "case.yaml")
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("期望 ParseError, 实际 %v", err)
			}
			if pe.Line != tt.line {
				t.Errorf("错误行号 %d, 期望 %d (%v)", pe.Line, tt.line, pe)
			}
		})
	}
}

func TestLoadCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.yaml")
	if err := os.WriteFile(path, []byte(sampleCase), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCase(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.SourcePath != path {
		t.Errorf("SourcePath %q", c.SourcePath)
	}
	if _, err := LoadCase(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("文件不存在时应返回错误")
	}
}

func TestRunAllSteps(t *testing.T) {
	c, _ := ParseCase([]byte(sampleCase), "login.yaml")
	fa := &fakeActions{missing: map[string]bool{"로그인": true}}

	r := New(fa).Run(context.Background(), c)

	if !r.Success || r.PassedSteps != 5 || r.SkippedSteps != 1 || r.FailedSteps != 0 {
		t.Errorf("结果统计不正确: %+v", r)
	}
	if r.Steps[1].Status != StatusSkipped {
		t.Errorf("可选步骤未找到应为 SKIPPED, 实际 %s", r.Steps[1].Status)
	}

	want := []string{
		"tap_button 확인 must=true delay=1s",
		"tap_text 로그인 must=false delay=0s",
		"swipe down",
		"swipe_until_text 설정 up 3 10ms",
		"send_keys Enter",
	}
	if fmt.Sprint(fa.calls) != fmt.Sprint(want) {
		t.Errorf("调用序列\n%v\n期望\n%v", fa.calls, want)
	}
}

func TestRunStopOnFail(t *testing.T) {
	yamlText := `
name: stop
stop_on_fail: true
steps:
  - tap_button: 확인
  - tap_text: 다음
`
	c, _ := ParseCase([]byte(yamlText), "stop.yaml")
	fa := &fakeActions{missing: map[string]bool{"확인": true}}

	r := New(fa).Run(context.Background(), c)

	if r.Success || r.FailedSteps != 1 || len(r.Steps) != 1 {
		t.Fatalf("应在第一步停止: %+v", r)
	}
	if r.Steps[0].FailureReason != ReasonNotFound {
		t.Errorf("失败原因 %s, 期望 %s", r.Steps[0].FailureReason, ReasonNotFound)
	}
	if len(fa.calls) != 1 {
		t.Errorf("停止后不应继续调用: %v", fa.calls)
	}
	if r.ErrorMessage == "" || strings.Contains(r.ErrorMessage, "部分步骤失败") {
		t.Errorf("停止时应保留失败步骤的错误信息, 实际 %q", r.ErrorMessage)
	}
}

func TestRunStopOnFailLogsSummary(t *testing.T) {
	var buf bytes.Buffer
	logger.Default().SetOutput(&buf)
	t.Cleanup(func() { logger.Default().SetOutput(os.Stdout) })

	c, _ := ParseCase([]byte("name: summary\nstop_on_fail: true\nsteps:\n  - tap_button: 확인\n  - tap_text: 다음\n"), "summary.yaml")
	fa := &fakeActions{missing: map[string]bool{"확인": true}}
	New(fa).Run(context.Background(), c)

	out := buf.String()
	if !strings.Contains(out, "CASE") || !strings.Contains(out, "summary: passed=0, failed=1, skipped=0") {
		t.Errorf("停止的用例也应输出汇总事件: %s", out)
	}
}

func TestRunContinuesWithoutStopOnFail(t *testing.T) {
	yamlText := `
steps:
  - tap_button: 확인
  - swipe_until_text: 없음
  - send_keys: Back
`
	c, _ := ParseCase([]byte(yamlText), "go.yaml")
	fa := &fakeActions{
		missing: map[string]bool{"없음": true},
		errs:    map[string]error{"확인": fmt.Errorf("截图: %w", auto.ErrCaptureFailed)},
	}

	r := New(fa).Run(context.Background(), c)

	if r.Success || r.FailedSteps != 2 || r.PassedSteps != 1 {
		t.Fatalf("结果统计不正确: %+v", r)
	}
	if r.Steps[0].FailureReason != ReasonCaptureFailed {
		t.Errorf("期望 %s, 实际 %s", ReasonCaptureFailed, r.Steps[0].FailureReason)
	}
	if r.Steps[1].FailureReason != ReasonNotFound {
		t.Errorf("滑动未找到应为 %s, 实际 %s", ReasonNotFound, r.Steps[1].FailureReason)
	}
	if !strings.Contains(r.ErrorMessage, "2/3") {
		t.Errorf("错误信息 %q", r.ErrorMessage)
	}
}

func TestRunCancelled(t *testing.T) {
	c, _ := ParseCase([]byte(sampleCase), "login.yaml")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(&fakeActions{}).Run(ctx, c)
	if r.Success || len(r.Steps) != 0 {
		t.Errorf("已取消的 ctx 不应执行任何步骤: %+v", r)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status string
		reason string
	}{
		{auto.ErrTextNotFound, StatusFailed, ReasonNotFound},
		{fmt.Errorf("x: %w", auto.ErrInvalidInput), StatusFailed, ReasonParamError},
		{auto.ErrSynthesisFailed, StatusFailed, ReasonSynthesisFailed},
		{context.DeadlineExceeded, StatusTimeout, ""},
		{errors.New("adb 崩溃"), StatusFailed, ReasonSystemError},
	}
	for _, tt := range tests {
		status, reason := classifyError(tt.err)
		if status != tt.status || reason != tt.reason {
			t.Errorf("%v: 期望 %s/%s, 实际 %s/%s", tt.err, tt.status, tt.reason, status, reason)
		}
	}
}

func TestWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	r := &CaseExecutionResult{Name: "로그인", Success: true, TotalSteps: 1, PassedSteps: 1,
		Steps: []*StepExecutionResult{{StepID: "1", Type: StepTapButton, Target: "확인", Status: StatusSuccess}}}
	if err := WriteResult(path, r); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back["name"] != "로그인" || back["passedSteps"] != float64(1) {
		t.Errorf("结果文件内容不正确: %s", data)
	}
}
