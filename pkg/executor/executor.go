// Package executor 按 YAML 用例顺序执行测试步骤
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zoeyai/zoeyprobe/internal/logger"
	"github.com/zoeyai/zoeyprobe/pkg/auto"
)

// 步骤状态
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
	StatusTimeout = "TIMEOUT"
)

// 失败原因
const (
	ReasonNotFound        = "NOT_FOUND"
	ReasonParamError      = "PARAM_ERROR"
	ReasonCaptureFailed   = "CAPTURE_FAILED"
	ReasonSynthesisFailed = "SYNTHESIS_FAILED"
	ReasonSystemError     = "SYSTEM_ERROR"
)

// Actions 步骤可调用的动作，*auto.Harness 实现了它
type Actions interface {
	TapButton(ctx context.Context, label string, opts ...auto.Option) (bool, error)
	TapText(ctx context.Context, text string, opts ...auto.Option) (bool, error)
	FindText(ctx context.Context, text string, opts ...auto.Option) (bool, error)
	Swipe(ctx context.Context, direction string) error
	SwipeUntilText(ctx context.Context, text, direction string, maxSwipes int, delay time.Duration) (bool, error)
	SendKeys(ctx context.Context, value string) error
}

var _ Actions = (*auto.Harness)(nil)

// StepExecutionResult 步骤执行结果
type StepExecutionResult struct {
	StepID        string `json:"stepId"`
	Type          string `json:"type"`
	Target        string `json:"target"`
	Status        string `json:"status"`
	DurationMs    int64  `json:"durationMs"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	// Screenshot 失败时保存的截图
	Screenshot string `json:"screenshot,omitempty"`
}

// CaseExecutionResult 用例执行结果
type CaseExecutionResult struct {
	Name         string                 `json:"name"`
	Success      bool                   `json:"success"`
	TotalSteps   int                    `json:"totalSteps"`
	PassedSteps  int                    `json:"passedSteps"`
	FailedSteps  int                    `json:"failedSteps"`
	SkippedSteps int                    `json:"skippedSteps"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	DurationMs   int64                  `json:"durationMs"`
	Steps        []*StepExecutionResult `json:"steps"`
}

// Executor 用例执行器
type Executor struct {
	actions         Actions
	evidenceDir     string
	evidenceQuality int
}

// New 创建执行器
func New(actions Actions, opts ...Option) *Executor {
	e := &Executor{actions: actions, evidenceQuality: defaultEvidenceQuality}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// classifyError 按错误类型归类为状态和失败原因
func classifyError(err error) (status, reason string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout, ""
	case errors.Is(err, auto.ErrTextNotFound):
		return StatusFailed, ReasonNotFound
	case errors.Is(err, auto.ErrInvalidInput):
		return StatusFailed, ReasonParamError
	case errors.Is(err, auto.ErrCaptureFailed):
		return StatusFailed, ReasonCaptureFailed
	case errors.Is(err, auto.ErrSynthesisFailed):
		return StatusFailed, ReasonSynthesisFailed
	default:
		return StatusFailed, ReasonSystemError
	}
}

// Run 顺序执行用例的所有步骤。
// StopOnFail 时遇到失败立即停止，ctx 取消时也会停止。
func (e *Executor) Run(ctx context.Context, c *Case) *CaseExecutionResult {
	start := time.Now()
	result := &CaseExecutionResult{
		Name:       c.Name,
		Success:    true,
		TotalSteps: len(c.Steps),
	}

	logger.Info("用例 %q 开始，共 %d 个步骤", c.Name, len(c.Steps))

steps:
	for i, step := range c.Steps {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.ErrorMessage = err.Error()
			break
		}

		logger.Info("执行步骤 %d/%d: %s (%s %q)", i+1, len(c.Steps), step.ID, step.Type, step.Target)
		sr := e.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)

		switch sr.Status {
		case StatusSuccess:
			result.PassedSteps++
		case StatusSkipped:
			result.SkippedSteps++
		default:
			result.FailedSteps++
			logger.Error("步骤 %s 执行失败: %s", step.ID, sr.ErrorMessage)
			if shot, err := e.saveEvidence(c.Name, step.ID); err != nil {
				logger.Warn("保存失败截图失败: %v", err)
			} else if shot != "" {
				sr.Screenshot = shot
			}
			if c.StopOnFail {
				logger.Info("stop_on_fail=true，停止执行")
				result.ErrorMessage = sr.ErrorMessage
				break steps
			}
		}
	}

	if result.FailedSteps > 0 {
		result.Success = false
		if result.ErrorMessage == "" {
			result.ErrorMessage = fmt.Sprintf("部分步骤失败: %d/%d", result.FailedSteps, result.TotalSteps)
		}
	}
	result.DurationMs = time.Since(start).Milliseconds()

	logger.LogEvent("CASE", result.Success, logger.Since(start),
		fmt.Sprintf("%s: passed=%d, failed=%d, skipped=%d", c.Name, result.PassedSteps, result.FailedSteps, result.SkippedSteps))
	return result
}

func (e *Executor) runStep(ctx context.Context, step Step) *StepExecutionResult {
	start := time.Now()
	sr := &StepExecutionResult{StepID: step.ID, Type: step.Type, Target: step.Target}

	found, err := e.dispatch(ctx, step)
	sr.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		sr.Status, sr.FailureReason = classifyError(err)
		sr.ErrorMessage = err.Error()
	case found:
		sr.Status = StatusSuccess
	case mustExist(step):
		sr.Status = StatusFailed
		sr.FailureReason = ReasonNotFound
		sr.ErrorMessage = fmt.Sprintf("未找到 %q", step.Target)
	default:
		sr.Status = StatusSkipped
	}
	return sr
}

// dispatch 执行步骤，返回目标是否找到
func (e *Executor) dispatch(ctx context.Context, step Step) (bool, error) {
	opts := stepOptions(step)
	switch step.Type {
	case StepTapButton:
		return e.actions.TapButton(ctx, step.Target, opts...)
	case StepTapText:
		return e.actions.TapText(ctx, step.Target, opts...)
	case StepFindText:
		return e.actions.FindText(ctx, step.Target, opts...)
	case StepSwipe:
		return true, e.actions.Swipe(ctx, step.Direction)
	case StepSwipeUntilText:
		interval := step.Interval
		if interval <= 0 {
			interval = auto.DefaultSwipeDelay
		}
		return e.actions.SwipeUntilText(ctx, step.Target, step.Direction, step.MaxSwipes, interval)
	case StepSendKeys:
		return true, e.actions.SendKeys(ctx, step.Target)
	case StepWait:
		return true, wait(ctx, step.Duration)
	}
	return false, fmt.Errorf("%w: 未知的步骤类型 %q", auto.ErrInvalidInput, step.Type)
}

func stepOptions(step Step) []auto.Option {
	var opts []auto.Option
	if step.MustExist != nil {
		opts = append(opts, auto.WithMustExist(*step.MustExist))
	}
	if step.Delay != nil {
		opts = append(opts, auto.WithDelay(*step.Delay))
	}
	return opts
}

func mustExist(step Step) bool {
	return step.MustExist == nil || *step.MustExist
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteResult 以 JSON 保存执行结果
func WriteResult(path string, r *CaseExecutionResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化执行结果失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建结果目录失败: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
