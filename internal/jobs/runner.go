package jobs

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
)

// TaskFunc は呼び出し側が用意する処理本体です。直列化可能なプリミティブ
// のみで構成された結果マップを返すか、エラーを返します。
type TaskFunc func(ctx context.Context) (map[string]any, error)

// Coder を実装したエラーは失敗時の分類コードとして利用されます。
type Coder interface {
	ErrorCode() string
}

// Runner は処理本体をバックグラウンドのゴルーチンで実行し、
// その結末をちょうど1回の終端遷移（MarkCompleted / MarkFailed）に
// 変換します。呼び出し元はジョブIDを受け取った時点で応答を返せます。
type Runner struct {
	manager *Manager
	logger  *log.Logger
}

// NewRunner は Runner を作成します。logger は nil でも構いません。
func NewRunner(manager *Manager, logger *log.Logger) *Runner {
	return &Runner{manager: manager, logger: logger}
}

// Go はジョブをバックグラウンドで起動して即座に戻ります。
func (r *Runner) Go(ctx context.Context, jobID string, task TaskFunc) {
	go r.run(ctx, jobID, task)
}

func (r *Runner) run(ctx context.Context, jobID string, task TaskFunc) {
	defer func() {
		if v := recover(); v != nil {
			r.logf("job %s panicked: %v\n%s", jobID, v, debug.Stack())
			r.fail(jobID, &ErrorInfo{
				Code:    "PANIC",
				Message: panicMessage(v),
			})
		}
	}()

	if err := r.manager.MarkRunning(jobID); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyTerminal) {
			r.logf("job %s not runnable: %v", jobID, err)
			return
		}
		// 一時的なI/O失敗なら処理は続行できる
		r.logf("failed to mark job %s running: %v", jobID, err)
	}

	result, err := task(ctx)
	if err != nil {
		r.fail(jobID, classifyError(err))
		return
	}

	if err := r.manager.MarkCompleted(jobID, result); err != nil {
		// ErrUnserializable の場合、MarkCompleted 内で failed へ遷移済み
		r.logf("failed to complete job %s: %v", jobID, err)
	}
}

func (r *Runner) fail(jobID string, info *ErrorInfo) {
	if err := r.manager.MarkFailed(jobID, info); err != nil {
		r.logf("failed to mark job %s failed: %v", jobID, err)
	}
}

func classifyError(err error) *ErrorInfo {
	info := &ErrorInfo{
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	}
	var coder Coder
	if errors.As(err, &coder) {
		info.Code = coder.ErrorCode()
	}
	return info
}

func panicMessage(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "panic during job execution"
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
