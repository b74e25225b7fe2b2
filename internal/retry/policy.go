package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bt-tracker-checker/config"
	"bt-tracker-checker/internal/tracker"
)

// Attempt 单次探测尝试
type Attempt func(ctx context.Context) tracker.Outcome

// Policy 重试策略
// 同一端点的尝试严格串行执行，首次成功立即返回
type Policy struct {
	maxAttempts int           // 最大尝试次数
	delay       time.Duration // 两次尝试之间的间隔，默认0
	logger      *slog.Logger
}

// NewPolicy 从配置创建重试策略
func NewPolicy(cfg config.RetryConfig, logger *slog.Logger) *Policy {
	maxAttempts := 3
	if cfg.MaxAttempts > 0 {
		maxAttempts = cfg.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		maxAttempts: maxAttempts,
		delay:       max(0, cfg.Delay),
		logger:      logger,
	}
}

// MaxAttempts returns the attempt limit of the policy.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Record 一个端点的全部尝试记录
type Record struct {
	Attempts  int     // 实际尝试次数
	Succeeded bool    // 是否有一次尝试成功
	Failures  []error // 按尝试顺序记录的失败原因
	Defect    error   // 非nil表示探测器自身缺陷，不参与重试
}

// LastError returns the most recent failure, or nil.
func (r Record) LastError() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[len(r.Failures)-1]
}

// Run executes attempt up to MaxAttempts times.
// Success short-circuits; when every attempt fails the record keeps all
// failure details in order. A defect outcome stops the loop at once and is
// never retried.
func (p *Policy) Run(ctx context.Context, label string, attempt Attempt) Record {
	var rec Record

	for i := 1; i <= p.maxAttempts; i++ {
		if i > 1 {
			if err := p.wait(ctx); err != nil {
				rec.Failures = append(rec.Failures, err)
				p.logger.Debug("⏹️ [重试] 上下文已取消，停止重试",
					"endpoint", label, "attempt", i-1, "error", err)
				return rec
			}
		}

		outcome := attempt(ctx)
		rec.Attempts = i

		switch outcome.Kind {
		case tracker.OutcomeSuccess:
			rec.Succeeded = true
			p.logger.Debug("✅ [重试] 尝试成功", "endpoint", label, "attempt", i)
			return rec

		case tracker.OutcomeFailure:
			err := outcome.Err
			if err == nil {
				err = errors.New("probe failed without detail")
			}
			rec.Failures = append(rec.Failures, err)
			if i < p.maxAttempts {
				p.logger.Debug("🔄 [重试] 尝试失败，继续重试",
					"endpoint", label, "attempt", i, "max_attempts", p.maxAttempts, "error", err)
			}

		case tracker.OutcomeDefect:
			rec.Defect = outcome.Err
			if rec.Defect == nil {
				rec.Defect = errors.New("defect outcome without detail")
			}
			p.logger.Error("🐞 [重试] 探测器内部缺陷，终止重试",
				"endpoint", label, "attempt", i, "error", rec.Defect)
			return rec

		default:
			rec.Defect = fmt.Errorf("attempt returned unknown outcome kind %v", outcome.Kind)
			return rec
		}
	}

	p.logger.Debug("❌ [重试] 全部尝试失败", "endpoint", label, "attempts", rec.Attempts)
	return rec
}

// wait pauses between attempts and reports run cancellation.
func (p *Policy) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
