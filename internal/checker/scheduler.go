package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"bt-tracker-checker/internal/events"
	"bt-tracker-checker/internal/tracker"
	"bt-tracker-checker/internal/utils"
)

// DefaultConcurrency is the admission limit used when none is configured.
const DefaultConcurrency = 32

// Notifier receives each verdict as soon as its endpoint is finished.
// Implementations must be safe for concurrent use.
type Notifier interface {
	EndpointDone(v Verdict)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(v Verdict)

func (f NotifierFunc) EndpointDone(v Verdict) { f(v) }

// Scheduler 并发检查一组端点
// 同时进行中的端点数不超过 limit，每个端点都会得到一个 verdict
type Scheduler struct {
	dispatcher *Dispatcher
	limit      int64
	notifiers  []Notifier
	eventBus   events.EventBus
	logger     *slog.Logger
}

// NewScheduler creates a scheduler admitting at most limit endpoints at a time.
func NewScheduler(dispatcher *Dispatcher, limit int, logger *slog.Logger) *Scheduler {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		dispatcher: dispatcher,
		limit:      int64(limit),
		logger:     logger,
	}
}

// AddNotifier registers n. Must be called before Run.
func (s *Scheduler) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// SetEventBus 设置EventBus事件总线
func (s *Scheduler) SetEventBus(bus events.EventBus) {
	s.eventBus = bus
}

// Limit returns the admission limit.
func (s *Scheduler) Limit() int {
	return int(s.limit)
}

// Run checks every raw endpoint and partitions the verdicts into a report.
//
// When any endpoint hits an internal defect, the remaining endpoints still
// run to completion, then Run returns a nil report and all defects joined.
func (s *Scheduler) Run(ctx context.Context, raw []string) (*Report, error) {
	runID := uuid.NewString()
	startedAt := time.Now()

	s.logger.Info(fmt.Sprintf("🩺 [检查] 开始检查 %d 个 tracker (并发上限: %d)", len(raw), s.limit),
		"run_id", runID)
	s.publish(events.EventRunStarted, events.PriorityHigh, map[string]interface{}{
		"run_id":            runID,
		"total":             len(raw),
		"concurrency_limit": s.limit,
	})

	verdicts := make([]Verdict, len(raw))
	defects := make([]error, len(raw))

	sem := semaphore.NewWeighted(s.limit)
	var wg sync.WaitGroup

	for i, r := range raw {
		// Background context: a cancelled run must still hand out a token to
		// every endpoint so each one is accounted for. Acquire only fails on
		// context cancellation, so the error is always nil here.
		_ = sem.Acquire(context.Background(), 1)

		wg.Add(1)
		go func(i int, r string) {
			defer wg.Done()
			defer sem.Release(1)

			ep := tracker.ParseEndpoint(r)
			v, err := s.dispatcher.checkSafely(ctx, ep)
			verdicts[i] = v
			if err != nil {
				defects[i] = err
				s.logger.Error("🐞 [检查] 内部缺陷", "endpoint", r, "error", err)
				s.publish(events.EventSystemError, events.PriorityCritical, map[string]interface{}{
					"run_id":   runID,
					"endpoint": r,
					"error":    err.Error(),
				})
				return
			}
			if err := s.endpointDone(runID, v); err != nil {
				defects[i] = err
				s.logger.Error("🐞 [检查] 通知处理内部缺陷", "endpoint", r, "error", err)
			}
		}(i, r)
	}
	wg.Wait()

	if err := errors.Join(defects...); err != nil {
		s.publish(events.EventRunFinished, events.PriorityHigh, map[string]interface{}{
			"run_id":  runID,
			"aborted": true,
			"error":   err.Error(),
		})
		return nil, err
	}

	report := NewReport(runID, startedAt, verdicts)
	s.logger.Info(fmt.Sprintf("📊 [检查] 完成检查 - 可达: %s, 耗时: %s",
		utils.FormatRatio(len(report.Reachable), report.Total()),
		utils.FormatElapsed(report.Duration)), "run_id", runID)
	s.publish(events.EventRunFinished, events.PriorityHigh, map[string]interface{}{
		"run_id":      runID,
		"aborted":     false,
		"total":       report.Total(),
		"reachable":   len(report.Reachable),
		"unreachable": len(report.Unreachable),
		"duration":    utils.FormatElapsed(report.Duration),
	})
	return report, nil
}

// endpointDone fans the verdict out to notifiers and the event bus. A panic
// in a notifier becomes this endpoint's defect.
func (s *Scheduler) endpointDone(runID string, v Verdict) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &tracker.DefectError{Endpoint: v.Endpoint.Raw, Err: fmt.Errorf("notifier panic: %v", r)}
		}
	}()

	if v.Reachable {
		s.logger.Debug(fmt.Sprintf("✅ [检查] 端点可达: %s - 尝试: %d次, 耗时: %s",
			v.Endpoint.Raw, v.Attempts, utils.FormatElapsed(v.Elapsed)))
	} else {
		s.logger.Debug(fmt.Sprintf("❌ [检查] 端点不可达: %s - 尝试: %d次, 原因: %s",
			v.Endpoint.Raw, v.Attempts, v.Detail()))
	}

	for _, n := range s.notifiers {
		n.EndpointDone(v)
	}

	priority := events.PriorityNormal
	if !v.Reachable {
		priority = events.PriorityHigh
	}
	s.publish(events.EventProbeCompleted, priority, map[string]interface{}{
		"run_id":    runID,
		"endpoint":  v.Endpoint.Raw,
		"scheme":    v.Endpoint.Scheme.String(),
		"reachable": v.Reachable,
		"attempts":  v.Attempts,
		"elapsed":   utils.FormatElapsed(v.Elapsed),
		"detail":    v.Detail(),
	})
	return nil
}

func (s *Scheduler) publish(t events.EventType, p events.EventPriority, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(events.Event{
		Type:      t,
		Source:    "checker",
		Timestamp: time.Now(),
		Priority:  p,
		Data:      data,
	})
}
