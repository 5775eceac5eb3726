// Package executor runs blocking work on a bounded pool and waits for it up to
// a timeout. Work that outlives its timeout is abandoned: it keeps running and
// keeps its slot until it returns, but its result is discarded.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Work 是提交给 Pool 的阻塞任务。传入的 ctx 保留调用方的值，但不会被取消。
type Work func(ctx context.Context) ([]byte, error)

// Outcome 描述被放弃任务最终的执行结果。
type Outcome struct {
	Value   []byte
	Err     error
	Runtime time.Duration
}

// AbandonHandler 在被放弃的任务结束时调用，用于日志与指标。
type AbandonHandler func(Outcome)

// Option 调整 Pool 行为。
type Option func(*Pool)

// WithAbandonHandler 设置被放弃任务结束时的回调。
func WithAbandonHandler(fn AbandonHandler) Option {
	return func(p *Pool) {
		p.onAbandon = fn
	}
}

// Pool 用加权信号量限制同时运行的任务数，包括已被放弃但仍在运行的任务。
type Pool struct {
	sem       *semaphore.Weighted
	limit     int
	inFlight  atomic.Int64
	onAbandon AbandonHandler
}

// NewPool 创建最多同时运行 limit 个任务的 Pool，limit < 1 时按 1 处理。
func NewPool(limit int, opts ...Option) *Pool {
	if limit < 1 {
		limit = 1
	}
	p := &Pool{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit 返回并发上限。
func (p *Pool) Limit() int {
	return p.limit
}

// InFlight 返回当前占用槽位的任务数。
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Submit 获取一个槽位并立即在独立 goroutine 中启动 work。
// 槽位等待期间 ctx 结束时返回 ctx.Err()。
func (p *Pool) Submit(ctx context.Context, work Work) (*Task, error) {
	if work == nil {
		return nil, errors.New("executor: nil work")
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	task := newTask()
	p.inFlight.Add(1)
	workCtx := context.WithoutCancel(ctx)
	go func() {
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)

		value, err := runWork(workCtx, work)
		task.finish(value, err, p.onAbandon)
	}()
	return task, nil
}

// Run 提交 work 并最多等待 timeout。槽位等待时间同样计入 timeout。
//
// 返回值三选一：work 的结果；*PropagatedError（work 返回错误）；
// *TimeoutError（超时，work 被放弃）。调用方 ctx 被取消时返回 ctx.Err()，
// 同样放弃仍在运行的 work。
func (p *Pool) Run(ctx context.Context, timeout time.Duration, work Work) ([]byte, error) {
	started := time.Now()

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	task, err := p.Submit(acquireCtx, work)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Timeout: timeout}
		}
		return nil, err
	}

	return task.wait(ctx, timeout-time.Since(started), timeout)
}

func runWork(ctx context.Context, work Work) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("work panicked: %v", r)
		}
	}()
	return work(ctx)
}

// Task 是已启动任务的句柄，结果只会被写入一次。
type Task struct {
	started time.Time
	done    chan struct{}

	mu        sync.Mutex
	finished  bool
	abandoned bool
	value     []byte
	err       error
}

func newTask() *Task {
	return &Task{started: time.Now(), done: make(chan struct{})}
}

// Done 在任务结束（无论是否已被放弃）后关闭。
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait 最多等待 timeout；超时后任务被标记为放弃并返回 *TimeoutError。
func (t *Task) Wait(timeout time.Duration) ([]byte, error) {
	return t.wait(context.Background(), timeout, timeout)
}

func (t *Task) wait(ctx context.Context, remaining, reported time.Duration) ([]byte, error) {
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.result()
	case <-timer.C:
		if t.abandon() {
			return nil, &TimeoutError{Timeout: reported}
		}
		return t.result()
	case <-ctx.Done():
		if t.abandon() {
			return nil, ctx.Err()
		}
		return t.result()
	}
}

// abandon 在任务尚未结束时将其标记为放弃，返回是否标记成功。
func (t *Task) abandon() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.abandoned = true
	return true
}

func (t *Task) finish(value []byte, err error, onAbandon AbandonHandler) {
	t.mu.Lock()
	t.value, t.err = value, err
	t.finished = true
	abandoned := t.abandoned
	t.mu.Unlock()
	close(t.done)

	if abandoned && onAbandon != nil {
		onAbandon(Outcome{Value: value, Err: err, Runtime: time.Since(t.started)})
	}
}

func (t *Task) result() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, &PropagatedError{Cause: t.err}
	}
	return t.value, nil
}
