// Package heartbeat emits periodic liveness signals while a slow operation is
// waiting on the remote generator.
package heartbeat

import (
	"sync"
	"time"
)

// Signal 描述一次心跳：自开始以来的耗时与从 1 开始递增的序号。
type Signal struct {
	Elapsed time.Duration
	Tick    int
}

// Sink 接收心跳信号，在心跳 goroutine 中同步调用。
type Sink func(Signal)

// Multi 把多个 Sink 合并为一个，nil 项会被忽略。
func Multi(sinks ...Sink) Sink {
	return func(sig Signal) {
		for _, sink := range sinks {
			if sink != nil {
				sink(sig)
			}
		}
	}
}

// Beat 是一次心跳任务的句柄。
type Beat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start 以 interval 为周期启动心跳；interval <= 0 或 sink 为空时返回不做任何事的句柄。
func Start(interval time.Duration, sink Sink) *Beat {
	b := &Beat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if interval <= 0 || sink == nil {
		close(b.done)
		return b
	}

	go b.loop(interval, sink)
	return b
}

func (b *Beat) loop(interval time.Duration, sink Sink) {
	defer close(b.done)

	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// stop 与 ticker 同时就绪时优先退出。
			select {
			case <-b.stop:
				return
			default:
			}
			tick++
			sink(Signal{Elapsed: time.Since(started), Tick: tick})
		}
	}
}

// Stop 通知心跳结束后立即返回，不等待正在执行的 sink；之后不会再发出新的信号，重复调用安全。
func (b *Beat) Stop() {
	if b == nil {
		return
	}
	b.once.Do(func() { close(b.stop) })
}

// Wait 阻塞到心跳 goroutine 退出，需先调用 Stop。
func (b *Beat) Wait() {
	if b == nil {
		return
	}
	<-b.done
}
