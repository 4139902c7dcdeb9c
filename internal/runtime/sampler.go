package runtime

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSampleInterval 流式期间 file 动作的最小执行间隔
const DefaultSampleInterval = 100 * time.Millisecond

// Sampler 对高频调用做首尾采样：窗口内第一次调用立即执行，
// 其余调用只保留最后一次，在窗口结束时执行。Flush 立即执行保留的调用。
type Sampler[T any] struct {
	limiter *rate.Limiter
	fn      func(T)

	mu         sync.Mutex
	pending    T
	hasPending bool
	timer      *time.Timer
	stopped    bool
}

// NewSampler interval <= 0 时使用 DefaultSampleInterval
func NewSampler[T any](interval time.Duration, fn func(T)) *Sampler[T] {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler[T]{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		fn:      fn,
	}
}

// Call 提交一次调用
func (s *Sampler[T]) Call(arg T) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.timer == nil && s.limiter.Allow() {
		s.mu.Unlock()
		s.fn(arg)
		return
	}

	s.pending = arg
	s.hasPending = true
	if s.timer == nil {
		delay := s.limiter.Reserve().Delay()
		s.timer = time.AfterFunc(delay, s.fire)
	}
	s.mu.Unlock()
}

func (s *Sampler[T]) fire() {
	s.mu.Lock()
	s.timer = nil
	if !s.hasPending || s.stopped {
		s.mu.Unlock()
		return
	}
	arg := s.take()
	s.mu.Unlock()
	s.fn(arg)
}

// Flush 取消等待中的定时器并立即执行保留的调用
func (s *Sampler[T]) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.hasPending {
		s.mu.Unlock()
		return
	}
	arg := s.take()
	s.mu.Unlock()
	s.fn(arg)
}

// Stop 丢弃保留的调用，之后的 Call 不再生效
func (s *Sampler[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.take()
}

// Pending 是否有等待执行的调用
func (s *Sampler[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPending
}

func (s *Sampler[T]) take() T {
	arg := s.pending
	var zero T
	s.pending = zero
	s.hasPending = false
	return arg
}
