package workbench

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

// ErrQueueClosed 队列关闭后再提交任务
var ErrQueueClosed = errors.New("execution queue is closed")

var errTaskPanicked = errors.New("execution queue task panicked")

// Task 队列中的一个操作
type Task func(ctx context.Context)

// ExecutionQueue 单 worker 的 FIFO 队列。所有修改 artifact 的操作都经过它，
// 保证按入队顺序一个接一个执行。
type ExecutionQueue struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *logger.Logger

	mu     sync.Mutex
	tasks  []Task
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewExecutionQueue worker 在 ctx 取消或 Close 后退出
func NewExecutionQueue(ctx context.Context, log *logger.Logger) *ExecutionQueue {
	ctx, cancel := context.WithCancel(ctx)
	q := &ExecutionQueue{
		ctx:    ctx,
		cancel: cancel,
		logger: log.Named("execution-queue"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Add 入队，不等待执行
func (q *ExecutionQueue) Add(task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Drain 等待此刻之前入队的任务全部完成
func (q *ExecutionQueue) Drain(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := q.Add(func(context.Context) { close(barrier) }); err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 入队并等待该任务执行完，返回任务的错误
//
// ctx 取消只结束等待，已入队的任务仍会按顺序执行。
func (q *ExecutionQueue) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	err := q.Add(func(ctx context.Context) {
		err := errTaskPanicked
		defer func() { result <- err }()
		err = fn(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-q.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrQueueClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 执行完已入队的任务后停止 worker
func (q *ExecutionQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
	q.cancel()
}

// Len 等待执行的任务数
func (q *ExecutionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *ExecutionQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.exec(task)
	}
}

func (q *ExecutionQueue) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("execution queue task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task(q.ctx)
}
