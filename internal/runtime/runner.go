package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

// RunnerOptions 回调都在执行 goroutine 中同步调用
type RunnerOptions struct {
	// OnAlert 沙箱失败
	OnAlert func(ActionAlert)
	// OnUpdate 动作状态变化
	OnUpdate func(ActionState)
	// OnFileWritten final 为 false 表示流式期间的临时写入
	OnFileWritten func(path, content string, final bool)
	Logger        *logger.Logger
}

// ActionRunner 一个 artifact 的动作执行器。执行互斥，按调用顺序进行；
// 调用顺序由上层的执行队列保证与声明顺序一致。
type ActionRunner struct {
	sb   sandbox.Sandbox
	opts RunnerOptions
	log  *logger.Logger

	mu        sync.Mutex
	order     []string
	actions   map[string]*ActionState
	finalized map[string]bool

	execMu  sync.Mutex
	settled atomic.Bool
}

// NewActionRunner creates a runner bound to sb
func NewActionRunner(sb sandbox.Sandbox, opts RunnerOptions) *ActionRunner {
	log := opts.Logger
	if log == nil {
		log = logger.L()
	}
	return &ActionRunner{
		sb:        sb,
		opts:      opts,
		log:       log.Named("action-runner"),
		actions:   make(map[string]*ActionState),
		finalized: make(map[string]bool),
	}
}

// AddAction 注册动作；同类型重复注册忽略，不同类型返回 DuplicateActionError
func (r *ActionRunner) AddAction(data ActionData) error {
	r.mu.Lock()
	key := data.Key()
	if existing, ok := r.actions[key]; ok {
		r.mu.Unlock()
		if existing.Type != data.Type {
			return &DuplicateActionError{
				MessageID: data.MessageID,
				ActionID:  data.ActionID,
				Existing:  existing.Type,
				Got:       data.Type,
			}
		}
		return nil
	}
	st := &ActionState{ActionData: data, Status: StatusPending}
	r.actions[key] = st
	r.order = append(r.order, key)
	snapshot := *st
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// RunAction 执行已注册的动作。
// isStreaming 为 true 时只做 file 的临时写入，不改变状态；
// 为 false 时执行唯一一次最终操作，之后的任何调用都是空操作。
// 沙箱失败通过 OnAlert 上报，不返回错误。
func (r *ActionRunner) RunAction(ctx context.Context, data ActionData, isStreaming bool) error {
	key := data.Key()

	r.mu.Lock()
	st, ok := r.actions[key]
	if !ok {
		r.mu.Unlock()
		return apperrors.Newf(apperrors.ErrActionNotFound, "action %s not registered", key)
	}
	if r.finalized[key] {
		r.mu.Unlock()
		return nil
	}

	if isStreaming {
		r.mu.Unlock()
		if data.Type != ActionFile {
			return nil
		}
		return r.writeInterim(key, data)
	}

	r.finalized[key] = true
	st.Content = data.Content
	if data.FilePath != "" {
		st.FilePath = data.FilePath
	}
	st.Status = StatusRunning
	snapshot := *st
	r.mu.Unlock()
	r.notify(snapshot)

	r.execMu.Lock()
	defer r.execMu.Unlock()

	err := r.execute(ctx, snapshot.ActionData)

	r.mu.Lock()
	if err != nil {
		st.Status = StatusFailed
		st.Error = err.Error()
	} else {
		st.Status = StatusComplete
	}
	snapshot = *st
	r.mu.Unlock()
	r.notify(snapshot)
	return nil
}

func (r *ActionRunner) writeInterim(key string, data ActionData) error {
	r.execMu.Lock()
	defer r.execMu.Unlock()

	// 最终写入可能已经在等锁期间完成
	r.mu.Lock()
	done := r.finalized[key]
	r.mu.Unlock()
	if done {
		return nil
	}

	if err := r.sb.WriteFile(data.FilePath, []byte(data.Content)); err != nil {
		r.log.Warn("interim file write failed", zap.String("path", data.FilePath), zap.Error(err))
		return nil
	}
	if r.opts.OnFileWritten != nil {
		r.opts.OnFileWritten(data.FilePath, data.Content, false)
	}
	return nil
}

func (r *ActionRunner) execute(ctx context.Context, data ActionData) error {
	switch data.Type {
	case ActionFile:
		if err := r.sb.WriteFile(data.FilePath, []byte(data.Content)); err != nil {
			r.alert(data, "Failed to write file", data.FilePath, err.Error())
			return apperrors.NewSandboxError(err, "write "+data.FilePath)
		}
		r.log.Debug("file written", zap.String("path", data.FilePath), zap.Int("bytes", len(data.Content)))
		if r.opts.OnFileWritten != nil {
			r.opts.OnFileWritten(data.FilePath, data.Content, true)
		}
		return nil

	case ActionShell:
		res, err := r.sb.Exec(ctx, data.Content)
		if err != nil {
			output := err.Error()
			if res != nil && res.Output != "" {
				output = res.Output + "\n" + output
			}
			r.alert(data, "Command Failed", data.Content, output)
			return apperrors.NewSandboxError(err, "run command")
		}
		if res.ExitCode != 0 {
			r.alert(data, "Command Failed", data.Content, res.Output)
			return apperrors.Newf(apperrors.ErrSandbox, "command exited with code %d", res.ExitCode)
		}
		return nil

	default:
		r.alert(data, "Unsupported Action", fmt.Sprintf("unknown action type %q", data.Type), "")
		return apperrors.Newf(apperrors.ErrSandbox, "unknown action type %q", data.Type)
	}
}

func (r *ActionRunner) alert(data ActionData, title, description, content string) {
	r.log.Warn("action failed",
		zap.String("message_id", data.MessageID),
		zap.String("action_id", data.ActionID),
		zap.String("title", title),
		zap.String("description", description),
	)
	if r.opts.OnAlert != nil {
		r.opts.OnAlert(ActionAlert{
			Type:        "error",
			Title:       title,
			Description: description,
			Content:     content,
			MessageID:   data.MessageID,
			ActionID:    data.ActionID,
		})
	}
}

func (r *ActionRunner) notify(st ActionState) {
	if r.opts.OnUpdate != nil {
		r.opts.OnUpdate(st)
	}
}

// Action 查询单个动作
func (r *ActionRunner) Action(messageID, actionID string) (ActionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.actions[messageID+"/"+actionID]
	if !ok {
		return ActionState{}, false
	}
	return *st, true
}

// Actions 按注册顺序返回全部动作
func (r *ActionRunner) Actions() []ActionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActionState, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.actions[key])
	}
	return out
}

// Settle 消息流结束，runner 从 streaming 进入 settled
func (r *ActionRunner) Settle() {
	r.settled.Store(true)
}

// Settled 是否已结束流式阶段
func (r *ActionRunner) Settled() bool {
	return r.settled.Load()
}
