package workbench

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/minio"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/workerpool"
	"github.com/AGIOS-UPDATED/midday-test/internal/runtime"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

// 推送给前端的事件类型
const (
	EventArtifact = "artifact"
	EventAction   = "action"
	EventFile     = "file"
	EventAlert    = "alert"
	EventUnsaved  = "unsaved"
	EventSelected = "selected"
)

// Notifier 状态变化的订阅方，通常是会话的 SSE 通道
type Notifier interface {
	Publish(eventType string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, any) {}

// Options 构建 Store 所需的依赖，除 Sandbox 外都可以为空
type Options struct {
	Sandbox        sandbox.Sandbox
	SampleInterval time.Duration
	Notifier       Notifier
	Logger         *logger.Logger
	MinIO          *minio.Client
	Pool           *workerpool.Pool
	GitHub         conf.GitHubConfig
	// SyncRoot 宿主机同步目录的根，为空时禁止同步到宿主机
	SyncRoot string
}

// ArtifactState 一个 artifact 及其独占的 runner
type ArtifactState struct {
	ID        string
	MessageID string
	Title     string
	Type      string
	Closed    bool
	runner    *runtime.ActionRunner
}

// ArtifactView 对外的只读视图
type ArtifactView struct {
	ID        string                `json:"id"`
	MessageID string                `json:"messageId"`
	Title     string                `json:"title"`
	Type      string                `json:"type,omitempty"`
	Closed    bool                  `json:"closed"`
	Actions   []runtime.ActionState `json:"actions"`
}

// ArtifactUpdate 只更新非空字段
type ArtifactUpdate struct {
	Title  *string
	Closed *bool
}

// Store 一个会话的工作台：artifact、文件、编辑器和未保存集合
type Store struct {
	sb       sandbox.Sandbox
	queue    *ExecutionQueue
	sampler  *runtime.Sampler[runtime.ActionData]
	files    *FileStore
	editor   *Editor
	notifier Notifier
	logger   *logger.Logger

	minio    *minio.Client
	pool     *workerpool.Pool
	github   conf.GitHubConfig
	syncRoot string

	mu          sync.RWMutex
	artifacts   map[string]*ArtifactState // messageId -> artifact
	order       []string
	unsaved     map[string]struct{}
	alert       *runtime.ActionAlert
	reloaded    map[string]struct{}
	description string
}

// New creates a workbench store; ctx bounds the execution queue worker
func New(ctx context.Context, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.L()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	s := &Store{
		sb:        opts.Sandbox,
		files:     NewFileStore(opts.Sandbox),
		editor:    NewEditor(),
		notifier:  notifier,
		logger:    log.Named("workbench"),
		minio:     opts.MinIO,
		pool:      opts.Pool,
		github:    opts.GitHub,
		syncRoot:  opts.SyncRoot,
		artifacts: make(map[string]*ArtifactState),
		unsaved:   make(map[string]struct{}),
		reloaded:  make(map[string]struct{}),
	}
	s.queue = NewExecutionQueue(ctx, log)
	s.sampler = runtime.NewSampler(opts.SampleInterval, func(data runtime.ActionData) {
		s.enqueue(func(ctx context.Context) { s.runAction(ctx, data, true) })
	})
	return s
}

// Sandbox 工作台使用的沙箱
func (s *Store) Sandbox() sandbox.Sandbox { return s.sb }

// Files 权威文件
func (s *Store) Files() *FileStore { return s.files }

// Editor 编辑器文档
func (s *Store) Editor() *Editor { return s.editor }

// AddToExecutionQueue 把操作放入全局 FIFO 队列
func (s *Store) AddToExecutionQueue(task Task) error {
	return s.queue.Add(task)
}

func (s *Store) enqueue(task Task) {
	if err := s.queue.Add(task); err != nil {
		s.logger.Warn("dropping task on closed workbench", zap.Error(err))
	}
}

// Drain 等待队列中已有的操作全部完成
func (s *Store) Drain(ctx context.Context) error {
	return s.queue.Drain(ctx)
}

// Close 丢弃等待中的采样调用，执行完队列后停止
func (s *Store) Close() {
	s.sampler.Stop()
	s.queue.Close()
}

// LoadFiles 读入沙箱已有的文件并同步编辑器
func (s *Store) LoadFiles() error {
	if err := s.files.Load(); err != nil {
		return err
	}
	s.SetDocuments()
	return nil
}

// SetDescription 用于导出文件名
func (s *Store) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = description
}

// --- Artifacts ---

// AddArtifact 每个 messageId 只创建一次
func (s *Store) AddArtifact(data runtime.ArtifactData) {
	s.mu.Lock()
	if _, ok := s.artifacts[data.MessageID]; ok {
		s.mu.Unlock()
		return
	}
	messageID := data.MessageID
	a := &ArtifactState{
		ID:        data.ID,
		MessageID: messageID,
		Title:     data.Title,
		Type:      data.Type,
	}
	a.runner = runtime.NewActionRunner(s.sb, runtime.RunnerOptions{
		Logger: s.logger,
		OnAlert: func(alert runtime.ActionAlert) {
			s.setAlert(messageID, alert)
		},
		OnUpdate: func(st runtime.ActionState) {
			s.notifier.Publish(EventAction, st)
		},
		OnFileWritten: s.onFileWritten,
	})
	s.artifacts[messageID] = a
	s.order = append(s.order, messageID)
	view := s.viewLocked(a)
	s.mu.Unlock()

	s.notifier.Publish(EventArtifact, view)
}

// UpdateArtifact artifact 不存在时忽略
func (s *Store) UpdateArtifact(messageID string, update ArtifactUpdate) {
	s.mu.Lock()
	a, ok := s.artifacts[messageID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if update.Title != nil {
		a.Title = *update.Title
	}
	if update.Closed != nil {
		a.Closed = *update.Closed
		if a.Closed {
			a.runner.Settle()
		}
	}
	view := s.viewLocked(a)
	s.mu.Unlock()

	s.notifier.Publish(EventArtifact, view)
}

// Artifact 按 messageId 查找
func (s *Store) Artifact(messageID string) (ArtifactView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[messageID]
	if !ok {
		return ArtifactView{}, false
	}
	return s.viewLocked(a), true
}

// FirstArtifact 第一个创建的 artifact
func (s *Store) FirstArtifact() (ArtifactView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return ArtifactView{}, false
	}
	return s.viewLocked(s.artifacts[s.order[0]]), true
}

// Artifacts 按创建顺序
func (s *Store) Artifacts() []ArtifactView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ArtifactView, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.viewLocked(s.artifacts[id]))
	}
	return out
}

func (s *Store) viewLocked(a *ArtifactState) ArtifactView {
	return ArtifactView{
		ID:        a.ID,
		MessageID: a.MessageID,
		Title:     a.Title,
		Type:      a.Type,
		Closed:    a.Closed,
		Actions:   a.runner.Actions(),
	}
}

func (s *Store) artifact(messageID string) (*ArtifactState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[messageID]
	return a, ok
}

// --- Actions ---

// AddAction 入队注册
func (s *Store) AddAction(data runtime.ActionData) {
	s.enqueue(func(ctx context.Context) {
		a, ok := s.artifact(data.MessageID)
		if !ok {
			s.logger.Error("artifact not found for action", zap.String("message_id", data.MessageID))
			return
		}
		if err := a.runner.AddAction(data); err != nil {
			var dup *runtime.DuplicateActionError
			if errors.As(err, &dup) {
				s.setAlert(data.MessageID, runtime.ActionAlert{
					Type:        "error",
					Title:       "Duplicate Action",
					Description: err.Error(),
					MessageID:   data.MessageID,
					ActionID:    data.ActionID,
				})
			}
			s.logger.Warn("failed to add action", zap.Error(err))
		}
	})
}

// RunAction 流式调用经过采样，最终调用先 flush 采样器再入队
func (s *Store) RunAction(data runtime.ActionData, isStreaming bool) {
	if isStreaming {
		s.sampler.Call(data)
		return
	}
	s.sampler.Flush()
	s.enqueue(func(ctx context.Context) { s.runAction(ctx, data, false) })
}

func (s *Store) runAction(ctx context.Context, data runtime.ActionData, isStreaming bool) {
	a, ok := s.artifact(data.MessageID)
	if !ok {
		s.logger.Error("artifact not found for action", zap.String("message_id", data.MessageID))
		return
	}
	st, ok := a.runner.Action(data.MessageID, data.ActionID)
	if !ok || st.Status == runtime.StatusComplete || st.Status == runtime.StatusFailed {
		return
	}

	if data.Type == runtime.ActionFile {
		if s.editor.SelectedFile() != data.FilePath {
			s.SetSelectedFile(data.FilePath)
		}
		s.editor.UpdateFile(data.FilePath, data.Content)
	}

	if err := a.runner.RunAction(ctx, data, isStreaming); err != nil {
		s.logger.Warn("run action failed", zap.String("action_id", data.ActionID), zap.Error(err))
		return
	}
	if data.Type == runtime.ActionFile && !isStreaming {
		s.ResetAllFileModifications()
	}
}

// HandleEvents 消费解析器输出的事件
func (s *Store) HandleEvents(events []runtime.Event) {
	for _, e := range events {
		switch e.Type {
		case runtime.EventArtifactOpen:
			art := *e.Artifact
			s.enqueue(func(context.Context) { s.AddArtifact(art) })
		case runtime.EventArtifactClose:
			messageID := e.MessageID
			s.enqueue(func(context.Context) {
				closed := true
				s.UpdateArtifact(messageID, ArtifactUpdate{Closed: &closed})
			})
		case runtime.EventActionOpen:
			s.AddAction(*e.Action)
		case runtime.EventActionUpdate:
			if e.Action.Type == runtime.ActionFile {
				s.RunAction(*e.Action, true)
			}
		case runtime.EventActionClose:
			s.RunAction(*e.Action, false)
		}
	}
}

func (s *Store) onFileWritten(path, content string, final bool) {
	s.files.Set(path, content)
	s.notifier.Publish(EventFile, map[string]any{"path": path, "final": final})
}

// --- Alerts ---

// SetReloadedMessages 这些消息产生的提示不再展示
func (s *Store) SetReloadedMessages(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloaded = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.reloaded[id] = struct{}{}
	}
}

func (s *Store) setAlert(messageID string, alert runtime.ActionAlert) {
	s.mu.Lock()
	if _, skip := s.reloaded[messageID]; skip {
		s.mu.Unlock()
		return
	}
	s.alert = &alert
	s.mu.Unlock()
	s.notifier.Publish(EventAlert, alert)
}

// Alert 当前提示
func (s *Store) Alert() (runtime.ActionAlert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.alert == nil {
		return runtime.ActionAlert{}, false
	}
	return *s.alert, true
}

// ClearAlert 清除提示
func (s *Store) ClearAlert() {
	s.mu.Lock()
	s.alert = nil
	s.mu.Unlock()
	s.notifier.Publish(EventAlert, nil)
}

// --- Documents ---

// SetDocuments 用当前文件重建文档；没有选中文件时自动选中第一个
func (s *Store) SetDocuments() {
	files := s.files.List()
	s.editor.SetDocuments(files)
	if _, ok := s.editor.CurrentDocument(); ok {
		return
	}
	for _, f := range files {
		if !f.IsBinary {
			s.SetSelectedFile(f.Path)
			return
		}
	}
}

// SetSelectedFile 切换当前文件
func (s *Store) SetSelectedFile(path string) {
	s.editor.SetSelectedFile(path)
	s.notifier.Publish(EventSelected, path)
}

// CurrentDocument 当前文档
func (s *Store) CurrentDocument() (EditorDocument, bool) {
	return s.editor.CurrentDocument()
}

// SetCurrentDocumentContent 只改编辑器内容，按与权威内容是否一致重算未保存状态
func (s *Store) SetCurrentDocumentContent(content string) {
	doc, ok := s.editor.CurrentDocument()
	if !ok {
		return
	}
	original, exists := s.files.Get(doc.FilePath)
	changed := exists && original.Content != content

	s.editor.UpdateFile(doc.FilePath, content)

	s.mu.Lock()
	_, was := s.unsaved[doc.FilePath]
	if changed == was {
		s.mu.Unlock()
		return
	}
	if changed {
		s.unsaved[doc.FilePath] = struct{}{}
	} else {
		delete(s.unsaved, doc.FilePath)
	}
	unsaved := s.unsavedLocked()
	s.mu.Unlock()

	s.notifier.Publish(EventUnsaved, unsaved)
}

// SetCurrentDocumentScrollPosition 记录滚动位置
func (s *Store) SetCurrentDocumentScrollPosition(pos ScrollPosition) {
	doc, ok := s.editor.CurrentDocument()
	if !ok {
		return
	}
	s.editor.UpdateScrollPosition(doc.FilePath, pos)
}

// SaveFile 文档内容写回权威存储，移出未保存集合；文档不存在时忽略
//
// 保存的是调用时的文档内容，写入经过执行队列，排在此前入队的 action 之后。
func (s *Store) SaveFile(ctx context.Context, path string) error {
	doc, ok := s.editor.Document(path)
	if !ok {
		return nil
	}
	return s.queue.Run(ctx, func(context.Context) error {
		return s.saveDocument(path, doc.Value)
	})
}

func (s *Store) saveDocument(path, content string) error {
	if err := s.files.Save(path, content); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.unsaved, path)
	unsaved := s.unsavedLocked()
	s.mu.Unlock()

	s.notifier.Publish(EventFile, map[string]any{"path": path, "final": true})
	s.notifier.Publish(EventUnsaved, unsaved)
	return nil
}

// SaveCurrentDocument 保存当前文档
func (s *Store) SaveCurrentDocument(ctx context.Context) error {
	doc, ok := s.editor.CurrentDocument()
	if !ok {
		return nil
	}
	return s.SaveFile(ctx, doc.FilePath)
}

// ResetCurrentDocument 丢弃当前文档的修改
func (s *Store) ResetCurrentDocument() {
	doc, ok := s.editor.CurrentDocument()
	if !ok {
		return
	}
	f, ok := s.files.Get(doc.FilePath)
	if !ok {
		return
	}
	s.SetCurrentDocumentContent(f.Content)
}

// SaveAllFiles 在一个队列任务里保存全部未保存文件，遇到错误即停止
func (s *Store) SaveAllFiles(ctx context.Context) error {
	type pending struct{ path, content string }
	var docs []pending
	for _, path := range s.UnsavedFiles() {
		if doc, ok := s.editor.Document(path); ok {
			docs = append(docs, pending{path, doc.Value})
		}
	}
	if len(docs) == 0 {
		return nil
	}
	return s.queue.Run(ctx, func(context.Context) error {
		for _, d := range docs {
			if err := s.saveDocument(d.path, d.content); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnsavedFiles 排序后的未保存路径
func (s *Store) UnsavedFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsavedLocked()
}

func (s *Store) unsavedLocked() []string {
	out := make([]string, 0, len(s.unsaved))
	for p := range s.unsaved {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FileModifications 用户修改过的文件
func (s *Store) FileModifications() []FileModification {
	return s.files.Modifications()
}

// ResetAllFileModifications 清空修改记录
func (s *Store) ResetAllFileModifications() {
	s.files.ResetModifications()
}
