package session

import (
	"context"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/minio"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/workerpool"
	"github.com/AGIOS-UPDATED/midday-test/internal/runtime"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
	"github.com/AGIOS-UPDATED/midday-test/internal/workbench"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newID 会话和消息 id
func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// CreateOptions 新建会话；ChatID 非空时载入已保存的对话
type CreateOptions struct {
	ChatID   string `json:"chatId"`
	RewindTo string `json:"rewindTo"`
}

// Deps Manager 的外部依赖，MinIO 和 Pool 可以为空
type Deps struct {
	Chat    ChatStreamer
	History *hbiz.HistoryUseCase
	Hub     *sse.Hub
	MinIO   *minio.Client
	Pool    *workerpool.Pool
}

// Manager 创建、查找和回收会话
type Manager struct {
	workbenchCfg conf.WorkbenchConfig
	githubCfg    conf.GitHubConfig
	deps         Deps
	logger       *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager
func NewManager(cfg *conf.Config, deps Deps, log *logger.Logger) *Manager {
	if deps.Hub == nil {
		deps.Hub = sse.NewHub()
	}
	return &Manager{
		workbenchCfg: cfg.Workbench,
		githubCfg:    cfg.GitHub,
		deps:         deps,
		logger:       log.Named("session"),
		sessions:     make(map[string]*Session),
	}
}

// Hub 会话事件使用的 SSE hub
func (m *Manager) Hub() *sse.Hub { return m.deps.Hub }

// Create 新建会话；载入对话失败时不留下半成品
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	id := newID()
	log := m.logger.With(zap.String("session_id", id))

	sb, err := m.newSandbox(id, log)
	if err != nil {
		return nil, apperrors.NewSandboxError(err, "failed to create sandbox")
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	notifier := &hubNotifier{hub: m.deps.Hub, resource: Resource(id)}
	wb := workbench.New(sessCtx, workbench.Options{
		Sandbox:        sb,
		SampleInterval: m.workbenchCfg.SampleInterval,
		Notifier:       notifier,
		Logger:         log,
		MinIO:          m.deps.MinIO,
		Pool:           m.deps.Pool,
		GitHub:         m.githubCfg,
		SyncRoot:       m.workbenchCfg.SyncRoot,
	})

	now := time.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		sb:         sb,
		workbench:  wb,
		parser:     runtime.NewParser(sb.Workdir()),
		chat:       m.deps.Chat,
		notifier:   notifier,
		cancel:     cancel,
		logger:     log,
		lastActive: now,
	}
	s.history = hbiz.NewChatHistory(m.deps.History, s.firstArtifactRef, func(urlID string) {
		s.Publish(EventNavigate, map[string]string{"urlId": urlID})
	})

	if err := wb.LoadFiles(); err != nil {
		log.Warn("failed to load existing sandbox files", zap.Error(err))
	}

	if opts.ChatID != "" {
		messages, err := s.history.Load(ctx, opts.ChatID, opts.RewindTo)
		if err != nil {
			s.close()
			return nil, err
		}
		s.restore(messages)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	log.Info("session created",
		zap.String("workdir", sb.Workdir()),
		zap.String("chat_id", opts.ChatID),
	)
	return s, nil
}

func (m *Manager) newSandbox(id string, log *logger.Logger) (sandbox.Sandbox, error) {
	mode := m.workbenchCfg.Sandbox
	workdir := ""
	if mode != sandbox.ModeMemory {
		base := m.workbenchCfg.Workdir
		if base == "" {
			base = "data/workspaces"
		}
		abs, err := filepath.Abs(filepath.Join(base, id))
		if err != nil {
			return nil, err
		}
		workdir = abs
	}
	return sandbox.New(mode, workdir, m.workbenchCfg.ShellTimeout, log)
}

// Get 按 id 查找
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrSessionGone)
	}
	s.touch()
	return s, nil
}

// Count 活跃会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List 按创建时间排序的会话概要
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Delete 关闭并移除会话
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrSessionGone)
	}
	s.close()
	return nil
}

// Reap 关闭空闲超过 ttl 的会话，返回关闭的个数
func (m *Manager) Reap(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > ttl {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
	if len(idle) > 0 {
		m.logger.Info("idle sessions reaped", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunReaper 定期回收空闲会话，ctx 取消时返回
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ttl := m.workbenchCfg.SessionTTL
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(now, ttl)
		}
	}
}

// Close 关闭全部会话
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}
