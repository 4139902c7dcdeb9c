package biz

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

const defaultMaxResponseSegments = 2

// ChatRequest 一轮对话：完整的历史消息加上可选的模型选择
type ChatRequest struct {
	Messages []types.ChatMessage
	Model    string
	Provider string
	Workdir  string
	// OnToken 每个非空增量回调一次，跨续写段累计；可以为空
	OnToken func()
}

// ChatUseCase 对话流。一段输出因 length 截断时自动续写，
// 多段上游通过同一个 SwitchableStream 对外表现为一条连续的流。
type ChatUseCase struct {
	manager     *provider.Manager
	streams     *stream.Client
	maxSegments int
	maxFrames   int // 单段最多处理的 SSE 帧数，0 不限
	logger      *logger.Logger
}

// NewChatUseCase creates a new chat use case
func NewChatUseCase(manager *provider.Manager, streams *stream.Client, cfg *conf.LLMConfig, log *logger.Logger) *ChatUseCase {
	maxSegments := cfg.MaxResponseSegments
	if maxSegments <= 0 {
		maxSegments = defaultMaxResponseSegments
	}
	return &ChatUseCase{
		manager:     manager,
		streams:     streams,
		maxSegments: maxSegments,
		maxFrames:   cfg.MaxStreamFrames,
		logger:      log.Named("api.chat"),
	}
}

// segment 单次上游调用的结果
type segment struct {
	mu      sync.Mutex
	reason  string
	text    strings.Builder
	tokens  atomic.Int64
	onToken func()
}

func newSegment(onToken func()) *segment {
	return &segment{onToken: onToken}
}

func (s *segment) token() {
	s.tokens.Add(1)
	if s.onToken != nil {
		s.onToken()
	}
}

func (s *segment) finish(reason string) {
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
}

func (s *segment) finishReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Stream 打开第一段上游。第一段的连接错误直接返回（用于 401/500 映射），
// 续写阶段的错误以 "Error: ..." 文本写入流后正常结束。
func (uc *ChatUseCase) Stream(ctx context.Context, creds provider.Credentials, req ChatRequest) (*stream.SwitchableStream, error) {
	p, err := resolveProvider(uc.manager, req.Provider)
	if err != nil {
		return nil, err
	}
	model := resolveModel(p, req.Model)
	maxTokens := uc.manager.DefaultMaxTokens()
	if mi, ok := provider.FindModel(p.StaticModels, model); ok {
		maxTokens = uc.manager.MaxTokensFor(mi)
	}

	messages := make([]types.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, types.ChatMessage{Role: types.RoleSystem, Content: SystemPrompt(req.Workdir)})
	messages = append(messages, req.Messages...)

	seg := newSegment(req.OnToken)
	first, err := uc.open(ctx, p, creds, model, maxTokens, messages, seg)
	if err != nil {
		uc.logger.Error("failed to open chat stream", zap.String("provider", p.Name), zap.Error(err))
		return nil, classifyProviderError(err)
	}

	ss := stream.NewSwitchableStream(ctx)
	go uc.drive(ctx, ss, first, seg, func(next *segment, history []types.ChatMessage) (io.ReadCloser, error) {
		return uc.open(ctx, p, creds, model, maxTokens, history, next)
	}, messages)
	return ss, nil
}

func (uc *ChatUseCase) open(ctx context.Context, p *provider.Provider, creds provider.Credentials, model string, maxTokens int, messages []types.ChatMessage, seg *segment) (io.ReadCloser, error) {
	opts := uc.manager.StreamOptions(p, creds, model, maxTokens, messages)
	opts.OnFinish = seg.finish
	opts.OnToken = seg.token
	opts.MaxSegments = uc.maxFrames
	ts, err := uc.streams.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

type openFunc func(seg *segment, messages []types.ChatMessage) (io.ReadCloser, error)

// drive 依次把各段接入 ss，最多 maxSegments 段
func (uc *ChatUseCase) drive(ctx context.Context, ss *stream.SwitchableStream, r io.ReadCloser, seg *segment, open openFunc, messages []types.ChatMessage) {
	defer ss.Close()

	var total int64
	for n := 1; ; n++ {
		err := ss.Switch(ctx, io.TeeReader(r, &seg.text))
		r.Close()
		total += seg.tokens.Load()
		uc.logger.Debug("chat segment finished",
			zap.Int("segment", n),
			zap.String("finish_reason", seg.finishReason()),
			zap.Int64("tokens", seg.tokens.Load()),
			zap.Int64("total_tokens", total),
		)
		if err != nil {
			uc.logger.Warn("chat stream interrupted", zap.Int("segment", n), zap.Error(err))
			return
		}
		if seg.finishReason() != "length" {
			return
		}
		if n >= uc.maxSegments {
			uc.logger.Warn("reached max response segments", zap.Int("segments", n))
			return
		}

		uc.logger.Info("response truncated, continuing", zap.Int("segment", n))
		messages = append(messages,
			types.ChatMessage{Role: types.RoleAssistant, Content: seg.text.String()},
			types.ChatMessage{Role: types.RoleUser, Content: ContinuePrompt},
		)
		seg = newSegment(seg.onToken)
		next, err := open(seg, messages)
		if err != nil {
			uc.logger.Error("failed to open continuation", zap.Error(err))
			ss.Write("Error: " + stream.ErrorText(err))
			return
		}
		r = next
	}
}
