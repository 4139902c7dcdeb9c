package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
)

const defaultErrorMessage = "Failed to generate text"

// Options 一次流式补全请求的参数
type Options struct {
	Provider    string
	Endpoint    string // OpenAI 兼容的 /chat/completions 完整地址
	APIKey      string
	Model       string
	Messages    []types.ChatMessage
	MaxTokens   int
	Temperature float32

	// MaxSegments > 0 时处理完这么多个 SSE 帧后主动结束
	MaxSegments int
	// OnToken 每个非空增量在写出之前回调一次
	OnToken func()
	// OnFinish 上游给出 finish_reason 时回调
	OnFinish func(reason string)
}

// Client 调用上游模型的流式接口，把 SSE 帧解成纯文本字节流
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient httpClient 为 nil 时使用 http.DefaultClient
func NewClient(httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.Scoped("stream-text")
	}
	return &Client{httpClient: httpClient, logger: log}
}

// TextStream 应用层文本流；Close 会立刻释放上游连接
type TextStream struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
}

func (s *TextStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close 可以重复调用
func (s *TextStream) Close() error {
	s.cancel()
	return s.pr.Close()
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []types.ChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float32             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

// Open 发起请求。连接失败或上游返回非 2xx 时直接返回 *types.ProviderError；
// 之后读取过程中的任何错误都会变成一段 "Error: ..." 文本并结束流。
func (c *Client) Open(ctx context.Context, opts Options) (*TextStream, error) {
	if opts.APIKey == "" {
		return nil, types.MissingAPIKey(opts.Provider)
	}

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       opts.Model,
		Messages:    opts.Messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, types.NewProviderError(opts.Provider, 0, defaultErrorMessage, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = defaultErrorMessage
		}
		c.logger.Warn("provider rejected completion request",
			zap.String("provider", opts.Provider),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, types.NewProviderError(opts.Provider, resp.StatusCode, msg, nil)
	}

	pr, pw := io.Pipe()
	go c.pump(resp.Body, pw, cancel, opts)
	return &TextStream{pr: pr, cancel: cancel}, nil
}

// StreamText 与 Open 相同，但连接阶段的错误也以 "Error: ..." 文本返回
func (c *Client) StreamText(ctx context.Context, opts Options) io.ReadCloser {
	s, err := c.Open(ctx, opts)
	if err != nil {
		c.logger.Error("failed to open text stream", zap.String("provider", opts.Provider), zap.Error(err))
		return io.NopCloser(strings.NewReader("Error: " + ErrorText(err)))
	}
	return s
}

// pump 逐帧解码，直到 [DONE]、EOF、MaxSegments 或出错；任何出口都会关闭 body
func (c *Client) pump(body io.ReadCloser, pw *io.PipeWriter, cancel context.CancelFunc, opts Options) {
	defer cancel()
	defer body.Close()

	dec := sse.NewDecoder(body)
	processed := 0

	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			pw.Close()
			return
		}
		if err != nil {
			c.logger.Error("text stream read failed", zap.String("provider", opts.Provider), zap.Error(err))
			c.fail(pw, err)
			return
		}
		if strings.TrimSpace(frame.Data) == "[DONE]" {
			pw.Close()
			return
		}
		processed++

		if !gjson.Valid(frame.Data) {
			c.logger.Warn("skipping malformed stream frame",
				zap.String("provider", opts.Provider),
				zap.String("data", truncate(frame.Data, 200)),
			)
		} else {
			res := gjson.Parse(frame.Data)
			if msg := res.Get("error.message"); msg.Exists() {
				c.fail(pw, types.NewProviderError(opts.Provider, 0, msg.String(), nil))
				return
			}
			if reason := res.Get("choices.0.finish_reason"); reason.Type == gjson.String && opts.OnFinish != nil {
				opts.OnFinish(reason.String())
			}
			if text := res.Get("choices.0.delta.content").String(); text != "" {
				if opts.OnToken != nil {
					opts.OnToken()
				}
				if _, err := pw.Write([]byte(text)); err != nil {
					// 下游已经关闭
					return
				}
			}
		}

		if opts.MaxSegments > 0 && processed >= opts.MaxSegments {
			pw.Close()
			return
		}
	}
}

func (c *Client) fail(pw *io.PipeWriter, err error) {
	_, _ = pw.Write([]byte("Error: " + ErrorText(err)))
	pw.Close()
}

// ErrorText 优先使用上游给出的描述
func ErrorText(err error) string {
	var pe *types.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
