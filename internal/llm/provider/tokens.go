package provider

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens 用 cl100k_base 估算 token 数；编码表不可用时按 4 字符一个 token 估算
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// EstimateMessagesTokens 估算一组消息的 token 数
func EstimateMessagesTokens(system string, contents ...string) int {
	total := EstimateTokens(system)
	for _, c := range contents {
		total += EstimateTokens(c) + 4 // 每条消息的角色开销
	}
	return total
}
