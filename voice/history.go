package voice

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/voicehub/types"
)

// TokenCounter 统计一段文本的 token 数。
type TokenCounter func(text string) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// defaultTokenCounter 基于 cl100k_base 编码计数；编码器不可用时
// 退回到按 4 字符 ≈ 1 token 的粗略估算。
func defaultTokenCounter(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// History 保存当前对话的内存转录。持久化历史始终完整；
// 只有转发给补全提供商的切片会按 token 预算裁剪，超出预算时
// 从最旧的消息开始丢弃。预算为 0 表示不设上限。
type History struct {
	msgs    []types.Message
	budget  int
	counter TokenCounter
}

// NewHistory 创建 token 预算为 budget 的历史。
func NewHistory(budget int) *History {
	return &History{budget: budget, counter: defaultTokenCounter}
}

// NewHistoryWithCounter 使用自定义计数器，测试用。
func NewHistoryWithCounter(budget int, counter TokenCounter) *History {
	return &History{budget: budget, counter: counter}
}

// Append 追加一条消息。
func (h *History) Append(msg types.Message) {
	h.msgs = append(h.msgs, msg)
}

// Len 返回完整历史长度。
func (h *History) Len() int { return len(h.msgs) }

// Snapshot 返回完整历史的副本。
func (h *History) Snapshot() []types.Message {
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Forward 返回转发给补全提供商的历史切片：完整历史，
// 或当 token 总量超出预算时丢弃最旧消息后的尾部。
func (h *History) Forward() []types.Message {
	if h.budget <= 0 {
		return h.Snapshot()
	}

	total := 0
	counts := make([]int, len(h.msgs))
	for i, m := range h.msgs {
		counts[i] = h.counter(m.Content)
		total += counts[i]
	}

	start := 0
	for start < len(h.msgs) && total > h.budget {
		total -= counts[start]
		start++
	}

	out := make([]types.Message, len(h.msgs)-start)
	copy(out, h.msgs[start:])
	return out
}

// Clear 清空历史。
func (h *History) Clear() {
	h.msgs = nil
}
