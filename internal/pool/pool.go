// Package pool 基于 sync.Pool 提供带统计的对象复用。
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool 是带命中统计的泛型对象池。
type Pool[T any] struct {
	pool    sync.Pool
	newFunc func() T
	reset   func(T)

	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// New 创建对象池。resetFunc 在对象归还时调用，可为 nil。
func New[T any](newFunc func() T, resetFunc func(T)) *Pool[T] {
	p := &Pool[T]{
		newFunc: newFunc,
		reset:   resetFunc,
	}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get 从池中取出一个对象。
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put 归还对象。归还前会执行 reset。
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// Stats 返回池的使用统计。
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// Stats 池使用统计
type Stats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate 返回复用命中率。
func (s Stats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// AudioBuffers 复用语音会话的音频累积缓冲。
// 一条话语可达数 MB，会话结束后缓冲归还池里给下一条连接用。
var AudioBuffers = New(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 64<<10))
	},
	func(b *bytes.Buffer) {
		b.Reset()
	},
)
