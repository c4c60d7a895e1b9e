package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_ReusesObjects(t *testing.T) {
	p := New(
		func() *bytes.Buffer { return &bytes.Buffer{} },
		func(b *bytes.Buffer) { b.Reset() },
	)

	buf := p.Get()
	buf.WriteString("hello")
	p.Put(buf)

	// 归还后对象被 reset
	got := p.Get()
	assert.Equal(t, 0, got.Len())

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
}

func TestStats_HitRate(t *testing.T) {
	assert.Equal(t, float64(0), Stats{}.HitRate())
	assert.Equal(t, 0.5, Stats{Gets: 4, News: 2}.HitRate())
}

func TestAudioBuffers_ResetOnReturn(t *testing.T) {
	buf := AudioBuffers.Get()
	buf.Write(make([]byte, 1024))
	AudioBuffers.Put(buf)

	got := AudioBuffers.Get()
	defer AudioBuffers.Put(got)
	assert.Equal(t, 0, got.Len())
}
