package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type calls struct {
	mu  sync.Mutex
	got []int
}

func (c *calls) add(v int) {
	c.mu.Lock()
	c.got = append(c.got, v)
	c.mu.Unlock()
}

func (c *calls) snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.got...)
}

func TestSamplerLeadingAndTrailing(t *testing.T) {
	c := &calls{}
	s := NewSampler(50*time.Millisecond, c.add)

	for i := 1; i <= 5; i++ {
		s.Call(i)
	}
	assert.Equal(t, []int{1}, c.snapshot())
	assert.True(t, s.Pending())

	assert.Eventually(t, func() bool {
		got := c.snapshot()
		return len(got) == 2 && got[1] == 5
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.Pending())
}

func TestSamplerFlush(t *testing.T) {
	c := &calls{}
	s := NewSampler(time.Hour, c.add)

	s.Call(1)
	s.Call(2)
	s.Call(3)
	s.Flush()
	assert.Equal(t, []int{1, 3}, c.snapshot())

	// 没有保留的调用时 Flush 不做任何事
	s.Flush()
	assert.Equal(t, []int{1, 3}, c.snapshot())
}

func TestSamplerStop(t *testing.T) {
	c := &calls{}
	s := NewSampler(time.Hour, c.add)
	s.Call(1)
	s.Call(2)
	s.Stop()
	s.Call(3)
	s.Flush()
	assert.Equal(t, []int{1}, c.snapshot())
}
