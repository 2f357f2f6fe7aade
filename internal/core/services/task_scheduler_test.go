package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskScheduler_SingleSlot(t *testing.T) {
	s := NewTaskScheduler()
	var runs atomic.Int32

	assert.True(t, s.Schedule(10*time.Millisecond, func() { runs.Add(1) }))
	assert.False(t, s.Schedule(10*time.Millisecond, func() { runs.Add(100) }))
	assert.True(t, s.Pending())

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Pending())

	assert.True(t, s.Schedule(time.Millisecond, func() { runs.Add(1) }))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTaskScheduler_Invalidate(t *testing.T) {
	s := NewTaskScheduler()
	var runs atomic.Int32

	s.Schedule(20*time.Millisecond, func() { runs.Add(1) })
	s.Invalidate()
	assert.False(t, s.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
