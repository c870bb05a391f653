package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	p := NewWorkerPool(4, 16, nil)
	p.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, p.Submit(func() { ran.Add(1) }))
	}
	p.Stop()

	assert.Equal(t, int32(10), ran.Load())
}

func TestWorkerPool_DrainsQueueAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(1, 8, nil)
	p.Start(ctx)

	entered := make(chan struct{})
	release := make(chan struct{})
	require.True(t, p.Submit(func() {
		entered <- struct{}{}
		<-release
	}))
	<-entered

	// worker 被首个任务占住，这三个任务只能排在队列里
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		require.True(t, p.Submit(func() { ran.Add(1) }))
	}

	cancel()
	close(release)
	p.Stop()

	t.Run("取消时已入队的任务仍会执行", func(t *testing.T) {
		assert.Equal(t, int32(3), ran.Load())
	})
}

func TestWorkerPool_RejectsAfterStop(t *testing.T) {
	p := NewWorkerPool(2, 4, nil)
	p.Start(context.Background())
	p.Stop()

	assert.False(t, p.Submit(func() {}))

	// Stop 可重复调用
	p.Stop()
}

func TestWorkerPool_RejectsWhenQueueFull(t *testing.T) {
	p := NewWorkerPool(1, 1, nil)
	p.Start(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	require.True(t, p.Submit(func() {
		entered <- struct{}{}
		<-release
	}))
	<-entered

	require.True(t, p.Submit(func() {})) // 占满队列
	assert.False(t, p.Submit(func() {})) // 队列已满，入队失败

	close(release)
	p.Stop()
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	p := NewWorkerPool(1, 4, nil)
	p.Start(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, p.Submit(func() { panic("boom") }))
	require.True(t, p.Submit(func() { wg.Done() }))
	wg.Wait()
	p.Stop()
}
