package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 协程池
//
// 轮询/重试引擎用它限制同时处理的账号数，避免接入账号很多时
// 每个 tick 都拉起等量协程打满 API 配额。
//
// 停止（显式 Stop 或启动时传入的 ctx 取消）后队列先被清空再退出，
// 已入队的任务不会被丢弃；停止之后的提交返回 false，由调用方就地执行。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	log        *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动协程池。ctx 取消等价于调用 Stop。
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	context.AfterFunc(ctx, p.Stop)
}

// Submit 提交任务
//
// 返回 false 表示池已停止或队列已满，任务没有入队，
// 由调用方自行执行；true 则保证任务最终会被某个 worker 执行。
func (p *WorkerPool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 停止协程池：拒绝后续提交，等待已入队的任务全部跑完。
// 可以安全地多次调用。
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		// 提交与 stopped 标记由同一把锁串行化，此刻不会再有入队
		close(p.taskQueue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker 工作协程，队列关闭且清空后退出
func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("worker task panicked", zap.Any("panic", r))
				}
			}()
			task()
		}()
	}
}
