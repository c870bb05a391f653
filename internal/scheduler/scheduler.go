package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Engine 是被调度的追踪引擎需要暴露的两个入口。
type Engine interface {
	PollOnce(ctx context.Context) error
	RetryOnce(ctx context.Context) error
}

// Scheduler 按 cron 表达式驱动轮询与重试引擎。
//
// 三个触发器：全量轮询、重试扫描、工作时段的高频轮询。
// tick 之间不做互斥，同账号的重叠由引擎内部的锁串行化。
type Scheduler struct {
	cron   *cron.Cron
	engine Engine
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Specs 三个触发器的 cron 表达式。
type Specs struct {
	Full     string // 全量轮询
	Retry    string // 重试扫描
	Business string // 工作时段高频轮询
}

// New 创建调度器并注册全部触发器。
func New(engine Engine, specs Specs, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		engine: engine,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"poll_full", specs.Full, engine.PollOnce},
		{"retry_sweep", specs.Retry, engine.RetryOnce},
		{"poll_business_hours", specs.Business, engine.PollOnce},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			if err := j.run(s.ctx); err != nil {
				s.log.Error("scheduled run failed",
					zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			cancel()
			return nil, err
		}
		log.Info("job scheduled", zap.String("job", j.name), zap.String("spec", j.spec))
	}

	return s, nil
}

// Start 启动调度。
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop 停止调度并等待在跑的 tick 结束。
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}
