package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/monitoring"
	"outreach/backend/internal/pool"
	"outreach/backend/internal/storage"
)

// MailboxClient 是核心依赖的邮箱收件能力。
type MailboxClient interface {
	// ListRecentMessageIDs 返回收件箱最近 limit 封邮件的 ID。
	// 这是一个小窗口而非全量扫描，靠轮询频率实现最终覆盖。
	ListRecentMessageIDs(ctx context.Context, cred domain.Credential, limit int) ([]string, error)
	// FetchMessage 取回完整邮件并提取发件人与纯文本正文。
	FetchMessage(ctx context.Context, cred domain.Credential, id string) (*domain.InboundEmail, error)
}

// Classifier 是核心依赖的结构化抽取能力。
//
// 返回 (nil, nil) 表示模型给出了无法收窄为 9 元组的结果
// （进入 error 阶段）；返回错误表示调用本身失败（进入 retry 阶段）。
type Classifier interface {
	Classify(ctx context.Context, emailText, ownerEmail string) (*domain.ClassificationRecord, error)
}

// RecordSink 把 9 元组追加到持久化表格，At-least-once 语义。
type RecordSink interface {
	Append(ctx context.Context, cred domain.Credential, record domain.ClassificationRecord) error
}

// TrackerConfig 轮询与重试引擎共享的行为参数。
type TrackerConfig struct {
	ListWindow    int           // 每个 tick 列出的最近邮件数
	BackoffWindow time.Duration // 自发现起的重试退避窗口
	MaxAttempts   int           // 最大重试次数，达到后转 failed_permanently
	CallTimeout   time.Duration // 单次外部调用超时
}

// Tracker 承载回信追踪的共享管线：台账写入、客户名单匹配、
// 分类与落表的尾段处理。轮询引擎与重试引擎都经由它工作。
//
// 同一 Manager 的台账操作由 locks 串行化：定时触发的两次 tick
// 在同一账号上重叠时，后到者会等待而不是基于同一份台账快照
// 重复登记消息。不同账号之间互不阻塞。
type Tracker struct {
	store      storage.Store
	mail       MailboxClient
	classifier Classifier
	sink       RecordSink
	accounts   *AccountService
	cfg        TrackerConfig
	locks      *ownerLocks
	workers    *pool.WorkerPool
	metrics    *monitoring.Metrics
	events     EventPublisher
	log        *zap.Logger

	now func() time.Time // 测试注入
}

// EventPublisher 向实时看板推送处理事件，可为 nil。
type EventPublisher interface {
	PublishStage(ownerEmail, messageID string, stage domain.Stage)
}

// NewTracker 创建追踪管线。workers、metrics、events 均可为 nil。
func NewTracker(
	store storage.Store,
	mail MailboxClient,
	classifier Classifier,
	sink RecordSink,
	accounts *AccountService,
	cfg TrackerConfig,
	workers *pool.WorkerPool,
	metrics *monitoring.Metrics,
	events EventPublisher,
	log *zap.Logger,
) *Tracker {
	if cfg.ListWindow <= 0 {
		cfg.ListWindow = 10
	}
	if cfg.BackoffWindow <= 0 {
		cfg.BackoffWindow = 2 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		store:      store,
		mail:       mail,
		classifier: classifier,
		sink:       sink,
		accounts:   accounts,
		cfg:        cfg,
		locks:      newOwnerLocks(),
		workers:    workers,
		metrics:    metrics,
		events:     events,
		log:        log,
		now:        time.Now,
	}
}

// Messages 返回某账号台账中的全部消息，发现顺序排列。
func (t *Tracker) Messages(ownerEmail string) ([]domain.TrackedMessage, error) {
	return t.store.ListMessages(domain.NormalizeAddress(ownerEmail))
}

// forEachManager 对每个账号执行 fn。配置了协程池时账号间并发，
// 单个账号内部始终顺序处理。账号级故障只记日志，不中断其余账号。
func (t *Tracker) forEachManager(ctx context.Context, op string, fn func(ctx context.Context, m domain.Manager) error) error {
	managers, err := t.store.ListManagers()
	if err != nil {
		return fmt.Errorf("list managers: %w", err)
	}

	run := func(m domain.Manager) {
		if err := fn(ctx, m); err != nil {
			t.log.Error("owner tick failed",
				zap.String("op", op),
				zap.String("owner", m.Email),
				zap.Error(err),
			)
			if t.metrics != nil {
				t.metrics.OwnerFailures.WithLabelValues(op).Inc()
			}
		}
	}

	if t.workers == nil {
		for _, m := range managers {
			run(m)
		}
		return nil
	}

	done := make(chan struct{}, len(managers))
	for _, m := range managers {
		m := m
		submitted := t.workers.Submit(func() {
			defer func() { done <- struct{}{} }()
			run(m)
		})
		if !submitted {
			// 池已停止或队列已满时就地执行，停机窗口内触发的 tick 不能悬挂
			run(m)
			done <- struct{}{}
		}
	}
	for range managers {
		<-done
	}
	return nil
}

// activeClientSet 构建大小写不敏感的活跃客户地址集合。
func (t *Tracker) activeClientSet(ownerEmail string) (map[string]struct{}, error) {
	clients, err := t.store.ListClients(ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	set := make(map[string]struct{}, len(clients))
	for _, c := range clients {
		if c.Status == domain.ClientActive {
			set[domain.NormalizeAddress(c.Email)] = struct{}{}
		}
	}
	return set, nil
}

// setStage 写入阶段转移并广播事件。
func (t *Tracker) setStage(ownerEmail, messageID string, stage domain.Stage, upd domain.StageUpdate) error {
	if err := t.store.SetMessageStage(ownerEmail, messageID, stage, upd); err != nil {
		return fmt.Errorf("set stage %s: %w", stage, err)
	}
	if t.metrics != nil {
		t.metrics.StageTransitions.WithLabelValues(string(stage)).Inc()
	}
	if t.events != nil {
		t.events.PublishStage(ownerEmail, messageID, stage)
	}
	return nil
}

// classifyAndSink 是轮询与重试共用的尾段：分类、落表、收尾阶段。
// 消息此刻必须已处于 processing 阶段。
func (t *Tracker) classifyAndSink(ctx context.Context, m domain.Manager, cred domain.Credential, messageID, sender, text string) {
	callCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	start := t.now()
	record, err := t.classifier.Classify(callCtx, text, m.Email)
	cancel()
	if t.metrics != nil {
		t.metrics.ClassifyDuration.Observe(t.now().Sub(start).Seconds())
	}

	switch {
	case err != nil:
		// 调用失败视为瞬态故障，留待重试扫描
		t.log.Warn("classifier call failed",
			zap.String("owner", m.Email),
			zap.String("message", messageID),
			zap.Error(err),
		)
		lastErr := err.Error()
		t.mustSetStage(m.Email, messageID, domain.StageRetry, domain.StageUpdate{LastError: &lastErr})
		return
	case record == nil:
		// 模型答非所问：记为 error，同样由重试扫描接手
		t.mustSetStage(m.Email, messageID, domain.StageError, domain.StageUpdate{})
		return
	}

	callCtx, cancel = context.WithTimeout(ctx, t.cfg.CallTimeout)
	err = t.sink.Append(callCtx, cred, *record)
	cancel()
	if err != nil {
		t.log.Warn("sink append failed",
			zap.String("owner", m.Email),
			zap.String("message", messageID),
			zap.Error(err),
		)
		lastErr := err.Error()
		t.mustSetStage(m.Email, messageID, domain.StageRetry, domain.StageUpdate{LastError: &lastErr})
		return
	}

	t.mustSetStage(m.Email, messageID, domain.StageSuccess, domain.StageUpdate{})
	if err := t.store.IncrementResponseCount(m.Email, sender); err != nil {
		// 成功已落账；计数失败只降级为日志
		if !errors.Is(err, storage.ErrClientNotFound) {
			t.log.Warn("response counter update failed",
				zap.String("owner", m.Email),
				zap.String("client", sender),
				zap.Error(err),
			)
		}
	}
	if t.metrics != nil {
		t.metrics.RecordsSunk.Inc()
	}
}

// mustSetStage 与 setStage 相同，但台账写入失败只记日志。
// 用于尾段：消息已在 processing，写不进去也不能让整个 tick 崩掉。
func (t *Tracker) mustSetStage(ownerEmail, messageID string, stage domain.Stage, upd domain.StageUpdate) {
	if err := t.setStage(ownerEmail, messageID, stage, upd); err != nil {
		t.log.Error("ledger write failed",
			zap.String("owner", ownerEmail),
			zap.String("message", messageID),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
	}
}
