package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"outreach/backend/internal/domain"
)

// RetryOnce 执行一轮重试扫描：对每个账号，挑出台账中停在
// retry/error 阶段的消息，按退避窗口与次数上限决定命运，
// 其余的重新走一遍取信→分类→落表。
func (t *Tracker) RetryOnce(ctx context.Context) error {
	if t.metrics != nil {
		t.metrics.RetryTicks.Inc()
	}
	return t.forEachManager(ctx, "retry", t.retryOwner)
}

// retryOwner 处理单个账号的一次重试 tick。
func (t *Tracker) retryOwner(ctx context.Context, m domain.Manager) error {
	unlock := t.locks.acquire(m.Email)
	defer unlock()

	candidates, err := t.store.ListMessagesByStage(m.Email, domain.StageRetry, domain.StageError)
	if err != nil {
		return fmt.Errorf("ledger scan: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	t.log.Info("retry sweep found failed messages",
		zap.String("owner", m.Email),
		zap.Int("count", len(candidates)),
	)

	cred, err := t.accounts.FreshCredential(ctx, &m)
	if err != nil {
		return fmt.Errorf("refresh credential: %w", err)
	}

	clients, err := t.activeClientSet(m.Email)
	if err != nil {
		return err
	}

	for _, msg := range candidates {
		t.retryMessage(ctx, m, cred, clients, msg)
	}
	return nil
}

// retryMessage 重试单封消息。任何故障都收敛到这封消息自身的
// 阶段字段上，不影响同账号的其余候选。
func (t *Tracker) retryMessage(ctx context.Context, m domain.Manager, cred domain.Credential, clients map[string]struct{}, msg domain.TrackedMessage) {
	// 退避以首次发现为基准，而非上次尝试；窗口未满先放一放
	if t.now().Sub(msg.CreatedAt) < t.cfg.BackoffWindow {
		return
	}

	if msg.RetryCount >= t.cfg.MaxAttempts {
		t.log.Warn("message failed permanently",
			zap.String("owner", m.Email),
			zap.String("message", msg.MessageID),
			zap.Int("attempts", msg.RetryCount),
		)
		t.mustSetStage(m.Email, msg.MessageID, domain.StageFailedPermanently, domain.StageUpdate{})
		return
	}

	attempt := msg.RetryCount + 1
	t.log.Info("retrying message",
		zap.String("owner", m.Email),
		zap.String("message", msg.MessageID),
		zap.Int("attempt", attempt),
	)
	if t.metrics != nil {
		t.metrics.RetryAttempts.Inc()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	inbound, err := t.mail.FetchMessage(fetchCtx, cred, msg.MessageID)
	cancel()
	if err != nil {
		lastErr := err.Error()
		t.mustSetStage(m.Email, msg.MessageID, domain.StageRetry, domain.StageUpdate{
			RetryCount: &attempt,
			LastError:  &lastErr,
		})
		return
	}

	if inbound.Text == "" {
		// 首次处理时有正文才会入账；现在取不出来说明邮件本身
		// 不可用了，继续重试没有意义
		t.mustSetStage(m.Email, msg.MessageID, domain.StageFailedPermanently, domain.StageUpdate{})
		return
	}

	// 名单可能在发现之后变过：当初是客户，现在未必
	sender := domain.NormalizeAddress(inbound.From)
	if _, isClient := clients[sender]; !isClient {
		t.mustSetStage(m.Email, msg.MessageID, domain.StageSkipped, domain.StageUpdate{})
		return
	}

	if err := t.setStage(m.Email, msg.MessageID, domain.StageProcessing, domain.StageUpdate{RetryCount: &attempt}); err != nil {
		t.log.Error("ledger write failed",
			zap.String("owner", m.Email),
			zap.String("message", msg.MessageID),
			zap.Error(err),
		)
		return
	}
	t.classifyAndSink(ctx, m, cred, msg.MessageID, sender, inbound.Text)
}
