package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
)

// PollOnce 执行一轮收件箱轮询：对每个已接入账号，把邮箱最近的
// 消息列表与台账比对，只对台账中不存在的 ID 做首次处理。已在
// 台账中的消息无论处于什么阶段都跳过，后续由重试扫描接手。
func (t *Tracker) PollOnce(ctx context.Context) error {
	if t.metrics != nil {
		t.metrics.PollTicks.Inc()
	}
	return t.forEachManager(ctx, "poll", t.pollOwner)
}

// pollOwner 处理单个账号的一次轮询 tick。
func (t *Tracker) pollOwner(ctx context.Context, m domain.Manager) error {
	unlock := t.locks.acquire(m.Email)
	defer unlock()

	cred, err := t.accounts.FreshCredential(ctx, &m)
	if err != nil {
		return fmt.Errorf("refresh credential: %w", err)
	}

	clients, err := t.activeClientSet(m.Email)
	if err != nil {
		return err
	}

	listCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	ids, err := t.mail.ListRecentMessageIDs(listCtx, cred, t.cfg.ListWindow)
	cancel()
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}

	for _, id := range dedupe(ids) {
		known, err := t.store.IsKnownMessage(m.Email, id)
		if err != nil {
			return fmt.Errorf("ledger lookup: %w", err)
		}
		if known {
			continue
		}
		// 单封消息的故障被就地吞掉，不阻断同账号的其余候选
		t.processNewMessage(ctx, m, cred, clients, id)
	}
	return nil
}

// processNewMessage 对一封台账中尚不存在的消息做首次处理。
func (t *Tracker) processNewMessage(ctx context.Context, m domain.Manager, cred domain.Credential, clients map[string]struct{}, messageID string) {
	fetchCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	inbound, err := t.mail.FetchMessage(fetchCtx, cred, messageID)
	cancel()
	if err != nil {
		// 尚未登记，下个 tick 会再次作为新消息出现
		t.log.Warn("fetch failed, will retry on next tick",
			zap.String("owner", m.Email),
			zap.String("message", messageID),
			zap.Error(err),
		)
		return
	}

	sender := domain.NormalizeAddress(inbound.From)
	if _, isClient := clients[sender]; sender == "" || !isClient {
		// 过滤结果落账，避免以后每个 tick 重复取信重判
		t.log.Debug("skipping non-client message",
			zap.String("owner", m.Email),
			zap.String("sender", sender),
		)
		t.recordDiscovery(m.Email, messageID, domain.StageSkipped)
		return
	}

	if inbound.Text == "" {
		// 无纯文本正文的消息不入台账，留待每次轮询重查；
		// 这类消息罕见且取信廉价，是有意的取舍
		return
	}

	if !t.recordDiscovery(m.Email, messageID, domain.StageProcessing) {
		return
	}
	t.classifyAndSink(ctx, m, cred, messageID, sender, inbound.Text)
}

// recordDiscovery 首次登记消息。重复登记按幂等空操作处理：
// 邮箱列表在一次调用里返回重复 ID、或并发 tick 抢先登记时，
// 不算故障。返回值表示本次调用是否真正写入了新记录。
func (t *Tracker) recordDiscovery(ownerEmail, messageID string, stage domain.Stage) bool {
	err := t.store.RecordDiscovery(&domain.TrackedMessage{
		ManagerEmail: ownerEmail,
		MessageID:    messageID,
		Stage:        stage,
	})
	if errors.Is(err, storage.ErrMessageExists) {
		return false
	}
	if err != nil {
		t.log.Error("ledger discovery write failed",
			zap.String("owner", ownerEmail),
			zap.String("message", messageID),
			zap.Error(err),
		)
		return false
	}
	if t.metrics != nil {
		t.metrics.MessagesDiscovered.Inc()
	}
	if t.events != nil {
		t.events.PublishStage(ownerEmail, messageID, stage)
	}
	return true
}

// dedupe 去除邮箱列表可能返回的重复 ID，保序。
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
