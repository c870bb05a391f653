package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage/memory"
)

// gatedMail 让第一次取信停在闸门上，制造 tick 在账号锁内
// 被占住的窗口，后续取信直接透传。
type gatedMail struct {
	inner   *mailStub
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedMail) ListRecentMessageIDs(ctx context.Context, cred domain.Credential, limit int) ([]string, error) {
	return g.inner.ListRecentMessageIDs(ctx, cred, limit)
}

func (g *gatedMail) FetchMessage(ctx context.Context, cred domain.Credential, id string) (*domain.InboundEmail, error) {
	g.once.Do(func() {
		g.entered <- struct{}{}
		<-g.release
	})
	return g.inner.FetchMessage(ctx, cred, id)
}

// gatedClassifier 同上，闸门设在第一次分类调用上。
type gatedClassifier struct {
	inner   *classifierStub
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedClassifier) Classify(ctx context.Context, emailText, ownerEmail string) (*domain.ClassificationRecord, error) {
	g.once.Do(func() {
		g.entered <- struct{}{}
		<-g.release
	})
	return g.inner.Classify(ctx, emailText, ownerEmail)
}

// 两次轮询 tick 在同一账号上重叠：后到的 tick 必须等前一个
// 释放账号锁，之后基于已更新的台账跳过消息，而不是并行地把
// 同一封邮件再登记、再分类一遍。
func TestPollOnce_OverlappingTicksSameOwner(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	inner := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	mail := &gatedMail{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cls := &classifierStub{record: sampleRecord()}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, cls, sink)

	errs := make(chan error, 2)
	go func() { errs <- tracker.PollOnce(context.Background()) }()

	// 第一个 tick 此刻持有账号锁，消息还没登记进台账
	<-mail.entered
	go func() { errs <- tracker.PollOnce(context.Background()) }()

	time.Sleep(20 * time.Millisecond) // 给第二个 tick 时间排到锁上
	close(mail.release)

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}

	msgs, err := store.ListMessages(testOwner)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StageSuccess, msgs[0].Stage)
	assert.Equal(t, 1, inner.fetchCount())
	assert.Equal(t, 1, cls.callCount())
	assert.Equal(t, 1, sink.appendCount())
}

// 两次重试 tick 在同一账号上重叠：同一封失败消息只能被重试
// 一次，RetryCount 恰好加一。
func TestRetryOnce_OverlappingTicksSameOwner(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 0, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	cls := &gatedClassifier{
		inner:   &classifierStub{record: sampleRecord()},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, cls, sink)

	errs := make(chan error, 2)
	go func() { errs <- tracker.RetryOnce(context.Background()) }()

	// 第一个 tick 已把消息置为 processing 并停在分类调用里
	<-cls.entered
	go func() { errs <- tracker.RetryOnce(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	close(cls.release)

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}

	msg, err := store.GetMessage(testOwner, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageSuccess, msg.Stage)
	assert.Equal(t, 1, msg.RetryCount)
	assert.Equal(t, 1, cls.inner.callCount())
	assert.Equal(t, 1, sink.appendCount())
}
