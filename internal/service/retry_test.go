package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage/memory"
)

// seedFailedMessage 向台账植入一条失败消息，discoveredAgo 为首次发现距今的时长。
func seedFailedMessage(t *testing.T, store *memory.Store, messageID string, stage domain.Stage, retryCount int, discoveredAgo time.Duration) {
	t.Helper()
	require.NoError(t, store.RecordDiscovery(&domain.TrackedMessage{
		ManagerEmail: testOwner,
		MessageID:    messageID,
		Stage:        stage,
		RetryCount:   retryCount,
		CreatedAt:    time.Now().Add(-discoveredAgo),
	}))
}

func TestRetryOnce_BackoffWindow(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 0, time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	tracker := newTestTracker(store, mail, &classifierStub{record: sampleRecord()}, &sinkStub{})

	t.Run("退避窗口未满不重试", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageRetry, msg.Stage)
		assert.Equal(t, 0, msg.RetryCount)
		assert.Equal(t, 0, mail.fetchCount())
	})
}

func TestRetryOnce_SuccessfulRetry(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 1, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, &classifierStub{record: sampleRecord()}, sink)

	t.Run("窗口期满重试成功", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSuccess, msg.Stage)
		assert.Equal(t, 2, msg.RetryCount)
		assert.Equal(t, 1, sink.appendCount())
	})
}

func TestRetryOnce_ErrorStageAlsoSwept(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageError, 0, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	tracker := newTestTracker(store, mail, &classifierStub{record: sampleRecord()}, &sinkStub{})

	t.Run("error阶段同样被重试扫描选中", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSuccess, msg.Stage)
	})
}

func TestRetryOnce_AttemptCap(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 3, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	tracker := newTestTracker(store, mail, &classifierStub{record: sampleRecord()}, &sinkStub{})

	t.Run("次数达到上限转永久失败", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageFailedPermanently, msg.Stage)
		assert.Equal(t, 0, mail.fetchCount())
	})

	t.Run("永久失败是终态不再被扫描", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageFailedPermanently, msg.Stage)
		assert.Equal(t, 0, mail.fetchCount())
	})
}

func TestRetryOnce_FetchFailure(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 0, 3*time.Hour)

	mail := &mailStub{
		fetchErr: map[string]error{"msg-1": errors.New("backend unavailable")},
	}
	tracker := newTestTracker(store, mail, &classifierStub{}, &sinkStub{})

	t.Run("重试取信失败计数加一留在retry", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageRetry, msg.Stage)
		assert.Equal(t, 1, msg.RetryCount)
		assert.Contains(t, msg.LastError, "backend unavailable")
	})
}

func TestRetryOnce_BodyGone(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 1, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: ""},
		},
	}
	tracker := newTestTracker(store, mail, &classifierStub{}, &sinkStub{})

	t.Run("重试时取不出正文转永久失败", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageFailedPermanently, msg.Stage)
	})
}

func TestRetryOnce_SenderNoLongerClient(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 0, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	cls := &classifierStub{record: sampleRecord()}
	tracker := newTestTracker(store, mail, cls, &sinkStub{})

	t.Run("发件人已不在名单转跳过", func(t *testing.T) {
		require.NoError(t, tracker.RetryOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSkipped, msg.Stage)
		assert.Equal(t, 0, cls.callCount())
	})
}

func TestRetryOnce_RepeatedFailureUntilCap(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)
	seedFailedMessage(t, store, "msg-1", domain.StageRetry, 0, 3*time.Hour)

	mail := &mailStub{
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	cls := &classifierStub{err: errors.New("still failing")}
	tracker := newTestTracker(store, mail, cls, &sinkStub{})

	t.Run("连续失败最终收敛到永久失败", func(t *testing.T) {
		// 3 次失败重试把计数推到上限，第 4 轮扫描判死
		for i := 0; i < 4; i++ {
			require.NoError(t, tracker.RetryOnce(context.Background()))
		}

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageFailedPermanently, msg.Stage)
		assert.Equal(t, 3, msg.RetryCount)
		assert.Equal(t, 3, cls.callCount())
	})
}
