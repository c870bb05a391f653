package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage/memory"
)

const (
	testOwner  = "manager@agency.com"
	testClient = "client@site.com"
)

func TestPollOnce_ClientReply(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price for a regular post is $100"},
		},
	}
	cls := &classifierStub{record: sampleRecord()}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, cls, sink)

	t.Run("客户来信分类成功", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSuccess, msg.Stage)
		assert.Equal(t, 0, msg.RetryCount)
		assert.Equal(t, 1, cls.callCount())
		assert.Equal(t, 1, sink.appendCount())
	})

	t.Run("分类成功后客户回信计数加一", func(t *testing.T) {
		c, err := store.GetClient(testOwner, testClient)
		require.NoError(t, err)
		assert.Equal(t, 1, c.ResponseCount)
	})

	t.Run("再次轮询不重复处理", func(t *testing.T) {
		fetches := mail.fetchCount()
		require.NoError(t, tracker.PollOnce(context.Background()))

		assert.Equal(t, fetches, mail.fetchCount())
		assert.Equal(t, 1, sink.appendCount())
		msgs, err := store.ListMessages(testOwner)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})
}

func TestPollOnce_NonClientSender(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: "stranger@elsewhere.com", Text: "buy my course"},
		},
	}
	cls := &classifierStub{record: sampleRecord()}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, cls, sink)

	t.Run("非客户来信入账为跳过", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSkipped, msg.Stage)
		assert.Equal(t, 0, cls.callCount())
		assert.Equal(t, 0, sink.appendCount())
	})

	t.Run("跳过后不再重新取信", func(t *testing.T) {
		fetches := mail.fetchCount()
		require.NoError(t, tracker.PollOnce(context.Background()))
		assert.Equal(t, fetches, mail.fetchCount())
	})
}

func TestPollOnce_InactiveClient(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientInactive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "hello again"},
		},
	}
	cls := &classifierStub{record: sampleRecord()}
	tracker := newTestTracker(store, mail, cls, &sinkStub{})

	t.Run("非活跃客户视同陌生人", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSkipped, msg.Stage)
		assert.Equal(t, 0, cls.callCount())
	})
}

func TestPollOnce_EmptyBody(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: ""},
		},
	}
	tracker := newTestTracker(store, mail, &classifierStub{}, &sinkStub{})

	t.Run("无正文的消息不入台账", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msgs, err := store.ListMessages(testOwner)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("下次轮询重新取信", func(t *testing.T) {
		fetches := mail.fetchCount()
		require.NoError(t, tracker.PollOnce(context.Background()))
		assert.Equal(t, fetches+1, mail.fetchCount())
	})
}

func TestPollOnce_ClassifierFailure(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}

	t.Run("分类调用失败转入重试", func(t *testing.T) {
		cls := &classifierStub{err: errors.New("rate limited")}
		tracker := newTestTracker(store, mail, cls, &sinkStub{})
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageRetry, msg.Stage)
		assert.Contains(t, msg.LastError, "rate limited")
	})
}

func TestPollOnce_ClassifierEmptyResult(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "meeting notes attached"},
		},
	}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, &classifierStub{record: nil}, sink)

	t.Run("模型答非所问记为错误阶段", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageError, msg.Stage)
		assert.Equal(t, 0, sink.appendCount())
	})
}

func TestPollOnce_SinkFailure(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	sink := &sinkStub{err: errors.New("quota exceeded")}
	tracker := newTestTracker(store, mail, &classifierStub{record: sampleRecord()}, sink)

	t.Run("落表失败转入重试", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage(testOwner, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageRetry, msg.Stage)
		assert.Contains(t, msg.LastError, "quota exceeded")

		c, err := store.GetClient(testOwner, testClient)
		require.NoError(t, err)
		assert.Equal(t, 0, c.ResponseCount)
	})
}

func TestPollOnce_DuplicateListIDs(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1", "msg-1", "msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: testClient, Text: "our price is 100"},
		},
	}
	sink := &sinkStub{}
	tracker := newTestTracker(store, mail, &classifierStub{record: sampleRecord()}, sink)

	t.Run("列表中的重复ID只处理一次", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		assert.Equal(t, 1, mail.fetchCount())
		assert.Equal(t, 1, sink.appendCount())
	})
}

func TestPollOnce_FetchFailure(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, testOwner)
	seedClient(t, store, testOwner, testClient, "Alice", domain.ClientActive)

	mail := &mailStub{
		ids:      []string{"msg-1"},
		fetchErr: map[string]error{"msg-1": errors.New("temporary failure")},
	}
	tracker := newTestTracker(store, mail, &classifierStub{}, &sinkStub{})

	t.Run("取信失败不入台账留待下个tick", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msgs, err := store.ListMessages(testOwner)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
