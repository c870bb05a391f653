package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/pool"
	"outreach/backend/internal/storage/memory"
)

// mailStub 模拟邮箱客户端
type mailStub struct {
	mu         sync.Mutex
	ids        []string
	messages   map[string]*domain.InboundEmail
	listErr    error
	fetchErr   map[string]error
	fetchCalls int
}

func (s *mailStub) ListRecentMessageIDs(_ context.Context, _ domain.Credential, _ int) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.ids, nil
}

func (s *mailStub) FetchMessage(_ context.Context, _ domain.Credential, id string) (*domain.InboundEmail, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.mu.Unlock()
	if err, ok := s.fetchErr[id]; ok {
		return nil, err
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, errors.New("message not found")
	}
	return msg, nil
}

func (s *mailStub) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

// classifierStub 模拟分类器
type classifierStub struct {
	mu     sync.Mutex
	record *domain.ClassificationRecord
	err    error
	calls  int
}

func (s *classifierStub) Classify(_ context.Context, _, _ string) (*domain.ClassificationRecord, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func (s *classifierStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// sinkStub 模拟落表器
type sinkStub struct {
	mu       sync.Mutex
	appended []domain.ClassificationRecord
	err      error
}

func (s *sinkStub) Append(_ context.Context, _ domain.Credential, record domain.ClassificationRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.appended = append(s.appended, record)
	s.mu.Unlock()
	return nil
}

func (s *sinkStub) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

// googleStub 模拟 OAuth 端
type googleStub struct {
	refreshed     domain.Credential
	refreshErr    error
	refreshCalls  int
	exchangeCred  domain.Credential
	exchangeEmail string
	exchangeErr   error
}

func (s *googleStub) ConsentURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

func (s *googleStub) Exchange(_ context.Context, _ string) (domain.Credential, string, error) {
	if s.exchangeErr != nil {
		return domain.Credential{}, "", s.exchangeErr
	}
	return s.exchangeCred, s.exchangeEmail, nil
}

func (s *googleStub) Refresh(_ context.Context, _ domain.Credential) (domain.Credential, error) {
	s.refreshCalls++
	if s.refreshErr != nil {
		return domain.Credential{}, s.refreshErr
	}
	return s.refreshed, nil
}

const testSecret = "0123456789abcdef0123456789abcdef"

func sampleRecord() *domain.ClassificationRecord {
	rec, _ := domain.RecordFromSlice([]string{
		"example.com", "editor@example.com", "100", "250",
		"", "", "800 words minimum", "manager@agency.com", "full text",
	})
	return &rec
}

// seedManager 接入一个带有效凭证的账号。
func seedManager(t *testing.T, store *memory.Store, email string) {
	t.Helper()
	require.NoError(t, store.UpsertManager(&domain.Manager{
		ID:           "mgr-" + email,
		Email:        email,
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
	}))
}

func seedClient(t *testing.T, store *memory.Store, owner, email, name string, status domain.ClientStatus) {
	t.Helper()
	require.NoError(t, store.AddClient(&domain.Client{
		ID:           "cli-" + email,
		ManagerEmail: owner,
		Email:        email,
		Name:         name,
		Status:       status,
	}))
}

func newTestTracker(store *memory.Store, mail MailboxClient, cls Classifier, sink RecordSink) *Tracker {
	accounts := NewAccountService(store, &googleStub{}, testSecret, nil)
	return NewTracker(store, mail, cls, sink, accounts, TrackerConfig{
		ListWindow:    10,
		BackoffWindow: 2 * time.Hour,
		MaxAttempts:   3,
	}, nil, nil, nil, nil)
}

func TestTracker_Messages(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.RecordDiscovery(&domain.TrackedMessage{
		ManagerEmail: "manager@agency.com",
		MessageID:    "msg-1",
		Stage:        domain.StageSuccess,
	}))

	tracker := newTestTracker(store, &mailStub{}, &classifierStub{}, &sinkStub{})

	t.Run("地址大小写不敏感", func(t *testing.T) {
		msgs, err := tracker.Messages("Manager@Agency.COM")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "msg-1", msgs[0].MessageID)
	})
}

func TestTracker_PollAfterPoolStopped(t *testing.T) {
	store := memory.NewStore()
	seedManager(t, store, "manager@agency.com")
	seedClient(t, store, "manager@agency.com", "client@site.com", "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: "client@site.com", Text: "our price is 100"},
		},
	}
	cls := &classifierStub{record: sampleRecord()}
	sink := &sinkStub{}

	// 进程收到停止信号后协程池已经退出，但调度器还没停，
	// 这个窗口里触发的 tick 必须就地跑完而不是挂在死池上。
	workers := pool.NewWorkerPool(1, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	workers.Start(ctx)
	cancel()
	workers.Stop()

	accounts := NewAccountService(store, &googleStub{}, testSecret, nil)
	tracker := NewTracker(store, mail, cls, sink, accounts, TrackerConfig{}, workers, nil, nil, nil)

	done := make(chan error, 1)
	go func() { done <- tracker.PollOnce(context.Background()) }()

	t.Run("池停止后tick仍能完成", func(t *testing.T) {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("PollOnce 没有返回")
		}

		msg, err := store.GetMessage("manager@agency.com", "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSuccess, msg.Stage)
		assert.Equal(t, 1, sink.appendCount())
	})
}

func TestTracker_OwnerIsolation(t *testing.T) {
	store := memory.NewStore()

	// 第一个账号凭证已过期且刷新必定失败
	expired := time.Now().Add(-time.Hour)
	require.NoError(t, store.UpsertManager(&domain.Manager{
		ID:           "mgr-broken",
		Email:        "broken@agency.com",
		AccessToken:  "stale",
		RefreshToken: "stale",
		TokenExpiry:  &expired,
	}))
	seedManager(t, store, "healthy@agency.com")
	seedClient(t, store, "healthy@agency.com", "client@site.com", "Alice", domain.ClientActive)

	mail := &mailStub{
		ids: []string{"msg-1"},
		messages: map[string]*domain.InboundEmail{
			"msg-1": {From: "client@site.com", Text: "our price is 100"},
		},
	}
	cls := &classifierStub{record: sampleRecord()}
	sink := &sinkStub{}

	accounts := NewAccountService(store, &googleStub{refreshErr: errors.New("invalid_grant")}, testSecret, nil)
	tracker := NewTracker(store, mail, cls, sink, accounts, TrackerConfig{}, nil, nil, nil, nil)

	t.Run("单个账号故障不影响其余账号", func(t *testing.T) {
		require.NoError(t, tracker.PollOnce(context.Background()))

		msg, err := store.GetMessage("healthy@agency.com", "msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSuccess, msg.Stage)
		assert.Equal(t, 1, sink.appendCount())
	})
}
