package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
)

var (
	ErrStateInvalid  = errors.New("oauth state invalid")
	ErrStateExpired  = errors.New("oauth state expired")
	ErrNoStateSecret = errors.New("oauth state secret not configured")
)

// stateTTL 授权 state 参数的有效期。
const stateTTL = 10 * time.Minute

// GoogleAuthenticator 封装 Google OAuth 流程中核心需要的三个动作。
type GoogleAuthenticator interface {
	// ConsentURL 生成带 state 的授权页地址。
	ConsentURL(state string) string
	// Exchange 用授权码换取凭证，并解析出授权账号的邮箱地址。
	Exchange(ctx context.Context, code string) (domain.Credential, string, error)
	// Refresh 用 refresh token 换取新的 access token。
	Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}

// AccountService 管理已接入账号：授权接入、凭证保鲜。
type AccountService struct {
	store       storage.Store
	google      GoogleAuthenticator
	stateSecret []byte
	log         *zap.Logger

	now func() time.Time
}

// NewAccountService 创建账号服务。
func NewAccountService(store storage.Store, google GoogleAuthenticator, stateSecret string, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		store:       store,
		google:      google,
		stateSecret: []byte(stateSecret),
		log:         log,
		now:         time.Now,
	}
}

// ConsentURL 生成授权页地址，state 为短时效签名令牌（防 CSRF）。
func (s *AccountService) ConsentURL() (string, error) {
	state, err := s.signState()
	if err != nil {
		return "", err
	}
	return s.google.ConsentURL(state), nil
}

// HandleCallback 处理授权回调：校验 state、换码、按邮箱 upsert 账号。
// 返回接入的邮箱地址。
func (s *AccountService) HandleCallback(ctx context.Context, state, code string) (string, error) {
	if err := s.verifyState(state); err != nil {
		return "", err
	}

	cred, email, err := s.google.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}

	email = domain.NormalizeAddress(email)
	manager := &domain.Manager{
		ID:           uuid.NewString(),
		Email:        email,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenExpiry:  cred.Expiry,
	}
	if err := s.store.UpsertManager(manager); err != nil {
		return "", fmt.Errorf("save manager: %w", err)
	}

	s.log.Info("mailbox connected", zap.String("owner", email))
	return email, nil
}

// Get 按邮箱获取账号。
func (s *AccountService) Get(email string) (*domain.Manager, error) {
	return s.store.GetManager(email)
}

// FreshCredential 返回可用的凭证：未过期直接返回，过期则先经
// Google 刷新、持久化替换后再返回。刷新后的凭证同时回写进传入
// 的 Manager，便于调用方在同一个 tick 里继续使用。
func (s *AccountService) FreshCredential(ctx context.Context, m *domain.Manager) (domain.Credential, error) {
	cred := m.Credential()
	if !cred.Expired(s.now()) {
		return cred, nil
	}

	refreshed, err := s.google.Refresh(ctx, cred)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("refresh token: %w", err)
	}
	// Google 只在首次授权返回 refresh token，刷新响应里缺失时沿用旧值
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}

	if err := s.store.UpdateCredential(m.Email, refreshed); err != nil {
		return domain.Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}

	m.AccessToken = refreshed.AccessToken
	m.RefreshToken = refreshed.RefreshToken
	m.TokenExpiry = refreshed.Expiry

	s.log.Debug("credential refreshed", zap.String("owner", m.Email))
	return refreshed, nil
}

// signState 签发授权 state 令牌。
func (s *AccountService) signState() (string, error) {
	if len(s.stateSecret) == 0 {
		return "", ErrNoStateSecret
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateSecret)
}

// verifyState 校验授权 state 令牌。
func (s *AccountService) verifyState(state string) error {
	if len(s.stateSecret) == 0 {
		return ErrNoStateSecret
	}
	token, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.stateSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrStateExpired
		}
		return ErrStateInvalid
	}
	if !token.Valid {
		return ErrStateInvalid
	}
	return nil
}
