package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"outreach/backend/internal/domain"
)

// 授权范围：收件（轮询）、发件（外联）、表格（落表）、邮箱身份。
var scopes = []string{
	gmailapi.GmailReadonlyScope,
	gmailapi.GmailSendScope,
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Client 封装 Gmail 与 Google OAuth 的访问。
//
// 同时实现 service.GoogleAuthenticator、service.MailboxClient
// 与 service.MailSender。凭证逐调用传入，一个实例服务所有账号。
type Client struct {
	oauth *oauth2.Config
}

// NewClient 创建 Gmail 访问客户端。
func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// ConsentURL 生成 Google 授权页地址。
// offline + consent 保证每次授权都发 refresh token。
func (c *Client) ConsentURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange 用授权码换取凭证，并查询授权账号的邮箱地址。
func (c *Client) Exchange(ctx context.Context, code string) (domain.Credential, string, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return domain.Credential{}, "", fmt.Errorf("token exchange: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return domain.Credential{}, "", fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return domain.Credential{}, "", fmt.Errorf("fetch userinfo: %w", err)
	}

	return credentialFromToken(token), info.Email, nil
}

// Refresh 用 refresh token 换取新的 access token。
func (c *Client) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	stale := tokenFromCredential(cred)
	// TokenSource 发现令牌过期时会自动走 refresh 流程
	fresh, err := c.oauth.TokenSource(ctx, stale).Token()
	if err != nil {
		return domain.Credential{}, fmt.Errorf("refresh access token: %w", err)
	}
	return credentialFromToken(fresh), nil
}

// ListRecentMessageIDs 返回收件箱最近 limit 封邮件的 ID。
func (c *Client) ListRecentMessageIDs(ctx context.Context, cred domain.Credential, limit int) ([]string, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	res, err := svc.Users.Messages.List("me").
		Q("in:inbox").
		MaxResults(int64(limit)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// FetchMessage 取回完整邮件并提取发件人与纯文本正文。
func (c *Client) FetchMessage(ctx context.Context, cred domain.Credential, id string) (*domain.InboundEmail, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}

	var from string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "From") {
				from = h.Value
				break
			}
		}
	}
	addr, name := domain.ParseFromHeader(from)

	return &domain.InboundEmail{
		From:     addr,
		FromName: name,
		Text:     extractPlainText(msg.Payload),
	}, nil
}

// Send 以凭证对应的账号身份发送一封纯文本邮件。
func (c *Client) Send(ctx context.Context, cred domain.Credential, from, to, subject, body string) error {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return err
	}

	// Subject 按 RFC 2047 B 编码，支持非 ASCII 主题
	encodedSubject := fmt.Sprintf("=?UTF-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(subject)))
	raw := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + encodedSubject,
		`Content-Type: text/plain; charset="UTF-8"`,
		"MIME-Version: 1.0",
		"",
		body,
	}, "\r\n")

	_, err = svc.Users.Messages.Send("me", &gmailapi.Message{
		Raw: base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send message to %s: %w", to, err)
	}
	return nil
}

// service 用给定凭证构建 Gmail API 客户端。
func (c *Client) service(ctx context.Context, cred domain.Credential) (*gmailapi.Service, error) {
	svc, err := gmailapi.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(tokenFromCredential(cred))))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// extractPlainText 从 MIME 树中提取 text/plain 正文并解码。
// 多部件邮件优先取 text/plain 部件，单部件邮件取顶层 body。
func extractPlainText(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}
	if part := findPlainPart(payload.Parts); part != nil {
		return decodeBody(part.Body)
	}
	return decodeBody(payload.Body)
}

func findPlainPart(parts []*gmailapi.MessagePart) *gmailapi.MessagePart {
	for _, p := range parts {
		if p.MimeType == "text/plain" && p.Body != nil && p.Body.Data != "" {
			return p
		}
	}
	// multipart/alternative 可能嵌套一层
	for _, p := range parts {
		if found := findPlainPart(p.Parts); found != nil {
			return found
		}
	}
	return nil
}

func decodeBody(body *gmailapi.MessagePartBody) string {
	if body == nil || body.Data == "" {
		return ""
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body.Data, "="))
	if err != nil {
		return ""
	}
	return string(data)
}

func credentialFromToken(token *oauth2.Token) domain.Credential {
	cred := domain.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		cred.Expiry = &expiry
	}
	return cred
}

func tokenFromCredential(cred domain.Credential) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	}
	if cred.Expiry != nil {
		token.Expiry = *cred.Expiry
	} else {
		// 没有过期时间的令牌按已过期处理，逼 TokenSource 刷新
		token.Expiry = time.Now().Add(-time.Minute)
	}
	return token
}
