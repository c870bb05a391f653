package service

import (
	"errors"
	"strings"
)

// ErrTemplateNotFound 模板不存在
var ErrTemplateNotFound = errors.New("template not found")

// EmailTemplate 预置的外联邮件模板。
// 正文支持 {name} 与 {managerName} 两个占位符。
type EmailTemplate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// 预置的合作邀约模板。
var emailTemplates = []EmailTemplate{
	{
		ID:      "cooperation_basic",
		Name:    "Basic Cooperation Offer",
		Subject: "Partnership Opportunity - Content Collaboration",
		Body: `Hello {name},

I hope this email finds you well. I'm reaching out to explore potential partnership opportunities between our organizations.

We specialize in creating high-quality content and are interested in collaborating with your platform. Our team can provide:

• Professional article writing
• SEO-optimized content
• Industry-specific expertise
• Timely delivery

We would love to discuss:
- Your content requirements
- Pricing structure
- Publication guidelines
- Long-term partnership possibilities

Would you be available for a brief call this week to explore how we can work together?

Best regards,
{managerName}`,
	},
	{
		ID:      "cooperation_premium",
		Name:    "Premium Partnership Proposal",
		Subject: "Exclusive Content Partnership Proposal",
		Body: `Dear {name},

I'm writing to propose an exclusive content partnership that could significantly benefit your platform.

Our content agency has successfully collaborated with leading industry publications, delivering:

✓ Premium, research-backed articles
✓ Engaging multimedia content
✓ SEO optimization for maximum reach
✓ Consistent publishing schedules

Partnership Benefits:
• Exclusive content tailored to your audience
• Competitive pricing for bulk orders
• Priority support and fast turnaround
• Performance tracking and optimization

I'd be delighted to share our portfolio and discuss how we can elevate your content strategy.

Are you available for a 15-minute call this week?

Best regards,
{managerName}`,
	},
	{
		ID:      "follow_up",
		Name:    "Follow-up Template",
		Subject: "Following up on our partnership proposal",
		Body: `Hello {name},

I wanted to follow up on my previous email regarding our content partnership proposal.

I understand you're likely busy, but I believe our collaboration could bring significant value to your platform.

Quick recap of what we offer:
• High-quality, original content
• Flexible pricing options
• Quick turnaround times
• Ongoing support

Would you have just 10 minutes this week for a brief conversation? I'm confident we can find a mutually beneficial arrangement.

Looking forward to hearing from you.

Best regards,
{managerName}`,
	},
}

// TemplateService 提供预置邮件模板的查询与渲染。
type TemplateService struct{}

// NewTemplateService 创建模板服务。
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

// List 返回全部模板（不含正文，供前端做选择列表）。
func (s *TemplateService) List() []EmailTemplate {
	out := make([]EmailTemplate, 0, len(emailTemplates))
	for _, t := range emailTemplates {
		out = append(out, EmailTemplate{ID: t.ID, Name: t.Name, Subject: t.Subject})
	}
	return out
}

// Get 按 ID 返回完整模板。
func (s *TemplateService) Get(id string) (EmailTemplate, error) {
	for _, t := range emailTemplates {
		if t.ID == id {
			return t, nil
		}
	}
	return EmailTemplate{}, ErrTemplateNotFound
}

// Render 渲染模板正文，替换 {name} 与 {managerName} 占位符。
// 收件人没有展示名时退化为 "there"。
func Render(body, recipientName, managerName string) string {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "there"
	}
	out := strings.ReplaceAll(body, "{name}", name)
	out = strings.ReplaceAll(out, "{managerName}", managerName)
	return out
}
