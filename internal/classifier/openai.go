package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"outreach/backend/internal/domain"
)

// promptTemplate 指示模型从来信中抽取 9 列商务信息。
// 表格各列的语义在提示词里固定，模型只负责按序填值。
const promptTemplate = `You are an experienced outreach manager who extracts only the commercially relevant facts from an email and prepares them for a spreadsheet.

The target sheet has one row per email with these columns:

Site | Email | General $ | Casino $ | Betting | Crypto | Content Requirements | Our Email | Full Message

Use only information actually present in the email. Leave a column as an empty string when the email does not mention it. Fill the columns in this exact order:

1. Site (the website mentioned in the email, if any)
2. Contact email (if present)
3. Price for a regular post
4. Price for casino/betting/gambling content
5. Betting-specific notes (if stated separately)
6. Crypto-specific notes (if stated separately)
7. Content requirements (article length, images and so on)
8. The mailbox we sent from: %s
9. The full email text as is (for the archive)

Respond with a JSON array of exactly 9 elements: [A, B, C, D, E, F, G, H, I]

--- Email text below ---
%s`

// Classifier 调用 OpenAI Chat Completions 做结构化抽取。
//
// 实现 service.Classifier：调用失败返回错误（上游转 retry），
// 模型给出无法收窄为 9 元组的结果时返回 (nil, nil)（上游转 error）。
type Classifier struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// New 创建分类器。model 为空时用 GPT-4。
func New(apiKey, model string, log *zap.Logger) *Classifier {
	if model == "" {
		model = openai.GPT4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}
}

// Classify 对一封来信做 9 列抽取。
func (c *Classifier) Classify(ctx context.Context, emailText, ownerEmail string) (*domain.ClassificationRecord, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(promptTemplate, ownerEmail, emailText),
			},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	record, ok := parseRecord(content)
	if !ok {
		c.log.Warn("model output did not narrow to a record",
			zap.String("owner", ownerEmail),
			zap.Int("length", len(content)))
		return nil, nil
	}
	return &record, nil
}

// parseRecord 把模型输出收窄为 9 元组。
// 优先按 JSON 数组解析，失败后退回按行切分；两种路径都要求
// 恰好 9 个元素，否则判定失败。
func parseRecord(content string) (domain.ClassificationRecord, bool) {
	content = stripCodeFence(content)

	var raw []interface{}
	if err := json.Unmarshal([]byte(content), &raw); err == nil {
		values := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				values = append(values, s)
			} else {
				values = append(values, fmt.Sprint(v))
			}
		}
		return domain.RecordFromSlice(values)
	}

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return domain.RecordFromSlice(lines)
}

// stripCodeFence 去掉模型偶尔包裹的 markdown 代码块标记。
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
