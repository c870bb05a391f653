package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"outreach/backend/internal/domain"
)

// Sink 把分类记录追加到 Google Sheets 表格。
//
// 实现 service.RecordSink。At-least-once：追加成功但上游落库
// 失败时，重试会产生重复行，由表格侧去重。
type Sink struct {
	spreadsheetID string
	writeRange    string
	log           *zap.Logger
}

// NewSink 创建落表器。writeRange 为空时写 Sheet1!A2:I2。
func NewSink(spreadsheetID, writeRange string, log *zap.Logger) *Sink {
	if writeRange == "" {
		writeRange = "Sheet1!A2:I2"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		spreadsheetID: spreadsheetID,
		writeRange:    writeRange,
		log:           log,
	}
}

// Append 以凭证对应账号的身份向表格追加一行。
func (s *Sink) Append(ctx context.Context, cred domain.Credential, record domain.ClassificationRecord) error {
	token := &oauth2.Token{AccessToken: cred.AccessToken}
	if cred.Expiry != nil {
		token.Expiry = *cred.Expiry
	} else {
		token.Expiry = time.Now().Add(time.Hour)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return fmt.Errorf("create sheets service: %w", err)
	}

	_, err = svc.Spreadsheets.Values.Append(s.spreadsheetID, s.writeRange, &sheetsapi.ValueRange{
		Values: [][]interface{}{record.Row()},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet: %w", err)
	}

	s.log.Debug("record appended to sheet",
		zap.String("spreadsheet", s.spreadsheetID),
		zap.String("site", record[0]))
	return nil
}
