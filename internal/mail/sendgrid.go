// Package mail は解析結果の完了通知メール送信を提供します。
package mail

import (
	"encoding/base64"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sender はSendGrid経由でメールを送ります。APIキーが未設定の場合は
// 何もしない無効状態として振る舞います。
type Sender struct {
	apiKey string
	from   string
	logger *log.Logger
}

// NewSender は Sender を作成します。logger は nil でも構いません。
func NewSender(apiKey, from string, logger *log.Logger) *Sender {
	return &Sender{apiKey: apiKey, from: from, logger: logger}
}

// Enabled は送信が設定済みかどうかを返します。
func (s *Sender) Enabled() bool {
	return s.apiKey != ""
}

// SendResults は結果ブックを添付した完了通知を送信します。
func (s *Sender) SendResults(toEmail, filename string, workbook []byte) error {
	if !s.Enabled() {
		return nil
	}

	from := sgmail.NewEmail("AI Policy Reader", s.from)
	to := sgmail.NewEmail("", toEmail)
	body := "Attached are the results of your document analysis request."
	message := sgmail.NewSingleEmail(from, "Results: AI Policy Reader (beta)", to, body, body)

	attachment := sgmail.NewAttachment()
	attachment.SetContent(base64.StdEncoding.EncodeToString(workbook))
	attachment.SetType(xlsxContentType)
	attachment.SetFilename(filename)
	attachment.SetDisposition("attachment")
	message.AddAttachment(attachment)

	response, err := sendgrid.NewSendClient(s.apiKey).Send(message)
	if err != nil {
		return fmt.Errorf("failed to send results mail: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected results mail: status %d", response.StatusCode)
	}
	s.logf("結果メールを送信しました: to=%s", MaskEmail(toEmail))
	return nil
}

func (s *Sender) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// MaskEmail はログ用にローカル部を伏せたアドレスを返します。
func MaskEmail(email string) string {
	for i, r := range email {
		if r == '@' {
			if i <= 1 {
				return "*" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return "***"
}
