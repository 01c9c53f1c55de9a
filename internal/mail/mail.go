// Package mail はトランザクションメールの送信を提供する。
// 送信はベストエフォートで、呼び出し側は失敗をログに残して処理を続ける。
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Message は送信するメール1通を表す。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ResendMailer はResend APIでメールを送信する。
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer はResendMailerを生成する。
func NewResendMailer(client *resend.Client, from string) *ResendMailer {
	return &ResendMailer{client: client, from: from}
}

// Send はResend APIでメールを送信する。レート制限時もリトライしない。
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if m.client == nil {
		return fmt.Errorf("resend client not initialized")
	}

	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			slog.Warn("resend rate limit exceeded",
				slog.String("limit", rateLimitErr.Limit),
				slog.String("reset", rateLimitErr.Reset),
			)
			return fmt.Errorf("email rate limit exceeded (limit: %s, resets in: %s seconds): %w",
				rateLimitErr.Limit, rateLimitErr.Reset, err)
		}
		return fmt.Errorf("resend API error: %w", err)
	}

	slog.Info("email sent via resend",
		slog.String("email_id", sent.Id),
	)
	return nil
}

// LogMailer は送信せずに内容をログに出す。APIキー未設定時の開発用。
type LogMailer struct{}

// Send はメールの宛先と件名をログに出す。
func (LogMailer) Send(_ context.Context, msg Message) error {
	slog.Info("email not sent (mailer disabled)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

var verificationTemplate = template.Must(template.New("verify").Parse(
	`<p>{{.Name}} さん</p>
<p>以下のリンクからメールアドレスを確認してください。</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>このメールに心当たりがない場合は破棄してください。</p>`))

// VerificationEmail はメールアドレス確認用のメッセージを組み立てる。
func VerificationEmail(to, name, link string) (Message, error) {
	var buf bytes.Buffer
	if err := verificationTemplate.Execute(&buf, struct{ Name, Link string }{name, link}); err != nil {
		return Message{}, fmt.Errorf("failed to render verification email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "メールアドレスの確認",
		HTML:    buf.String(),
	}, nil
}

// compile-time interface check
var (
	_ Mailer = (*ResendMailer)(nil)
	_ Mailer = LogMailer{}
)
