package mail

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/resend/resend-go/v2"
)

// SendResult は送信エラーの分類。
type SendResult int

const (
	// SendResultOK は送信成功。
	SendResultOK SendResult = iota
	// SendResultRetry は一時的な失敗（レート制限・ネットワーク障害）。
	SendResultRetry
	// SendResultStop はリトライしても成功しない失敗。
	SendResultStop
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 4 * time.Second
	// defaultMaxAttempts は初回を含む最大送信回数。
	defaultMaxAttempts = 3
)

// ClassifySendError は送信エラーをリトライ可否で分類する。
func ClassifySendError(err error) SendResult {
	if err == nil {
		return SendResultOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SendResultStop
	}

	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return SendResultRetry
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return SendResultRetry
	}
	return SendResultStop
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大4秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// RetryMailer は一時的な失敗に対して指数バックオフで再送する。
type RetryMailer struct {
	next        Mailer
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryMailer はRetryMailerを生成する。maxAttemptsが0以下なら既定値を使う。
func NewRetryMailer(next Mailer, maxAttempts int) *RetryMailer {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &RetryMailer{next: next, maxAttempts: maxAttempts, sleep: sleepContext}
}

// Send はnextで送信し、リトライ可能な失敗なら待機して再送する。
func (m *RetryMailer) Send(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.next.Send(ctx, msg)
		if ClassifySendError(err) != SendResultRetry || attempt == m.maxAttempts {
			return err
		}

		delay := CalculateBackoff(attempt - 1)
		slog.Warn("email send failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if serr := m.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Mailer = (*RetryMailer)(nil)
