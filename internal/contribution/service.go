// Package contribution はゲストからの寄付の受付と、所有者向けの一覧・合計を扱う。
package contribution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/shagun/internal/aggregate"
	"github.com/hitoshi/shagun/internal/authz"
	"github.com/hitoshi/shagun/internal/metrics"
	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/repository"
	"github.com/hitoshi/shagun/internal/security"
	"github.com/hitoshi/shagun/internal/validation"
)

// maxAmount は金額カラム NUMERIC(14,2) に収まる最大値。
var maxAmount = decimal.RequireFromString("999999999999.99")

const (
	// maxAmountLength は金額文字列として受け付ける最大長。
	maxAmountLength = 32
	// maxIntegerDigits は NUMERIC(14,2) の整数部の桁数。
	maxIntegerDigits = 12
	// minAmountExponent より小さい指数は丸めの前に拒否する。
	minAmountExponent = -20
)

// RawAmount はJSONの数値・文字列・nullのいずれでも受け付ける金額。
// 解釈はAddで行い、数値として読めない値はNULLとして保存する。
type RawAmount string

// UnmarshalJSON は数値リテラルと文字列を同じように扱う。
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = RawAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// 真偽値やオブジェクトは数値でない金額として扱う
		*a = RawAmount(data)
		return nil
	}
	*a = RawAmount(n.String())
	return nil
}

// Input は寄付の入力。eventId以外は任意。
type Input struct {
	EventID  string    `json:"eventId" validate:"required,max=64"`
	Name     string    `json:"name" validate:"max=255"`
	Amount   RawAmount `json:"amount"`
	Relation string    `json:"relation" validate:"max=100"`
	Message  string    `json:"message" validate:"max=2000"`
}

// EventFinder は寄付先イベントの存在確認に使う。
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*model.Event, error)
}

// AggregateReader はイベントの寄付集計を返す。
type AggregateReader interface {
	Compute(ctx context.Context, eventID string) (aggregate.Aggregate, error)
}

// Service は寄付操作のサービス層。
type Service struct {
	contributions repository.ContributionRepository
	events        EventFinder
	aggregates    AggregateReader
	guard         *authz.Guard
	sanitizer     security.Sanitizer
	validator     *validation.Validator
	metrics       metrics.MetricsCollector
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	contributions repository.ContributionRepository,
	events EventFinder,
	aggregates AggregateReader,
	guard *authz.Guard,
	sanitizer security.Sanitizer,
	validator *validation.Validator,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		contributions: contributions,
		events:        events,
		aggregates:    aggregates,
		guard:         guard,
		sanitizer:     sanitizer,
		validator:     validator,
		metrics:       collector,
		now:           time.Now,
	}
}

// Add は寄付を作成し、IDを返す。認証は不要。
// eventIdがない場合はストアに問い合わせずにVALIDATION_ERRORを返す。
func (s *Service) Add(ctx context.Context, in Input) (string, error) {
	in.EventID = strings.TrimSpace(in.EventID)
	if err := s.validator.Struct(in); err != nil {
		return "", err
	}

	amount, err := parseAmount(in.Amount)
	if err != nil {
		return "", err
	}

	e, err := s.events.FindByID(ctx, in.EventID)
	if err != nil {
		return "", fmt.Errorf("failed to load event: %w", err)
	}
	if err := s.guard.Check(authz.OpContributionCreate, in.EventID, e, nil); err != nil {
		return "", err
	}

	c := &model.Contribution{
		ID:        uuid.New().String(),
		EventID:   e.ID,
		Name:      s.sanitizer.Sanitize(in.Name),
		Amount:    amount,
		Relation:  s.sanitizer.Sanitize(in.Relation),
		Message:   s.sanitizer.Sanitize(in.Message),
		CreatedAt: s.now(),
	}
	if err := s.contributions.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", model.NewEventNotFoundError(in.EventID)
		}
		return "", fmt.Errorf("failed to add contribution: %w", err)
	}

	s.metrics.RecordContributionAdded()
	slog.Info("contribution added",
		slog.String("event_id", c.EventID),
		slog.String("contribution_id", c.ID),
	)
	return c.ID, nil
}

// parseAmount は金額を解釈する。未入力・数値でない場合はNULL、負の値はエラー。
// 丸めと比較は指数に比例して重くなるため、その前に桁数と指数の範囲を確かめる。
func parseAmount(raw RawAmount) (decimal.NullDecimal, error) {
	if len(strings.TrimSpace(string(raw))) > maxAmountLength {
		return decimal.NullDecimal{}, model.NewValidationError("amount is too long")
	}
	d, ok := aggregate.ParseAmount(string(raw))
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, model.NewValidationError("amount must not be negative")
	}
	if d.IsZero() {
		return decimal.NewNullDecimal(decimal.Zero), nil
	}
	if d.NumDigits()+int(d.Exponent()) > maxIntegerDigits {
		return decimal.NullDecimal{}, model.NewValidationError("amount is too large")
	}
	if d.Exponent() < minAmountExponent {
		return decimal.NullDecimal{}, model.NewValidationError("amount has too many decimal places")
	}
	d = d.Round(2)
	if d.GreaterThan(maxAmount) {
		return decimal.NullDecimal{}, model.NewValidationError("amount is too large")
	}
	return decimal.NewNullDecimal(d), nil
}

// authorizeOwner はイベントを読み込み、所有者であることを確認する。
func (s *Service) authorizeOwner(ctx context.Context, caller *authz.Caller, eventID string) (*model.Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, model.NewValidationError("eventId is required")
	}
	e, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if err := s.guard.Check(authz.OpContributionList, eventID, e, caller); err != nil {
		return nil, err
	}
	return e, nil
}

// List はイベントの寄付を作成日時の昇順で返す。所有者のみ。
func (s *Service) List(ctx context.Context, caller *authz.Caller, eventID string) ([]*model.Contribution, error) {
	e, err := s.authorizeOwner(ctx, caller, eventID)
	if err != nil {
		return nil, err
	}

	contributions, err := s.contributions.ListByEvent(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	if contributions == nil {
		contributions = []*model.Contribution{}
	}
	return contributions, nil
}

// Total はイベントの寄付集計を返す。所有者のみ。
func (s *Service) Total(ctx context.Context, caller *authz.Caller, eventID string) (aggregate.Aggregate, error) {
	e, err := s.authorizeOwner(ctx, caller, eventID)
	if err != nil {
		return aggregate.Aggregate{}, err
	}
	return s.aggregates.Compute(ctx, e.ID)
}
