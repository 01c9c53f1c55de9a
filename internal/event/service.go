// Package event はイベントの作成・閲覧・更新・削除を扱う。
// 所有者チェックはauthz.Guardに任せ、各操作はストアへの単一操作で完結する。
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/shagun/internal/aggregate"
	"github.com/hitoshi/shagun/internal/authz"
	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/repository"
	"github.com/hitoshi/shagun/internal/validation"
)

// Input はイベント作成の入力。全項目が必須。
type Input struct {
	OccasionType string `json:"occasionType" validate:"required,max=100"`
	BrideName    string `json:"brideName" validate:"required,max=255"`
	GroomName    string `json:"groomName" validate:"required,max=255"`
	EventDate    string `json:"eventDate" validate:"required,max=64"`
	UpiID        string `json:"upiId" validate:"required,max=255"`
}

func (in *Input) trim() {
	in.OccasionType = strings.TrimSpace(in.OccasionType)
	in.BrideName = strings.TrimSpace(in.BrideName)
	in.GroomName = strings.TrimSpace(in.GroomName)
	in.EventDate = strings.TrimSpace(in.EventDate)
	in.UpiID = strings.TrimSpace(in.UpiID)
}

func inputFromEvent(e *model.Event) Input {
	return Input{
		OccasionType: e.OccasionType,
		BrideName:    e.BrideName,
		GroomName:    e.GroomName,
		EventDate:    e.EventDate,
		UpiID:        e.UpiID,
	}
}

// WithAggregate はイベントと寄付集計を合わせたもの。
type WithAggregate struct {
	Event     *model.Event
	Aggregate aggregate.Aggregate
}

// PublicEvent はゲスト向けに公開するイベント情報。所有者のUIDは含めない。
type PublicEvent struct {
	ID           string
	OccasionType string
	BrideName    string
	GroomName    string
	EventDate    string
	UpiID        string
}

// AggregateReader はイベントの寄付集計を返す。
type AggregateReader interface {
	Compute(ctx context.Context, eventID string) (aggregate.Aggregate, error)
	ComputeMany(ctx context.Context, eventIDs []string) (map[string]aggregate.Aggregate, error)
}

// Service はイベント操作のサービス層。
type Service struct {
	repo       repository.EventRepository
	guard      *authz.Guard
	aggregates AggregateReader
	validator  *validation.Validator
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.EventRepository,
	guard *authz.Guard,
	aggregates AggregateReader,
	validator *validation.Validator,
) *Service {
	return &Service{
		repo:       repo,
		guard:      guard,
		aggregates: aggregates,
		validator:  validator,
		now:        time.Now,
	}
}

// Create はイベントを作成し、IDを返す。所有者は呼び出し元に固定される。
func (s *Service) Create(ctx context.Context, caller *authz.Caller, in Input) (string, error) {
	if caller == nil || caller.UID == "" {
		return "", model.NewUnauthenticatedError()
	}
	in.trim()
	if err := s.validator.Struct(in); err != nil {
		return "", err
	}

	now := s.now()
	e := &model.Event{
		ID:           uuid.New().String(),
		OccasionType: in.OccasionType,
		BrideName:    in.BrideName,
		GroomName:    in.GroomName,
		EventDate:    in.EventDate,
		UpiID:        in.UpiID,
		OwnerUID:     caller.UID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}

	slog.Info("event created",
		slog.String("event_id", e.ID),
		slog.String("user_id", caller.UID),
	)
	return e.ID, nil
}

// load はイベントを取得する。IDが空の場合はストアに問い合わせない。
func (s *Service) load(ctx context.Context, eventID string) (*model.Event, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, nil
	}
	e, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return e, nil
}

// Get は所有者向けにイベントと寄付集計を返す。
func (s *Service) Get(ctx context.Context, caller *authz.Caller, eventID string) (*WithAggregate, error) {
	e, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(authz.OpEventRead, eventID, e, caller); err != nil {
		return nil, err
	}

	agg, err := s.aggregates.Compute(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return &WithAggregate{Event: e, Aggregate: agg}, nil
}

// GetPublic はゲスト向けのイベント情報を返す。認証は不要。
func (s *Service) GetPublic(ctx context.Context, eventID string) (*PublicEvent, error) {
	e, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(authz.OpEventReadPublic, eventID, e, nil); err != nil {
		return nil, err
	}

	return &PublicEvent{
		ID:           e.ID,
		OccasionType: e.OccasionType,
		BrideName:    e.BrideName,
		GroomName:    e.GroomName,
		EventDate:    e.EventDate,
		UpiID:        e.UpiID,
	}, nil
}

// ListMine は呼び出し元が所有する全イベントを寄付集計付きで返す。
// 集計はイベントごとに並行で行う。
func (s *Service) ListMine(ctx context.Context, caller *authz.Caller) ([]WithAggregate, error) {
	if caller == nil || caller.UID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	events, err := s.repo.ListByOwner(ctx, caller.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	aggs, err := s.aggregates.ComputeMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]WithAggregate, len(events))
	for i, e := range events {
		result[i] = WithAggregate{Event: e, Aggregate: aggs[e.ID]}
	}
	return result, nil
}

// Update は許可リストのフィールドだけを書き換える。
// イベントが存在しなければ所有者チェックより先にEVENT_NOT_FOUNDを返す。
func (s *Service) Update(ctx context.Context, caller *authz.Caller, eventID string, upd model.EventUpdate) (*model.Event, error) {
	e, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(authz.OpEventUpdate, eventID, e, caller); err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return nil, model.NewValidationError("no updatable fields")
	}

	upd.Apply(e)
	in := inputFromEvent(e)
	in.trim()
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	e.OccasionType, e.BrideName, e.GroomName, e.EventDate, e.UpiID =
		in.OccasionType, in.BrideName, in.GroomName, in.EventDate, in.UpiID
	e.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, e); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewEventNotFoundError(eventID)
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	slog.Info("event updated",
		slog.String("event_id", e.ID),
		slog.String("user_id", caller.UID),
	)
	return e, nil
}

// Delete はイベントを削除する。寄付も合わせて削除される。
func (s *Service) Delete(ctx context.Context, caller *authz.Caller, eventID string) error {
	e, err := s.load(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.guard.Check(authz.OpEventDelete, eventID, e, caller); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, e.ID, caller.UID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEventNotFoundError(eventID)
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}

	slog.Info("event deleted",
		slog.String("event_id", e.ID),
		slog.String("user_id", caller.UID),
	)
	return nil
}
