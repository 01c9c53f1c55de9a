package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/shagun/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, owner_uid, occasion_type, bride_name, groom_name, event_date, upi_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.OwnerUID, event.OccasionType, event.BrideName, event.GroomName,
		event.EventDate, event.UpiID, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDも未検出として扱う。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	event := &model.Event{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_uid, occasion_type, bride_name, groom_name, event_date, upi_id, created_at, updated_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&event.ID, &event.OwnerUID, &event.OccasionType, &event.BrideName, &event.GroomName,
		&event.EventDate, &event.UpiID, &event.CreatedAt, &event.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	return event, nil
}

// ListByOwner は指定ユーザーが所有するイベントを作成日時の降順で返す。
func (r *PostgresEventRepo) ListByOwner(ctx context.Context, ownerUID string) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_uid, occasion_type, bride_name, groom_name, event_date, upi_id, created_at, updated_at
		 FROM events WHERE owner_uid = $1 ORDER BY created_at DESC`,
		ownerUID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		if err := rows.Scan(&e.ID, &e.OwnerUID, &e.OccasionType, &e.BrideName, &e.GroomName,
			&e.EventDate, &e.UpiID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("イベント行の読み取りに失敗しました: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント一覧の走査に失敗しました: %w", err)
	}
	return events, nil
}

// Update は許可されたフィールドとupdated_atを書き換える。
// WHERE句にowner_uidを含め、所有者以外の行は更新しない。
func (r *PostgresEventRepo) Update(ctx context.Context, event *model.Event) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET occasion_type = $3, bride_name = $4, groom_name = $5, event_date = $6, upi_id = $7, updated_at = $8
		 WHERE id = $1 AND owner_uid = $2`,
		event.ID, event.OwnerUID, event.OccasionType, event.BrideName, event.GroomName,
		event.EventDate, event.UpiID, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	return requireOneRow(result)
}

// Delete は指定IDのイベントを削除する。寄付はCASCADE削除される。
func (r *PostgresEventRepo) Delete(ctx context.Context, id, ownerUID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE id = $1 AND owner_uid = $2`,
		id, ownerUID,
	)
	if err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
