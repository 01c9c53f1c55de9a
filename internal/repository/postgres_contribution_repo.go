package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/shagun/internal/model"
)

// PostgresContributionRepo はPostgreSQLを使用した寄付リポジトリ。
type PostgresContributionRepo struct {
	db *sql.DB
}

// NewPostgresContributionRepo はPostgresContributionRepoを生成する。
func NewPostgresContributionRepo(db *sql.DB) *PostgresContributionRepo {
	return &PostgresContributionRepo{db: db}
}

// Create は寄付を作成する。
// イベントが作成直前に削除されていた場合は外部キー違反をErrNotFoundとして返す。
func (r *PostgresContributionRepo) Create(ctx context.Context, c *model.Contribution) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contributions (id, event_id, name, amount, relation, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.EventID, c.Name, c.Amount, c.Relation, c.Message, c.CreatedAt,
	)
	if isPQError(err, pqForeignKeyViolation) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("寄付の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByEvent はイベントの寄付を作成日時の昇順で返す。
func (r *PostgresContributionRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Contribution, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, name, amount, relation, message, created_at
		 FROM contributions WHERE event_id = $1 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("寄付一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contributions []*model.Contribution
	for rows.Next() {
		c := &model.Contribution{}
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name, &c.Amount, &c.Relation, &c.Message, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("寄付行の読み取りに失敗しました: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("寄付一覧の走査に失敗しました: %w", err)
	}
	return contributions, nil
}

// ListAmounts はイベントの寄付金額だけを文字列で返す。
// 集計に必要な1列だけを読み、金額がNULLの寄付は空文字列になる。
func (r *PostgresContributionRepo) ListAmounts(ctx context.Context, eventID string) ([]string, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(amount::text, '') FROM contributions WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("寄付金額の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var amounts []string
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return nil, fmt.Errorf("寄付金額の読み取りに失敗しました: %w", err)
		}
		amounts = append(amounts, amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("寄付金額の走査に失敗しました: %w", err)
	}
	return amounts, nil
}

// compile-time interface check
var _ ContributionRepository = (*PostgresContributionRepo)(nil)
