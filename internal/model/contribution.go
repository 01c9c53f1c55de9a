package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contribution はゲストがイベントに送るご祝儀を表す。
// 作成後は変更も削除もされない（追記のみ）。
type Contribution struct {
	ID        string
	EventID   string
	Name      string
	Amount    decimal.NullDecimal // 未入力・数値でない金額はNULL
	Relation  string
	Message   string
	CreatedAt time.Time
}
