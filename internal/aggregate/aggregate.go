// Package aggregate はイベントごとの寄付件数と合計金額を読み取り時に計算する。
// 集計結果は保存しない。
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/shagun/internal/metrics"
)

// Aggregate はイベントの寄付集計。
type Aggregate struct {
	ContributionsCount int
	TotalAmount        decimal.Decimal
}

// TotalAmountJSON は合計金額をJSONの数値として返す。
func (a Aggregate) TotalAmountJSON() json.Number {
	return json.Number(a.TotalAmount.String())
}

// AmountSource はイベントの寄付金額を文字列の列として返す。
type AmountSource interface {
	ListAmounts(ctx context.Context, eventID string) ([]string, error)
}

// Aggregator は寄付の集計を行う。読み取り専用。
type Aggregator struct {
	source  AmountSource
	metrics metrics.MetricsCollector
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(source AmountSource, collector metrics.MetricsCollector) *Aggregator {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Aggregator{source: source, metrics: collector}
}

// Compute はイベントの寄付件数と合計金額を返す。
// 金額が空または数値として解釈できない寄付は件数に含め、合計には0として加える。
func (a *Aggregator) Compute(ctx context.Context, eventID string) (Aggregate, error) {
	start := time.Now()
	defer func() { a.metrics.RecordAggregateLatency(time.Since(start)) }()

	amounts, err := a.source.ListAmounts(ctx, eventID)
	if err != nil {
		return Aggregate{}, fmt.Errorf("failed to list amounts for event %s: %w", eventID, err)
	}
	return Sum(amounts), nil
}

// Sum は金額の列を集計する。
func Sum(amounts []string) Aggregate {
	total := decimal.Zero
	for _, raw := range amounts {
		if d, ok := ParseAmount(raw); ok {
			total = total.Add(d)
		}
	}
	return Aggregate{ContributionsCount: len(amounts), TotalAmount: total}
}

// ParseAmount は金額文字列を解釈する。空や数値でない場合はfalseを返す。
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ComputeMany は複数イベントの集計をイベントごとのgoroutineで並行に行う。
// 同時実行数は制限しない。いずれかが失敗した時点で残りをキャンセルし、全て終了してから返る。
func (a *Aggregator) ComputeMany(ctx context.Context, eventIDs []string) (map[string]Aggregate, error) {
	results := make(map[string]Aggregate, len(eventIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range eventIDs {
		g.Go(func() error {
			agg, err := a.Compute(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			results[id] = agg
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
