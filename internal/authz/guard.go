// Package authz はイベントと寄付に対する所有者チェックを一元化する。
package authz

import (
	"log/slog"

	"github.com/hitoshi/shagun/internal/metrics"
	"github.com/hitoshi/shagun/internal/model"
)

// Operation は認可対象の操作。
type Operation string

const (
	OpEventRead          Operation = "event.read"
	OpEventUpdate        Operation = "event.update"
	OpEventDelete        Operation = "event.delete"
	OpContributionList   Operation = "contribution.list"
	OpEventReadPublic    Operation = "event.read_public"
	OpContributionCreate Operation = "contribution.create"
)

// ownerOnly は所有者だけに許可する操作かを返す。
func (op Operation) ownerOnly() bool {
	switch op {
	case OpEventReadPublic, OpContributionCreate:
		return false
	default:
		return true
	}
}

// Reason は拒否の理由。
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNotFound            Reason = "not_found"
	ReasonNotFoundOrForbidden Reason = "not_found_or_forbidden"
	ReasonUnauthenticated     Reason = "unauthenticated"
)

// Decision は認可の判定結果。
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Caller は認証済みの呼び出し元。
type Caller struct {
	UID string
}

// Guard は操作・リソース・呼び出し元から認可を判定する。
type Guard struct {
	metrics metrics.MetricsCollector
}

// NewGuard はGuardを生成する。
func NewGuard(collector metrics.MetricsCollector) *Guard {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Guard{metrics: collector}
}

// Authorize は判定だけを行い、副作用を持たない。
// リソースの存在を所有者より先に確認する。
func (g *Guard) Authorize(op Operation, resource *model.Event, caller *Caller) Decision {
	if resource == nil {
		return Decision{Reason: ReasonNotFound}
	}
	if !op.ownerOnly() {
		return Decision{Allowed: true}
	}
	if caller == nil || caller.UID == "" {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if resource.OwnerUID != caller.UID {
		return Decision{Reason: ReasonNotFoundOrForbidden}
	}
	return Decision{Allowed: true}
}

// Check はAuthorizeの結果をエラーに変換する。
// 他人のイベントと存在しないイベントは同一のEVENT_NOT_FOUNDになる。
func (g *Guard) Check(op Operation, eventID string, resource *model.Event, caller *Caller) error {
	d := g.Authorize(op, resource, caller)
	if d.Allowed {
		return nil
	}

	g.metrics.RecordAuthzDenial(string(op), string(d.Reason))
	switch d.Reason {
	case ReasonUnauthenticated:
		return model.NewUnauthenticatedError()
	case ReasonNotFoundOrForbidden:
		slog.Warn("access to another user's event denied",
			slog.String("op", string(op)),
			slog.String("event_id", eventID),
			slog.String("user_id", caller.UID),
		)
		return model.NewEventNotFoundError(eventID)
	default:
		return model.NewEventNotFoundError(eventID)
	}
}
