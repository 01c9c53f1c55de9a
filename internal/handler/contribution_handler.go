package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shagun/internal/aggregate"
	"github.com/hitoshi/shagun/internal/authz"
	"github.com/hitoshi/shagun/internal/contribution"
	"github.com/hitoshi/shagun/internal/model"
)

// ContributionServiceInterface は寄付ハンドラーが必要とするサービスインターフェース。
type ContributionServiceInterface interface {
	Add(ctx context.Context, in contribution.Input) (string, error)
	List(ctx context.Context, caller *authz.Caller, eventID string) ([]*model.Contribution, error)
	Total(ctx context.Context, caller *authz.Caller, eventID string) (aggregate.Aggregate, error)
}

// ContributionHandler は寄付のHTTPハンドラー。
type ContributionHandler struct {
	service ContributionServiceInterface
}

// NewContributionHandler はContributionHandlerを生成する。
func NewContributionHandler(service ContributionServiceInterface) *ContributionHandler {
	return &ContributionHandler{service: service}
}

// contributionResponse は寄付のAPIレスポンス。金額がない寄付はamountがnullになる。
type contributionResponse struct {
	ID        string       `json:"id"`
	EventID   string       `json:"eventId"`
	Name      string       `json:"name"`
	Amount    *json.Number `json:"amount"`
	Relation  string       `json:"relation"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"createdAt"`
}

func toContributionResponse(c *model.Contribution) contributionResponse {
	resp := contributionResponse{
		ID:        c.ID,
		EventID:   c.EventID,
		Name:      c.Name,
		Relation:  c.Relation,
		Message:   c.Message,
		CreatedAt: c.CreatedAt,
	}
	if c.Amount.Valid {
		n := json.Number(c.Amount.Decimal.String())
		resp.Amount = &n
	}
	return resp
}

// AddContribution はゲストからの寄付を受け付ける。認証不要。
// POST /api/contributions/add
func (h *ContributionHandler) AddContribution(w http.ResponseWriter, r *http.Request) {
	var req contribution.Input
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.Add(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":        true,
		"contributionId": id,
		"message":        "Contribution added successfully",
	})
}

// GetContributions はイベントの寄付一覧を返す。所有者のみ。
// GET /api/contributions/get/{eventId}
func (h *ContributionHandler) GetContributions(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	contributions, err := h.service.List(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := make([]contributionResponse, len(contributions))
	for i, c := range contributions {
		data[i] = toContributionResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contributions": data,
	})
}

// totalRequest は合計取得リクエストのボディ。
type totalRequest struct {
	EventID string `json:"eventId"`
}

// GetTotal はイベントの寄付合計を返す。所有者のみ。
// eventIdはクエリパラメータ、なければJSONボディから読み取る。
// GET /api/contributions/gettotal?eventId=xxx
func (h *ContributionHandler) GetTotal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		var req totalRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}
		eventID = req.EventID
	}

	agg, err := h.service.Total(r.Context(), caller, eventID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"eventId":            eventID,
		"totalAmount":        agg.TotalAmountJSON(),
		"contributionsCount": agg.ContributionsCount,
	})
}
