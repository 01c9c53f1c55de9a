package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shagun/internal/authz"
	"github.com/hitoshi/shagun/internal/event"
	"github.com/hitoshi/shagun/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	Create(ctx context.Context, caller *authz.Caller, in event.Input) (string, error)
	Get(ctx context.Context, caller *authz.Caller, eventID string) (*event.WithAggregate, error)
	GetPublic(ctx context.Context, eventID string) (*event.PublicEvent, error)
	ListMine(ctx context.Context, caller *authz.Caller) ([]event.WithAggregate, error)
	Update(ctx context.Context, caller *authz.Caller, eventID string, upd model.EventUpdate) (*model.Event, error)
	Delete(ctx context.Context, caller *authz.Caller, eventID string) error
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// updateEventRequest はイベント更新リクエストのボディ。
// 許可リストにないフィールド（ownerUid、createdAtなど）は読み捨てる。
type updateEventRequest struct {
	OccasionType *string `json:"occasionType"`
	BrideName    *string `json:"brideName"`
	GroomName    *string `json:"groomName"`
	EventDate    *string `json:"eventDate"`
	UpiID        *string `json:"upiId"`
}

func (req updateEventRequest) toUpdate() model.EventUpdate {
	return model.EventUpdate{
		OccasionType: req.OccasionType,
		BrideName:    req.BrideName,
		GroomName:    req.GroomName,
		EventDate:    req.EventDate,
		UpiID:        req.UpiID,
	}
}

// eventResponse は所有者向けのイベント情報のAPIレスポンス。
type eventResponse struct {
	ID                 string      `json:"id"`
	OccasionType       string      `json:"occasionType"`
	BrideName          string      `json:"brideName"`
	GroomName          string      `json:"groomName"`
	EventDate          string      `json:"eventDate"`
	UpiID              string      `json:"upiId"`
	OwnerUID           string      `json:"ownerUid"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
	ContributionsCount *int        `json:"contributionsCount,omitempty"`
	TotalAmount        json.Number `json:"totalAmount,omitempty"`
}

// publicEventResponse はゲスト向けのイベント情報のAPIレスポンス。所有者は含めない。
type publicEventResponse struct {
	ID           string `json:"id"`
	OccasionType string `json:"occasionType"`
	BrideName    string `json:"brideName"`
	GroomName    string `json:"groomName"`
	EventDate    string `json:"eventDate"`
	UpiID        string `json:"upiId"`
}

func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		OccasionType: e.OccasionType,
		BrideName:    e.BrideName,
		GroomName:    e.GroomName,
		EventDate:    e.EventDate,
		UpiID:        e.UpiID,
		OwnerUID:     e.OwnerUID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toEventWithAggregateResponse(ea *event.WithAggregate) eventResponse {
	resp := toEventResponse(ea.Event)
	count := ea.Aggregate.ContributionsCount
	resp.ContributionsCount = &count
	resp.TotalAmount = ea.Aggregate.TotalAmountJSON()
	return resp
}

// AddEvent はイベントを作成する。
// POST /api/events/addevent
func (h *EventHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req event.Input
	if !decodeJSON(w, r, &req) {
		return
	}

	eventID, err := h.service.Create(r.Context(), caller, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"eventId": eventID,
		"message": "Event created successfully",
	})
}

// GetEvent は所有者向けにイベントと寄付集計を返す。
// GET /api/events/event/{eventId}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	ea, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"event":   toEventWithAggregateResponse(ea),
	})
}

// GetPublicEvent はゲスト向けにイベント情報を返す。認証不要。
// GET /api/events/public/{eventId}
func (h *EventHandler) GetPublicEvent(w http.ResponseWriter, r *http.Request) {
	pe, err := h.service.GetPublic(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": publicEventResponse{
			ID:           pe.ID,
			OccasionType: pe.OccasionType,
			BrideName:    pe.BrideName,
			GroomName:    pe.GroomName,
			EventDate:    pe.EventDate,
			UpiID:        pe.UpiID,
		},
	})
}

// GetAllEvents は呼び出し元の全イベントを寄付集計付きで返す。
// GET /api/events/getall
func (h *EventHandler) GetAllEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListMine(r.Context(), caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := make([]eventResponse, len(events))
	for i := range events {
		data[i] = toEventWithAggregateResponse(&events[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

// UpdateEvent はイベントの許可リストのフィールドを更新する。
// PUT /api/events/event/{eventId}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req updateEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := h.service.Update(r.Context(), caller, chi.URLParam(r, "eventId"), req.toUpdate())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Event updated successfully",
		"event":   toEventResponse(e),
	})
}

// DeleteEvent はイベントを削除する。
// DELETE /api/events/event/{eventId}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "eventId")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Event deleted successfully"})
}
