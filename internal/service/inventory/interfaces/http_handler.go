package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"depot/internal/service/inventory/application"
	"depot/internal/service/inventory/domain"
)

// InventoryHandler 封装库存引擎的 HTTP 处理器。这一层只做请求/响应翻译，
// 所有业务语义都在 application 层。
type InventoryHandler struct {
	service *application.Service
}

func NewInventoryHandler(service *application.Service) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /reservations", h.createReservation)
	mux.HandleFunc("POST /reservations/extend", h.extendReservation)
	mux.HandleFunc("GET /reservations/{id}", h.getReservation)
	mux.HandleFunc("POST /orders/{ref}/complete", h.completeOrder)
	mux.HandleFunc("POST /orders/{ref}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /orders/{ref}/reservations", h.listOrderReservations)

	mux.HandleFunc("POST /stock/receive", h.receiveStock)
	mux.HandleFunc("POST /stock/adjust", h.adjustStock)
	mux.HandleFunc("POST /stock/transfer", h.transferStock)
	mux.HandleFunc("GET /stock/availability", h.availability)
	mux.HandleFunc("GET /stock/low", h.lowStock)

	mux.HandleFunc("GET /ledger", h.queryLedger)
	mux.HandleFunc("GET /ledger/sum", h.sumLedger)
}

type createReservationRequest struct {
	ItemID      string `json:"item_id"`
	WarehouseID string `json:"warehouse_id,omitempty"`
	Quantity    int    `json:"quantity"`
	OrderRef    string `json:"order_ref"`
	ActorID     string `json:"actor_id,omitempty"`
	TTLMinutes  int    `json:"ttl_minutes"`
}

type reservationResponse struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	OrderRef    string `json:"order_ref"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at"`
}

func toReservationResponse(r *domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:          r.ID,
		ItemID:      r.ItemID,
		WarehouseID: r.WarehouseID,
		Quantity:    r.Quantity,
		OrderRef:    r.OrderRef,
		Status:      string(r.Status),
		ExpiresAt:   r.ExpiresAt.Format(time.RFC3339),
	}
}

func (h *InventoryHandler) createReservation(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ttl := time.Duration(req.TTLMinutes) * time.Minute

	created, err := h.service.Reserve(ctx, application.ReserveCommand{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		OrderRef:    req.OrderRef,
		ActorID:     req.ActorID,
		TTL:         ttl,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]reservationResponse, len(created))
	for i, res := range created {
		resp[i] = toReservationResponse(res)
	}
	writeJSON(w, http.StatusCreated, resp)
}

type extendRequest struct {
	ReservationID string `json:"reservation_id"`
	Minutes       int    `json:"minutes"`
}

func (h *InventoryHandler) extendReservation(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.service.Extend(ctx, req.ReservationID, req.Minutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *InventoryHandler) getReservation(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	res, err := h.service.GetReservation(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *InventoryHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		ActorID string `json:"actor_id"`
	}
	// body 可为空，actor 缺省按匿名处理
	_ = json.NewDecoder(r.Body).Decode(&req)

	allOK, err := h.service.Complete(ctx, r.PathValue("ref"), req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"all_legs_ok": allOK})
}

func (h *InventoryHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	allOK, err := h.service.Cancel(ctx, r.PathValue("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"all_legs_ok": allOK})
}

func (h *InventoryHandler) listOrderReservations(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	list, err := h.service.ListReservationsByOrder(ctx, r.PathValue("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]reservationResponse, len(list))
	for i, res := range list {
		resp[i] = toReservationResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

type receiveRequest struct {
	ItemID      string `json:"item_id"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	ReferenceID string `json:"reference_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	Note        string `json:"note,omitempty"`
	BinLocation string `json:"bin_location,omitempty"`
	Aisle       string `json:"aisle,omitempty"`
	Rack        string `json:"rack,omitempty"`
}

func (h *InventoryHandler) receiveStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := h.service.Receive(ctx, application.ReceiveCommand{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		ReferenceID: req.ReferenceID,
		ActorID:     req.ActorID,
		Note:        req.Note,
		BinLocation: req.BinLocation,
		Aisle:       req.Aisle,
		Rack:        req.Rack,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		ItemID      string `json:"item_id"`
		WarehouseID string `json:"warehouse_id"`
		Delta       int    `json:"delta"`
		Reason      string `json:"reason"`
		ActorID     string `json:"actor_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := h.service.Adjust(ctx, application.AdjustCommand{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		ActorID:     req.ActorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) transferStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		ItemID          string `json:"item_id"`
		FromWarehouseID string `json:"from"`
		ToWarehouseID   string `json:"to"`
		Quantity        int    `json:"quantity"`
		ActorID         string `json:"actor_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := h.service.Transfer(ctx, application.TransferCommand{
		ItemID:          req.ItemID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		ActorID:         req.ActorID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) availability(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	result, err := h.service.Availability(ctx, r.URL.Query().Get("item"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	threshold, _ := strconv.Atoi(r.URL.Query().Get("threshold"))
	result, err := h.service.LowStock(ctx, threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) queryLedger(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	q := r.URL.Query()

	filter := domain.LedgerFilter{
		ItemID:      q.Get("item"),
		WarehouseID: q.Get("warehouse"),
		Type:        domain.TransactionType(q.Get("type")),
		ReferenceID: q.Get("reference_id"),
	}
	filter.From, filter.To = parseTimeRange(q.Get("from"), q.Get("to"))
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}

	records, err := h.service.QueryLedger(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *InventoryHandler) sumLedger(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	q := r.URL.Query()
	from, to := parseTimeRange(q.Get("from"), q.Get("to"))

	sums, err := h.service.SumLedgerByType(ctx, q.Get("item"), q.Get("warehouse"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// --- 辅助 ---

// extractTraceContext 从请求头恢复上游注入的追踪上下文，保证跨服务链路不断。
func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func parseTimeRange(from, to string) (time.Time, time.Time) {
	var f, t time.Time
	if from != "" {
		if parsed, err := time.Parse(time.RFC3339, from); err == nil {
			f = parsed
		}
	}
	if to != "" {
		if parsed, err := time.Parse(time.RFC3339, to); err == nil {
			t = parsed
		}
	}
	return f, t
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 将领域错误翻译为 HTTP 状态码。并发冲突返回 409，调用方可重试。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConcurrencyConflict):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
