package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler exposes the inventory engine as JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.handleCreateTransaction)
	r.Post("/transfers", h.handleTransfer)
	r.Put("/reorder-levels", h.handleUpsertReorderLevel)
	r.Get("/stock-summary", h.handleStockSummary)
	r.Get("/lots", h.handleLots)
	r.Get("/alerts", h.handleAlerts)
	r.Get("/ledger", h.handleLedger)
	r.Get("/reports/valuation", h.handleValuation)
	r.Get("/reports/expiry", h.handleExpiry)
}

type transactionRequest struct {
	ProductID       int64           `json:"product_id"`
	WarehouseID     int64           `json:"warehouse_id"`
	TxnType         TransactionType `json:"txn_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LotID           *int64          `json:"lot_id"`
	LotNumber       string          `json:"lot_number"`
	ExpiryDate      string          `json:"expiry_date"`
	ManufactureDate string          `json:"manufacture_date"`
	ReceivedDate    string          `json:"received_date"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes"`
	TxnDate         string          `json:"txn_date"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

type transferRequest struct {
	ProductID       int64           `json:"product_id"`
	FromWarehouseID int64           `json:"from_warehouse_id"`
	ToWarehouseID   int64           `json:"to_warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LotID           *int64          `json:"lot_id"`
	LotNumber       string          `json:"lot_number"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes"`
	TxnDate         string          `json:"txn_date"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	dates, err := parseDates(map[string]string{
		"expiry_date":      req.ExpiryDate,
		"manufacture_date": req.ManufactureDate,
		"received_date":    req.ReceivedDate,
		"txn_date":         req.TxnDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.service.CreateTransaction(r.Context(), TransactionInput{
		ProductID:       req.ProductID,
		WarehouseID:     req.WarehouseID,
		Type:            req.TxnType,
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
		LotID:           req.LotID,
		LotNumber:       strings.TrimSpace(req.LotNumber),
		ExpiryDate:      dates["expiry_date"],
		ManufactureDate: dates["manufacture_date"],
		ReceivedDate:    dates["received_date"],
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
		Notes:           req.Notes,
		TxnDate:         dates["txn_date"],
		IdempotencyKey:  req.IdempotencyKey,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	dates, err := parseDates(map[string]string{"txn_date": req.TxnDate})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID:       req.ProductID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
		LotID:           req.LotID,
		LotNumber:       strings.TrimSpace(req.LotNumber),
		ReferenceID:     req.ReferenceID,
		Notes:           req.Notes,
		TxnDate:         dates["txn_date"],
		IdempotencyKey:  req.IdempotencyKey,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"transfer_id": res.TransferID,
		"out_id":      res.OutID,
		"in_id":       res.InID,
	})
}

func (h *Handler) handleUpsertReorderLevel(w http.ResponseWriter, r *http.Request) {
	var in ReorderLevelInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.service.UpsertReorderLevel(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *Handler) handleStockSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStockFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.service.StockSummary(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStockFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lotFilter := LotFilter{ProductID: filter.ProductID, WarehouseID: filter.WarehouseID}
	if raw := r.URL.Query().Get("active_only"); raw != "" {
		lotFilter.ActiveOnly, err = strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: active_only must be a boolean", ErrInvalidInput))
			return
		}
	}
	lots, err := h.service.Lots(r.Context(), lotFilter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.ReorderAlerts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStockFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	dates, err := parseDates(map[string]string{"from": q.Get("from"), "to": q.Get("to")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ledger := LedgerFilter{ProductID: filter.ProductID, WarehouseID: filter.WarehouseID}
	if from := dates["from"]; from != nil {
		ledger.From = *from
	}
	if to := dates["to"]; to != nil {
		ledger.To = *to
		if isDateOnly(q.Get("to")) {
			ledger.To = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		ledger.Limit, err = strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: limit must be an integer", ErrInvalidInput))
			return
		}
	}
	entries, err := h.service.Ledger(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ValuationReport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleExpiry(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ExpiryReport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if ErrorKind(err) == "" && !errors.Is(err, shared.ErrIdempotencyConflict) {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, kindStatus)
}

// kindStatus maps engine errors to response status and problem type.
func kindStatus(err error) (int, string, bool) {
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return http.StatusConflict, "IdempotencyConflict", true
	}
	kind := ErrorKind(err)
	switch kind {
	case "InvalidInput", "InvalidWarehousePair":
		return http.StatusBadRequest, kind, true
	case "LotNotFound":
		return http.StatusNotFound, kind, true
	case "InsufficientStock", "InsufficientLotQuantity", "ConcurrentUpdate":
		return http.StatusConflict, kind, true
	}
	return 0, "", false
}

func decodeBody(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func parseStockFilter(r *http.Request) (StockFilter, error) {
	q := r.URL.Query()
	var (
		f   StockFilter
		err error
	)
	if f.ProductID, err = parseID(q.Get("product_id"), "product_id"); err != nil {
		return f, err
	}
	f.WarehouseID, err = parseID(q.Get("warehouse_id"), "warehouse_id")
	return f, err
}

func parseID(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidInput, name)
	}
	return id, nil
}

// parseDates accepts ISO dates or RFC3339 timestamps; blanks map to nil.
func parseDates(raw map[string]string) (map[string]*time.Time, error) {
	out := make(map[string]*time.Time, len(raw))
	for name, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			out[name] = nil
			continue
		}
		layout := time.RFC3339
		if isDateOnly(value) {
			layout = time.DateOnly
		}
		t, err := time.Parse(layout, value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD or RFC3339", ErrInvalidInput, name)
		}
		out[name] = &t
	}
	return out, nil
}

func isDateOnly(value string) bool {
	return len(strings.TrimSpace(value)) == len(time.DateOnly)
}
