package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
	"github.com/shopspring/decimal"
)

type StockHandler struct {
	usecase usecase.StockUsecase
	log     logger.Logger
}

type CreateVariantRequest struct {
	ProductID uuid.UUID       `json:"product_id"`
	SKU       string          `json:"sku"`
	Stock     int             `json:"stock"`
	Price     decimal.Decimal `json:"price"`
	IsActive  *bool           `json:"is_active"`
}

type StockRequest struct {
	Quantity *int `json:"quantity"`
}

type ReduceResponse struct {
	Reduced bool            `json:"reduced"`
	Error   string          `json:"error,omitempty"`
	Variant *models.Variant `json:"variant,omitempty"`
}

type MovementsResponse struct {
	Movements []models.StockMovement `json:"movements"`
}

func NewStockHandler(usecase usecase.StockUsecase, log logger.Logger) *StockHandler {
	return &StockHandler{usecase: usecase, log: log}
}

func (h *StockHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/variants", h.CreateVariant).Methods("POST")
	router.HandleFunc("/api/v1/variants/{id}", h.GetVariant).Methods("GET")
	router.HandleFunc("/api/v1/variants/{id}", h.UpdateVariant).Methods("PATCH")
	router.HandleFunc("/api/v1/variants/{id}/stock", h.SetStock).Methods("PUT")
	router.HandleFunc("/api/v1/variants/{id}/stock/add", h.AddStock).Methods("POST")
	router.HandleFunc("/api/v1/variants/{id}/stock/reduce", h.ReduceStock).Methods("POST")
	router.HandleFunc("/api/v1/variants/{id}/movements", h.ListMovements).Methods("GET")
}

func variantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid variant id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *StockHandler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req CreateVariantRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID == uuid.Nil || req.SKU == "" {
		respondWithError(w, http.StatusBadRequest, "product_id and sku are required")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	v, err := h.usecase.CreateVariant(r.Context(), models.NewVariantParams{
		ProductID: req.ProductID,
		SKU:       req.SKU,
		Stock:     req.Stock,
		Price:     req.Price,
		IsActive:  active,
	})
	if err != nil {
		handleOperationError(w, h.log, "create_variant", err, logger.StringField("sku", req.SKU))
		return
	}
	respondWithJSON(w, http.StatusCreated, v)
}

func (h *StockHandler) GetVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := variantID(w, r)
	if !ok {
		return
	}
	v, err := h.usecase.GetVariant(r.Context(), id)
	if err != nil {
		handleOperationError(w, h.log, "get_variant", err, logger.StringField("variant_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}

func (h *StockHandler) UpdateVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := variantID(w, r)
	if !ok {
		return
	}
	var patch models.VariantPatch
	if err := decodeRequest(w, r, &patch); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.usecase.UpdateVariant(r.Context(), id, patch)
	if err != nil {
		handleOperationError(w, h.log, "patch", err, logger.StringField("variant_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}

func (h *StockHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	h.stockChange(w, r, "set", h.usecase.SetStock)
}

func (h *StockHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	h.stockChange(w, r, "add", h.usecase.AddStock)
}

func (h *StockHandler) stockChange(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id uuid.UUID, quantity int) error) {
	id, quantity, ok := h.decodeStock(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id, quantity); err != nil {
		handleOperationError(w, h.log, op, err,
			logger.StringField("variant_id", id.String()),
			logger.IntField("quantity", quantity))
		return
	}
	h.respondWithVariant(w, r, id)
}

func (h *StockHandler) ReduceStock(w http.ResponseWriter, r *http.Request) {
	id, quantity, ok := h.decodeStock(w, r)
	if !ok {
		return
	}
	reduced, err := h.usecase.ReduceStock(r.Context(), id, quantity)
	if err != nil {
		handleOperationError(w, h.log, "reduce", err,
			logger.StringField("variant_id", id.String()),
			logger.IntField("quantity", quantity))
		return
	}
	if !reduced {
		respondWithJSON(w, http.StatusConflict, ReduceResponse{Reduced: false, Error: "insufficient stock"})
		return
	}
	v, err := h.usecase.GetVariant(r.Context(), id)
	if err != nil {
		// The reduction is committed; only the read-back failed.
		respondWithJSON(w, http.StatusOK, ReduceResponse{Reduced: true})
		return
	}
	respondWithJSON(w, http.StatusOK, ReduceResponse{Reduced: true, Variant: v})
}

func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := variantID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	movements, err := h.usecase.ListMovements(r.Context(), id, limit)
	if err != nil {
		handleOperationError(w, h.log, "list_movements", err, logger.StringField("variant_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, MovementsResponse{Movements: movements})
}

func (h *StockHandler) decodeStock(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	id, ok := variantID(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	var req StockRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, 0, false
	}
	if req.Quantity == nil {
		respondWithError(w, http.StatusBadRequest, "quantity is required")
		return uuid.Nil, 0, false
	}
	return id, *req.Quantity, true
}

func (h *StockHandler) respondWithVariant(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	v, err := h.usecase.GetVariant(r.Context(), id)
	if err != nil {
		handleOperationError(w, h.log, "get_variant", err, logger.StringField("variant_id", id.String()))
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}
