package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rahil234/SnapCart-sub000/internal/core/identity"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
	"github.com/shopspring/decimal"
)

// CustomerIDHeader carries the authenticated caller identity set by the gateway.
const CustomerIDHeader = "X-Customer-ID"

type WalletHandler struct {
	usecase  usecase.WalletUsecase
	resolver identity.Resolver
	log      logger.Logger
}

type OperationRequest struct {
	Amount      string `json:"amount"`
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

type TransactionResponse struct {
	Transaction *models.Transaction `json:"transaction"`
	Balance     string              `json:"balance,omitempty"`
}

type WalletResponse struct {
	Wallet  *models.Wallet `json:"wallet"`
	Balance string         `json:"balance"`
}

type TransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

type ValidateRequest struct {
	Amount string `json:"amount"`
}

type StatusRequest struct {
	IsActive *bool `json:"is_active"`
}

func NewWalletHandler(usecase usecase.WalletUsecase, resolver identity.Resolver, log logger.Logger) *WalletHandler {
	return &WalletHandler{usecase: usecase, resolver: resolver, log: log}
}

func (h *WalletHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/wallet", h.GetWallet).Methods("GET")
	router.HandleFunc("/api/v1/wallet/credit", h.operation(models.TransactionCredit)).Methods("POST")
	router.HandleFunc("/api/v1/wallet/debit", h.operation(models.TransactionDebit)).Methods("POST")
	router.HandleFunc("/api/v1/wallet/refund", h.operation(models.TransactionRefund)).Methods("POST")
	router.HandleFunc("/api/v1/wallet/cashback", h.operation(models.TransactionCashback)).Methods("POST")
	router.HandleFunc("/api/v1/wallet/validate", h.ValidateBalance).Methods("POST")
	router.HandleFunc("/api/v1/wallet/transactions", h.ListTransactions).Methods("GET")

	router.HandleFunc("/api/v1/admin/wallets/{owner_id}/status", h.SetStatus).Methods("POST")
	router.HandleFunc("/api/v1/admin/wallets/{owner_id}/reconcile", h.Reconcile).Methods("GET")
	router.HandleFunc("/api/v1/admin/transactions/{id}/reverse", h.ReverseTransaction).Methods("POST")
}

// ownerID resolves the caller, writing the error response itself on failure.
func (h *WalletHandler) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(CustomerIDHeader))
	if caller == "" {
		respondWithError(w, http.StatusUnauthorized, "missing "+CustomerIDHeader+" header")
		return "", false
	}
	ownerID, err := h.resolver.ResolveOwnerID(r.Context(), caller)
	if err != nil {
		handleOperationError(w, h.log, "resolve_owner", err, logger.StringField("caller", caller))
		return "", false
	}
	return ownerID, true
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	wallet, err := h.usecase.GetOrCreate(r.Context(), ownerID)
	if err != nil {
		handleOperationError(w, h.log, "get_wallet", err, logger.StringField("owner_id", ownerID))
		return
	}
	respondWithJSON(w, http.StatusOK, WalletResponse{
		Wallet:  wallet,
		Balance: wallet.Balance.StringFixedBank(models.MoneyScale),
	})
}

func (h *WalletHandler) operation(t models.TransactionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := h.ownerID(w, r)
		if !ok {
			return
		}

		var req OperationRequest
		if err := decodeRequest(w, r, &req); err != nil {
			h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		amount, err := parseAmount(req.Amount)
		if err != nil {
			h.log.Warn("Invalid amount", logger.StringField("amount", req.Amount), logger.ErrorField("error", err))
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		tx, err := h.execute(r, t, ownerID, amount, req)
		if err != nil {
			handleOperationError(w, h.log, string(t), err,
				logger.StringField("owner_id", ownerID),
				logger.StringField("amount", amount.String()),
				logger.StringField("order_id", req.OrderID))
			return
		}

		respondWithJSON(w, http.StatusOK, TransactionResponse{
			Transaction: tx,
			Balance:     tx.BalanceAfter.StringFixedBank(models.MoneyScale),
		})
	}
}

func (h *WalletHandler) execute(r *http.Request, t models.TransactionType, ownerID string, amount decimal.Decimal, req OperationRequest) (*models.Transaction, error) {
	ctx := r.Context()
	switch t {
	case models.TransactionCredit:
		return h.usecase.Credit(ctx, ownerID, amount, req.Description, req.Reference)
	case models.TransactionDebit:
		return h.usecase.Debit(ctx, ownerID, amount, req.OrderID, req.Reference, req.Description)
	case models.TransactionRefund:
		return h.usecase.Refund(ctx, ownerID, amount, req.OrderID, req.Reference, req.Description)
	case models.TransactionCashback:
		return h.usecase.Cashback(ctx, ownerID, amount, req.OrderID, req.Reference, req.Description)
	default:
		return nil, models.ErrInvalidTransactionType
	}
}

func (h *WalletHandler) ValidateBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req ValidateRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.usecase.ValidateBalance(r.Context(), ownerID, amount)
	if err != nil {
		handleOperationError(w, h.log, "validate", err, logger.StringField("owner_id", ownerID))
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, total, err := h.usecase.ListTransactions(r.Context(), ownerID, limit, offset)
	if err != nil {
		handleOperationError(w, h.log, "list_transactions", err, logger.StringField("owner_id", ownerID))
		return
	}
	respondWithJSON(w, http.StatusOK, TransactionsResponse{
		Transactions: txs,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}

func (h *WalletHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["owner_id"]

	var req StatusRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IsActive == nil {
		respondWithError(w, http.StatusBadRequest, "is_active is required")
		return
	}

	wallet, err := h.usecase.SetActive(r.Context(), ownerID, *req.IsActive)
	if err != nil {
		handleOperationError(w, h.log, "set_status", err, logger.StringField("owner_id", ownerID))
		return
	}
	respondWithJSON(w, http.StatusOK, WalletResponse{
		Wallet:  wallet,
		Balance: wallet.Balance.StringFixedBank(models.MoneyScale),
	})
}

func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["owner_id"]
	rec, err := h.usecase.Reconcile(r.Context(), ownerID)
	if err != nil {
		handleOperationError(w, h.log, "reconcile", err, logger.StringField("owner_id", ownerID))
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *WalletHandler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	tx, err := h.usecase.ReverseTransaction(r.Context(), id)
	if err != nil {
		handleOperationError(w, h.log, "reverse", err, logger.StringField("transaction_id", id.String()))
		return
	}
	// balance_after keeps the value recorded when the transaction completed.
	respondWithJSON(w, http.StatusOK, TransactionResponse{Transaction: tx})
}
