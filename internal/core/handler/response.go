package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahil234/SnapCart-sub000/internal/core/identity"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
	"github.com/shopspring/decimal"
)

const (
	maxBodyBytes     = 1 << 20
	retryAfterSecond = "1"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

var amountRegexp = regexp.MustCompile(`^\s*\d{1,12}([.,]\d{1,2})?\s*$`)

// parseAmount accepts "100", "100.5" and "100,50"; spaces are ignored.
func parseAmount(amountStr string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(amountStr, " ", ""), ",", ".")

	if !amountRegexp.MatchString(cleaned) {
		return decimal.Zero, fmt.Errorf("invalid amount format: %q", amountStr)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not parse amount: %v", err)
	}

	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}

	return amount, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload")
	}
	return nil
}

// statusFor maps domain errors onto HTTP codes. Anything unrecognised is a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, usecase.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid quantity"
	case errors.Is(err, usecase.ErrInvalidPatch):
		return http.StatusBadRequest, "invalid patch"
	case errors.Is(err, usecase.ErrInvalidOwnerID), errors.Is(err, models.ErrInvalidTransactionType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, usecase.ErrWalletInactive):
		return http.StatusUnprocessableEntity, "wallet is inactive"
	case errors.Is(err, usecase.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, usecase.ErrInvalidStatusTransition):
		return http.StatusConflict, "invalid status transition"
	case errors.Is(err, usecase.ErrDuplicateOrderEntry):
		return http.StatusConflict, "order entry conflicts with an existing transaction"
	case errors.Is(err, usecase.ErrWalletNotFound):
		return http.StatusNotFound, "wallet not found"
	case errors.Is(err, usecase.ErrVariantNotFound):
		return http.StatusNotFound, "variant not found"
	case errors.Is(err, usecase.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found"
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound, "customer not found"
	case errors.Is(err, usecase.ErrContention):
		return http.StatusServiceUnavailable, "resource busy, retry later"
	default:
		return http.StatusInternalServerError, "failed to process operation"
	}
}

func handleOperationError(w http.ResponseWriter, log logger.Logger, op string, err error, fields ...logger.Field) {
	code, message := statusFor(err)
	fields = append(fields, logger.StringField("op", op), logger.ErrorField("error", err))
	switch code {
	case http.StatusInternalServerError:
		log.Error("Failed to process operation", fields...)
	case http.StatusServiceUnavailable:
		log.Warn("Operation hit contention", fields...)
		w.Header().Set("Retry-After", retryAfterSecond)
	default:
		log.Warn("Operation rejected", fields...)
	}
	respondWithError(w, code, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error"}`)) // Fallback response
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
