package models

import "errors"

// Business-rule violations raised by the next-state functions. The usecase
// package re-exports them so callers never import models for error matching.
var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidStatusTransition = errors.New("invalid transaction status transition")
	ErrInvalidPatch            = errors.New("invalid patch")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrWalletInactive          = errors.New("wallet is inactive")
	ErrWalletMismatch          = errors.New("transaction does not belong to wallet")
	ErrDuplicateOrderEntry     = errors.New("order entry conflicts with an existing transaction")
)
