package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahil234/SnapCart-sub000/internal/core/events"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/metrics"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	publishTimeout  = 2 * time.Second
)

type WalletUsecase interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.Wallet, error)
	GetWallet(ctx context.Context, ownerID string) (*models.Wallet, error)
	Credit(ctx context.Context, ownerID string, amount decimal.Decimal, description, reference string) (*models.Transaction, error)
	Debit(ctx context.Context, ownerID string, amount decimal.Decimal, orderID, reference, description string) (*models.Transaction, error)
	Refund(ctx context.Context, ownerID string, amount decimal.Decimal, orderID, reference, description string) (*models.Transaction, error)
	Cashback(ctx context.Context, ownerID string, amount decimal.Decimal, orderID, reference, description string) (*models.Transaction, error)
	ValidateBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (*models.BalanceValidation, error)
	ListTransactions(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, int, error)
	ReverseTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error)
	SetActive(ctx context.Context, ownerID string, active bool) (*models.Wallet, error)
	Reconcile(ctx context.Context, ownerID string) (*models.Reconciliation, error)
}

type WalletConfig struct {
	Currency string
}

type walletUsecase struct {
	repo      repository.WalletRepository
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       logger.Logger
	currency  string
}

func NewWalletUsecase(repo repository.WalletRepository, publisher events.Publisher, m *metrics.Metrics, log logger.Logger, cfg WalletConfig) WalletUsecase {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &walletUsecase{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log,
		currency:  cfg.Currency,
	}
}

func (uc *walletUsecase) GetOrCreate(ctx context.Context, ownerID string) (*models.Wallet, error) {
	if ownerID == "" {
		return nil, ErrInvalidOwnerID
	}

	wallet, err := uc.repo.GetByOwnerID(ctx, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	created := models.NewWallet(ownerID, uc.currency, time.Now().UTC())
	err = uc.repo.Create(ctx, &created)
	switch {
	case err == nil:
		uc.log.Info("Wallet created",
			logger.StringField("owner_id", ownerID),
			logger.StringField("wallet_id", created.ID.String()))
		return &created, nil
	case errors.Is(err, repository.ErrAlreadyExists):
		// Lost a first-access race; the winner's wallet is the one to use.
		wallet, err := uc.repo.GetByOwnerID(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("get wallet after create race: %w", err)
		}
		return wallet, nil
	default:
		return nil, fmt.Errorf("create wallet: %w", err)
	}
}

func (uc *walletUsecase) GetWallet(ctx context.Context, ownerID string) (*models.Wallet, error) {
	wallet, err := uc.repo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, uc.mapErr(err, ownerID)
	}
	return wallet, nil
}

func (uc *walletUsecase) Credit(ctx context.Context, ownerID string, amount decimal.Decimal, description, reference string) (*models.Transaction, error) {
	return uc.apply(ctx, ownerID, models.LedgerEntry{
		Type:        models.TransactionCredit,
		Amount:      amount,
		Description: description,
		Reference:   reference,
	}, true)
}

func (uc *walletUsecase) Debit(ctx context.Context, ownerID string, amount decimal.Decimal, orderID, reference, description string) (*models.Transaction, error) {
	return uc.apply(ctx, ownerID, orderEntry(models.TransactionDebit, amount, orderID, reference, description), false)
}

func (uc *walletUsecase) Refund(ctx context.Context, ownerID string, amount decimal.Decimal, orderID, reference, description string) (*models.Transaction, error) {
	return uc.apply(ctx, ownerID, orderEntry(models.TransactionRefund, amount, orderID, reference, description), true)
}

func (uc *walletUsecase) Cashback(ctx context.Context, ownerID string, amount decimal.Decimal, orderID, reference, description string) (*models.Transaction, error) {
	return uc.apply(ctx, ownerID, orderEntry(models.TransactionCashback, amount, orderID, reference, description), true)
}

// orderEntry builds an order-scoped entry. reference tells apart separate
// operations on one order, such as partial refunds of different lines.
func orderEntry(t models.TransactionType, amount decimal.Decimal, orderID, reference, description string) models.LedgerEntry {
	e := models.LedgerEntry{
		Type:        t,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		OrderID:     orderID,
	}
	if orderID != "" {
		e.Metadata = models.Metadata{"order_id": orderID}
	}
	return e
}

// apply validates, optionally get-or-creates the wallet, then hands the
// entry to the repository, which re-checks every rule under the row lock.
func (uc *walletUsecase) apply(ctx context.Context, ownerID string, entry models.LedgerEntry, create bool) (tx *models.Transaction, err error) {
	op := string(entry.Type)
	defer func() { uc.metrics.WalletOperation(op, resultOf(err)) }()

	uc.log.Info("Starting operation",
		logger.StringField("owner_id", ownerID),
		logger.StringField("type", op),
		logger.StringField("amount", entry.Amount.String()))

	if ownerID == "" {
		return nil, ErrInvalidOwnerID
	}
	if err := entry.Validate(); err != nil {
		uc.log.Warn("Invalid ledger entry",
			logger.StringField("owner_id", ownerID),
			logger.StringField("amount", entry.Amount.String()),
			logger.ErrorField("error", err))
		return nil, err
	}

	if create {
		if _, err := uc.GetOrCreate(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	res, err := uc.repo.ExecuteTxWithRetry(ctx, ownerID, entry)
	if err != nil {
		err = uc.mapErr(err, ownerID)
		uc.logFailure(op, ownerID, entry.Amount, err)
		return nil, err
	}

	if res.Replayed {
		uc.log.Info("Duplicate order entry, returning existing transaction",
			logger.StringField("owner_id", ownerID),
			logger.StringField("order_id", entry.OrderID),
			logger.StringField("transaction_id", res.Transaction.ID.String()))
		return &res.Transaction, nil
	}

	uc.log.Info("Wallet operation successful",
		logger.StringField("owner_id", ownerID),
		logger.StringField("type", op),
		logger.StringField("amount", entry.Amount.String()),
		logger.StringField("new_balance", res.Wallet.Balance.StringFixedBank(models.MoneyScale)))

	uc.publish(ctx, "wallet.transaction.completed", ownerID, res)
	return &res.Transaction, nil
}

func (uc *walletUsecase) ValidateBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (*models.BalanceValidation, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	balance := decimal.Zero
	wallet, err := uc.repo.GetByOwnerID(ctx, ownerID)
	switch {
	case err == nil:
		balance = wallet.Balance
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	v := models.ValidateBalance(balance, amount)
	return &v, nil
}

func (uc *walletUsecase) ListTransactions(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, int, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := uc.repo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []models.Transaction{}, 0, nil
		}
		return nil, 0, fmt.Errorf("get wallet: %w", err)
	}

	txs, total, err := uc.repo.ListTransactions(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}

func (uc *walletUsecase) ReverseTransaction(ctx context.Context, transactionID uuid.UUID) (tx *models.Transaction, err error) {
	defer func() { uc.metrics.WalletOperation("reverse", resultOf(err)) }()

	res, err := uc.repo.ReverseTxWithRetry(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
		}
		uc.log.Warn("Reversal failed",
			logger.StringField("transaction_id", transactionID.String()),
			logger.ErrorField("error", err))
		return nil, err
	}

	uc.log.Info("Transaction reversed",
		logger.StringField("transaction_id", transactionID.String()),
		logger.StringField("wallet_id", res.Wallet.ID.String()),
		logger.StringField("new_balance", res.Wallet.Balance.StringFixedBank(models.MoneyScale)))

	uc.publish(ctx, "wallet.transaction.reversed", res.Wallet.OwnerID, res)
	return &res.Transaction, nil
}

func (uc *walletUsecase) SetActive(ctx context.Context, ownerID string, active bool) (*models.Wallet, error) {
	wallet, err := uc.repo.SetActive(ctx, ownerID, active)
	if err != nil {
		return nil, uc.mapErr(err, ownerID)
	}
	uc.log.Info("Wallet activity changed",
		logger.StringField("owner_id", ownerID),
		logger.AnyField("is_active", active))
	return wallet, nil
}

func (uc *walletUsecase) Reconcile(ctx context.Context, ownerID string) (*models.Reconciliation, error) {
	wallet, err := uc.repo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, uc.mapErr(err, ownerID)
	}
	rec, err := uc.repo.LedgerSum(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger sum: %w", err)
	}
	if !rec.Balanced {
		uc.log.Error("Wallet balance does not match ledger",
			logger.StringField("wallet_id", wallet.ID.String()),
			logger.StringField("balance", rec.Balance.String()),
			logger.StringField("ledger_sum", rec.LedgerSum.String()))
	}
	return rec, nil
}

func (uc *walletUsecase) mapErr(err error, ownerID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: owner %s", ErrWalletNotFound, ownerID)
	}
	return err
}

func (uc *walletUsecase) logFailure(op, ownerID string, amount decimal.Decimal, err error) {
	fields := []logger.Field{
		logger.StringField("owner_id", ownerID),
		logger.StringField("type", op),
		logger.StringField("amount", amount.String()),
		logger.ErrorField("error", err),
	}
	if IsRejection(err) {
		uc.log.Warn("Wallet operation rejected", fields...)
		return
	}
	uc.log.Error("Wallet operation failed", fields...)
}

// publish runs after commit; a failure is logged and never undoes the operation.
func (uc *walletUsecase) publish(ctx context.Context, eventType, ownerID string, res *repository.LedgerResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := &events.WalletEvent{
		EventType:       eventType,
		OwnerID:         ownerID,
		WalletID:        res.Wallet.ID,
		TransactionID:   res.Transaction.ID,
		TransactionType: string(res.Transaction.Type),
		Status:          string(res.Transaction.Status),
		Amount:          res.Transaction.Amount,
		BalanceAfter:    res.Wallet.Balance,
		Currency:        res.Wallet.Currency,
		Timestamp:       time.Now().UTC(),
	}
	if res.Transaction.OrderID != nil {
		event.OrderID = *res.Transaction.OrderID
	}
	if err := uc.publisher.PublishWalletEvent(ctx, event); err != nil {
		uc.log.Warn("Failed to publish wallet event",
			logger.StringField("event_type", eventType),
			logger.StringField("transaction_id", res.Transaction.ID.String()),
			logger.ErrorField("error", err))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case IsRejection(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
