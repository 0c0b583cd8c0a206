package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service contains the ledger domain logic over a Store. Every mutation of a
// wallet's ledger reconciles that wallet's current balance before the
// enclosing transaction commits, so readers never observe a balance that
// disagrees with the transaction history.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateWallet inserts a wallet with a fresh id. The current balance starts
// equal to the initial balance since no transactions exist yet.
func (service *Service) CreateWallet(ctx context.Context, name WalletName, initialBalance BalanceCents, imageURI string, icon Icon) (Wallet, error) {
	record := Wallet{
		WalletID:            uuid.NewString(),
		Name:                name.String(),
		InitialBalanceCents: initialBalance,
		CurrentBalanceCents: initialBalance,
		ImageURI:            imageURI,
		Icon:                icon,
		CreatedUnixUTC:      service.nowFn(),
	}
	operationError := service.store.InsertWallet(ctx, record)
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateWallet,
		WalletID:  record.WalletID,
		Balance:   initialBalance,
		Error:     operationError,
	})
	if operationError != nil {
		return Wallet{}, operationError
	}
	return record, nil
}

// UpdateWallet overwrites a wallet's stored fields and reconciles the
// current balance, because a changed initial balance changes the derived
// value. Missing wallets are a no-op.
func (service *Service) UpdateWallet(ctx context.Context, walletID WalletID, name WalletName, initialBalance BalanceCents, imageURI string, icon Icon) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		record, ok, err := txStore.GetWallet(ctx, walletID.String())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		record.Name = name.String()
		record.InitialBalanceCents = initialBalance
		record.ImageURI = imageURI
		record.Icon = icon
		if err := txStore.SaveWallet(ctx, record); err != nil {
			return err
		}
		return Recalculate(ctx, txStore, walletID.String())
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdateWallet,
		WalletID:  walletID.String(),
		Balance:   initialBalance,
		Error:     operationError,
	})
	return operationError
}

// SetWalletBalance is the inverse reconciliation: given a desired current
// balance it solves initial = desired - sum(in) + sum(out) and stores both
// balances atomically, leaving the transaction history untouched.
func (service *Service) SetWalletBalance(ctx context.Context, walletID WalletID, name WalletName, currentBalance BalanceCents, icon Icon) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		record, ok, err := txStore.GetWallet(ctx, walletID.String())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		sums, err := txStore.SumAmounts(ctx, walletID.String())
		if err != nil {
			return err
		}
		record.Name = name.String()
		record.Icon = icon
		record.InitialBalanceCents = currentBalance - BalanceCents(sums.TotalInCents) + BalanceCents(sums.TotalOutCents)
		record.CurrentBalanceCents = currentBalance
		return txStore.SaveWallet(ctx, record)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSetWalletBalance,
		WalletID:  walletID.String(),
		Balance:   currentBalance,
		Error:     operationError,
	})
	return operationError
}

// DeleteWallet removes a wallet; the store cascades the delete to its
// transactions. Nothing is left to reconcile afterwards.
func (service *Service) DeleteWallet(ctx context.Context, walletID WalletID) error {
	operationError := service.store.DeleteWallet(ctx, walletID.String())
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteWallet,
		WalletID:  walletID.String(),
		Error:     operationError,
	})
	return operationError
}

// CreateTransaction appends a ledger line to a wallet and reconciles that
// wallet within the same transaction.
func (service *Service) CreateTransaction(ctx context.Context, walletID WalletID, transactionType TransactionType, amount AmountCents, reason string, imageURI string) (Transaction, error) {
	record := Transaction{
		TransactionID:  uuid.NewString(),
		WalletID:       walletID.String(),
		Type:           transactionType,
		AmountCents:    amount,
		Reason:         reason,
		ImageURI:       imageURI,
		CreatedUnixUTC: service.nowFn(),
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if err := txStore.InsertTransaction(ctx, record); err != nil {
			return err
		}
		return Recalculate(ctx, txStore, walletID.String())
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCreateTransaction,
		WalletID:      walletID.String(),
		TransactionID: record.TransactionID,
		Amount:        amount,
		Error:         operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return record, nil
}

// UpdateTransaction overwrites a transaction's fields, re-pointing it to a
// different wallet when walletID differs from the stored owner. Both the new
// owner and the previous owner are reconciled. Missing transactions are a
// no-op.
func (service *Service) UpdateTransaction(ctx context.Context, transactionID TransactionID, walletID WalletID, transactionType TransactionType, amount AmountCents, reason string, imageURI string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		existing, ok, err := txStore.GetTransaction(ctx, transactionID.String())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		updated := existing
		updated.WalletID = walletID.String()
		updated.Type = transactionType
		updated.AmountCents = amount
		updated.Reason = reason
		updated.ImageURI = imageURI
		if err := txStore.SaveTransaction(ctx, updated); err != nil {
			return err
		}
		if err := Recalculate(ctx, txStore, walletID.String()); err != nil {
			return err
		}
		if existing.WalletID != walletID.String() {
			return Recalculate(ctx, txStore, existing.WalletID)
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationUpdateTransaction,
		WalletID:      walletID.String(),
		TransactionID: transactionID.String(),
		Amount:        amount,
		Error:         operationError,
	})
	return operationError
}

// DeleteTransaction removes a ledger line and reconciles its former owner.
// Missing transactions are a no-op.
func (service *Service) DeleteTransaction(ctx context.Context, transactionID TransactionID) error {
	var ownerID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		existing, ok, err := txStore.GetTransaction(ctx, transactionID.String())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		ownerID = existing.WalletID
		if err := txStore.DeleteTransaction(ctx, transactionID.String()); err != nil {
			return err
		}
		return Recalculate(ctx, txStore, existing.WalletID)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationDeleteTransaction,
		WalletID:      ownerID,
		TransactionID: transactionID.String(),
		Error:         operationError,
	})
	return operationError
}

// Recalculate runs forward reconciliation for one wallet inside its own
// transaction.
func (service *Service) Recalculate(ctx context.Context, walletID WalletID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return Recalculate(ctx, txStore, walletID.String())
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRecalculate,
		WalletID:  walletID.String(),
		Error:     operationError,
	})
	return operationError
}

// Wallets lists all wallets, newest first.
func (service *Service) Wallets(ctx context.Context) ([]Wallet, error) {
	return service.store.ListWallets(ctx)
}

// WalletByID fetches one wallet; absence is reported through the bool.
func (service *Service) WalletByID(ctx context.Context, walletID WalletID) (Wallet, bool, error) {
	return service.store.GetWallet(ctx, walletID.String())
}

// TransactionsByWallet lists a wallet's transactions newest first,
// optionally narrowed to one direction ("" keeps both).
func (service *Service) TransactionsByWallet(ctx context.Context, walletID WalletID, typeFilter TransactionType) ([]Transaction, error) {
	return service.store.ListTransactionsByWallet(ctx, walletID.String(), typeFilter)
}

// Recalculate is the forward reconciliation: it recomputes a wallet's
// current balance as initial + sum(in) - sum(out) over the live ledger.
// Deliberately a full recompute rather than an incremental delta, so any
// prior drift self-heals on the next mutation. A vanished wallet is a
// silent no-op.
func Recalculate(ctx context.Context, store Store, walletID string) error {
	record, ok, err := store.GetWallet(ctx, walletID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	sums, err := store.SumAmounts(ctx, walletID)
	if err != nil {
		return err
	}
	currentBalance := record.InitialBalanceCents + BalanceCents(sums.TotalInCents) - BalanceCents(sums.TotalOutCents)
	return store.SetWalletCurrentBalance(ctx, walletID, currentBalance)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
