package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/pocketbook/pkg/wallet"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgIntegrityViolationClass = "23"
	sqliteConstraintCode      = 19
	errorOperationStore       = "store"
	errorSubjectWallet        = "wallet"
	errorSubjectTransaction   = "transaction"
	errorSubjectSum           = "sum"
	errorCodeInsert           = "insert"
	errorCodeSave             = "save"
	errorCodeGet              = "get"
	errorCodeList             = "list"
	errorCodeDelete           = "delete"
	errorCodeSetBalance       = "set_balance"
	errorCodeScan             = "scan"
	errorCodeCount            = "count"
)

// Store implements wallet.Store using GORM. It works against both the
// embedded sqlite driver and postgres; the cascade from wallets to
// transactions is enforced by the schema's foreign key.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Wallet{}, &Transaction{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) InsertWallet(ctx context.Context, record wallet.Wallet) error {
	model := walletModel(record)
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SaveWallet(ctx context.Context, record wallet.Wallet) error {
	model := walletModel(record)
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("wallet_id = ?", model.WalletID).
		Select("name", "initial_balance_cents", "current_balance_cents", "image_uri", "icon").
		Updates(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeSave, result.Error)
	}
	return nil
}

func (store *Store) GetWallet(ctx context.Context, walletID string) (wallet.Wallet, bool, error) {
	var model Wallet
	err := store.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Wallet{}, false, nil
	}
	if err != nil {
		return wallet.Wallet{}, false, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	record, err := mapWallet(model)
	if err != nil {
		return wallet.Wallet{}, false, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return record, true, nil
}

func (store *Store) ListWallets(ctx context.Context) ([]wallet.Wallet, error) {
	var models []Wallet
	err := store.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWallet, errorCodeList, err)
	}
	records := make([]wallet.Wallet, 0, len(models))
	for _, model := range models {
		record, err := mapWallet(model)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWallet, errorCodeList, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) SetWalletCurrentBalance(ctx context.Context, walletID string, currentBalance wallet.BalanceCents) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("wallet_id = ?", walletID).
		Update("current_balance_cents", int64(currentBalance))
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeSetBalance, result.Error)
	}
	return nil
}

func (store *Store) DeleteWallet(ctx context.Context, walletID string) error {
	err := store.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Delete(&Wallet{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) DeleteAllWallets(ctx context.Context) error {
	err := store.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&Wallet{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, record wallet.Transaction) error {
	model := transactionModel(record)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isConstraintViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, wallet.ErrUnknownWallet)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SaveTransaction(ctx context.Context, record wallet.Transaction) error {
	model := transactionModel(record)
	result := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("transaction_id = ?", model.TransactionID).
		Select("wallet_id", "type", "amount_cents", "reason", "image_uri").
		Updates(&model)
	if isConstraintViolation(result.Error) {
		return wrapStoreError(errorSubjectTransaction, errorCodeSave, wallet.ErrUnknownWallet)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeSave, result.Error)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, transactionID string) (wallet.Transaction, bool, error) {
	var model Transaction
	err := store.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Transaction{}, false, nil
	}
	if err != nil {
		return wallet.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	record, err := mapTransaction(model)
	if err != nil {
		return wallet.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	return record, true, nil
}

func (store *Store) ListTransactionsByWallet(ctx context.Context, walletID string, typeFilter wallet.TransactionType) ([]wallet.Transaction, error) {
	query := store.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC")
	if typeFilter != "" {
		query = query.Where("type = ?", typeFilter.String())
	}
	return store.listTransactions(query)
}

func (store *Store) ListAllTransactions(ctx context.Context) ([]wallet.Transaction, error) {
	query := store.db.WithContext(ctx).Order("created_at DESC")
	return store.listTransactions(query)
}

func (store *Store) ListRecentTransactions(ctx context.Context, limit int) ([]wallet.Transaction, error) {
	query := store.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit)
	return store.listTransactions(query)
}

func (store *Store) listTransactions(query *gorm.DB) ([]wallet.Transaction, error) {
	var models []Transaction
	if err := query.Find(&models).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	records := make([]wallet.Transaction, 0, len(models))
	for _, model := range models {
		record, err := mapTransaction(model)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) DeleteTransaction(ctx context.Context, transactionID string) error {
	err := store.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Delete(&Transaction{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) DeleteAllTransactions(ctx context.Context) error {
	err := store.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&Transaction{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) SumAmounts(ctx context.Context, walletID string) (wallet.LedgerSums, error) {
	query := store.db.WithContext(ctx).Model(&Transaction{})
	if walletID != "" {
		query = query.Where("wallet_id = ?", walletID)
	}
	return store.scanSums(query)
}

func (store *Store) SumAmountsInRange(ctx context.Context, walletID string, startUnixUTC, endUnixUTC int64) (wallet.LedgerSums, error) {
	query := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("created_at >= ? AND created_at < ?", time.Unix(startUnixUTC, 0).UTC(), time.Unix(endUnixUTC, 0).UTC())
	if walletID != "" {
		query = query.Where("wallet_id = ?", walletID)
	}
	return store.scanSums(query)
}

func (store *Store) scanSums(query *gorm.DB) (wallet.LedgerSums, error) {
	var sums sqlSums
	err := query.
		Select("coalesce(sum(case when type = 'in' then amount_cents else 0 end),0) as total_in, coalesce(sum(case when type = 'out' then amount_cents else 0 end),0) as total_out").
		Scan(&sums).Error
	if err != nil {
		return wallet.LedgerSums{}, wrapStoreError(errorSubjectSum, errorCodeScan, err)
	}
	return wallet.LedgerSums{
		TotalInCents:  wallet.AmountCents(sums.TotalIn),
		TotalOutCents: wallet.AmountCents(sums.TotalOut),
	}, nil
}

func (store *Store) CountTransactions(ctx context.Context, walletID string) (int64, error) {
	query := store.db.WithContext(ctx).Model(&Transaction{})
	if walletID != "" {
		query = query.Where("wallet_id = ?", walletID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeCount, err)
	}
	return count, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

type sqlSums struct {
	TotalIn  int64
	TotalOut int64
}

func walletModel(record wallet.Wallet) Wallet {
	return Wallet{
		WalletID:            record.WalletID,
		Name:                record.Name,
		InitialBalanceCents: int64(record.InitialBalanceCents),
		CurrentBalanceCents: int64(record.CurrentBalanceCents),
		ImageURI:            record.ImageURI,
		Icon:                record.Icon.String(),
		CreatedAt:           time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
}

func mapWallet(model Wallet) (wallet.Wallet, error) {
	icon, err := wallet.ParseIcon(model.Icon)
	if err != nil {
		return wallet.Wallet{}, err
	}
	return wallet.Wallet{
		WalletID:            model.WalletID,
		Name:                model.Name,
		InitialBalanceCents: wallet.BalanceCents(model.InitialBalanceCents),
		CurrentBalanceCents: wallet.BalanceCents(model.CurrentBalanceCents),
		ImageURI:            model.ImageURI,
		Icon:                icon,
		CreatedUnixUTC:      model.CreatedAt.Unix(),
	}, nil
}

func transactionModel(record wallet.Transaction) Transaction {
	return Transaction{
		TransactionID: record.TransactionID,
		WalletID:      record.WalletID,
		Type:          record.Type.String(),
		AmountCents:   int64(record.AmountCents),
		Reason:        record.Reason,
		ImageURI:      record.ImageURI,
		CreatedAt:     time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
}

func mapTransaction(model Transaction) (wallet.Transaction, error) {
	transactionType, err := wallet.ParseTransactionType(model.Type)
	if err != nil {
		return wallet.Transaction{}, err
	}
	amount, err := wallet.NewAmountCents(model.AmountCents)
	if err != nil {
		return wallet.Transaction{}, err
	}
	return wallet.Transaction{
		TransactionID:  model.TransactionID,
		WalletID:       model.WalletID,
		Type:           transactionType,
		AmountCents:    amount,
		Reason:         model.Reason,
		ImageURI:       model.ImageURI,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgIntegrityViolationClass)
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
