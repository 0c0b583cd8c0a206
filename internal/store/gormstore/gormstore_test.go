package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/pocketbook/pkg/wallet"
)

const testBaseUnix = 1700000000

func openTestStore(test *testing.T) *Store {
	test.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{})
	require.NoError(test, err)
	sqlDB, err := db.DB()
	require.NoError(test, err)
	// A fresh pool connection would see a fresh in-memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(test, Migrate(db))
	test.Cleanup(func() { _ = sqlDB.Close() })
	return New(db)
}

func testWallet(walletID string, createdUnix int64) wallet.Wallet {
	return wallet.Wallet{
		WalletID:            walletID,
		Name:                "Wallet " + walletID,
		InitialBalanceCents: 1000,
		CurrentBalanceCents: 1000,
		Icon:                wallet.IconWallet,
		CreatedUnixUTC:      createdUnix,
	}
}

func testTransaction(transactionID, walletID string, transactionType wallet.TransactionType, amount int64, createdUnix int64) wallet.Transaction {
	return wallet.Transaction{
		TransactionID:  transactionID,
		WalletID:       walletID,
		Type:           transactionType,
		AmountCents:    wallet.AmountCents(amount),
		Reason:         "test",
		CreatedUnixUTC: createdUnix,
	}
}

func TestWalletCRUDRoundTrip(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertWallet(ctx, testWallet("w-2", testBaseUnix+60)))

	record, ok, err := store.GetWallet(ctx, "w-1")
	require.NoError(test, err)
	require.True(test, ok)
	require.Equal(test, "Wallet w-1", record.Name)
	require.Equal(test, wallet.BalanceCents(1000), record.CurrentBalanceCents)

	_, ok, err = store.GetWallet(ctx, "missing")
	require.NoError(test, err)
	require.False(test, ok)

	records, err := store.ListWallets(ctx)
	require.NoError(test, err)
	require.Len(test, records, 2)
	require.Equal(test, "w-2", records[0].WalletID, "newest wallet first")

	record.Name = "Renamed"
	record.InitialBalanceCents = 5000
	require.NoError(test, store.SaveWallet(ctx, record))
	saved, ok, err := store.GetWallet(ctx, "w-1")
	require.NoError(test, err)
	require.True(test, ok)
	require.Equal(test, "Renamed", saved.Name)
	require.Equal(test, wallet.BalanceCents(5000), saved.InitialBalanceCents)

	require.NoError(test, store.SetWalletCurrentBalance(ctx, "w-1", -250))
	saved, _, err = store.GetWallet(ctx, "w-1")
	require.NoError(test, err)
	require.Equal(test, wallet.BalanceCents(-250), saved.CurrentBalanceCents)
}

func TestSaveWalletPersistsZeroBalances(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	record := testWallet("w-1", testBaseUnix)
	require.NoError(test, store.InsertWallet(ctx, record))
	record.InitialBalanceCents = 0
	record.CurrentBalanceCents = 0
	require.NoError(test, store.SaveWallet(ctx, record))

	saved, _, err := store.GetWallet(ctx, "w-1")
	require.NoError(test, err)
	require.Equal(test, wallet.BalanceCents(0), saved.InitialBalanceCents)
	require.Equal(test, wallet.BalanceCents(0), saved.CurrentBalanceCents)
}

func TestDeleteWalletCascadesToTransactions(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-1", "w-1", wallet.TransactionIn, 100, testBaseUnix+1)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-2", "w-1", wallet.TransactionOut, 40, testBaseUnix+2)))

	require.NoError(test, store.DeleteWallet(ctx, "w-1"))

	count, err := store.CountTransactions(ctx, "")
	require.NoError(test, err)
	require.Zero(test, count)
	records, err := store.ListTransactionsByWallet(ctx, "w-1", "")
	require.NoError(test, err)
	require.Empty(test, records)
}

func TestInsertTransactionRejectsUnknownWallet(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	err := store.InsertTransaction(ctx, testTransaction("t-1", "no-such-wallet", wallet.TransactionIn, 100, testBaseUnix))
	require.Error(test, err)
	require.ErrorIs(test, err, wallet.ErrUnknownWallet)
}

func TestSumAmountsSplitsByDirection(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertWallet(ctx, testWallet("w-2", testBaseUnix)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-1", "w-1", wallet.TransactionIn, 300, testBaseUnix+1)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-2", "w-1", wallet.TransactionOut, 120, testBaseUnix+2)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-3", "w-2", wallet.TransactionIn, 77, testBaseUnix+3)))

	sums, err := store.SumAmounts(ctx, "w-1")
	require.NoError(test, err)
	require.Equal(test, wallet.AmountCents(300), sums.TotalInCents)
	require.Equal(test, wallet.AmountCents(120), sums.TotalOutCents)

	all, err := store.SumAmounts(ctx, "")
	require.NoError(test, err)
	require.Equal(test, wallet.AmountCents(377), all.TotalInCents)

	empty, err := store.SumAmounts(ctx, "w-empty")
	require.NoError(test, err)
	require.Zero(test, empty.TotalInCents)
	require.Zero(test, empty.TotalOutCents)
}

func TestSumAmountsInRangeUsesHalfOpenWindow(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	monthStart := time.Date(2023, time.September, 1, 0, 0, 0, 0, time.UTC)
	nextMonthStart := monthStart.AddDate(0, 1, 0)
	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-before", "w-1", wallet.TransactionIn, 1, monthStart.Unix()-1)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-first", "w-1", wallet.TransactionIn, 10, monthStart.Unix())))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-last", "w-1", wallet.TransactionOut, 20, nextMonthStart.Unix()-1)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-after", "w-1", wallet.TransactionOut, 2, nextMonthStart.Unix())))

	sums, err := store.SumAmountsInRange(ctx, "w-1", monthStart.Unix(), nextMonthStart.Unix())
	require.NoError(test, err)
	require.Equal(test, wallet.AmountCents(10), sums.TotalInCents)
	require.Equal(test, wallet.AmountCents(20), sums.TotalOutCents)
}

func TestTransactionListingAndFilters(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-1", "w-1", wallet.TransactionIn, 1, testBaseUnix+10)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-2", "w-1", wallet.TransactionOut, 2, testBaseUnix+20)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-3", "w-1", wallet.TransactionIn, 3, testBaseUnix+30)))

	records, err := store.ListTransactionsByWallet(ctx, "w-1", "")
	require.NoError(test, err)
	require.Len(test, records, 3)
	require.Equal(test, "t-3", records[0].TransactionID, "newest first")

	inflows, err := store.ListTransactionsByWallet(ctx, "w-1", wallet.TransactionIn)
	require.NoError(test, err)
	require.Len(test, inflows, 2)

	recent, err := store.ListRecentTransactions(ctx, 2)
	require.NoError(test, err)
	require.Len(test, recent, 2)
	require.Equal(test, "t-3", recent[0].TransactionID)
	require.Equal(test, "t-2", recent[1].TransactionID)
}

func TestSaveTransactionMovesWallet(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertWallet(ctx, testWallet("w-2", testBaseUnix)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-1", "w-1", wallet.TransactionIn, 100, testBaseUnix+1)))

	moved := testTransaction("t-1", "w-2", wallet.TransactionOut, 90, testBaseUnix+1)
	require.NoError(test, store.SaveTransaction(ctx, moved))

	record, ok, err := store.GetTransaction(ctx, "t-1")
	require.NoError(test, err)
	require.True(test, ok)
	require.Equal(test, "w-2", record.WalletID)
	require.Equal(test, wallet.TransactionOut, record.Type)
	require.Equal(test, wallet.AmountCents(90), record.AmountCents)
}

func TestDeleteAllRemovesEveryRow(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()

	require.NoError(test, store.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
	require.NoError(test, store.InsertTransaction(ctx, testTransaction("t-1", "w-1", wallet.TransactionIn, 1, testBaseUnix)))

	require.NoError(test, store.DeleteAllTransactions(ctx))
	require.NoError(test, store.DeleteAllWallets(ctx))

	wallets, err := store.ListWallets(ctx)
	require.NoError(test, err)
	require.Empty(test, wallets)
	count, err := store.CountTransactions(ctx, "")
	require.NoError(test, err)
	require.Zero(test, count)
}

func TestWithTxRollsBackOnError(test *testing.T) {
	store := openTestStore(test)
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := store.WithTx(ctx, func(ctx context.Context, txStore wallet.Store) error {
		require.NoError(test, txStore.InsertWallet(ctx, testWallet("w-1", testBaseUnix)))
		return errAbort
	})
	require.ErrorIs(test, err, errAbort)

	_, ok, err := store.GetWallet(ctx, "w-1")
	require.NoError(test, err)
	require.False(test, ok)
}
