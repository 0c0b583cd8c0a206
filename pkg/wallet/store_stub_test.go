package wallet

import (
	"context"
	"sort"
	"testing"
)

// stubStore is an in-memory Store mirroring the relational semantics the
// service relies on, including the wallet-to-transaction cascade.
type stubStore struct {
	wallets      []Wallet
	transactions []Transaction

	insertWalletError      error
	saveWalletError        error
	getWalletError         error
	setBalanceError        error
	insertTransactionError error
	saveTransactionError   error
	sumAmountsError        error
	sumRangeError          error
	countError             error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) InsertWallet(_ context.Context, record Wallet) error {
	if store.insertWalletError != nil {
		return store.insertWalletError
	}
	store.wallets = append(store.wallets, record)
	return nil
}

func (store *stubStore) SaveWallet(_ context.Context, record Wallet) error {
	if store.saveWalletError != nil {
		return store.saveWalletError
	}
	for index := range store.wallets {
		if store.wallets[index].WalletID == record.WalletID {
			store.wallets[index] = record
		}
	}
	return nil
}

func (store *stubStore) GetWallet(_ context.Context, walletID string) (Wallet, bool, error) {
	if store.getWalletError != nil {
		return Wallet{}, false, store.getWalletError
	}
	for _, record := range store.wallets {
		if record.WalletID == walletID {
			return record, true, nil
		}
	}
	return Wallet{}, false, nil
}

func (store *stubStore) ListWallets(_ context.Context) ([]Wallet, error) {
	records := append([]Wallet(nil), store.wallets...)
	sort.SliceStable(records, func(left, right int) bool {
		return records[left].CreatedUnixUTC > records[right].CreatedUnixUTC
	})
	return records, nil
}

func (store *stubStore) SetWalletCurrentBalance(_ context.Context, walletID string, currentBalance BalanceCents) error {
	if store.setBalanceError != nil {
		return store.setBalanceError
	}
	for index := range store.wallets {
		if store.wallets[index].WalletID == walletID {
			store.wallets[index].CurrentBalanceCents = currentBalance
		}
	}
	return nil
}

func (store *stubStore) DeleteWallet(_ context.Context, walletID string) error {
	kept := store.wallets[:0]
	for _, record := range store.wallets {
		if record.WalletID != walletID {
			kept = append(kept, record)
		}
	}
	store.wallets = kept
	keptTransactions := store.transactions[:0]
	for _, record := range store.transactions {
		if record.WalletID != walletID {
			keptTransactions = append(keptTransactions, record)
		}
	}
	store.transactions = keptTransactions
	return nil
}

func (store *stubStore) DeleteAllWallets(_ context.Context) error {
	store.wallets = nil
	return nil
}

func (store *stubStore) InsertTransaction(_ context.Context, record Transaction) error {
	if store.insertTransactionError != nil {
		return store.insertTransactionError
	}
	store.transactions = append(store.transactions, record)
	return nil
}

func (store *stubStore) SaveTransaction(_ context.Context, record Transaction) error {
	if store.saveTransactionError != nil {
		return store.saveTransactionError
	}
	for index := range store.transactions {
		if store.transactions[index].TransactionID == record.TransactionID {
			store.transactions[index] = record
		}
	}
	return nil
}

func (store *stubStore) GetTransaction(_ context.Context, transactionID string) (Transaction, bool, error) {
	for _, record := range store.transactions {
		if record.TransactionID == transactionID {
			return record, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (store *stubStore) ListTransactionsByWallet(_ context.Context, walletID string, typeFilter TransactionType) ([]Transaction, error) {
	records := make([]Transaction, 0, len(store.transactions))
	for _, record := range store.transactions {
		if record.WalletID != walletID {
			continue
		}
		if typeFilter != "" && record.Type != typeFilter {
			continue
		}
		records = append(records, record)
	}
	sortNewestFirst(records)
	return records, nil
}

func (store *stubStore) ListAllTransactions(_ context.Context) ([]Transaction, error) {
	records := append([]Transaction(nil), store.transactions...)
	sortNewestFirst(records)
	return records, nil
}

func (store *stubStore) ListRecentTransactions(_ context.Context, limit int) ([]Transaction, error) {
	records := append([]Transaction(nil), store.transactions...)
	sortNewestFirst(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (store *stubStore) DeleteTransaction(_ context.Context, transactionID string) error {
	kept := store.transactions[:0]
	for _, record := range store.transactions {
		if record.TransactionID != transactionID {
			kept = append(kept, record)
		}
	}
	store.transactions = kept
	return nil
}

func (store *stubStore) DeleteAllTransactions(_ context.Context) error {
	store.transactions = nil
	return nil
}

func (store *stubStore) SumAmounts(_ context.Context, walletID string) (LedgerSums, error) {
	if store.sumAmountsError != nil {
		return LedgerSums{}, store.sumAmountsError
	}
	return store.sum(walletID, 0, 0), nil
}

func (store *stubStore) SumAmountsInRange(_ context.Context, walletID string, startUnixUTC, endUnixUTC int64) (LedgerSums, error) {
	if store.sumRangeError != nil {
		return LedgerSums{}, store.sumRangeError
	}
	return store.sum(walletID, startUnixUTC, endUnixUTC), nil
}

func (store *stubStore) CountTransactions(_ context.Context, walletID string) (int64, error) {
	if store.countError != nil {
		return 0, store.countError
	}
	var count int64
	for _, record := range store.transactions {
		if walletID == "" || record.WalletID == walletID {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) sum(walletID string, startUnixUTC, endUnixUTC int64) LedgerSums {
	var sums LedgerSums
	for _, record := range store.transactions {
		if walletID != "" && record.WalletID != walletID {
			continue
		}
		if endUnixUTC != 0 && (record.CreatedUnixUTC < startUnixUTC || record.CreatedUnixUTC >= endUnixUTC) {
			continue
		}
		switch record.Type {
		case TransactionIn:
			sums.TotalInCents += record.AmountCents
		case TransactionOut:
			sums.TotalOutCents += record.AmountCents
		}
	}
	return sums
}

func (store *stubStore) mustWallet(test *testing.T, walletID string) Wallet {
	test.Helper()
	for _, record := range store.wallets {
		if record.WalletID == walletID {
			return record
		}
	}
	test.Fatalf("wallet %s not in store", walletID)
	return Wallet{}
}

func sortNewestFirst(records []Transaction) {
	sort.SliceStable(records, func(left, right int) bool {
		return records[left].CreatedUnixUTC > records[right].CreatedUnixUTC
	})
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustWalletName(test *testing.T, raw string) WalletName {
	test.Helper()
	name, err := NewWalletName(raw)
	if err != nil {
		test.Fatalf("wallet name %q: %v", raw, err)
	}
	return name
}

func mustWalletID(test *testing.T, raw string) WalletID {
	test.Helper()
	walletID, err := NewWalletID(raw)
	if err != nil {
		test.Fatalf("wallet id %q: %v", raw, err)
	}
	return walletID
}

func mustTransactionID(test *testing.T, raw string) TransactionID {
	test.Helper()
	transactionID, err := NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id %q: %v", raw, err)
	}
	return transactionID
}

func mustAmountCents(test *testing.T, raw int64) AmountCents {
	test.Helper()
	amount, err := NewAmountCents(raw)
	if err != nil {
		test.Fatalf("amount %d: %v", raw, err)
	}
	return amount
}
