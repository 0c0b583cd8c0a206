package wallet

import (
	"context"
	"fmt"
	"strings"
)

// AmountCents is a non-negative transaction amount in minor currency units.
// The direction of the movement lives in TransactionType, never in the sign.
type AmountCents int64

// BalanceCents is a signed balance in minor currency units.
type BalanceCents int64

// WalletID identifies a wallet.
type WalletID struct {
	value string
}

// TransactionID identifies a ledger transaction.
type TransactionID struct {
	value string
}

// WalletName is a wallet's display name.
type WalletName struct {
	value string
}

// TransactionType tells whether a transaction moves money in or out.
type TransactionType string

const (
	TransactionIn  TransactionType = "in"
	TransactionOut TransactionType = "out"
)

// Icon is the symbolic tag shown next to a wallet.
type Icon string

const (
	IconWallet  Icon = "wallet"
	IconCash    Icon = "cash"
	IconCard    Icon = "card"
	IconBank    Icon = "bank"
	IconSavings Icon = "savings"
	IconCoin    Icon = "coin"
)

// Wallet is a named account whose current balance is always derivable from
// its initial balance plus the signed sum of its transactions.
type Wallet struct {
	WalletID            string
	Name                string
	InitialBalanceCents BalanceCents
	CurrentBalanceCents BalanceCents
	ImageURI            string
	Icon                Icon
	CreatedUnixUTC      int64
}

// Transaction is a single ledger line owned by exactly one wallet.
type Transaction struct {
	TransactionID  string
	WalletID       string
	Type           TransactionType
	AmountCents    AmountCents
	Reason         string
	ImageURI       string
	CreatedUnixUTC int64
}

// LedgerSums carries the per-direction amount totals of a wallet's ledger.
type LedgerSums struct {
	TotalInCents  AmountCents
	TotalOutCents AmountCents
}

// NewWalletID validates and normalizes a wallet id.
func NewWalletID(raw string) (WalletID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WalletID{}, fmt.Errorf("%w: empty value", ErrInvalidWalletID)
	}
	return WalletID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id WalletID) String() string {
	return id.value
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// NewWalletName validates and normalizes a wallet name.
func NewWalletName(raw string) (WalletName, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WalletName{}, fmt.Errorf("%w: empty value", ErrInvalidWalletName)
	}
	return WalletName{value: trimmed}, nil
}

// String returns the normalized name.
func (name WalletName) String() string {
	return name.value
}

// NewAmountCents validates a transaction amount. Zero is accepted; the
// reconciliation arithmetic stays correct either way and amount>0 policy
// belongs to the caller.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// ParseTransactionType validates a transaction direction.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(strings.TrimSpace(raw)) {
	case TransactionIn:
		return TransactionIn, nil
	case TransactionOut:
		return TransactionOut, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// String returns the stored direction tag.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseIcon validates an icon tag, defaulting empty input to IconWallet.
func ParseIcon(raw string) (Icon, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IconWallet, nil
	}
	switch Icon(trimmed) {
	case IconWallet, IconCash, IconCard, IconBank, IconSavings, IconCoin:
		return Icon(trimmed), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidIcon, raw)
}

// String returns the stored icon tag.
func (icon Icon) String() string {
	return string(icon)
}

// Store is the persistence contract consumed by Service and by the backup
// subsystem. Lookups report absence through the bool, not through an error;
// deletes and updates of missing rows are no-ops. A walletID of "" widens
// the aggregate and listing calls that accept one to the whole ledger.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	InsertWallet(ctx context.Context, record Wallet) error
	SaveWallet(ctx context.Context, record Wallet) error
	GetWallet(ctx context.Context, walletID string) (Wallet, bool, error)
	ListWallets(ctx context.Context) ([]Wallet, error)
	SetWalletCurrentBalance(ctx context.Context, walletID string, currentBalance BalanceCents) error
	DeleteWallet(ctx context.Context, walletID string) error
	DeleteAllWallets(ctx context.Context) error

	InsertTransaction(ctx context.Context, record Transaction) error
	SaveTransaction(ctx context.Context, record Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (Transaction, bool, error)
	ListTransactionsByWallet(ctx context.Context, walletID string, typeFilter TransactionType) ([]Transaction, error)
	ListAllTransactions(ctx context.Context) ([]Transaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID string) error
	DeleteAllTransactions(ctx context.Context) error

	SumAmounts(ctx context.Context, walletID string) (LedgerSums, error)
	SumAmountsInRange(ctx context.Context, walletID string, startUnixUTC, endUnixUTC int64) (LedgerSums, error)
	CountTransactions(ctx context.Context, walletID string) (int64, error)
}
