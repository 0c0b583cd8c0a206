package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet mirrors the wallets table.
type Wallet struct {
	WalletID            string        `gorm:"type:uuid;primaryKey"`
	Name                string        `gorm:"not null"`
	InitialBalanceCents int64         `gorm:"not null"`
	CurrentBalanceCents int64         `gorm:"not null"`
	ImageURI            string        `gorm:""`
	Icon                string        `gorm:"not null"`
	CreatedAt           time.Time     `gorm:"not null;index:idx_wallets_created"`
	Transactions        []Transaction `gorm:"foreignKey:WalletID;references:WalletID;constraint:OnDelete:CASCADE"`
}

func (Wallet) TableName() string { return "wallets" }

func (wallet *Wallet) BeforeCreate(tx *gorm.DB) error {
	if wallet.WalletID == "" {
		wallet.WalletID = uuid.NewString()
	}
	return nil
}

// Transaction mirrors the transactions table.
type Transaction struct {
	TransactionID string    `gorm:"type:uuid;primaryKey"`
	WalletID      string    `gorm:"type:uuid;not null;index:idx_transactions_wallet_created,priority:1"`
	Type          string    `gorm:"not null;check:type in ('in','out')"`
	AmountCents   int64     `gorm:"not null"`
	Reason        string    `gorm:""`
	ImageURI      string    `gorm:""`
	CreatedAt     time.Time `gorm:"not null;index:idx_transactions_wallet_created,priority:2"`
}

func (Transaction) TableName() string { return "transactions" }

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}
