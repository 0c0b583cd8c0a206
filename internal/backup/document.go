package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// DocumentVersion is the current backup wire format version.
	DocumentVersion = 1
	// DocumentApp identifies the producing application inside the document.
	DocumentApp = "pocketbook"
)

// Errors surfaced by the codec before any destructive step runs.
var (
	ErrInvalidDocument    = errors.New("invalid backup document")
	ErrUnsupportedVersion = errors.New("unsupported backup version")
	ErrNoDocument         = errors.New("no backup document chosen")
)

// Document is the portable point-in-time snapshot of the whole dataset.
// Attachment bytes ride along base64-inlined so one file restores both rows
// and images.
type Document struct {
	Version      int                 `json:"version"`
	App          string              `json:"app"`
	ExportedAt   time.Time           `json:"exported_at"`
	Wallets      []WalletRecord      `json:"wallets"`
	Transactions []TransactionRecord `json:"transactions"`
}

// WalletRecord is a wallet row extended with its optional image payload.
// Kept distinct from the live model so the wire schema can version
// independently.
type WalletRecord struct {
	WalletID            string    `json:"id"`
	Name                string    `json:"name"`
	InitialBalanceCents int64     `json:"initial_balance"`
	CurrentBalanceCents int64     `json:"current_balance"`
	Icon                string    `json:"icon"`
	CreatedAt           time.Time `json:"created_at"`
	ImageBase64         *string   `json:"image_base64"`
}

// TransactionRecord is a transaction row extended with its optional image
// payload.
type TransactionRecord struct {
	TransactionID string    `json:"id"`
	WalletID      string    `json:"wallet_id"`
	Type          string    `json:"type"`
	AmountCents   int64     `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ImageBase64   *string   `json:"image_base64"`
}

// Encode writes the document as indented JSON.
func (document Document) Encode(out io.Writer) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(document); err != nil {
		return fmt.Errorf("encode backup document: %w", err)
	}
	return nil
}

// documentEnvelope distinguishes absent sequences from empty ones during
// structural validation.
type documentEnvelope struct {
	Version      *int                 `json:"version"`
	App          string               `json:"app"`
	ExportedAt   time.Time            `json:"exported_at"`
	Wallets      *[]WalletRecord      `json:"wallets"`
	Transactions *[]TransactionRecord `json:"transactions"`
}

// DecodeDocument parses and structurally validates a backup document.
// Documents newer than DocumentVersion are rejected; older ones are
// accepted.
func DecodeDocument(in io.Reader) (Document, error) {
	var envelope documentEnvelope
	if err := json.NewDecoder(in).Decode(&envelope); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if envelope.Wallets == nil {
		return Document{}, fmt.Errorf("%w: missing wallets sequence", ErrInvalidDocument)
	}
	if envelope.Transactions == nil {
		return Document{}, fmt.Errorf("%w: missing transactions sequence", ErrInvalidDocument)
	}
	version := DocumentVersion
	if envelope.Version != nil {
		version = *envelope.Version
	}
	if version > DocumentVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return Document{
		Version:      version,
		App:          envelope.App,
		ExportedAt:   envelope.ExportedAt,
		Wallets:      *envelope.Wallets,
		Transactions: *envelope.Transactions,
	}, nil
}
