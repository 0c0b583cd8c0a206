package backup

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/MarkoPoloResearchLab/pocketbook/pkg/wallet"
	"go.uber.org/zap"
)

const (
	exportFileNamePattern = "pocketbook-backup-%s.json"
	exportFileTimeLayout  = "20060102-150405"
	imageFileExtension    = ".img"
)

// Service exports the whole dataset into one Document and restores it with
// destructive-replace semantics.
type Service struct {
	store  wallet.Store
	images *ImageStore
	nowFn  func() int64
	logger *zap.Logger
}

// NewService wires a backup Service.
func NewService(store wallet.Store, images *ImageStore, now func() int64, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("backup service: store dependency is nil")
	}
	if images == nil {
		return nil, fmt.Errorf("backup service: image store dependency is nil")
	}
	if now == nil {
		return nil, fmt.Errorf("backup service: clock dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, images: images, nowFn: now, logger: logger}, nil
}

// Export writes a snapshot of every wallet and transaction, inlining each
// referenced image as base64. An unreadable image degrades to a null payload
// for that one record; it never aborts the export.
func (service *Service) Export(ctx context.Context, out io.Writer) error {
	wallets, err := service.store.ListWallets(ctx)
	if err != nil {
		return err
	}
	transactions, err := service.store.ListAllTransactions(ctx)
	if err != nil {
		return err
	}
	document := Document{
		Version:      DocumentVersion,
		App:          DocumentApp,
		ExportedAt:   time.Unix(service.nowFn(), 0).UTC(),
		Wallets:      make([]WalletRecord, 0, len(wallets)),
		Transactions: make([]TransactionRecord, 0, len(transactions)),
	}
	for _, record := range wallets {
		document.Wallets = append(document.Wallets, WalletRecord{
			WalletID:            record.WalletID,
			Name:                record.Name,
			InitialBalanceCents: int64(record.InitialBalanceCents),
			CurrentBalanceCents: int64(record.CurrentBalanceCents),
			Icon:                record.Icon.String(),
			CreatedAt:           time.Unix(record.CreatedUnixUTC, 0).UTC(),
			ImageBase64:         service.inlineImage(record.ImageURI),
		})
	}
	for _, record := range transactions {
		document.Transactions = append(document.Transactions, TransactionRecord{
			TransactionID: record.TransactionID,
			WalletID:      record.WalletID,
			Type:          record.Type.String(),
			AmountCents:   int64(record.AmountCents),
			Reason:        record.Reason,
			CreatedAt:     time.Unix(record.CreatedUnixUTC, 0).UTC(),
			ImageBase64:   service.inlineImage(record.ImageURI),
		})
	}
	service.logger.Info("backup export",
		zap.Int("wallets", len(document.Wallets)),
		zap.Int("transactions", len(document.Transactions)))
	return document.Encode(out)
}

// ExportToFile writes the snapshot into dir under a timestamped name and
// returns the file path.
func (service *Service) ExportToFile(ctx context.Context, dir string) (string, error) {
	name := fmt.Sprintf(exportFileNamePattern, time.Unix(service.nowFn(), 0).UTC().Format(exportFileTimeLayout))
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := service.Export(ctx, file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}

// Import restores a snapshot destructively. Structural validation happens
// before anything is touched; attachments are staged to disk next; then one
// store transaction deletes every transaction and wallet, inserts the
// document rows verbatim, and forward-reconciles every imported wallet so a
// stale or hand-edited current balance is never trusted. The attachment
// directory is swapped only after the transaction committed.
func (service *Service) Import(ctx context.Context, in io.Reader) error {
	document, err := DecodeDocument(in)
	if err != nil {
		return err
	}
	wallets, transactions, err := mapDocumentRows(document)
	if err != nil {
		return err
	}

	staging, err := service.images.Stage()
	if err != nil {
		return err
	}
	for index := range document.Wallets {
		wallets[index].ImageURI = service.stageImage(staging, wallets[index].WalletID, document.Wallets[index].ImageBase64)
	}
	for index := range document.Transactions {
		transactions[index].ImageURI = service.stageImage(staging, transactions[index].TransactionID, document.Transactions[index].ImageBase64)
	}

	err = service.store.WithTx(ctx, func(ctx context.Context, txStore wallet.Store) error {
		if err := txStore.DeleteAllTransactions(ctx); err != nil {
			return err
		}
		if err := txStore.DeleteAllWallets(ctx); err != nil {
			return err
		}
		for _, record := range wallets {
			if err := txStore.InsertWallet(ctx, record); err != nil {
				return err
			}
		}
		for _, record := range transactions {
			if err := txStore.InsertTransaction(ctx, record); err != nil {
				return err
			}
		}
		for _, record := range wallets {
			if err := wallet.Recalculate(ctx, txStore, record.WalletID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = staging.Discard()
		return err
	}
	if err := service.images.Swap(staging); err != nil {
		return err
	}
	service.logger.Info("backup import",
		zap.Int("wallets", len(wallets)),
		zap.Int("transactions", len(transactions)))
	return nil
}

// ImportFromFile opens path and restores it. An empty path means the user
// chose no document; that is reported as ErrNoDocument, a distinct non-error
// outcome for callers, never as a failure.
func (service *Service) ImportFromFile(ctx context.Context, path string) error {
	if path == "" {
		return ErrNoDocument
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return service.Import(ctx, file)
}

func (service *Service) inlineImage(uri string) *string {
	if uri == "" {
		return nil
	}
	data, err := service.images.Read(uri)
	if err != nil {
		service.logger.Warn("image unreadable at export, recording null", zap.String("uri", uri), zap.Error(err))
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return &encoded
}

func (service *Service) stageImage(staging *Staging, rowID string, payload *string) string {
	if payload == nil {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(*payload)
	if err != nil {
		service.logger.Warn("image payload undecodable, recording null", zap.String("row_id", rowID), zap.Error(err))
		return ""
	}
	uri, err := staging.Write(service.images, rowID+imageFileExtension, data)
	if err != nil {
		service.logger.Warn("image unwritable at import, recording null", zap.String("row_id", rowID), zap.Error(err))
		return ""
	}
	return uri
}

// mapDocumentRows validates the document rows into domain records, still
// before any destructive step.
func mapDocumentRows(document Document) ([]wallet.Wallet, []wallet.Transaction, error) {
	wallets := make([]wallet.Wallet, 0, len(document.Wallets))
	for _, record := range document.Wallets {
		walletID, err := wallet.NewWalletID(record.WalletID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: wallet id: %v", ErrInvalidDocument, err)
		}
		name, err := wallet.NewWalletName(record.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: wallet %s: %v", ErrInvalidDocument, record.WalletID, err)
		}
		icon, err := wallet.ParseIcon(record.Icon)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: wallet %s: %v", ErrInvalidDocument, record.WalletID, err)
		}
		wallets = append(wallets, wallet.Wallet{
			WalletID:            walletID.String(),
			Name:                name.String(),
			InitialBalanceCents: wallet.BalanceCents(record.InitialBalanceCents),
			CurrentBalanceCents: wallet.BalanceCents(record.CurrentBalanceCents),
			Icon:                icon,
			CreatedUnixUTC:      record.CreatedAt.Unix(),
		})
	}
	transactions := make([]wallet.Transaction, 0, len(document.Transactions))
	for _, record := range document.Transactions {
		transactionID, err := wallet.NewTransactionID(record.TransactionID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: transaction id: %v", ErrInvalidDocument, err)
		}
		walletID, err := wallet.NewWalletID(record.WalletID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: transaction %s: %v", ErrInvalidDocument, record.TransactionID, err)
		}
		transactionType, err := wallet.ParseTransactionType(record.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: transaction %s: %v", ErrInvalidDocument, record.TransactionID, err)
		}
		amount, err := wallet.NewAmountCents(record.AmountCents)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: transaction %s: %v", ErrInvalidDocument, record.TransactionID, err)
		}
		transactions = append(transactions, wallet.Transaction{
			TransactionID:  transactionID.String(),
			WalletID:       walletID.String(),
			Type:           transactionType,
			AmountCents:    amount,
			Reason:         record.Reason,
			CreatedUnixUTC: record.CreatedAt.Unix(),
		})
	}
	return wallets, transactions, nil
}
