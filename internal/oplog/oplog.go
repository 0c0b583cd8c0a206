// Package oplog bridges the domain's operation log seam to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/pocketbook/pkg/wallet"
	"go.uber.org/zap"
)

// Logger emits every wallet operation as a structured log line.
type Logger struct {
	zap *zap.Logger
}

// New wires a Logger.
func New(zapLogger *zap.Logger) *Logger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Logger{zap: zapLogger}
}

// LogOperation implements wallet.OperationLogger.
func (logger *Logger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.WalletID != "" {
		fields = append(fields, zap.String("wallet_id", entry.WalletID))
	}
	if entry.TransactionID != "" {
		fields = append(fields, zap.String("transaction_id", entry.TransactionID))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", int64(entry.Amount)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		logger.zap.Warn("wallet operation failed", fields...)
		return
	}
	logger.zap.Info("wallet operation", fields...)
}
