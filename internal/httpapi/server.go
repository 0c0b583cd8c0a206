// Package httpapi exposes the wallet query surface and the backup pair over
// HTTP. It is the collaborator boundary for a presentation layer, not a UI.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pocketbook/internal/backup"
	"github.com/MarkoPoloResearchLab/pocketbook/pkg/wallet"
)

const defaultRecentLimit = 20

// Config carries the HTTP-facade settings.
type Config struct {
	AllowedOrigins []string
}

// Server routes HTTP requests into the wallet and backup services.
type Server struct {
	wallets *wallet.Service
	backups *backup.Service
	logger  *zap.Logger
	router  *gin.Engine
}

// NewServer wires the gin engine.
func NewServer(wallets *wallet.Service, backups *backup.Service, logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{wallets: wallets, backups: backups, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.requestLogger())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/wallets", server.handleListWallets)
	api.POST("/wallets", server.handleCreateWallet)
	api.GET("/wallets/:id", server.handleGetWallet)
	api.PUT("/wallets/:id", server.handleUpdateWallet)
	api.PUT("/wallets/:id/balance", server.handleSetWalletBalance)
	api.DELETE("/wallets/:id", server.handleDeleteWallet)
	api.GET("/wallets/:id/transactions", server.handleListTransactions)
	api.POST("/transactions", server.handleCreateTransaction)
	api.PUT("/transactions/:id", server.handleUpdateTransaction)
	api.DELETE("/transactions/:id", server.handleDeleteTransaction)
	api.GET("/stats/monthly", server.handleMonthlyStats)
	api.GET("/stats/overall", server.handleOverallStats)
	api.GET("/stats/recent", server.handleRecentTransactions)
	api.GET("/backup/export", server.handleExport)
	api.POST("/backup/import", server.handleImport)

	server.router = router
	return server
}

// Handler returns the http handler for serving.
func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		server.logger.Info("http request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

type walletRequest struct {
	Name           string `json:"name"`
	InitialBalance int64  `json:"initial_balance"`
	ImageURI       string `json:"image_uri"`
	Icon           string `json:"icon"`
}

type walletBalanceRequest struct {
	Name           string `json:"name"`
	CurrentBalance int64  `json:"current_balance"`
	Icon           string `json:"icon"`
}

type transactionRequest struct {
	WalletID string `json:"wallet_id"`
	Type     string `json:"type"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
	ImageURI string `json:"image_uri"`
}

type walletPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	InitialBalance int64  `json:"initial_balance"`
	CurrentBalance int64  `json:"current_balance"`
	ImageURI       string `json:"image_uri,omitempty"`
	Icon           string `json:"icon"`
	CreatedAtUnix  int64  `json:"created_at_unix"`
}

type transactionPayload struct {
	ID            string `json:"id"`
	WalletID      string `json:"wallet_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
	ImageURI      string `json:"image_uri,omitempty"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}

func (server *Server) handleListWallets(ctx *gin.Context) {
	records, err := server.wallets.Wallets(ctx.Request.Context())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]walletPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, toWalletPayload(record))
	}
	ctx.JSON(http.StatusOK, gin.H{"wallets": payloads})
}

func (server *Server) handleCreateWallet(ctx *gin.Context) {
	var request walletRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	name, err := wallet.NewWalletName(request.Name)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	icon, err := wallet.ParseIcon(request.Icon)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	record, err := server.wallets.CreateWallet(ctx.Request.Context(), name, wallet.BalanceCents(request.InitialBalance), request.ImageURI, icon)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"wallet": toWalletPayload(record)})
}

func (server *Server) handleGetWallet(ctx *gin.Context) {
	walletID, err := wallet.NewWalletID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	record, ok, err := server.wallets.WalletByID(ctx.Request.Context(), walletID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if !ok {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "wallet does not exist"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": toWalletPayload(record)})
}

func (server *Server) handleUpdateWallet(ctx *gin.Context) {
	walletID, err := wallet.NewWalletID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	var request walletRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	name, err := wallet.NewWalletName(request.Name)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	icon, err := wallet.ParseIcon(request.Icon)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	if err := server.wallets.UpdateWallet(ctx.Request.Context(), walletID, name, wallet.BalanceCents(request.InitialBalance), request.ImageURI, icon); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleSetWalletBalance(ctx *gin.Context) {
	walletID, err := wallet.NewWalletID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	var request walletBalanceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	name, err := wallet.NewWalletName(request.Name)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	icon, err := wallet.ParseIcon(request.Icon)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	if err := server.wallets.SetWalletBalance(ctx.Request.Context(), walletID, name, wallet.BalanceCents(request.CurrentBalance), icon); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleDeleteWallet(ctx *gin.Context) {
	walletID, err := wallet.NewWalletID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	if err := server.wallets.DeleteWallet(ctx.Request.Context(), walletID); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleListTransactions(ctx *gin.Context) {
	walletID, err := wallet.NewWalletID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	typeFilter := wallet.TransactionType("")
	if raw := ctx.Query("type"); raw != "" {
		parsed, err := wallet.ParseTransactionType(raw)
		if err != nil {
			server.respondBadRequest(ctx, err)
			return
		}
		typeFilter = parsed
	}
	records, err := server.wallets.TransactionsByWallet(ctx.Request.Context(), walletID, typeFilter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": toTransactionPayloads(records)})
}

func (server *Server) handleCreateTransaction(ctx *gin.Context) {
	var request transactionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	walletID, transactionType, amount, err := parseTransactionFields(request)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	record, err := server.wallets.CreateTransaction(ctx.Request.Context(), walletID, transactionType, amount, request.Reason, request.ImageURI)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": toTransactionPayload(record)})
}

func (server *Server) handleUpdateTransaction(ctx *gin.Context) {
	transactionID, err := wallet.NewTransactionID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	var request transactionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	walletID, transactionType, amount, err := parseTransactionFields(request)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	if err := server.wallets.UpdateTransaction(ctx.Request.Context(), transactionID, walletID, transactionType, amount, request.Reason, request.ImageURI); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleDeleteTransaction(ctx *gin.Context) {
	transactionID, err := wallet.NewTransactionID(ctx.Param("id"))
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	if err := server.wallets.DeleteTransaction(ctx.Request.Context(), transactionID); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleMonthlyStats(ctx *gin.Context) {
	scope, err := walletScope(ctx)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	months, err := server.wallets.MonthlyStats(ctx.Request.Context(), scope)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]gin.H, 0, len(months))
	for _, month := range months {
		payloads = append(payloads, gin.H{
			"year":      month.Year,
			"month":     int(month.Month),
			"total_in":  int64(month.TotalInCents),
			"total_out": int64(month.TotalOutCents),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"months": payloads})
}

func (server *Server) handleOverallStats(ctx *gin.Context) {
	scope, err := walletScope(ctx)
	if err != nil {
		server.respondBadRequest(ctx, err)
		return
	}
	stats, err := server.wallets.OverallStats(ctx.Request.Context(), scope)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"total_in":          int64(stats.TotalInCents),
		"total_out":         int64(stats.TotalOutCents),
		"transaction_count": stats.TransactionCount,
	})
}

func (server *Server) handleRecentTransactions(ctx *gin.Context) {
	limit := defaultRecentLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			server.respondBadRequest(ctx, err)
			return
		}
		limit = parsed
	}
	records, err := server.wallets.RecentTransactions(ctx.Request.Context(), limit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": toTransactionPayloads(records)})
}

func (server *Server) handleExport(ctx *gin.Context) {
	ctx.Header("Content-Type", "application/json")
	ctx.Header("Content-Disposition", `attachment; filename="pocketbook-backup.json"`)
	if err := server.backups.Export(ctx.Request.Context(), ctx.Writer); err != nil {
		server.respondError(ctx, err)
	}
}

func (server *Server) handleImport(ctx *gin.Context) {
	if err := server.backups.Import(ctx.Request.Context(), ctx.Request.Body); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func walletScope(ctx *gin.Context) (*wallet.WalletID, error) {
	raw := ctx.Query("wallet_id")
	if raw == "" {
		return nil, nil
	}
	walletID, err := wallet.NewWalletID(raw)
	if err != nil {
		return nil, err
	}
	return &walletID, nil
}

func parseTransactionFields(request transactionRequest) (wallet.WalletID, wallet.TransactionType, wallet.AmountCents, error) {
	walletID, err := wallet.NewWalletID(request.WalletID)
	if err != nil {
		return wallet.WalletID{}, "", 0, err
	}
	transactionType, err := wallet.ParseTransactionType(request.Type)
	if err != nil {
		return wallet.WalletID{}, "", 0, err
	}
	amount, err := wallet.NewAmountCents(request.Amount)
	if err != nil {
		return wallet.WalletID{}, "", 0, err
	}
	return walletID, transactionType, amount, nil
}

func (server *Server) respondBadRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
}

func (server *Server) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, wallet.ErrUnknownWallet):
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_wallet", err.Error()))
	case errors.Is(err, wallet.ErrInvalidLimit):
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
	case errors.Is(err, backup.ErrInvalidDocument), errors.Is(err, backup.ErrUnsupportedVersion):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("invalid_document", err.Error()))
	default:
		server.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func toWalletPayload(record wallet.Wallet) walletPayload {
	return walletPayload{
		ID:             record.WalletID,
		Name:           record.Name,
		InitialBalance: int64(record.InitialBalanceCents),
		CurrentBalance: int64(record.CurrentBalanceCents),
		ImageURI:       record.ImageURI,
		Icon:           record.Icon.String(),
		CreatedAtUnix:  record.CreatedUnixUTC,
	}
}

func toTransactionPayload(record wallet.Transaction) transactionPayload {
	return transactionPayload{
		ID:            record.TransactionID,
		WalletID:      record.WalletID,
		Type:          record.Type.String(),
		Amount:        int64(record.AmountCents),
		Reason:        record.Reason,
		ImageURI:      record.ImageURI,
		CreatedAtUnix: record.CreatedUnixUTC,
	}
}

func toTransactionPayloads(records []wallet.Transaction) []transactionPayload {
	payloads := make([]transactionPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, toTransactionPayload(record))
	}
	return payloads
}
