package wallet

const (
	operationCreateWallet      = "create_wallet"
	operationUpdateWallet      = "update_wallet"
	operationSetWalletBalance  = "set_wallet_balance"
	operationDeleteWallet      = "delete_wallet"
	operationCreateTransaction = "create_transaction"
	operationUpdateTransaction = "update_transaction"
	operationDeleteTransaction = "delete_transaction"
	operationRecalculate       = "recalculate"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
