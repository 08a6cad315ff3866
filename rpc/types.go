package rpc

import (
	"encoding/json"

	"salechain/core"
	"salechain/core/types"
	"salechain/integrations/reporting"
	"salechain/native/token"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeServerError       = -32000
	codeUnauthorized      = -32001
	codeDuplicateTx       = -32010
	codeRateLimited       = -32020
	codeNotFound          = -32030
	codeInsufficientFunds = -32031
	codeOverflow          = -32032
	codeSaleClosed        = -32033
	codeTxFailed          = -32034
)

// RPCRequest is a JSON-RPC 2.0 request with positional params.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// SendTransactionResult is returned by ledger_sendTransaction.
type SendTransactionResult struct {
	TxHash  string         `json:"txHash"`
	Receipt *types.Receipt `json:"receipt"`
}

// AccountResult describes a ledger account.
type AccountResult struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       []byte `json:"data"`
	Executable bool   `json:"executable"`
	Exists     bool   `json:"exists"`
}

// TokenAccountResult describes a token account and its mint.
type TokenAccountResult struct {
	Address string              `json:"address"`
	Account *token.TokenAccount `json:"account"`
}

// MintResult describes a token mint.
type MintResult struct {
	Address string      `json:"address"`
	Mint    *token.Mint `json:"mint"`
}

// MinimumBalanceResult is returned by ledger_minimumBalance.
type MinimumBalanceResult struct {
	DataLen  int    `json:"dataLen"`
	Lamports uint64 `json:"lamports"`
}

// AirdropResult is returned by ledger_airdrop.
type AirdropResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Balance  uint64 `json:"balance"`
}

// HeadResult is returned by ledger_head.
type HeadResult struct {
	Slot      uint64 `json:"slot"`
	StateRoot string `json:"stateRoot"`
	Timestamp int64  `json:"timestamp"`
}

// PurchasesParams pages through a sale's purchases.
type PurchasesParams struct {
	SaleID string `json:"saleId"`
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

// PurchasesResult is one page of settled purchases.
type PurchasesResult struct {
	SaleID    string                `json:"saleId"`
	Total     uint64                `json:"total"`
	Offset    uint64                `json:"offset"`
	Purchases []core.PurchaseRecord `json:"purchases"`
}

// AirdropParams requests faucet lamports.
type AirdropParams struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// SaleStatsParams selects the sale aggregates returned by sale_stats.
type SaleStatsParams struct {
	SaleID string `json:"saleId"`
	Top    int    `json:"top"`
}

// SaleStatsResult reports indexed aggregates of a sale.
type SaleStatsResult struct {
	Summary   *reporting.SaleSummary `json:"summary"`
	TopBuyers []reporting.BuyerTotal `json:"topBuyers"`
}
