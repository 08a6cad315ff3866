package rpc

import (
	"errors"
	"net/http"

	"salechain/core"
	ledgererrors "salechain/core/errors"
	"salechain/integrations/reporting"
	"salechain/native/common"
	"salechain/native/crowdsale"
)

// classify maps an execution error onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	switch {
	case errors.Is(err, ledgererrors.ErrDuplicateTransaction):
		return http.StatusConflict, codeDuplicateTx
	case errors.Is(err, ledgererrors.ErrNotFound), errors.Is(err, reporting.ErrSaleNotIndexed):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, ledgererrors.ErrInsufficientFunds), errors.Is(err, ledgererrors.ErrInsufficientBalance):
		return http.StatusOK, codeInsufficientFunds
	case errors.Is(err, ledgererrors.ErrArithmeticOverflow):
		return http.StatusOK, codeOverflow
	case errors.Is(err, crowdsale.ErrSaleClosed):
		return http.StatusOK, codeSaleClosed
	case errors.Is(err, ledgererrors.ErrMissingSignature), errors.Is(err, ledgererrors.ErrInvalidSignature):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, ledgererrors.ErrInvalidInstruction):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, core.ErrAirdropDisabled):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, ledgererrors.ErrUnauthorized),
		errors.Is(err, ledgererrors.ErrInvalidAccount),
		errors.Is(err, ledgererrors.ErrUnknownProgram),
		errors.Is(err, ledgererrors.ErrExternalAccountModified),
		errors.Is(err, ledgererrors.ErrUnbalancedInstruction),
		errors.Is(err, ledgererrors.ErrAlreadyExists),
		errors.Is(err, ledgererrors.ErrCallDepthExceeded),
		errors.Is(err, crowdsale.ErrInvalidCost),
		errors.Is(err, crowdsale.ErrInvalidAmount),
		errors.Is(err, crowdsale.ErrInvalidSeeds),
		errors.Is(err, common.ErrModulePaused):
		return http.StatusOK, codeTxFailed
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
