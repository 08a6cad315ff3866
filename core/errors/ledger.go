package errors

import stderrors "errors"

// Ledger-wide failure conditions. Programs wrap these with context using %w so
// callers can match them with errors.Is regardless of which program raised
// them.
var (
	ErrUnauthorized        = stderrors.New("ledger: unauthorized")
	ErrInsufficientFunds   = stderrors.New("ledger: insufficient funds")
	ErrInsufficientBalance = stderrors.New("ledger: balance below rent floor")
	ErrArithmeticOverflow  = stderrors.New("ledger: arithmetic overflow")
	ErrAlreadyExists       = stderrors.New("ledger: account already exists")
	ErrNotFound            = stderrors.New("ledger: account not found")
)

// Runtime violations raised while validating or executing instructions.
var (
	ErrMissingSignature        = stderrors.New("runtime: missing required signature")
	ErrInvalidSignature        = stderrors.New("runtime: invalid signature")
	ErrInvalidAccount          = stderrors.New("runtime: invalid account")
	ErrInvalidInstruction      = stderrors.New("runtime: invalid instruction data")
	ErrUnknownProgram          = stderrors.New("runtime: unknown program")
	ErrExternalAccountModified = stderrors.New("runtime: program modified an account it does not own")
	ErrUnbalancedInstruction   = stderrors.New("runtime: instruction changed total lamports")
	ErrDuplicateTransaction    = stderrors.New("runtime: duplicate transaction")
	ErrCallDepthExceeded       = stderrors.New("runtime: cross-program call depth exceeded")
)
