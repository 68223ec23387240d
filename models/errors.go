package models

import "errors"

// Phase errors
var (
	ErrInvalidStatus   = errors.New("action not allowed in current bet status")
	ErrAlreadyReleased = errors.New("bet already released")
	ErrNotYetResolved  = errors.New("bet not yet resolved")
)

// Amount and target errors
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidOption    = errors.New("invalid option")
	ErrNothingToCancel  = errors.New("no contribution to cancel")
	ErrInvalidAction    = errors.New("invalid action")
	ErrInvalidDetails   = errors.New("invalid bet details")
	ErrInvalidDuration  = errors.New("invalid period duration")
	ErrInvalidConfig    = errors.New("invalid bet configuration")
	ErrUnknownChip      = errors.New("unknown chip")
	ErrBetNotFound      = errors.New("bet not found")
	ErrUnknownAccount   = errors.New("unknown account")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Eligibility and authorization errors
var (
	ErrInsufficientEligibility    = errors.New("insufficient vote weight or level")
	ErrUnauthorized               = errors.New("caller holds no valid capability")
	ErrInsufficientAllowance      = errors.New("insufficient allowance")
	ErrInsufficientFixedAllowance = errors.New("insufficient fixed allowance")
	ErrInvariantViolation         = errors.New("escrow invariant violated")
)

// Ledger and payout errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrBalanceOverflow     = errors.New("balance overflow")
)
