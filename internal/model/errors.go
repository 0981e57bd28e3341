package model

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by an engine matches exactly one of
// these with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientShare   = errors.New("insufficient share")
	ErrInsufficientSupply  = errors.New("insufficient supply")
	ErrInsufficientDeposit = errors.New("insufficient deposit")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrOverdraft           = errors.New("overdraft")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrAlreadyCompleted    = errors.New("already completed")
	ErrAlreadyResolved     = errors.New("already resolved")
	ErrExpired             = errors.New("expired")
	ErrTooEarly            = errors.New("too early")

	// ErrConflict means a concurrent transaction touched the same entity.
	// Nothing was written; the caller may retry.
	ErrConflict = errors.New("conflict")
)

// Specific errors, each wrapping its category.
var (
	ErrInvalidShare       = fmt.Errorf("%w: invalid share amount", ErrInvalidInput)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be a non-negative integer of minor units", ErrInvalidInput)
	ErrInvalidResolveDate = fmt.Errorf("%w: resolve date must be in the future", ErrInvalidInput)
	ErrInvalidOutcome     = fmt.Errorf("%w: invalid outcome", ErrInvalidInput)
	ErrInvalidDuration    = fmt.Errorf("%w: invalid duration", ErrInvalidInput)
	ErrNotOwner           = fmt.Errorf("%w: caller is not the owner", ErrNotAuthorized)
	ErrMarketResolved     = fmt.Errorf("%w: market is resolved", ErrAlreadyResolved)
	ErrMarketClosed       = fmt.Errorf("%w: market closed for betting", ErrExpired)
)

// Code returns a stable machine-readable code for err's category, or
// "internal" when err does not belong to the taxonomy.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientShare):
		return "insufficient_share"
	case errors.Is(err, ErrInsufficientSupply):
		return "insufficient_supply"
	case errors.Is(err, ErrInsufficientDeposit):
		return "insufficient_deposit"
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ErrOverdraft):
		return "overdraft"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
