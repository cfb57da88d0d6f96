package models

import "errors"

// Inventory errors. Recoverable by retrying with another seat or waiting
// for the show to be scheduled.
var (
	ErrSeatUnavailable    = errors.New("seat unavailable")
	ErrShowNotSchedulable = errors.New("show is not scheduled")
	ErrCapacityExceeded   = errors.New("seat type capacity exceeded")
	ErrShowNotFound       = errors.New("show not found")
	ErrSeatTypeNotFound   = errors.New("seat type not found")
	ErrInvalidTransition  = errors.New("invalid show status transition")
)

// Ledger errors. Surfaced to gate staff as-is; retrying does not change
// the ticket state.
var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrAlreadyCheckedIn = errors.New("ticket already checked in")
	ErrTicketCancelled  = errors.New("ticket cancelled")
)

var ErrPriceMismatch = errors.New("price paid does not match seat type price")

// Admission errors. ErrBuyerMismatch is a structurally valid code signed
// by someone other than the ticket owner.
var (
	ErrBuyerMismatch     = errors.New("signer does not own ticket")
	ErrUnauthorizedStaff = errors.New("identity is not authorized gate staff")
	ErrNonceRejected     = errors.New("check-in nonce rejected")
)
