package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRoundActive is returned when a round is opened while another is non-terminal.
	ErrRoundActive = errors.New("another round is still active")

	// ErrBettingClosed is returned when a bet targets a round that is not Betting.
	ErrBettingClosed = errors.New("betting closed for round")

	// ErrInvalidPrice is returned for non-positive oracle writes.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInsufficientTreasury means the treasury cannot cover a payout.
	ErrInsufficientTreasury = errors.New("insufficient treasury balance")

	// ErrMissingContractID means a bet has no on-chain reference id.
	ErrMissingContractID = errors.New("bet missing on-chain reference id")
)
