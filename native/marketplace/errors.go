package marketplace

import "errors"

var (
	ErrInvalidAddress        = errors.New("marketplace: invalid address")
	ErrUnauthorized          = errors.New("marketplace: unauthorized")
	ErrInvalidPrice          = errors.New("marketplace: price must be positive")
	ErrNotOwner              = errors.New("marketplace: caller does not hold token")
	ErrNotTradable           = errors.New("marketplace: booking not available for trade")
	ErrTradeWindowClosed     = errors.New("marketplace: trade time limit crossed")
	ErrBelowMinimumPrice     = errors.New("marketplace: minimum price requirement not met")
	ErrAlreadyListed         = errors.New("marketplace: booking already listed")
	ErrNotApproved           = errors.New("marketplace: transfer approval missing")
	ErrNotListed             = errors.New("marketplace: booking not listed")
	ErrInsufficientAllowance = errors.New("marketplace: insufficient payment allowance")
)
