package farming

import "errors"

// Stable error taxonomy. The numeric codes are part of the external surface
// and must not be renumbered; clients and off-chain reconcilers match on them.
var (
	ErrAccountNotRegistered = errors.New("E10: account not registered")
	ErrStorageDeposit       = errors.New("E11: insufficient storage deposit")
	ErrRewardsOutstanding   = errors.New("E12: still has rewards when unregister")
	ErrSeedPowerOutstanding = errors.New("E13: still has seed power when unregister")
	ErrNoStorageWithdraw    = errors.New("E14: no storage can withdraw")

	ErrTokenNotRegistered = errors.New("E21: token not registered")
	ErrRewardBalance      = errors.New("E22: not enough tokens in deposit")

	ErrSeedNotExist      = errors.New("E31: seed not exist")
	ErrSeedBalance       = errors.New("E32: not enough amount of seed")
	ErrInvalidSeedID     = errors.New("E33: invalid seed id")
	ErrBelowMinDeposit   = errors.New("E34: below min_deposit of this seed")
	ErrFarmCountExceeded = errors.New("E36: the number of farms has reached its limit")

	ErrFarmNotExist      = errors.New("E41: farm not exist")
	ErrInvalidFarmID     = errors.New("E42: invalid farm id")
	ErrInvalidFarmStatus = errors.New("E43: invalid farm status")
	ErrWrongRewardToken  = errors.New("E44: invalid reward token for this farm")

	ErrIllegalMsg   = errors.New("E51: illegal msg in transfer call")
	ErrIllegalCDMsg = errors.New("E52: illegal msg for this transfer")

	ErrCDStrategyIndex = errors.New("E62: invalid CDStrategy index")
	ErrCDAccountIndex  = errors.New("E63: invalid CDAccount index")
	ErrCDAccountFull   = errors.New("E65: Non-empty CDAccount")
	ErrCDAccountEmpty  = errors.New("E66: Empty CDAccount")
	ErrCDAccountLocked = errors.New("E68: CDAccount still locked")
)

// Engine wiring and authorisation failures sit outside the coded taxonomy.
var (
	errNilState       = errors.New("farming engine: state not configured")
	errNilTransferor  = errors.New("farming engine: token transferor not configured")
	ErrUnauthorized   = errors.New("farming engine: caller is not the owner")
	ErrInvalidAmount  = errors.New("farming engine: amount must be positive")
	ErrUnknownIntent  = errors.New("farming engine: unknown transfer intent")
	ErrNothingToSweep = errors.New("farming engine: nothing to sweep for token")
)
