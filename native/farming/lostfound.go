package farming

import (
	"math/big"

	"farmchain/observability"
)

// creditLostFound parks an undeliverable amount under its token id. Credits
// happen when an inbound deposit fails admission after the asset already
// moved, or when an outbound seed transfer bounces off an unregistered
// receiving account.
func (e *Engine) creditLostFound(token string, amount *big.Int, reason string) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	cur, err := e.state.LostFoundGet(token)
	if err != nil {
		return err
	}
	if cur == nil {
		cur = big.NewInt(0)
	}
	if err := e.state.LostFoundPut(token, new(big.Int).Add(cur, amount)); err != nil {
		return err
	}
	observability.Farming().RecordLostFound(token)
	e.state.AppendEvent(transferEvent(EventLostFoundCredited, "", token, amount, map[string]string{
		"reason": reason,
	}))
	return nil
}

// SweepLostFound drains a token's lost-and-found balance to the receiver
// through an outbound transfer intent. Owner only. A failed sweep transfer
// re-credits the ledger so the operator can retry.
func (e *Engine) SweepLostFound(caller, token, receiver string) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	balance, err := e.state.LostFoundGet(token)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() == 0 {
		return nil, ErrNothingToSweep
	}
	amount := copyBig(balance)
	if err := e.state.LostFoundPut(token, big.NewInt(0)); err != nil {
		return nil, err
	}
	e.state.AppendEvent(transferEvent(EventLostFoundSwept, receiver, token, amount, nil))
	if err := e.issueTransfer(intentSweep, receiver, token, amount); err != nil {
		return nil, err
	}
	return amount, nil
}
