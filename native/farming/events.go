package farming

import (
	"math/big"

	"farmchain/core/types"
)

// Event types emitted by the farming engine. Off-chain reconcilers depend on
// these names; treat them as a stable surface.
const (
	EventFarmCreated        = "farming.farm.created"
	EventFarmCleaned        = "farming.farm.cleaned"
	EventStorageRegistered  = "farming.storage.registered"
	EventStorageUnregister  = "farming.storage.unregistered"
	EventSeedDeposited      = "farming.seed.deposited"
	EventSeedWithdrawn      = "farming.seed.withdrawn"
	EventRewardDeposited    = "farming.reward.deposited"
	EventRewardClaimed      = "farming.reward.claimed"
	EventRewardWithdrawn    = "farming.reward.withdrawn"
	EventPayoutFailed       = "farming.reward.payoutFailed"
	EventLostFoundCredited  = "farming.lostfound.credited"
	EventLostFoundSwept     = "farming.lostfound.swept"
	EventCDAccountCreated   = "farming.cd.created"
	EventCDAccountAppended  = "farming.cd.appended"
	EventCDAccountWithdrawn = "farming.cd.withdrawn"
)

func newEvent(eventType string, attrs map[string]string) *types.Event {
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func farmEvent(eventType, farmID string, extra map[string]string) *types.Event {
	attrs := map[string]string{"farmId": farmID}
	for k, v := range extra {
		attrs[k] = v
	}
	return newEvent(eventType, attrs)
}

func transferEvent(eventType, account, token string, amount *big.Int, extra map[string]string) *types.Event {
	attrs := map[string]string{
		"account": account,
		"token":   token,
		"amount":  amountAttr(amount),
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return newEvent(eventType, attrs)
}
