package farming

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"farmchain/observability"
)

// TokenTransferor issues asynchronous outbound token transfers. The host is
// expected to call Engine.FinalizeTransfer with the same call id once the
// external token contract reports the outcome.
type TokenTransferor interface {
	Transfer(callID, token, receiver string, amount *big.Int) error
}

// Intent kinds recorded for pending outbound transfers.
const (
	intentSeed        = "seed"
	intentReward      = "reward"
	intentSweep       = "sweep"
	intentBeneficiary = "beneficiary"
)

// PendingTransfer is the durable record of an outbound transfer awaiting its
// callback. It is keyed by call id and finalized exactly once.
type PendingTransfer struct {
	CallID    string
	Kind      string
	Account   string
	Token     string
	Amount    *big.Int
	CreatedAt uint64
}

// Clone returns a deep copy of the intent record.
func (p *PendingTransfer) Clone() *PendingTransfer {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = copyBig(p.Amount)
	return &clone
}

func (e *Engine) issueTransfer(kind, account, token string, amount *big.Int) error {
	if e.transferor == nil {
		return errNilTransferor
	}
	intent := &PendingTransfer{
		CallID:    uuid.NewString(),
		Kind:      kind,
		Account:   account,
		Token:     token,
		Amount:    copyBig(amount),
		CreatedAt: e.now(),
	}
	if err := e.state.PendingTransferPut(intent); err != nil {
		return err
	}
	return e.transferor.Transfer(intent.CallID, token, account, intent.Amount)
}

// FinalizeTransfer reconciles an outbound transfer intent. The record is
// removed on the first call; finalizing an unknown call id fails with
// ErrUnknownIntent so replayed callbacks are observable but harmless.
//
// A failed seed transfer is parked in lost-and-found: the seed already left
// the user's staked balance and the receiving account turned out to be
// unable to take delivery. A failed reward or beneficiary payout is a
// terminal loss surfaced through events only.
func (e *Engine) FinalizeTransfer(callID string, success bool) error {
	if err := e.requireState(); err != nil {
		return err
	}
	intent, err := e.state.PendingTransferGet(callID)
	if err != nil {
		return err
	}
	if intent == nil {
		return ErrUnknownIntent
	}
	if err := e.state.PendingTransferDelete(callID); err != nil {
		return err
	}
	if success {
		observability.Farming().RecordPayout(intent.Kind)
		return nil
	}
	switch intent.Kind {
	case intentSeed, intentSweep:
		if err := e.creditLostFound(intent.Token, intent.Amount, "transfer failed"); err != nil {
			return err
		}
	default:
		observability.Farming().RecordPayoutFailure(intent.Kind)
		e.state.AppendEvent(transferEvent(EventPayoutFailed, intent.Account, intent.Token, intent.Amount, map[string]string{
			"kind":   intent.Kind,
			"callId": intent.CallID,
		}))
	}
	return nil
}

// --- Inbound transfer payloads --------------------------------------------

type newCDAccountMsg struct {
	Index         uint32 `json:"index"`
	StrategyIndex uint32 `json:"strategyIndex"`
}

type appendCDAccountMsg struct {
	Index uint32 `json:"index"`
}

type rewardMsg struct {
	FarmID string `json:"farmId"`
}

// transferMessage is the structured payload carried by inbound transfers.
// Exactly one field may be set; an empty message means a plain stake.
type transferMessage struct {
	NewCDAccount    *newCDAccountMsg    `json:"newCdAccount,omitempty"`
	AppendCDAccount *appendCDAccountMsg `json:"appendCdAccount,omitempty"`
	Reward          *rewardMsg          `json:"reward,omitempty"`
}

func parseTransferMessage(msg []byte) (*transferMessage, error) {
	if len(bytes.TrimSpace(msg)) == 0 {
		return &transferMessage{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.DisallowUnknownFields()
	parsed := &transferMessage{}
	if err := dec.Decode(parsed); err != nil {
		return nil, ErrIllegalMsg
	}
	set := 0
	if parsed.NewCDAccount != nil {
		set++
	}
	if parsed.AppendCDAccount != nil {
		set++
	}
	if parsed.Reward != nil {
		set++
	}
	if set != 1 {
		return nil, ErrIllegalMsg
	}
	return parsed, nil
}

// OnFTTransfer handles a plain fungible-token deposit arriving through the
// token contract's transfer-with-callback flow. The message selects between
// staking the token as a seed, locking it into a CD slot, or funding a farm
// with reward.
//
// The asset has already moved when this runs, so a rejected deposit cannot be
// bounced: the full amount is credited to the lost-and-found ledger and the
// validation error is returned for the host to surface.
func (e *Engine) OnFTTransfer(token, sender string, amount *big.Int, msg []byte) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	parsed, err := parseTransferMessage(msg)
	if err != nil {
		return e.divertDeposit(token, amount, err)
	}
	if parsed.Reward != nil {
		return e.depositReward(token, sender, amount, parsed.Reward.FarmID)
	}
	return e.handleSeedDeposit(token, sender, amount, parsed)
}

// OnMFTTransfer handles a pool-share deposit. Pool shares can only be staked;
// a reward payload on this path is structurally illegal (E52).
func (e *Engine) OnMFTTransfer(seedID, sender string, amount *big.Int, msg []byte) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	parsed, err := parseTransferMessage(msg)
	if err != nil {
		return e.divertDeposit(seedID, amount, err)
	}
	if parsed.Reward != nil {
		return e.divertDeposit(seedID, amount, ErrIllegalCDMsg)
	}
	return e.handleSeedDeposit(seedID, sender, amount, parsed)
}

// handleSeedDeposit runs the admission pipeline for a seed-credited deposit
// and applies it as a plain stake or a CD lock.
func (e *Engine) handleSeedDeposit(seedID, sender string, amount *big.Int, parsed *transferMessage) error {
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return e.divertDeposit(seedID, amount, ErrSeedNotExist)
	}
	farmer, err := e.state.FarmerGet(sender)
	if err != nil {
		return err
	}
	if farmer == nil {
		return e.divertDeposit(seedID, amount, ErrAccountNotRegistered)
	}
	if amount.Cmp(seed.MinDeposit) < 0 {
		return e.divertDeposit(seedID, amount, ErrBelowMinDeposit)
	}

	// CD references are validated before settlement so a rejected deposit
	// leaves no settlement side effects behind.
	now := e.now()
	var cdItem CDStrategyItem
	switch {
	case parsed.NewCDAccount != nil:
		cdItem, err = e.validateNewCDAccount(farmer, parsed.NewCDAccount)
	case parsed.AppendCDAccount != nil:
		err = validateAppendCDAccount(farmer, seed, parsed.AppendCDAccount, now)
	}
	if err != nil {
		return e.divertDeposit(seedID, amount, err)
	}

	farms, err := e.loadSeedFarms(seed)
	if err != nil {
		return err
	}
	e.settleSeed(seed, farms, farmer, now)

	switch {
	case parsed.NewCDAccount != nil:
		e.createCDAccount(farmer, seed, parsed.NewCDAccount, cdItem, amount, now)
	case parsed.AppendCDAccount != nil:
		e.appendCDAccount(farmer, seed, parsed.AppendCDAccount, amount)
	default:
		farmer.addSeed(seedID, amount)
		seed.TotalAmount.Add(seed.TotalAmount, amount)
		seed.TotalPower.Add(seed.TotalPower, amount)
		e.state.AppendEvent(transferEvent(EventSeedDeposited, sender, seedID, amount, nil))
	}

	if err := e.putSeedFarms(seed, farms); err != nil {
		return err
	}
	if err := e.state.FarmerPut(farmer); err != nil {
		return err
	}
	observability.Farming().RecordDeposit("seed")
	return nil
}

// validateNewCDAccount checks the strategy reference and the slot index of a
// CD creation. The slot index must reference the next free position (or an
// emptied slot) and stay under the table capacity.
func (e *Engine) validateNewCDAccount(farmer *Farmer, msg *newCDAccountMsg) (CDStrategyItem, error) {
	strategy, err := e.loadStrategy()
	if err != nil {
		return CDStrategyItem{}, err
	}
	item, err := strategy.Item(msg.StrategyIndex)
	if err != nil {
		return CDStrategyItem{}, err
	}
	if msg.Index >= e.limits.MaxCDAccounts || uint64(msg.Index) > uint64(len(farmer.CDAccounts)) {
		return CDStrategyItem{}, ErrCDAccountIndex
	}
	if uint64(msg.Index) < uint64(len(farmer.CDAccounts)) && !farmer.CDAccounts[msg.Index].Empty() {
		return CDStrategyItem{}, ErrCDAccountFull
	}
	return item, nil
}

// validateAppendCDAccount checks that the referenced slot exists, is still
// funded, matches the deposit's seed, and has lock time left to serve.
func validateAppendCDAccount(farmer *Farmer, seed *Seed, msg *appendCDAccountMsg, now uint64) error {
	if uint64(msg.Index) >= uint64(len(farmer.CDAccounts)) {
		return ErrCDAccountIndex
	}
	cd := farmer.CDAccounts[msg.Index]
	if cd.Empty() {
		return ErrCDAccountEmpty
	}
	if cd.SeedID != seed.SeedID {
		return ErrCDAccountIndex
	}
	if now >= cd.EndAt {
		// The lock has lapsed; there is no boost window left to join.
		return ErrCDAccountEmpty
	}
	return nil
}

// createCDAccount locks a validated deposit into its CD slot.
func (e *Engine) createCDAccount(farmer *Farmer, seed *Seed, msg *newCDAccountMsg, item CDStrategyItem, amount *big.Int, now uint64) {
	power := lockedPower(amount, item)
	cd := &CDAccount{
		SeedID:  seed.SeedID,
		Amount:  copyBig(amount),
		Power:   power,
		BeginAt: now,
		EndAt:   now + item.LockSeconds,
	}
	if uint64(msg.Index) == uint64(len(farmer.CDAccounts)) {
		farmer.CDAccounts = append(farmer.CDAccounts, cd)
	} else {
		farmer.CDAccounts[msg.Index] = cd
	}
	seed.TotalAmount.Add(seed.TotalAmount, amount)
	seed.TotalPower.Add(seed.TotalPower, power)
	e.state.AppendEvent(transferEvent(EventCDAccountCreated, farmer.Account, seed.SeedID, amount, map[string]string{
		"cdIndex":       fmt.Sprintf("%d", msg.Index),
		"strategyIndex": fmt.Sprintf("%d", msg.StrategyIndex),
		"power":         power.String(),
		"endAt":         fmt.Sprintf("%d", cd.EndAt),
	}))
}

// appendCDAccount adds seed to an existing, still-locked slot. The original
// unlock time is preserved, never extended, so a late append cannot re-lock
// a nearly-expired position.
func (e *Engine) appendCDAccount(farmer *Farmer, seed *Seed, msg *appendCDAccountMsg, amount *big.Int) {
	cd := farmer.CDAccounts[msg.Index]
	// Appended seed gets the same power-per-amount ratio as the original
	// lock, so the slot keeps one uniform weight.
	addedPower := new(big.Int).Mul(cd.Power, amount)
	addedPower.Quo(addedPower, cd.Amount)
	cd.Amount.Add(cd.Amount, amount)
	cd.Power.Add(cd.Power, addedPower)
	seed.TotalAmount.Add(seed.TotalAmount, amount)
	seed.TotalPower.Add(seed.TotalPower, addedPower)
	e.state.AppendEvent(transferEvent(EventCDAccountAppended, farmer.Account, seed.SeedID, amount, map[string]string{
		"cdIndex": fmt.Sprintf("%d", msg.Index),
		"power":   addedPower.String(),
	}))
}

// depositReward admits a reward-token deposit for a farm. The farm id must
// parse (E42) and resolve (E41); the farm must still accept reward (E43) and
// the token must match its reward token (E44). Rejections divert the amount
// to lost-and-found, same as seed deposits: the tokens are already here.
func (e *Engine) depositReward(token, sender string, amount *big.Int, farmID string) error {
	seedID, _, err := ParseFarmID(farmID)
	if err != nil {
		return e.divertDeposit(token, amount, err)
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return err
	}
	if farm == nil {
		return e.divertDeposit(token, amount, ErrFarmNotExist)
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return e.divertDeposit(token, amount, ErrSeedNotExist)
	}
	now := e.now()
	// Release the sessions funded by the old balance before the top-up, so
	// the new reward only funds future sessions.
	farm.Settle(now, seed.TotalPower)
	if err := farm.AddReward(token, amount, now); err != nil {
		return e.divertDeposit(token, amount, err)
	}
	if err := e.state.FarmPut(farm); err != nil {
		return err
	}
	e.state.AppendEvent(transferEvent(EventRewardDeposited, sender, token, amount, map[string]string{
		"farmId": farmID,
	}))
	observability.Farming().RecordDeposit("reward")
	return nil
}

// divertDeposit parks a rejected inbound amount in lost-and-found and returns
// the validation error for the host to log. The credit is the committed
// outcome; the error is informational.
func (e *Engine) divertDeposit(token string, amount *big.Int, cause error) error {
	if err := e.creditLostFound(token, amount, cause.Error()); err != nil {
		return err
	}
	return cause
}
