package farming

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"farmchain/core/types"
)

// Limits collects the engine's bounded-capacity knobs. Zero values fall back
// to the package defaults at construction.
type Limits struct {
	// MaxFarms bounds the farm count across all seeds.
	MaxFarms uint32
	// MaxCDStrategies is the CD strategy table capacity.
	MaxCDStrategies uint32
	// MaxCDAccounts bounds the per-user CD slot table.
	MaxCDAccounts uint32
	// MinStorageBalance is the retained registration deposit.
	MinStorageBalance *big.Int
	// DefaultMinDeposit applies to seeds created without an explicit minimum.
	DefaultMinDeposit *big.Int
}

const (
	DefaultMaxFarms        = 32
	DefaultMaxCDStrategies = 32
	DefaultMaxCDAccounts   = 16
)

// DefaultLimits mirrors the production deployment parameters.
func DefaultLimits() Limits {
	return Limits{
		MaxFarms:          DefaultMaxFarms,
		MaxCDStrategies:   DefaultMaxCDStrategies,
		MaxCDAccounts:     DefaultMaxCDAccounts,
		MinStorageBalance: new(big.Int).Exp(big.NewInt(10), big.NewInt(23), nil),
		DefaultMinDeposit: new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
	}
}

func (l Limits) normalized() Limits {
	def := DefaultLimits()
	if l.MaxFarms == 0 {
		l.MaxFarms = def.MaxFarms
	}
	if l.MaxCDStrategies == 0 {
		l.MaxCDStrategies = def.MaxCDStrategies
	}
	if l.MaxCDAccounts == 0 {
		l.MaxCDAccounts = def.MaxCDAccounts
	}
	if l.MinStorageBalance == nil {
		l.MinStorageBalance = def.MinStorageBalance
	}
	if l.DefaultMinDeposit == nil {
		l.DefaultMinDeposit = def.DefaultMinDeposit
	}
	return l
}

// EngineState abstracts the persistence the engine needs. Get methods return
// nil without error when the record is absent; Put replaces the record.
type EngineState interface {
	FarmerGet(account string) (*Farmer, error)
	FarmerPut(farmer *Farmer) error
	FarmerDelete(account string) error

	SeedGet(seedID string) (*Seed, error)
	SeedPut(seed *Seed) error

	FarmGet(farmID string) (*Farm, error)
	FarmPut(farm *Farm) error
	FarmDelete(farmID string) error
	FarmCount() (uint32, error)
	SetFarmCount(count uint32) error

	CDStrategyGet() (*CDStrategy, error)
	CDStrategyPut(strategy *CDStrategy) error

	LostFoundGet(token string) (*big.Int, error)
	LostFoundPut(token string, amount *big.Int) error
	LostFoundTokens() ([]string, error)

	PendingTransferGet(callID string) (*PendingTransfer, error)
	PendingTransferPut(intent *PendingTransfer) error
	PendingTransferDelete(callID string) error

	AppendEvent(evt *types.Event)
}

// Engine orchestrates every state transition of the yield-distribution
// ledger. It is not safe for concurrent use; the host serialises calls the
// way a chain runtime serialises transactions.
type Engine struct {
	state      EngineState
	owner      string
	limits     Limits
	transferor TokenTransferor
	clock      func() time.Time
}

// NewEngine constructs an engine owned by the given administrative account.
func NewEngine(owner string, limits Limits) *Engine {
	return &Engine{
		owner:  owner,
		limits: limits.normalized(),
		clock:  time.Now,
	}
}

// SetState wires the engine to its persistence layer.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetTransferor wires the outbound token transfer collaborator.
func (e *Engine) SetTransferor(t TokenTransferor) { e.transferor = t }

// SetClock overrides the time source.
func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

// Owner returns the administrative account.
func (e *Engine) Owner() string { return e.owner }

// Limits returns the engine's capacity configuration.
func (e *Engine) Limits() Limits { return e.limits }

func (e *Engine) now() uint64 {
	return uint64(e.clock().Unix())
}

func (e *Engine) requireState() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) requireOwner(caller string) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) loadFarmer(account string) (*Farmer, error) {
	farmer, err := e.state.FarmerGet(account)
	if err != nil {
		return nil, err
	}
	if farmer == nil {
		return nil, ErrAccountNotRegistered
	}
	return farmer, nil
}

// loadSeedFarms fetches every live farm of a seed, in id order.
func (e *Engine) loadSeedFarms(seed *Seed) ([]*Farm, error) {
	farms := make([]*Farm, 0, len(seed.FarmIDs))
	for _, farmID := range seed.FarmIDs {
		farm, err := e.state.FarmGet(farmID)
		if err != nil {
			return nil, err
		}
		if farm == nil {
			return nil, fmt.Errorf("%w: %s", ErrFarmNotExist, farmID)
		}
		farms = append(farms, farm)
	}
	return farms, nil
}

// settleSeed is the shared precondition of every mutating operation touching
// a seed: it advances every farm of the seed to the current session boundary
// and, when a farmer is supplied, folds the farmer's accrued delta into their
// reward balances and refreshes their snapshots. Farms are mutated in place;
// the caller persists them.
func (e *Engine) settleSeed(seed *Seed, farms []*Farm, farmer *Farmer, now uint64) {
	for _, farm := range farms {
		farm.Settle(now, seed.TotalPower)
	}
	if farmer == nil {
		return
	}
	power := farmer.SeedPower(seed.SeedID)
	for _, farm := range farms {
		delta := farm.UserReward(power, farmer.RPS[farm.FarmID])
		if delta.Sign() > 0 {
			farmer.addReward(farm.Terms.RewardToken, delta)
			farm.ClaimedReward.Add(farm.ClaimedReward, delta)
			farm.UnclaimedReward.Sub(farm.UnclaimedReward, delta)
			e.state.AppendEvent(farmEvent(EventRewardClaimed, farm.FarmID, map[string]string{
				"account": farmer.Account,
				"token":   farm.Terms.RewardToken,
				"amount":  delta.String(),
			}))
		}
		farmer.RPS[farm.FarmID] = copyBig(farm.RPS)
	}
}

func (e *Engine) putSeedFarms(seed *Seed, farms []*Farm) error {
	for _, farm := range farms {
		if err := e.state.FarmPut(farm); err != nil {
			return err
		}
	}
	return e.state.SeedPut(seed)
}

// --- Storage registration -------------------------------------------------

// RegisterStorage registers the account, retaining exactly the minimum
// storage balance and returning any excess for the host to refund. Calling it
// for an already registered account refunds the full deposit.
func (e *Engine) RegisterStorage(account string, deposit *big.Int) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.state.FarmerGet(account)
	if err != nil {
		return nil, err
	}
	if farmer != nil {
		return copyBig(deposit), nil
	}
	if deposit == nil || deposit.Cmp(e.limits.MinStorageBalance) < 0 {
		return nil, ErrStorageDeposit
	}
	farmer = NewFarmer(account)
	farmer.StorageBalance = copyBig(e.limits.MinStorageBalance)
	if err := e.state.FarmerPut(farmer); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newEvent(EventStorageRegistered, map[string]string{
		"account": account,
		"balance": farmer.StorageBalance.String(),
	}))
	return new(big.Int).Sub(deposit, e.limits.MinStorageBalance), nil
}

// WithdrawStorage releases storage balance above the retained minimum. The
// minimum is retained for the whole registration lifetime, so there is never
// anything to withdraw; the operation exists for surface compatibility and
// always fails with E14.
func (e *Engine) WithdrawStorage(account string) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	return nil, ErrNoStorageWithdraw
}

// StorageBalanceOf reports the retained storage balance, or nil when the
// account is not registered.
func (e *Engine) StorageBalanceOf(account string) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.state.FarmerGet(account)
	if err != nil {
		return nil, err
	}
	if farmer == nil {
		return nil, nil
	}
	return copyBig(farmer.StorageBalance), nil
}

// UnregisterStorage removes the account and returns the storage refund.
// Outstanding rewards block unregistration before outstanding stake does.
func (e *Engine) UnregisterStorage(account string) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	if farmer.hasRewards() {
		return nil, ErrRewardsOutstanding
	}
	if farmer.hasSeedPower() {
		return nil, ErrSeedPowerOutstanding
	}
	refund := copyBig(farmer.StorageBalance)
	if err := e.state.FarmerDelete(account); err != nil {
		return nil, err
	}
	e.state.AppendEvent(newEvent(EventStorageUnregister, map[string]string{
		"account": account,
		"refund":  refund.String(),
	}))
	return refund, nil
}

// --- Farm administration --------------------------------------------------

// CreateFarm issues the next farm for the seed. minDeposit only takes effect
// when the seed is first referenced; later farms inherit the seed's minimum.
func (e *Engine) CreateFarm(caller string, terms FarmTerms, minDeposit *big.Int) (string, error) {
	if err := e.requireState(); err != nil {
		return "", err
	}
	if err := e.requireOwner(caller); err != nil {
		return "", err
	}
	seedType, err := ParseSeedID(terms.SeedID)
	if err != nil {
		return "", err
	}
	if terms.RewardToken == "" || terms.RewardPerSession == nil ||
		terms.RewardPerSession.Sign() <= 0 || terms.SessionInterval == 0 {
		return "", ErrInvalidAmount
	}
	count, err := e.state.FarmCount()
	if err != nil {
		return "", err
	}
	if count >= e.limits.MaxFarms {
		return "", ErrFarmCountExceeded
	}
	seed, err := e.state.SeedGet(terms.SeedID)
	if err != nil {
		return "", err
	}
	if seed == nil {
		seed = &Seed{
			SeedID:      terms.SeedID,
			Type:        seedType,
			TotalAmount: big.NewInt(0),
			TotalPower:  big.NewInt(0),
			MinDeposit:  copyBig(e.limits.DefaultMinDeposit),
		}
		if minDeposit != nil && minDeposit.Sign() > 0 {
			seed.MinDeposit = copyBig(minDeposit)
		}
	}
	farmID := MakeFarmID(terms.SeedID, seed.NextFarmIndex)
	farm := NewFarm(farmID, caller, FarmTerms{
		SeedID:           terms.SeedID,
		RewardToken:      terms.RewardToken,
		StartAt:          terms.StartAt,
		RewardPerSession: copyBig(terms.RewardPerSession),
		SessionInterval:  terms.SessionInterval,
	})
	seed.NextFarmIndex++
	seed.FarmIDs = append(seed.FarmIDs, farmID)
	if err := e.state.FarmPut(farm); err != nil {
		return "", err
	}
	if err := e.state.SeedPut(seed); err != nil {
		return "", err
	}
	if err := e.state.SetFarmCount(count + 1); err != nil {
		return "", err
	}
	e.state.AppendEvent(farmEvent(EventFarmCreated, farmID, map[string]string{
		"seedId":      terms.SeedID,
		"rewardToken": terms.RewardToken,
	}))
	return farmID, nil
}

// ForceCleanFarm removes a farm that has Ended with nothing left to claim.
// Residual unclaimed or beneficiary reward blocks removal.
func (e *Engine) ForceCleanFarm(caller, farmID string) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return err
	}
	if farm == nil {
		return ErrFarmNotExist
	}
	seed, err := e.state.SeedGet(farm.Terms.SeedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return ErrSeedNotExist
	}
	now := e.now()
	farm.Settle(now, seed.TotalPower)
	if farm.Status(now) != FarmStatusEnded ||
		farm.UnclaimedReward.Sign() != 0 || farm.BeneficiaryReward.Sign() != 0 {
		return ErrInvalidFarmStatus
	}
	if err := e.state.FarmDelete(farmID); err != nil {
		return err
	}
	seed.removeFarm(farmID)
	if err := e.state.SeedPut(seed); err != nil {
		return err
	}
	count, err := e.state.FarmCount()
	if err != nil {
		return err
	}
	if count > 0 {
		if err := e.state.SetFarmCount(count - 1); err != nil {
			return err
		}
	}
	e.state.AppendEvent(farmEvent(EventFarmCleaned, farmID, nil))
	return nil
}

// ModifyCDStrategyItem installs or replaces a locking tier.
func (e *Engine) ModifyCDStrategyItem(caller string, index uint32, lockSeconds uint64, powerBps uint32) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if lockSeconds == 0 || powerBps == 0 {
		return ErrCDStrategyIndex
	}
	strategy, err := e.loadStrategy()
	if err != nil {
		return err
	}
	if err := strategy.Set(index, lockSeconds, powerBps); err != nil {
		return err
	}
	return e.state.CDStrategyPut(strategy)
}

func (e *Engine) loadStrategy() (*CDStrategy, error) {
	strategy, err := e.state.CDStrategyGet()
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		strategy = NewCDStrategy(e.limits.MaxCDStrategies)
	}
	return strategy, nil
}

// WithdrawBeneficiaryReward pays the undistributed zero-stake sessions of a
// farm out to the contract owner.
func (e *Engine) WithdrawBeneficiaryReward(caller, farmID string) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, ErrFarmNotExist
	}
	seed, err := e.state.SeedGet(farm.Terms.SeedID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, ErrSeedNotExist
	}
	farm.Settle(e.now(), seed.TotalPower)
	amount := copyBig(farm.BeneficiaryReward)
	if amount.Sign() == 0 {
		return nil, ErrRewardBalance
	}
	farm.BeneficiaryReward = big.NewInt(0)
	if err := e.state.FarmPut(farm); err != nil {
		return nil, err
	}
	if err := e.issueTransfer(intentBeneficiary, caller, farm.Terms.RewardToken, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// --- User operations ------------------------------------------------------

// UnstakeSeed removes free staked seed and sends it back to the account
// through an outbound transfer intent. The internal balance is reduced before
// the transfer is issued and is not restored on transfer failure.
func (e *Engine) UnstakeSeed(account, seedID string, amount *big.Int) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return err
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return ErrSeedNotExist
	}
	farms, err := e.loadSeedFarms(seed)
	if err != nil {
		return err
	}
	now := e.now()
	e.settleSeed(seed, farms, farmer, now)
	if err := farmer.subSeed(seedID, amount); err != nil {
		return err
	}
	seed.TotalAmount.Sub(seed.TotalAmount, amount)
	seed.TotalPower.Sub(seed.TotalPower, amount)
	if farmer.SeedPower(seedID).Sign() == 0 {
		// The farmer has fully exited this seed; drop their snapshots so the
		// entries do not accumulate. They are rebuilt on the next stake.
		for _, farm := range farms {
			delete(farmer.RPS, farm.FarmID)
		}
	}
	if err := e.putSeedFarms(seed, farms); err != nil {
		return err
	}
	if err := e.state.FarmerPut(farmer); err != nil {
		return err
	}
	e.state.AppendEvent(transferEvent(EventSeedWithdrawn, account, seedID, amount, nil))
	return e.issueTransfer(intentSeed, account, seedID, amount)
}

// WithdrawSeedFromCD releases locked seed from a CD slot back into the free
// staked balance. Only allowed once the lock has expired; a further
// UnstakeSeed is needed to leave the farm entirely.
func (e *Engine) WithdrawSeedFromCD(account string, index uint32, amount *big.Int) error {
	if err := e.requireState(); err != nil {
		return err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return err
	}
	if uint64(index) >= uint64(len(farmer.CDAccounts)) {
		return ErrCDAccountIndex
	}
	cd := farmer.CDAccounts[index]
	if cd.Empty() {
		return ErrCDAccountEmpty
	}
	now := e.now()
	if now < cd.EndAt {
		return ErrCDAccountLocked
	}
	if amount == nil {
		amount = copyBig(cd.Amount)
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(cd.Amount) > 0 {
		return ErrSeedBalance
	}
	seed, err := e.state.SeedGet(cd.SeedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return ErrSeedNotExist
	}
	farms, err := e.loadSeedFarms(seed)
	if err != nil {
		return err
	}
	e.settleSeed(seed, farms, farmer, now)

	// Remove power pro rata; a full withdrawal removes the exact power so no
	// dust weight survives rounding.
	powerRemoved := copyBig(cd.Power)
	if amount.Cmp(cd.Amount) < 0 {
		powerRemoved.Mul(cd.Power, amount)
		powerRemoved.Quo(powerRemoved, cd.Amount)
	}
	cd.Amount.Sub(cd.Amount, amount)
	cd.Power.Sub(cd.Power, powerRemoved)
	farmer.addSeed(cd.SeedID, amount)
	// The released amount now carries plain 1x weight.
	seed.TotalPower.Sub(seed.TotalPower, powerRemoved)
	seed.TotalPower.Add(seed.TotalPower, amount)

	if err := e.putSeedFarms(seed, farms); err != nil {
		return err
	}
	if err := e.state.FarmerPut(farmer); err != nil {
		return err
	}
	e.state.AppendEvent(transferEvent(EventCDAccountWithdrawn, account, cd.SeedID, amount, map[string]string{
		"cdIndex": fmt.Sprintf("%d", index),
	}))
	return nil
}

// ClaimRewardBySeed settles the account against every farm of the seed.
// Claiming with no unsettled reward is a no-op, not an error.
func (e *Engine) ClaimRewardBySeed(account, seedID string) error {
	if err := e.requireState(); err != nil {
		return err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return err
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return ErrSeedNotExist
	}
	farms, err := e.loadSeedFarms(seed)
	if err != nil {
		return err
	}
	e.settleSeed(seed, farms, farmer, e.now())
	if err := e.putSeedFarms(seed, farms); err != nil {
		return err
	}
	return e.state.FarmerPut(farmer)
}

// ClaimRewardByFarm settles the account against a single farm.
func (e *Engine) ClaimRewardByFarm(account, farmID string) error {
	if err := e.requireState(); err != nil {
		return err
	}
	seedID, _, err := ParseFarmID(farmID)
	if err != nil {
		return err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return err
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return err
	}
	if farm == nil {
		return ErrFarmNotExist
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return err
	}
	if seed == nil {
		return ErrSeedNotExist
	}
	e.settleSeed(seed, []*Farm{farm}, farmer, e.now())
	if err := e.putSeedFarms(seed, []*Farm{farm}); err != nil {
		return err
	}
	return e.state.FarmerPut(farmer)
}

// WithdrawReward moves claimed reward out through an outbound transfer
// intent. A nil amount withdraws the whole balance. The internal balance is
// reduced before the transfer and is not restored on failure.
func (e *Engine) WithdrawReward(account, token string, amount *big.Int) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	balance, ok := farmer.Rewards[token]
	if !ok {
		return nil, ErrTokenNotRegistered
	}
	if amount == nil {
		amount = copyBig(balance)
	}
	if amount.Sign() <= 0 || amount.Cmp(balance) > 0 {
		return nil, ErrRewardBalance
	}
	farmer.Rewards[token] = new(big.Int).Sub(balance, amount)
	if err := e.state.FarmerPut(farmer); err != nil {
		return nil, err
	}
	e.state.AppendEvent(transferEvent(EventRewardWithdrawn, account, token, amount, nil))
	if err := e.issueTransfer(intentReward, account, token, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// RemoveUserRPSByFarm drops the caller's settlement snapshot for a farm id,
// reclaiming storage after a farm has been cleared. Removing an id that was
// never tracked is a no-op.
func (e *Engine) RemoveUserRPSByFarm(account, farmID string) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if _, _, err := ParseFarmID(farmID); err != nil {
		return err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return err
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return err
	}
	if farm != nil {
		// Live farms keep their snapshots; dropping one would replay reward.
		return ErrInvalidFarmStatus
	}
	delete(farmer.RPS, farmID)
	return e.state.FarmerPut(farmer)
}

// --- Queries --------------------------------------------------------------

// FarmInfoByID projects a farm's accumulators and derived status at the
// current time. The id must parse (E42) and resolve (E41).
func (e *Engine) FarmInfoByID(farmID string) (*FarmInfo, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if _, _, err := ParseFarmID(farmID); err != nil {
		return nil, err
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, ErrFarmNotExist
	}
	return farm.Info(e.now()), nil
}

// FarmsBySeed lists the live farms issued for a seed.
func (e *Engine) FarmsBySeed(seedID string) ([]*FarmInfo, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, ErrSeedNotExist
	}
	farms, err := e.loadSeedFarms(seed)
	if err != nil {
		return nil, err
	}
	now := e.now()
	infos := make([]*FarmInfo, 0, len(farms))
	for _, farm := range farms {
		infos = append(infos, farm.Info(now))
	}
	return infos, nil
}

// SeedInfoByID reports the registry entry for a seed.
func (e *Engine) SeedInfoByID(seedID string) (*SeedInfo, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, ErrSeedNotExist
	}
	return &SeedInfo{
		SeedID:      seed.SeedID,
		SeedType:    seed.Type.String(),
		FarmIDs:     append([]string(nil), seed.FarmIDs...),
		TotalAmount: copyBig(seed.TotalAmount),
		TotalPower:  copyBig(seed.TotalPower),
		MinDeposit:  copyBig(seed.MinDeposit),
	}, nil
}

// UserSeeds reports the freely staked amount per seed.
func (e *Engine) UserSeeds(account string) (map[string]*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*big.Int, len(farmer.Seeds))
	for seedID, amount := range farmer.Seeds {
		out[seedID] = copyBig(amount)
	}
	return out, nil
}

// UserSeedPowers reports the weighted stake per seed, CD boosts included.
func (e *Engine) UserSeedPowers(account string) (map[string]*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*big.Int)
	for seedID := range farmer.Seeds {
		out[seedID] = farmer.SeedPower(seedID)
	}
	for _, cd := range farmer.CDAccounts {
		if cd != nil && !cd.Empty() {
			if _, ok := out[cd.SeedID]; !ok {
				out[cd.SeedID] = farmer.SeedPower(cd.SeedID)
			}
		}
	}
	return out, nil
}

// UserRewards reports the withdrawable balance per reward token.
func (e *Engine) UserRewards(account string) (map[string]*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*big.Int, len(farmer.Rewards))
	for token, amount := range farmer.Rewards {
		out[token] = copyBig(amount)
	}
	return out, nil
}

// UnclaimedReward previews the reward a settlement would credit the account
// for one farm, without mutating state.
func (e *Engine) UnclaimedReward(account, farmID string) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	seedID, _, err := ParseFarmID(farmID)
	if err != nil {
		return nil, err
	}
	farm, err := e.state.FarmGet(farmID)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, ErrFarmNotExist
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	seed, err := e.state.SeedGet(seedID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, ErrSeedNotExist
	}
	projected := farm.Clone()
	projected.Settle(e.now(), seed.TotalPower)
	return projected.UserReward(farmer.SeedPower(seedID), farmer.RPS[farmID]), nil
}

// UserCDAccounts lists the account's CD slots, empty ones included.
func (e *Engine) UserCDAccounts(account string) ([]*CDAccountInfo, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	farmer, err := e.loadFarmer(account)
	if err != nil {
		return nil, err
	}
	infos := make([]*CDAccountInfo, 0, len(farmer.CDAccounts))
	for i, cd := range farmer.CDAccounts {
		infos = append(infos, &CDAccountInfo{
			Index:   uint32(i),
			SeedID:  cd.SeedID,
			Amount:  copyBig(cd.Amount),
			Power:   copyBig(cd.Power),
			BeginAt: cd.BeginAt,
			EndAt:   cd.EndAt,
		})
	}
	return infos, nil
}

// CDStrategyTable returns the configured locking tiers.
func (e *Engine) CDStrategyTable() (*CDStrategy, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	strategy, err := e.loadStrategy()
	if err != nil {
		return nil, err
	}
	return strategy.Clone(), nil
}

// LostFoundBalances reports every token held in the lost-and-found ledger.
func (e *Engine) LostFoundBalances() (map[string]*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	tokens, err := e.state.LostFoundTokens()
	if err != nil {
		return nil, err
	}
	sort.Strings(tokens)
	out := make(map[string]*big.Int, len(tokens))
	for _, token := range tokens {
		amount, err := e.state.LostFoundGet(token)
		if err != nil {
			return nil, err
		}
		if amount != nil && amount.Sign() > 0 {
			out[token] = copyBig(amount)
		}
	}
	return out, nil
}

// IsTaxonomyError reports whether err belongs to the stable coded taxonomy,
// as opposed to an internal wiring failure.
func IsTaxonomyError(err error) bool {
	for _, target := range []error{
		ErrAccountNotRegistered, ErrStorageDeposit, ErrRewardsOutstanding,
		ErrSeedPowerOutstanding, ErrNoStorageWithdraw, ErrTokenNotRegistered,
		ErrRewardBalance, ErrSeedNotExist, ErrSeedBalance, ErrInvalidSeedID,
		ErrBelowMinDeposit, ErrFarmCountExceeded, ErrFarmNotExist,
		ErrInvalidFarmID, ErrInvalidFarmStatus, ErrWrongRewardToken,
		ErrIllegalMsg, ErrIllegalCDMsg, ErrCDStrategyIndex, ErrCDAccountIndex,
		ErrCDAccountFull, ErrCDAccountEmpty, ErrCDAccountLocked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
