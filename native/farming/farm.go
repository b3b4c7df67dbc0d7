package farming

import "math/big"

// rpsDenom is the fixed-point scale of the reward-per-share accumulator.
// With 24 decimal places a single smallest reward unit spread over the
// largest plausible stake still advances the accumulator.
var rpsDenom = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// Farm is one time-bounded reward program over a seed. All reward figures are
// integers in the reward token's smallest unit. The lifecycle state is derived
// from the accumulators; only Cleared is terminal and it is expressed by
// deleting the farm from the registry.
type Farm struct {
	FarmID string
	Terms  FarmTerms
	Owner  string

	// TotalReward is the sum of all reward deposits accepted so far.
	TotalReward *big.Int
	// ClaimedReward has been settled into user balances.
	ClaimedReward *big.Int
	// UnclaimedReward has been released by elapsed sessions but not yet
	// settled to any user.
	UnclaimedReward *big.Int
	// BeneficiaryReward accrued during sessions with zero staked power.
	BeneficiaryReward *big.Int
	// RPS is the cumulative reward-per-share accumulator, scaled by rpsDenom.
	RPS *big.Int
	// LastRound is the last session index folded into RPS.
	LastRound uint32
}

// NewFarm initialises a farm with zeroed accumulators.
func NewFarm(farmID, owner string, terms FarmTerms) *Farm {
	return &Farm{
		FarmID:            farmID,
		Owner:             owner,
		Terms:             terms,
		TotalReward:       big.NewInt(0),
		ClaimedReward:     big.NewInt(0),
		UnclaimedReward:   big.NewInt(0),
		BeneficiaryReward: big.NewInt(0),
		RPS:               big.NewInt(0),
	}
}

// Clone returns a deep copy of the farm.
func (f *Farm) Clone() *Farm {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Terms.RewardPerSession = copyBig(f.Terms.RewardPerSession)
	clone.TotalReward = copyBig(f.TotalReward)
	clone.ClaimedReward = copyBig(f.ClaimedReward)
	clone.UnclaimedReward = copyBig(f.UnclaimedReward)
	clone.BeneficiaryReward = copyBig(f.BeneficiaryReward)
	clone.RPS = copyBig(f.RPS)
	return &clone
}

// Distributed is the portion of TotalReward already released by sessions,
// whether claimed, pending claim, or diverted to the beneficiary.
func (f *Farm) Distributed() *big.Int {
	total := new(big.Int).Add(bigOrZero(f.ClaimedReward), bigOrZero(f.UnclaimedReward))
	return total.Add(total, bigOrZero(f.BeneficiaryReward))
}

// Remaining is the reward balance still scheduled for future sessions.
func (f *Farm) Remaining() *big.Int {
	return new(big.Int).Sub(bigOrZero(f.TotalReward), f.Distributed())
}

// TotalRounds computes how many sessions the current reward balance funds.
// The trailing partial session counts as a full round paying the remainder.
func (f *Farm) TotalRounds() uint32 {
	if f.Terms.RewardPerSession == nil || f.Terms.RewardPerSession.Sign() <= 0 {
		return 0
	}
	rounds, rem := new(big.Int).QuoRem(
		bigOrZero(f.TotalReward), f.Terms.RewardPerSession, new(big.Int))
	if rem.Sign() > 0 {
		rounds.Add(rounds, big.NewInt(1))
	}
	return uint32(rounds.Uint64())
}

// RoundAt maps a timestamp to the session index reached at that moment,
// capped by the rounds the reward balance can fund.
func (f *Farm) RoundAt(now uint64) uint32 {
	if now <= f.Terms.StartAt || f.Terms.SessionInterval == 0 {
		return 0
	}
	elapsed := (now - f.Terms.StartAt) / f.Terms.SessionInterval
	total := uint64(f.TotalRounds())
	if elapsed > total {
		elapsed = total
	}
	return uint32(elapsed)
}

// Status derives the lifecycle state at the given timestamp. A farm with no
// reward balance yet is Created; it starts Running once funded and past
// StartAt, and Ends when the last funded session has elapsed.
func (f *Farm) Status(now uint64) FarmStatus {
	if bigOrZero(f.TotalReward).Sign() == 0 || now < f.Terms.StartAt {
		return FarmStatusCreated
	}
	if f.RoundAt(now) >= f.TotalRounds() {
		return FarmStatusEnded
	}
	return FarmStatusRunning
}

// Settle advances the accumulator to the session boundary reached at now.
// Whole sessions only; the released amount never exceeds the remaining
// balance. With zero staked power the release accrues to the beneficiary.
// Returns the amount released by this call.
func (f *Farm) Settle(now uint64, totalPower *big.Int) *big.Int {
	released := big.NewInt(0)
	cur := f.RoundAt(now)
	if cur <= f.LastRound {
		return released
	}
	rounds := big.NewInt(int64(cur - f.LastRound))
	released.Mul(bigOrZero(f.Terms.RewardPerSession), rounds)
	if remaining := f.Remaining(); released.Cmp(remaining) > 0 {
		released.Set(remaining)
	}
	if released.Sign() > 0 {
		if totalPower != nil && totalPower.Sign() > 0 {
			delta := new(big.Int).Mul(released, rpsDenom)
			delta.Quo(delta, totalPower)
			f.RPS.Add(f.RPS, delta)
			f.UnclaimedReward.Add(f.UnclaimedReward, released)
		} else {
			f.BeneficiaryReward.Add(f.BeneficiaryReward, released)
		}
	}
	f.LastRound = cur
	return released
}

// AddReward registers a further reward deposit. Deposits are only accepted
// while the farm is Created or Running and must carry the farm's reward token.
// The first deposit into a farm whose start time has already passed moves the
// start to now, so no session is released retroactively.
func (f *Farm) AddReward(token string, amount *big.Int, now uint64) error {
	if token != f.Terms.RewardToken {
		return ErrWrongRewardToken
	}
	switch f.Status(now) {
	case FarmStatusCreated, FarmStatusRunning:
	default:
		return ErrInvalidFarmStatus
	}
	if bigOrZero(f.TotalReward).Sign() == 0 && now > f.Terms.StartAt {
		f.Terms.StartAt = now
	}
	f.TotalReward.Add(f.TotalReward, amount)
	return nil
}

// UserReward computes the settled delta owed to a position of the given power
// whose snapshot is userRPS, and the snapshot to store afterwards.
func (f *Farm) UserReward(power, userRPS *big.Int) *big.Int {
	if power == nil || power.Sign() <= 0 {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(f.RPS, bigOrZero(userRPS))
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	diff.Mul(diff, power)
	return diff.Quo(diff, rpsDenom)
}

// Info projects the farm's query view at the supplied timestamp.
func (f *Farm) Info(now uint64) *FarmInfo {
	return &FarmInfo{
		FarmID:            f.FarmID,
		Status:            f.Status(now),
		SeedID:            f.Terms.SeedID,
		RewardToken:       f.Terms.RewardToken,
		StartAt:           f.Terms.StartAt,
		RewardPerSession:  copyBig(f.Terms.RewardPerSession),
		SessionInterval:   f.Terms.SessionInterval,
		TotalReward:       copyBig(f.TotalReward),
		CurRound:          f.RoundAt(now),
		LastRound:         f.LastRound,
		ClaimedReward:     copyBig(f.ClaimedReward),
		UnclaimedReward:   copyBig(f.UnclaimedReward),
		BeneficiaryReward: copyBig(f.BeneficiaryReward),
	}
}
