package farming

import "math/big"

// powerBpsDenom scales CD multipliers: 10_000 bps is plain 1x power.
const powerBpsDenom = 10_000

// CDStrategyItem is one locking tier. A zeroed item is an unset table slot.
type CDStrategyItem struct {
	LockSeconds uint64 `json:"lockSeconds"`
	PowerBps    uint32 `json:"powerBps"`
	Enabled     bool   `json:"enabled"`
}

// CDStrategy is the fixed-capacity table of locking tiers. Items are
// addressed by index and replaced in place; the table never grows past its
// configured capacity.
type CDStrategy struct {
	Items []CDStrategyItem
}

// NewCDStrategy allocates an all-unset table of the given capacity.
func NewCDStrategy(capacity uint32) *CDStrategy {
	return &CDStrategy{Items: make([]CDStrategyItem, capacity)}
}

// Clone returns a deep copy of the table.
func (s *CDStrategy) Clone() *CDStrategy {
	if s == nil {
		return nil
	}
	return &CDStrategy{Items: append([]CDStrategyItem(nil), s.Items...)}
}

// Item fetches an enabled tier; unset or out-of-range indexes fail with E62.
func (s *CDStrategy) Item(index uint32) (CDStrategyItem, error) {
	if s == nil || uint64(index) >= uint64(len(s.Items)) {
		return CDStrategyItem{}, ErrCDStrategyIndex
	}
	item := s.Items[index]
	if !item.Enabled {
		return CDStrategyItem{}, ErrCDStrategyIndex
	}
	return item, nil
}

// Set replaces the tier at index; out-of-range indexes fail with E62.
func (s *CDStrategy) Set(index uint32, lockSeconds uint64, powerBps uint32) error {
	if s == nil || uint64(index) >= uint64(len(s.Items)) {
		return ErrCDStrategyIndex
	}
	s.Items[index] = CDStrategyItem{LockSeconds: lockSeconds, PowerBps: powerBps, Enabled: true}
	return nil
}

// CDAccount is one time-locked stake slot of a farmer. Amount carries the
// locked seed; Power carries the boosted weight it contributes to the seed's
// distribution denominator. A fully withdrawn slot stays allocated with a
// zero amount so slot indexes stay stable.
type CDAccount struct {
	SeedID  string   `json:"seedId"`
	Amount  *big.Int `json:"amount"`
	Power   *big.Int `json:"power"`
	BeginAt uint64   `json:"beginAt"`
	EndAt   uint64   `json:"endAt"`
}

// Empty reports whether the slot holds no locked seed.
func (cd *CDAccount) Empty() bool {
	return cd == nil || cd.Amount == nil || cd.Amount.Sign() == 0
}

// Clone returns a deep copy of the slot.
func (cd *CDAccount) Clone() *CDAccount {
	if cd == nil {
		return nil
	}
	clone := *cd
	clone.Amount = copyBig(cd.Amount)
	clone.Power = copyBig(cd.Power)
	return &clone
}

// lockedPower computes the boosted weight of a locked amount under a tier.
func lockedPower(amount *big.Int, item CDStrategyItem) *big.Int {
	power := new(big.Int).Mul(amount, big.NewInt(int64(item.PowerBps)))
	return power.Quo(power, big.NewInt(powerBpsDenom))
}

// CDAccountInfo is the query view of one CD slot.
type CDAccountInfo struct {
	Index   uint32   `json:"index"`
	SeedID  string   `json:"seedId"`
	Amount  *big.Int `json:"amount"`
	Power   *big.Int `json:"power"`
	BeginAt uint64   `json:"beginAt"`
	EndAt   uint64   `json:"endAt"`
}
