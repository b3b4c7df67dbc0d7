package farming

import "math/big"

// Farmer is the per-user ledger entry. Map keys are seed ids, reward token
// ids and farm ids respectively; values are integers in the asset's smallest
// unit. CDAccounts is an index-stable slot table: emptied slots stay in place
// so that slot indexes remain valid references.
type Farmer struct {
	Account string
	// StorageBalance is the retained registration deposit.
	StorageBalance *big.Int
	// Seeds holds the freely staked (not CD-locked) amount per seed.
	Seeds map[string]*big.Int
	// Rewards holds the withdrawable reward balance per reward token.
	Rewards map[string]*big.Int
	// RPS holds the per-farm reward-per-share snapshot of the last settlement.
	RPS map[string]*big.Int
	// CDAccounts holds the time-locked stake slots.
	CDAccounts []*CDAccount
}

// NewFarmer initialises an empty ledger entry for the account.
func NewFarmer(account string) *Farmer {
	return &Farmer{
		Account:        account,
		StorageBalance: big.NewInt(0),
		Seeds:          make(map[string]*big.Int),
		Rewards:        make(map[string]*big.Int),
		RPS:            make(map[string]*big.Int),
	}
}

// Clone returns a deep copy so engine mutations never alias stored state.
func (fm *Farmer) Clone() *Farmer {
	if fm == nil {
		return nil
	}
	clone := NewFarmer(fm.Account)
	clone.StorageBalance = copyBig(fm.StorageBalance)
	for k, v := range fm.Seeds {
		clone.Seeds[k] = copyBig(v)
	}
	for k, v := range fm.Rewards {
		clone.Rewards[k] = copyBig(v)
	}
	for k, v := range fm.RPS {
		clone.RPS[k] = copyBig(v)
	}
	for _, cd := range fm.CDAccounts {
		clone.CDAccounts = append(clone.CDAccounts, cd.Clone())
	}
	return clone
}

// SeedAmount returns the freely staked amount for the seed.
func (fm *Farmer) SeedAmount(seedID string) *big.Int {
	if v, ok := fm.Seeds[seedID]; ok {
		return copyBig(v)
	}
	return big.NewInt(0)
}

// SeedPower returns the weighted stake feeding distribution for the seed:
// the free amount plus the boosted power of every CD slot locked on it.
func (fm *Farmer) SeedPower(seedID string) *big.Int {
	power := fm.SeedAmount(seedID)
	for _, cd := range fm.CDAccounts {
		if cd != nil && cd.SeedID == seedID && !cd.Empty() {
			power.Add(power, cd.Power)
		}
	}
	return power
}

func (fm *Farmer) addSeed(seedID string, amount *big.Int) {
	cur, ok := fm.Seeds[seedID]
	if !ok {
		cur = big.NewInt(0)
	}
	fm.Seeds[seedID] = new(big.Int).Add(cur, amount)
}

// subSeed reduces the free stake; it reports ErrSeedBalance when the free
// balance cannot cover the amount.
func (fm *Farmer) subSeed(seedID string, amount *big.Int) error {
	cur, ok := fm.Seeds[seedID]
	if !ok || cur.Cmp(amount) < 0 {
		return ErrSeedBalance
	}
	next := new(big.Int).Sub(cur, amount)
	if next.Sign() == 0 {
		delete(fm.Seeds, seedID)
	} else {
		fm.Seeds[seedID] = next
	}
	return nil
}

// addReward credits a settled delta. Zero deltas do not register the token:
// a token only enters the ledger once a positive reward settles, keeping the
// E21/E22 distinction observable.
func (fm *Farmer) addReward(token string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	cur, ok := fm.Rewards[token]
	if !ok {
		cur = big.NewInt(0)
	}
	fm.Rewards[token] = new(big.Int).Add(cur, amount)
}

// hasRewards reports whether any reward balance is nonzero.
func (fm *Farmer) hasRewards() bool {
	for _, v := range fm.Rewards {
		if v != nil && v.Sign() > 0 {
			return true
		}
	}
	return false
}

// hasSeedPower reports whether any free or CD-locked stake remains.
func (fm *Farmer) hasSeedPower() bool {
	for _, v := range fm.Seeds {
		if v != nil && v.Sign() > 0 {
			return true
		}
	}
	for _, cd := range fm.CDAccounts {
		if cd != nil && !cd.Empty() {
			return true
		}
	}
	return false
}
