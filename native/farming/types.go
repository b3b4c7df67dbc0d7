package farming

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// SeedType distinguishes the two stakeable asset shapes.
type SeedType uint8

const (
	// SeedTypeFT is a plain fungible token seed; the seed id is the token
	// contract account, e.g. "dai".
	SeedTypeFT SeedType = iota
	// SeedTypeMFT is a pool-share seed; the seed id is "pool@index",
	// e.g. "swap@0".
	SeedTypeMFT
)

func (t SeedType) String() string {
	if t == SeedTypeMFT {
		return "MFT"
	}
	return "FT"
}

// ParseSeedID validates the syntactic shape of a seed id and reports its type.
// Exactly zero or one '@' separator is accepted; the MFT slot must be a
// base-10 number.
func ParseSeedID(seedID string) (SeedType, error) {
	if strings.TrimSpace(seedID) == "" || seedID != strings.TrimSpace(seedID) {
		return SeedTypeFT, ErrInvalidSeedID
	}
	parts := strings.Split(seedID, "@")
	switch len(parts) {
	case 1:
		return SeedTypeFT, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return SeedTypeFT, ErrInvalidSeedID
		}
		if _, err := strconv.ParseUint(parts[1], 10, 32); err != nil {
			return SeedTypeFT, ErrInvalidSeedID
		}
		return SeedTypeMFT, nil
	default:
		return SeedTypeFT, ErrInvalidSeedID
	}
}

// MakeFarmID renders the canonical "seed#index" farm identifier.
func MakeFarmID(seedID string, index uint32) string {
	return fmt.Sprintf("%s#%d", seedID, index)
}

// ParseFarmID splits a farm id into its seed id and sequence index. The seed
// portion must itself be a well-formed seed id.
func ParseFarmID(farmID string) (string, uint32, error) {
	pos := strings.LastIndex(farmID, "#")
	if pos <= 0 || pos == len(farmID)-1 {
		return "", 0, ErrInvalidFarmID
	}
	seedID := farmID[:pos]
	if _, err := ParseSeedID(seedID); err != nil {
		return "", 0, ErrInvalidFarmID
	}
	index, err := strconv.ParseUint(farmID[pos+1:], 10, 32)
	if err != nil {
		return "", 0, ErrInvalidFarmID
	}
	return seedID, uint32(index), nil
}

// FarmStatus is derived from a farm's accumulators, never stored.
type FarmStatus string

const (
	FarmStatusCreated FarmStatus = "Created"
	FarmStatusRunning FarmStatus = "Running"
	FarmStatusEnded   FarmStatus = "Ended"
	FarmStatusCleared FarmStatus = "Cleared"
)

// FarmTerms are the immutable parameters fixed at farm creation.
type FarmTerms struct {
	SeedID           string   `json:"seedId"`
	RewardToken      string   `json:"rewardToken"`
	StartAt          uint64   `json:"startAt"`
	RewardPerSession *big.Int `json:"rewardPerSession"`
	SessionInterval  uint64   `json:"sessionInterval"`
}

// Seed aggregates everything keyed by a seed id: the farms issued for it,
// the staked totals feeding their distribution, and the admission minimum.
type Seed struct {
	SeedID        string
	Type          SeedType
	NextFarmIndex uint32
	FarmIDs       []string
	TotalAmount   *big.Int
	TotalPower    *big.Int
	MinDeposit    *big.Int
}

// Clone returns a deep copy so callers never alias stored pointers.
func (s *Seed) Clone() *Seed {
	if s == nil {
		return nil
	}
	clone := *s
	clone.FarmIDs = append([]string(nil), s.FarmIDs...)
	clone.TotalAmount = copyBig(s.TotalAmount)
	clone.TotalPower = copyBig(s.TotalPower)
	clone.MinDeposit = copyBig(s.MinDeposit)
	return &clone
}

func (s *Seed) removeFarm(farmID string) {
	for i, id := range s.FarmIDs {
		if id == farmID {
			s.FarmIDs = append(s.FarmIDs[:i], s.FarmIDs[i+1:]...)
			return
		}
	}
}

// SeedInfo is the query view of a seed registry entry.
type SeedInfo struct {
	SeedID      string   `json:"seedId"`
	SeedType    string   `json:"seedType"`
	FarmIDs     []string `json:"farmIds"`
	TotalAmount *big.Int `json:"totalAmount"`
	TotalPower  *big.Int `json:"totalPower"`
	MinDeposit  *big.Int `json:"minDeposit"`
}

// FarmInfo is the query view of a farm, with the status and round counters
// projected to the supplied timestamp.
type FarmInfo struct {
	FarmID            string     `json:"farmId"`
	Status            FarmStatus `json:"farmStatus"`
	SeedID            string     `json:"seedId"`
	RewardToken       string     `json:"rewardToken"`
	StartAt           uint64     `json:"startAt"`
	RewardPerSession  *big.Int   `json:"rewardPerSession"`
	SessionInterval   uint64     `json:"sessionInterval"`
	TotalReward       *big.Int   `json:"totalReward"`
	CurRound          uint32     `json:"curRound"`
	LastRound         uint32     `json:"lastRound"`
	ClaimedReward     *big.Int   `json:"claimedReward"`
	UnclaimedReward   *big.Int   `json:"unclaimedReward"`
	BeneficiaryReward *big.Int   `json:"beneficiaryReward"`
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
