package storage

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"farmchain/core/types"
	"farmchain/native/farming"
)

// Index and counter keys live outside the record namespaces so that an asset
// id can never alias them. Seed and token ids are caller-supplied.
const (
	farmerKeyFormat   = "farming/farmer/%s"
	seedKeyFormat     = "farming/seed/%s"
	seedIndexKey      = "farming/seedindex"
	farmKeyFormat     = "farming/farm/%s"
	farmCountKey      = "farming/farmcount"
	strategyKey       = "farming/cdstrategy"
	lostFoundFormat   = "farming/lostfound/%s"
	lostFoundIndexKey = "farming/lostfoundindex"
	transferKeyFormat = "farming/transfer/%s"
)

// State persists engine records in a key-value store using RLP encoding and
// collects the events emitted during a state transition. It satisfies
// farming.EngineState.
type State struct {
	db Database

	mu     sync.Mutex
	events []*types.Event
}

// NewState wraps the supplied database.
func NewState(db Database) *State {
	return &State{db: db}
}

// amountEntry flattens a token->amount map for RLP, which cannot encode maps.
// Entries are written in sorted key order so encodings are deterministic.
type amountEntry struct {
	Key    string
	Amount []byte
}

func encodeAmounts(m map[string]*big.Int) []amountEntry {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]amountEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, amountEntry{Key: k, Amount: bigBytes(m[k])})
	}
	return out
}

func decodeAmounts(entries []amountEntry) map[string]*big.Int {
	out := make(map[string]*big.Int, len(entries))
	for _, e := range entries {
		out[e.Key] = new(big.Int).SetBytes(e.Amount)
	}
	return out
}

func bigBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

type storedCDAccount struct {
	SeedID  string
	Amount  []byte
	Power   []byte
	BeginAt uint64
	EndAt   uint64
}

type storedFarmer struct {
	Account        string
	StorageBalance []byte
	Seeds          []amountEntry
	Rewards        []amountEntry
	RPS            []amountEntry
	CDAccounts     []storedCDAccount
}

type storedSeed struct {
	SeedID        string
	Type          uint8
	NextFarmIndex uint32
	FarmIDs       []string
	TotalAmount   []byte
	TotalPower    []byte
	MinDeposit    []byte
}

type storedFarm struct {
	FarmID            string
	SeedID            string
	RewardToken       string
	Owner             string
	StartAt           uint64
	RewardPerSession  []byte
	SessionInterval   uint64
	TotalReward       []byte
	ClaimedReward     []byte
	UnclaimedReward   []byte
	BeneficiaryReward []byte
	RPS               []byte
	LastRound         uint32
}

type storedStrategyItem struct {
	LockSeconds uint64
	PowerBps    uint32
	Enabled     bool
}

type storedTransfer struct {
	CallID    string
	Kind      string
	Account   string
	Token     string
	Amount    []byte
	CreatedAt uint64
}

func (s *State) load(key string, out interface{}) (bool, error) {
	data, err := s.db.Get([]byte(key))
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *State) store(key string, v interface{}) error {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), data)
}

// FarmerGet loads a farmer record, returning nil when absent.
func (s *State) FarmerGet(account string) (*farming.Farmer, error) {
	var rec storedFarmer
	ok, err := s.load(fmt.Sprintf(farmerKeyFormat, account), &rec)
	if err != nil || !ok {
		return nil, err
	}
	farmer := &farming.Farmer{
		Account:        rec.Account,
		StorageBalance: new(big.Int).SetBytes(rec.StorageBalance),
		Seeds:          decodeAmounts(rec.Seeds),
		Rewards:        decodeAmounts(rec.Rewards),
		RPS:            decodeAmounts(rec.RPS),
	}
	for _, cd := range rec.CDAccounts {
		farmer.CDAccounts = append(farmer.CDAccounts, &farming.CDAccount{
			SeedID:  cd.SeedID,
			Amount:  new(big.Int).SetBytes(cd.Amount),
			Power:   new(big.Int).SetBytes(cd.Power),
			BeginAt: cd.BeginAt,
			EndAt:   cd.EndAt,
		})
	}
	return farmer, nil
}

// FarmerPut writes a farmer record.
func (s *State) FarmerPut(farmer *farming.Farmer) error {
	if farmer == nil {
		return errors.New("state: nil farmer")
	}
	rec := storedFarmer{
		Account:        farmer.Account,
		StorageBalance: bigBytes(farmer.StorageBalance),
		Seeds:          encodeAmounts(farmer.Seeds),
		Rewards:        encodeAmounts(farmer.Rewards),
		RPS:            encodeAmounts(farmer.RPS),
	}
	for _, cd := range farmer.CDAccounts {
		if cd == nil {
			rec.CDAccounts = append(rec.CDAccounts, storedCDAccount{})
			continue
		}
		rec.CDAccounts = append(rec.CDAccounts, storedCDAccount{
			SeedID:  cd.SeedID,
			Amount:  bigBytes(cd.Amount),
			Power:   bigBytes(cd.Power),
			BeginAt: cd.BeginAt,
			EndAt:   cd.EndAt,
		})
	}
	return s.store(fmt.Sprintf(farmerKeyFormat, farmer.Account), &rec)
}

// FarmerDelete removes a farmer record.
func (s *State) FarmerDelete(account string) error {
	return s.db.Delete([]byte(fmt.Sprintf(farmerKeyFormat, account)))
}

// SeedGet loads a seed record, returning nil when absent.
func (s *State) SeedGet(seedID string) (*farming.Seed, error) {
	var rec storedSeed
	ok, err := s.load(fmt.Sprintf(seedKeyFormat, seedID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &farming.Seed{
		SeedID:        rec.SeedID,
		Type:          farming.SeedType(rec.Type),
		NextFarmIndex: rec.NextFarmIndex,
		FarmIDs:       append([]string(nil), rec.FarmIDs...),
		TotalAmount:   new(big.Int).SetBytes(rec.TotalAmount),
		TotalPower:    new(big.Int).SetBytes(rec.TotalPower),
		MinDeposit:    new(big.Int).SetBytes(rec.MinDeposit),
	}, nil
}

// SeedPut writes a seed record and keeps the seed index current.
func (s *State) SeedPut(seed *farming.Seed) error {
	if seed == nil {
		return errors.New("state: nil seed")
	}
	rec := storedSeed{
		SeedID:        seed.SeedID,
		Type:          uint8(seed.Type),
		NextFarmIndex: seed.NextFarmIndex,
		FarmIDs:       append([]string(nil), seed.FarmIDs...),
		TotalAmount:   bigBytes(seed.TotalAmount),
		TotalPower:    bigBytes(seed.TotalPower),
		MinDeposit:    bigBytes(seed.MinDeposit),
	}
	if err := s.store(fmt.Sprintf(seedKeyFormat, seed.SeedID), &rec); err != nil {
		return err
	}
	return s.indexAdd(seedIndexKey, seed.SeedID)
}

// SeedIDs lists every seed ever registered, sorted.
func (s *State) SeedIDs() ([]string, error) {
	return s.indexList(seedIndexKey)
}

// FarmGet loads a farm record, returning nil when absent.
func (s *State) FarmGet(farmID string) (*farming.Farm, error) {
	var rec storedFarm
	ok, err := s.load(fmt.Sprintf(farmKeyFormat, farmID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &farming.Farm{
		FarmID: rec.FarmID,
		Terms: farming.FarmTerms{
			SeedID:           rec.SeedID,
			RewardToken:      rec.RewardToken,
			StartAt:          rec.StartAt,
			RewardPerSession: new(big.Int).SetBytes(rec.RewardPerSession),
			SessionInterval:  rec.SessionInterval,
		},
		Owner:             rec.Owner,
		TotalReward:       new(big.Int).SetBytes(rec.TotalReward),
		ClaimedReward:     new(big.Int).SetBytes(rec.ClaimedReward),
		UnclaimedReward:   new(big.Int).SetBytes(rec.UnclaimedReward),
		BeneficiaryReward: new(big.Int).SetBytes(rec.BeneficiaryReward),
		RPS:               new(big.Int).SetBytes(rec.RPS),
		LastRound:         rec.LastRound,
	}, nil
}

// FarmPut writes a farm record.
func (s *State) FarmPut(farm *farming.Farm) error {
	if farm == nil {
		return errors.New("state: nil farm")
	}
	rec := storedFarm{
		FarmID:            farm.FarmID,
		SeedID:            farm.Terms.SeedID,
		RewardToken:       farm.Terms.RewardToken,
		Owner:             farm.Owner,
		StartAt:           farm.Terms.StartAt,
		RewardPerSession:  bigBytes(farm.Terms.RewardPerSession),
		SessionInterval:   farm.Terms.SessionInterval,
		TotalReward:       bigBytes(farm.TotalReward),
		ClaimedReward:     bigBytes(farm.ClaimedReward),
		UnclaimedReward:   bigBytes(farm.UnclaimedReward),
		BeneficiaryReward: bigBytes(farm.BeneficiaryReward),
		RPS:               bigBytes(farm.RPS),
		LastRound:         farm.LastRound,
	}
	return s.store(fmt.Sprintf(farmKeyFormat, farm.FarmID), &rec)
}

// FarmDelete removes a farm record.
func (s *State) FarmDelete(farmID string) error {
	return s.db.Delete([]byte(fmt.Sprintf(farmKeyFormat, farmID)))
}

// FarmCount returns the live farm count.
func (s *State) FarmCount() (uint32, error) {
	var count uint32
	if _, err := s.load(farmCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetFarmCount writes the live farm count.
func (s *State) SetFarmCount(count uint32) error {
	return s.store(farmCountKey, count)
}

// CDStrategyGet loads the strategy table, returning nil when never written.
func (s *State) CDStrategyGet() (*farming.CDStrategy, error) {
	var items []storedStrategyItem
	ok, err := s.load(strategyKey, &items)
	if err != nil || !ok {
		return nil, err
	}
	strategy := &farming.CDStrategy{Items: make([]farming.CDStrategyItem, len(items))}
	for i, item := range items {
		strategy.Items[i] = farming.CDStrategyItem{
			LockSeconds: item.LockSeconds,
			PowerBps:    item.PowerBps,
			Enabled:     item.Enabled,
		}
	}
	return strategy, nil
}

// CDStrategyPut writes the strategy table.
func (s *State) CDStrategyPut(strategy *farming.CDStrategy) error {
	if strategy == nil {
		return errors.New("state: nil strategy")
	}
	items := make([]storedStrategyItem, len(strategy.Items))
	for i, item := range strategy.Items {
		items[i] = storedStrategyItem{
			LockSeconds: item.LockSeconds,
			PowerBps:    item.PowerBps,
			Enabled:     item.Enabled,
		}
	}
	return s.store(strategyKey, items)
}

// LostFoundGet returns the parked balance for a token, nil when absent.
func (s *State) LostFoundGet(token string) (*big.Int, error) {
	var amount []byte
	ok, err := s.load(fmt.Sprintf(lostFoundFormat, token), &amount)
	if err != nil || !ok {
		return nil, err
	}
	return new(big.Int).SetBytes(amount), nil
}

// LostFoundPut writes the parked balance for a token and indexes the token.
func (s *State) LostFoundPut(token string, amount *big.Int) error {
	if err := s.store(fmt.Sprintf(lostFoundFormat, token), bigBytes(amount)); err != nil {
		return err
	}
	return s.indexAdd(lostFoundIndexKey, token)
}

// LostFoundTokens lists every token that ever held a parked balance, sorted.
func (s *State) LostFoundTokens() ([]string, error) {
	return s.indexList(lostFoundIndexKey)
}

// PendingTransferGet loads an outbound transfer intent, nil when absent.
func (s *State) PendingTransferGet(callID string) (*farming.PendingTransfer, error) {
	var rec storedTransfer
	ok, err := s.load(fmt.Sprintf(transferKeyFormat, callID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &farming.PendingTransfer{
		CallID:    rec.CallID,
		Kind:      rec.Kind,
		Account:   rec.Account,
		Token:     rec.Token,
		Amount:    new(big.Int).SetBytes(rec.Amount),
		CreatedAt: rec.CreatedAt,
	}, nil
}

// PendingTransferPut writes an outbound transfer intent.
func (s *State) PendingTransferPut(intent *farming.PendingTransfer) error {
	if intent == nil {
		return errors.New("state: nil transfer intent")
	}
	rec := storedTransfer{
		CallID:    intent.CallID,
		Kind:      intent.Kind,
		Account:   intent.Account,
		Token:     intent.Token,
		Amount:    bigBytes(intent.Amount),
		CreatedAt: intent.CreatedAt,
	}
	return s.store(fmt.Sprintf(transferKeyFormat, intent.CallID), &rec)
}

// PendingTransferDelete removes an outbound transfer intent.
func (s *State) PendingTransferDelete(callID string) error {
	return s.db.Delete([]byte(fmt.Sprintf(transferKeyFormat, callID)))
}

// AppendEvent records an emitted event. Events accumulate until drained.
func (s *State) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt.Clone())
}

// Events returns a copy of the accumulated events.
func (s *State) Events() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Event, len(s.events))
	for i, evt := range s.events {
		out[i] = evt.Clone()
	}
	return out
}

// DrainEvents returns the accumulated events and clears the buffer.
func (s *State) DrainEvents() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func (s *State) indexAdd(key, member string) error {
	members, err := s.indexList(key)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return nil
		}
	}
	members = append(members, member)
	sort.Strings(members)
	return s.store(key, members)
}

func (s *State) indexList(key string) ([]string, error) {
	var members []string
	if _, err := s.load(key, &members); err != nil {
		return nil, err
	}
	return members, nil
}
