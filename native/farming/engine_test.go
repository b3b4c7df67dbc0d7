package farming

import (
	"errors"
	"math/big"
	"sort"
	"testing"
	"time"

	"farmchain/core/types"
)

type mockState struct {
	farmers   map[string]*Farmer
	seeds     map[string]*Seed
	farms     map[string]*Farm
	farmCount uint32
	strategy  *CDStrategy
	lostFound map[string]*big.Int
	transfers map[string]*PendingTransfer
	events    []*types.Event
}

func newMockState() *mockState {
	return &mockState{
		farmers:   make(map[string]*Farmer),
		seeds:     make(map[string]*Seed),
		farms:     make(map[string]*Farm),
		lostFound: make(map[string]*big.Int),
		transfers: make(map[string]*PendingTransfer),
	}
}

func (m *mockState) FarmerGet(account string) (*Farmer, error) {
	return m.farmers[account].Clone(), nil
}

func (m *mockState) FarmerPut(farmer *Farmer) error {
	m.farmers[farmer.Account] = farmer.Clone()
	return nil
}

func (m *mockState) FarmerDelete(account string) error {
	delete(m.farmers, account)
	return nil
}

func (m *mockState) SeedGet(seedID string) (*Seed, error) {
	return m.seeds[seedID].Clone(), nil
}

func (m *mockState) SeedPut(seed *Seed) error {
	m.seeds[seed.SeedID] = seed.Clone()
	return nil
}

func (m *mockState) FarmGet(farmID string) (*Farm, error) {
	return m.farms[farmID].Clone(), nil
}

func (m *mockState) FarmPut(farm *Farm) error {
	m.farms[farm.FarmID] = farm.Clone()
	return nil
}

func (m *mockState) FarmDelete(farmID string) error {
	delete(m.farms, farmID)
	return nil
}

func (m *mockState) FarmCount() (uint32, error) { return m.farmCount, nil }

func (m *mockState) SetFarmCount(count uint32) error {
	m.farmCount = count
	return nil
}

func (m *mockState) CDStrategyGet() (*CDStrategy, error) { return m.strategy.Clone(), nil }

func (m *mockState) CDStrategyPut(strategy *CDStrategy) error {
	m.strategy = strategy.Clone()
	return nil
}

func (m *mockState) LostFoundGet(token string) (*big.Int, error) {
	if v, ok := m.lostFound[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, nil
}

func (m *mockState) LostFoundPut(token string, amount *big.Int) error {
	m.lostFound[token] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) LostFoundTokens() ([]string, error) {
	tokens := make([]string, 0, len(m.lostFound))
	for token := range m.lostFound {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (m *mockState) PendingTransferGet(callID string) (*PendingTransfer, error) {
	return m.transfers[callID].Clone(), nil
}

func (m *mockState) PendingTransferPut(intent *PendingTransfer) error {
	m.transfers[intent.CallID] = intent.Clone()
	return nil
}

func (m *mockState) PendingTransferDelete(callID string) error {
	delete(m.transfers, callID)
	return nil
}

func (m *mockState) AppendEvent(evt *types.Event) {
	m.events = append(m.events, evt)
}

func (m *mockState) eventsOfType(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range m.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type transferCall struct {
	CallID   string
	Token    string
	Receiver string
	Amount   *big.Int
}

type mockTransferor struct {
	calls []transferCall
	err   error
}

func (t *mockTransferor) Transfer(callID, token, receiver string, amount *big.Int) error {
	if t.err != nil {
		return t.err
	}
	t.calls = append(t.calls, transferCall{
		CallID:   callID,
		Token:    token,
		Receiver: receiver,
		Amount:   new(big.Int).Set(amount),
	})
	return nil
}

type testClock struct {
	now uint64
}

func (c *testClock) fn() time.Time { return time.Unix(int64(c.now), 0) }

const testOwner = "owner"

func newTestEngine(t *testing.T) (*Engine, *mockState, *mockTransferor, *testClock) {
	t.Helper()
	state := newMockState()
	transferor := &mockTransferor{}
	clock := &testClock{now: 100}
	engine := NewEngine(testOwner, Limits{
		MinStorageBalance: big.NewInt(100),
		DefaultMinDeposit: big.NewInt(1),
	})
	engine.SetState(state)
	engine.SetTransferor(transferor)
	engine.SetClock(clock.fn)
	return engine, state, transferor, clock
}

func registerAccount(t *testing.T, e *Engine, account string) {
	t.Helper()
	if _, err := e.RegisterStorage(account, big.NewInt(100)); err != nil {
		t.Fatalf("register %s: %v", account, err)
	}
}

// createFundedFarm creates a dai farm paying 10 rew per 60s session and funds
// it with 100 rew at the current clock, so distribution runs for 10 sessions.
func createFundedFarm(t *testing.T, e *Engine) string {
	t.Helper()
	farmID, err := e.CreateFarm(testOwner, FarmTerms{
		SeedID:           "dai",
		RewardToken:      "rew",
		RewardPerSession: big.NewInt(10),
		SessionInterval:  60,
	}, big.NewInt(1))
	if err != nil {
		t.Fatalf("create farm: %v", err)
	}
	if err := e.OnFTTransfer("rew", testOwner, big.NewInt(100), []byte(`{"reward":{"farmId":"`+farmID+`"}}`)); err != nil {
		t.Fatalf("fund farm: %v", err)
	}
	return farmID
}

func stakeSeed(t *testing.T, e *Engine, account string, amount int64) {
	t.Helper()
	if err := e.OnFTTransfer("dai", account, big.NewInt(amount), nil); err != nil {
		t.Fatalf("stake %s: %v", account, err)
	}
}

func rewardOf(t *testing.T, e *Engine, account, token string) *big.Int {
	t.Helper()
	rewards, err := e.UserRewards(account)
	if err != nil {
		t.Fatalf("user rewards %s: %v", account, err)
	}
	if v, ok := rewards[token]; ok {
		return v
	}
	return big.NewInt(0)
}

func TestRegisterStorageRetainsMinimum(t *testing.T) {
	e, state, _, _ := newTestEngine(t)

	refund, err := e.RegisterStorage("alice", big.NewInt(250))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if refund.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("refund = %s, want 150", refund)
	}
	balance, err := e.StorageBalanceOf("alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("retained = %s, want 100", balance)
	}
	if got := len(state.eventsOfType(EventStorageRegistered)); got != 1 {
		t.Fatalf("registered events = %d, want 1", got)
	}

	// Registering again refunds the whole deposit and changes nothing.
	refund, err = e.RegisterStorage("alice", big.NewInt(500))
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if refund.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("re-register refund = %s, want 500", refund)
	}
}

func TestRegisterStorageBelowMinimum(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	if _, err := e.RegisterStorage("alice", big.NewInt(99)); !errors.Is(err, ErrStorageDeposit) {
		t.Fatalf("err = %v, want ErrStorageDeposit", err)
	}
	if _, err := e.RegisterStorage("alice", nil); !errors.Is(err, ErrStorageDeposit) {
		t.Fatalf("nil deposit err = %v, want ErrStorageDeposit", err)
	}
}

func TestWithdrawStorageAlwaysFails(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	registerAccount(t, e, "alice")
	if _, err := e.WithdrawStorage("alice"); !errors.Is(err, ErrNoStorageWithdraw) {
		t.Fatalf("err = %v, want ErrNoStorageWithdraw", err)
	}
}

func TestUnregisterStorageChecksRewardsBeforeStake(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// A session elapses; alice has both stake and claimable reward.
	clock.now += 60
	if err := e.ClaimRewardBySeed("alice", "dai"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := e.UnregisterStorage("alice"); !errors.Is(err, ErrRewardsOutstanding) {
		t.Fatalf("err = %v, want ErrRewardsOutstanding", err)
	}

	// Rewards withdrawn; the stake still blocks.
	if _, err := e.WithdrawReward("alice", "rew", nil); err != nil {
		t.Fatalf("withdraw reward: %v", err)
	}
	if _, err := e.UnregisterStorage("alice"); !errors.Is(err, ErrSeedPowerOutstanding) {
		t.Fatalf("err = %v, want ErrSeedPowerOutstanding", err)
	}

	if err := e.UnstakeSeed("alice", "dai", big.NewInt(100)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	refund, err := e.UnregisterStorage("alice")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if refund.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("refund = %s, want 100", refund)
	}
	if _, err := e.UnregisterStorage("alice"); !errors.Is(err, ErrAccountNotRegistered) {
		t.Fatalf("repeat err = %v, want ErrAccountNotRegistered", err)
	}
}

func TestCreateFarmAssignsSequentialIDs(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	terms := FarmTerms{
		SeedID:           "dai",
		RewardToken:      "rew",
		RewardPerSession: big.NewInt(10),
		SessionInterval:  60,
	}
	first, err := e.CreateFarm(testOwner, terms, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first != "dai#0" {
		t.Fatalf("first id = %s, want dai#0", first)
	}
	second, err := e.CreateFarm(testOwner, terms, nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second != "dai#1" {
		t.Fatalf("second id = %s, want dai#1", second)
	}
	info, err := e.SeedInfoByID("dai")
	if err != nil {
		t.Fatalf("seed info: %v", err)
	}
	if len(info.FarmIDs) != 2 {
		t.Fatalf("seed farms = %v", info.FarmIDs)
	}
}

func TestCreateFarmValidation(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	terms := FarmTerms{
		SeedID:           "dai",
		RewardToken:      "rew",
		RewardPerSession: big.NewInt(10),
		SessionInterval:  60,
	}

	if _, err := e.CreateFarm("mallory", terms, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner err = %v", err)
	}

	bad := terms
	bad.SeedID = "a@b@c"
	if _, err := e.CreateFarm(testOwner, bad, nil); !errors.Is(err, ErrInvalidSeedID) {
		t.Fatalf("bad seed err = %v", err)
	}

	bad = terms
	bad.SessionInterval = 0
	if _, err := e.CreateFarm(testOwner, bad, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero interval err = %v", err)
	}

	bad = terms
	bad.RewardPerSession = big.NewInt(0)
	if _, err := e.CreateFarm(testOwner, bad, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero reward err = %v", err)
	}
}

func TestCreateFarmCapacityLimit(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	e.limits.MaxFarms = 2

	terms := FarmTerms{
		SeedID:           "dai",
		RewardToken:      "rew",
		RewardPerSession: big.NewInt(10),
		SessionInterval:  60,
	}
	for i := 0; i < 2; i++ {
		if _, err := e.CreateFarm(testOwner, terms, nil); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := e.CreateFarm(testOwner, terms, nil); !errors.Is(err, ErrFarmCountExceeded) {
		t.Fatalf("err = %v, want ErrFarmCountExceeded", err)
	}
}

func TestRewardDistributionSingleStaker(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// Nothing has elapsed yet.
	unclaimed, err := e.UnclaimedReward("alice", farmID)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Sign() != 0 {
		t.Fatalf("unclaimed = %s, want 0", unclaimed)
	}

	// Partial sessions release nothing.
	clock.now += 59
	unclaimed, _ = e.UnclaimedReward("alice", farmID)
	if unclaimed.Sign() != 0 {
		t.Fatalf("unclaimed at 59s = %s, want 0", unclaimed)
	}

	clock.now += 1
	unclaimed, _ = e.UnclaimedReward("alice", farmID)
	if unclaimed.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unclaimed after 1 session = %s, want 10", unclaimed)
	}

	// Three more sessions accumulate linearly.
	clock.now += 180
	unclaimed, _ = e.UnclaimedReward("alice", farmID)
	if unclaimed.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unclaimed after 4 sessions = %s, want 40", unclaimed)
	}

	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := rewardOf(t, e, "alice", "rew"); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("claimed balance = %s, want 40", got)
	}

	// Claiming again immediately is a no-op.
	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if got := rewardOf(t, e, "alice", "rew"); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("balance after re-claim = %s, want 40", got)
	}
}

func TestRewardDistributionProportionalSplit(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	registerAccount(t, e, "bob")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 75)
	stakeSeed(t, e, "bob", 25)

	clock.now += 120
	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("claim alice: %v", err)
	}
	if err := e.ClaimRewardByFarm("bob", farmID); err != nil {
		t.Fatalf("claim bob: %v", err)
	}
	if got := rewardOf(t, e, "alice", "rew"); got.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("alice = %s, want 15", got)
	}
	if got := rewardOf(t, e, "bob", "rew"); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("bob = %s, want 5", got)
	}
}

func TestRewardStopsAtFundedRounds(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// 100 rew at 10 per session funds exactly 10 sessions; far beyond that
	// the release is capped.
	clock.now += 6000
	unclaimed, err := e.UnclaimedReward("alice", farmID)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unclaimed = %s, want 100", unclaimed)
	}
	info, err := e.FarmInfoByID(farmID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Status != FarmStatusEnded {
		t.Fatalf("status = %s, want Ended", info.Status)
	}
}

func TestPartialFinalSession(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")

	// 95 rew at 10 per session: 9 full sessions and a 5-rew trailing round.
	farmID, err := e.CreateFarm(testOwner, FarmTerms{
		SeedID:           "dai",
		RewardToken:      "rew",
		RewardPerSession: big.NewInt(10),
		SessionInterval:  60,
	}, big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.OnFTTransfer("rew", testOwner, big.NewInt(95), []byte(`{"reward":{"farmId":"`+farmID+`"}}`)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	stakeSeed(t, e, "alice", 100)

	clock.now += 10 * 60
	unclaimed, err := e.UnclaimedReward("alice", farmID)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("unclaimed = %s, want 95", unclaimed)
	}
}

func TestBeneficiaryAccruesWithZeroStake(t *testing.T) {
	e, _, transferor, clock := newTestEngine(t)
	farmID := createFundedFarm(t, e)

	// Two sessions pass with nobody staked.
	clock.now += 120
	amount, err := e.WithdrawBeneficiaryReward(testOwner, farmID)
	if err != nil {
		t.Fatalf("withdraw beneficiary: %v", err)
	}
	if amount.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("beneficiary = %s, want 20", amount)
	}
	if len(transferor.calls) != 1 {
		t.Fatalf("transfer calls = %d, want 1", len(transferor.calls))
	}
	if transferor.calls[0].Token != "rew" || transferor.calls[0].Receiver != testOwner {
		t.Fatalf("unexpected transfer %+v", transferor.calls[0])
	}

	// Drained; a second withdrawal has nothing.
	if _, err := e.WithdrawBeneficiaryReward(testOwner, farmID); !errors.Is(err, ErrRewardBalance) {
		t.Fatalf("err = %v, want ErrRewardBalance", err)
	}
}

func TestStakeJoiningLateEarnsOnlyLaterSessions(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	registerAccount(t, e, "bob")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// Alice alone for 2 sessions.
	clock.now += 120
	stakeSeed(t, e, "bob", 100)

	// Both for 2 more sessions.
	clock.now += 120
	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("claim alice: %v", err)
	}
	if err := e.ClaimRewardByFarm("bob", farmID); err != nil {
		t.Fatalf("claim bob: %v", err)
	}
	if got := rewardOf(t, e, "alice", "rew"); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("alice = %s, want 30", got)
	}
	if got := rewardOf(t, e, "bob", "rew"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("bob = %s, want 10", got)
	}
}

func TestUnstakeSeedRoundTrip(t *testing.T) {
	e, _, transferor, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	clock.now += 60
	if err := e.UnstakeSeed("alice", "dai", big.NewInt(40)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	seeds, err := e.UserSeeds("alice")
	if err != nil {
		t.Fatalf("user seeds: %v", err)
	}
	if seeds["dai"].Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("remaining = %s, want 60", seeds["dai"])
	}
	info, err := e.SeedInfoByID("dai")
	if err != nil {
		t.Fatalf("seed info: %v", err)
	}
	if info.TotalAmount.Cmp(big.NewInt(60)) != 0 || info.TotalPower.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("seed totals = %s/%s, want 60/60", info.TotalAmount, info.TotalPower)
	}
	if len(transferor.calls) != 1 || transferor.calls[0].Amount.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("transfer calls = %+v", transferor.calls)
	}

	// Unstaking settles first, so the session reward survives in rewards.
	if got := rewardOf(t, e, "alice", "rew"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("settled reward = %s, want 10", got)
	}

	if err := e.UnstakeSeed("alice", "dai", big.NewInt(61)); !errors.Is(err, ErrSeedBalance) {
		t.Fatalf("over-unstake err = %v, want ErrSeedBalance", err)
	}
	if err := e.UnstakeSeed("alice", "dai", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero unstake err = %v, want ErrInvalidAmount", err)
	}
	if err := e.UnstakeSeed("alice", "eth", big.NewInt(1)); !errors.Is(err, ErrSeedNotExist) {
		t.Fatalf("unknown seed err = %v, want ErrSeedNotExist", err)
	}
	if err := e.UnstakeSeed("carol", "dai", big.NewInt(1)); !errors.Is(err, ErrAccountNotRegistered) {
		t.Fatalf("unregistered err = %v, want ErrAccountNotRegistered", err)
	}
}

func TestStakeUnstakeWithinSessionAccruesNothing(t *testing.T) {
	e, _, transferor, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// Still inside the first session; no boundary has passed.
	clock.now += 59
	if err := e.UnstakeSeed("alice", "dai", big.NewInt(100)); err != nil {
		t.Fatalf("unstake: %v", err)
	}

	if got := rewardOf(t, e, "alice", "rew"); got.Sign() != 0 {
		t.Fatalf("reward = %s, want 0", got)
	}
	seeds, err := e.UserSeeds("alice")
	if err != nil {
		t.Fatalf("user seeds: %v", err)
	}
	if _, ok := seeds["dai"]; ok {
		t.Fatalf("seed balance survived full exit: %s", seeds["dai"])
	}
	info, err := e.SeedInfoByID("dai")
	if err != nil {
		t.Fatalf("seed info: %v", err)
	}
	if info.TotalAmount.Sign() != 0 || info.TotalPower.Sign() != 0 {
		t.Fatalf("seed totals = %s/%s, want 0/0", info.TotalAmount, info.TotalPower)
	}
	farm, err := e.FarmInfoByID(farmID)
	if err != nil {
		t.Fatalf("farm info: %v", err)
	}
	if farm.LastRound != 0 || farm.ClaimedReward.Sign() != 0 || farm.UnclaimedReward.Sign() != 0 {
		t.Fatalf("farm moved: round=%d claimed=%s unclaimed=%s", farm.LastRound, farm.ClaimedReward, farm.UnclaimedReward)
	}
	if len(transferor.calls) != 1 || transferor.calls[0].Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("transfer calls = %+v", transferor.calls)
	}
}

func TestFullExitDropsSnapshots(t *testing.T) {
	e, state, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	clock.now += 60
	if err := e.UnstakeSeed("alice", "dai", big.NewInt(100)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	farmer := state.farmers["alice"]
	if _, ok := farmer.RPS[farmID]; ok {
		t.Fatalf("snapshot for %s survived full exit", farmID)
	}
}

func TestWithdrawRewardErrors(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// No positive settlement yet: the token is unknown, E21.
	if _, err := e.WithdrawReward("alice", "rew", nil); !errors.Is(err, ErrTokenNotRegistered) {
		t.Fatalf("err = %v, want ErrTokenNotRegistered", err)
	}

	clock.now += 60
	if err := e.ClaimRewardBySeed("alice", "dai"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := e.WithdrawReward("alice", "rew", big.NewInt(11)); !errors.Is(err, ErrRewardBalance) {
		t.Fatalf("over-withdraw err = %v, want ErrRewardBalance", err)
	}

	amount, err := e.WithdrawReward("alice", "rew", nil)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("withdrawn = %s, want 10", amount)
	}
	// The balance is now zero but the token stays registered, so a further
	// withdrawal fails on balance, not registration.
	if _, err := e.WithdrawReward("alice", "rew", nil); !errors.Is(err, ErrRewardBalance) {
		t.Fatalf("drained err = %v, want ErrRewardBalance", err)
	}
}

func TestForceCleanFarmLifecycle(t *testing.T) {
	e, state, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	if err := e.ForceCleanFarm(testOwner, farmID); !errors.Is(err, ErrInvalidFarmStatus) {
		t.Fatalf("running farm err = %v, want ErrInvalidFarmStatus", err)
	}

	// Let the full funded reward release, then settle it into alice's balance.
	clock.now += 6000
	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := e.ForceCleanFarm(testOwner, farmID); err != nil {
		t.Fatalf("clean: %v", err)
	}
	if _, err := e.FarmInfoByID(farmID); !errors.Is(err, ErrFarmNotExist) {
		t.Fatalf("info err = %v, want ErrFarmNotExist", err)
	}
	count, _ := state.FarmCount()
	if count != 0 {
		t.Fatalf("farm count = %d, want 0", count)
	}
	if err := e.ForceCleanFarm(testOwner, farmID); !errors.Is(err, ErrFarmNotExist) {
		t.Fatalf("repeat err = %v, want ErrFarmNotExist", err)
	}
	if err := e.ForceCleanFarm("mallory", farmID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner err = %v, want ErrUnauthorized", err)
	}
}

func TestRemoveUserRPSByFarm(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	clock.now += 60
	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Live farm: the snapshot must stay.
	if err := e.RemoveUserRPSByFarm("alice", farmID); !errors.Is(err, ErrInvalidFarmStatus) {
		t.Fatalf("live farm err = %v, want ErrInvalidFarmStatus", err)
	}

	clock.now += 6000
	if err := e.ClaimRewardByFarm("alice", farmID); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if err := e.UnstakeSeed("alice", "dai", big.NewInt(100)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if err := e.ForceCleanFarm(testOwner, farmID); err != nil {
		t.Fatalf("clean: %v", err)
	}
	if err := e.RemoveUserRPSByFarm("alice", farmID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := e.RemoveUserRPSByFarm("alice", "nope"); !errors.Is(err, ErrInvalidFarmID) {
		t.Fatalf("bad id err = %v, want ErrInvalidFarmID", err)
	}
}

func TestRewardTopUpOnlyFundsFutureSessions(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID := createFundedFarm(t, e)
	stakeSeed(t, e, "alice", 100)

	// Let the farm run 3 sessions, then top it up. The elapsed sessions are
	// already released; the top-up extends the tail.
	clock.now += 180
	if err := e.OnFTTransfer("rew", testOwner, big.NewInt(50), []byte(`{"reward":{"farmId":"`+farmID+`"}}`)); err != nil {
		t.Fatalf("top up: %v", err)
	}
	clock.now += 6000
	unclaimed, err := e.UnclaimedReward("alice", farmID)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unclaimed = %s, want 150", unclaimed)
	}
}

func TestFirstFundingMovesStartForward(t *testing.T) {
	e, _, _, clock := newTestEngine(t)
	registerAccount(t, e, "alice")
	farmID, err := e.CreateFarm(testOwner, FarmTerms{
		SeedID:           "dai",
		RewardToken:      "rew",
		RewardPerSession: big.NewInt(10),
		SessionInterval:  60,
	}, big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stakeSeed(t, e, "alice", 100)

	// The farm sits unfunded for a long while before its first deposit.
	clock.now += 3600
	if err := e.OnFTTransfer("rew", testOwner, big.NewInt(100), []byte(`{"reward":{"farmId":"`+farmID+`"}}`)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	unclaimed, err := e.UnclaimedReward("alice", farmID)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Sign() != 0 {
		t.Fatalf("unclaimed right after funding = %s, want 0", unclaimed)
	}
	clock.now += 90
	unclaimed, _ = e.UnclaimedReward("alice", farmID)
	if unclaimed.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unclaimed one session later = %s, want 10", unclaimed)
	}
}

func TestSweepLostFound(t *testing.T) {
	e, state, transferor, _ := newTestEngine(t)
	registerAccount(t, e, "alice")
	createFundedFarm(t, e)

	// A deposit under the seed minimum is diverted.
	e.limits.DefaultMinDeposit = big.NewInt(1)
	if err := e.OnFTTransfer("dai", "alice", big.NewInt(100), []byte(`{"bogus":true}`)); !errors.Is(err, ErrIllegalMsg) {
		t.Fatalf("divert err = %v, want ErrIllegalMsg", err)
	}
	balances, err := e.LostFoundBalances()
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances["dai"] == nil || balances["dai"].Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("lost-and-found = %v, want dai:100", balances)
	}

	if _, err := e.SweepLostFound("mallory", "dai", "treasury"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner err = %v, want ErrUnauthorized", err)
	}
	amount, err := e.SweepLostFound(testOwner, "dai", "treasury")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("swept = %s, want 100", amount)
	}
	if len(transferor.calls) != 1 || transferor.calls[0].Receiver != "treasury" {
		t.Fatalf("transfer calls = %+v", transferor.calls)
	}
	if _, err := e.SweepLostFound(testOwner, "dai", "treasury"); !errors.Is(err, ErrNothingToSweep) {
		t.Fatalf("drained err = %v, want ErrNothingToSweep", err)
	}
	if got := len(state.eventsOfType(EventLostFoundSwept)); got != 1 {
		t.Fatalf("swept events = %d, want 1", got)
	}
}
