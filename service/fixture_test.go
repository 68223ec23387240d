package service

import (
	"context"
	"testing"
	"time"

	"betdao/ledger"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Test utilities

var (
	testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	managerAddr  = common.HexToAddress("0x1000")
	poolAddr     = common.HexToAddress("0x2000")
	protocolAddr = common.HexToAddress("0x3000")
	creatorAddr  = common.HexToAddress("0x4000")

	w1 = common.HexToAddress("0xa001")
	w2 = common.HexToAddress("0xa002")
	w3 = common.HexToAddress("0xa003")
	d1 = common.HexToAddress("0xd001")
	d2 = common.HexToAddress("0xd002")
	d3 = common.HexToAddress("0xd003")
	p1 = common.HexToAddress("0xe001")
	a1 = common.HexToAddress("0xf001")
	a2 = common.HexToAddress("0xf002")
	a3 = common.HexToAddress("0xf003")
)

const (
	wageringPeriod = 10 * time.Hour
	decidingPeriod = 5 * time.Hour
)

// units returns n whole tokens of 18 decimals
func units(n uint64) models.Amount {
	var z models.Amount
	e18 := models.NewAmount(1_000_000_000_000_000_000)
	v := models.NewAmount(n)
	z.Mul(&v, &e18)
	return z
}

func parse(s string) models.Amount {
	return models.MustParseAmount(s)
}

func createTestConfig() models.BetConfig {
	return models.BetConfig{
		MinWageredTotal:      units(3),
		MinDecidedTotal:      units(3),
		MinDisputedTotal:     units(3),
		MinArbitratedTotal:   units(4),
		CreatorRatio:         50_000,
		DeciderRatio:         100_000,
		ProtocolRatio:        50_000,
		MinWageringDuration:  time.Hour,
		MaxWageringDuration:  7 * 24 * time.Hour,
		MinDecidingDuration:  time.Hour,
		MaxDecidingDuration:  7 * 24 * time.Hour,
		MinOptions:           2,
		MaxOptions:           8,
		MaxTitleLength:       120,
		MaxDescriptionLength: 2000,
		ForumURLPrefixes:     []string{"https://forum.betdao.example/"},
		DecideThreshold:      units(1),
		ArbitrateThreshold:   units(2),
		ProtocolAccount:      protocolAddr,
	}
}

func createTestDetails(options ...string) models.BetDetails {
	if len(options) == 0 {
		options = []string{"A", "B", "C"}
	}
	return models.BetDetails{
		Title:       "Who wins the final?",
		Description: "Resolves to the team lifting the trophy.",
		ForumURL:    "https://forum.betdao.example/t/42",
		Options:     options,
	}
}

type fixture struct {
	ctx     context.Context
	clock   *ManualClock
	chips   *ledger.ValueLedger
	stake   *ledger.ValueLedger
	votes   *ledger.VoteLedger
	pool    *ledger.StakingPool
	emitter *MockEmitter
	manager BetManager
	service BetService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithJournal(t, nil)
}

func newFixtureWithJournal(t *testing.T, uow UnitOfWorkFactory) *fixture {
	t.Helper()

	f := &fixture{
		ctx:     context.Background(),
		clock:   NewManualClock(testStart),
		chips:   ledger.NewValueLedger("native"),
		stake:   ledger.NewValueLedger("stake"),
		emitter: new(MockEmitter),
	}
	f.emitter.On("Emit", mock.Anything, mock.Anything).Return()
	f.votes = ledger.NewVoteLedger(f.stake)
	f.pool = ledger.NewStakingPool(poolAddr, f.stake, f.votes)

	deps := Dependencies{
		Registry:   NewBetRegistry(),
		Chips:      ledger.NewRegistry(f.chips),
		Votes:      f.votes,
		Stake:      f.stake,
		Bus:        f.emitter,
		Clock:      f.clock,
		UnitOfWork: uow,
	}

	manager, err := NewBetManager(managerAddr, createTestConfig(), deps)
	require.NoError(t, err)
	f.manager = manager
	f.service = NewBetService(managerAddr, deps)

	for _, acct := range []common.Address{w1, w2, w3, p1} {
		require.NoError(t, f.chips.Mint(acct, units(100)))
	}
	for _, acct := range []common.Address{d1, d2, d3, a1, a2, a3} {
		require.NoError(t, f.stake.Mint(acct, units(100)))
		require.NoError(t, f.pool.Stake(f.ctx, acct, units(10)))
	}
	return f
}

func (f *fixture) createBet(t *testing.T, options ...string) common.Address {
	t.Helper()
	bet, err := f.manager.CreateBet(f.ctx, CreateBetParams{
		Creator:          creatorAddr,
		Details:          createTestDetails(options...),
		WageringDuration: wageringPeriod,
		DecidingDuration: decidingPeriod,
		Chip:             "native",
	})
	require.NoError(t, err)
	return bet.Address
}

func (f *fixture) submit(t *testing.T, action models.Action, bet, account common.Address, option int, amount models.Amount) *Receipt {
	t.Helper()
	receipt, err := f.service.Submit(f.ctx, Command{Action: action, Bet: bet, Account: account, Option: option, Amount: amount})
	require.NoError(t, err)
	return receipt
}

func (f *fixture) status(t *testing.T, bet common.Address) models.BetStatus {
	t.Helper()
	status, err := f.service.Observe(f.ctx, bet)
	require.NoError(t, err)
	return status
}

// announced drives a bet to ANNOUNCEMENT with wagers 2/9/1 on A/B/C and decisions 5/3/1 for A/B/B
func (f *fixture) announced(t *testing.T) common.Address {
	t.Helper()
	bet := f.createBet(t)

	f.submit(t, models.ActionWager, bet, w1, 0, units(2))
	f.submit(t, models.ActionWager, bet, w2, 1, units(9))
	f.submit(t, models.ActionWager, bet, w3, 2, units(1))

	f.clock.Advance(wageringPeriod)
	require.Equal(t, models.BetStatusDeciding, f.status(t, bet))

	f.submit(t, models.ActionDecide, bet, d1, 0, units(5))
	f.submit(t, models.ActionDecide, bet, d2, 1, units(3))
	f.submit(t, models.ActionDecide, bet, d3, 1, units(1))

	f.clock.Advance(decidingPeriod)
	require.Equal(t, models.BetStatusAnnouncement, f.status(t, bet))
	return bet
}

// arbitrating adds a dispute large enough to escalate an announced bet
func (f *fixture) arbitrating(t *testing.T) common.Address {
	t.Helper()
	bet := f.announced(t)
	f.clock.Advance(time.Hour)
	receipt := f.submit(t, models.ActionDispute, bet, p1, models.NoOption, units(3))
	require.Equal(t, models.BetStatusArbitrating, receipt.Status)
	return bet
}

func (f *fixture) chipBalance(account common.Address) models.Amount {
	return f.chips.BalanceOf(account)
}

func (f *fixture) escrowBalance(t *testing.T, bet common.Address) models.Amount {
	t.Helper()
	snapshot, err := f.service.Bet(f.ctx, bet)
	require.NoError(t, err)
	total := f.chips.BalanceOf(snapshot.Address)
	for _, opt := range snapshot.Options {
		total = models.AddAmount(total, f.chips.BalanceOf(opt.Address))
	}
	return total
}
