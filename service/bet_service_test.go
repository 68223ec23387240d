package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"betdao/events"
	"betdao/ledger"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBetService_Wager(t *testing.T) {
	t.Run("moves chips to the option and records the wager", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)

		receipt := f.submit(t, models.ActionWager, bet, w1, 1, units(2))
		receipt = f.submit(t, models.ActionWager, bet, w1, 1, units(3))

		assert.Equal(t, units(5), receipt.Total)
		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		assert.Equal(t, units(5), snapshot.WageredTotal)
		assert.Equal(t, units(5), f.chipBalance(snapshot.Options[1].Address))
		assert.Equal(t, units(95), f.chipBalance(w1))
		assert.Len(t, f.emitter.EmittedOfType(events.EventTypeContributionRecorded), 2)
	})

	t.Run("dust is rejected without trace", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: 0, Amount: parse("999999999999999999")})
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		assert.Equal(t, units(100), f.chipBalance(w1))
		assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())
		assert.Empty(t, f.emitter.EmittedOfType(events.EventTypeContributionRecorded))
	})

	t.Run("unknown option", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: 3, Amount: units(1)})
		assert.ErrorIs(t, err, models.ErrInvalidOption)
		_, err = f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: models.VoidOption, Amount: units(1)})
		assert.ErrorIs(t, err, models.ErrInvalidOption)
	})

	t.Run("insufficient chips", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: 0, Amount: units(101)})
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		assert.True(t, snapshot.WageredTotal.IsZero())
	})

	t.Run("closed once the wagering deadline passes", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		f.clock.Advance(wageringPeriod)

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: 0, Amount: units(1)})
		assert.ErrorIs(t, err, models.ErrInvalidStatus)
		assert.Equal(t, models.BetStatusCancelled, f.status(t, bet))
	})

	t.Run("unknown bet", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: common.HexToAddress("0xdead"), Account: w1, Amount: units(1)})
		assert.ErrorIs(t, err, models.ErrBetNotFound)
	})
}

func TestBetService_Cancel(t *testing.T) {
	t.Run("zero amount refunds the wager", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		f.submit(t, models.ActionWager, bet, w1, 0, units(4))

		receipt := f.submit(t, models.ActionWager, bet, w1, 0, models.Amount{})
		assert.True(t, receipt.Cancelled)
		assert.Equal(t, units(4), receipt.Amount)
		assert.Equal(t, units(100), f.chipBalance(w1))
		assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())
		assert.Len(t, f.emitter.EmittedOfType(events.EventTypeContributionCancelled), 1)
	})

	t.Run("explicit cancel of a decision unfixes weight", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		f.submit(t, models.ActionWager, bet, w1, 0, units(2))
		f.submit(t, models.ActionWager, bet, w2, 1, units(2))
		f.clock.Advance(wageringPeriod)

		f.submit(t, models.ActionDecide, bet, d1, 0, units(4))
		assert.Equal(t, units(4), f.votes.FixedOf(d1))

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionCancel, Category: models.CategoryDecision, Bet: bet, Account: d1, Option: 0})
		require.NoError(t, err)
		assert.True(t, ref(f.votes.FixedOf(d1)).IsZero())
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: 0})
		assert.ErrorIs(t, err, models.ErrNothingToCancel)
	})

	t.Run("cancel then re-record matches a single record", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		f.submit(t, models.ActionWager, bet, w1, 0, units(2))
		f.submit(t, models.ActionWager, bet, w2, 0, units(3))
		f.submit(t, models.ActionWager, bet, w2, 0, models.Amount{})
		f.submit(t, models.ActionWager, bet, w2, 0, units(3))

		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		records := snapshot.Options[0].Wagered.Records()
		require.Len(t, records, 2)
		assert.Equal(t, w1, records[0].Account)
		assert.Equal(t, w2, records[1].Account)
		assert.Equal(t, units(3), records[1].Amount)
		assert.Equal(t, units(5), snapshot.WageredTotal)
	})

	t.Run("rejected refund restores the entry in place", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		f.submit(t, models.ActionWager, bet, w1, 0, units(2))
		f.submit(t, models.ActionWager, bet, w2, 0, units(3))
		f.submit(t, models.ActionWager, bet, w3, 0, units(1))
		f.chips.RegisterReceiver(w2, ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
			return errors.New("refund refused")
		}))

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionWager, Bet: bet, Account: w2, Option: 0})
		assert.ErrorIs(t, err, models.ErrTransferFailed)

		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		records := snapshot.Options[0].Wagered.Records()
		require.Len(t, records, 3)
		assert.Equal(t, w2, records[1].Account)
		assert.Equal(t, units(6), snapshot.WageredTotal)
		assert.Equal(t, units(6), f.escrowBalance(t, bet))
		assert.Empty(t, f.emitter.EmittedOfType(events.EventTypeContributionCancelled))
	})
}

func TestBetService_Decide(t *testing.T) {
	deciding := func(t *testing.T, f *fixture) common.Address {
		bet := f.createBet(t)
		f.submit(t, models.ActionWager, bet, w1, 0, units(2))
		f.submit(t, models.ActionWager, bet, w2, 1, units(2))
		f.clock.Advance(wageringPeriod)
		require.Equal(t, models.BetStatusDeciding, f.status(t, bet))
		return bet
	}

	t.Run("eligibility gating", func(t *testing.T) {
		f := newFixture(t)
		bet := deciding(t, f)
		newcomer := common.HexToAddress("0xd0d0")
		require.NoError(t, f.stake.Mint(newcomer, units(10)))
		require.NoError(t, f.pool.Stake(f.ctx, newcomer, parse("500000000000000000")))

		cmd := Command{Action: models.ActionDecide, Bet: bet, Account: newcomer, Option: 0, Amount: units(1)}
		_, err := f.service.Submit(f.ctx, cmd)
		assert.ErrorIs(t, err, models.ErrInsufficientEligibility)
		assert.True(t, ref(f.votes.FixedOf(newcomer)).IsZero())

		require.NoError(t, f.pool.Stake(f.ctx, newcomer, parse("500000000000000000")))
		_, err = f.service.Submit(f.ctx, cmd)
		require.NoError(t, err)
		assert.Equal(t, units(1), f.votes.FixedOf(newcomer))
	})

	t.Run("cannot fix more than available weight", func(t *testing.T) {
		f := newFixture(t)
		bet := deciding(t, f)

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionDecide, Bet: bet, Account: d1, Option: 0, Amount: units(11)})
		assert.ErrorIs(t, err, models.ErrInsufficientAllowance)
		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		assert.True(t, ref(snapshot.DecidedTotal()).IsZero())
	})

	t.Run("wrong phase", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionDecide, Bet: bet, Account: d1, Option: 0, Amount: units(1)})
		assert.ErrorIs(t, err, models.ErrInvalidStatus)
	})
}

func TestBetService_Dispute(t *testing.T) {
	t.Run("small dispute keeps the announcement open", func(t *testing.T) {
		f := newFixture(t)
		bet := f.announced(t)

		receipt := f.submit(t, models.ActionDispute, bet, p1, models.NoOption, units(1))
		assert.Equal(t, models.BetStatusAnnouncement, receipt.Status)
		assert.Equal(t, units(1), f.chipBalance(bet))
	})

	t.Run("reaching the minimum escalates immediately", func(t *testing.T) {
		f := newFixture(t)
		bet := f.arbitrating(t)

		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		assert.Equal(t, models.BetStatusArbitrating, snapshot.Status)
		assert.Equal(t, f.clock.Now().Add(decidingPeriod), snapshot.StatusDeadline)
		assert.True(t, snapshot.Arbitrated)
	})

	t.Run("undisputed announcement confirms", func(t *testing.T) {
		f := newFixture(t)
		bet := f.announced(t)
		f.clock.Advance(wageringPeriod)

		assert.Equal(t, models.BetStatusConfirmed, f.status(t, bet))
		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionDispute, Bet: bet, Account: p1, Amount: units(3)})
		assert.ErrorIs(t, err, models.ErrInvalidStatus)
	})
}

func TestBetService_Arbitrate(t *testing.T) {
	t.Run("requires level when configured", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.manager.Config()
		cfg.ArbitrateMinLevel = 1
		require.NoError(t, f.manager.SetConfig(cfg))
		bet := f.arbitrating(t)

		_, err := f.service.Submit(f.ctx, Command{Action: models.ActionArbitrate, Bet: bet, Account: a1, Option: 0, Amount: units(2)})
		assert.ErrorIs(t, err, models.ErrInsufficientEligibility)
	})

	t.Run("void option is a valid target", func(t *testing.T) {
		f := newFixture(t)
		bet := f.arbitrating(t)

		receipt := f.submit(t, models.ActionArbitrate, bet, a1, models.VoidOption, units(5))
		assert.Equal(t, models.VoidOption, receipt.Option)

		f.clock.Advance(decidingPeriod)
		assert.Equal(t, models.BetStatusCancelled, f.status(t, bet))
	})
}

func TestBetService_Release(t *testing.T) {
	t.Run("not yet resolved", func(t *testing.T) {
		f := newFixture(t)
		bet := f.announced(t)

		_, err := f.service.Release(f.ctx, bet, w1)
		assert.ErrorIs(t, err, models.ErrNotYetResolved)
	})

	t.Run("reward example", func(t *testing.T) {
		f := newFixture(t)
		bet := f.announced(t)
		assert.Equal(t, units(12), f.escrowBalance(t, bet))
		f.clock.Advance(wageringPeriod)

		settlement, err := f.service.Release(f.ctx, bet, w3)
		require.NoError(t, err)

		assert.Equal(t, models.BetStatusConfirmed, settlement.Outcome)
		assert.Equal(t, 0, settlement.Winner)
		assert.Equal(t, parse("600000000000000000"), f.chipBalance(creatorAddr))
		assert.Equal(t, parse("600000000000000000"), f.chipBalance(protocolAddr))
		assert.Equal(t, parse("1200000000000000000"), settlement.PaidTo(d1, models.AssetChip))
		assert.Equal(t, parse("9600000000000000000"), settlement.PaidTo(w1, models.AssetChip))
		assert.Equal(t, parse("107600000000000000000"), f.chipBalance(w1))
		assert.Equal(t, units(91), f.chipBalance(w2))
		assert.Equal(t, units(99), f.chipBalance(w3))
		assert.True(t, ref(settlement.TotalOf(models.PayoutKindDust)).IsZero())

		assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())
		assert.True(t, ref(f.chipBalance(managerAddr)).IsZero())

		for _, acct := range []common.Address{d1, d2, d3} {
			assert.True(t, ref(f.votes.FixedOf(acct)).IsZero())
			assert.Equal(t, units(10), f.votes.BalanceOf(acct))
		}
		assert.Equal(t, uint64(1), f.votes.LevelOf(d1))
		assert.Equal(t, uint64(0), f.votes.LevelOf(d2))

		snapshot, err := f.service.Bet(f.ctx, bet)
		require.NoError(t, err)
		assert.Equal(t, models.BetStatusClosed, snapshot.Status)
		assert.Equal(t, models.BetStatusConfirmed, snapshot.Outcome)
		assert.True(t, snapshot.Released)
		assert.Len(t, f.emitter.EmittedOfType(events.EventTypeBetReleased), 1)
	})

	t.Run("already released", func(t *testing.T) {
		f := newFixture(t)
		bet := f.announced(t)
		f.clock.Advance(wageringPeriod)
		_, err := f.service.Release(f.ctx, bet, w1)
		require.NoError(t, err)

		_, err = f.service.Release(f.ctx, bet, w1)
		assert.ErrorIs(t, err, models.ErrAlreadyReleased)
	})

	t.Run("cancelled bet refunds everything exactly", func(t *testing.T) {
		f := newFixture(t)
		bet := f.createBet(t)
		f.submit(t, models.ActionWager, bet, w1, 0, units(2))
		f.submit(t, models.ActionWager, bet, w2, 1, units(9))
		f.clock.Advance(wageringPeriod)
		f.submit(t, models.ActionDecide, bet, d1, 1, units(5))
		f.clock.Advance(decidingPeriod)
		require.Equal(t, models.BetStatusCancelled, f.status(t, bet))

		settlement, err := f.service.Release(f.ctx, bet, w1)
		require.NoError(t, err)

		assert.Equal(t, models.BetStatusCancelled, settlement.Outcome)
		assert.Equal(t, units(100), f.chipBalance(w1))
		assert.Equal(t, units(100), f.chipBalance(w2))
		assert.True(t, ref(f.chipBalance(creatorAddr)).IsZero())
		assert.True(t, ref(f.chipBalance(protocolAddr)).IsZero())
		assert.True(t, ref(f.votes.FixedOf(d1)).IsZero())
		assert.Empty(t, settlement.Confiscated)
		assert.Empty(t, settlement.LevelChanges)
	})

	t.Run("dispute rejected confiscates disputed chips", func(t *testing.T) {
		f := newFixture(t)
		bet := f.arbitrating(t)
		f.submit(t, models.ActionArbitrate, bet, a1, 0, units(3))
		f.submit(t, models.ActionArbitrate, bet, a2, 0, units(1))
		f.submit(t, models.ActionArbitrate, bet, a3, 1, units(1))
		assert.Equal(t, units(15), f.escrowBalance(t, bet))
		f.clock.Advance(decidingPeriod)

		settlement, err := f.service.Release(f.ctx, bet, a1)
		require.NoError(t, err)

		assert.Equal(t, 0, settlement.Winner)
		assert.Equal(t, units(97), f.chipBalance(p1))
		assert.Equal(t, parse("2250000000000000000"), f.chipBalance(a1))
		assert.Equal(t, parse("750000000000000000"), f.chipBalance(a2))
		assert.True(t, ref(f.chipBalance(a3)).IsZero())

		assert.Empty(t, settlement.Confiscated)
		assert.Equal(t, units(10), f.votes.BalanceOf(d2))
		for _, acct := range []common.Address{d1, d2, d3, a1, a2, a3} {
			assert.True(t, ref(f.votes.FixedOf(acct)).IsZero())
		}
		assert.Equal(t, uint64(1), f.votes.LevelOf(d1))
		assert.Equal(t, uint64(1), f.votes.LevelOf(a1))
		assert.Equal(t, uint64(1), f.votes.LevelOf(a2))
		assert.Equal(t, uint64(0), f.votes.LevelOf(a3))
		assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())
	})

	t.Run("dispute upheld confiscates decided weight", func(t *testing.T) {
		f := newFixture(t)
		bet := f.arbitrating(t)
		f.submit(t, models.ActionArbitrate, bet, a1, 1, units(3))
		f.submit(t, models.ActionArbitrate, bet, a2, 1, units(1))
		f.submit(t, models.ActionArbitrate, bet, a3, 0, units(1))
		f.clock.Advance(decidingPeriod)
		reserveBefore := f.stake.BalanceOf(poolAddr)

		settlement, err := f.service.Release(f.ctx, bet, a1)
		require.NoError(t, err)

		assert.Equal(t, 1, settlement.Winner)
		// chips: decider pool to B's deciders, winner pool to B's only wagerer, dispute refunded
		assert.Equal(t, parse("900000000000000000"), f.chipBalance(d2))
		assert.Equal(t, parse("300000000000000000"), f.chipBalance(d3))
		assert.Equal(t, parse("100600000000000000000"), f.chipBalance(w2))
		assert.Equal(t, units(100), f.chipBalance(p1))
		assert.True(t, ref(settlement.TotalOf(models.PayoutKindDisputeConfiscation)).IsZero())

		// stake: d1's decided weight goes to B's arbitrators
		require.Len(t, settlement.Confiscated, 1)
		assert.Equal(t, d1, settlement.Confiscated[0].Account)
		assert.Equal(t, units(5), f.votes.BalanceOf(d1))
		assert.True(t, ref(f.votes.FixedOf(d1)).IsZero())
		assert.Equal(t, parse("93750000000000000000"), f.stake.BalanceOf(a1))
		assert.Equal(t, parse("91250000000000000000"), f.stake.BalanceOf(a2))
		assert.Equal(t, models.SubAmount(reserveBefore, units(5)), f.stake.BalanceOf(poolAddr))
		assert.True(t, ref(f.stake.BalanceOf(bet)).IsZero())
		assert.True(t, ref(f.stake.BalanceOf(managerAddr)).IsZero())

		assert.Equal(t, uint64(1), f.votes.LevelOf(d2))
		assert.Equal(t, uint64(1), f.votes.LevelOf(a1))
		assert.Equal(t, uint64(0), f.votes.LevelOf(d1))
		assert.Len(t, f.emitter.EmittedOfType(events.EventTypeWeightConfiscated), 1)
	})

	t.Run("void arbitration cancels and refunds disputes", func(t *testing.T) {
		f := newFixture(t)
		bet := f.arbitrating(t)
		f.submit(t, models.ActionArbitrate, bet, a1, models.VoidOption, units(5))
		f.clock.Advance(decidingPeriod)

		settlement, err := f.service.Release(f.ctx, bet, a1)
		require.NoError(t, err)
		assert.Equal(t, models.BetStatusCancelled, settlement.Outcome)
		assert.Equal(t, units(100), f.chipBalance(p1))
		assert.Equal(t, units(100), f.chipBalance(w2))
		assert.True(t, ref(f.votes.FixedOf(a1)).IsZero())
	})
}

func TestBetService_Reentrancy(t *testing.T) {
	f := newFixture(t)
	bet := f.announced(t)
	f.clock.Advance(wageringPeriod)

	var releaseErr, wagerErr, decideErr error
	calls := 0
	f.chips.RegisterReceiver(w1, ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
		calls++
		_, releaseErr = f.service.Release(ctx, bet, w1)
		_, wagerErr = f.service.Submit(ctx, Command{Action: models.ActionWager, Bet: bet, Account: w1, Option: 0, Amount: units(1)})
		_, decideErr = f.service.Submit(ctx, Command{Action: models.ActionDecide, Bet: bet, Account: d1, Option: 0, Amount: units(1)})
		return nil
	}))

	settlement, err := f.service.Release(f.ctx, bet, w3)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, releaseErr, models.ErrAlreadyReleased)
	assert.ErrorIs(t, wagerErr, models.ErrInvalidStatus)
	assert.ErrorIs(t, decideErr, models.ErrInvalidStatus)
	assert.Empty(t, settlement.Obligations)
	assert.Equal(t, parse("107600000000000000000"), f.chipBalance(w1))
	assert.True(t, ref(f.votes.FixedOf(d1)).IsZero())
	assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())
}

func TestBetService_FailedPayout(t *testing.T) {
	f := newFixture(t)
	bet := f.announced(t)
	f.clock.Advance(wageringPeriod)
	f.chips.RegisterReceiver(w1, ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
		return errors.New("wallet offline")
	}))

	settlement, err := f.service.Release(f.ctx, bet, w3)
	require.NoError(t, err)

	require.Len(t, settlement.Obligations, 1)
	obligation := settlement.Obligations[0]
	assert.Equal(t, w1, obligation.Account)
	assert.Equal(t, models.PayoutKindWinnerBonus, obligation.Kind)
	assert.Equal(t, parse("9600000000000000000"), obligation.Amount)
	assert.Equal(t, parse("1200000000000000000"), f.chipBalance(d1))
	assert.Equal(t, parse("600000000000000000"), f.chipBalance(creatorAddr))
	assert.Equal(t, models.BetStatusClosed, f.status(t, bet))
	assert.Equal(t, parse("9600000000000000000"), f.chipBalance(managerAddr))
	assert.True(t, ref(settlement.PaidTo(w1, models.AssetChip)).IsZero())
	assert.Len(t, f.emitter.EmittedOfType(events.EventTypePayoutFailed), 1)

	t.Run("claim keeps failing while the recipient rejects", func(t *testing.T) {
		claimed, err := f.service.Claim(f.ctx, bet, w1)
		assert.ErrorIs(t, err, models.ErrTransferFailed)
		assert.Empty(t, claimed)
		assert.Len(t, f.service.Obligations(bet, w1), 1)
	})

	t.Run("claim delivers once accepted", func(t *testing.T) {
		f.chips.UnregisterReceiver(w1)
		claimed, err := f.service.Claim(f.ctx, bet, w1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.True(t, claimed[0].IsClaimed())
		assert.Equal(t, parse("107600000000000000000"), f.chipBalance(w1))
		assert.True(t, ref(f.chipBalance(managerAddr)).IsZero())
		assert.Empty(t, f.service.Obligations(bet, w1))
	})

	t.Run("nothing left to claim", func(t *testing.T) {
		claimed, err := f.service.Claim(f.ctx, bet, w1)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestBetService_ClaimReentrancy(t *testing.T) {
	f := newFixture(t)
	rejecting := ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
		return errors.New("wallet offline")
	})

	first := f.announced(t)
	second := f.announced(t)
	f.chips.RegisterReceiver(w1, rejecting)
	_, err := f.service.Release(f.ctx, first, w3)
	require.NoError(t, err)
	f.clock.Advance(wageringPeriod)
	_, err = f.service.Release(f.ctx, second, w3)
	require.NoError(t, err)

	require.Len(t, f.service.Obligations(first, w1), 1)
	require.Len(t, f.service.Obligations(second, w1), 1)
	assert.Equal(t, parse("19200000000000000000"), f.chipBalance(managerAddr))
	assert.Equal(t, units(96), f.chipBalance(w1))

	var (
		nested      []*models.Obligation
		nestedErr   error
		nestedCalls int
	)
	f.chips.RegisterReceiver(w1, ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
		if nestedCalls == 0 {
			nestedCalls++
			nested, nestedErr = f.service.Claim(ctx, first, w1)
		}
		return nil
	}))

	claimed, err := f.service.Claim(f.ctx, first, w1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, nestedCalls)
	assert.NoError(t, nestedErr)
	assert.Empty(t, nested)

	assert.Equal(t, parse("105600000000000000000"), f.chipBalance(w1))
	assert.Equal(t, parse("9600000000000000000"), f.chipBalance(managerAddr))
	assert.Len(t, f.emitter.EmittedOfType(events.EventTypeObligationClaimed), 1)

	t.Run("the other bet's obligation is still funded", func(t *testing.T) {
		require.Len(t, f.service.Obligations(second, w1), 1)
		claimed, err := f.service.Claim(f.ctx, second, w1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, parse("115200000000000000000"), f.chipBalance(w1))
		assert.True(t, ref(f.chipBalance(managerAddr)).IsZero())
	})
}

func TestBetService_UnsweptEscrow(t *testing.T) {
	f := newFixture(t)
	bet := f.announced(t)
	f.clock.Advance(wageringPeriod)

	snapshot, err := f.service.Bet(f.ctx, bet)
	require.NoError(t, err)
	stuck := snapshot.Options[1].Address

	// Funds other bets left in the vault
	require.NoError(t, f.chips.Mint(managerAddr, units(20)))
	f.chips.RegisterReceiver(managerAddr, ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
		if from == stuck {
			return errors.New("escrow frozen")
		}
		return nil
	}))

	settlement, err := f.service.Release(f.ctx, bet, w3)
	require.NoError(t, err)

	assert.Equal(t, units(9), f.chipBalance(stuck))
	assert.Equal(t, parse("600000000000000000"), f.chipBalance(creatorAddr))
	assert.Equal(t, parse("1200000000000000000"), f.chipBalance(d1))
	require.Len(t, settlement.Obligations, 1)
	obligation := settlement.Obligations[0]
	assert.Equal(t, w1, obligation.Account)
	assert.Equal(t, models.PayoutKindWinnerBonus, obligation.Kind)
	assert.Contains(t, obligation.Reason, models.ErrInsufficientBalance.Error())
	assert.Equal(t, units(98), f.chipBalance(w1))
	assert.Equal(t, parse("20600000000000000000"), f.chipBalance(managerAddr))

	t.Run("claim waits for the escrow to reach the vault", func(t *testing.T) {
		claimed, err := f.service.Claim(f.ctx, bet, w1)
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		assert.Empty(t, claimed)
		assert.Equal(t, parse("20600000000000000000"), f.chipBalance(managerAddr))
	})

	t.Run("claim pays once the escrow is swept", func(t *testing.T) {
		f.chips.UnregisterReceiver(managerAddr)
		claimed, err := f.service.Claim(f.ctx, bet, w1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, parse("107600000000000000000"), f.chipBalance(w1))
		assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())
		assert.Equal(t, units(20), f.chipBalance(managerAddr))
	})
}

func TestBetService_ConfiscationShortfall(t *testing.T) {
	f := newFixture(t)
	bet := f.arbitrating(t)
	f.submit(t, models.ActionArbitrate, bet, a1, 1, units(5))
	f.clock.Advance(decidingPeriod)

	// Leave the reserve short of d1's decided weight
	require.NoError(t, f.stake.Transfer(f.ctx, poolAddr, p1, units(58)))

	settlement, err := f.service.Release(f.ctx, bet, a1)
	require.NoError(t, err)

	assert.Equal(t, 1, settlement.Winner)
	assert.Empty(t, settlement.Confiscated)
	assert.True(t, ref(settlement.TotalOf(models.PayoutKindDecisionConfiscation)).IsZero())
	for _, p := range settlement.Payouts {
		assert.Equal(t, models.AssetChip, p.Asset)
	}
	assert.Equal(t, units(5), f.votes.FixedOf(d1))
	assert.Equal(t, units(90), f.stake.BalanceOf(a1))
	assert.Equal(t, units(2), f.stake.BalanceOf(poolAddr))
	assert.True(t, ref(f.stake.BalanceOf(managerAddr)).IsZero())
	assert.Equal(t, units(100), f.chipBalance(p1))
}

func TestBetService_Conservation(t *testing.T) {
	f := newFixture(t)
	bet := f.arbitrating(t)

	snapshot, err := f.service.Bet(f.ctx, bet)
	require.NoError(t, err)
	expected := models.AddAmount(snapshot.WageredTotal, snapshot.DisputedTotal)
	assert.Equal(t, expected, f.escrowBalance(t, bet))

	f.submit(t, models.ActionArbitrate, bet, a1, 0, units(5))
	f.clock.Advance(decidingPeriod)
	_, err = f.service.Release(f.ctx, bet, a1)
	require.NoError(t, err)
	assert.True(t, ref(f.escrowBalance(t, bet)).IsZero())

	var total models.Amount
	for _, acct := range []common.Address{w1, w2, w3, d1, d2, d3, p1, a1, a2, a3, creatorAddr, protocolAddr, managerAddr} {
		total = models.AddAmount(total, f.chipBalance(acct))
	}
	assert.Equal(t, units(400), total)
}

func TestBetService_PhaseMonotonicity(t *testing.T) {
	f := newFixture(t)
	bet := f.arbitrating(t)
	f.submit(t, models.ActionArbitrate, bet, a1, 1, units(5))
	f.clock.Advance(decidingPeriod)
	_, err := f.service.Release(f.ctx, bet, a1)
	require.NoError(t, err)

	var seen []models.BetStatus
	for _, e := range f.emitter.EmittedOfType(events.EventTypeBetStatusChanged) {
		seen = append(seen, e.(events.BetStatusChangedEvent).NewStatus)
	}
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].CanTransitionTo(seen[i]), "%s -> %s", seen[i-1], seen[i])
	}
	assert.Equal(t, []models.BetStatus{
		models.BetStatusDeciding,
		models.BetStatusAnnouncement,
		models.BetStatusArbitrating,
		models.BetStatusConfirmed,
		models.BetStatusClosed,
	}, seen)
}

func TestBetService_ReleaseJournal(t *testing.T) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockBetRepo := new(MockBetRepository)
	mockPayoutRepo := new(MockPayoutRepository)
	mockObligationRepo := new(MockObligationRepository)
	mockUoW.SetRepositories(mockBetRepo, mockPayoutRepo, mockObligationRepo)
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", mock.Anything).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)
	mockBetRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	f := newFixtureWithJournal(t, mockFactory)
	bet := f.announced(t)
	f.clock.Advance(wageringPeriod)

	t.Run("journal failure never undoes the release", func(t *testing.T) {
		mockPayoutRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(p []*models.Payout) bool {
			return len(p) == 4
		}), f.clock.Now()).Return(errors.New("database unavailable")).Once()

		settlement, err := f.service.Release(f.ctx, bet, w1)
		require.NoError(t, err)
		assert.Len(t, settlement.Payouts, 4)
		assert.Equal(t, models.BetStatusClosed, f.status(t, bet))
		mockPayoutRepo.AssertExpectations(t)
		mockObligationRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestBetService_Metrics(t *testing.T) {
	metrics := new(MockMetrics)
	metrics.On("RecordSubmission", mock.Anything, models.ActionWager, nil).Return().Once()
	metrics.On("RecordSubmission", mock.Anything, models.ActionWager, mock.Anything).Return()
	metrics.On("RecordBetCreated", mock.Anything, "native").Return()

	chips := ledger.NewValueLedger("native")
	stake := ledger.NewValueLedger("stake")
	deps := Dependencies{
		Registry: NewBetRegistry(),
		Chips:    ledger.NewRegistry(chips),
		Votes:    ledger.NewVoteLedger(stake),
		Stake:    stake,
		Bus:      events.NewBus(),
		Clock:    NewManualClock(testStart),
		Metrics:  metrics,
	}
	require.NoError(t, chips.Mint(w1, units(10)))

	manager, err := NewBetManager(managerAddr, createTestConfig(), deps)
	require.NoError(t, err)
	svc := NewBetService(managerAddr, deps)

	bet, err := manager.CreateBet(context.Background(), CreateBetParams{
		Creator: creatorAddr, Details: createTestDetails(), WageringDuration: time.Hour, DecidingDuration: time.Hour, Chip: "native",
	})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), Command{Action: models.ActionWager, Bet: bet.Address, Account: w1, Option: 0, Amount: units(2)})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), Command{Action: models.ActionWager, Bet: bet.Address, Account: w1, Option: 0, Amount: units(20)})
	require.Error(t, err)

	metrics.AssertNumberOfCalls(t, "RecordSubmission", 2)
	metrics.AssertCalled(t, "RecordBetCreated", mock.Anything, "native")
}

// ref returns a pointer to a copy of a so pointer-receiver methods can be called on returned values.
func ref(a models.Amount) *models.Amount { return &a }
