package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betdao/events"
	"betdao/ledger"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type betService struct {
	vault      common.Address
	deps       Dependencies
	calculator *SettlementCalculator
}

// NewBetService creates the lifecycle service. Settlement funds pass through vault.
func NewBetService(vault common.Address, deps Dependencies) BetService {
	return &betService{
		vault:      vault,
		deps:       deps.withDefaults(),
		calculator: NewSettlementCalculator(),
	}
}

func (s *betService) Submit(ctx context.Context, cmd Command) (receipt *Receipt, err error) {
	defer func() {
		s.deps.Metrics.RecordSubmission(ctx, cmd.Action, err)
	}()

	entry, err := s.deps.Registry.get(cmd.Bet)
	if err != nil {
		return nil, err
	}
	s.advance(ctx, entry)

	bus := events.NewTransactionalBus(s.deps.Bus)
	defer func() {
		if err != nil {
			bus.Discard()
			return
		}
		if ferr := bus.Flush(ctx); ferr != nil {
			log.WithError(ferr).Error("Failed to flush submission events")
		}
	}()

	category, err := commandCategory(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Action == models.ActionCancel || cmd.Amount.IsZero() {
		return s.cancel(ctx, entry, category, cmd, bus)
	}
	return s.contribute(ctx, entry, category, cmd, bus)
}

func commandCategory(cmd Command) (models.Category, error) {
	if cmd.Action == models.ActionCancel {
		return models.ParseCategory(string(cmd.Category))
	}
	return cmd.Action.Category()
}

// contribute records a wager, decision, dispute or arbitration. Every check runs before funds move.
func (s *betService) contribute(ctx context.Context, entry *betEntry, category models.Category, cmd Command, bus EventPublisher) (*Receipt, error) {
	bet := entry.bet
	if bet.Released || bet.Status != category.AcceptingStatus() {
		return nil, fmt.Errorf("%w: cannot %s while bet is %s", models.ErrInvalidStatus, cmd.Action, bet.Status)
	}
	option := cmd.Option
	if category == models.CategoryDispute {
		option = models.NoOption
	}
	if _, err := bet.Ledger(category, option); err != nil {
		return nil, err
	}
	if threshold := bet.DustThreshold(category); models.LessThan(cmd.Amount, threshold) {
		return nil, fmt.Errorf("%w: %s is below the %s minimum of %s", models.ErrInvalidAmount, cmd.Amount.Dec(), category, threshold.Dec())
	}

	switch category {
	case models.CategoryDecision:
		if !s.deps.Votes.IsAbleToDecide(cmd.Account, bet.Config.DecideThreshold) {
			return nil, fmt.Errorf("%w: %s may not decide", models.ErrInsufficientEligibility, cmd.Account.Hex())
		}
	case models.CategoryArbitration:
		if !s.deps.Votes.IsAbleToArbitrate(cmd.Account, bet.Config.ArbitrateThreshold, bet.Config.ArbitrateMinLevel) {
			return nil, fmt.Errorf("%w: %s may not arbitrate", models.ErrInsufficientEligibility, cmd.Account.Hex())
		}
	}

	if category.IsVoteWeight() {
		if err := s.deps.Votes.Fix(entry.capability, cmd.Account, cmd.Amount); err != nil {
			return nil, fmt.Errorf("failed to fix vote weight: %w", err)
		}
	} else {
		chip, err := s.deps.Chips.Get(bet.Chip)
		if err != nil {
			return nil, err
		}
		if err := chip.Transfer(ctx, cmd.Account, holdingAddress(bet, category, option), cmd.Amount); err != nil {
			return nil, fmt.Errorf("failed to collect %s: %w", category, err)
		}
	}

	if err := bet.Record(category, option, cmd.Account, cmd.Amount); err != nil {
		return nil, err
	}
	records, _ := bet.Ledger(category, option)
	total := records.AmountOf(cmd.Account)

	bus.Publish(events.ContributionRecordedEvent{
		Bet:      bet.Address,
		Account:  cmd.Account,
		Category: category,
		Option:   option,
		Amount:   cmd.Amount.Dec(),
		Total:    total.Dec(),
	})

	if category == models.CategoryDispute {
		if change, ok := bet.Escalate(s.deps.Clock.Now()); ok {
			s.publishTransition(ctx, bus, bet, change)
		}
	}

	log.WithFields(log.Fields{
		"bet":      bet.Address.Hex(),
		"account":  cmd.Account.Hex(),
		"category": category,
		"option":   models.OptionName(option),
		"amount":   cmd.Amount.Dec(),
	}).Debug("Recorded contribution")

	return &Receipt{
		Bet:      bet.Address,
		Account:  cmd.Account,
		Category: category,
		Option:   option,
		Amount:   cmd.Amount,
		Total:    total,
		Status:   bet.Status,
	}, nil
}

// cancel withdraws the account's entry and refunds it. A rejected refund restores the entry in place.
func (s *betService) cancel(ctx context.Context, entry *betEntry, category models.Category, cmd Command, bus EventPublisher) (*Receipt, error) {
	bet := entry.bet
	if bet.Released || bet.Status != category.AcceptingStatus() {
		return nil, fmt.Errorf("%w: cannot cancel %s while bet is %s", models.ErrInvalidStatus, category, bet.Status)
	}
	option := cmd.Option
	if category == models.CategoryDispute {
		option = models.NoOption
	}

	amount, position, err := bet.Withdraw(category, option, cmd.Account)
	if err != nil {
		return nil, err
	}

	if category.IsVoteWeight() {
		err = s.deps.Votes.Unfix(entry.capability, cmd.Account, amount)
	} else {
		var chip *ledger.ValueLedger
		chip, err = s.deps.Chips.Get(bet.Chip)
		if err == nil {
			err = chip.Transfer(ctx, holdingAddress(bet, category, option), cmd.Account, amount)
		}
	}
	if err != nil {
		bet.Restore(category, option, cmd.Account, amount, position)
		return nil, fmt.Errorf("failed to refund %s: %w", category, err)
	}

	bus.Publish(events.ContributionCancelledEvent{
		Bet:      bet.Address,
		Account:  cmd.Account,
		Category: category,
		Option:   option,
		Refunded: amount.Dec(),
	})

	log.WithFields(log.Fields{
		"bet":      bet.Address.Hex(),
		"account":  cmd.Account.Hex(),
		"category": category,
		"refunded": amount.Dec(),
	}).Debug("Cancelled contribution")

	return &Receipt{
		Bet:       bet.Address,
		Account:   cmd.Account,
		Category:  category,
		Option:    option,
		Amount:    amount,
		Cancelled: true,
		Status:    bet.Status,
	}, nil
}

// holdingAddress is where a category's chips wait until release
func holdingAddress(bet *models.Bet, category models.Category, option int) common.Address {
	if category == models.CategoryWager {
		return bet.Options[option].Address
	}
	return bet.Address
}

func (s *betService) Release(ctx context.Context, address common.Address, caller common.Address) (*models.Settlement, error) {
	start := time.Now()
	entry, err := s.deps.Registry.get(address)
	if err != nil {
		return nil, err
	}
	s.advance(ctx, entry)

	bet := entry.bet
	if bet.Released || bet.Status == models.BetStatusClosed {
		return nil, models.ErrAlreadyReleased
	}
	if !bet.Status.IsResolved() {
		return nil, fmt.Errorf("%w: bet is %s", models.ErrNotYetResolved, bet.Status)
	}
	chip, err := s.deps.Chips.Get(bet.Chip)
	if err != nil {
		return nil, err
	}

	input := CaptureSettlementInput(bet)
	plan := s.calculator.Plan(input)
	now := s.deps.Clock.Now()
	bus := events.NewTransactionalBus(s.deps.Bus)

	// Commit terminal state before any external call so reentrant callers see a closed bet
	change, err := bet.Close(now)
	if err != nil {
		return nil, err
	}
	s.publishTransition(ctx, bus, bet, change)

	settlement := &models.Settlement{
		Bet:        bet.Address,
		Chip:       bet.Chip,
		Outcome:    bet.Outcome,
		Winner:     bet.ConfirmedWinningOption,
		ReleasedAt: now,
	}
	entry.settlement = settlement

	s.applyWeights(ctx, entry, plan, settlement, bus)
	if len(settlement.Confiscated) < len(plan.Confiscate) {
		plan.StakePayouts = s.calculator.ConfiscationPayouts(input, settlement.ConfiscatedTotal())
	}
	s.collect(ctx, entry, chip)

	if err := s.deps.Votes.Revoke(entry.capability); err != nil {
		log.WithError(err).WithField("bet", bet.Address.Hex()).Error("Failed to revoke bet capability")
	}

	for _, p := range plan.ChipPayouts {
		s.pay(ctx, entry, chip, p, bus)
	}
	for _, p := range plan.StakePayouts {
		s.pay(ctx, entry, s.deps.Stake, p, bus)
	}
	settlement.Payouts = append(plan.ChipPayouts, plan.StakePayouts...)

	bus.Publish(events.BetReleasedEvent{
		Bet:         bet.Address,
		Outcome:     settlement.Outcome,
		Winner:      settlement.Winner,
		Payouts:     len(settlement.Payouts),
		Obligations: len(settlement.Obligations),
		ReleasedBy:  caller,
	})
	if err := bus.Flush(ctx); err != nil {
		log.WithError(err).Error("Failed to flush release events")
	}
	s.deps.Metrics.RecordRelease(ctx, settlement.Outcome, len(settlement.Payouts), len(settlement.Obligations), time.Since(start))

	journal(ctx, s.deps.UnitOfWork, "release bet", func(uow UnitOfWork) error {
		if err := uow.BetRepository().Upsert(ctx, models.NewBetRecord(bet)); err != nil {
			return err
		}
		if err := uow.PayoutRepository().CreateBatch(ctx, settlement.Payouts, settlement.ReleasedAt); err != nil {
			return err
		}
		for _, o := range settlement.Obligations {
			if err := uow.ObligationRepository().Create(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	log.WithFields(log.Fields{
		"bet":         bet.Address.Hex(),
		"outcome":     settlement.Outcome,
		"winner":      models.OptionName(settlement.Winner),
		"payouts":     len(settlement.Payouts),
		"obligations": len(settlement.Obligations),
		"caller":      caller.Hex(),
	}).Info("Released bet")

	return settlement, nil
}

// collect sweeps every escrow address of the bet into the vault
func (s *betService) collect(ctx context.Context, entry *betEntry, chip *ledger.ValueLedger) {
	for _, opt := range entry.bet.Options {
		s.sweep(ctx, entry, chip, models.AssetChip, opt.Address)
	}
	s.sweep(ctx, entry, chip, models.AssetChip, entry.bet.Address)
	s.sweep(ctx, entry, s.deps.Stake, models.AssetStake, entry.bet.Address)
}

// sweep moves an escrow address's whole balance into the vault and books it to the bet
func (s *betService) sweep(ctx context.Context, entry *betEntry, l *ledger.ValueLedger, asset models.Asset, from common.Address) {
	balance := l.BalanceOf(from)
	if balance.IsZero() {
		return
	}
	if err := l.Transfer(ctx, from, s.vault, balance); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"bet":    entry.bet.Address.Hex(),
			"from":   from.Hex(),
			"symbol": l.Symbol(),
		}).Error("Failed to sweep escrow balance into vault")
		return
	}
	entry.credit(asset, balance)
}

// withdraw pays from the vault out of what the bet holds there
func (s *betService) withdraw(ctx context.Context, entry *betEntry, l *ledger.ValueLedger, asset models.Asset, to common.Address, amount models.Amount) error {
	if !entry.debit(asset, amount) {
		held := entry.held[asset]
		return fmt.Errorf("%w: bet %s holds %s %s in the vault, owes %s", models.ErrInsufficientBalance, entry.bet.Address.Hex(), held.Dec(), asset, amount.Dec())
	}
	if err := l.Transfer(ctx, s.vault, to, amount); err != nil {
		entry.credit(asset, amount)
		return err
	}
	return nil
}

func (s *betService) applyWeights(ctx context.Context, entry *betEntry, plan *SettlementPlan, settlement *models.Settlement, bus EventPublisher) {
	bet := entry.bet
	for _, u := range plan.Unfix {
		if err := s.deps.Votes.Unfix(entry.capability, u.Account, u.Amount); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"bet":     bet.Address.Hex(),
				"account": u.Account.Hex(),
			}).Error("Failed to unfix vote weight")
			continue
		}
		settlement.Unfixed = append(settlement.Unfixed, u)
	}

	for _, c := range plan.Confiscate {
		if err := s.deps.Votes.Confiscate(ctx, entry.capability, c.Account, c.Amount, bet.Address); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"bet":     bet.Address.Hex(),
				"account": c.Account.Hex(),
			}).Error("Failed to confiscate vote weight")
			continue
		}
		settlement.Confiscated = append(settlement.Confiscated, c)
		bus.Publish(events.WeightConfiscatedEvent{Bet: bet.Address, Account: c.Account, Amount: c.Amount.Dec()})
	}

	for _, op := range plan.Levels {
		var (
			level uint64
			err   error
			delta = 1
		)
		if op.Up {
			level, err = s.deps.Votes.LevelUp(entry.capability, op.Account)
		} else {
			delta = -1
			level, err = s.deps.Votes.LevelDown(entry.capability, op.Account)
		}
		if err != nil {
			log.WithError(err).WithField("account", op.Account.Hex()).Error("Failed to change level")
			continue
		}
		settlement.LevelChanges = append(settlement.LevelChanges, models.LevelChange{Account: op.Account, Delta: delta, Level: level})
		bus.Publish(events.LevelChangedEvent{Bet: bet.Address, Account: op.Account, Delta: delta, Level: level})
	}
}

// pay transfers one payout from the vault. A rejected or unfunded payout becomes a claimable obligation.
func (s *betService) pay(ctx context.Context, entry *betEntry, l *ledger.ValueLedger, p *models.Payout, bus EventPublisher) {
	err := s.withdraw(ctx, entry, l, p.Asset, p.Account, p.Amount)
	if err == nil {
		p.Status = models.PayoutStatusPaid
		return
	}

	p.Status = models.PayoutStatusFailed
	obligation := &models.Obligation{
		ID:        uuid.New(),
		Bet:       p.Bet,
		Account:   p.Account,
		Asset:     p.Asset,
		Kind:      p.Kind,
		Amount:    p.Amount,
		Reason:    err.Error(),
		CreatedAt: s.deps.Clock.Now(),
	}
	entry.obligations = append(entry.obligations, obligation)
	entry.settlement.Obligations = append(entry.settlement.Obligations, obligation)

	bus.Publish(events.PayoutFailedEvent{
		Bet:        p.Bet,
		Account:    p.Account,
		Asset:      p.Asset,
		Kind:       p.Kind,
		Amount:     p.Amount.Dec(),
		Obligation: obligation.ID.String(),
		Reason:     obligation.Reason,
	})

	log.WithError(err).WithFields(log.Fields{
		"bet":        p.Bet.Hex(),
		"account":    p.Account.Hex(),
		"kind":       p.Kind,
		"amount":     p.Amount.Dec(),
		"obligation": obligation.ID,
	}).Warn("Payout not delivered, kept as claimable obligation")
}

func (s *betService) Claim(ctx context.Context, address common.Address, account common.Address) ([]*models.Obligation, error) {
	entry, err := s.deps.Registry.get(address)
	if err != nil {
		return nil, err
	}
	if !entry.bet.Released {
		return nil, fmt.Errorf("%w: bet is %s", models.ErrNotYetResolved, entry.bet.Status)
	}

	chip, err := s.deps.Chips.Get(entry.bet.Chip)
	if err != nil {
		return nil, err
	}
	s.collect(ctx, entry, chip)

	bus := events.NewTransactionalBus(s.deps.Bus)
	var (
		claimed  []*models.Obligation
		failures []error
	)
	for _, o := range entry.obligations {
		if o.Account != account || o.IsClaimed() {
			continue
		}
		l := s.deps.Stake
		if o.Asset == models.AssetChip {
			l = chip
		}
		// Marked before the transfer so a claim re-entered from the recipient's hook skips it
		now := s.deps.Clock.Now()
		o.ClaimedAt = &now
		if err := s.withdraw(ctx, entry, l, o.Asset, account, o.Amount); err != nil {
			o.ClaimedAt = nil
			failures = append(failures, err)
			continue
		}
		claimed = append(claimed, o)
		bus.Publish(events.ObligationClaimedEvent{
			Bet:        address,
			Account:    account,
			Asset:      o.Asset,
			Amount:     o.Amount.Dec(),
			Obligation: o.ID.String(),
		})
	}

	if ferr := bus.Flush(ctx); ferr != nil {
		log.WithError(ferr).Error("Failed to flush claim events")
	}
	s.deps.Metrics.RecordClaim(ctx, len(claimed), len(failures))

	if len(claimed) > 0 {
		journal(ctx, s.deps.UnitOfWork, "claim obligation", func(uow UnitOfWork) error {
			for _, o := range claimed {
				if err := uow.ObligationRepository().MarkClaimed(ctx, o.ID, *o.ClaimedAt); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if len(failures) > 0 {
		return claimed, fmt.Errorf("failed to claim %d obligations: %w", len(failures), errors.Join(failures...))
	}
	return claimed, nil
}

func (s *betService) Bet(ctx context.Context, address common.Address) (*models.Bet, error) {
	entry, err := s.deps.Registry.get(address)
	if err != nil {
		return nil, err
	}
	s.advance(ctx, entry)
	return entry.bet.Clone(), nil
}

func (s *betService) Bets(ctx context.Context) []*models.Bet {
	entries := s.deps.Registry.all()
	out := make([]*models.Bet, 0, len(entries))
	for _, entry := range entries {
		s.advance(ctx, entry)
		out = append(out, entry.bet.Clone())
	}
	return out
}

func (s *betService) Observe(ctx context.Context, address common.Address) (models.BetStatus, error) {
	entry, err := s.deps.Registry.get(address)
	if err != nil {
		return "", err
	}
	s.advance(ctx, entry)
	return entry.bet.Status, nil
}

func (s *betService) Settlement(address common.Address) (*models.Settlement, bool) {
	entry, err := s.deps.Registry.get(address)
	if err != nil || entry.settlement == nil {
		return nil, false
	}
	return entry.settlement, true
}

func (s *betService) Obligations(address common.Address, account common.Address) []*models.Obligation {
	entry, err := s.deps.Registry.get(address)
	if err != nil {
		return nil
	}
	var out []*models.Obligation
	for _, o := range entry.obligations {
		if o.Account == account && !o.IsClaimed() {
			out = append(out, o)
		}
	}
	return out
}

// advance applies elapsed deadlines. Transitions are committed state and are published immediately.
func (s *betService) advance(ctx context.Context, entry *betEntry) {
	changes := entry.bet.Advance(s.deps.Clock.Now())
	if len(changes) == 0 {
		return
	}
	bus := events.NewTransactionalBus(s.deps.Bus)
	for _, change := range changes {
		s.publishTransition(ctx, bus, entry.bet, change)
	}
	if err := bus.Flush(ctx); err != nil {
		log.WithError(err).Error("Failed to flush transition events")
	}
}

func (s *betService) publishTransition(ctx context.Context, bus EventPublisher, bet *models.Bet, change models.StatusChange) {
	bus.Publish(events.BetStatusChangedEvent{
		Bet:       bet.Address,
		OldStatus: change.From,
		NewStatus: change.To,
		At:        change.At,
		Deadline:  change.Deadline,
		Winner:    change.Winner,
	})
	s.deps.Metrics.RecordTransition(ctx, change.From, change.To)

	log.WithFields(log.Fields{
		"bet":  bet.Address.Hex(),
		"from": change.From,
		"to":   change.To,
		"at":   change.At,
	}).Info("Bet status changed")
}
