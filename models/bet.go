package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bet is a proposition with its phase state, options and contribution records
type Bet struct {
	Address common.Address
	Creator common.Address
	Chip    string
	Details BetDetails
	Config  BetConfig

	CreatedAt        time.Time
	WageringDuration time.Duration
	DecidingDuration time.Duration

	Status         BetStatus
	StatusDeadline time.Time
	// Outcome remembers CONFIRMED or CANCELLED once the bet has resolved
	Outcome    BetStatus
	Released   bool
	ResolvedAt *time.Time
	ReleasedAt *time.Time

	WageredTotal  Amount
	DisputedTotal Amount
	Disputes      *ContributionLedger
	// VoidVotes holds arbitration weight cast for cancelling the bet
	VoidVotes *ContributionLedger
	Options   []*BetOption

	UnconfirmedWinningOption int
	ConfirmedWinningOption   int
	Arbitrated               bool
}

// StatusChange describes one phase transition
type StatusChange struct {
	From     BetStatus
	To       BetStatus
	At       time.Time
	Deadline time.Time
	Winner   int
}

// NewBet creates a bet in WAGERING with one option per detail entry
func NewBet(address, creator common.Address, chip string, details BetDetails, cfg BetConfig,
	createdAt time.Time, wagering, deciding time.Duration, optionAddress func(int) common.Address) *Bet {
	bet := &Bet{
		Address:                  address,
		Creator:                  creator,
		Chip:                     chip,
		Details:                  details.Clone(),
		Config:                   cfg.Clone(),
		CreatedAt:                createdAt,
		WageringDuration:         wagering,
		DecidingDuration:         deciding,
		Status:                   BetStatusWagering,
		StatusDeadline:           createdAt.Add(wagering),
		Disputes:                 NewContributionLedger(),
		VoidVotes:                NewContributionLedger(),
		UnconfirmedWinningOption: NoOption,
		ConfirmedWinningOption:   NoOption,
	}
	for i, text := range details.Options {
		bet.Options = append(bet.Options, NewBetOption(i, optionAddress(i), text))
	}
	return bet
}

// OptionCount returns the number of real options
func (b *Bet) OptionCount() int {
	return len(b.Options)
}

// Option returns the option at index
func (b *Bet) Option(index int) (*BetOption, error) {
	if index < 0 || index >= len(b.Options) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOption, index)
	}
	return b.Options[index], nil
}

// Ledger returns the contribution ledger a category/option pair writes to.
// Disputes ignore the option; arbitration also accepts VoidOption.
func (b *Bet) Ledger(category Category, option int) (*ContributionLedger, error) {
	switch category {
	case CategoryDispute:
		return b.Disputes, nil
	case CategoryArbitration:
		if option == VoidOption {
			return b.VoidVotes, nil
		}
	}

	opt, err := b.Option(option)
	if err != nil {
		return nil, err
	}
	switch category {
	case CategoryWager:
		return opt.Wagered, nil
	case CategoryDecision:
		return opt.Decided, nil
	case CategoryArbitration:
		return opt.Arbitrated, nil
	}
	return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidAction, category)
}

// Record adds a contribution and keeps the bet counters in step
func (b *Bet) Record(category Category, option int, account common.Address, amount Amount) error {
	ledger, err := b.Ledger(category, option)
	if err != nil {
		return err
	}
	ledger.Add(account, amount)
	b.adjustCounters(category, amount, true)
	return nil
}

// Withdraw removes the account's contribution and returns its amount and position
func (b *Bet) Withdraw(category Category, option int, account common.Address) (Amount, int, error) {
	ledger, err := b.Ledger(category, option)
	if err != nil {
		return Amount{}, -1, err
	}
	amount, position, ok := ledger.Remove(account)
	if !ok {
		return Amount{}, -1, ErrNothingToCancel
	}
	b.adjustCounters(category, amount, false)
	return amount, position, nil
}

// Restore puts back a contribution removed by Withdraw
func (b *Bet) Restore(category Category, option int, account common.Address, amount Amount, position int) {
	ledger, err := b.Ledger(category, option)
	if err != nil {
		return
	}
	ledger.Restore(account, amount, position)
	b.adjustCounters(category, amount, true)
}

func (b *Bet) adjustCounters(category Category, amount Amount, add bool) {
	var counter *Amount
	switch category {
	case CategoryWager:
		counter = &b.WageredTotal
	case CategoryDispute:
		counter = &b.DisputedTotal
	default:
		return
	}
	if add {
		*counter = AddAmount(*counter, amount)
	} else {
		*counter = SubAmount(*counter, amount)
	}
}

// DustThreshold returns the smallest nonzero contribution a category accepts
func (b *Bet) DustThreshold(category Category) Amount {
	n := uint64(len(b.Options))
	switch category {
	case CategoryWager:
		return DivAmount(b.Config.MinWageredTotal, n)
	case CategoryDecision:
		return DivAmount(b.Config.MinDecidedTotal, n)
	case CategoryDispute:
		return DivAmount(b.Config.MinDisputedTotal, n)
	case CategoryArbitration:
		return DivAmount(b.Config.MinArbitratedTotal, n+1)
	}
	return Amount{}
}

// DecidedTotal sums decided weight across options
func (b *Bet) DecidedTotal() Amount {
	var total Amount
	for _, opt := range b.Options {
		total = AddAmount(total, opt.Decided.Total())
	}
	return total
}

// ArbitratedTotal sums arbitration weight across options and the void option
func (b *Bet) ArbitratedTotal() Amount {
	total := b.VoidVotes.Total()
	for _, opt := range b.Options {
		total = AddAmount(total, opt.Arbitrated.Total())
	}
	return total
}

// Advance applies every transition whose deadline has passed at now
func (b *Bet) Advance(now time.Time) []StatusChange {
	var changes []StatusChange
	for b.Status.IsOpen() && !now.Before(b.StatusDeadline) {
		at := b.StatusDeadline
		from := b.Status
		switch b.Status {
		case BetStatusWagering:
			if !LessThan(b.WageredTotal, b.Config.MinWageredTotal) && b.optionsHolding(CategoryWager) >= 2 {
				b.moveTo(BetStatusDeciding, at.Add(b.DecidingDuration))
			} else {
				b.resolve(BetStatusCancelled, NoOption, at)
			}
		case BetStatusDeciding:
			total := b.DecidedTotal()
			if !total.IsZero() && !LessThan(total, b.Config.MinDecidedTotal) && b.optionsHolding(CategoryDecision) >= 2 {
				b.UnconfirmedWinningOption = b.leader(CategoryDecision, false)
				b.moveTo(BetStatusAnnouncement, at.Add(b.WageringDuration))
			} else {
				b.resolve(BetStatusCancelled, NoOption, at)
			}
		case BetStatusAnnouncement:
			b.resolve(BetStatusConfirmed, b.UnconfirmedWinningOption, at)
		case BetStatusArbitrating:
			total := b.ArbitratedTotal()
			winner := b.leader(CategoryArbitration, true)
			if !total.IsZero() && !LessThan(total, b.Config.MinArbitratedTotal) && winner != VoidOption {
				b.resolve(BetStatusConfirmed, winner, at)
			} else {
				b.resolve(BetStatusCancelled, NoOption, at)
			}
		}
		changes = append(changes, StatusChange{
			From:     from,
			To:       b.Status,
			At:       at,
			Deadline: b.StatusDeadline,
			Winner:   b.ConfirmedWinningOption,
		})
	}
	return changes
}

// Escalate moves an announced bet into arbitration once the disputed total reaches the minimum
func (b *Bet) Escalate(now time.Time) (StatusChange, bool) {
	if !b.Status.CanTransitionTo(BetStatusArbitrating) || LessThan(b.DisputedTotal, b.Config.MinDisputedTotal) {
		return StatusChange{}, false
	}
	b.Arbitrated = true
	b.moveTo(BetStatusArbitrating, now.Add(b.DecidingDuration))
	return StatusChange{
		From:     BetStatusAnnouncement,
		To:       BetStatusArbitrating,
		At:       now,
		Deadline: b.StatusDeadline,
		Winner:   NoOption,
	}, true
}

// Close marks the bet released; it must be resolved
func (b *Bet) Close(now time.Time) (StatusChange, error) {
	from := b.Status
	if !from.CanTransitionTo(BetStatusClosed) {
		return StatusChange{}, fmt.Errorf("%w: cannot close a bet that is %s", ErrInvalidStatus, from)
	}
	b.Status = BetStatusClosed
	b.StatusDeadline = time.Time{}
	b.Released = true
	b.ReleasedAt = &now
	return StatusChange{From: from, To: BetStatusClosed, At: now, Winner: b.ConfirmedWinningOption}, nil
}

// IsConfirmed reports whether the bet resolved with a winning option
func (b *Bet) IsConfirmed() bool {
	return b.Outcome == BetStatusConfirmed
}

// Clone returns a deep copy safe to hand to readers
func (b *Bet) Clone() *Bet {
	out := *b
	out.Details = b.Details.Clone()
	out.Config = b.Config.Clone()
	out.Disputes = b.Disputes.Clone()
	out.VoidVotes = b.VoidVotes.Clone()
	out.Options = make([]*BetOption, len(b.Options))
	for i, opt := range b.Options {
		out.Options[i] = opt.Clone()
	}
	if b.ResolvedAt != nil {
		t := *b.ResolvedAt
		out.ResolvedAt = &t
	}
	if b.ReleasedAt != nil {
		t := *b.ReleasedAt
		out.ReleasedAt = &t
	}
	return &out
}

func (b *Bet) moveTo(status BetStatus, deadline time.Time) {
	b.enter(status)
	b.StatusDeadline = deadline
}

func (b *Bet) resolve(outcome BetStatus, winner int, at time.Time) {
	b.enter(outcome)
	b.Outcome = outcome
	b.StatusDeadline = time.Time{}
	b.ConfirmedWinningOption = winner
	b.ResolvedAt = &at
}

// enter moves along one edge of the phase graph and panics on any other
func (b *Bet) enter(status BetStatus) {
	if !b.Status.CanTransitionTo(status) {
		panic(fmt.Sprintf("%v: bet %s cannot move from %s to %s", ErrInvariantViolation, b.Address.Hex(), b.Status, status))
	}
	b.Status = status
}

func (b *Bet) optionsHolding(category Category) int {
	n := 0
	for _, opt := range b.Options {
		ledger, _ := b.Ledger(category, opt.Index)
		total := ledger.Total()
		if !total.IsZero() {
			n++
		}
	}
	return n
}

// leader returns the option with the greatest total, ties going to the lowest index.
// The void option wins only with a strictly greater total than every real option.
func (b *Bet) leader(category Category, withVoid bool) int {
	best := NoOption
	var bestTotal Amount
	for _, opt := range b.Options {
		ledger, _ := b.Ledger(category, opt.Index)
		total := ledger.Total()
		if best == NoOption || GreaterThan(total, bestTotal) {
			best = opt.Index
			bestTotal = total
		}
	}
	if withVoid && GreaterThan(b.VoidVotes.Total(), bestTotal) {
		return VoidOption
	}
	return best
}
