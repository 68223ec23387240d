package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"betdao/config"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
)

// Printer renders bet state and settlements as text tables
type Printer struct {
	out      io.Writer
	decimals int32
	names    map[common.Address]string
}

// NewPrinter writes to out, formatting amounts with the given token decimals
func NewPrinter(out io.Writer, decimals int32) *Printer {
	return &Printer{out: out, decimals: decimals, names: make(map[common.Address]string)}
}

// Name labels an address with a readable alias in every table
func (p *Printer) Name(address common.Address, name string) {
	p.names[address] = name
}

// Bets prints one row per bet
func (p *Printer) Bets(bets []*models.Bet) error {
	table := tablewriter.NewWriter(p.out)
	table.Header("Bet", "Title", "Chip", "Status", "Wagered", "Disputed", "Winner", "Deadline")

	for _, bet := range bets {
		if err := table.Append(
			p.account(bet.Address),
			bet.Details.Title,
			bet.Chip,
			string(bet.Status),
			p.amount(bet.WageredTotal),
			p.amount(bet.DisputedTotal),
			winnerLabel(bet),
			deadlineLabel(bet),
		); err != nil {
			return fmt.Errorf("failed to append bet row: %w", err)
		}
	}
	return table.Render()
}

// Options prints the per-option totals of one bet
func (p *Printer) Options(bet *models.Bet) error {
	fmt.Fprintf(p.out, "\n%s (%s)\n", bet.Details.Title, p.account(bet.Address))

	table := tablewriter.NewWriter(p.out)
	table.Header("#", "Option", "Wagered", "Decided", "Arbitrated")
	for _, opt := range bet.Options {
		if err := table.Append(
			strconv.Itoa(opt.Index),
			opt.Description,
			p.amount(opt.Wagered.Total()),
			p.amount(opt.Decided.Total()),
			p.amount(opt.Arbitrated.Total()),
		); err != nil {
			return fmt.Errorf("failed to append option row: %w", err)
		}
	}
	voidTotal := bet.VoidVotes.Total()
	if !voidTotal.IsZero() {
		if err := table.Append("-", "void", "", "", p.amount(bet.VoidVotes.Total())); err != nil {
			return fmt.Errorf("failed to append void row: %w", err)
		}
	}
	return table.Render()
}

// Settlement prints every payout of a release followed by its weight changes
func (p *Printer) Settlement(s *models.Settlement) error {
	fmt.Fprintf(p.out, "\nSettlement of %s: %s, winner %s, released %s\n",
		p.account(s.Bet), s.Outcome, optionLabel(s.Winner), s.ReleasedAt.Format(time.RFC3339))

	table := tablewriter.NewWriter(p.out)
	table.Header("Account", "Asset", "Kind", "Amount", "Status")
	for _, payout := range s.Payouts {
		if err := table.Append(
			p.account(payout.Account),
			string(payout.Asset),
			string(payout.Kind),
			p.amount(payout.Amount),
			string(payout.Status),
		); err != nil {
			return fmt.Errorf("failed to append payout row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(s.Unfixed)+len(s.Confiscated)+len(s.LevelChanges) == 0 {
		return nil
	}
	weights := tablewriter.NewWriter(p.out)
	weights.Header("Account", "Change", "Amount")
	for _, c := range s.Unfixed {
		if err := weights.Append(p.account(c.Account), "unfixed", p.amount(c.Amount)); err != nil {
			return fmt.Errorf("failed to append weight row: %w", err)
		}
	}
	for _, c := range s.Confiscated {
		if err := weights.Append(p.account(c.Account), "confiscated", p.amount(c.Amount)); err != nil {
			return fmt.Errorf("failed to append weight row: %w", err)
		}
	}
	for _, c := range s.LevelChanges {
		if err := weights.Append(p.account(c.Account), "level", fmt.Sprintf("%+d (now %d)", c.Delta, c.Level)); err != nil {
			return fmt.Errorf("failed to append level row: %w", err)
		}
	}
	return weights.Render()
}

// Obligations prints claimable failed payouts
func (p *Printer) Obligations(obligations []*models.Obligation) error {
	table := tablewriter.NewWriter(p.out)
	table.Header("ID", "Bet", "Account", "Asset", "Amount", "Claimed")
	for _, o := range obligations {
		claimed := "no"
		if o.ClaimedAt != nil {
			claimed = o.ClaimedAt.Format(time.RFC3339)
		}
		if err := table.Append(
			o.ID.String()[:8],
			p.account(o.Bet),
			p.account(o.Account),
			string(o.Asset),
			p.amount(o.Amount),
			claimed,
		); err != nil {
			return fmt.Errorf("failed to append obligation row: %w", err)
		}
	}
	return table.Render()
}

func (p *Printer) account(address common.Address) string {
	if name, ok := p.names[address]; ok {
		return name
	}
	hex := address.Hex()
	return hex[:6] + ".." + hex[len(hex)-4:]
}

func (p *Printer) amount(a models.Amount) string {
	return config.FormatTokenAmount(a, p.decimals)
}

func winnerLabel(bet *models.Bet) string {
	switch bet.Status {
	case models.BetStatusConfirmed, models.BetStatusClosed:
		if bet.Outcome == models.BetStatusConfirmed {
			return optionLabel(bet.ConfirmedWinningOption)
		}
		return "-"
	case models.BetStatusAnnouncement, models.BetStatusArbitrating:
		return optionLabel(bet.UnconfirmedWinningOption) + "?"
	}
	return "-"
}

func optionLabel(index int) string {
	switch index {
	case models.NoOption:
		return "none"
	case models.VoidOption:
		return "void"
	}
	return strconv.Itoa(index)
}

func deadlineLabel(bet *models.Bet) string {
	if bet.StatusDeadline.IsZero() || !bet.Status.IsOpen() {
		return "-"
	}
	return bet.StatusDeadline.Format(time.RFC3339)
}
