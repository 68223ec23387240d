package service

import (
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementInput is an immutable capture of everything release pays from
type SettlementInput struct {
	Bet         common.Address
	Creator     common.Address
	Protocol    common.Address
	Outcome     models.BetStatus
	Confirmed   int
	Unconfirmed int
	Arbitrated  bool

	WageredTotal  models.Amount
	DisputedTotal models.Amount

	CreatorRatio  uint64
	DeciderRatio  uint64
	ProtocolRatio uint64

	// Indexed by option
	Wagers       [][]models.Contribution
	Decisions    [][]models.Contribution
	Arbitrations [][]models.Contribution
	VoidVotes    []models.Contribution
	Disputes     []models.Contribution
}

// LevelOp is a level adjustment the plan applies
type LevelOp struct {
	Account common.Address
	Up      bool
}

// SettlementPlan lists every ledger operation a release performs
type SettlementPlan struct {
	ChipPayouts  []*models.Payout
	StakePayouts []*models.Payout
	Unfix        []models.WeightChange
	Confiscate   []models.WeightChange
	Levels       []LevelOp
}

// CaptureSettlementInput copies the records of a resolved bet
func CaptureSettlementInput(bet *models.Bet) SettlementInput {
	in := SettlementInput{
		Bet:           bet.Address,
		Creator:       bet.Creator,
		Protocol:      bet.Config.ProtocolAccount,
		Outcome:       bet.Outcome,
		Confirmed:     bet.ConfirmedWinningOption,
		Unconfirmed:   bet.UnconfirmedWinningOption,
		Arbitrated:    bet.Arbitrated,
		WageredTotal:  bet.WageredTotal,
		DisputedTotal: bet.DisputedTotal,
		CreatorRatio:  bet.Config.CreatorRatio,
		DeciderRatio:  bet.Config.DeciderRatio,
		ProtocolRatio: bet.Config.ProtocolRatio,
		VoidVotes:     bet.VoidVotes.Records(),
		Disputes:      bet.Disputes.Records(),
	}
	for _, opt := range bet.Options {
		in.Wagers = append(in.Wagers, opt.Wagered.Records())
		in.Decisions = append(in.Decisions, opt.Decided.Records())
		in.Arbitrations = append(in.Arbitrations, opt.Arbitrated.Records())
	}
	return in
}

// SettlementCalculator turns a settlement input into a plan. It performs no I/O.
type SettlementCalculator struct{}

// NewSettlementCalculator creates a calculator
func NewSettlementCalculator() *SettlementCalculator {
	return &SettlementCalculator{}
}

// Plan computes the payouts, unfixes, confiscations and level changes of a release
func (c *SettlementCalculator) Plan(in SettlementInput) *SettlementPlan {
	p := &planner{in: in, plan: &SettlementPlan{}}
	if in.Outcome == models.BetStatusConfirmed {
		p.confirmed()
	} else {
		p.cancelled()
	}
	return p.plan
}

type planner struct {
	in   SettlementInput
	plan *SettlementPlan
}

func (p *planner) cancelled() {
	for _, records := range p.in.Wagers {
		for _, r := range records {
			p.chip(r.Account, models.PayoutKindWagerRefund, r.Amount)
		}
	}
	for _, r := range p.in.Disputes {
		p.chip(r.Account, models.PayoutKindDisputeRefund, r.Amount)
	}
	for _, records := range p.in.Decisions {
		p.unfixAll(records)
	}
	p.unfixArbitration()
}

func (p *planner) confirmed() {
	in := p.in
	winner := in.Confirmed
	w := in.WageredTotal

	creatorShare := models.ApplyRatio(w, in.CreatorRatio)
	protocolShare := models.ApplyRatio(w, in.ProtocolRatio)
	deciderPool := models.ApplyRatio(w, in.DeciderRatio)
	winnerPool := models.SubAmount(models.SubAmount(models.SubAmount(w, creatorShare), protocolShare), deciderPool)

	p.chip(in.Creator, models.PayoutKindCreator, creatorShare)
	p.chip(in.Protocol, models.PayoutKindProtocol, protocolShare)
	paid := models.AddAmount(creatorShare, protocolShare)
	paid = models.AddAmount(paid, p.split(in.Decisions[winner], deciderPool, models.PayoutKindDeciderBonus, models.AssetChip))
	paid = models.AddAmount(paid, p.split(in.Wagers[winner], winnerPool, models.PayoutKindWinnerBonus, models.AssetChip))
	p.dust(models.AssetChip, w, paid)

	switch {
	case !in.Arbitrated:
		p.refundDisputes()
		for _, records := range in.Decisions {
			p.unfixAll(records)
		}
		p.levelUp(in.Decisions[winner])

	case winner == in.Unconfirmed:
		// dispute rejected: disputers forfeit their chips to the arbitrators who upheld the outcome
		disputed := in.DisputedTotal
		shared := p.split(in.Arbitrations[winner], disputed, models.PayoutKindDisputeConfiscation, models.AssetChip)
		p.dust(models.AssetChip, disputed, shared)
		for _, records := range in.Decisions {
			p.unfixAll(records)
		}
		p.levelUp(in.Decisions[winner])
		p.levelUp(in.Arbitrations[winner])

	default:
		// dispute upheld: deciders of every other option forfeit their decided weight
		p.refundDisputes()
		var confiscated models.Amount
		for i, records := range in.Decisions {
			if i == winner {
				p.unfixAll(records)
				continue
			}
			for _, r := range records {
				if r.Amount.IsZero() {
					continue
				}
				p.plan.Confiscate = append(p.plan.Confiscate, models.WeightChange{Account: r.Account, Amount: r.Amount})
				confiscated = models.AddAmount(confiscated, r.Amount)
			}
			p.levelDown(records)
		}
		p.shareConfiscation(confiscated)
		p.levelUp(in.Decisions[winner])
		p.levelUp(in.Arbitrations[winner])
	}

	p.unfixArbitration()
}

// ConfiscationPayouts splits confiscated stake among arbitrators of the confirmed option.
// Release uses it when fewer confiscations succeed than were planned.
func (c *SettlementCalculator) ConfiscationPayouts(in SettlementInput, confiscated models.Amount) []*models.Payout {
	p := &planner{in: in, plan: &SettlementPlan{}}
	p.shareConfiscation(confiscated)
	return p.plan.StakePayouts
}

func (p *planner) shareConfiscation(confiscated models.Amount) {
	shared := p.split(p.in.Arbitrations[p.in.Confirmed], confiscated, models.PayoutKindDecisionConfiscation, models.AssetStake)
	p.dust(models.AssetStake, confiscated, shared)
}

// split divides pool pro-rata over records and returns what it allocated.
// An empty record set sends the whole pool to the protocol.
func (p *planner) split(records []models.Contribution, pool models.Amount, kind models.PayoutKind, asset models.Asset) models.Amount {
	if pool.IsZero() {
		return models.Amount{}
	}
	var total models.Amount
	for _, r := range records {
		total = models.AddAmount(total, r.Amount)
	}
	if total.IsZero() {
		p.pay(asset, p.in.Protocol, models.PayoutKindProtocol, pool)
		return pool
	}

	var allocated models.Amount
	for _, r := range records {
		share := models.MulDiv(pool, r.Amount, total)
		p.pay(asset, r.Account, kind, share)
		allocated = models.AddAmount(allocated, share)
	}
	return allocated
}

func (p *planner) dust(asset models.Asset, expected, allocated models.Amount) {
	if !models.LessThan(allocated, expected) {
		return
	}
	p.pay(asset, p.in.Protocol, models.PayoutKindDust, models.SubAmount(expected, allocated))
}

func (p *planner) refundDisputes() {
	for _, r := range p.in.Disputes {
		p.chip(r.Account, models.PayoutKindDisputeRefund, r.Amount)
	}
}

func (p *planner) unfixAll(records []models.Contribution) {
	for _, r := range records {
		if !r.Amount.IsZero() {
			p.plan.Unfix = append(p.plan.Unfix, models.WeightChange{Account: r.Account, Amount: r.Amount})
		}
	}
}

func (p *planner) unfixArbitration() {
	for _, records := range p.in.Arbitrations {
		p.unfixAll(records)
	}
	p.unfixAll(p.in.VoidVotes)
}

func (p *planner) levelUp(records []models.Contribution) {
	p.level(records, true)
}

func (p *planner) levelDown(records []models.Contribution) {
	p.level(records, false)
}

func (p *planner) level(records []models.Contribution, up bool) {
	for _, r := range records {
		if p.hasLevel(r.Account, up) {
			continue
		}
		p.plan.Levels = append(p.plan.Levels, LevelOp{Account: r.Account, Up: up})
	}
}

func (p *planner) hasLevel(account common.Address, up bool) bool {
	for _, op := range p.plan.Levels {
		if op.Account == account && op.Up == up {
			return true
		}
	}
	return false
}

func (p *planner) chip(account common.Address, kind models.PayoutKind, amount models.Amount) {
	p.pay(models.AssetChip, account, kind, amount)
}

func (p *planner) pay(asset models.Asset, account common.Address, kind models.PayoutKind, amount models.Amount) {
	if amount.IsZero() {
		return
	}
	payout := &models.Payout{
		Bet:     p.in.Bet,
		Account: account,
		Asset:   asset,
		Kind:    kind,
		Amount:  amount,
		Status:  models.PayoutStatusPending,
	}
	if asset == models.AssetStake {
		p.plan.StakePayouts = append(p.plan.StakePayouts, payout)
	} else {
		p.plan.ChipPayouts = append(p.plan.ChipPayouts, payout)
	}
}
