package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"betdao/config"
	"betdao/events"
	"betdao/ledger"
	"betdao/models"
	"betdao/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

// ErrExpectation marks a failed expect_* step or a step that should have failed
var ErrExpectation = errors.New("scenario expectation failed")

// Options are the optional collaborators of a Runner
type Options struct {
	Bus        events.Emitter
	Metrics    service.Metrics
	UnitOfWork service.UnitOfWorkFactory
}

// StepResult records what one step did
type StepResult struct {
	Index  int
	Do     string
	Detail string
	Err    error
}

// Result is the engine state after a scenario ran
type Result struct {
	Name        string
	Steps       []StepResult
	Bets        []*models.Bet
	Settlements []*models.Settlement
	Obligations []*models.Obligation
	// Names maps every scripted address back to its alias
	Names map[common.Address]string
}

// Runner replays scenarios against an in-memory engine driven by a manual clock
type Runner struct {
	protocol *config.Protocol
	clock    *service.ManualClock
	chips    map[string]*ledger.ValueLedger
	stake    *ledger.ValueLedger
	votes    *ledger.VoteLedger
	pool     *ledger.StakingPool
	manager  service.BetManager
	service  service.BetService

	accounts map[string]common.Address
	bets     map[string]common.Address
}

// NewRunner builds a fresh engine for protocol starting at start
func NewRunner(protocol *config.Protocol, start time.Time, opts Options) (*Runner, error) {
	r := &Runner{
		protocol: protocol,
		clock:    service.NewManualClock(start),
		chips:    make(map[string]*ledger.ValueLedger, len(protocol.Chips)),
		stake:    ledger.NewValueLedger(protocol.StakeSymbol),
		accounts: make(map[string]common.Address),
		bets:     make(map[string]common.Address),
	}

	registry := ledger.NewRegistry()
	for _, symbol := range protocol.Chips {
		l := ledger.NewValueLedger(symbol)
		r.chips[symbol] = l
		registry.Register(l)
	}
	r.votes = ledger.NewVoteLedger(r.stake)
	r.pool = ledger.NewStakingPool(protocol.StakingPool, r.stake, r.votes)

	deps := service.Dependencies{
		Registry:   service.NewBetRegistry(),
		Chips:      registry,
		Votes:      r.votes,
		Stake:      r.stake,
		Bus:        opts.Bus,
		Clock:      r.clock,
		Metrics:    opts.Metrics,
		UnitOfWork: opts.UnitOfWork,
	}
	manager, err := service.NewBetManager(protocol.Manager, protocol.Bet, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create bet manager: %w", err)
	}
	r.manager = manager
	r.service = service.NewBetService(manager.Address(), deps)

	r.accounts["manager"] = protocol.Manager
	r.accounts["pool"] = protocol.StakingPool
	r.accounts["protocol"] = protocol.Bet.ProtocolAccount
	return r, nil
}

// Service exposes the engine for callers that inspect it after a run
func (r *Runner) Service() service.BetService {
	return r.service
}

// Run executes every step in order and stops at the first unexpected outcome
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	for alias, hex := range sc.Accounts {
		if !common.IsHexAddress(hex) {
			return nil, fmt.Errorf("account %s: %q is not a hex address", alias, hex)
		}
		r.accounts[alias] = common.HexToAddress(hex)
	}

	result := &Result{Name: sc.Name}
	for i, step := range sc.Steps {
		detail, err := r.apply(ctx, step)
		res := StepResult{Index: i + 1, Do: step.Do, Detail: detail, Err: err}
		result.Steps = append(result.Steps, res)

		fields := log.Fields{"scenario": sc.Name, "step": res.Index, "do": step.Do}
		switch {
		case step.ExpectError != "" && err == nil:
			return r.finish(ctx, result), fmt.Errorf("step %d (%s): %w: expected error containing %q", res.Index, step.Do, ErrExpectation, step.ExpectError)
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			return r.finish(ctx, result), fmt.Errorf("step %d (%s): %w: expected error containing %q, got %v", res.Index, step.Do, ErrExpectation, step.ExpectError, err)
		case step.ExpectError != "":
			log.WithFields(fields).WithError(err).Debug("Step failed as expected")
		case err != nil:
			return r.finish(ctx, result), fmt.Errorf("step %d (%s): %w", res.Index, step.Do, err)
		default:
			log.WithFields(fields).WithField("detail", detail).Debug("Step applied")
		}
	}
	return r.finish(ctx, result), nil
}

func (r *Runner) finish(ctx context.Context, result *Result) *Result {
	result.Bets = r.service.Bets(ctx)
	for _, bet := range result.Bets {
		s, ok := r.service.Settlement(bet.Address)
		if !ok {
			continue
		}
		result.Settlements = append(result.Settlements, s)

		seen := make(map[common.Address]bool)
		for _, o := range s.Obligations {
			if seen[o.Account] {
				continue
			}
			seen[o.Account] = true
			result.Obligations = append(result.Obligations, r.service.Obligations(bet.Address, o.Account)...)
		}
	}

	result.Names = make(map[common.Address]string, len(r.accounts)+len(r.bets))
	for alias, address := range r.accounts {
		result.Names[address] = alias
	}
	for alias, address := range r.bets {
		result.Names[address] = alias
	}
	return result
}

func (r *Runner) apply(ctx context.Context, step Step) (string, error) {
	switch step.Do {
	case StepMint:
		return r.mint(step)
	case StepStake, StepUnstake:
		return r.staking(ctx, step)
	case StepCreate:
		return r.create(ctx, step)
	case StepWager, StepDecide, StepDispute, StepArbitrate, StepCancel:
		return r.submit(ctx, step)
	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return "", fmt.Errorf("invalid duration: %w", err)
		}
		r.clock.Advance(d)
		return r.clock.Now().Format(time.RFC3339), nil
	case StepObserve, StepExpectStatus:
		return r.observe(ctx, step)
	case StepRelease:
		return r.release(ctx, step)
	case StepClaim:
		return r.claim(ctx, step)
	case StepRejectPayouts, StepAcceptPayouts:
		return r.receivers(step)
	case StepExpectBalance:
		return r.expectBalance(step)
	case StepExpectWeight:
		return r.expectWeight(step)
	}
	return "", fmt.Errorf("unknown step %q", step.Do)
}

func (r *Runner) mint(step Step) (string, error) {
	l, err := r.ledger(step.Chip)
	if err != nil {
		return "", err
	}
	amount, err := r.amount(step.Amount)
	if err != nil {
		return "", err
	}
	account := r.account(step.Account)
	if err := l.Mint(account, amount); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s to %s", step.Amount, l.Symbol(), step.Account), nil
}

func (r *Runner) staking(ctx context.Context, step Step) (string, error) {
	amount, err := r.amount(step.Amount)
	if err != nil {
		return "", err
	}
	account := r.account(step.Account)
	if step.Do == StepStake {
		err = r.pool.Stake(ctx, account, amount)
	} else {
		err = r.pool.Unstake(ctx, account, amount)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s weight %s", step.Account, r.format(r.pool.WeightOf(account))), nil
}

func (r *Runner) create(ctx context.Context, step Step) (string, error) {
	if step.Bet == "" {
		return "", fmt.Errorf("create needs a bet alias")
	}
	if _, exists := r.bets[step.Bet]; exists {
		return "", fmt.Errorf("bet alias %q already used", step.Bet)
	}
	wagering, err := time.ParseDuration(step.Wagering)
	if err != nil {
		return "", fmt.Errorf("invalid wagering duration: %w", err)
	}
	deciding, err := time.ParseDuration(step.Deciding)
	if err != nil {
		return "", fmt.Errorf("invalid deciding duration: %w", err)
	}
	chip := step.Chip
	if chip == "" {
		chip = r.protocol.Chips[0]
	}

	bet, err := r.manager.CreateBet(ctx, service.CreateBetParams{
		Creator: r.account(step.Account),
		Details: models.BetDetails{
			Title:       step.Title,
			Description: step.Description,
			ForumURL:    step.ForumURL,
			Options:     step.Options,
		},
		WageringDuration: wagering,
		DecidingDuration: deciding,
		Chip:             chip,
	})
	if err != nil {
		return "", err
	}
	r.bets[step.Bet] = bet.Address
	return bet.Address.Hex(), nil
}

func (r *Runner) submit(ctx context.Context, step Step) (string, error) {
	bet, err := r.bet(step.Bet)
	if err != nil {
		return "", err
	}
	cmd := service.Command{
		Action:  models.Action(step.Do),
		Bet:     bet,
		Account: r.account(step.Account),
		Option:  models.NoOption,
	}
	if step.Option != "" {
		if cmd.Option, err = r.option(ctx, bet, step.Option); err != nil {
			return "", err
		}
	}
	if step.Amount != "" {
		if cmd.Amount, err = r.amount(step.Amount); err != nil {
			return "", err
		}
	}
	if step.Do == StepCancel {
		if cmd.Category, err = models.ParseCategory(step.Category); err != nil {
			return "", err
		}
	}

	receipt, err := r.service.Submit(ctx, cmd)
	if err != nil {
		return "", err
	}
	if receipt.Cancelled {
		return fmt.Sprintf("%s cancelled %s", step.Account, r.format(receipt.Amount)), nil
	}
	return fmt.Sprintf("%s %s %s on %d, total %s", step.Account, receipt.Category, r.format(receipt.Amount), receipt.Option, r.format(receipt.Total)), nil
}

func (r *Runner) observe(ctx context.Context, step Step) (string, error) {
	bet, err := r.bet(step.Bet)
	if err != nil {
		return "", err
	}
	status, err := r.service.Observe(ctx, bet)
	if err != nil {
		return "", err
	}
	if step.Do == StepExpectStatus && string(status) != step.Status {
		return "", fmt.Errorf("%w: bet %s is %s, want %s", ErrExpectation, step.Bet, status, step.Status)
	}
	return string(status), nil
}

func (r *Runner) release(ctx context.Context, step Step) (string, error) {
	bet, err := r.bet(step.Bet)
	if err != nil {
		return "", err
	}
	settlement, err := r.service.Release(ctx, bet, r.account(step.Account))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s with %d payouts, %d obligations", settlement.Outcome, len(settlement.Payouts), len(settlement.Obligations)), nil
}

func (r *Runner) claim(ctx context.Context, step Step) (string, error) {
	bet, err := r.bet(step.Bet)
	if err != nil {
		return "", err
	}
	claimed, err := r.service.Claim(ctx, bet, r.account(step.Account))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d obligations claimed", len(claimed)), nil
}

func (r *Runner) receivers(step Step) (string, error) {
	account := r.account(step.Account)
	ledgers := make([]*ledger.ValueLedger, 0, len(r.chips)+1)
	if step.Chip != "" {
		l, err := r.ledger(step.Chip)
		if err != nil {
			return "", err
		}
		ledgers = append(ledgers, l)
	} else {
		for _, l := range r.chips {
			ledgers = append(ledgers, l)
		}
		ledgers = append(ledgers, r.stake)
	}

	for _, l := range ledgers {
		if step.Do == StepRejectPayouts {
			l.RegisterReceiver(account, ledger.ReceiverFunc(func(ctx context.Context, from, to common.Address, amount models.Amount) error {
				return fmt.Errorf("%s rejects incoming %s", step.Account, l.Symbol())
			}))
		} else {
			l.UnregisterReceiver(account)
		}
	}
	return step.Account, nil
}

func (r *Runner) expectBalance(step Step) (string, error) {
	l, err := r.ledger(step.Chip)
	if err != nil {
		return "", err
	}
	want, err := r.amount(step.Amount)
	if err != nil {
		return "", err
	}
	got := l.BalanceOf(r.account(step.Account))
	if !models.SameAmount(got, want) {
		return "", fmt.Errorf("%w: %s holds %s %s, want %s", ErrExpectation, step.Account, r.format(got), l.Symbol(), step.Amount)
	}
	return r.format(got), nil
}

func (r *Runner) expectWeight(step Step) (string, error) {
	want, err := r.amount(step.Amount)
	if err != nil {
		return "", err
	}
	got := r.votes.BalanceOf(r.account(step.Account))
	if !models.SameAmount(got, want) {
		return "", fmt.Errorf("%w: %s has weight %s, want %s", ErrExpectation, step.Account, r.format(got), step.Amount)
	}
	return r.format(got), nil
}

// account resolves an alias. Unknown aliases get a stable address derived from the name.
func (r *Runner) account(alias string) common.Address {
	if address, ok := r.accounts[alias]; ok {
		return address
	}
	if common.IsHexAddress(alias) {
		return common.HexToAddress(alias)
	}
	address := common.BytesToAddress(crypto.Keccak256([]byte(alias)))
	r.accounts[alias] = address
	return address
}

func (r *Runner) bet(alias string) (common.Address, error) {
	if address, ok := r.bets[alias]; ok {
		return address, nil
	}
	return common.Address{}, fmt.Errorf("%w: %q", models.ErrBetNotFound, alias)
}

func (r *Runner) ledger(symbol string) (*ledger.ValueLedger, error) {
	if symbol == "" {
		symbol = r.protocol.Chips[0]
	}
	if symbol == r.stake.Symbol() {
		return r.stake, nil
	}
	if l, ok := r.chips[symbol]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownChip, symbol)
}

// option accepts an index, an option description, "void" or "none"
func (r *Runner) option(ctx context.Context, bet common.Address, value string) (int, error) {
	switch strings.ToLower(value) {
	case "none":
		return models.NoOption, nil
	case "void":
		return models.VoidOption, nil
	}
	if index, err := strconv.Atoi(value); err == nil {
		return index, nil
	}
	snapshot, err := r.service.Bet(ctx, bet)
	if err != nil {
		return 0, err
	}
	for _, opt := range snapshot.Options {
		if strings.EqualFold(opt.Description, value) {
			return opt.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: no option named %q", models.ErrInvalidOption, value)
}

func (r *Runner) amount(s string) (models.Amount, error) {
	return config.ParseTokenAmount(s, r.protocol.Decimals)
}

func (r *Runner) format(a models.Amount) string {
	return config.FormatTokenAmount(a, r.protocol.Decimals)
}
