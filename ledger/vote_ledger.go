package ledger

import (
	"context"
	"fmt"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Capability authorizes its holder to fix, unfix, confiscate and level escrow accounts.
// The zero value is never valid.
type Capability struct {
	id uint64
}

// IsZero reports whether the capability was never granted
func (c Capability) IsZero() bool {
	return c.id == 0
}

type grant struct {
	owner   common.Address
	staking bool
	fixed   map[common.Address]models.Amount
}

// VoteLedger is the escrow of vote weight. Weight enters through the staking
// capability and cannot be transferred between ordinary accounts.
type VoteLedger struct {
	accounts map[common.Address]*models.VoteAccount
	grants   map[uint64]*grant
	nextID   uint64
	stake    *ValueLedger
	reserve  common.Address
}

// NewVoteLedger creates an escrow backed by the stake token ledger
func NewVoteLedger(stake *ValueLedger) *VoteLedger {
	return &VoteLedger{
		accounts: make(map[common.Address]*models.VoteAccount),
		grants:   make(map[uint64]*grant),
		stake:    stake,
	}
}

// Grant issues a capability to owner
func (v *VoteLedger) Grant(owner common.Address) Capability {
	v.nextID++
	v.grants[v.nextID] = &grant{owner: owner, fixed: make(map[common.Address]models.Amount)}
	return Capability{id: v.nextID}
}

// GrantStaking issues the deposit capability; reserve holds the stake tokens backing all weight
func (v *VoteLedger) GrantStaking(reserve common.Address) Capability {
	c := v.Grant(reserve)
	v.grants[c.id].staking = true
	v.reserve = reserve
	return c
}

// Revoke removes a capability. It fails while the capability still holds fixed weight.
func (v *VoteLedger) Revoke(c Capability) error {
	g, err := v.lookup(c)
	if err != nil {
		return err
	}
	for account, amount := range g.fixed {
		if !amount.IsZero() {
			return fmt.Errorf("%w: capability of %s still fixes %s for %s", models.ErrInvariantViolation, g.owner.Hex(), amount.Dec(), account.Hex())
		}
	}
	delete(v.grants, c.id)
	return nil
}

// IsGranted reports whether the capability is registered
func (v *VoteLedger) IsGranted(c Capability) bool {
	_, ok := v.grants[c.id]
	return ok
}

// Deposit credits vote weight; staking capability only
func (v *VoteLedger) Deposit(c Capability, account common.Address, amount models.Amount) error {
	if _, err := v.lookupStaking(c); err != nil {
		return err
	}
	acct := v.account(account)
	acct.Balance = models.AddAmount(acct.Balance, amount)
	return v.check(acct)
}

// Withdraw removes unfixed vote weight; staking capability only
func (v *VoteLedger) Withdraw(c Capability, account common.Address, amount models.Amount) error {
	if _, err := v.lookupStaking(c); err != nil {
		return err
	}
	acct := v.account(account)
	if models.LessThan(acct.Available(), amount) {
		return fmt.Errorf("failed to withdraw %s for %s: %w", amount.Dec(), account.Hex(), models.ErrInsufficientAllowance)
	}
	acct.Balance = models.SubAmount(acct.Balance, amount)
	return v.check(acct)
}

// Fix locks amount of the account's available weight on behalf of the capability holder
func (v *VoteLedger) Fix(c Capability, account common.Address, amount models.Amount) error {
	g, err := v.lookup(c)
	if err != nil {
		return err
	}
	acct := v.account(account)
	if models.LessThan(acct.Available(), amount) {
		return fmt.Errorf("failed to fix %s for %s: %w", amount.Dec(), account.Hex(), models.ErrInsufficientAllowance)
	}
	acct.Fixed = models.AddAmount(acct.Fixed, amount)
	g.fixed[account] = models.AddAmount(g.fixed[account], amount)
	return v.check(acct)
}

// Unfix releases weight previously fixed by the same capability
func (v *VoteLedger) Unfix(c Capability, account common.Address, amount models.Amount) error {
	g, err := v.lookup(c)
	if err != nil {
		return err
	}
	if models.LessThan(g.fixed[account], amount) {
		return fmt.Errorf("failed to unfix %s for %s: %w", amount.Dec(), account.Hex(), models.ErrInsufficientAllowance)
	}
	acct := v.account(account)
	if models.LessThan(acct.Fixed, amount) {
		return fmt.Errorf("failed to unfix %s for %s: %w", amount.Dec(), account.Hex(), models.ErrInvariantViolation)
	}
	acct.Fixed = models.SubAmount(acct.Fixed, amount)
	g.release(account, amount)
	return v.check(acct)
}

// Confiscate burns fixed weight and forwards the backing stake tokens to recipient
func (v *VoteLedger) Confiscate(ctx context.Context, c Capability, account common.Address, amount models.Amount, recipient common.Address) error {
	g, err := v.lookup(c)
	if err != nil {
		return err
	}
	acct := v.account(account)
	if models.LessThan(g.fixed[account], amount) || models.LessThan(acct.Fixed, amount) {
		return fmt.Errorf("failed to confiscate %s from %s: %w", amount.Dec(), account.Hex(), models.ErrInsufficientFixedAllowance)
	}

	acct.Balance = models.SubAmount(acct.Balance, amount)
	acct.Fixed = models.SubAmount(acct.Fixed, amount)
	g.release(account, amount)
	if err := v.check(acct); err != nil {
		return err
	}

	if err := v.stake.Transfer(ctx, v.reserve, recipient, amount); err != nil {
		acct.Balance = models.AddAmount(acct.Balance, amount)
		acct.Fixed = models.AddAmount(acct.Fixed, amount)
		g.fixed[account] = models.AddAmount(g.fixed[account], amount)
		return fmt.Errorf("failed to forward confiscated stake to %s: %w", recipient.Hex(), err)
	}

	log.WithFields(log.Fields{
		"account":   account.Hex(),
		"amount":    amount.Dec(),
		"recipient": recipient.Hex(),
		"holder":    g.owner.Hex(),
	}).Debug("Confiscated vote weight")
	return nil
}

// LevelUp increments the account level
func (v *VoteLedger) LevelUp(c Capability, account common.Address) (uint64, error) {
	if _, err := v.lookup(c); err != nil {
		return 0, err
	}
	acct := v.account(account)
	acct.Level++
	return acct.Level, nil
}

// LevelDown decrements the account level, saturating at zero
func (v *VoteLedger) LevelDown(c Capability, account common.Address) (uint64, error) {
	if _, err := v.lookup(c); err != nil {
		return 0, err
	}
	acct := v.account(account)
	if acct.Level > 0 {
		acct.Level--
	}
	return acct.Level, nil
}

// IsAbleToDecide checks the account holds at least threshold weight
func (v *VoteLedger) IsAbleToDecide(account common.Address, threshold models.Amount) bool {
	acct := v.Account(account)
	return !acct.Balance.IsZero() && !models.LessThan(acct.Balance, threshold)
}

// IsAbleToArbitrate checks weight and level against the arbitration thresholds
func (v *VoteLedger) IsAbleToArbitrate(account common.Address, threshold models.Amount, minLevel uint64) bool {
	acct := v.Account(account)
	return v.IsAbleToDecide(account, threshold) && acct.Level >= minLevel
}

// Account returns a copy of the account record
func (v *VoteLedger) Account(account common.Address) models.VoteAccount {
	if acct, ok := v.accounts[account]; ok {
		return *acct
	}
	return models.VoteAccount{Address: account}
}

// BalanceOf returns the account's vote weight
func (v *VoteLedger) BalanceOf(account common.Address) models.Amount {
	return v.Account(account).Balance
}

// FixedOf returns the account's fixed weight across all capabilities
func (v *VoteLedger) FixedOf(account common.Address) models.Amount {
	return v.Account(account).Fixed
}

// LevelOf returns the account level
func (v *VoteLedger) LevelOf(account common.Address) uint64 {
	return v.Account(account).Level
}

// FixedBy returns the weight a capability holds fixed for account
func (v *VoteLedger) FixedBy(c Capability, account common.Address) models.Amount {
	g, ok := v.grants[c.id]
	if !ok {
		return models.Amount{}
	}
	return g.fixed[account]
}

// Accounts returns copies of every escrow record
func (v *VoteLedger) Accounts() []models.VoteAccount {
	out := make([]models.VoteAccount, 0, len(v.accounts))
	for _, acct := range v.accounts {
		out = append(out, *acct)
	}
	return out
}

func (v *VoteLedger) lookup(c Capability) (*grant, error) {
	g, ok := v.grants[c.id]
	if !ok || c.IsZero() {
		return nil, models.ErrUnauthorized
	}
	return g, nil
}

func (v *VoteLedger) lookupStaking(c Capability) (*grant, error) {
	g, err := v.lookup(c)
	if err != nil {
		return nil, err
	}
	if !g.staking {
		return nil, fmt.Errorf("%w: %s may not move weight", models.ErrUnauthorized, g.owner.Hex())
	}
	return g, nil
}

func (v *VoteLedger) account(address common.Address) *models.VoteAccount {
	acct, ok := v.accounts[address]
	if !ok {
		acct = &models.VoteAccount{Address: address}
		v.accounts[address] = acct
	}
	return acct
}

func (v *VoteLedger) check(acct *models.VoteAccount) error {
	if !acct.Consistent() {
		log.WithFields(log.Fields{
			"account": acct.Address.Hex(),
			"balance": acct.Balance.Dec(),
			"fixed":   acct.Fixed.Dec(),
		}).Error("Escrow account has more fixed weight than balance")
		return fmt.Errorf("%w: account %s", models.ErrInvariantViolation, acct.Address.Hex())
	}
	return nil
}

func (g *grant) release(account common.Address, amount models.Amount) {
	remaining := models.SubAmount(g.fixed[account], amount)
	if remaining.IsZero() {
		delete(g.fixed, account)
	} else {
		g.fixed[account] = remaining
	}
}
