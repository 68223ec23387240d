package ledger

import (
	"context"
	"fmt"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// StakingPool converts stake tokens into escrow vote weight one-for-one
type StakingPool struct {
	address common.Address
	stake   *ValueLedger
	votes   *VoteLedger
	cap     Capability
}

// NewStakingPool creates a pool whose reserve lives at address on the stake ledger
func NewStakingPool(address common.Address, stake *ValueLedger, votes *VoteLedger) *StakingPool {
	return &StakingPool{
		address: address,
		stake:   stake,
		votes:   votes,
		cap:     votes.GrantStaking(address),
	}
}

// Address returns the reserve account
func (p *StakingPool) Address() common.Address {
	return p.address
}

// Stake moves stake tokens into the reserve and credits the same vote weight
func (p *StakingPool) Stake(ctx context.Context, account common.Address, amount models.Amount) error {
	if amount.IsZero() {
		return models.ErrInvalidAmount
	}
	if err := p.stake.Transfer(ctx, account, p.address, amount); err != nil {
		return fmt.Errorf("failed to stake: %w", err)
	}
	if err := p.votes.Deposit(p.cap, account, amount); err != nil {
		if rerr := p.stake.Transfer(ctx, p.address, account, amount); rerr != nil {
			log.WithError(rerr).WithField("account", account.Hex()).Error("Failed to return stake after rejected deposit")
		}
		return fmt.Errorf("failed to deposit vote weight: %w", err)
	}

	log.WithFields(log.Fields{
		"account": account.Hex(),
		"amount":  amount.Dec(),
	}).Debug("Staked")
	return nil
}

// Unstake withdraws unfixed vote weight and returns the stake tokens
func (p *StakingPool) Unstake(ctx context.Context, account common.Address, amount models.Amount) error {
	if amount.IsZero() {
		return models.ErrInvalidAmount
	}
	if err := p.votes.Withdraw(p.cap, account, amount); err != nil {
		return fmt.Errorf("failed to unstake: %w", err)
	}
	if err := p.stake.Transfer(ctx, p.address, account, amount); err != nil {
		if derr := p.votes.Deposit(p.cap, account, amount); derr != nil {
			log.WithError(derr).WithField("account", account.Hex()).Error("Failed to restore vote weight after rejected unstake")
		}
		return fmt.Errorf("failed to return stake: %w", err)
	}
	return nil
}

// WeightOf returns the account's vote weight
func (p *StakingPool) WeightOf(account common.Address) models.Amount {
	return p.votes.BalanceOf(account)
}
