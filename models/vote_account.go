package models

import "github.com/ethereum/go-ethereum/common"

// VoteAccount is one account's escrow record
type VoteAccount struct {
	Address common.Address
	Balance Amount
	Fixed   Amount
	Level   uint64
}

// Available returns the weight not currently fixed
func (a *VoteAccount) Available() Amount {
	if LessThan(a.Balance, a.Fixed) {
		return Amount{}
	}
	return SubAmount(a.Balance, a.Fixed)
}

// Consistent reports whether fixed weight stays within the balance
func (a *VoteAccount) Consistent() bool {
	return !LessThan(a.Balance, a.Fixed)
}
