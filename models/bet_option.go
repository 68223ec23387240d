package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// NoOption marks an unset winning option
	NoOption = -1
	// VoidOption is the pseudo-option arbitrators pick to cancel the bet
	VoidOption = -2
)

// BetOption is one outcome of a bet with its per-category contributions
type BetOption struct {
	Index       int
	Address     common.Address
	Description string
	Wagered     *ContributionLedger
	Decided     *ContributionLedger
	Arbitrated  *ContributionLedger
}

// NewBetOption creates an option with empty ledgers
func NewBetOption(index int, address common.Address, description string) *BetOption {
	return &BetOption{
		Index:       index,
		Address:     address,
		Description: description,
		Wagered:     NewContributionLedger(),
		Decided:     NewContributionLedger(),
		Arbitrated:  NewContributionLedger(),
	}
}

// Clone returns a deep copy
func (o *BetOption) Clone() *BetOption {
	return &BetOption{
		Index:       o.Index,
		Address:     o.Address,
		Description: o.Description,
		Wagered:     o.Wagered.Clone(),
		Decided:     o.Decided.Clone(),
		Arbitrated:  o.Arbitrated.Clone(),
	}
}

// OptionName renders an option index for logs and reports
func OptionName(index int) string {
	switch index {
	case NoOption:
		return "-"
	case VoidOption:
		return "void"
	}
	if index >= 0 && index < 26 {
		return string(rune('A' + index))
	}
	return fmt.Sprintf("#%d", index)
}
