package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Asset identifies which ledger a payout moves on
type Asset string

const (
	AssetChip  Asset = "chip"
	AssetStake Asset = "stake"
)

// PayoutKind describes why a payout was made
type PayoutKind string

const (
	PayoutKindCreator              PayoutKind = "creator"
	PayoutKindProtocol             PayoutKind = "protocol"
	PayoutKindDeciderBonus         PayoutKind = "decider_bonus"
	PayoutKindWinnerBonus          PayoutKind = "winner_bonus"
	PayoutKindWagerRefund          PayoutKind = "wager_refund"
	PayoutKindDisputeRefund        PayoutKind = "dispute_refund"
	PayoutKindDisputeConfiscation  PayoutKind = "dispute_confiscation"
	PayoutKindDecisionConfiscation PayoutKind = "decision_confiscation"
	PayoutKindDust                 PayoutKind = "dust"
)

// PayoutStatus is the delivery state of a payout
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
	PayoutStatusFailed  PayoutStatus = "failed"
)

// Payout is one transfer made from the settlement vault at release
type Payout struct {
	Bet     common.Address
	Account common.Address
	Asset   Asset
	Kind    PayoutKind
	Amount  Amount
	Status  PayoutStatus
}

// Obligation is a payout a recipient rejected; it stays claimable
type Obligation struct {
	ID        uuid.UUID
	Bet       common.Address
	Account   common.Address
	Asset     Asset
	Kind      PayoutKind
	Amount    Amount
	Reason    string
	CreatedAt time.Time
	ClaimedAt *time.Time
}

// IsClaimed checks if the obligation has been paid out
func (o *Obligation) IsClaimed() bool {
	return o.ClaimedAt != nil
}

// WeightChange is an unfix or confiscation applied to an account's escrow record
type WeightChange struct {
	Account common.Address
	Amount  Amount
}

// LevelChange records a reputation adjustment
type LevelChange struct {
	Account common.Address
	Delta   int
	Level   uint64
}

// Settlement is the full record of one release
type Settlement struct {
	Bet          common.Address
	Chip         string
	Outcome      BetStatus
	Winner       int
	Payouts      []*Payout
	Obligations  []*Obligation
	Unfixed      []WeightChange
	Confiscated  []WeightChange
	LevelChanges []LevelChange
	ReleasedAt   time.Time
}

// PaidTo sums the amounts successfully paid to account on an asset
func (s *Settlement) PaidTo(account common.Address, asset Asset) Amount {
	var total Amount
	for _, p := range s.Payouts {
		if p.Account == account && p.Asset == asset && p.Status == PayoutStatusPaid {
			total = AddAmount(total, p.Amount)
		}
	}
	return total
}

// TotalOf sums every payout of a kind regardless of delivery status
func (s *Settlement) TotalOf(kind PayoutKind) Amount {
	var total Amount
	for _, p := range s.Payouts {
		if p.Kind == kind {
			total = AddAmount(total, p.Amount)
		}
	}
	return total
}

// ConfiscatedTotal sums the decided weight actually confiscated
func (s *Settlement) ConfiscatedTotal() Amount {
	var total Amount
	for _, c := range s.Confiscated {
		total = AddAmount(total, c.Amount)
	}
	return total
}
