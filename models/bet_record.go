package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BetRecord is the persisted summary of a bet in the settlement journal
type BetRecord struct {
	Address       common.Address `db:"address"`
	Creator       common.Address `db:"creator"`
	Chip          string         `db:"chip"`
	Title         string         `db:"title"`
	OptionCount   int            `db:"option_count"`
	Status        BetStatus      `db:"status"`
	Outcome       BetStatus      `db:"outcome"`
	Winner        int            `db:"winning_option"`
	WageredTotal  Amount         `db:"wagered_total"`
	DisputedTotal Amount         `db:"disputed_total"`
	CreatedAt     time.Time      `db:"created_at"`
	ResolvedAt    *time.Time     `db:"resolved_at"`
	ReleasedAt    *time.Time     `db:"released_at"`
}

// NewBetRecord summarizes a bet for the journal
func NewBetRecord(bet *Bet) *BetRecord {
	return &BetRecord{
		Address:       bet.Address,
		Creator:       bet.Creator,
		Chip:          bet.Chip,
		Title:         bet.Details.Title,
		OptionCount:   bet.OptionCount(),
		Status:        bet.Status,
		Outcome:       bet.Outcome,
		Winner:        bet.ConfirmedWinningOption,
		WageredTotal:  bet.WageredTotal,
		DisputedTotal: bet.DisputedTotal,
		CreatedAt:     bet.CreatedAt,
		ResolvedAt:    bet.ResolvedAt,
		ReleasedAt:    bet.ReleasedAt,
	}
}
