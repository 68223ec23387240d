package testutil

import (
	"time"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// CreateTestBetRecord creates a released bet summary with default values
func CreateTestBetRecord(address common.Address) *models.BetRecord {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resolved := created.Add(25 * time.Hour)
	return &models.BetRecord{
		Address:       address,
		Creator:       common.HexToAddress("0x4000"),
		Chip:          "native",
		Title:         "Who wins the final?",
		OptionCount:   3,
		Status:        models.BetStatusConfirmed,
		Outcome:       models.BetStatusConfirmed,
		Winner:        0,
		WageredTotal:  models.MustParseAmount("12000000000000000000"),
		DisputedTotal: models.Amount{},
		CreatedAt:     created,
		ResolvedAt:    &resolved,
	}
}

// CreateTestPayout creates a paid chip payout
func CreateTestPayout(bet, account common.Address, kind models.PayoutKind, amount string) *models.Payout {
	return &models.Payout{
		Bet:     bet,
		Account: account,
		Asset:   models.AssetChip,
		Kind:    kind,
		Amount:  models.MustParseAmount(amount),
		Status:  models.PayoutStatusPaid,
	}
}

// CreateTestObligation creates an open obligation
func CreateTestObligation(bet, account common.Address, amount string) *models.Obligation {
	return &models.Obligation{
		ID:        uuid.New(),
		Bet:       bet,
		Account:   account,
		Asset:     models.AssetChip,
		Kind:      models.PayoutKindWinnerBonus,
		Amount:    models.MustParseAmount(amount),
		Reason:    "recipient rejected transfer",
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}
