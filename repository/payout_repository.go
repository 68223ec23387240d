package repository

import (
	"context"
	"fmt"
	"time"

	"betdao/database"
	"betdao/models"
	"betdao/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

type payoutRepository struct {
	q Queryable
}

// NewPayoutRepository creates a payout repository on the pool
func NewPayoutRepository(db *database.DB) service.PayoutRepository {
	return &payoutRepository{q: db.Pool}
}

func newPayoutRepositoryWithTx(tx Queryable) service.PayoutRepository {
	return &payoutRepository{q: tx}
}

// CreateBatch inserts the payouts of one release in a single round trip
func (r *payoutRepository) CreateBatch(ctx context.Context, payouts []*models.Payout, releasedAt time.Time) error {
	if len(payouts) == 0 {
		return nil
	}

	query := `
		INSERT INTO payouts (bet_address, position, account, asset, kind, amount, status, released_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)`

	batch := &pgx.Batch{}
	for i, p := range payouts {
		batch.Queue(query,
			p.Bet.Hex(),
			i,
			p.Account.Hex(),
			string(p.Asset),
			string(p.Kind),
			p.Amount.Dec(),
			string(p.Status),
			releasedAt,
		)
	}

	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	for i := range payouts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert payout %d of bet %s: %w", i, payouts[i].Bet.Hex(), err)
		}
	}
	return nil
}

func (r *payoutRepository) GetByBet(ctx context.Context, bet common.Address) ([]*models.Payout, error) {
	query := `
		SELECT bet_address, account, asset, kind, amount::text, status
		FROM payouts
		WHERE bet_address = $1
		ORDER BY position`

	rows, err := r.q.Query(ctx, query, bet.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts of bet %s: %w", bet.Hex(), err)
	}
	defer rows.Close()

	var payouts []*models.Payout
	for rows.Next() {
		var (
			p                      models.Payout
			betText, account       string
			asset, kind, amountTxt string
			status                 string
		)
		if err := rows.Scan(&betText, &account, &asset, &kind, &amountTxt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		if p.Bet, err = scanAddress(betText); err != nil {
			return nil, err
		}
		if p.Account, err = scanAddress(account); err != nil {
			return nil, err
		}
		if p.Amount, err = scanAmount(amountTxt); err != nil {
			return nil, err
		}
		p.Asset = models.Asset(asset)
		p.Kind = models.PayoutKind(kind)
		p.Status = models.PayoutStatus(status)
		payouts = append(payouts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return payouts, nil
}
