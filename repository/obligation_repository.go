package repository

import (
	"context"
	"fmt"
	"time"

	"betdao/database"
	"betdao/models"
	"betdao/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type obligationRepository struct {
	q Queryable
}

// NewObligationRepository creates an obligation repository on the pool
func NewObligationRepository(db *database.DB) service.ObligationRepository {
	return &obligationRepository{q: db.Pool}
}

func newObligationRepositoryWithTx(tx Queryable) service.ObligationRepository {
	return &obligationRepository{q: tx}
}

func (r *obligationRepository) Create(ctx context.Context, o *models.Obligation) error {
	query := `
		INSERT INTO obligations (id, bet_address, account, asset, kind, amount, reason, created_at, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`

	_, err := r.q.Exec(ctx, query,
		o.ID,
		o.Bet.Hex(),
		o.Account.Hex(),
		string(o.Asset),
		string(o.Kind),
		o.Amount.Dec(),
		o.Reason,
		o.CreatedAt,
		o.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create obligation %s: %w", o.ID, err)
	}
	return nil
}

// MarkClaimed fails when the obligation is unknown or already claimed
func (r *obligationRepository) MarkClaimed(ctx context.Context, id uuid.UUID, claimedAt time.Time) error {
	query := `UPDATE obligations SET claimed_at = $2 WHERE id = $1 AND claimed_at IS NULL`

	tag, err := r.q.Exec(ctx, query, id, claimedAt)
	if err != nil {
		return fmt.Errorf("failed to mark obligation %s claimed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("obligation %s not found or already claimed", id)
	}
	return nil
}

func (r *obligationRepository) GetOpenByAccount(ctx context.Context, account common.Address) ([]*models.Obligation, error) {
	query := `
		SELECT id, bet_address, account, asset, kind, amount::text, reason, created_at, claimed_at
		FROM obligations
		WHERE account = $1 AND claimed_at IS NULL
		ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to get obligations of %s: %w", account.Hex(), err)
	}
	defer rows.Close()

	var obligations []*models.Obligation
	for rows.Next() {
		var (
			o                       models.Obligation
			bet, owner              string
			asset, kind, amountText string
		)
		if err := rows.Scan(&o.ID, &bet, &owner, &asset, &kind, &amountText, &o.Reason, &o.CreatedAt, &o.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		if o.Bet, err = scanAddress(bet); err != nil {
			return nil, err
		}
		if o.Account, err = scanAddress(owner); err != nil {
			return nil, err
		}
		if o.Amount, err = scanAmount(amountText); err != nil {
			return nil, err
		}
		o.Asset = models.Asset(asset)
		o.Kind = models.PayoutKind(kind)
		obligations = append(obligations, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating obligations: %w", err)
	}
	return obligations, nil
}
