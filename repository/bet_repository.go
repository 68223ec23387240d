package repository

import (
	"context"
	"errors"
	"fmt"

	"betdao/database"
	"betdao/models"
	"betdao/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

type betRepository struct {
	q Queryable
}

// NewBetRepository creates a bet repository on the pool
func NewBetRepository(db *database.DB) service.BetRepository {
	return &betRepository{q: db.Pool}
}

func newBetRepositoryWithTx(tx Queryable) service.BetRepository {
	return &betRepository{q: tx}
}

const betColumns = `address, creator, chip, title, option_count, status, outcome, winning_option,
	wagered_total::text, disputed_total::text, created_at, resolved_at, released_at`

func (r *betRepository) Upsert(ctx context.Context, record *models.BetRecord) error {
	query := `
		INSERT INTO bets (address, creator, chip, title, option_count, status, outcome, winning_option,
		                  wagered_total, disputed_total, created_at, resolved_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE SET
			status         = EXCLUDED.status,
			outcome        = EXCLUDED.outcome,
			winning_option = EXCLUDED.winning_option,
			wagered_total  = EXCLUDED.wagered_total,
			disputed_total = EXCLUDED.disputed_total,
			resolved_at    = EXCLUDED.resolved_at,
			released_at    = EXCLUDED.released_at,
			updated_at     = NOW()`

	_, err := r.q.Exec(ctx, query,
		record.Address.Hex(),
		record.Creator.Hex(),
		record.Chip,
		record.Title,
		record.OptionCount,
		string(record.Status),
		string(record.Outcome),
		record.Winner,
		record.WageredTotal.Dec(),
		record.DisputedTotal.Dec(),
		record.CreatedAt,
		record.ResolvedAt,
		record.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bet %s: %w", record.Address.Hex(), err)
	}
	return nil
}

func (r *betRepository) GetByAddress(ctx context.Context, address common.Address) (*models.BetRecord, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE address = $1`

	record, err := scanBet(r.q.QueryRow(ctx, query, address.Hex()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %s: %w", address.Hex(), err)
	}
	return record, nil
}

func (r *betRepository) List(ctx context.Context, limit int) ([]*models.BetRecord, error) {
	query := `SELECT ` + betColumns + ` FROM bets ORDER BY created_at, address LIMIT $1`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	defer rows.Close()

	var records []*models.BetRecord
	for rows.Next() {
		record, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bets: %w", err)
	}
	return records, nil
}

func scanBet(row pgx.Row) (*models.BetRecord, error) {
	var (
		record                   models.BetRecord
		address, creator         string
		status, outcome          string
		wageredText, disputedTxt string
	)
	err := row.Scan(
		&address,
		&creator,
		&record.Chip,
		&record.Title,
		&record.OptionCount,
		&status,
		&outcome,
		&record.Winner,
		&wageredText,
		&disputedTxt,
		&record.CreatedAt,
		&record.ResolvedAt,
		&record.ReleasedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.Address, err = scanAddress(address); err != nil {
		return nil, err
	}
	if record.Creator, err = scanAddress(creator); err != nil {
		return nil, err
	}
	if record.WageredTotal, err = scanAmount(wageredText); err != nil {
		return nil, err
	}
	if record.DisputedTotal, err = scanAmount(disputedTxt); err != nil {
		return nil, err
	}
	record.Status = models.BetStatus(status)
	record.Outcome = models.BetStatus(outcome)
	return &record, nil
}
