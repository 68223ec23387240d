package repository

import (
	"context"
	"fmt"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryable is satisfied by both *pgxpool.Pool and pgx.Tx
type Queryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// amounts travel as decimal text so NUMERIC(78,0) keeps full 256-bit precision
func scanAmount(text string) (models.Amount, error) {
	a, err := models.ParseAmount(text)
	if err != nil {
		return models.Amount{}, fmt.Errorf("failed to scan amount: %w", err)
	}
	return a, nil
}

func scanAddress(text string) (common.Address, error) {
	if !common.IsHexAddress(text) {
		return common.Address{}, fmt.Errorf("failed to scan address %q", text)
	}
	return common.HexToAddress(text), nil
}
