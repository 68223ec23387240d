package repository

import (
	"context"
	"errors"
	"fmt"

	"betdao/database"
	"betdao/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork scopes the journal repositories to one transaction
type unitOfWork struct {
	db             *database.DB
	tx             pgx.Tx
	ctx            context.Context
	betRepo        service.BetRepository
	payoutRepo     service.PayoutRepository
	obligationRepo service.ObligationRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{db: db}
}

type unitOfWorkFactory struct {
	db *database.DB
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{db: f.db}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx
	u.betRepo = newBetRepositoryWithTx(tx)
	u.payoutRepo = newPayoutRepositoryWithTx(tx)
	u.obligationRepo = newObligationRepositoryWithTx(tx)
	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}
	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil
	return nil
}

// Rollback is a no-op once the transaction has been committed
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) BetRepository() service.BetRepository {
	if u.betRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.betRepo
}

func (u *unitOfWork) PayoutRepository() service.PayoutRepository {
	if u.payoutRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.payoutRepo
}

func (u *unitOfWork) ObligationRepository() service.ObligationRepository {
	if u.obligationRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.obligationRepo
}
