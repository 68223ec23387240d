package service

import (
	"context"
	"time"

	"betdao/events"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// BetRepository defines the interface for the bet journal
type BetRepository interface {
	// Upsert inserts or refreshes the bet summary
	Upsert(ctx context.Context, record *models.BetRecord) error

	// GetByAddress retrieves a bet summary, nil when absent
	GetByAddress(ctx context.Context, address common.Address) (*models.BetRecord, error)

	// List returns bet summaries ordered by creation time
	List(ctx context.Context, limit int) ([]*models.BetRecord, error)
}

// PayoutRepository defines the interface for settlement payouts
type PayoutRepository interface {
	// CreateBatch stores every payout of one release
	CreateBatch(ctx context.Context, payouts []*models.Payout, releasedAt time.Time) error

	// GetByBet returns the payouts of a bet in release order
	GetByBet(ctx context.Context, bet common.Address) ([]*models.Payout, error)
}

// ObligationRepository defines the interface for claimable failed payouts
type ObligationRepository interface {
	// Create stores a new obligation
	Create(ctx context.Context, obligation *models.Obligation) error

	// MarkClaimed records that the obligation was delivered
	MarkClaimed(ctx context.Context, id uuid.UUID, claimedAt time.Time) error

	// GetOpenByAccount returns unclaimed obligations owed to account
	GetOpenByAccount(ctx context.Context, account common.Address) ([]*models.Obligation, error)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	BetRepository() BetRepository
	PayoutRepository() PayoutRepository
	ObligationRepository() ObligationRepository
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// EventPublisher queues events raised by one operation
type EventPublisher interface {
	Publish(event events.Event)
}

// Clock supplies the current time used for deadline evaluation
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Metrics records engine activity
type Metrics interface {
	RecordBetCreated(ctx context.Context, chip string)
	RecordSubmission(ctx context.Context, action models.Action, err error)
	RecordTransition(ctx context.Context, from, to models.BetStatus)
	RecordRelease(ctx context.Context, outcome models.BetStatus, payouts, failures int, duration time.Duration)
	RecordClaim(ctx context.Context, claimed, failed int)
}

// NoopMetrics discards every measurement
type NoopMetrics struct{}

func (NoopMetrics) RecordBetCreated(context.Context, string)                                  {}
func (NoopMetrics) RecordSubmission(context.Context, models.Action, error)                    {}
func (NoopMetrics) RecordTransition(context.Context, models.BetStatus, models.BetStatus)      {}
func (NoopMetrics) RecordRelease(context.Context, models.BetStatus, int, int, time.Duration) {}
func (NoopMetrics) RecordClaim(context.Context, int, int)                                     {}

// CreateBetParams are the inputs of CreateBet
type CreateBetParams struct {
	Creator          common.Address
	Details          models.BetDetails
	WageringDuration time.Duration
	DecidingDuration time.Duration
	Chip             string
}

// BetManager creates bets and owns the global configuration
type BetManager interface {
	// CreateBet validates the proposition, snapshots the configuration and opens the bet for wagering
	CreateBet(ctx context.Context, params CreateBetParams) (*models.Bet, error)

	// SetConfig replaces the configuration used for bets created afterwards
	SetConfig(cfg models.BetConfig) error

	// Config returns a copy of the current configuration
	Config() models.BetConfig

	// Address returns the manager address, which also serves as the settlement vault
	Address() common.Address
}

// Command is one participant action against a bet
type Command struct {
	Action  models.Action
	Bet     common.Address
	Account common.Address
	Option  int
	Amount  models.Amount
	// Category selects what ActionCancel withdraws
	Category models.Category
}

// Receipt describes the effect of an accepted command
type Receipt struct {
	Bet       common.Address
	Account   common.Address
	Category  models.Category
	Option    int
	Amount    models.Amount
	Total     models.Amount
	Cancelled bool
	Status    models.BetStatus
}

// BetService runs the bet lifecycle
type BetService interface {
	// Submit validates and applies a participant command
	Submit(ctx context.Context, cmd Command) (*Receipt, error)

	// Release settles a resolved bet and pays every participant
	Release(ctx context.Context, bet common.Address, caller common.Address) (*models.Settlement, error)

	// Claim retries the account's failed payouts of a released bet
	Claim(ctx context.Context, bet common.Address, account common.Address) ([]*models.Obligation, error)

	// Bet returns a snapshot of the bet as observed now
	Bet(ctx context.Context, bet common.Address) (*models.Bet, error)

	// Bets returns snapshots of every bet in creation order
	Bets(ctx context.Context) []*models.Bet

	// Observe advances the bet phase and returns the status
	Observe(ctx context.Context, bet common.Address) (models.BetStatus, error)

	// Settlement returns the release record of a closed bet
	Settlement(bet common.Address) (*models.Settlement, bool)

	// Obligations returns open obligations owed to account by a bet
	Obligations(bet common.Address, account common.Address) []*models.Obligation
}
