package service

import (
	"context"
	"time"

	"betdao/events"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Upsert(ctx context.Context, record *models.BetRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockBetRepository) GetByAddress(ctx context.Context, address common.Address) (*models.BetRecord, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BetRecord), args.Error(1)
}

func (m *MockBetRepository) List(ctx context.Context, limit int) ([]*models.BetRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BetRecord), args.Error(1)
}

// MockPayoutRepository is a mock implementation of PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) CreateBatch(ctx context.Context, payouts []*models.Payout, releasedAt time.Time) error {
	args := m.Called(ctx, payouts, releasedAt)
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByBet(ctx context.Context, bet common.Address) ([]*models.Payout, error) {
	args := m.Called(ctx, bet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payout), args.Error(1)
}

// MockObligationRepository is a mock implementation of ObligationRepository
type MockObligationRepository struct {
	mock.Mock
}

func (m *MockObligationRepository) Create(ctx context.Context, obligation *models.Obligation) error {
	args := m.Called(ctx, obligation)
	return args.Error(0)
}

func (m *MockObligationRepository) MarkClaimed(ctx context.Context, id uuid.UUID, claimedAt time.Time) error {
	args := m.Called(ctx, id, claimedAt)
	return args.Error(0)
}

func (m *MockObligationRepository) GetOpenByAccount(ctx context.Context, account common.Address) ([]*models.Obligation, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Obligation), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
	betRepo        BetRepository
	payoutRepo     PayoutRepository
	obligationRepo ObligationRepository
}

// SetRepositories wires the repositories the unit of work hands out
func (m *MockUnitOfWork) SetRepositories(bets BetRepository, payouts PayoutRepository, obligations ObligationRepository) {
	m.betRepo = bets
	m.payoutRepo = payouts
	m.obligationRepo = obligations
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) BetRepository() BetRepository {
	return m.betRepo
}

func (m *MockUnitOfWork) PayoutRepository() PayoutRepository {
	return m.payoutRepo
}

func (m *MockUnitOfWork) ObligationRepository() ObligationRepository {
	return m.obligationRepo
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockMetrics is a mock implementation of Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordBetCreated(ctx context.Context, chip string) {
	m.Called(ctx, chip)
}

func (m *MockMetrics) RecordSubmission(ctx context.Context, action models.Action, err error) {
	m.Called(ctx, action, err)
}

func (m *MockMetrics) RecordTransition(ctx context.Context, from, to models.BetStatus) {
	m.Called(ctx, from, to)
}

func (m *MockMetrics) RecordRelease(ctx context.Context, outcome models.BetStatus, payouts, failures int, duration time.Duration) {
	m.Called(ctx, outcome, payouts, failures, duration)
}

func (m *MockMetrics) RecordClaim(ctx context.Context, claimed, failed int) {
	m.Called(ctx, claimed, failed)
}

// MockEmitter records emitted events synchronously
type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) Emit(ctx context.Context, event events.Event) {
	m.Called(ctx, event)
}

// Emitted returns every event passed to Emit, in order
func (m *MockEmitter) Emitted() []events.Event {
	var out []events.Event
	for _, call := range m.Calls {
		if call.Method == "Emit" {
			out = append(out, call.Arguments.Get(1).(events.Event))
		}
	}
	return out
}

// EmittedOfType returns emitted events of one type
func (m *MockEmitter) EmittedOfType(t events.EventType) []events.Event {
	var out []events.Event
	for _, e := range m.Emitted() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}
