package service

import (
	"fmt"

	"betdao/events"
	"betdao/ledger"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
)

// betEntry is the live state of one bet and everything the engine tracks beside it
type betEntry struct {
	bet         *models.Bet
	capability  ledger.Capability
	settlement  *models.Settlement
	obligations []*models.Obligation
	// held is what the bet has swept into the shared vault and not yet paid out
	held map[models.Asset]models.Amount
}

func (e *betEntry) credit(asset models.Asset, amount models.Amount) {
	if e.held == nil {
		e.held = make(map[models.Asset]models.Amount)
	}
	e.held[asset] = models.AddAmount(e.held[asset], amount)
}

// debit reserves amount of the bet's vault funds, false when it holds less
func (e *betEntry) debit(asset models.Asset, amount models.Amount) bool {
	if models.LessThan(e.held[asset], amount) {
		return false
	}
	e.held[asset] = models.SubAmount(e.held[asset], amount)
	return true
}

// BetRegistry holds every bet created by the manager
type BetRegistry struct {
	entries map[common.Address]*betEntry
	order   []common.Address
}

// NewBetRegistry creates an empty registry
func NewBetRegistry() *BetRegistry {
	return &BetRegistry{entries: make(map[common.Address]*betEntry)}
}

func (r *BetRegistry) put(e *betEntry) {
	if _, ok := r.entries[e.bet.Address]; !ok {
		r.order = append(r.order, e.bet.Address)
	}
	r.entries[e.bet.Address] = e
}

func (r *BetRegistry) get(address common.Address) (*betEntry, error) {
	e, ok := r.entries[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrBetNotFound, address.Hex())
	}
	return e, nil
}

func (r *BetRegistry) all() []*betEntry {
	out := make([]*betEntry, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.entries[addr])
	}
	return out
}

// Len returns the number of bets
func (r *BetRegistry) Len() int {
	return len(r.order)
}

// Dependencies are the collaborators shared by the bet manager and the bet service
type Dependencies struct {
	Registry *BetRegistry
	Chips    *ledger.Registry
	Votes    *ledger.VoteLedger
	Stake    *ledger.ValueLedger
	Bus      events.Emitter
	Clock    Clock
	Metrics  Metrics
	// UnitOfWork is optional; without it the settlement journal is skipped
	UnitOfWork UnitOfWorkFactory
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Registry == nil {
		d.Registry = NewBetRegistry()
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Metrics == nil {
		d.Metrics = NoopMetrics{}
	}
	if d.Bus == nil {
		d.Bus = events.NewBus()
	}
	return d
}
