package ledger

import (
	"context"
	"fmt"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Receiver is notified after a transfer credits its account.
// Returning an error rejects the transfer.
type Receiver interface {
	OnIncomingTransfer(ctx context.Context, from, to common.Address, amount models.Amount) error
}

// ReceiverFunc adapts a function to Receiver
type ReceiverFunc func(ctx context.Context, from, to common.Address, amount models.Amount) error

// OnIncomingTransfer implements Receiver
func (f ReceiverFunc) OnIncomingTransfer(ctx context.Context, from, to common.Address, amount models.Amount) error {
	return f(ctx, from, to, amount)
}

// ValueLedger is an in-memory fungible balance ledger for one asset.
// Calls are expected to be serialized by the caller; receivers may call back into the ledger.
type ValueLedger struct {
	symbol    string
	balances  map[common.Address]models.Amount
	supply    models.Amount
	receivers map[common.Address]Receiver
}

// NewValueLedger creates an empty ledger
func NewValueLedger(symbol string) *ValueLedger {
	return &ValueLedger{
		symbol:    symbol,
		balances:  make(map[common.Address]models.Amount),
		receivers: make(map[common.Address]Receiver),
	}
}

// Symbol returns the asset symbol
func (l *ValueLedger) Symbol() string {
	return l.symbol
}

// Mint credits new units to account
func (l *ValueLedger) Mint(account common.Address, amount models.Amount) error {
	var supply models.Amount
	if _, overflow := supply.AddOverflow(&l.supply, &amount); overflow {
		return fmt.Errorf("failed to mint %s %s: %w", amount.Dec(), l.symbol, models.ErrBalanceOverflow)
	}
	l.supply = supply
	l.balances[account] = models.AddAmount(l.balances[account], amount)
	return nil
}

// BalanceOf returns the account balance
func (l *ValueLedger) BalanceOf(account common.Address) models.Amount {
	return l.balances[account]
}

// TotalSupply returns the sum of all balances
func (l *ValueLedger) TotalSupply() models.Amount {
	return l.supply
}

// RegisterReceiver installs a transfer hook for account
func (l *ValueLedger) RegisterReceiver(account common.Address, r Receiver) {
	l.receivers[account] = r
}

// UnregisterReceiver removes the transfer hook for account
func (l *ValueLedger) UnregisterReceiver(account common.Address) {
	delete(l.receivers, account)
}

// Transfer moves amount from one account to another, then notifies the recipient's receiver.
// A rejecting receiver reverts the transfer and yields ErrTransferFailed.
func (l *ValueLedger) Transfer(ctx context.Context, from, to common.Address, amount models.Amount) error {
	if amount.IsZero() {
		return nil
	}
	balance := l.balances[from]
	if models.LessThan(balance, amount) {
		return fmt.Errorf("failed to transfer %s %s from %s: %w", amount.Dec(), l.symbol, from.Hex(), models.ErrInsufficientBalance)
	}
	if from == to {
		return l.notify(ctx, from, to, amount)
	}

	l.move(from, to, amount)
	if err := l.notify(ctx, from, to, amount); err != nil {
		if models.LessThan(l.balances[to], amount) {
			log.WithFields(log.Fields{
				"symbol": l.symbol,
				"from":   from.Hex(),
				"to":     to.Hex(),
				"amount": amount.Dec(),
			}).Error("Rejected transfer could not be reverted, receiver spent the funds")
			return fmt.Errorf("%w: %v", models.ErrInvariantViolation, err)
		}
		l.move(to, from, amount)
		return err
	}
	return nil
}

func (l *ValueLedger) move(from, to common.Address, amount models.Amount) {
	remaining := models.SubAmount(l.balances[from], amount)
	if remaining.IsZero() {
		delete(l.balances, from)
	} else {
		l.balances[from] = remaining
	}
	l.balances[to] = models.AddAmount(l.balances[to], amount)
}

func (l *ValueLedger) notify(ctx context.Context, from, to common.Address, amount models.Amount) error {
	r, ok := l.receivers[to]
	if !ok {
		return nil
	}
	if err := r.OnIncomingTransfer(ctx, from, to, amount); err != nil {
		return fmt.Errorf("%w: %s rejected %s %s: %v", models.ErrTransferFailed, to.Hex(), amount.Dec(), l.symbol, err)
	}
	return nil
}

// Registry resolves chip identifiers to ledgers
type Registry struct {
	ledgers map[string]*ValueLedger
}

// NewRegistry creates a registry holding the given ledgers
func NewRegistry(ledgers ...*ValueLedger) *Registry {
	r := &Registry{ledgers: make(map[string]*ValueLedger)}
	for _, l := range ledgers {
		r.Register(l)
	}
	return r
}

// Register adds a ledger under its symbol
func (r *Registry) Register(l *ValueLedger) {
	r.ledgers[l.Symbol()] = l
}

// Get returns the ledger for a chip
func (r *Registry) Get(chip string) (*ValueLedger, error) {
	l, ok := r.ledgers[chip]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownChip, chip)
	}
	return l, nil
}
