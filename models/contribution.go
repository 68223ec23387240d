package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// Contribution is one account's entry in a contribution ledger
type Contribution struct {
	Account common.Address
	Amount  Amount
}

// ContributionLedger is an append-ordered account -> amount mapping with a running total.
// An account appears at most once; re-contribution increases its existing entry.
type ContributionLedger struct {
	records []Contribution
	index   map[common.Address]int
	total   Amount
}

// NewContributionLedger creates an empty ledger
func NewContributionLedger() *ContributionLedger {
	return &ContributionLedger{index: make(map[common.Address]int)}
}

// Add increases the account's entry by amount, appending a new entry when absent
func (l *ContributionLedger) Add(account common.Address, amount Amount) {
	if l.index == nil {
		l.index = make(map[common.Address]int)
	}
	if i, ok := l.index[account]; ok {
		l.records[i].Amount = AddAmount(l.records[i].Amount, amount)
	} else {
		l.index[account] = len(l.records)
		l.records = append(l.records, Contribution{Account: account, Amount: amount})
	}
	l.total = AddAmount(l.total, amount)
}

// Remove deletes the account's entry and returns its amount and former position
func (l *ContributionLedger) Remove(account common.Address) (Amount, int, bool) {
	i, ok := l.index[account]
	if !ok {
		return Amount{}, -1, false
	}
	removed := l.records[i].Amount
	l.records = append(l.records[:i], l.records[i+1:]...)
	delete(l.index, account)
	for j := i; j < len(l.records); j++ {
		l.index[l.records[j].Account] = j
	}
	l.total = SubAmount(l.total, removed)
	return removed, i, true
}

// Restore re-inserts an entry removed by Remove at its former position
func (l *ContributionLedger) Restore(account common.Address, amount Amount, position int) {
	if _, ok := l.index[account]; ok {
		l.Add(account, amount)
		return
	}
	if l.index == nil {
		l.index = make(map[common.Address]int)
	}
	if position < 0 || position > len(l.records) {
		position = len(l.records)
	}
	l.records = append(l.records, Contribution{})
	copy(l.records[position+1:], l.records[position:])
	l.records[position] = Contribution{Account: account, Amount: amount}
	for j := position; j < len(l.records); j++ {
		l.index[l.records[j].Account] = j
	}
	l.total = AddAmount(l.total, amount)
}

// AmountOf returns the account's recorded amount, zero when absent
func (l *ContributionLedger) AmountOf(account common.Address) Amount {
	if i, ok := l.index[account]; ok {
		return l.records[i].Amount
	}
	return Amount{}
}

// Has reports whether the account holds an entry
func (l *ContributionLedger) Has(account common.Address) bool {
	_, ok := l.index[account]
	return ok
}

// Total returns the sum of all entries
func (l *ContributionLedger) Total() Amount {
	return l.total
}

// Records returns a copy of the entries in insertion order
func (l *ContributionLedger) Records() []Contribution {
	out := make([]Contribution, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of entries
func (l *ContributionLedger) Len() int {
	return len(l.records)
}

// Clone returns a deep copy
func (l *ContributionLedger) Clone() *ContributionLedger {
	c := &ContributionLedger{
		records: l.Records(),
		index:   make(map[common.Address]int, len(l.index)),
		total:   l.total,
	}
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}
