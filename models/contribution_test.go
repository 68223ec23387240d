package models

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	carol = common.HexToAddress("0xca501")
)

func TestContributionLedger_Add(t *testing.T) {
	t.Run("re-contribution increases the existing entry", func(t *testing.T) {
		l := NewContributionLedger()
		l.Add(alice, NewAmount(5))
		l.Add(bob, NewAmount(3))
		l.Add(alice, NewAmount(2))

		assert.Equal(t, 2, l.Len())
		assert.Equal(t, uint64(7), ref(l.AmountOf(alice)).Uint64())
		assert.Equal(t, uint64(10), ref(l.Total()).Uint64())

		records := l.Records()
		assert.Equal(t, alice, records[0].Account)
		assert.Equal(t, bob, records[1].Account)
	})

	t.Run("zero value ledger is usable", func(t *testing.T) {
		var l ContributionLedger
		l.Add(carol, NewAmount(1))
		assert.True(t, l.Has(carol))
	})
}

func TestContributionLedger_Remove(t *testing.T) {
	t.Run("returns amount and position and reindexes", func(t *testing.T) {
		l := NewContributionLedger()
		l.Add(alice, NewAmount(1))
		l.Add(bob, NewAmount(2))
		l.Add(carol, NewAmount(3))

		amount, pos, ok := l.Remove(bob)
		require.True(t, ok)
		assert.Equal(t, uint64(2), amount.Uint64())
		assert.Equal(t, 1, pos)
		assert.Equal(t, uint64(4), ref(l.Total()).Uint64())
		assert.Equal(t, uint64(3), ref(l.AmountOf(carol)).Uint64())
		assert.False(t, l.Has(bob))
	})

	t.Run("missing account", func(t *testing.T) {
		l := NewContributionLedger()
		_, pos, ok := l.Remove(alice)
		assert.False(t, ok)
		assert.Equal(t, -1, pos)
	})
}

func TestContributionLedger_Restore(t *testing.T) {
	l := NewContributionLedger()
	l.Add(alice, NewAmount(1))
	l.Add(bob, NewAmount(2))
	l.Add(carol, NewAmount(3))
	before := l.Records()

	amount, pos, ok := l.Remove(bob)
	require.True(t, ok)
	l.Restore(bob, amount, pos)

	assert.Equal(t, before, l.Records())
	assert.Equal(t, uint64(6), ref(l.Total()).Uint64())
	assert.Equal(t, uint64(2), ref(l.AmountOf(bob)).Uint64())
}

func TestContributionLedger_CancelIdempotence(t *testing.T) {
	single := NewContributionLedger()
	single.Add(alice, NewAmount(4))
	single.Add(bob, NewAmount(9))

	replayed := NewContributionLedger()
	replayed.Add(alice, NewAmount(4))
	replayed.Add(bob, NewAmount(9))
	replayed.Remove(bob)
	replayed.Add(bob, NewAmount(9))

	assert.Equal(t, single.Records(), replayed.Records())
	assert.True(t, SameAmount(single.Total(), replayed.Total()))
}

func TestContributionLedger_Clone(t *testing.T) {
	l := NewContributionLedger()
	l.Add(alice, NewAmount(1))

	c := l.Clone()
	c.Add(bob, NewAmount(5))

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), ref(l.Total()).Uint64())
}
