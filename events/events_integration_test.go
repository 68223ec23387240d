package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBet = common.HexToAddress("0xbe7")

// TestEventDeliveryIntegration tests the complete event flow from TransactionalBus to main Bus
func TestEventDeliveryIntegration(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventReceived := make(chan BetStatusChangedEvent, 1)
	mainBus.Subscribe(EventTypeBetStatusChanged, func(ctx context.Context, event Event) {
		if statusEvent, ok := event.(BetStatusChangedEvent); ok {
			eventReceived <- statusEvent
		} else {
			t.Errorf("Expected BetStatusChangedEvent, got %T", event)
		}
	})

	testEvent := BetStatusChangedEvent{
		Bet:       testBet,
		OldStatus: models.BetStatusWagering,
		NewStatus: models.BetStatusDeciding,
		At:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Winner:    models.NoOption,
	}

	transactionalBus.Publish(testEvent)
	assert.Len(t, transactionalBus.Pending(), 1)

	err := transactionalBus.Flush(context.Background())
	require.NoError(t, err)
	mainBus.Wait()

	select {
	case received := <-eventReceived:
		assert.Equal(t, testEvent, received)
	case <-time.After(2 * time.Second):
		t.Fatal("Event was not received within timeout")
	}
	assert.Empty(t, transactionalBus.Pending())
}

// TestMultipleEventsDelivery tests delivering multiple events in sequence
func TestMultipleEventsDelivery(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	var mu sync.Mutex
	received := make(map[common.Address]bool)
	mainBus.Subscribe(EventTypeContributionRecorded, func(ctx context.Context, event Event) {
		mu.Lock()
		defer mu.Unlock()
		received[event.(ContributionRecordedEvent).Account] = true
	})

	accounts := []common.Address{
		common.HexToAddress("0x1"),
		common.HexToAddress("0x2"),
		common.HexToAddress("0x3"),
	}
	for _, account := range accounts {
		transactionalBus.Publish(ContributionRecordedEvent{
			Bet:      testBet,
			Account:  account,
			Category: models.CategoryWager,
			Amount:   "10",
		})
	}

	require.NoError(t, transactionalBus.Flush(context.Background()))
	mainBus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 3)
	for _, account := range accounts {
		assert.True(t, received[account])
	}
}

// TestTransactionalBusDiscard tests that discarded events are not delivered
func TestTransactionalBusDiscard(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventReceived := make(chan bool, 1)
	mainBus.Subscribe(EventTypeBetReleased, func(ctx context.Context, event Event) {
		eventReceived <- true
	})

	transactionalBus.Publish(BetReleasedEvent{Bet: testBet, Outcome: models.BetStatusConfirmed})
	transactionalBus.Discard()
	mainBus.Wait()

	select {
	case <-eventReceived:
		t.Fatal("Event was received despite being discarded")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestSubscribeAll checks a catch-all subscriber sees every event type
func TestSubscribeAll(t *testing.T) {
	mainBus := NewBus()

	var mu sync.Mutex
	seen := make(map[EventType]int)
	mainBus.SubscribeAll(func(ctx context.Context, event Event) {
		mu.Lock()
		defer mu.Unlock()
		seen[event.Type()]++
	})

	ctx := context.Background()
	mainBus.Emit(ctx, BetCreatedEvent{Bet: testBet})
	mainBus.Emit(ctx, LevelChangedEvent{Bet: testBet, Delta: 1, Level: 1})
	mainBus.Emit(ctx, PayoutFailedEvent{Bet: testBet})
	mainBus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[EventTypeBetCreated])
	assert.Equal(t, 1, seen[EventTypeLevelChanged])
	assert.Equal(t, 1, seen[EventTypePayoutFailed])
}

// TestPanickingHandler checks a panicking handler does not take the bus down
func TestPanickingHandler(t *testing.T) {
	mainBus := NewBus()
	delivered := make(chan struct{}, 1)

	mainBus.Subscribe(EventTypeBetCreated, func(ctx context.Context, event Event) {
		panic("boom")
	})
	mainBus.Subscribe(EventTypeBetCreated, func(ctx context.Context, event Event) {
		delivered <- struct{}{}
	})

	mainBus.Emit(context.Background(), BetCreatedEvent{Bet: testBet})
	mainBus.Wait()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("second handler did not run")
	}
}
