package cmd

import (
	"context"
	"errors"
	"time"

	"betdao/config"
	"betdao/events"
	"betdao/infrastructure"

	log "github.com/sirupsen/logrus"
)

// Run consumes the bet event stream and logs settlement activity until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	SetupLogging(cfg)
	log.WithField("environment", cfg.Environment).Info("Starting betdao event watcher...")

	if !cfg.NATSEnabled {
		return errors.New("the watcher needs NATS_ENABLED=true")
	}

	stack, err := Bootstrap(ctx, cfg, "")
	if err != nil {
		return err
	}

	subscriber := infrastructure.NewNATSEventSubscriber(stack.NATS, stack.Mapper)
	if err := subscriber.SubscribeAll(logEvent); err != nil {
		stack.Close(context.Background())
		return err
	}

	log.Info("Watching bet events...")
	<-ctx.Done()

	log.Info("Shutting down watcher...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stack.Close(shutdownCtx)

	log.Info("Shutdown completed")
	return nil
}

func logEvent(ctx context.Context, envelope *infrastructure.Envelope, event events.Event) error {
	entry := log.WithFields(log.Fields{
		"eventID":   envelope.EventID,
		"eventType": envelope.EventType,
		"source":    envelope.SourceService,
	})

	switch e := event.(type) {
	case events.BetCreatedEvent:
		entry.WithFields(log.Fields{"bet": e.Bet.Hex(), "title": e.Title, "chip": e.Chip}).Info("Bet created")
	case events.BetStatusChangedEvent:
		entry.WithFields(log.Fields{"bet": e.Bet.Hex(), "from": e.OldStatus, "to": e.NewStatus, "winner": e.Winner}).Info("Bet changed phase")
	case events.BetReleasedEvent:
		entry.WithFields(log.Fields{"bet": e.Bet.Hex(), "outcome": e.Outcome, "payouts": e.Payouts, "obligations": e.Obligations}).Info("Bet released")
	case events.PayoutFailedEvent:
		entry.WithFields(log.Fields{"bet": e.Bet.Hex(), "account": e.Account.Hex(), "amount": e.Amount, "reason": e.Reason}).Warn("Payout kept as obligation")
	default:
		entry.Debug("Bet event")
	}
	return nil
}
