package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"betdao/config"
	"betdao/database"
	"betdao/events"
	"betdao/infrastructure"
	"betdao/infrastructure/observability"
	"betdao/repository"
	"betdao/service"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Stack is the shared infrastructure behind every command
type Stack struct {
	Config   *config.Config
	Protocol *config.Protocol
	DB       *database.DB
	NATS     *infrastructure.NATSClient
	Bus      *events.Bus
	Metrics  *observability.MetricsProvider
	Mapper   *infrastructure.EventSubjectMapper
}

// SetupLogging applies LOG_LEVEL and LOG_FORMAT to the global logger
func SetupLogging(cfg *config.Config) {
	log.SetOutput(os.Stderr)
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Bootstrap connects the journal database and NATS concurrently, starts metrics
// and forwards bus events to NATS. Either connection is skipped when unconfigured.
func Bootstrap(ctx context.Context, cfg *config.Config, protocolFile string) (*Stack, error) {
	if protocolFile == "" {
		protocolFile = cfg.ProtocolFile
	}
	protocol, err := config.LoadProtocol(protocolFile)
	if err != nil {
		return nil, err
	}

	stack := &Stack{
		Config:   cfg,
		Protocol: protocol,
		Bus:      events.NewBus(),
		Mapper:   infrastructure.NewEventSubjectMapper(),
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HasDatabase() {
		g.Go(func() error {
			log.Info("Connecting to database...")
			db, err := database.NewConnection(gctx, cfg.GetDatabaseURL())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			stack.DB = db
			return nil
		})
	}
	if cfg.NATSEnabled {
		g.Go(func() error {
			log.WithField("servers", cfg.NATSServers).Info("Connecting to NATS...")
			client := infrastructure.NewNATSClient(cfg.NATSServers)
			if err := client.Connect(gctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			stack.NATS = client
			if err := client.EnsureStream(infrastructure.EventStreamName, "Bet settlement events", []string{infrastructure.SubjectPrefix + ".>"}); err != nil {
				return fmt.Errorf("failed to ensure event stream: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := observability.InitializeGlobalMetrics(gctx, cfg); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		stack.Metrics = observability.GetMetrics()
		return nil
	})
	if err := g.Wait(); err != nil {
		stack.Close(context.Background())
		return nil, err
	}

	var client infrastructure.MessagePublisher = infrastructure.NewNoopMessagePublisher()
	if stack.NATS != nil {
		client = stack.NATS
	}
	infrastructure.NewNATSEventPublisher(client, stack.Mapper, stack.Metrics).Attach(stack.Bus)

	log.WithFields(log.Fields{
		"database": stack.DB != nil,
		"nats":     stack.NATS != nil,
		"metrics":  cfg.OTelEnabled,
		"manager":  protocol.Manager.Hex(),
		"chips":    protocol.Chips,
	}).Info("Infrastructure ready")
	return stack, nil
}

// UnitOfWork returns the settlement journal factory, nil without a database
func (s *Stack) UnitOfWork() service.UnitOfWorkFactory {
	if s.DB == nil {
		return nil
	}
	return repository.NewUnitOfWorkFactory(s.DB)
}

// Close drains the bus and releases every connection
func (s *Stack) Close(ctx context.Context) {
	if s.Bus != nil {
		s.Bus.Wait()
	}
	if s.NATS != nil {
		if err := s.NATS.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}
	if s.DB != nil {
		log.Info("Closing database connection...")
		s.DB.Close()
	}
	if err := observability.ShutdownGlobalMetrics(ctx); err != nil {
		log.WithError(err).Error("Error shutting down metrics")
	}
}
