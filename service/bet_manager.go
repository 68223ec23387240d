package service

import (
	"context"
	"fmt"

	"betdao/events"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

type betManager struct {
	address common.Address
	nonce   uint64
	config  models.BetConfig
	deps    Dependencies
}

// NewBetManager creates a manager at address; bet addresses derive from it
func NewBetManager(address common.Address, cfg models.BetConfig, deps Dependencies) (BetManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &betManager{
		address: address,
		config:  cfg.Clone(),
		deps:    deps.withDefaults(),
	}, nil
}

func (m *betManager) Address() common.Address {
	return m.address
}

func (m *betManager) Config() models.BetConfig {
	return m.config.Clone()
}

func (m *betManager) SetConfig(cfg models.BetConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg.Clone()
	log.WithFields(log.Fields{
		"creatorRatio":  cfg.CreatorRatio,
		"deciderRatio":  cfg.DeciderRatio,
		"protocolRatio": cfg.ProtocolRatio,
	}).Info("Bet configuration updated for new bets")
	return nil
}

func (m *betManager) CreateBet(ctx context.Context, params CreateBetParams) (*models.Bet, error) {
	cfg := m.config.Clone()

	if params.Creator == (common.Address{}) {
		return nil, fmt.Errorf("%w: creator is required", models.ErrInvalidDetails)
	}
	if err := params.Details.Validate(&cfg); err != nil {
		return nil, err
	}
	if params.WageringDuration < cfg.MinWageringDuration || params.WageringDuration > cfg.MaxWageringDuration {
		return nil, fmt.Errorf("%w: wagering period %s outside [%s, %s]", models.ErrInvalidDuration,
			params.WageringDuration, cfg.MinWageringDuration, cfg.MaxWageringDuration)
	}
	if params.DecidingDuration < cfg.MinDecidingDuration || params.DecidingDuration > cfg.MaxDecidingDuration {
		return nil, fmt.Errorf("%w: deciding period %s outside [%s, %s]", models.ErrInvalidDuration,
			params.DecidingDuration, cfg.MinDecidingDuration, cfg.MaxDecidingDuration)
	}
	if _, err := m.deps.Chips.Get(params.Chip); err != nil {
		return nil, err
	}

	m.nonce++
	address := crypto.CreateAddress(m.address, m.nonce)
	bet := models.NewBet(address, params.Creator, params.Chip, params.Details, cfg, m.deps.Clock.Now(),
		params.WageringDuration, params.DecidingDuration,
		func(i int) common.Address { return crypto.CreateAddress(address, uint64(i)) })

	m.deps.Registry.put(&betEntry{
		bet:        bet,
		capability: m.deps.Votes.Grant(address),
	})

	bus := events.NewTransactionalBus(m.deps.Bus)
	bus.Publish(events.BetCreatedEvent{
		Bet:              address,
		Creator:          params.Creator,
		Chip:             params.Chip,
		Title:            bet.Details.Title,
		Options:          append([]string(nil), bet.Details.Options...),
		WageringDuration: params.WageringDuration,
		DecidingDuration: params.DecidingDuration,
	})
	if err := bus.Flush(ctx); err != nil {
		log.WithError(err).Error("Failed to flush bet creation events")
	}
	m.deps.Metrics.RecordBetCreated(ctx, params.Chip)

	journal(ctx, m.deps.UnitOfWork, "create bet", func(uow UnitOfWork) error {
		return uow.BetRepository().Upsert(ctx, models.NewBetRecord(bet))
	})

	log.WithFields(log.Fields{
		"bet":      address.Hex(),
		"creator":  params.Creator.Hex(),
		"chip":     params.Chip,
		"options":  bet.OptionCount(),
		"deadline": bet.StatusDeadline,
	}).Info("Created bet")

	return bet.Clone(), nil
}

// journal runs fn in its own unit of work. Journal failures are logged and never undo engine state.
func journal(ctx context.Context, factory UnitOfWorkFactory, operation string, fn func(uow UnitOfWork) error) {
	if factory == nil {
		return
	}
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).WithField("operation", operation).Error("Failed to begin journal transaction")
		return
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		log.WithError(err).WithField("operation", operation).Error("Failed to write settlement journal")
		return
	}
	if err := uow.Commit(); err != nil {
		log.WithError(err).WithField("operation", operation).Error("Failed to commit settlement journal")
	}
}
