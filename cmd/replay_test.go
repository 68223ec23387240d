package cmd

import (
	"bytes"
	"context"
	"testing"

	"betdao/config"
	"betdao/events"
	"betdao/infrastructure"
	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay(t *testing.T) {
	config.SetTestConfig(config.NewTestConfig())
	t.Cleanup(config.ResetConfig)

	var out bytes.Buffer
	require.NoError(t, Replay(context.Background(), "../scenario/testdata/reward.yaml", &out))

	text := out.String()
	assert.Contains(t, text, "Scenario: confirmed bet with a rejected payout")
	assert.Contains(t, text, "Who wins the final?")
	assert.Contains(t, text, "winner_bonus")
	assert.Contains(t, text, "107.6")
	assert.NotContains(t, text, "Open obligations")
}

func TestReplay_MissingFile(t *testing.T) {
	config.SetTestConfig(config.NewTestConfig())
	t.Cleanup(config.ResetConfig)

	err := Replay(context.Background(), "does-not-exist.yaml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBootstrap_WithoutInfrastructure(t *testing.T) {
	cfg := config.NewTestConfig()
	stack, err := Bootstrap(context.Background(), cfg, "")
	require.NoError(t, err)
	defer stack.Close(context.Background())

	assert.Nil(t, stack.DB)
	assert.Nil(t, stack.NATS)
	assert.Nil(t, stack.UnitOfWork())
	assert.NotNil(t, stack.Metrics)
	assert.Equal(t, config.DefaultProtocol().Manager, stack.Protocol.Manager)

	stack.Bus.Emit(context.Background(), events.BetCreatedEvent{Bet: common.HexToAddress("0xbe7")})
}

func TestBootstrap_BadProtocol(t *testing.T) {
	_, err := Bootstrap(context.Background(), config.NewTestConfig(), "missing-protocol.yaml")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	cfg := config.NewTestConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	SetupLogging(cfg)
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	cfg.LogLevel = "chatty"
	SetupLogging(cfg)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestLogEvent(t *testing.T) {
	envelope, err := infrastructure.NewEnvelope(events.BetReleasedEvent{Bet: common.HexToAddress("0xbe7"), Outcome: models.BetStatusConfirmed})
	require.NoError(t, err)

	for _, event := range []events.Event{
		events.BetCreatedEvent{},
		events.BetStatusChangedEvent{},
		events.BetReleasedEvent{},
		events.PayoutFailedEvent{},
		events.LevelChangedEvent{},
	} {
		assert.NoError(t, logEvent(context.Background(), envelope, event))
	}
}
