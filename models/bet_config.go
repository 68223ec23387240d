package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BetConfig is the protocol configuration a bet is created under.
// Each bet keeps its own copy; later changes to the global configuration never reach it.
type BetConfig struct {
	MinWageredTotal    Amount
	MinDecidedTotal    Amount
	MinDisputedTotal   Amount
	MinArbitratedTotal Amount

	// Ratios in parts per million of the wagered total
	CreatorRatio  uint64
	DeciderRatio  uint64
	ProtocolRatio uint64

	MinWageringDuration time.Duration
	MaxWageringDuration time.Duration
	MinDecidingDuration time.Duration
	MaxDecidingDuration time.Duration

	MinOptions           int
	MaxOptions           int
	MaxTitleLength       int
	MaxDescriptionLength int
	ForumURLPrefixes     []string

	DecideThreshold    Amount
	ArbitrateThreshold Amount
	ArbitrateMinLevel  uint64

	ProtocolAccount common.Address
}

// WinnerRatio returns the share left to the winning wagerers
func (c *BetConfig) WinnerRatio() uint64 {
	spent := c.CreatorRatio + c.DeciderRatio + c.ProtocolRatio
	if spent >= RatioPrecision {
		return 0
	}
	return RatioPrecision - spent
}

// Validate checks the configuration is internally consistent
func (c *BetConfig) Validate() error {
	if c.CreatorRatio+c.DeciderRatio+c.ProtocolRatio > RatioPrecision {
		return fmt.Errorf("%w: ratios sum to more than %d ppm", ErrInvalidConfig, RatioPrecision)
	}
	if c.MinWageringDuration <= 0 || c.MinWageringDuration > c.MaxWageringDuration {
		return fmt.Errorf("%w: wagering duration bounds [%s, %s]", ErrInvalidConfig, c.MinWageringDuration, c.MaxWageringDuration)
	}
	if c.MinDecidingDuration <= 0 || c.MinDecidingDuration > c.MaxDecidingDuration {
		return fmt.Errorf("%w: deciding duration bounds [%s, %s]", ErrInvalidConfig, c.MinDecidingDuration, c.MaxDecidingDuration)
	}
	if c.MinOptions < 2 || c.MinOptions > c.MaxOptions {
		return fmt.Errorf("%w: option bounds [%d, %d]", ErrInvalidConfig, c.MinOptions, c.MaxOptions)
	}
	if c.ProtocolAccount == (common.Address{}) {
		return fmt.Errorf("%w: protocol account not set", ErrInvalidConfig)
	}
	return nil
}

// Clone returns a deep copy
func (c BetConfig) Clone() BetConfig {
	out := c
	out.ForumURLPrefixes = append([]string(nil), c.ForumURLPrefixes...)
	return out
}
