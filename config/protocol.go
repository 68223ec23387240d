package config

import (
	"fmt"
	"os"
	"time"

	"betdao/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultDecimals is the token precision amounts are written in
const DefaultDecimals = 18

// Protocol is the deployment a bet manager runs under
type Protocol struct {
	Manager     common.Address
	StakingPool common.Address
	Chips       []string
	StakeSymbol string
	Decimals    int32
	Bet         models.BetConfig
}

type protocolFile struct {
	Manager     string   `yaml:"manager"`
	StakingPool string   `yaml:"staking_pool"`
	Chips       []string `yaml:"chips"`
	StakeSymbol string   `yaml:"stake_symbol"`
	Decimals    *int32   `yaml:"decimals"`
	Bet         betFile  `yaml:"bet"`
}

type durationBounds struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

type betFile struct {
	MinWageredTotal    string `yaml:"min_wagered_total"`
	MinDecidedTotal    string `yaml:"min_decided_total"`
	MinDisputedTotal   string `yaml:"min_disputed_total"`
	MinArbitratedTotal string `yaml:"min_arbitrated_total"`

	CreatorRatio  string `yaml:"creator_ratio"`
	DeciderRatio  string `yaml:"decider_ratio"`
	ProtocolRatio string `yaml:"protocol_ratio"`

	WageringDuration durationBounds `yaml:"wagering_duration"`
	DecidingDuration durationBounds `yaml:"deciding_duration"`

	MinOptions           int      `yaml:"min_options"`
	MaxOptions           int      `yaml:"max_options"`
	MaxTitleLength       int      `yaml:"max_title_length"`
	MaxDescriptionLength int      `yaml:"max_description_length"`
	ForumURLPrefixes     []string `yaml:"forum_url_prefixes"`

	DecideThreshold    string `yaml:"decide_threshold"`
	ArbitrateThreshold string `yaml:"arbitrate_threshold"`
	ArbitrateMinLevel  uint64 `yaml:"arbitrate_min_level"`

	ProtocolAccount string `yaml:"protocol_account"`
}

// DefaultProtocol is used when no protocol file is configured
func DefaultProtocol() *Protocol {
	unit := tokenUnits(1, DefaultDecimals)
	return &Protocol{
		Manager:     common.HexToAddress("0x00000000000000000000000000000000000be700"),
		StakingPool: common.HexToAddress("0x000000000000000000000000000000000057a4e0"),
		Chips:       []string{"native"},
		StakeSymbol: "stake",
		Decimals:    DefaultDecimals,
		Bet: models.BetConfig{
			MinWageredTotal:      tokenUnits(100, DefaultDecimals),
			MinDecidedTotal:      tokenUnits(100, DefaultDecimals),
			MinDisputedTotal:     tokenUnits(50, DefaultDecimals),
			MinArbitratedTotal:   tokenUnits(200, DefaultDecimals),
			CreatorRatio:         10_000,
			DeciderRatio:         50_000,
			ProtocolRatio:        10_000,
			MinWageringDuration:  time.Hour,
			MaxWageringDuration:  30 * 24 * time.Hour,
			MinDecidingDuration:  time.Hour,
			MaxDecidingDuration:  7 * 24 * time.Hour,
			MinOptions:           2,
			MaxOptions:           16,
			MaxTitleLength:       200,
			MaxDescriptionLength: 5000,
			DecideThreshold:      unit,
			ArbitrateThreshold:   tokenUnits(10, DefaultDecimals),
			ArbitrateMinLevel:    1,
			ProtocolAccount:      common.HexToAddress("0x0000000000000000000000000000000000000da0"),
		},
	}
}

// LoadProtocol reads a protocol file. An empty path yields DefaultProtocol.
func LoadProtocol(path string) (*Protocol, error) {
	if path == "" {
		return DefaultProtocol(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol file: %w", err)
	}
	return ParseProtocol(data)
}

// ParseProtocol decodes protocol YAML. Amounts are decimal token counts and
// ratios are decimal fractions of the wagered total.
func ParseProtocol(data []byte) (*Protocol, error) {
	var file protocolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse protocol file: %w", err)
	}

	p := &Protocol{
		Chips:       file.Chips,
		StakeSymbol: file.StakeSymbol,
		Decimals:    DefaultDecimals,
	}
	if file.Decimals != nil {
		p.Decimals = *file.Decimals
	}
	if p.Decimals < 0 || p.Decimals > 36 {
		return nil, fmt.Errorf("%w: decimals %d out of range", models.ErrInvalidConfig, p.Decimals)
	}
	if len(p.Chips) == 0 {
		p.Chips = []string{"native"}
	}
	if p.StakeSymbol == "" {
		p.StakeSymbol = "stake"
	}

	var err error
	if p.Manager, err = parseAddress("manager", file.Manager); err != nil {
		return nil, err
	}
	if p.StakingPool, err = parseAddress("staking_pool", file.StakingPool); err != nil {
		return nil, err
	}
	if p.Bet, err = file.Bet.toConfig(p.Decimals); err != nil {
		return nil, err
	}
	if err := p.Bet.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (f betFile) toConfig(decimals int32) (models.BetConfig, error) {
	cfg := models.BetConfig{
		MinOptions:           f.MinOptions,
		MaxOptions:           f.MaxOptions,
		MaxTitleLength:       f.MaxTitleLength,
		MaxDescriptionLength: f.MaxDescriptionLength,
		ForumURLPrefixes:     f.ForumURLPrefixes,
		ArbitrateMinLevel:    f.ArbitrateMinLevel,
	}

	amounts := []struct {
		name  string
		value string
		dst   *models.Amount
	}{
		{"min_wagered_total", f.MinWageredTotal, &cfg.MinWageredTotal},
		{"min_decided_total", f.MinDecidedTotal, &cfg.MinDecidedTotal},
		{"min_disputed_total", f.MinDisputedTotal, &cfg.MinDisputedTotal},
		{"min_arbitrated_total", f.MinArbitratedTotal, &cfg.MinArbitratedTotal},
		{"decide_threshold", f.DecideThreshold, &cfg.DecideThreshold},
		{"arbitrate_threshold", f.ArbitrateThreshold, &cfg.ArbitrateThreshold},
	}
	for _, a := range amounts {
		v, err := ParseTokenAmount(a.value, decimals)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", models.ErrInvalidConfig, a.name, err)
		}
		*a.dst = v
	}

	ratios := []struct {
		name  string
		value string
		dst   *uint64
	}{
		{"creator_ratio", f.CreatorRatio, &cfg.CreatorRatio},
		{"decider_ratio", f.DeciderRatio, &cfg.DeciderRatio},
		{"protocol_ratio", f.ProtocolRatio, &cfg.ProtocolRatio},
	}
	for _, r := range ratios {
		v, err := ParseRatio(r.value)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", models.ErrInvalidConfig, r.name, err)
		}
		*r.dst = v
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"wagering_duration.min", f.WageringDuration.Min, &cfg.MinWageringDuration},
		{"wagering_duration.max", f.WageringDuration.Max, &cfg.MaxWageringDuration},
		{"deciding_duration.min", f.DecidingDuration.Min, &cfg.MinDecidingDuration},
		{"deciding_duration.max", f.DecidingDuration.Max, &cfg.MaxDecidingDuration},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", models.ErrInvalidConfig, d.name, err)
		}
		*d.dst = v
	}

	var err error
	if cfg.ProtocolAccount, err = parseAddress("protocol_account", f.ProtocolAccount); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseRatio converts a fraction such as "0.05" into parts per million
func ParseRatio(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("ratio %s must be between 0 and 1", s)
	}
	ppm := d.Mul(decimal.NewFromInt(int64(models.RatioPrecision)))
	if !ppm.IsInteger() {
		return 0, fmt.Errorf("ratio %s is finer than one part per million", s)
	}
	return uint64(ppm.IntPart()), nil
}

// ParseTokenAmount converts a decimal token count into base units
func ParseTokenAmount(s string, decimals int32) (models.Amount, error) {
	if s == "" {
		return models.Amount{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return models.Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return models.Amount{}, fmt.Errorf("amount %s is negative", s)
	}
	units := d.Shift(decimals)
	if !units.IsInteger() {
		return models.Amount{}, fmt.Errorf("amount %s has more than %d decimals", s, decimals)
	}
	return models.ParseAmount(units.BigInt().String())
}

// FormatTokenAmount renders base units as a decimal token count
func FormatTokenAmount(a models.Amount, decimals int32) string {
	d, err := decimal.NewFromString(a.Dec())
	if err != nil {
		return a.Dec()
	}
	return d.Shift(-decimals).String()
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a hex address", models.ErrInvalidConfig, name, s)
	}
	return common.HexToAddress(s), nil
}

func tokenUnits(n int64, decimals int32) models.Amount {
	a, _ := ParseTokenAmount(decimal.NewFromInt(n).String(), decimals)
	return a
}
