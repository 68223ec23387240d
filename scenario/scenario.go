package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Step kinds
const (
	StepMint          = "mint"
	StepStake         = "stake"
	StepUnstake       = "unstake"
	StepCreate        = "create"
	StepWager         = "wager"
	StepDecide        = "decide"
	StepDispute       = "dispute"
	StepArbitrate     = "arbitrate"
	StepCancel        = "cancel"
	StepAdvance       = "advance"
	StepObserve       = "observe"
	StepRelease       = "release"
	StepClaim         = "claim"
	StepRejectPayouts = "reject_payouts"
	StepAcceptPayouts = "accept_payouts"
	StepExpectStatus  = "expect_status"
	StepExpectBalance = "expect_balance"
	StepExpectWeight  = "expect_weight"
)

// Scenario is a scripted sequence of engine operations
type Scenario struct {
	Name string `yaml:"name"`

	// Protocol is a protocol file path, relative to the scenario file
	Protocol string            `yaml:"protocol"`
	Start    time.Time         `yaml:"start"`
	Accounts map[string]string `yaml:"accounts"`
	Steps    []Step            `yaml:"steps"`
}

// Step is one scripted operation. Which fields apply depends on Do.
type Step struct {
	Do       string `yaml:"do"`
	Account  string `yaml:"account"`
	Bet      string `yaml:"bet"`
	Chip     string `yaml:"chip"`
	Option   string `yaml:"option"`
	Amount   string `yaml:"amount"`
	Category string `yaml:"category"`
	Duration string `yaml:"duration"`
	Status   string `yaml:"status"`

	// create
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	ForumURL    string   `yaml:"forum_url"`
	Options     []string `yaml:"options"`
	Wagering    string   `yaml:"wagering"`
	Deciding    string   `yaml:"deciding"`

	// ExpectError turns the step into a negative check: it must fail with
	// an error containing this text
	ExpectError string `yaml:"expect_error"`
}

// Load reads a scenario file and resolves its protocol path
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if sc.Protocol != "" && !filepath.IsAbs(sc.Protocol) {
		sc.Protocol = filepath.Join(filepath.Dir(path), sc.Protocol)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(path)
	}
	return sc, nil
}

// Parse decodes scenario YAML
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if step.Do == "" {
			return nil, fmt.Errorf("step %d: missing do", i+1)
		}
	}
	if sc.Start.IsZero() {
		sc.Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &sc, nil
}
