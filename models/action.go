package models

import "fmt"

// Action is a command a participant submits to a bet
type Action string

const (
	ActionWager     Action = "wager"
	ActionDecide    Action = "decide"
	ActionDispute   Action = "dispute"
	ActionArbitrate Action = "arbitrate"
	ActionCancel    Action = "cancel"
)

// Category maps a contributing action to the category it records into
func (a Action) Category() (Category, error) {
	switch a {
	case ActionWager:
		return CategoryWager, nil
	case ActionDecide:
		return CategoryDecision, nil
	case ActionDispute:
		return CategoryDispute, nil
	case ActionArbitrate:
		return CategoryArbitration, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, a)
}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryWager, CategoryDecision, CategoryDispute, CategoryArbitration:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidAction, s)
}
