package models

// BetStatus represents the phase of a bet
type BetStatus string

const (
	BetStatusWagering     BetStatus = "wagering"
	BetStatusDeciding     BetStatus = "deciding"
	BetStatusAnnouncement BetStatus = "announcement"
	BetStatusArbitrating  BetStatus = "arbitrating"
	BetStatusConfirmed    BetStatus = "confirmed"
	BetStatusCancelled    BetStatus = "cancelled"
	BetStatusClosed       BetStatus = "closed"
)

// IsResolved reports whether the bet has an outcome waiting for release
func (s BetStatus) IsResolved() bool {
	return s == BetStatusConfirmed || s == BetStatusCancelled
}

// IsOpen reports whether the bet still accepts contributions in some category
func (s BetStatus) IsOpen() bool {
	switch s {
	case BetStatusWagering, BetStatusDeciding, BetStatusAnnouncement, BetStatusArbitrating:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s
func (s BetStatus) CanTransitionTo(next BetStatus) bool {
	switch s {
	case BetStatusWagering:
		return next == BetStatusDeciding || next == BetStatusCancelled
	case BetStatusDeciding:
		return next == BetStatusAnnouncement || next == BetStatusCancelled
	case BetStatusAnnouncement:
		return next == BetStatusArbitrating || next == BetStatusConfirmed
	case BetStatusArbitrating:
		return next == BetStatusConfirmed || next == BetStatusCancelled
	case BetStatusConfirmed, BetStatusCancelled:
		return next == BetStatusClosed
	}
	return false
}

// Category is one of the contribution kinds recorded by a bet
type Category string

const (
	CategoryWager       Category = "wager"
	CategoryDecision    Category = "decision"
	CategoryDispute     Category = "dispute"
	CategoryArbitration Category = "arbitration"
)

// IsVoteWeight reports whether contributions of this category are vote weight
// rather than chips
func (c Category) IsVoteWeight() bool {
	return c == CategoryDecision || c == CategoryArbitration
}

// AcceptingStatus returns the only status in which the category accepts contributions
func (c Category) AcceptingStatus() BetStatus {
	switch c {
	case CategoryWager:
		return BetStatusWagering
	case CategoryDecision:
		return BetStatusDeciding
	case CategoryDispute:
		return BetStatusAnnouncement
	case CategoryArbitration:
		return BetStatusArbitrating
	}
	return ""
}
