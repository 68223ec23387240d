package observability

// Metric name prefixes
const (
	MetricPrefix = "betdao"
)

// Metric names
const (
	// Bet metrics
	BetsCreatedTotal    = MetricPrefix + ".bets.created_total"
	BetsOpen            = MetricPrefix + ".bets.open"
	SubmissionsTotal    = MetricPrefix + ".submissions.total"
	TransitionsTotal    = MetricPrefix + ".bets.transitions_total"
	ReleasesTotal       = MetricPrefix + ".releases.total"
	ReleaseDuration     = MetricPrefix + ".releases.duration"
	PayoutsTotal        = MetricPrefix + ".payouts.total"
	PayoutFailuresTotal = MetricPrefix + ".payouts.failures_total"
	ClaimsTotal         = MetricPrefix + ".claims.total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelChip      = "chip"
	LabelAction    = "action"
	LabelResult    = "result"
	LabelFrom      = "from"
	LabelTo        = "to"
	LabelOutcome   = "outcome"
	LabelEventType = "event_type"
)

// Submission results
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultClaimed  = "claimed"
	ResultFailed   = "failed"
)
