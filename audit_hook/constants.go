package audithook

// Action constants for audit events.
const (
	// Session actions
	ActionSessionCreated   = "session.created"
	ActionSessionCompleted = "session.completed"
	ActionSessionCancelled = "session.cancelled"

	// Participant actions
	ActionParticipantJoined = "participant.joined"
	ActionParticipantLeft   = "participant.left"
	ActionParticipantPaid   = "participant.paid"

	// Item actions
	ActionItemClaimed   = "item.claimed"
	ActionItemUnclaimed = "item.unclaimed"

	// Payment actions
	ActionPaymentRecorded  = "payment.recorded"
	ActionPaymentClamped   = "payment.clamped"
	ActionSettlementFailed = "settlement.failed"

	// Consistency actions
	ActionIntegrityFault = "integrity.fault"
)

// Resource constants for audit events.
const (
	ResourceSession     = "session"
	ResourceParticipant = "participant"
	ResourceItem        = "item"
	ResourcePayment     = "payment"
)

// Category constants for audit events.
const (
	CategorySession     = "session"
	CategoryMembership  = "membership"
	CategoryClaim       = "claim"
	CategoryPayment     = "payment"
	CategoryConsistency = "consistency"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
