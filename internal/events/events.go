// Package events maps source platform event names onto the canonical
// (sync state, financial state) pair applied against the storefront.
package events

// SyncState is the canonical synchronization state of a mirrored order.
type SyncState string

const (
	SyncPending     SyncState = "pending"
	SyncPaid        SyncState = "paid"
	SyncCancelled   SyncState = "cancelled"
	SyncRefunded    SyncState = "refunded"
	SyncUnderReview SyncState = "under_review"
)

// FinancialState is the canonical financial state of a mirrored order.
type FinancialState string

const (
	FinancialPending   FinancialState = "pending"
	FinancialPaid      FinancialState = "paid"
	FinancialCancelled FinancialState = "cancelled"
	FinancialRefunded  FinancialState = "refunded"
)

// Source platform event names.
const (
	EventOrderApproved        = "OrderApproved"
	EventOrderPaid            = "OrderPaid"
	EventOrderPaidOffline     = "OrderPaidOffline"
	EventOrderIntegrated      = "OrderIntegrated"
	EventChargebackWon        = "ChargebackWon"
	EventPaymentNotAuthorized = "PaymentNotAuthorized"
	EventPixExpired           = "PixExpired"
	EventBankSlipExpired      = "BankSlipExpired"
	EventOrderRefunded        = "OrderRefunded"
	EventChargebackDisputed   = "ChargebackDisputed"
	EventPaymentAuthorized    = "PaymentAuthorized"
	EventPixGenerated         = "PixGenerated"
	EventBankSlipCreated      = "BankSlipCreated"

	// Customer-lifecycle events carry no order transition and are
	// acknowledged without ever reaching the queue.
	EventCustomerInterested = "CustomerInterested"
	EventCustomerCreated    = "CustomerCreated"
	EventCustomerUpdated    = "CustomerUpdated"
)

// Classification is the canonical transition derived from a source event.
type Classification struct {
	Sync      SyncState
	Financial FinancialState
}

// Outcome says what the ingestion boundary should do with an event.
type Outcome int

const (
	// OutcomeMapped means the event carries a canonical transition and must be enqueued.
	OutcomeMapped Outcome = iota
	// OutcomeIgnored means the event is on the ignore list: acknowledge and drop.
	OutcomeIgnored
	// OutcomeUnknown means the event name is not recognized: log and drop.
	OutcomeUnknown
)

var transitions = map[string]Classification{
	EventOrderApproved:        {SyncPaid, FinancialPaid},
	EventOrderPaid:            {SyncPaid, FinancialPaid},
	EventOrderPaidOffline:     {SyncPaid, FinancialPaid},
	EventOrderIntegrated:      {SyncPaid, FinancialPaid},
	EventChargebackWon:        {SyncPaid, FinancialPaid},
	EventPaymentNotAuthorized: {SyncCancelled, FinancialCancelled},
	EventPixExpired:           {SyncCancelled, FinancialCancelled},
	EventBankSlipExpired:      {SyncCancelled, FinancialCancelled},
	EventOrderRefunded:        {SyncRefunded, FinancialRefunded},
	EventChargebackDisputed:   {SyncUnderReview, FinancialPending},
	EventPaymentAuthorized:    {SyncPending, FinancialPending},
	EventPixGenerated:         {SyncPending, FinancialPending},
	EventBankSlipCreated:      {SyncPending, FinancialPending},
}

var ignored = map[string]struct{}{
	EventCustomerInterested: {},
	EventCustomerCreated:    {},
	EventCustomerUpdated:    {},
}

// Classify resolves an event name to its canonical transition.
func Classify(event string) (Classification, Outcome) {
	if _, ok := ignored[event]; ok {
		return Classification{}, OutcomeIgnored
	}
	cls, ok := transitions[event]
	if !ok {
		return Classification{}, OutcomeUnknown
	}
	return cls, OutcomeMapped
}

// rank orders sync states by how terminal they are. Transitions never move
// an order to a lower rank; equal-rank re-application is an idempotent update.
var rank = map[SyncState]int{
	SyncPending:     0,
	SyncUnderReview: 1,
	SyncPaid:        2,
	SyncCancelled:   3,
	SyncRefunded:    3,
}

// IsRegression reports whether moving from current to next would walk an
// order back to a less terminal state.
func IsRegression(current, next SyncState) bool {
	cur, ok := rank[current]
	if !ok {
		return false
	}
	nxt, ok := rank[next]
	if !ok {
		return false
	}
	return nxt < cur
}
