package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateInvoice    OutboxAggregateType = "invoice"
	AggregatePayment    OutboxAggregateType = "payment"
	AggregateCustomer   OutboxAggregateType = "customer"
	AggregateCreditNote OutboxAggregateType = "credit_note"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateInvoice,
	AggregatePayment,
	AggregateCustomer,
	AggregateCreditNote,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event stored in outbox_events.
type OutboxEventType string

const (
	EventInvoiceCreated       OutboxEventType = "invoice_created"
	EventInvoiceFinalized     OutboxEventType = "invoice_finalized"
	EventInvoiceEdited        OutboxEventType = "invoice_edited"
	EventInvoiceLocked        OutboxEventType = "invoice_locked"
	EventInvoiceDeleted       OutboxEventType = "invoice_deleted"
	EventPaymentApplied       OutboxEventType = "payment_applied"
	EventPaymentReversed      OutboxEventType = "payment_reversed"
	EventCreditNoteIssued     OutboxEventType = "credit_note_issued"
	EventBalanceDriftDetected OutboxEventType = "balance_drift_detected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventInvoiceCreated,
	EventInvoiceFinalized,
	EventInvoiceEdited,
	EventInvoiceLocked,
	EventInvoiceDeleted,
	EventPaymentApplied,
	EventPaymentReversed,
	EventCreditNoteIssued,
	EventBalanceDriftDetected,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
