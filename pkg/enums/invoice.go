package enums

import "fmt"

// InvoiceState is the lifecycle position derived from the invoice flags.
type InvoiceState string

const (
	InvoiceStateDraft     InvoiceState = "draft"
	InvoiceStateFinalized InvoiceState = "finalized"
	InvoiceStateLocked    InvoiceState = "locked"
	InvoiceStateDeleted   InvoiceState = "deleted"
)

var validInvoiceStates = []InvoiceState{
	InvoiceStateDraft,
	InvoiceStateFinalized,
	InvoiceStateLocked,
	InvoiceStateDeleted,
}

// IsValid reports whether the value is a known InvoiceState.
func (s InvoiceState) IsValid() bool {
	for _, candidate := range validInvoiceStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// DeriveInvoiceState maps the persisted flags onto a single state.
func DeriveInvoiceState(isFinalized, isLocked, isDeleted bool) InvoiceState {
	switch {
	case isDeleted:
		return InvoiceStateDeleted
	case isLocked:
		return InvoiceStateLocked
	case isFinalized:
		return InvoiceStateFinalized
	default:
		return InvoiceStateDraft
	}
}

// InvoicePaymentStatus is derived from paid_amount against grand_total.
type InvoicePaymentStatus string

const (
	InvoiceUnpaid        InvoicePaymentStatus = "unpaid"
	InvoicePartiallyPaid InvoicePaymentStatus = "partially_paid"
	InvoicePaid          InvoicePaymentStatus = "paid"
)

var validInvoicePaymentStatuses = []InvoicePaymentStatus{
	InvoiceUnpaid,
	InvoicePartiallyPaid,
	InvoicePaid,
}

func (s InvoicePaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InvoicePaymentStatus.
func (s InvoicePaymentStatus) IsValid() bool {
	for _, candidate := range validInvoicePaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInvoicePaymentStatus converts raw input into an InvoicePaymentStatus.
func ParseInvoicePaymentStatus(value string) (InvoicePaymentStatus, error) {
	for _, candidate := range validInvoicePaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice payment status %q", value)
}

// InvoiceAction enumerates the mutations accepted by PUT /invoices/{id}.
type InvoiceAction string

const (
	InvoiceActionEdit     InvoiceAction = "edit"
	InvoiceActionFinalize InvoiceAction = "finalize"
	InvoiceActionLock     InvoiceAction = "lock"
)

var validInvoiceActions = []InvoiceAction{
	InvoiceActionEdit,
	InvoiceActionFinalize,
	InvoiceActionLock,
}

// ParseInvoiceAction converts raw input into an InvoiceAction.
func ParseInvoiceAction(value string) (InvoiceAction, error) {
	for _, candidate := range validInvoiceActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice action %q", value)
}
