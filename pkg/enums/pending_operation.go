package enums

// PendingOperationType is the gateway call a pending operation replays.
type PendingOperationType string

const (
	PendingOperationCancelSubscription PendingOperationType = "CANCEL_SUBSCRIPTION"
	PendingOperationCancelInvoice      PendingOperationType = "CANCEL_INVOICE"
)

func (p PendingOperationType) IsValid() bool {
	return p == PendingOperationCancelSubscription || p == PendingOperationCancelInvoice
}

func ParsePendingOperationType(raw string) (PendingOperationType, error) {
	return parse("pending operation type", raw, PendingOperationType.IsValid)
}
