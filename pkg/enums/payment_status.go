package enums

// PaymentStatus tracks one invoice of a subscription.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusConfirmed  PaymentStatus = "CONFIRMED"
	PaymentStatusPaid       PaymentStatus = "PAID"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// OpenPaymentStatuses may still be canceled at the gateway.
var OpenPaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing}

func (s PaymentStatus) String() string { return string(s) }

func (s PaymentStatus) IsValid() bool {
	return s.IsOpen() || s.IsSettled() || s == PaymentStatusFailed
}

func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// IsSettled reports whether money was received.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusPaid
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	return parse("payment status", raw, PaymentStatus.IsValid)
}

// PaymentGateway names the processor that issued the external ids.
type PaymentGateway string

const PaymentGatewayAsaas PaymentGateway = "ASAAS"
