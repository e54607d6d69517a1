package asaas

import "github.com/shopspring/decimal"

// Billing types accepted by the gateway.
const (
	BillingTypeUndefined  = "UNDEFINED"
	BillingTypeCreditCard = "CREDIT_CARD"
)

// Customer is the gateway customer resource.
type Customer struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	ExternalReference string `json:"externalReference,omitempty"`
	Deleted           bool   `json:"deleted"`
}

type CustomerCreateParams struct {
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	CpfCnpj           string `json:"cpfCnpj,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
}

// Subscription is the gateway recurring-charge resource.
type Subscription struct {
	ID                string          `json:"id"`
	Customer          string          `json:"customer"`
	BillingType       string          `json:"billingType"`
	Value             decimal.Decimal `json:"value"`
	Cycle             string          `json:"cycle"`
	NextDueDate       string          `json:"nextDueDate"`
	Status            string          `json:"status"`
	Description       string          `json:"description,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
	Deleted           bool            `json:"deleted"`
}

type SubscriptionCreateParams struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	NextDueDate       string  `json:"nextDueDate"`
	Cycle             string  `json:"cycle"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

// Payment is a single charge (and its invoice) issued by the gateway.
type Payment struct {
	ID           string          `json:"id"`
	Customer     string          `json:"customer"`
	Subscription string          `json:"subscription,omitempty"`
	Value        decimal.Decimal `json:"value"`
	Status       string          `json:"status"`
	BillingType  string          `json:"billingType"`
	DueDate      string          `json:"dueDate"`
	InvoiceURL   string          `json:"invoiceUrl"`
	Deleted      bool            `json:"deleted"`
}

type PaymentList struct {
	Data       []Payment `json:"data"`
	TotalCount int       `json:"totalCount"`
	HasMore    bool      `json:"hasMore"`
}

// DeleteResponse is returned by every DELETE endpoint.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ErrorItem is one entry of the gateway error envelope.
type ErrorItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type errorEnvelope struct {
	Errors []ErrorItem `json:"errors"`
}
