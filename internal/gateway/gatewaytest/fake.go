// Package gatewaytest provides a programmable in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/internal/gateway"
)

// Fake records every call and returns the configured errors. A nil error map
// entry means success.
type Fake struct {
	mu sync.Mutex

	Calls  []string
	Errors map[string]error

	// GoneSubscriptions makes GetSubscription report not found.
	GoneSubscriptions map[string]bool

	DeletedSubscriptions []string
	DeletedInvoices      []string
	CreatedSubscriptions []gateway.SubscriptionInput

	seq int
}

func New() *Fake {
	return &Fake{
		Errors:            map[string]error{},
		GoneSubscriptions: map[string]bool{},
	}
}

// Fail configures op to fail with the given kind and message.
func (f *Fake) Fail(op string, kind gateway.Kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[op] = gateway.NewError(op, kind, message, nil)
}

// Recover clears every configured failure.
func (f *Fake) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = map[string]error{}
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.Calls {
		if call == op {
			n++
		}
	}
	return n
}

func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Fake) record(op string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
	f.seq++
	return f.seq, f.Errors[op]
}

func (f *Fake) CreateCustomer(_ context.Context, _ gateway.CustomerInput) (gateway.Customer, error) {
	seq, err := f.record("create_customer")
	if err != nil {
		return gateway.Customer{}, err
	}
	return gateway.Customer{ID: fmt.Sprintf("cus_%d", seq)}, nil
}

func (f *Fake) CreateSubscription(_ context.Context, input gateway.SubscriptionInput) (gateway.Subscription, error) {
	seq, err := f.record("create_subscription")
	if err != nil {
		return gateway.Subscription{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedSubscriptions = append(f.CreatedSubscriptions, input)
	return gateway.Subscription{
		ID:         fmt.Sprintf("sub_%d", seq),
		CustomerID: input.CustomerID,
		Status:     "ACTIVE",
		Value:      input.Value,
	}, nil
}

func (f *Fake) CreatePaymentLink(_ context.Context, externalSubscriptionID string) (gateway.PaymentLink, error) {
	seq, err := f.record("create_payment_link")
	if err != nil {
		return gateway.PaymentLink{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	amount := decimal.Zero
	if n := len(f.CreatedSubscriptions); n > 0 {
		amount = f.CreatedSubscriptions[n-1].Value
	}
	return gateway.PaymentLink{
		PaymentID: fmt.Sprintf("pay_%d", seq),
		URL:       fmt.Sprintf("https://pay.example/%s", externalSubscriptionID),
		Amount:    amount,
	}, nil
}

func (f *Fake) GetSubscription(_ context.Context, externalSubscriptionID string) (gateway.Subscription, error) {
	if _, err := f.record("get_subscription"); err != nil {
		return gateway.Subscription{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GoneSubscriptions[externalSubscriptionID] {
		return gateway.Subscription{}, gateway.NewError("get_subscription", gateway.KindNotFound, "subscription was deleted", nil)
	}
	return gateway.Subscription{ID: externalSubscriptionID, Status: "ACTIVE"}, nil
}

func (f *Fake) DeleteSubscription(_ context.Context, externalSubscriptionID string) error {
	if _, err := f.record("delete_subscription"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedSubscriptions = append(f.DeletedSubscriptions, externalSubscriptionID)
	return nil
}

func (f *Fake) DeleteInvoice(_ context.Context, externalPaymentID string) error {
	if _, err := f.record("delete_invoice"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedInvoices = append(f.DeletedInvoices, externalPaymentID)
	return nil
}

var _ gateway.Client = (*Fake)(nil)
