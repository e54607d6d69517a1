package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/devfurlan/cuidly-sub007/pkg/asaas"
)

const dueDateLayout = "2006-01-02"

// asaasAPI is the subset of the REST client the adapter drives.
type asaasAPI interface {
	CreateCustomer(ctx context.Context, params asaas.CustomerCreateParams) (*asaas.Customer, error)
	CreateSubscription(ctx context.Context, params asaas.SubscriptionCreateParams) (*asaas.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*asaas.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) (*asaas.DeleteResponse, error)
	ListSubscriptionPayments(ctx context.Context, subscriptionID string, limit int) (*asaas.PaymentList, error)
	DeletePayment(ctx context.Context, paymentID string) (*asaas.DeleteResponse, error)
}

type asaasClient struct {
	api asaasAPI
}

// NewAsaasClient adapts the REST client to the gateway capability surface.
func NewAsaasClient(api asaasAPI) (Client, error) {
	if api == nil {
		return nil, fmt.Errorf("asaas api required")
	}
	return &asaasClient{api: api}, nil
}

func (c *asaasClient) CreateCustomer(ctx context.Context, input CustomerInput) (Customer, error) {
	const op = "create_customer"
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = input.ExternalReference
	}
	customer, err := c.api.CreateCustomer(ctx, asaas.CustomerCreateParams{
		Name:              name,
		Email:             strings.TrimSpace(input.Email),
		ExternalReference: input.ExternalReference,
	})
	if err != nil {
		return Customer{}, classify(op, err)
	}
	return Customer{ID: customer.ID}, nil
}

func (c *asaasClient) CreateSubscription(ctx context.Context, input SubscriptionInput) (Subscription, error) {
	const op = "create_subscription"
	if strings.TrimSpace(input.CustomerID) == "" {
		return Subscription{}, NewError(op, KindBusiness, "customer id is required", nil)
	}
	sub, err := c.api.CreateSubscription(ctx, asaas.SubscriptionCreateParams{
		Customer:          input.CustomerID,
		BillingType:       asaas.BillingTypeCreditCard,
		Value:             input.Value.Round(2).InexactFloat64(),
		NextDueDate:       input.NextDueDate.UTC().Format(dueDateLayout),
		Cycle:             input.Cycle,
		Description:       input.Description,
		ExternalReference: input.ExternalReference,
	})
	if err != nil {
		return Subscription{}, classify(op, err)
	}
	return toSubscription(sub), nil
}

// CreatePaymentLink returns the hosted invoice of the first charge generated
// for the subscription.
func (c *asaasClient) CreatePaymentLink(ctx context.Context, externalSubscriptionID string) (PaymentLink, error) {
	const op = "create_payment_link"
	list, err := c.api.ListSubscriptionPayments(ctx, externalSubscriptionID, 1)
	if err != nil {
		return PaymentLink{}, classify(op, err)
	}
	if list == nil || len(list.Data) == 0 {
		return PaymentLink{}, NewError(op, KindTransport, "subscription has no charge yet", nil)
	}
	first := list.Data[0]
	if strings.TrimSpace(first.InvoiceURL) == "" {
		return PaymentLink{}, NewError(op, KindBusiness, "charge has no invoice url", nil)
	}
	return PaymentLink{PaymentID: first.ID, URL: first.InvoiceURL, Amount: first.Value}, nil
}

func (c *asaasClient) GetSubscription(ctx context.Context, externalSubscriptionID string) (Subscription, error) {
	const op = "get_subscription"
	sub, err := c.api.GetSubscription(ctx, externalSubscriptionID)
	if err != nil {
		return Subscription{}, classify(op, err)
	}
	if sub.Deleted {
		return Subscription{}, NewError(op, KindNotFound, "subscription was deleted", nil)
	}
	return toSubscription(sub), nil
}

// DeleteSubscription treats an already removed subscription as success.
func (c *asaasClient) DeleteSubscription(ctx context.Context, externalSubscriptionID string) error {
	_, err := c.api.DeleteSubscription(ctx, externalSubscriptionID)
	return ignoreNotFound(classify("delete_subscription", err))
}

// DeleteInvoice cancels a single charge. Charges whose fiscal invoice was
// already authorized are rejected by the gateway as business errors.
func (c *asaasClient) DeleteInvoice(ctx context.Context, externalPaymentID string) error {
	_, err := c.api.DeletePayment(ctx, externalPaymentID)
	return ignoreNotFound(classify("delete_invoice", err))
}

func toSubscription(sub *asaas.Subscription) Subscription {
	if sub == nil {
		return Subscription{}
	}
	return Subscription{
		ID:          sub.ID,
		CustomerID:  sub.Customer,
		Status:      sub.Status,
		Value:       sub.Value,
		NextDueDate: sub.NextDueDate,
	}
}

func ignoreNotFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *asaas.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Temporary():
			return NewError(op, KindTransport, apiErr.Description(), err)
		case apiErr.StatusCode == http.StatusNotFound:
			return NewError(op, KindNotFound, apiErr.Description(), err)
		default:
			return NewError(op, KindBusiness, apiErr.Description(), err)
		}
	}
	var transportErr *asaas.TransportError
	if errors.As(err, &transportErr) {
		return NewError(op, KindTransport, "gateway unreachable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(op, KindTransport, "gateway call timed out", err)
	}
	// decode failures leave the outcome unknown
	return NewError(op, KindTransport, err.Error(), err)
}
