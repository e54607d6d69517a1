package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/pkg/asaas"
)

type stubAsaasAPI struct {
	createSubParams asaas.SubscriptionCreateParams
	getResp         *asaas.Subscription
	payments        *asaas.PaymentList
	err             error
}

func (s *stubAsaasAPI) CreateCustomer(context.Context, asaas.CustomerCreateParams) (*asaas.Customer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &asaas.Customer{ID: "cus_1"}, nil
}

func (s *stubAsaasAPI) CreateSubscription(_ context.Context, params asaas.SubscriptionCreateParams) (*asaas.Subscription, error) {
	s.createSubParams = params
	if s.err != nil {
		return nil, s.err
	}
	return &asaas.Subscription{ID: "sub_1", Customer: params.Customer, Status: "ACTIVE"}, nil
}

func (s *stubAsaasAPI) GetSubscription(context.Context, string) (*asaas.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.getResp, nil
}

func (s *stubAsaasAPI) DeleteSubscription(context.Context, string) (*asaas.DeleteResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &asaas.DeleteResponse{Deleted: true}, nil
}

func (s *stubAsaasAPI) ListSubscriptionPayments(context.Context, string, int) (*asaas.PaymentList, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payments, nil
}

func (s *stubAsaasAPI) DeletePayment(context.Context, string) (*asaas.DeleteResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &asaas.DeleteResponse{Deleted: true}, nil
}

func newAdapter(t *testing.T, api *stubAsaasAPI) Client {
	t.Helper()
	client, err := NewAsaasClient(api)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestNewAsaasClientRequiresAPI(t *testing.T) {
	if _, err := NewAsaasClient(nil); err == nil {
		t.Fatal("expected error for nil api")
	}
}

func TestCreateSubscriptionFormatsParams(t *testing.T) {
	api := &stubAsaasAPI{}
	client := newAdapter(t, api)

	due := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	sub, err := client.CreateSubscription(context.Background(), SubscriptionInput{
		CustomerID:  "cus_1",
		Value:       decimal.RequireFromString("450.004"),
		Cycle:       "YEARLY",
		NextDueDate: due,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ID != "sub_1" {
		t.Fatalf("unexpected subscription id %q", sub.ID)
	}
	if api.createSubParams.Value != 450 {
		t.Fatalf("expected value rounded to 450, got %v", api.createSubParams.Value)
	}
	if api.createSubParams.NextDueDate != "2026-03-04" {
		t.Fatalf("unexpected due date %q", api.createSubParams.NextDueDate)
	}
	if api.createSubParams.BillingType != asaas.BillingTypeCreditCard {
		t.Fatalf("unexpected billing type %q", api.createSubParams.BillingType)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"server error", &asaas.APIError{StatusCode: http.StatusBadGateway}, KindTransport},
		{"rate limited", &asaas.APIError{StatusCode: http.StatusTooManyRequests}, KindTransport},
		{"timeout status", &asaas.APIError{StatusCode: http.StatusRequestTimeout}, KindTransport},
		{"not found", &asaas.APIError{StatusCode: http.StatusNotFound}, KindNotFound},
		{"bad request", &asaas.APIError{StatusCode: http.StatusBadRequest}, KindBusiness},
		{"network", &asaas.TransportError{Operation: "x", Err: errors.New("connection refused")}, KindTransport},
		{"deadline", context.DeadlineExceeded, KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(classify("op", tt.err)); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDeleteInvoiceSefazRejectionIsBusiness(t *testing.T) {
	api := &stubAsaasAPI{err: &asaas.APIError{
		Operation:  "delete_payment",
		StatusCode: http.StatusBadRequest,
		Errors:     []asaas.ErrorItem{{Code: "invalid_action", Description: "A nota fiscal desta cobrança já foi enviada à SEFAZ"}},
	}}
	client := newAdapter(t, api)

	err := client.DeleteInvoice(context.Background(), "pay_1")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Fatal("sefaz rejection must not be retryable")
	}
	if KindOf(err) != KindBusiness {
		t.Fatalf("expected business kind, got %s", KindOf(err))
	}
	if got := Describe(err); got == "" {
		t.Fatal("expected description")
	}
}

func TestDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	api := &stubAsaasAPI{err: &asaas.APIError{StatusCode: http.StatusNotFound}}
	client := newAdapter(t, api)

	if err := client.DeleteSubscription(context.Background(), "sub_gone"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := client.DeleteInvoice(context.Background(), "pay_gone"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestGetSubscriptionDeletedIsNotFound(t *testing.T) {
	api := &stubAsaasAPI{getResp: &asaas.Subscription{ID: "sub_1", Deleted: true}}
	client := newAdapter(t, api)

	_, err := client.GetSubscription(context.Background(), "sub_1")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreatePaymentLinkUsesFirstCharge(t *testing.T) {
	api := &stubAsaasAPI{payments: &asaas.PaymentList{Data: []asaas.Payment{
		{ID: "pay_1", InvoiceURL: "https://invoice/1", Value: decimal.NewFromInt(450)},
	}}}
	client := newAdapter(t, api)

	link, err := client.CreatePaymentLink(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.PaymentID != "pay_1" || link.URL != "https://invoice/1" {
		t.Fatalf("unexpected link %+v", link)
	}

	api.payments = &asaas.PaymentList{}
	if _, err := client.CreatePaymentLink(context.Background(), "sub_1"); !IsRetryable(err) {
		t.Fatalf("missing charge should be retryable, got %v", err)
	}
}
