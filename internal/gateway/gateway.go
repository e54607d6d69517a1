// Package gateway defines the capability surface the billing engine needs
// from the external payment processor.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the narrow set of gateway calls used by the billing engine.
// Every returned error is a *Error.
type Client interface {
	CreateCustomer(ctx context.Context, input CustomerInput) (Customer, error)
	CreateSubscription(ctx context.Context, input SubscriptionInput) (Subscription, error)
	CreatePaymentLink(ctx context.Context, externalSubscriptionID string) (PaymentLink, error)
	GetSubscription(ctx context.Context, externalSubscriptionID string) (Subscription, error)
	DeleteSubscription(ctx context.Context, externalSubscriptionID string) error
	DeleteInvoice(ctx context.Context, externalPaymentID string) error
}

type CustomerInput struct {
	Name              string
	Email             string
	ExternalReference string
}

type Customer struct {
	ID string
}

// SubscriptionInput describes a recurring charge to provision.
type SubscriptionInput struct {
	CustomerID        string
	Value             decimal.Decimal
	Cycle             string
	NextDueDate       time.Time
	Description       string
	ExternalReference string
}

type Subscription struct {
	ID          string
	CustomerID  string
	Status      string
	Value       decimal.Decimal
	NextDueDate string
}

// PaymentLink is the hosted invoice of a subscription's first charge.
type PaymentLink struct {
	PaymentID string
	URL       string
	Amount    decimal.Decimal
}

// Kind classifies a failed gateway call.
type Kind string

const (
	// KindTransport covers timeouts, network failures, 5xx and an open breaker.
	KindTransport Kind = "transport"
	// KindBusiness covers rejections that will not succeed on retry.
	KindBusiness Kind = "business"
	KindNotFound Kind = "not_found"
)

// Error is the only error type returned by Client implementations.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("gateway %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway %s (%s): %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the call may succeed when replayed later.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindTransport
}

// NewError builds a classified gateway error.
func NewError(op string, kind Kind, message string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: cause}
}

// KindOf returns the classification of err; unclassified errors are transport
// failures because their outcome is unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransport
}

func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransport
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// Describe returns the human readable part of a gateway failure.
func Describe(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
