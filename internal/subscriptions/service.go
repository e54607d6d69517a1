package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/internal/gateway"
	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Pricer resolves the gross price of a paid plan.
type Pricer interface {
	Price(owner enums.OwnerType, plan enums.SubscriptionPlan, interval enums.BillingInterval) (decimal.Decimal, error)
	DefaultInterval() enums.BillingInterval
}

type couponEngine interface {
	Validate(ctx context.Context, input coupons.ValidateInput) (*coupons.Result, error)
	Apply(ctx context.Context, tx *gorm.DB, input coupons.ApplyInput) (bool, error)
}

type operationQueue interface {
	Enqueue(ctx context.Context, tx *gorm.DB, input pendingops.EnqueueInput) (*models.PendingPaymentOperation, error)
}

// Service owns the subscription state machine.
type Service interface {
	CreateOrUpgrade(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	ActivateTrial(ctx context.Context, input TrialInput) (*models.Subscription, error)
	ActivateTriggerTrial(ctx context.Context, requester Requester) (*models.Subscription, error)
	Cancel(ctx context.Context, input CancelInput) (*CancelResult, error)
	RevertCancellation(ctx context.Context, requester Requester) (*RevertResult, error)
	GetCurrent(ctx context.Context, owner billing.Owner) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo         billing.Repository
	Coupons             couponEngine
	Pricer              Pricer
	Gateway             gateway.Client
	PendingOps          operationQueue
	Outbox              *outbox.Service
	TransactionRunner   txRunner
	Logger              *logger.Logger
	Config              config.BillingConfig
	TriggerTrialEnabled bool
	Now                 func() time.Time
}

// Requester is the authenticated owner acting on its own subscription.
type Requester struct {
	Owner  billing.Owner
	UserID uuid.UUID
	Email  string
	Name   string
}

func (r Requester) identity() coupons.Identity {
	return coupons.Identity{UserID: r.UserID, Email: r.Email, OwnerType: r.Owner.Type}
}

func (r Requester) actor() *outbox.ActorRef {
	ownerID := r.Owner.ID
	return &outbox.ActorRef{UserID: r.UserID, OwnerType: r.Owner.Type, OwnerID: &ownerID, Role: "owner"}
}

type service struct {
	repo           billing.Repository
	coupons        couponEngine
	pricer         Pricer
	gateway        gateway.Client
	pending        operationQueue
	outbox         *outbox.Service
	txRunner       txRunner
	logg           *logger.Logger
	cfg            config.BillingConfig
	triggerEnabled bool
	now            func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if params.Pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.PendingOps == nil {
		return nil, fmt.Errorf("pending operation queue required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	cfg := params.Config
	if cfg.TriggerTrialDays <= 0 {
		cfg.TriggerTrialDays = 7
	}
	if strings.TrimSpace(cfg.PaymentDescription) == "" {
		cfg.PaymentDescription = "Cuidly subscription"
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:           params.BillingRepo,
		coupons:        params.Coupons,
		pricer:         params.Pricer,
		gateway:        params.Gateway,
		pending:        params.PendingOps,
		outbox:         params.Outbox,
		txRunner:       params.TransactionRunner,
		logg:           params.Logger,
		cfg:            cfg,
		triggerEnabled: params.TriggerTrialEnabled,
		now:            now,
	}, nil
}

// GetCurrent returns the owner's subscription row.
func (s *service) GetCurrent(ctx context.Context, owner billing.Owner) (*models.Subscription, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

// gatewayFailure turns a failed provisioning call into a caller-facing error.
func gatewayFailure(err error, action string) error {
	if gateway.KindOf(err) == gateway.KindTransport {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable while trying to "+action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("payment gateway rejected %s: %s", action, gateway.Describe(err)))
}

func (s *service) logContext(ctx context.Context, owner billing.Owner, subscriptionID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithOwner(ctx, string(owner.Type), owner.ID.String())
	if subscriptionID != uuid.Nil {
		ctx = s.logg.WithSubscriptionID(ctx, subscriptionID.String())
	}
	return ctx
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
