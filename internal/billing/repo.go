package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/devfurlan/cuidly-sub007/internal/repo"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// Repository handles subscription and payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOwner(ctx context.Context, owner Owner) (*models.Subscription, error)
	FindByOwnerForUpdate(ctx context.Context, owner Owner) (*models.Subscription, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByExternalSubscriptionID(ctx context.Context, externalID string) (*models.Subscription, error)
	UpsertByOwner(ctx context.Context, owner Owner, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.SubscriptionStatus, updates map[string]any) (int64, error)
	ListExpiredTrials(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]models.Subscription, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	ListOpenPayments(ctx context.Context, subscriptionID uuid.UUID) ([]models.Payment, error)
	FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error)
}

// upsertColumns are rewritten when a second checkout hits an existing owner;
// id, owner and created_at are preserved.
var upsertColumns = []string{
	"plan",
	"billing_interval",
	"status",
	"payment_gateway",
	"external_customer_id",
	"external_subscription_id",
	"current_period_start",
	"current_period_end",
	"trial_end_date",
	"cancel_at_period_end",
	"canceled_at",
	"cancel_reason",
	"applied_coupon_id",
	"discount_amount",
	"trigger_trial_used_at",
	"updated_at",
}

type repository struct {
	repo.Base
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindByOwner(ctx context.Context, owner Owner) (*models.Subscription, error) {
	return repo.First[models.Subscription](r.DB(ctx).Where(owner.Column()+" = ?", owner.ID))
}

// FindByOwnerForUpdate re-reads the owner's row under a row lock so the
// caller's precondition checks see the latest committed state.
func (r *repository) FindByOwnerForUpdate(ctx context.Context, owner Owner) (*models.Subscription, error) {
	return repo.First[models.Subscription](r.Locked(ctx).Where(owner.Column()+" = ?", owner.ID))
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return repo.First[models.Subscription](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) FindByExternalSubscriptionID(ctx context.Context, externalID string) (*models.Subscription, error) {
	if externalID == "" {
		return nil, nil
	}
	return repo.First[models.Subscription](r.DB(ctx).Where("external_subscription_id = ?", externalID))
}

// UpsertByOwner inserts the row or, when the owner already holds one, updates
// it in place. The stored row is loaded back into subscription.
func (r *repository) UpsertByOwner(ctx context.Context, owner Owner, subscription *models.Subscription) error {
	owner.Apply(subscription)
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: owner.Column()}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(subscription).Error
	if err != nil {
		return err
	}
	stored, err := r.FindByOwner(ctx, owner)
	if err != nil {
		return err
	}
	if stored == nil {
		return gorm.ErrRecordNotFound
	}
	*subscription = *stored
	return nil
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.DB(ctx).Save(subscription).Error
}

// TransitionStatus applies updates only while the row is still in one of the
// from statuses and returns the number of rows changed.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.SubscriptionStatus, updates map[string]any) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListExpiredTrials returns trialing rows whose trial ended before now and
// that can be resolved: cardless trials at once, gateway-backed trials only
// after grace has also elapsed.
func (r *repository) ListExpiredTrials(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	err := r.DB(ctx).
		Where("status = ?", enums.SubscriptionStatusTrialing).
		Where("trial_end_date IS NOT NULL AND trial_end_date < ?", now).
		Where("(external_subscription_id IS NULL OR external_subscription_id = '' OR trial_end_date < ?)", now.Add(-grace)).
		Order("trial_end_date ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Save(payment).Error
}

// ListOpenPayments returns charges that were issued by the gateway and may
// still be canceled.
func (r *repository) ListOpenPayments(ctx context.Context, subscriptionID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.DB(ctx).
		Where("subscription_id = ?", subscriptionID).
		Where("status IN ?", enums.OpenPaymentStatuses).
		Where("external_payment_id IS NOT NULL AND external_payment_id <> ''").
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error) {
	if externalPaymentID == "" {
		return nil, nil
	}
	return repo.First[models.Payment](r.DB(ctx).Where("external_payment_id = ?", externalPaymentID))
}
