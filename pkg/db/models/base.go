package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a primary key client-side so every dialect (sqlite included)
// gets a stable identifier without relying on gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (s *Subscription) BeforeCreate(_ *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (c *Coupon) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (c *CouponAllowedUser) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (c *CouponUsage) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (p *PendingPaymentOperation) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (p *Payment) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (w *WebhookEvent) BeforeCreate(_ *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

func (o *OutboxEvent) BeforeCreate(_ *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
