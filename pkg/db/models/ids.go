package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a v4 UUID when the caller did not supply one. Ids are set
// client side so the same models work on Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (b *Balance) BeforeCreate(*gorm.DB) error           { ensureID(&b.ID); return nil }
func (c *CostLayer) BeforeCreate(*gorm.DB) error         { ensureID(&c.ID); return nil }
func (m *Movement) BeforeCreate(*gorm.DB) error          { ensureID(&m.ID); return nil }
func (r *Reservation) BeforeCreate(*gorm.DB) error       { ensureID(&r.ID); return nil }
func (a *AuditRecord) BeforeCreate(*gorm.DB) error       { ensureID(&a.ID); return nil }
func (s *SeparationOrder) BeforeCreate(*gorm.DB) error   { ensureID(&s.ID); return nil }
func (s *SeparationItem) BeforeCreate(*gorm.DB) error    { ensureID(&s.ID); return nil }
func (s *SeparationMessage) BeforeCreate(*gorm.DB) error { ensureID(&s.ID); return nil }
func (r *ReplenishmentRule) BeforeCreate(*gorm.DB) error { ensureID(&r.ID); return nil }
func (i *Item) BeforeCreate(*gorm.DB) error              { ensureID(&i.ID); return nil }
func (b *BOMComponent) BeforeCreate(*gorm.DB) error      { ensureID(&b.ID); return nil }
func (o *OutboxEvent) BeforeCreate(*gorm.DB) error       { ensureID(&o.ID); return nil }
func (o *OutboxDLQ) BeforeCreate(*gorm.DB) error         { ensureID(&o.ID); return nil }
