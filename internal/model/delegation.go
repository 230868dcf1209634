package model

import (
	"time"

	"github.com/google/uuid"
)

// Delegation is a time-bounded grant letting one user act as another approver
// during holiday cover. It is effective only while Active and the current time
// falls within [StartsAt, EndsAt]; a nil bound is open-ended.
type Delegation struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrgID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"org_id"`
	ApproverUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"approver_user_id"` // who is covered
	ApproverUser   *User      `gorm:"foreignKey:ApproverUserID" json:"approver_user,omitempty"`
	DelegateUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"delegate_user_id"` // who may act
	DelegateUser   *User      `gorm:"foreignKey:DelegateUserID" json:"delegate_user,omitempty"`
	Active         bool       `gorm:"not null;default:true" json:"active"`
	StartsAt       *time.Time `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at"`
	Note           string     `gorm:"type:text" json:"note"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EffectiveAt reports whether the delegation authorizes its delegate at the
// given instant.
func (d *Delegation) EffectiveAt(t time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && t.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && t.After(*d.EndsAt) {
		return false
	}
	return true
}
