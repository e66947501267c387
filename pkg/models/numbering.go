package models

import (
	"time"

	"github.com/google/uuid"
)

// VirtualNumber represents a phone number owned by the allocator pool. A row
// with a nil AssignedUserID is unassigned inventory; an assigned row stays
// stable until explicitly released. The unique indexes on number and on
// assigned_user_id are the authoritative arbiters for allocation races; any
// in-memory bookkeeping is a cache on top of them.
type VirtualNumber struct {
	BaseModel
	Number         string     `gorm:"size:20;not null;uniqueIndex" json:"number"` // E.164
	AssignedUserID *uuid.UUID `gorm:"type:uuid;uniqueIndex;constraint:OnDelete:RESTRICT" json:"assigned_user_id,omitempty"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`

	// Relations
	AssignedUser *User `gorm:"foreignKey:AssignedUserID" json:"assigned_user,omitempty"`
}
