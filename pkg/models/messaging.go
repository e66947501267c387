package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation kinds
const (
	ConversationKindDirect = "direct"
	ConversationKindGroup  = "group"
	ConversationKindSMS    = "sms"
)

// Participant kinds
const (
	ParticipantKindVirtual = "virtual" // internal user routed via a virtual number
	ParticipantKindSMS     = "sms"     // external contact routed via their real number
)

// Participant roles
const (
	ParticipantRoleAdmin  = "admin"
	ParticipantRoleMember = "member"
)

// Message directions
const (
	MessageDirectionIn  = "in"
	MessageDirectionOut = "out"
)

// Message and delivery statuses
const (
	MessageStatusPending  = "pending"
	MessageStatusSent     = "sent"
	MessageStatusFailed   = "failed"
	MessageStatusReceived = "received"

	DeliveryStatusPending = "pending"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
)

// Conversation represents a set of participants exchanging messages. It is
// never hard-deleted; IsActive=false deactivates it and takes it out of
// inbound routing.
type Conversation struct {
	BaseModel
	Kind          string     `gorm:"not null;check:kind IN ('direct','group','sms')" json:"kind"`
	Name          string     `json:"name"`
	PatientID     *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:RESTRICT" json:"patient_id,omitempty"`
	CreatedByID   uuid.UUID  `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"created_by_id"`
	IsActive      bool       `gorm:"default:true;index" json:"is_active"`
	LastMessageAt *time.Time `json:"last_message_at"`

	// Relations
	Patient      *Patient      `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	CreatedBy    *User         `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// Participant represents one member of a conversation. Virtual participants
// are keyed by UserID and routed via their assigned virtual number; sms
// participants are keyed by their normalized real number, which doubles as
// the routing number. Removal is a soft transition (IsActive=false + LeftAt)
// so former memberships stay auditable; re-adding creates a new row.
type Participant struct {
	BaseModel
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	Kind           string     `gorm:"not null;check:kind IN ('virtual','sms')" json:"kind"`
	UserID         *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:RESTRICT" json:"user_id,omitempty"` // identity key for virtual participants
	Phone          string     `gorm:"size:20;index" json:"phone,omitempty"`                                  // identity key for sms participants (E.164)
	DisplayName    string     `json:"display_name"`
	RoutingNumber  string     `gorm:"size:20;not null;index" json:"routing_number"` // E.164
	Role           string     `gorm:"default:'member';check:role IN ('admin','member')" json:"role"`
	IsActive       bool       `gorm:"default:true;index" json:"is_active"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`

	// Relations
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// IdentityKey returns the stable identity of the participant: the user id for
// virtual participants, the normalized phone number for sms participants.
func (p *Participant) IdentityKey() string {
	if p.Kind == ParticipantKindVirtual && p.UserID != nil {
		return p.UserID.String()
	}
	return p.Phone
}

// Message represents one logical message in a conversation. SenderUserID is
// nil for inbound messages from external parties; SenderPhone then carries
// the raw sender number for display. Status is the aggregate outcome only;
// per-recipient outcomes live on MessageDelivery rows.
type Message struct {
	BaseModel
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	SenderUserID   *uuid.UUID `gorm:"type:uuid;constraint:OnDelete:SET NULL" json:"sender_user_id,omitempty"`
	SenderName     string     `gorm:"size:255" json:"sender_name"`
	SenderPhone    string     `gorm:"size:30" json:"sender_phone,omitempty"`
	Direction      string     `gorm:"not null;check:direction IN ('in','out')" json:"direction"`
	Body           string     `gorm:"type:text" json:"body"`
	Status         string     `gorm:"default:'pending'" json:"status"`
	ExternalID     string     `gorm:"index" json:"external_id,omitempty"` // provider message id for inbound idempotency

	// Relations
	Conversation *Conversation     `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	Deliveries   []MessageDelivery `gorm:"foreignKey:MessageID" json:"deliveries,omitempty"`
}

// MessageDelivery records the outcome of one per-recipient delivery attempt.
// The (message_id, participant_id) pair is unique so a retried send cannot
// create a duplicate delivery for the same recipient.
type MessageDelivery struct {
	BaseModel
	MessageID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_delivery_message_participant;constraint:OnDelete:RESTRICT" json:"message_id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_delivery_message_participant;constraint:OnDelete:RESTRICT" json:"participant_id"`
	Status        string    `gorm:"default:'pending'" json:"status"`
	ProviderSID   string    `gorm:"index" json:"provider_sid,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`

	// Relations
	Participant *Participant `gorm:"foreignKey:ParticipantID" json:"participant,omitempty"`
}
