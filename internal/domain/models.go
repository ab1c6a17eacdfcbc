// Package domain defines the persistence models for users, conversations,
// messages, feedback and notifications. These types are mapped with GORM and form the
// core data layer of the social backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// User is the minimal profile the delivery core needs: an identity that can
// own notifications and take part in conversations.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name.
//   - LastSeenAt: refreshed whenever the user reads a conversation.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID         string     `json:"id"           gorm:"type:char(36);primaryKey"`
	Name       string     `json:"name"         gorm:"type:varchar(255);not null"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation is a direct-message thread between participants. The latest
// message pointer is denormalized for cheap conversation listings.
type Conversation struct {
	ID              string    `json:"id"                          gorm:"type:char(36);primaryKey"`
	IsGroup         bool      `json:"is_group"                    gorm:"not null;default:false"`
	LatestMessageID *string   `json:"latest_message_id,omitempty" gorm:"type:char(36)"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"                  gorm:"index"`

	// Participants are cascade-deleted with the conversation.
	Participants []ConversationParticipant `json:"participants,omitempty" gorm:"foreignKey:ConversationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ConversationParticipant joins users to conversations.
type ConversationParticipant struct {
	ConversationID string `json:"conversation_id" gorm:"type:char(36);primaryKey"`
	UserID         string `json:"user_id"         gorm:"type:char(36);primaryKey;index"`

	User User `json:"user" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationParticipant.
func (ConversationParticipant) TableName() string { return "conversation_participants" }

// Message is a single direct message inside a conversation.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: owning conversation (indexed with CreatedAt for newest-first scans).
//   - SenderID: author.
//   - Text: message body.
//   - IsRead: set by the recipient.
//   - CreatedAt: insertion timestamp; drives long-poll checkpoints.
//   - DeletedAt: soft deletion marker.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	SenderID       string         `json:"sender_id"       gorm:"type:char(36);not null;index"`
	Text           string         `json:"text"            gorm:"type:text;not null"`
	IsRead         bool           `json:"is_read"         gorm:"not null;default:false"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is an event addressed to a recipient. Types says through which
// channels it is meant to travel (push, message, email, sms); Category says
// what it is about.
type Notification struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	RecipientID  string    `json:"recipient_id"  gorm:"type:char(36);not null;index:idx_recipient_notifs,priority:1"`
	InitiatorID  string    `json:"initiator_id"  gorm:"type:char(36);not null"`
	Types        TypeSet   `json:"type"          gorm:"type:varchar(64);not null"`
	Category     string    `json:"category"      gorm:"type:varchar(32);not null;index"`
	ResourceType string    `json:"resource_type" gorm:"type:varchar(32)"`
	ResourceID   *string   `json:"resource_id,omitempty" gorm:"type:char(36)"`
	Content      *string   `json:"content,omitempty"     gorm:"type:text"`
	IsRead       bool      `json:"is_read"       gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index:idx_recipient_notifs,priority:2"`
	UpdatedAt    time.Time `json:"updated_at"`

	Recipient User `json:"-" gorm:"foreignKey:RecipientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Initiator User `json:"-" gorm:"foreignKey:InitiatorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Feedback is a written review one user leaves on another. Guide names the
// aspect being reviewed (e.g. "communication"); Text is the review itself.
// Leaving feedback raises a push notification for the subject.
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	OwnerID   string    `json:"owner_id"   gorm:"type:char(36);not null;index"`
	SubjectID string    `json:"subject_id" gorm:"type:char(36);not null;index:idx_subject_feedback,priority:1"`
	Guide     string    `json:"guide"      gorm:"type:varchar(255);not null"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_subject_feedback,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner   User `json:"-" gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Subject User `json:"-" gorm:"foreignKey:SubjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedbacks" }

// PollCheckpoint persists the last delivered timestamp of a stream when the
// durable checkpoint backend is selected.
type PollCheckpoint struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	Millis    int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

// TableName returns the database table name for PollCheckpoint.
func (PollCheckpoint) TableName() string { return "poll_checkpoints" }
