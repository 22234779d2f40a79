package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CampaignPending   = "PENDING"
	CampaignSending   = "SENDING"
	CampaignCompleted = "COMPLETED"
	CampaignFailed    = "FAILED"
)

const (
	RecipientPending = "PENDING"
	RecipientSent    = "SENT"
	RecipientFailed  = "FAILED"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

type Campaign struct {
	ID        uuid.UUID
	Channel   string
	Subject   string
	Body      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CampaignRecipient row references either a registered user or carries raw contact details
type CampaignRecipient struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	UserID     *uuid.UUID
	User       *User // joined when UserID is set and the user exists
	Contact    *Contact
	Status     string
}

const (
	RecipientKindUser    = "user"
	RecipientKindContact = "contact"
)

// Recipient is the addressable form of either recipient source
type Recipient struct {
	Kind   string     `json:"kind"`
	UserID *uuid.UUID `json:"userId,omitempty"`
	Contact
}

func RegisteredUser(u User) Recipient {
	id := u.ID
	return Recipient{
		Kind:    RecipientKindUser,
		UserID:  &id,
		Contact: Contact{Name: u.Name, Email: u.Email, Phone: u.Phone},
	}
}

func AdHocContact(c Contact) Recipient {
	return Recipient{Kind: RecipientKindContact, Contact: c}
}

// Address returns where the message goes on the channel; empty if the recipient is not reachable there
func (r Recipient) Address(channel string) string {
	switch channel {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	case ChannelPush:
		if r.UserID != nil {
			return r.UserID.String()
		}
		return ""
	default:
		return ""
	}
}

// DeliveryMessage is the payload of a deliver-message job
type DeliveryMessage struct {
	RecipientID uuid.UUID `json:"recipientId"`
	CampaignID  uuid.UUID `json:"campaignId"`
	Channel     string    `json:"channel"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Recipient   Recipient `json:"recipient"`
	Address     string    `json:"address"`
}
