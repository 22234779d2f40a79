package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobQueued    = "QUEUED"
	JobRunning   = "RUNNING"
	JobSucceeded = "SUCCEEDED"
	JobFailed    = "FAILED"
)

const (
	JobKindDispatchCampaign        = "dispatch-campaign"
	JobKindCheckCampaignCompletion = "check-campaign-completion"
	JobKindDeliverMessage          = "deliver-message"
)

const (
	DefaultQueue          = "default"
	DefaultJobMaxAttempts = 5
)

// DeliveryQueue is the channel specific queue consumed by external senders
func DeliveryQueue(channel string) string {
	return "delivery." + channel
}

type Job struct {
	ID          uuid.UUID
	Kind        string
	Version     int
	Queue       string
	EntityID    string
	DedupeKey   *string
	Payload     json.RawMessage
	Status      string
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LeaseUntil  *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}
