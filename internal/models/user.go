package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is owned by the registration side; this service only reads it
type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Name      string
	Email     string
	Phone     string
	SponsorID *uuid.UUID // nil for root users
}

// CommissionRule is the share of a purchase paid to the ancestor at Level (1 is the direct sponsor)
type CommissionRule struct {
	Level   int
	Percent decimal.Decimal
}
