package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase is the completion event delivered (at least once) by the checkout side
type Purchase struct {
	ID               string
	BuyerID          uuid.UUID
	Amount           decimal.Decimal
	IsCommissionable bool

	// Set when the purchase buys a stake in a plan
	PlanID *uuid.UUID
}
