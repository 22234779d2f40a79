package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/yieldmart/internal/models"
)

// Users, plans and campaigns are owned by other services, so fixtures write them with plain SQL

// Satisfied by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func CreateUser(t *testing.T, db Querier, name string, sponsorID *uuid.UUID) models.User {
	t.Helper()

	u := models.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Phone: "+100000000", SponsorID: sponsorID}
	err := db.QueryRow(t.Context(), `
	INSERT INTO users (id, name, email, phone, sponsor_id) VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at
	`, u.ID, u.Name, u.Email, u.Phone, u.SponsorID).Scan(&u.CreatedAt)
	require.NoError(t, err, "user fixture has to be created ok")

	return u
}

// CreateSponsorChain creates n users where every next one sponsors the previous
// The first user is the buyer and the last one has no sponsor
func CreateSponsorChain(t *testing.T, db Querier, n int) []models.User {
	t.Helper()

	chain := make([]models.User, n)
	var sponsorID *uuid.UUID
	for i := n - 1; i >= 0; i-- {
		chain[i] = CreateUser(t, db, fmt.Sprintf("level-%d-%s", i, uuid.NewString()[:8]), sponsorID)
		sponsorID = &chain[i].ID
	}

	return chain
}

// CreatePlan stores p, zero fields get a 30 day DAILY plan yielding 15 percent with stakes 100..10000
func CreatePlan(t *testing.T, db Querier, p models.Plan) models.Plan {
	t.Helper()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PayoutFrequency == "" {
		p.PayoutFrequency = models.FrequencyDaily
	}
	if p.Name == "" {
		p.Name = "plan-" + p.PayoutFrequency
	}
	if p.DurationDays == 0 {
		p.DurationDays = 30
	}
	if p.YieldPercent.IsZero() {
		p.YieldPercent = decimal.NewFromInt(15)
	}
	if p.MinStake.IsZero() {
		p.MinStake = decimal.NewFromInt(100)
	}
	if p.MaxStake.IsZero() {
		p.MaxStake = decimal.NewFromInt(10000)
	}

	_, err := db.Exec(t.Context(), `
	INSERT INTO plans (id, name, duration_days, yield_percent, payout_frequency, min_stake, max_stake)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.DurationDays, p.YieldPercent, p.PayoutFrequency, p.MinStake, p.MaxStake)
	require.NoError(t, err, "plan fixture has to be created ok")

	return p
}

func CreateCampaign(t *testing.T, db Querier, channel string) models.Campaign {
	t.Helper()

	c := models.Campaign{ID: uuid.New(), Channel: channel, Subject: "Hello", Body: "World", Status: models.CampaignPending}
	err := db.QueryRow(t.Context(), `
	INSERT INTO campaigns (id, channel, subject, body, status) VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at, updated_at
	`, c.ID, c.Channel, c.Subject, c.Body, c.Status).Scan(&c.CreatedAt, &c.UpdatedAt)
	require.NoError(t, err, "campaign fixture has to be created ok")

	return c
}

// AddRecipient adds a PENDING recipient: a registered user or an ad hoc contact
func AddRecipient(t *testing.T, db Querier, campaignID uuid.UUID, userID *uuid.UUID, contact *models.Contact) uuid.UUID {
	t.Helper()

	var name, email, phone *string
	if contact != nil {
		name, email, phone = &contact.Name, &contact.Email, &contact.Phone
	}

	id := uuid.New()
	_, err := db.Exec(t.Context(), `
	INSERT INTO campaign_recipients (id, campaign_id, user_id, contact_name, contact_email, contact_phone, status)
	VALUES ($1, $2, $3, $4, $5, $6, 'PENDING')
	`, id, campaignID, userID, name, email, phone)
	require.NoError(t, err, "recipient fixture has to be created ok")

	return id
}
