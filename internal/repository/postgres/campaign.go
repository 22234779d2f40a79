package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
)

type CampaignRepo struct {
	DB DBTX
}

const campaignColumns = `id, channel, subject, body, status, created_at, updated_at`

func (r *CampaignRepo) GetCampaign(ctx context.Context, campaignID uuid.UUID) (models.Campaign, error) {
	getCampaign := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	rows, _ := r.DB.Query(ctx, getCampaign, campaignID)
	campaign, err := pgx.CollectOneRow(rows, rowToCampaign)

	switch {
	case err == nil:
		return campaign, nil
	case errors.Is(err, pgx.ErrNoRows):
		return campaign, apperrors.ErrCampaignNotFound
	default:
		return campaign, fmt.Errorf("db error: %w", err)
	}
}

func (r *CampaignRepo) ListCampaigns(ctx context.Context, status string, limit int) ([]models.Campaign, error) {
	listCampaigns := `SELECT ` + campaignColumns + ` FROM campaigns
	WHERE status = $1
	ORDER BY updated_at, id
	LIMIT $2
	`

	rows, _ := r.DB.Query(ctx, listCampaigns, status, limit)
	campaigns, err := pgx.CollectRows(rows, rowToCampaign)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return campaigns, nil
}

func (r *CampaignRepo) SetCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) error {
	const setStatus = `-- name: SetCampaignStatus
	UPDATE campaigns SET status = $2, updated_at = now()
	WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, setStatus, campaignID, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCampaignNotFound
	}

	return nil
}

// Registered users are joined; a dangling user reference comes back with nil User
const listRecipients = `-- name: ListRecipients
SELECT
	r.id, r.campaign_id, r.user_id, r.contact_name, r.contact_email, r.contact_phone, r.status,
	u.id, u.created_at, u.name, u.email, u.phone, u.sponsor_id
FROM campaign_recipients r
LEFT JOIN users u ON u.id = r.user_id
WHERE r.campaign_id = $1 AND r.status = $2
ORDER BY r.created_at, r.id
`

func (r *CampaignRepo) ListRecipients(ctx context.Context, campaignID uuid.UUID, status string) ([]models.CampaignRecipient, error) {
	rows, _ := r.DB.Query(ctx, listRecipients, campaignID, status)
	recipients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CampaignRecipient, error) {
		var (
			rc                                      models.CampaignRecipient
			contactName, contactEmail, contactPhone *string
			userID                                  *uuid.UUID
			userCreatedAt                           pgtype.Timestamptz
			userName, userEmail, userPhone          *string
			sponsorID                               *uuid.UUID
		)

		err := row.Scan(
			&rc.ID, &rc.CampaignID, &rc.UserID, &contactName, &contactEmail, &contactPhone, &rc.Status,
			&userID, &userCreatedAt, &userName, &userEmail, &userPhone, &sponsorID,
		)
		if err != nil {
			return rc, err
		}

		if userID != nil {
			rc.User = &models.User{
				ID:        *userID,
				CreatedAt: userCreatedAt.Time,
				Name:      deref(userName),
				Email:     deref(userEmail),
				Phone:     deref(userPhone),
				SponsorID: sponsorID,
			}
		}
		if contactName != nil || contactEmail != nil || contactPhone != nil {
			rc.Contact = &models.Contact{
				Name:  deref(contactName),
				Email: deref(contactEmail),
				Phone: deref(contactPhone),
			}
		}

		return rc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return recipients, nil
}

func (r *CampaignRepo) CountRecipients(ctx context.Context, campaignID uuid.UUID, status string) (int, error) {
	const countRecipients = `-- name: CountRecipients
	SELECT count(*) FROM campaign_recipients
	WHERE campaign_id = $1 AND status = $2
	`

	var n int
	err := r.DB.QueryRow(ctx, countRecipients, campaignID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *CampaignRepo) SetRecipientStatus(ctx context.Context, recipientID uuid.UUID, status string) error {
	const setStatus = `-- name: SetRecipientStatus
	UPDATE campaign_recipients SET status = $2, updated_at = now()
	WHERE id = $1
	`

	_, err := r.DB.Exec(ctx, setStatus, recipientID, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func rowToCampaign(row pgx.CollectableRow) (models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.Channel, &c.Subject, &c.Body, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
