// Package campaign fans a campaign out to per-recipient delivery jobs and tracks its completion.
package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/metrics"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
	"github.com/nkiryanov/yieldmart/internal/service/jobqueue"
)

type enqueuer interface {
	Enqueue(ctx context.Context, r jobqueue.Request) (models.Job, error)
	EnqueueBatch(ctx context.Context, requests []jobqueue.Request) (int, error)
}

// Payload of dispatch-campaign and check-campaign-completion jobs
type Payload struct {
	CampaignID uuid.UUID `json:"campaignId"`
}

type Dispatcher struct {
	storage repository.Storage
	jobs    enqueuer
	logger  logger.Logger
}

func NewDispatcher(storage repository.Storage, jobs enqueuer, l logger.Logger) *Dispatcher {
	return &Dispatcher{
		storage: storage,
		jobs:    jobs,
		logger:  l.With("component", "campaign-dispatcher"),
	}
}

// Register campaign job handlers on the processor
func (d *Dispatcher) Register(p *jobqueue.Processor) {
	p.Register(models.JobKindDispatchCampaign, d.HandleDispatch)
	p.Register(models.JobKindCheckCampaignCompletion, d.HandleCheckCompletion)
}

// EnqueueDispatch queues the fan-out of the campaign
// Returns the already queued job with apperrors.ErrJobAlreadyQueued if the dispatch is pending
func (d *Dispatcher) EnqueueDispatch(ctx context.Context, campaignID uuid.UUID) (models.Job, error) {
	if _, err := d.storage.Campaign().GetCampaign(ctx, campaignID); err != nil {
		return models.Job{}, err
	}

	return d.jobs.Enqueue(ctx, jobqueue.Request{
		Kind:      models.JobKindDispatchCampaign,
		EntityID:  campaignID.String(),
		DedupeKey: "dispatch-campaign:" + campaignID.String(),
		Payload:   Payload{CampaignID: campaignID},
	})
}

// EnqueueCheck queues a completion check unless one is pending already
func (d *Dispatcher) EnqueueCheck(ctx context.Context, campaignID uuid.UUID) error {
	_, err := d.jobs.Enqueue(ctx, jobqueue.Request{
		Kind:      models.JobKindCheckCampaignCompletion,
		EntityID:  campaignID.String(),
		DedupeKey: "check-campaign:" + campaignID.String(),
		Payload:   Payload{CampaignID: campaignID},
	})
	if err != nil && !jobqueue.IsAlreadyQueued(err) {
		return err
	}
	return nil
}

// HandleDispatch enqueues one delivery job per PENDING recipient on the channel queue
// Any failure marks the campaign FAILED and is returned so the job is retried
func (d *Dispatcher) HandleDispatch(ctx context.Context, job models.Job) error {
	p, err := jobqueue.Decode[Payload](job)
	if err != nil {
		return err
	}

	c, err := d.storage.Campaign().GetCampaign(ctx, p.CampaignID)
	switch {
	case errors.Is(err, apperrors.ErrCampaignNotFound):
		return jobqueue.Permanent(err)
	case err != nil:
		return err
	}

	log := d.logger.With("campaign_id", c.ID, "channel", c.Channel)
	if c.Status == models.CampaignCompleted {
		log.Info("Campaign already completed, nothing to dispatch")
		return nil
	}

	if err := d.dispatch(ctx, c, log); err != nil {
		if setErr := d.storage.Campaign().SetCampaignStatus(ctx, c.ID, models.CampaignFailed); setErr != nil {
			log.Error("Failed to mark campaign failed", "error", setErr)
		}
		return fmt.Errorf("dispatch campaign %s: %w", c.ID, err)
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, c models.Campaign, log logger.Logger) error {
	recipients, err := d.storage.Campaign().ListRecipients(ctx, c.ID, models.RecipientPending)
	if err != nil {
		return err
	}

	if len(recipients) == 0 {
		log.Info("Campaign has no pending recipients, completed")
		return d.storage.Campaign().SetCampaignStatus(ctx, c.ID, models.CampaignCompleted)
	}

	if c.Status != models.CampaignSending {
		if err := d.storage.Campaign().SetCampaignStatus(ctx, c.ID, models.CampaignSending); err != nil {
			return err
		}
	}

	requests := make([]jobqueue.Request, 0, len(recipients))
	for _, r := range recipients {
		msg, err := deliveryMessage(c, r)
		if err != nil {
			log.Warn("Recipient skipped", "recipient_id", r.ID, "error", err)
			metrics.CampaignRecipientsUnresolvable.Inc()
			if err := d.storage.Campaign().SetRecipientStatus(ctx, r.ID, models.RecipientFailed); err != nil {
				return err
			}
			continue
		}

		requests = append(requests, jobqueue.Request{
			Kind:      models.JobKindDeliverMessage,
			Queue:     models.DeliveryQueue(c.Channel),
			EntityID:  r.ID.String(),
			DedupeKey: "deliver:" + c.ID.String() + ":" + r.ID.String(),
			Payload:   msg,
		})
	}

	n, err := d.jobs.EnqueueBatch(ctx, requests)
	if err != nil {
		return err
	}
	metrics.CampaignDeliveriesEnqueued.WithLabelValues(c.Channel).Add(float64(n))
	log.Info("Campaign dispatched", "recipients", len(recipients), "enqueued", n, "already_queued", len(requests)-n)

	return d.EnqueueCheck(ctx, c.ID)
}

// HandleCheckCompletion marks the campaign COMPLETED once no recipient is PENDING
func (d *Dispatcher) HandleCheckCompletion(ctx context.Context, job models.Job) error {
	p, err := jobqueue.Decode[Payload](job)
	if err != nil {
		return err
	}

	c, err := d.storage.Campaign().GetCampaign(ctx, p.CampaignID)
	switch {
	case errors.Is(err, apperrors.ErrCampaignNotFound):
		return jobqueue.Permanent(err)
	case err != nil:
		return err
	}
	if c.Status == models.CampaignCompleted {
		return nil
	}

	pending, err := d.storage.Campaign().CountRecipients(ctx, c.ID, models.RecipientPending)
	if err != nil {
		return err
	}
	if pending > 0 {
		d.logger.Debug("Campaign still sending", "campaign_id", c.ID, "pending", pending)
		return nil
	}

	if err := d.storage.Campaign().SetCampaignStatus(ctx, c.ID, models.CampaignCompleted); err != nil {
		return err
	}
	d.logger.Info("Campaign completed", "campaign_id", c.ID)
	return nil
}

// Build the delivery payload from whichever source the recipient row has
func deliveryMessage(c models.Campaign, r models.CampaignRecipient) (models.DeliveryMessage, error) {
	var recipient models.Recipient
	switch {
	case r.User != nil:
		recipient = models.RegisteredUser(*r.User)
	case r.Contact != nil:
		recipient = models.AdHocContact(*r.Contact)
	default:
		return models.DeliveryMessage{}, apperrors.ErrRecipientUnresolvable
	}

	address := recipient.Address(c.Channel)
	if address == "" {
		return models.DeliveryMessage{}, fmt.Errorf("%w: no %s address", apperrors.ErrRecipientUnresolvable, c.Channel)
	}

	return models.DeliveryMessage{
		RecipientID: r.ID,
		CampaignID:  c.ID,
		Channel:     c.Channel,
		Subject:     c.Subject,
		Body:        c.Body,
		Recipient:   recipient,
		Address:     address,
	}, nil
}
