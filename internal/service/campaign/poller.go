package campaign

import (
	"context"
	"time"

	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
)

const (
	defaultPollInterval = time.Minute
	pollBatch           = 1000
)

// Poller keeps a completion check queued for every SENDING campaign
type Poller struct {
	interval   time.Duration
	storage    repository.Storage
	dispatcher *Dispatcher
	logger     logger.Logger
}

func NewPoller(interval time.Duration, storage repository.Storage, dispatcher *Dispatcher, l logger.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		interval:   interval,
		storage:    storage,
		dispatcher: dispatcher,
		logger:     l.With("component", "campaign-poller"),
	}
}

func (p *Poller) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting campaign poller", "interval", p.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Campaign poller stopped by context")
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()

	return idleStopped
}

func (p *Poller) Tick(ctx context.Context) {
	campaigns, err := p.storage.Campaign().ListCampaigns(ctx, models.CampaignSending, pollBatch)
	if err != nil {
		p.logger.Error("Failed to list sending campaigns", "error", err)
		return
	}

	for _, c := range campaigns {
		if err := p.dispatcher.EnqueueCheck(ctx, c.ID); err != nil {
			p.logger.Error("Failed to enqueue completion check", "campaign_id", c.ID, "error", err)
		}
	}
}
