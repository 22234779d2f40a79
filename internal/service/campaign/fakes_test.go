package campaign

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
	"github.com/nkiryanov/yieldmart/internal/repository"
	"github.com/nkiryanov/yieldmart/internal/service/jobqueue"
)

type fakeCampaigns struct {
	campaigns  map[uuid.UUID]models.Campaign
	recipients []models.CampaignRecipient
	listErr    error
	statuses   []string
}

type fakeStorage struct {
	repository.Storage
	campaigns *fakeCampaigns
}

func newFakeStorage(campaigns ...models.Campaign) *fakeStorage {
	fc := &fakeCampaigns{campaigns: map[uuid.UUID]models.Campaign{}}
	for _, c := range campaigns {
		fc.campaigns[c.ID] = c
	}
	return &fakeStorage{campaigns: fc}
}

func (s *fakeStorage) Campaign() repository.CampaignRepo {
	return s.campaigns
}

func (f *fakeCampaigns) GetCampaign(_ context.Context, id uuid.UUID) (models.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return c, apperrors.ErrCampaignNotFound
	}
	return c, nil
}

func (f *fakeCampaigns) ListCampaigns(_ context.Context, status string, limit int) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range f.campaigns {
		if c.Status == status && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) SetCampaignStatus(_ context.Context, id uuid.UUID, status string) error {
	c, ok := f.campaigns[id]
	if !ok {
		return apperrors.ErrCampaignNotFound
	}
	c.Status = status
	f.campaigns[id] = c
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeCampaigns) ListRecipients(_ context.Context, id uuid.UUID, status string) ([]models.CampaignRecipient, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.CampaignRecipient
	for _, r := range f.recipients {
		if r.CampaignID == id && r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) CountRecipients(ctx context.Context, id uuid.UUID, status string) (int, error) {
	rs, err := f.ListRecipients(ctx, id, status)
	return len(rs), err
}

func (f *fakeCampaigns) SetRecipientStatus(_ context.Context, id uuid.UUID, status string) error {
	for i := range f.recipients {
		if f.recipients[i].ID == id {
			f.recipients[i].Status = status
			return nil
		}
	}
	return apperrors.ErrCampaignNotFound
}

func (f *fakeCampaigns) recipientStatus(id uuid.UUID) string {
	for _, r := range f.recipients {
		if r.ID == id {
			return r.Status
		}
	}
	return ""
}

// Records requests and applies dedupe keys like the real queue
type fakeJobs struct {
	mu       sync.Mutex
	requests []jobqueue.Request
	keys     map[string]bool
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{keys: map[string]bool{}}
}

func (f *fakeJobs) Enqueue(_ context.Context, r jobqueue.Request) (models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.DedupeKey != "" && f.keys[r.DedupeKey] {
		return models.Job{Kind: r.Kind}, apperrors.ErrJobAlreadyQueued
	}
	f.keys[r.DedupeKey] = true
	f.requests = append(f.requests, r)
	return models.Job{ID: uuid.New(), Kind: r.Kind, Status: models.JobQueued}, nil
}

func (f *fakeJobs) EnqueueBatch(ctx context.Context, requests []jobqueue.Request) (int, error) {
	n := 0
	for _, r := range requests {
		if _, err := f.Enqueue(ctx, r); err == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobs) ofKind(kind string) []jobqueue.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []jobqueue.Request
	for _, r := range f.requests {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
