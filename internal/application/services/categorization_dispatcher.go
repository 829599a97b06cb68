package services

import (
	"context"
	"math"
	"time"

	"github.com/dealsight/backend/internal/domain/entities"
	"github.com/dealsight/backend/internal/domain/repositories"
	"github.com/dealsight/backend/internal/infrastructure/observability"
	"github.com/dealsight/backend/internal/jobqueue"
)

// CategorizationJobPayload identifies the client a categorization job works on.
type CategorizationJobPayload struct {
	ClientID string `json:"client_id"`
	UploadID string `json:"upload_id"`
}

// QueueOutcome reports how many categorization jobs a dispatch created.
type QueueOutcome struct {
	JobsCreated int      `json:"jobs_created"`
	JobIDs      []string `json:"job_ids,omitempty"`
}

// ProgressClient is the per-client detail attached to a progress snapshot.
type ProgressClient struct {
	JobID       string                 `json:"job_id"`
	State       jobqueue.JobState      `json:"state"`
	ClientID    string                 `json:"client_id"`
	Email       string                 `json:"email,omitempty"`
	Name        string                 `json:"name,omitempty"`
	Categorized bool                   `json:"categorized"`
	Data        *entities.CategoryData `json:"data,omitempty"`
}

// UploadProgress is a pull-based snapshot of one upload's categorization jobs.
type UploadProgress struct {
	Total     int              `json:"total"`
	Waiting   int              `json:"waiting"`
	Active    int              `json:"active"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Progress  int              `json:"progress"`
	Clients   []ProgressClient `json:"clients,omitempty"`
}

// progressDetailLimit caps how many jobs get client detail joined in.
const progressDetailLimit = 20

// CategorizationDispatcher fans an upload out into one categorization job
// per uncategorized client and exposes a progress view over those jobs.
type CategorizationDispatcher struct {
	queue           *jobqueue.Manager
	clients         repositories.ClientRepository
	categorizations repositories.CategorizationRepository
	retry           jobqueue.Options
}

// NewCategorizationDispatcher creates a new categorization dispatcher
func NewCategorizationDispatcher(
	queue *jobqueue.Manager,
	clients repositories.ClientRepository,
	categorizations repositories.CategorizationRepository,
) *CategorizationDispatcher {
	return &CategorizationDispatcher{
		queue:           queue,
		clients:         clients,
		categorizations: categorizations,
		retry: jobqueue.Options{
			Attempts:         3,
			Backoff:          jobqueue.Backoff{Type: jobqueue.BackoffExponential, Delay: 2 * time.Second},
			RetainOnComplete: true,
			RetainOnFail:     true,
		},
	}
}

// QueueForUpload enqueues one categorization job per uncategorized client in
// the upload. Already categorized clients are skipped, so re-dispatching an
// upload only retries the remainder.
func (d *CategorizationDispatcher) QueueForUpload(ctx context.Context, uploadID string) (*QueueOutcome, error) {
	clients, err := d.clients.ListUncategorizedByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return &QueueOutcome{}, nil
	}

	outcome := &QueueOutcome{JobIDs: make([]string, 0, len(clients))}
	for _, client := range clients {
		job, err := d.queue.Enqueue(ctx, jobqueue.QueueCategorization, CategorizationJobPayload{
			ClientID: client.ID,
			UploadID: uploadID,
		}, d.retry)
		if err != nil {
			return outcome, err
		}
		outcome.JobsCreated++
		outcome.JobIDs = append(outcome.JobIDs, job.ID())
	}

	observability.LoggerFromContext(ctx).Info().
		Str("upload_id", uploadID).
		Int("jobs_created", outcome.JobsCreated).
		Msg("dispatched categorization jobs")
	return outcome, nil
}

// UploadProgress snapshots the categorization queue, filters to this
// upload's jobs and computes per-state counts. The first few jobs get
// client detail joined in for UI display. Callers poll this view.
func (d *CategorizationDispatcher) UploadProgress(ctx context.Context, uploadID string) (*UploadProgress, error) {
	snapshots := d.queue.ListJobs(jobqueue.QueueCategorization)

	progress := &UploadProgress{}
	var mine []jobqueue.JobSnapshot
	for _, snap := range snapshots {
		payload, ok := snap.Payload.(CategorizationJobPayload)
		if !ok || payload.UploadID != uploadID {
			continue
		}
		mine = append(mine, snap)

		progress.Total++
		switch snap.State {
		case jobqueue.JobStateWaiting:
			progress.Waiting++
		case jobqueue.JobStateActive:
			progress.Active++
		case jobqueue.JobStateCompleted:
			progress.Completed++
		case jobqueue.JobStateFailed:
			progress.Failed++
		}
	}
	if progress.Total == 0 {
		return progress, nil
	}
	progress.Progress = int(math.Round(float64(progress.Completed) / float64(progress.Total) * 100))

	detail := mine
	if len(detail) > progressDetailLimit {
		detail = detail[:progressDetailLimit]
	}
	clients, categorizations, err := d.loadDetail(ctx, detail)
	if err != nil {
		return nil, err
	}

	for _, snap := range detail {
		payload := snap.Payload.(CategorizationJobPayload)
		pc := ProgressClient{
			JobID:    snap.ID,
			State:    snap.State,
			ClientID: payload.ClientID,
		}
		if client, ok := clients[payload.ClientID]; ok {
			pc.Email = client.Email
			pc.Name = client.Name
		}
		if categorization, ok := categorizations[payload.ClientID]; ok {
			pc.Categorized = true
			pc.Data = &categorization.Data
		}
		progress.Clients = append(progress.Clients, pc)
	}
	return progress, nil
}

func (d *CategorizationDispatcher) loadDetail(ctx context.Context, snapshots []jobqueue.JobSnapshot) (map[string]*entities.Client, map[string]*entities.Categorization, error) {
	ids := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		ids = append(ids, snap.Payload.(CategorizationJobPayload).ClientID)
	}

	clientList, err := d.clients.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	clients := make(map[string]*entities.Client, len(clientList))
	for _, c := range clientList {
		clients[c.ID] = c
	}

	categorizations, err := d.categorizations.GetByClientIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return clients, categorizations, nil
}
