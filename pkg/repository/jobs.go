package repository

import (
	"context"
	"fmt"

	"ShopPilot/pkg/model"

	"github.com/google/uuid"
)

func (r *Repository) activeJobLocked(orgID, orderID, lineItemID, excludeID string) *model.FulfillmentJob {
	for _, id := range r.jobOrder {
		job := r.jobs[id]
		if job.ID == excludeID || !job.Status.IsActive() {
			continue
		}
		if job.OrgID == orgID && job.OrderID == orderID && job.LineItemID == lineItemID {
			return job
		}
	}
	return nil
}

// CreateJob the duplicate check and insert happen under one lock
func (r *Repository) CreateJob(ctx context.Context, job *model.FulfillmentJob) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, exists := r.jobs[job.ID]; exists {
		return model.ErrDuplicate
	}
	if job.Status.IsActive() && r.activeJobLocked(job.OrgID, job.OrderID, job.LineItemID, "") != nil {
		return model.ErrDuplicateJob
	}
	now := r.now()
	job.CreatedAt, job.UpdatedAt = now, now
	cp := *job
	r.jobs[job.ID] = &cp
	r.jobOrder = append(r.jobOrder, job.ID)
	return nil
}

func (r *Repository) GetJob(ctx context.Context, orgID, id string) (*model.FulfillmentJob, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	job, ok := r.jobs[id]
	if !ok || job.OrgID != orgID {
		return nil, model.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *Repository) FindActiveJob(ctx context.Context, orgID, orderID, lineItemID string) (*model.FulfillmentJob, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	job := r.activeJobLocked(orgID, orderID, lineItemID, "")
	if job == nil {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

// ListJobs newest first
func (r *Repository) ListJobs(ctx context.Context, orgID string, filter model.JobFilter) ([]model.FulfillmentJob, int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	matched := make([]model.FulfillmentJob, 0)
	for i := len(r.jobOrder) - 1; i >= 0; i-- {
		job := r.jobs[r.jobOrder[i]]
		if job.OrgID != orgID || (filter.Status != "" && job.Status != filter.Status) {
			continue
		}
		matched = append(matched, *job)
	}
	return page(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (r *Repository) TransitionJob(ctx context.Context, id string, t model.JobTransition) (*model.FulfillmentJob, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(t.LegalFrom()) == 0 {
		return nil, fmt.Errorf("%w: %v -> %s", model.ErrInvalidTransition, t.From, t.To)
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if !t.Allows(job) {
		return nil, model.ErrConflict
	}
	if t.To.IsActive() && !job.Status.IsActive() &&
		r.activeJobLocked(job.OrgID, job.OrderID, job.LineItemID, job.ID) != nil {
		return nil, model.ErrDuplicateJob
	}

	job.Status = t.To
	t.Changes.Apply(job)
	job.UpdatedAt = r.now()
	cp := *job
	return &cp, nil
}

// ClaimNextJob oldest PENDING job -> EVALUATING
func (r *Repository) ClaimNextJob(ctx context.Context) (*model.FulfillmentJob, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, id := range r.jobOrder {
		job := r.jobs[id]
		if job.Status != model.JobPending {
			continue
		}
		job.Status = model.JobEvaluating
		job.AwaitingApproval = false
		job.UpdatedAt = r.now()
		cp := *job
		return &cp, nil
	}
	return nil, nil
}
