package database

import (
	"context"
	"fmt"
	"time"

	"ShopPilot/pkg/model"

	"gorm.io/gorm"
)

// claimBatch candidates examined per claim; losers of a race move on to the next id
const claimBatch = 5

type JobDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Jobs() *JobDB {
	return &JobDB{db: p.db}
}

// CreateJob the partial unique index rejects a second active job for the line item
func (j *JobDB) CreateJob(ctx context.Context, job *model.FulfillmentJob) error {
	if err := j.db.WithContext(ctx).Create(job).Error; err != nil {
		if duplicate(err) {
			return model.ErrDuplicateJob
		}
		return fmt.Errorf("create fulfillment job: %w", err)
	}
	return nil
}

func (j *JobDB) GetJob(ctx context.Context, orgID, id string) (*model.FulfillmentJob, error) {
	var job model.FulfillmentJob
	err := j.db.WithContext(ctx).First(&job, "id = ? AND org_id = ?", id, orgID).Error
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fulfillment job: %w", err)
	}
	return &job, nil
}

func (j *JobDB) FindActiveJob(ctx context.Context, orgID, orderID, lineItemID string) (*model.FulfillmentJob, error) {
	var jobs []model.FulfillmentJob
	err := j.db.WithContext(ctx).
		Where("org_id = ? AND order_id = ? AND line_item_id = ? AND status IN ?",
			orgID, orderID, lineItemID, model.ActiveJobStatuses).
		Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func (j *JobDB) ListJobs(ctx context.Context, orgID string, filter model.JobFilter) ([]model.FulfillmentJob, int64, error) {
	query := j.db.WithContext(ctx).Model(&model.FulfillmentJob{}).Where("org_id = ?", orgID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count fulfillment jobs: %w", err)
	}
	jobs := make([]model.FulfillmentJob, 0)
	if err := paginate(query.Order("created_at DESC"), filter.Limit, filter.Offset).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("list fulfillment jobs: %w", err)
	}
	return jobs, total, nil
}

// TransitionJob conditional UPDATE guarded by the current status
func (j *JobDB) TransitionJob(ctx context.Context, id string, t model.JobTransition) (*model.FulfillmentJob, error) {
	from := t.LegalFrom()
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: %v -> %s", model.ErrInvalidTransition, t.From, t.To)
	}
	cols := t.Changes.Columns()
	cols["status"] = t.To
	cols["updated_at"] = time.Now().UTC()

	query := j.db.WithContext(ctx).Model(&model.FulfillmentJob{}).
		Where("id = ? AND status IN ?", id, from)
	if t.RequireAwaiting {
		query = query.Where("awaiting_approval = ?", true)
	}

	res := query.Updates(cols)
	if duplicate(res.Error) {
		return nil, model.ErrDuplicateJob
	}
	if res.Error != nil {
		return nil, fmt.Errorf("transition job to %s: %w", t.To, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := j.db.WithContext(ctx).Model(&model.FulfillmentJob{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("check job: %w", err)
		}
		if n == 0 {
			return nil, model.ErrNotFound
		}
		return nil, model.ErrConflict
	}
	return j.reload(ctx, id)
}

// ClaimNextJob oldest PENDING job -> EVALUATING.
// Each candidate is taken with a conditional UPDATE so concurrent workers never share a job.
func (j *JobDB) ClaimNextJob(ctx context.Context) (*model.FulfillmentJob, error) {
	var ids []string
	err := j.db.WithContext(ctx).Model(&model.FulfillmentJob{}).
		Where("status = ?", model.JobPending).
		Order("created_at ASC").
		Limit(claimBatch).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}

	for _, id := range ids {
		res := j.db.WithContext(ctx).Model(&model.FulfillmentJob{}).
			Where("id = ? AND status = ?", id, model.JobPending).
			Updates(map[string]interface{}{
				"status":            model.JobEvaluating,
				"awaiting_approval": false,
				"updated_at":        time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job %s: %w", id, res.Error)
		}
		if res.RowsAffected == 1 {
			return j.reload(ctx, id)
		}
	}
	return nil, nil
}

func (j *JobDB) reload(ctx context.Context, id string) (*model.FulfillmentJob, error) {
	var job model.FulfillmentJob
	if err := j.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("reload job %s: %w", id, err)
	}
	return &job, nil
}
