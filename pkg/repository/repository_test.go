package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ShopPilot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingJob(orderID string) *model.FulfillmentJob {
	return &model.FulfillmentJob{
		OrgID:      "org-1",
		OrderID:    orderID,
		LineItemID: "li-1",
		Quantity:   1,
		Status:     model.JobPending,
	}
}

func TestTryAcquireSlotNeverExceedsLimit(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	var acquired int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryAcquireSlot(ctx, "org-1", "2026-03-01", 3)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt64(&acquired, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, acquired)
	n, err := repo.DailyCount(ctx, "org-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// other days and orgs are independent
	ok, err := repo.TryAcquireSlot(ctx, "org-1", "2026-03-02", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.TryAcquireSlot(ctx, "org-2", "2026-03-01", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.ReleaseSlot(ctx, "org-1", "2026-03-01"))
	ok, err = repo.TryAcquireSlot(ctx, "org-1", "2026-03-01", 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentCreateJobYieldsOneActive(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	var created, duplicates int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CreateJob(ctx, pendingJob("o-1"))
			switch {
			case err == nil:
				atomic.AddInt64(&created, 1)
			case assert.ErrorIs(t, err, model.ErrDuplicateJob):
				atomic.AddInt64(&duplicates, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created)
	assert.EqualValues(t, 29, duplicates)
}

func TestClaimNextJobIsExclusive(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var tick int64
	repo.SetClock(func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second) })

	const jobs = 10
	for i := 0; i < jobs; i++ {
		require.NoError(t, repo.CreateJob(ctx, pendingJob(string(rune('a'+i)))))
	}

	var mu sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNextJob(ctx)
				if !assert.NoError(t, err) || job == nil {
					return
				}
				assert.Equal(t, model.JobEvaluating, job.Status)
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestClaimNextJobOldestFirst(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	first, second := pendingJob("o-1"), pendingJob("o-2")
	require.NoError(t, repo.CreateJob(ctx, first))
	require.NoError(t, repo.CreateJob(ctx, second))

	job, err := repo.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, job.ID)
}

func TestTransitionJobGuards(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	job := pendingJob("o-1")
	require.NoError(t, repo.CreateJob(ctx, job))

	_, err := repo.TransitionJob(ctx, job.ID, model.JobTransition{
		From: []model.JobStatus{model.JobPurchasing},
		To:   model.JobCompleted,
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = repo.TransitionJob(ctx, "missing", model.JobTransition{From: []model.JobStatus{model.JobPending}, To: model.JobRejected})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = repo.TransitionJob(ctx, job.ID, model.JobTransition{
		From:            []model.JobStatus{model.JobPending},
		To:              model.JobPending,
		RequireAwaiting: true,
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	updated, err := repo.TransitionJob(ctx, job.ID, model.JobTransition{
		From:    []model.JobStatus{model.JobPending},
		To:      model.JobRejected,
		Changes: model.JobChanges{}.WithError(model.ErrorCodeCancelled, model.CancelledByUser),
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobRejected, updated.Status)
	assert.Equal(t, model.ErrorCodeCancelled, updated.ErrorCode)

	active, err := repo.FindActiveJob(ctx, "org-1", "o-1", "li-1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestTransitionJobRefusesIllegalEdges(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	job := pendingJob("o-1")
	require.NoError(t, repo.CreateJob(ctx, job))

	_, err := repo.TransitionJob(ctx, job.ID, model.JobTransition{
		From: []model.JobStatus{model.JobPending},
		To:   model.JobCompleted,
	})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = repo.TransitionJob(ctx, job.ID, model.JobTransition{
		From: []model.JobStatus{model.JobPending},
		To:   model.JobEvaluating,
	})
	require.NoError(t, err)
	_, err = repo.TransitionJob(ctx, job.ID, model.JobTransition{From: []model.JobStatus{model.JobEvaluating}, To: model.JobApproved})
	require.NoError(t, err)
	_, err = repo.TransitionJob(ctx, job.ID, model.JobTransition{From: []model.JobStatus{model.JobApproved}, To: model.JobPurchasing})
	require.NoError(t, err)
	done, err := repo.TransitionJob(ctx, job.ID, model.JobTransition{From: []model.JobStatus{model.JobPurchasing}, To: model.JobCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)

	for _, to := range []model.JobStatus{model.JobPending, model.JobFailed, model.JobRejected} {
		_, err = repo.TransitionJob(ctx, job.ID, model.JobTransition{From: []model.JobStatus{model.JobCompleted}, To: to})
		assert.ErrorIs(t, err, model.ErrInvalidTransition, "COMPLETED -> %s", to)
	}

	stored, err := repo.GetJob(ctx, "org-1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, stored.Status)
}

func TestListJobsPagination(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, repo.CreateJob(ctx, pendingJob(string(rune('A'+i)))))
	}

	page1, total, err := repo.ListJobs(ctx, "org-1", model.JobFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	assert.Len(t, page1, model.DefaultPageSize)
	assert.Equal(t, string(rune('A'+24)), page1[0].OrderID, "newest first")

	page2, _, err := repo.ListJobs(ctx, "org-1", model.JobFilter{Limit: 20, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, page2, 5)

	none, _, err := repo.ListJobs(ctx, "org-1", model.JobFilter{Status: model.JobCompleted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRulesScopedByOrg(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	rule := &model.AutomationRule{OrgID: "org-1", Name: "r", Status: model.RuleStatusActive, TriggerType: model.TriggerDailySchedule}
	require.NoError(t, repo.CreateRule(ctx, rule))
	require.NoError(t, repo.CreateRule(ctx, &model.AutomationRule{OrgID: "org-2", Name: "r", Status: model.RuleStatusPaused, TriggerType: model.TriggerDailySchedule}))

	_, err := repo.GetRule(ctx, "org-2", rule.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteRule(ctx, "org-2", rule.ID), model.ErrNotFound)

	orgs, err := repo.ListOrgsWithActiveRules(ctx, model.TriggerDailySchedule)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, orgs)
}

func TestMappingUniquePerSKU(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	m := &model.SkuMapping{OrgID: "org-1", SourceSKU: "SKU-1", TargetRef: "B000"}
	require.NoError(t, repo.CreateMapping(ctx, m))
	assert.ErrorIs(t, repo.CreateMapping(ctx, &model.SkuMapping{OrgID: "org-1", SourceSKU: "SKU-1", TargetRef: "B001"}), model.ErrDuplicate)
	require.NoError(t, repo.CreateMapping(ctx, &model.SkuMapping{OrgID: "org-2", SourceSKU: "SKU-1", TargetRef: "B001"}))

	other := &model.SkuMapping{OrgID: "org-1", SourceSKU: "SKU-2", TargetRef: "B002"}
	require.NoError(t, repo.CreateMapping(ctx, other))
	other.SourceSKU = "SKU-1"
	assert.ErrorIs(t, repo.UpdateMapping(ctx, other), model.ErrDuplicate)

	found, err := repo.FindMappingBySourceSKU(ctx, "org-1", "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)
}

func TestGetConfigDefaultsWhenUnset(t *testing.T) {
	repo := NewRepository()
	cfg, err := repo.GetConfig(context.Background(), "org-9")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.MaxDailyOrders)
	assert.Equal(t, "org-9", cfg.OrgID)
}
