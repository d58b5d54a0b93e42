package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ShopPilot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeVault struct {
	err error
}

func (v fakeVault) Open(ctx context.Context, ref string) (model.Credentials, error) {
	if v.err != nil {
		return model.Credentials{}, v.err
	}
	return model.Credentials{AccountEmail: "buyer@example.com", APIKey: "key-" + ref}, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []model.PurchaseRequest
	// script errors returned by successive calls; calls past its end succeed
	script []error
}

func (e *fakeExecutor) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.requests)
	e.requests = append(e.requests, req)
	if n < len(e.script) && e.script[n] != nil {
		return nil, e.script[n]
	}
	return &model.PurchaseResult{
		ExternalOrderRef: fmt.Sprintf("AMZ-%s", req.IdempotencyKey[:8]),
		ChargedAmount:    req.MaxUnitPrice,
		Currency:         req.Currency,
		PlacedAt:         time.Now(),
	}, nil
}

func (e *fakeExecutor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

type workerFixture struct {
	*serviceFixture
	executor *fakeExecutor
	pool     *WorkerPool
	slept    []time.Duration
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	f := &workerFixture{serviceFixture: newServiceFixture(t), executor: &fakeExecutor{}}
	f.pool = NewWorkerPool(f.svc, fakeVault{}, f.executor, WorkerConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  3,
		BaseBackoff:  time.Second,
		MaxBackoff:   4 * time.Second,
	})
	f.pool.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return ctx.Err()
	}
	return f
}

func (f *workerFixture) job(t *testing.T, id string) *model.FulfillmentJob {
	t.Helper()
	job, err := f.repo.GetJob(context.Background(), "org-1", id)
	require.NoError(t, err)
	return job
}

func (f *workerFixture) processAll(t *testing.T) {
	t.Helper()
	for {
		processed, err := f.pool.ProcessNext(context.Background())
		require.NoError(t, err)
		if !processed {
			return
		}
	}
}

func (f *workerFixture) quotaUsed(t *testing.T) int {
	t.Helper()
	cfg, err := f.repo.GetConfig(context.Background(), "org-1")
	require.NoError(t, err)
	n, err := f.repo.DailyCount(context.Background(), "org-1", cfg.QuotaDay(f.now))
	require.NoError(t, err)
	return n
}

func TestWorkerCompletesEligibleJob(t *testing.T) {
	f := newWorkerFixture(t)
	job := f.submit(t).Job

	f.processAll(t)

	done := f.job(t, job.ID)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, "AMZ-"+job.ID[:8], done.ExternalOrderRef)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, f.now, *done.CompletedAt)
	assert.Equal(t, 1, f.quotaUsed(t))

	require.Equal(t, 1, f.executor.calls())
	req := f.executor.requests[0]
	assert.Equal(t, job.ID, req.IdempotencyKey)
	assert.Equal(t, "B000TEST", req.TargetRef)
	assert.True(t, req.MaxUnitPrice.Equal(dec("1800")))
	assert.Equal(t, "SG", req.ShipTo.Country)
	assert.Equal(t, "key-local:sealed", req.Credentials.APIKey)

	assert.Equal(t, []model.JobStatus{
		model.JobPending, model.JobEvaluating, model.JobApproved, model.JobPurchasing, model.JobCompleted,
	}, f.notifier.transitions)
}

func TestWorkerParksJobForManualApproval(t *testing.T) {
	f := newWorkerFixture(t)
	f.updateConfig(t, func(cfg *model.FulfillmentConfig) { cfg.RequireManualApproval = true })
	job := f.submit(t).Job

	f.processAll(t)
	parked := f.job(t, job.ID)
	assert.Equal(t, model.JobEvaluating, parked.Status)
	assert.True(t, parked.AwaitingApproval)
	assert.Zero(t, f.executor.calls())
	assert.Zero(t, f.quotaUsed(t))

	// nothing else is claimable while the job waits
	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = f.svc.Approve(context.Background(), "org-1", job.ID)
	require.NoError(t, err)
	f.processAll(t)

	done := f.job(t, job.ID)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.True(t, done.ManuallyApproved)
	assert.Equal(t, 1, f.executor.calls())
}

func TestWorkerRetriesTransientPurchaseErrors(t *testing.T) {
	f := newWorkerFixture(t)
	f.executor.script = []error{
		&model.PurchaseError{Code: "503", Message: "unavailable"},
		errors.New("connection reset"),
	}
	job := f.submit(t).Job

	f.processAll(t)

	assert.Equal(t, model.JobCompleted, f.job(t, job.ID).Status)
	assert.Equal(t, 3, f.executor.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.slept)
	for _, req := range f.executor.requests {
		assert.Equal(t, job.ID, req.IdempotencyKey)
	}
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	f := newWorkerFixture(t)
	transient := &model.PurchaseError{Code: "503"}
	f.executor.script = []error{transient, transient, transient, transient}
	job := f.submit(t).Job

	f.processAll(t)

	failed := f.job(t, job.ID)
	assert.Equal(t, model.JobFailed, failed.Status)
	assert.Equal(t, model.ErrorCodeTransient, failed.ErrorCode)
	assert.Contains(t, failed.ErrorMessage, "after 3 attempts")
	assert.True(t, failed.Retryable())
	assert.Equal(t, 3, f.executor.calls())
}

func TestWorkerPermanentErrorIsNotRetried(t *testing.T) {
	f := newWorkerFixture(t)
	f.executor.script = []error{&model.PurchaseError{Permanent: true, Code: "PAYMENT_DECLINED"}}
	job := f.submit(t).Job

	f.processAll(t)

	failed := f.job(t, job.ID)
	assert.Equal(t, model.JobFailed, failed.Status)
	assert.Equal(t, model.ErrorCodePermanent, failed.ErrorCode)
	assert.Contains(t, failed.ErrorMessage, "PAYMENT_DECLINED")
	assert.False(t, failed.Retryable())
	assert.Equal(t, 1, f.executor.calls())
	assert.Empty(t, f.slept)

	// an operator retry re-runs the same job
	_, err := f.svc.Retry(context.Background(), "org-1", job.ID)
	require.NoError(t, err)
	f.processAll(t)
	done := f.job(t, job.ID)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 1, done.RetryCount)
}

func TestWorkerMissingCredentialsIsPermanent(t *testing.T) {
	f := newWorkerFixture(t)
	f.updateConfig(t, func(cfg *model.FulfillmentConfig) { cfg.CredentialsRef = "" })
	job := f.submit(t).Job

	f.processAll(t)

	failed := f.job(t, job.ID)
	assert.Equal(t, model.JobFailed, failed.Status)
	assert.Equal(t, model.ErrorCodePermanent, failed.ErrorCode)
	assert.Zero(t, f.executor.calls())
}

func TestWorkerVaultErrorIsTransient(t *testing.T) {
	f := newWorkerFixture(t)
	f.pool.vault = fakeVault{err: errors.New("kms throttled")}
	job := f.submit(t).Job

	f.processAll(t)

	failed := f.job(t, job.ID)
	assert.Equal(t, model.JobFailed, failed.Status)
	assert.Equal(t, model.ErrorCodeTransient, failed.ErrorCode)
	assert.Contains(t, failed.ErrorMessage, "kms throttled")
}

func TestWorkerRevalidationRejectsAndFails(t *testing.T) {
	t.Run("profit dropped", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.submit(t).Job
		f.quoter.set("B000TEST", func(q *model.TargetQuote) { q.UnitPrice = dec("2900") })

		f.processAll(t)

		rejected := f.job(t, job.ID)
		assert.Equal(t, model.JobRejected, rejected.Status)
		assert.Equal(t, model.ErrorCode(model.ReasonInsufficientProfit), rejected.ErrorCode)
		assert.Zero(t, f.executor.calls())
	})

	t.Run("quote unavailable is transient", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.submit(t).Job
		f.quoter.set("B000TEST", func(q *model.TargetQuote) { q.InStock = false })

		f.processAll(t)

		failed := f.job(t, job.ID)
		assert.Equal(t, model.JobFailed, failed.Status)
		assert.Equal(t, model.ErrorCodeTransient, failed.ErrorCode)
	})

	t.Run("order gone", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := &model.FulfillmentJob{OrgID: "org-1", OrderID: "o-gone", LineItemID: "li-1", Quantity: 1, Currency: "JPY"}
		require.NoError(t, f.svc.Enqueue(context.Background(), job))

		f.processAll(t)

		rejected := f.job(t, job.ID)
		assert.Equal(t, model.JobRejected, rejected.Status)
		assert.Equal(t, model.ErrorCode(model.ReasonOrderNotFound), rejected.ErrorCode)
	})
}

func TestWorkerQuotaUnderConcurrency(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	f.updateConfig(t, func(cfg *model.FulfillmentConfig) { cfg.MaxDailyOrders = 3 })

	const orders = 8
	for i := 0; i < orders; i++ {
		id := fmt.Sprintf("o-%d", i+10)
		require.NoError(t, f.repo.SaveOrder(ctx, &model.Order{
			ID:              id,
			OrgID:           "org-1",
			ChannelID:       "shopee-sg",
			Currency:        "JPY",
			ShippingAddress: datatypes.NewJSONType(model.Address{Country: "SG"}),
			LineItems:       []model.LineItem{{ID: "li-1", SKU: "SKU-1", Quantity: 1, UnitPrice: dec("3000")}},
		}))
		res, err := f.svc.Submit(ctx, "org-1", id, "li-1")
		require.NoError(t, err)
		require.NotNil(t, res.Job)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				processed, err := f.pool.ProcessNext(ctx)
				if err != nil || !processed {
					return
				}
			}
		}()
	}
	wg.Wait()

	jobs, _, err := f.repo.ListJobs(ctx, "org-1", model.JobFilter{Limit: 100})
	require.NoError(t, err)
	counts := map[model.JobStatus]int{}
	for _, j := range jobs {
		counts[j.Status]++
		if j.Status == model.JobRejected {
			assert.Equal(t, model.ErrorCode(model.ReasonDailyLimitReached), j.ErrorCode)
		}
	}
	assert.Equal(t, 3, counts[model.JobCompleted])
	assert.Equal(t, orders-3, counts[model.JobRejected])
	assert.Equal(t, 3, f.quotaUsed(t))
	assert.Equal(t, 3, f.executor.calls())
}

type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingExecutor) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	close(e.started)
	<-e.release
	return &model.PurchaseResult{ExternalOrderRef: "AMZ-LATE", PlacedAt: time.Now()}, nil
}

func TestWorkerDiscardsLateResultAfterCancel(t *testing.T) {
	f := newWorkerFixture(t)
	exec := &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
	f.pool.executor = exec
	job := f.submit(t).Job

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.pool.ProcessNext(context.Background())
	}()

	<-exec.started
	assert.Equal(t, model.JobPurchasing, f.job(t, job.ID).Status)

	cancelled, err := f.svc.Cancel(context.Background(), "org-1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobRejected, cancelled.Status)

	close(exec.release)
	<-done

	final := f.job(t, job.ID)
	assert.Equal(t, model.JobRejected, final.Status)
	assert.Equal(t, model.ErrorCodeCancelled, final.ErrorCode)
	assert.Empty(t, final.ExternalOrderRef)
}

func TestWorkerPoolRunWakesOnQueuedJob(t *testing.T) {
	f := newWorkerFixture(t)
	f.pool.cfg.PollInterval = time.Hour
	f.svc.AddNotifier(f.pool)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- f.pool.Run(ctx) }()

	job := f.submit(t).Job
	require.Eventually(t, func() bool {
		j, err := f.repo.GetJob(context.Background(), "org-1", job.ID)
		return err == nil && j.Status == model.JobCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop")
	}
}

func TestWorkerBackoffIsCapped(t *testing.T) {
	p := &WorkerPool{cfg: WorkerConfig{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}}
	assert.Equal(t, time.Second, p.backoff(1))
	assert.Equal(t, 2*time.Second, p.backoff(2))
	assert.Equal(t, 4*time.Second, p.backoff(3))
	assert.Equal(t, 5*time.Second, p.backoff(4))
	assert.Equal(t, 5*time.Second, p.backoff(10))
}
