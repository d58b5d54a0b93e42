package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"ShopPilot/pkg/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Vault opens sealed marketplace credentials
type Vault interface {
	Open(ctx context.Context, ref string) (model.Credentials, error)
}

// PurchaseExecutor places orders on the target marketplace.
// Errors are classified with model.PurchaseError; unclassified errors are transient.
type PurchaseExecutor interface {
	Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error)
}

// HealthReporter component status sink
type HealthReporter interface {
	UpdateStatus(component, status, message string)
}

const workerComponent = "fulfillment-worker"

// WorkerConfig pool sizing and retry policy
type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	return c
}

// WorkerPool claims PENDING jobs and drives them to a terminal state
type WorkerPool struct {
	svc      *Service
	vault    Vault
	executor PurchaseExecutor
	health   HealthReporter
	cfg      WorkerConfig
	wake     chan struct{}
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zap.Logger
}

func NewWorkerPool(svc *Service, vault Vault, executor PurchaseExecutor, cfg WorkerConfig) *WorkerPool {
	cfg = cfg.withDefaults()
	return &WorkerPool{
		svc:      svc,
		vault:    vault,
		executor: executor,
		cfg:      cfg,
		wake:     make(chan struct{}, cfg.Workers),
		sleep:    sleepContext,
		log:      svc.log.Named("worker"),
	}
}

// SetHealthReporter reports worker liveness to h
func (p *WorkerPool) SetHealthReporter(h HealthReporter) {
	p.health = h
}

// Wake signals an idle worker without blocking
func (p *WorkerPool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// JobQueued wakes a worker for an in-process queue
func (p *WorkerPool) JobQueued(ctx context.Context, payload model.JobPayload) {
	p.Wake()
}

func (p *WorkerPool) JobTransitioned(ctx context.Context, job *model.FulfillmentJob) {}

// Run blocks until ctx is done
func (p *WorkerPool) Run(ctx context.Context) error {
	p.log.Info("worker pool started", zap.Int("workers", p.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			p.loop(gctx, id)
			return nil
		})
	}
	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *WorkerPool) loop(ctx context.Context, id int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			processed, err := p.ProcessNext(ctx)
			if err != nil {
				p.report("unhealthy", err.Error())
				p.log.Error("claim job failed", zap.Int("worker", id), zap.Error(err))
				break
			}
			p.report("healthy", "")
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) report(status, message string) {
	if p.health != nil {
		p.health.UpdateStatus(workerComponent, status, message)
	}
}

// ProcessNext claims and processes one job; false when the queue is empty
func (p *WorkerPool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.svc.jobs.ClaimNextJob(ctx)
	if err != nil {
		return false, fmt.Errorf("claim next job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	p.svc.transitioned(ctx, job)
	p.process(ctx, job)
	return true, nil
}

func (p *WorkerPool) process(ctx context.Context, job *model.FulfillmentJob) {
	log := p.log.With(
		zap.String("org_id", job.OrgID),
		zap.String("job_id", job.ID),
		zap.String("order_id", job.OrderID),
		zap.String("line_item_id", job.LineItemID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("job processing panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			p.fail(ctx, log, job.ID,
				[]model.JobStatus{model.JobEvaluating, model.JobApproved, model.JobPurchasing},
				model.ErrorCodeTransient, fmt.Sprintf("internal error: %v", r))
		}
	}()

	evaluating := []model.JobStatus{model.JobEvaluating}

	cfgPtr, err := p.svc.configs.GetConfig(ctx, job.OrgID)
	if err != nil {
		p.fail(ctx, log, job.ID, evaluating, model.ErrorCodeTransient, "load fulfillment config: "+err.Error())
		return
	}
	cfg := *cfgPtr

	order, err := p.svc.orders.GetOrder(ctx, job.OrgID, job.OrderID)
	if errors.Is(err, model.ErrNotFound) {
		p.reject(ctx, log, job.ID, model.ReasonOrderNotFound, "order no longer exists")
		return
	}
	if err != nil {
		p.fail(ctx, log, job.ID, evaluating, model.ErrorCodeTransient, "load order: "+err.Error())
		return
	}
	item, ok := order.LineItem(job.LineItemID)
	if !ok {
		p.reject(ctx, log, job.ID, model.ReasonOrderNotFound, "line item no longer exists")
		return
	}

	// re-validate with fresh settings and a fresh quote
	cand, res, err := p.svc.evaluate(ctx, cfg, order, item, job.ID)
	if err != nil {
		p.fail(ctx, log, job.ID, evaluating, model.ErrorCodeTransient, "evaluate eligibility: "+err.Error())
		return
	}
	if !res.Eligible {
		if res.ReasonCode == model.ReasonQuoteUnavailable {
			p.fail(ctx, log, job.ID, evaluating, model.ErrorCodeTransient, res.Reason)
			return
		}
		p.reject(ctx, log, job.ID, res.ReasonCode, res.Reason)
		return
	}

	price, profit := cand.Quote.UnitPrice, res.ExpectedProfit

	if cfg.RequireManualApproval && !job.ManuallyApproved {
		awaiting := true
		_, err := p.transition(ctx, job.ID, model.JobTransition{
			From: evaluating,
			To:   model.JobEvaluating,
			Changes: model.JobChanges{
				AwaitingApproval: &awaiting,
				TargetPrice:      &price,
				ExpectedProfit:   &profit,
			},
		})
		if err != nil {
			log.Warn("park job for approval failed", zap.Error(err))
			return
		}
		log.Info("job awaiting manual approval", zap.String("expected_profit", profit.String()))
		return
	}

	day := cfg.QuotaDay(p.svc.now())
	acquired, err := p.svc.quota.TryAcquireSlot(ctx, job.OrgID, day, cfg.MaxDailyOrders)
	if err != nil {
		p.fail(ctx, log, job.ID, evaluating, model.ErrorCodeTransient, "acquire daily quota: "+err.Error())
		return
	}
	if !acquired {
		p.reject(ctx, log, job.ID, model.ReasonDailyLimitReached,
			fmt.Sprintf("daily limit of %d orders reached for %s", cfg.MaxDailyOrders, day))
		return
	}

	if _, err := p.transition(ctx, job.ID, model.JobTransition{
		From:    evaluating,
		To:      model.JobApproved,
		Changes: model.JobChanges{TargetPrice: &price, ExpectedProfit: &profit},
	}); err != nil {
		p.releaseSlot(ctx, log, job.OrgID, day)
		log.Warn("approve job failed", zap.Error(err))
		return
	}
	purchasing, err := p.transition(ctx, job.ID, model.JobTransition{
		From: []model.JobStatus{model.JobApproved},
		To:   model.JobPurchasing,
	})
	if err != nil {
		p.releaseSlot(ctx, log, job.OrgID, day)
		log.Warn("start purchase failed", zap.Error(err))
		return
	}

	inPurchase := []model.JobStatus{model.JobPurchasing}
	if !cfg.HasCredentials() {
		p.fail(ctx, log, job.ID, inPurchase, model.ErrorCodePermanent, "marketplace credentials are not configured")
		return
	}
	creds, err := p.vault.Open(ctx, cfg.CredentialsRef)
	if err != nil {
		p.fail(ctx, log, job.ID, inPurchase, model.ErrorCodeTransient, "open marketplace credentials: "+err.Error())
		return
	}

	req := model.PurchaseRequest{
		IdempotencyKey: purchasing.ID,
		OrgID:          purchasing.OrgID,
		TargetRef:      purchasing.TargetProductRef,
		Quantity:       purchasing.Quantity,
		MaxUnitPrice:   purchasing.TargetPrice,
		Currency:       purchasing.Currency,
		ShipTo:         order.ShippingAddress.Data(),
		Credentials:    creds,
	}

	started := time.Now()
	result, err := p.purchase(ctx, log, req)
	if p.svc.recorder != nil {
		p.svc.recorder.ObservePurchase(time.Since(started), err)
	}
	if err != nil {
		code := model.ErrorCodeTransient
		if model.IsPermanent(err) {
			code = model.ErrorCodePermanent
		}
		p.fail(ctx, log, job.ID, inPurchase, code, err.Error())
		return
	}

	completedAt := p.svc.now()
	ref := result.ExternalOrderRef
	_, err = p.transition(ctx, job.ID, model.JobTransition{
		From:    inPurchase,
		To:      model.JobCompleted,
		Changes: model.JobChanges{ExternalOrderRef: &ref, CompletedAt: &completedAt},
	})
	if errors.Is(err, model.ErrConflict) {
		log.Warn("discarding late purchase result for a job that left PURCHASING",
			zap.String("external_order_ref", ref))
		return
	}
	if err != nil {
		log.Error("record purchase result failed", zap.String("external_order_ref", ref), zap.Error(err))
		return
	}
	log.Info("fulfillment job completed", zap.String("external_order_ref", ref))
}

// purchase calls the executor, retrying transient errors with exponential backoff
func (p *WorkerPool) purchase(ctx context.Context, log *zap.Logger, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		res, err := p.executor.Purchase(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if model.IsPermanent(err) {
			return nil, err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		delay := p.backoff(attempt)
		log.Warn("purchase attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry aborted after attempt %d: %w", attempt, lastErr)
		}
	}
	return nil, fmt.Errorf("purchase failed after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

func (p *WorkerPool) backoff(attempt int) time.Duration {
	d := p.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.cfg.MaxBackoff {
			return p.cfg.MaxBackoff
		}
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transition writes survive cancellation of the worker context
func (p *WorkerPool) transition(ctx context.Context, id string, t model.JobTransition) (*model.FulfillmentJob, error) {
	updated, err := p.svc.jobs.TransitionJob(context.WithoutCancel(ctx), id, t)
	if err != nil {
		return nil, err
	}
	p.svc.transitioned(ctx, updated)
	return updated, nil
}

func (p *WorkerPool) fail(ctx context.Context, log *zap.Logger, id string, from []model.JobStatus, code model.ErrorCode, msg string) {
	_, err := p.transition(ctx, id, model.JobTransition{
		From:    from,
		To:      model.JobFailed,
		Changes: model.JobChanges{}.WithError(code, msg),
	})
	if err != nil {
		log.Warn("mark job failed skipped", zap.String("error_message", msg), zap.Error(err))
		return
	}
	log.Warn("fulfillment job failed", zap.String("error_code", string(code)), zap.String("error_message", msg))
}

func (p *WorkerPool) reject(ctx context.Context, log *zap.Logger, id string, reason model.ReasonCode, msg string) {
	_, err := p.transition(ctx, id, model.JobTransition{
		From:    []model.JobStatus{model.JobEvaluating},
		To:      model.JobRejected,
		Changes: model.JobChanges{}.WithError(model.ErrorCode(reason), msg),
	})
	if err != nil {
		log.Warn("reject job skipped", zap.String("reason", string(reason)), zap.Error(err))
		return
	}
	p.svc.rejected(reason)
	log.Info("fulfillment job rejected", zap.String("reason", string(reason)), zap.String("message", msg))
}

func (p *WorkerPool) releaseSlot(ctx context.Context, log *zap.Logger, orgID, day string) {
	if err := p.svc.quota.ReleaseSlot(context.WithoutCancel(ctx), orgID, day); err != nil {
		log.Error("release quota slot failed", zap.String("day", day), zap.Error(err))
	}
}
