package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// JobStore persistence of fulfillment jobs
type JobStore interface {
	JobLookup
	// CreateJob returns model.ErrDuplicateJob when the line item already has a non-terminal job
	CreateJob(ctx context.Context, job *model.FulfillmentJob) error
	GetJob(ctx context.Context, orgID, id string) (*model.FulfillmentJob, error)
	ListJobs(ctx context.Context, orgID string, filter model.JobFilter) ([]model.FulfillmentJob, int64, error)
	// TransitionJob returns model.ErrConflict when the guard no longer holds
	TransitionJob(ctx context.Context, id string, t model.JobTransition) (*model.FulfillmentJob, error)
	// ClaimNextJob moves the oldest PENDING job to EVALUATING; nil when the queue is empty
	ClaimNextJob(ctx context.Context) (*model.FulfillmentJob, error)
}

// ConfigStore per-org settings; GetConfig returns the defaults for orgs without settings
type ConfigStore interface {
	GetConfig(ctx context.Context, orgID string) (*model.FulfillmentConfig, error)
}

// MappingLookup source sku -> target product, model.ErrNotFound when unmapped
type MappingLookup interface {
	FindMappingBySourceSKU(ctx context.Context, orgID, sku string) (*model.SkuMapping, error)
}

// OrderReader source orders
type OrderReader interface {
	GetOrder(ctx context.Context, orgID, orderID string) (*model.Order, error)
}

// Quoter target marketplace offers
type Quoter interface {
	Quote(ctx context.Context, orgID, targetRef string, quantity int) (*model.TargetQuote, error)
}

// JobNotifier observes the queue
type JobNotifier interface {
	JobQueued(ctx context.Context, payload model.JobPayload)
	JobTransitioned(ctx context.Context, job *model.FulfillmentJob)
}

// Recorder fulfillment metrics
type Recorder interface {
	ObserveJobStatus(status model.JobStatus)
	ObserveRejection(reason model.ReasonCode)
	ObservePurchase(d time.Duration, err error)
}

// Deps collaborators of the Service
type Deps struct {
	Jobs     JobStore
	Configs  ConfigStore
	Mappings MappingLookup
	Orders   OrderReader
	Quoter   Quoter
	Currency CurrencyConverter
	Quota    QuotaCounter
	Recorder Recorder
}

// SubmitResult outcome for one line item; Job is nil when it was not eligible
type SubmitResult struct {
	LineItemID  string                `json:"line_item_id"`
	Job         *model.FulfillmentJob `json:"job,omitempty"`
	Eligibility EligibilityResult     `json:"eligibility"`
}

// JobView job with its order summary
type JobView struct {
	*model.FulfillmentJob
	Order     *model.OrderSummary `json:"order,omitempty"`
	Retryable bool                `json:"retryable"`
}

// Service job queue front: submission, listing and operator controls
type Service struct {
	jobs        JobStore
	configs     ConfigStore
	mappings    MappingLookup
	orders      OrderReader
	quoter      Quoter
	fx          CurrencyConverter
	quota       QuotaCounter
	eligibility *EligibilityEvaluator
	recorder    Recorder
	notifiers   []JobNotifier
	now         func() time.Time
	log         *zap.Logger
}

func NewService(d Deps) *Service {
	fx := d.Currency
	if fx == nil {
		fx = NewStaticRates("JPY", nil)
	}
	return &Service{
		jobs:        d.Jobs,
		configs:     d.Configs,
		mappings:    d.Mappings,
		orders:      d.Orders,
		quoter:      d.Quoter,
		fx:          fx,
		quota:       d.Quota,
		eligibility: NewEligibilityEvaluator(d.Jobs, d.Quota),
		recorder:    d.Recorder,
		now:         time.Now,
		log:         logger.Named("fulfillment"),
	}
}

// AddNotifier subscribes n to queue events
func (s *Service) AddNotifier(n JobNotifier) {
	s.notifiers = append(s.notifiers, n)
}

// SetClock overrides the time source of the service and its evaluator
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.eligibility.now = now
}

// SubmitOrder submits lineItemID, or every line item of the order when empty
func (s *Service) SubmitOrder(ctx context.Context, orgID, orderID, lineItemID string) ([]SubmitResult, error) {
	order, err := s.orders.GetOrder(ctx, orgID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	cfg, err := s.configs.GetConfig(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load fulfillment config: %w", err)
	}

	items := order.LineItems
	if lineItemID != "" {
		item, ok := order.LineItem(lineItemID)
		if !ok {
			return nil, fmt.Errorf("line item %s of order %s: %w", lineItemID, orderID, model.ErrNotFound)
		}
		items = []model.LineItem{item}
	}

	results := make([]SubmitResult, 0, len(items))
	var errs []error
	for _, item := range items {
		r, err := s.submitLineItem(ctx, *cfg, order, item)
		if err != nil {
			errs = append(errs, fmt.Errorf("line item %s: %w", item.ID, err))
			continue
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

// Submit manual trigger for a single line item
func (s *Service) Submit(ctx context.Context, orgID, orderID, lineItemID string) (SubmitResult, error) {
	if lineItemID == "" {
		return SubmitResult{}, errors.New("line_item_id is required")
	}
	results, err := s.SubmitOrder(ctx, orgID, orderID, lineItemID)
	if err != nil {
		return SubmitResult{}, err
	}
	return results[0], nil
}

// Preview eligibility verdict and profit breakdown without creating a job
func (s *Service) Preview(ctx context.Context, orgID, orderID, lineItemID string) (EligibilityResult, error) {
	order, err := s.orders.GetOrder(ctx, orgID, orderID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	item, ok := order.LineItem(lineItemID)
	if !ok {
		return EligibilityResult{}, fmt.Errorf("line item %s of order %s: %w", lineItemID, orderID, model.ErrNotFound)
	}
	cfg, err := s.configs.GetConfig(ctx, orgID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load fulfillment config: %w", err)
	}
	_, res, err := s.evaluate(ctx, *cfg, order, item, "")
	return res, err
}

func (s *Service) submitLineItem(ctx context.Context, cfg model.FulfillmentConfig, order *model.Order, item model.LineItem) (SubmitResult, error) {
	result := SubmitResult{LineItemID: item.ID}

	cand, res, err := s.evaluate(ctx, cfg, order, item, "")
	if err != nil {
		return result, err
	}
	result.Eligibility = res
	if !res.Eligible {
		s.rejected(res.ReasonCode)
		s.log.Info("line item not eligible",
			zap.String("org_id", order.OrgID),
			zap.String("order_id", order.ID),
			zap.String("line_item_id", item.ID),
			zap.String("reason", string(res.ReasonCode)),
		)
		return result, nil
	}

	job := newJob(cfg, cand, res)
	if err := s.Enqueue(ctx, job); err != nil {
		if errors.Is(err, model.ErrDuplicateJob) {
			result.Eligibility = rejected(model.ReasonDuplicateJob, "another job was queued for this line item")
			result.Eligibility.ExpectedProfit = res.ExpectedProfit
			s.rejected(model.ReasonDuplicateJob)
			return result, nil
		}
		return result, err
	}
	result.Job = job
	return result, nil
}

// evaluate resolves mapping, quote and currency, then runs the eligibility checks.
// excludeJobID is the job being re-validated, if any.
func (s *Service) evaluate(ctx context.Context, cfg model.FulfillmentConfig, order *model.Order, item model.LineItem, excludeJobID string) (Candidate, EligibilityResult, error) {
	if res, ok := precheck(cfg, order.ChannelID); !ok {
		return Candidate{}, res, nil
	}

	mapping, err := s.mappings.FindMappingBySourceSKU(ctx, order.OrgID, item.SKU)
	if errors.Is(err, model.ErrNotFound) {
		return Candidate{}, rejected(model.ReasonNoMapping, "no target product mapped for sku %s", item.SKU), nil
	}
	if err != nil {
		return Candidate{}, EligibilityResult{}, fmt.Errorf("look up sku mapping: %w", err)
	}

	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	quote, err := s.quoter.Quote(ctx, order.OrgID, mapping.TargetRef, qty)
	if err != nil {
		return Candidate{}, rejected(model.ReasonQuoteUnavailable, "quote for %s unavailable: %v", mapping.TargetRef, err), nil
	}
	if !quote.InStock {
		return Candidate{}, rejected(model.ReasonQuoteUnavailable, "%s is out of stock", mapping.TargetRef), nil
	}

	settlement := cfg.SettlementCurrency
	srcCurrency := item.Currency
	if srcCurrency == "" {
		srcCurrency = order.Currency
	}
	srcPrice, err := s.fx.Convert(item.UnitPrice, srcCurrency, settlement)
	if err != nil {
		return Candidate{}, rejected(model.ReasonCurrencyUnsupported, "%v", err), nil
	}
	normalized, err := s.normalizeQuote(*quote, settlement)
	if err != nil {
		return Candidate{}, rejected(model.ReasonCurrencyUnsupported, "%v", err), nil
	}
	if normalized.TargetRef == "" {
		normalized.TargetRef = mapping.TargetRef
	}
	if normalized.TargetSKU == "" {
		normalized.TargetSKU = mapping.TargetSKU
	}

	cand := Candidate{
		OrgID:           order.OrgID,
		OrderID:         order.ID,
		LineItemID:      item.ID,
		SourceChannelID: order.ChannelID,
		SourceSKU:       item.SKU,
		Quantity:        qty,
		SourceUnitPrice: srcPrice,
		Quote:           normalized,
		ExcludeJobID:    excludeJobID,
	}
	res, err := s.eligibility.Evaluate(ctx, cand, cfg)
	return cand, res, err
}

func (s *Service) normalizeQuote(q model.TargetQuote, to string) (model.TargetQuote, error) {
	from := q.Currency
	out := q
	out.Currency = to
	for _, amt := range []*decimal.Decimal{&out.UnitPrice, &out.Shipping, &out.Tax, &out.Points} {
		v, err := s.fx.Convert(*amt, from, to)
		if err != nil {
			return q, err
		}
		*amt = v
	}
	return out, nil
}

func newJob(cfg model.FulfillmentConfig, c Candidate, res EligibilityResult) *model.FulfillmentJob {
	return &model.FulfillmentJob{
		OrgID:            c.OrgID,
		OrderID:          c.OrderID,
		LineItemID:       c.LineItemID,
		SourceChannelID:  c.SourceChannelID,
		SourceSKU:        c.SourceSKU,
		TargetSKU:        c.Quote.TargetSKU,
		TargetProductRef: c.Quote.TargetRef,
		Quantity:         c.Quantity,
		SourcePrice:      c.SourceUnitPrice,
		TargetPrice:      c.Quote.UnitPrice,
		ExpectedProfit:   res.ExpectedProfit,
		Currency:         cfg.SettlementCurrency,
		Status:           model.JobPending,
	}
}

// Enqueue stores job as PENDING and hands its payload to the workers
func (s *Service) Enqueue(ctx context.Context, job *model.FulfillmentJob) error {
	job.Status = model.JobPending
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return err
	}
	s.log.Info("fulfillment job queued",
		zap.String("org_id", job.OrgID),
		zap.String("job_id", job.ID),
		zap.String("order_id", job.OrderID),
		zap.String("line_item_id", job.LineItemID),
		zap.String("expected_profit", job.ExpectedProfit.String()),
	)
	s.transitioned(ctx, job)
	s.queued(ctx, job)
	return nil
}

// Get job with its order summary
func (s *Service) Get(ctx context.Context, orgID, id string) (*JobView, error) {
	job, err := s.jobs.GetJob(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	view := &JobView{FulfillmentJob: job, Retryable: job.Retryable()}
	order, err := s.orders.GetOrder(ctx, orgID, job.OrderID)
	switch {
	case err == nil:
		summary := order.Summary()
		view.Order = &summary
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("load order %s: %w", job.OrderID, err)
	}
	return view, nil
}

// List newest first
func (s *Service) List(ctx context.Context, orgID string, filter model.JobFilter) ([]model.FulfillmentJob, int64, error) {
	return s.jobs.ListJobs(ctx, orgID, filter)
}

// Control applies an operator action: approve, retry or cancel
func (s *Service) Control(ctx context.Context, orgID, id, action string) (*model.FulfillmentJob, error) {
	switch action {
	case "approve":
		return s.Approve(ctx, orgID, id)
	case "retry":
		return s.Retry(ctx, orgID, id)
	case "cancel":
		return s.Cancel(ctx, orgID, id)
	}
	return nil, fmt.Errorf("%w: unknown action %q", model.ErrInvalidTransition, action)
}

// Approve PENDING stays PENDING marked approved; EVALUATING awaiting approval goes back to PENDING
func (s *Service) Approve(ctx context.Context, orgID, id string) (*model.FulfillmentJob, error) {
	job, err := s.jobs.GetJob(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	approved, notAwaiting := true, false
	t := model.JobTransition{
		To:      model.JobPending,
		Changes: model.JobChanges{ManuallyApproved: &approved, AwaitingApproval: &notAwaiting},
	}
	switch {
	case job.Status == model.JobPending:
		t.From = []model.JobStatus{model.JobPending}
	case job.Status == model.JobEvaluating && job.AwaitingApproval:
		t.From = []model.JobStatus{model.JobEvaluating}
		t.RequireAwaiting = true
	default:
		return nil, fmt.Errorf("%w: cannot approve a %s job", model.ErrInvalidTransition, job.Status)
	}

	updated, err := s.jobs.TransitionJob(ctx, id, t)
	if err != nil {
		return nil, err
	}
	s.log.Info("fulfillment job approved", zap.String("org_id", orgID), zap.String("job_id", id))
	s.transitioned(ctx, updated)
	s.queued(ctx, updated)
	return updated, nil
}

// Retry FAILED -> PENDING with the error cleared and retry_count+1; same job id
func (s *Service) Retry(ctx context.Context, orgID, id string) (*model.FulfillmentJob, error) {
	job, err := s.jobs.GetJob(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobFailed {
		return nil, fmt.Errorf("%w: only FAILED jobs can be retried, job is %s", model.ErrInvalidTransition, job.Status)
	}

	notAwaiting := false
	changes := model.JobChanges{AwaitingApproval: &notAwaiting, IncrementRetry: true}.ClearError()
	updated, err := s.jobs.TransitionJob(ctx, id, model.JobTransition{
		From:    []model.JobStatus{model.JobFailed},
		To:      model.JobPending,
		Changes: changes,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("fulfillment job retried",
		zap.String("org_id", orgID),
		zap.String("job_id", id),
		zap.Int("retry_count", updated.RetryCount),
	)
	s.transitioned(ctx, updated)
	s.queued(ctx, updated)
	return updated, nil
}

// Cancel any non-terminal or FAILED job -> REJECTED; cancelling a REJECTED job is a no-op
func (s *Service) Cancel(ctx context.Context, orgID, id string) (*model.FulfillmentJob, error) {
	for attempt := 0; attempt < 3; attempt++ {
		job, err := s.jobs.GetJob(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case model.JobRejected:
			return job, nil
		case model.JobCompleted:
			return nil, fmt.Errorf("%w: a COMPLETED job cannot be cancelled", model.ErrInvalidTransition)
		}

		notAwaiting := false
		changes := model.JobChanges{AwaitingApproval: &notAwaiting}.WithError(model.ErrorCodeCancelled, model.CancelledByUser)
		updated, err := s.jobs.TransitionJob(ctx, id, model.JobTransition{
			From:    []model.JobStatus{job.Status},
			To:      model.JobRejected,
			Changes: changes,
		})
		if errors.Is(err, model.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("fulfillment job cancelled",
			zap.String("org_id", orgID),
			zap.String("job_id", id),
			zap.String("previous_status", string(job.Status)),
		)
		s.transitioned(ctx, updated)
		return updated, nil
	}
	return nil, model.ErrConflict
}

func (s *Service) queued(ctx context.Context, job *model.FulfillmentJob) {
	order, err := s.orders.GetOrder(ctx, job.OrgID, job.OrderID)
	if err != nil {
		s.log.Warn("load order for job payload failed",
			zap.String("job_id", job.ID), zap.String("order_id", job.OrderID), zap.Error(err))
		order = nil
	}
	payload := job.Payload(order)
	for _, n := range s.notifiers {
		n.JobQueued(ctx, payload)
	}
}

func (s *Service) transitioned(ctx context.Context, job *model.FulfillmentJob) {
	if s.recorder != nil {
		s.recorder.ObserveJobStatus(job.Status)
	}
	for _, n := range s.notifiers {
		n.JobTransitioned(ctx, job)
	}
}

func (s *Service) rejected(reason model.ReasonCode) {
	if s.recorder != nil {
		s.recorder.ObserveRejection(reason)
	}
}
