package repository

import (
	"sync"
	"time"

	"ShopPilot/pkg/model"
)

// Repository in-memory store used by tests and single-process deployments.
// It implements every store interface of the engine and fulfillment packages.
type Repository struct {
	rules      map[string]*model.AutomationRule
	executions []model.Execution
	jobs       map[string]*model.FulfillmentJob
	jobOrder   []string
	configs    map[string]*model.FulfillmentConfig
	mappings   map[string]*model.SkuMapping
	quota      map[quotaKey]int
	orders     map[orderKey]*model.Order
	products   map[productKey]*model.Product
	tasks      []model.Task
	now        func() time.Time
	mutex      sync.RWMutex
}

type quotaKey struct{ orgID, day string }
type orderKey struct{ orgID, orderID string }
type productKey struct{ orgID, sku string }

// NewRepository empty store
func NewRepository() *Repository {
	return &Repository{
		rules:    make(map[string]*model.AutomationRule),
		jobs:     make(map[string]*model.FulfillmentJob),
		configs:  make(map[string]*model.FulfillmentConfig),
		mappings: make(map[string]*model.SkuMapping),
		quota:    make(map[quotaKey]int),
		orders:   make(map[orderKey]*model.Order),
		products: make(map[productKey]*model.Product),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source
func (r *Repository) SetClock(now func() time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.now = now
}

func page[T any](items []T, limit, offset int) []T {
	limit, offset = model.NormalizePage(limit, offset)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
