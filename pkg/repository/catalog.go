package repository

import (
	"context"

	"ShopPilot/pkg/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaveOrder upsert, used by the order sync side and tests
func (r *Repository) SaveOrder(ctx context.Context, order *model.Order) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	cp := *order
	r.orders[orderKey{order.OrgID, order.ID}] = &cp
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orgID, orderID string) (*model.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	order, ok := r.orders[orderKey{orgID, orderID}]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *Repository) TagOrder(ctx context.Context, orgID, orderID string, tags []string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	order, ok := r.orders[orderKey{orgID, orderID}]
	if !ok {
		return model.ErrNotFound
	}
	order.Tags = append([]string(nil), order.Tags...)
	order.AddTags(tags...)
	order.UpdatedAt = r.now()
	return nil
}

func (r *Repository) SaveProduct(ctx context.Context, p *model.Product) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p.UpdatedAt = r.now()
	cp := *p
	r.products[productKey{p.OrgID, p.SKU}] = &cp
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, orgID, sku string) (*model.Product, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.products[productKey{orgID, sku}]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *Repository) AdjustPrice(ctx context.Context, orgID, sku string, mode model.PriceAdjustMode, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.products[productKey{orgID, sku}]
	if !ok {
		return decimal.Zero, decimal.Zero, model.ErrNotFound
	}
	before := p.Price
	after, err := model.AdjustedPrice(before, mode, amount)
	if err != nil {
		return before, before, err
	}
	p.Price = after
	p.UpdatedAt = r.now()
	return before, after, nil
}

func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.TaskOpen
	}
	task.CreatedAt = r.now()
	r.tasks = append(r.tasks, *task)
	return nil
}

// ListTasks newest first
func (r *Repository) ListTasks(ctx context.Context, orgID string) ([]model.Task, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]model.Task, 0)
	for i := len(r.tasks) - 1; i >= 0; i-- {
		if r.tasks[i].OrgID == orgID {
			out = append(out, r.tasks[i])
		}
	}
	return out, nil
}
