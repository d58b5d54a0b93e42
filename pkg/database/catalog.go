package database

import (
	"context"
	"fmt"
	"time"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Orders() *OrderDB {
	return &OrderDB{db: p.db}
}

// SaveOrder upsert keyed by (id, org_id)
func (o *OrderDB) SaveOrder(ctx context.Context, order *model.Order) error {
	err := o.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "org_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_number", "channel_id", "customer_name", "customer_email", "total_amount",
			"currency", "shipping_address", "line_items", "tags", "updated_at",
		}),
	}).Create(order).Error
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (o *OrderDB) GetOrder(ctx context.Context, orgID, orderID string) (*model.Order, error) {
	var order model.Order
	err := o.db.WithContext(ctx).First(&order, "id = ? AND org_id = ?", orderID, orgID).Error
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

// TagOrder merges tags under a row lock
func (o *OrderDB) TagOrder(ctx context.Context, orgID, orderID string, tags []string) error {
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ? AND org_id = ?", orderID, orgID).Error
		if notFound(err) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		order.AddTags(tags...)
		err = tx.Model(&model.Order{}).
			Where("id = ? AND org_id = ?", orderID, orgID).
			Updates(map[string]interface{}{"tags": order.Tags, "updated_at": time.Now().UTC()}).Error
		if err != nil {
			return fmt.Errorf("update order tags: %w", err)
		}
		return nil
	})
}

type ProductDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Products() *ProductDB {
	return &ProductDB{db: p.db}
}

func (p *ProductDB) SaveProduct(ctx context.Context, product *model.Product) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "currency", "updated_at"}),
	}).Create(product).Error
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (p *ProductDB) GetProduct(ctx context.Context, orgID, sku string) (*model.Product, error) {
	var product model.Product
	err := p.db.WithContext(ctx).First(&product, "org_id = ? AND sku = ?", orgID, sku).Error
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

// AdjustPrice read-modify-write under a row lock
func (p *ProductDB) AdjustPrice(ctx context.Context, orgID, sku string, mode model.PriceAdjustMode, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var before, after decimal.Decimal
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&product, "org_id = ? AND sku = ?", orgID, sku).Error
		if notFound(err) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		before = product.Price
		after, err = model.AdjustedPrice(before, mode, amount)
		if err != nil {
			return err
		}
		return tx.Model(&model.Product{}).
			Where("org_id = ? AND sku = ?", orgID, sku).
			Updates(map[string]interface{}{"price": after, "updated_at": time.Now().UTC()}).Error
	})
	if err != nil {
		return before, before, err
	}
	return before, after, nil
}

type TaskDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Tasks() *TaskDB {
	return &TaskDB{db: p.db}
}

func (t *TaskDB) CreateTask(ctx context.Context, task *model.Task) error {
	if task.Status == "" {
		task.Status = model.TaskOpen
	}
	if err := t.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (t *TaskDB) ListTasks(ctx context.Context, orgID string) ([]model.Task, error) {
	tasks := make([]model.Task, 0)
	if err := t.db.WithContext(ctx).Where("org_id = ?", orgID).Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}
