package database

import (
	"context"
	"fmt"
	"time"

	"ShopPilot/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConfigDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Configs() *ConfigDB {
	return &ConfigDB{db: p.db}
}

// GetConfig defaults for orgs that never saved settings
func (c *ConfigDB) GetConfig(ctx context.Context, orgID string) (*model.FulfillmentConfig, error) {
	var cfg model.FulfillmentConfig
	err := c.db.WithContext(ctx).First(&cfg, "org_id = ?", orgID).Error
	if notFound(err) {
		def := model.DefaultFulfillmentConfig(orgID)
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fulfillment config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig upsert keyed by org
func (c *ConfigDB) SaveConfig(ctx context.Context, cfg *model.FulfillmentConfig) error {
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}},
		DoUpdates: clause.AssignmentColumns(configColumns),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("save fulfillment config: %w", err)
	}
	return nil
}

var configColumns = []string{
	"enabled", "min_expected_profit", "max_delivery_days", "shopee_commission_rate",
	"include_amazon_points", "include_domestic_shipping_fee", "domestic_shipping_fee",
	"eligible_channels", "max_daily_orders", "require_manual_approval", "credentials_ref",
	"settlement_currency", "timezone", "updated_at",
}

type MappingDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Mappings() *MappingDB {
	return &MappingDB{db: p.db}
}

func (m *MappingDB) CreateMapping(ctx context.Context, mapping *model.SkuMapping) error {
	if err := m.db.WithContext(ctx).Create(mapping).Error; err != nil {
		if duplicate(err) {
			return model.ErrDuplicate
		}
		return fmt.Errorf("create sku mapping: %w", err)
	}
	return nil
}

func (m *MappingDB) GetMapping(ctx context.Context, orgID, id string) (*model.SkuMapping, error) {
	var mapping model.SkuMapping
	err := m.db.WithContext(ctx).First(&mapping, "id = ? AND org_id = ?", id, orgID).Error
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sku mapping: %w", err)
	}
	return &mapping, nil
}

func (m *MappingDB) ListMappings(ctx context.Context, orgID string, limit, offset int) ([]model.SkuMapping, int64, error) {
	query := m.db.WithContext(ctx).Model(&model.SkuMapping{}).Where("org_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sku mappings: %w", err)
	}
	mappings := make([]model.SkuMapping, 0)
	if err := paginate(query.Order("source_sku ASC"), limit, offset).Find(&mappings).Error; err != nil {
		return nil, 0, fmt.Errorf("list sku mappings: %w", err)
	}
	return mappings, total, nil
}

func (m *MappingDB) UpdateMapping(ctx context.Context, mapping *model.SkuMapping) error {
	res := m.db.WithContext(ctx).Model(&model.SkuMapping{}).
		Where("id = ? AND org_id = ?", mapping.ID, mapping.OrgID).
		Select("source_sku", "target_ref", "target_sku", "target_marketplace", "note", "updated_at").
		Updates(mapping)
	if duplicate(res.Error) {
		return model.ErrDuplicate
	}
	if res.Error != nil {
		return fmt.Errorf("update sku mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *MappingDB) DeleteMapping(ctx context.Context, orgID, id string) error {
	res := m.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).Delete(&model.SkuMapping{})
	if res.Error != nil {
		return fmt.Errorf("delete sku mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *MappingDB) FindMappingBySourceSKU(ctx context.Context, orgID, sku string) (*model.SkuMapping, error) {
	var mapping model.SkuMapping
	err := m.db.WithContext(ctx).First(&mapping, "org_id = ? AND source_sku = ?", orgID, sku).Error
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find sku mapping: %w", err)
	}
	return &mapping, nil
}

// QuotaDB daily purchase counters in Postgres
type QuotaDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Quota() *QuotaDB {
	return &QuotaDB{db: p.db}
}

func (q *QuotaDB) DailyCount(ctx context.Context, orgID, day string) (int, error) {
	var counters []model.DailyQuotaCounter
	err := q.db.WithContext(ctx).Where("org_id = ? AND day = ?", orgID, day).Limit(1).Find(&counters).Error
	if err != nil {
		return 0, fmt.Errorf("read daily quota: %w", err)
	}
	if len(counters) == 0 {
		return 0, nil
	}
	return counters[0].Count, nil
}

const acquireSlotSQL = `INSERT INTO daily_quota_counters (org_id, day, count, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (org_id, day) DO UPDATE
SET count = daily_quota_counters.count + 1, updated_at = EXCLUDED.updated_at
WHERE daily_quota_counters.count < ?`

// TryAcquireSlot single-statement compare-and-increment; no row is touched at the limit
func (q *QuotaDB) TryAcquireSlot(ctx context.Context, orgID, day string, limit int) (bool, error) {
	if limit < 1 {
		return false, nil
	}
	res := q.db.WithContext(ctx).Exec(acquireSlotSQL, orgID, day, time.Now().UTC(), limit)
	if res.Error != nil {
		return false, fmt.Errorf("acquire daily quota: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

const releaseSlotSQL = `UPDATE daily_quota_counters
SET count = count - 1, updated_at = ?
WHERE org_id = ? AND day = ? AND count > 0`

func (q *QuotaDB) ReleaseSlot(ctx context.Context, orgID, day string) error {
	if err := q.db.WithContext(ctx).Exec(releaseSlotSQL, time.Now().UTC(), orgID, day).Error; err != nil {
		return fmt.Errorf("release daily quota: %w", err)
	}
	return nil
}
