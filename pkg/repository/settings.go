package repository

import (
	"context"
	"sort"

	"ShopPilot/pkg/model"

	"github.com/google/uuid"
)

// GetConfig defaults for orgs that never saved settings
func (r *Repository) GetConfig(ctx context.Context, orgID string) (*model.FulfillmentConfig, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cfg, ok := r.configs[orgID]
	if !ok {
		def := model.DefaultFulfillmentConfig(orgID)
		return &def, nil
	}
	cp := *cfg
	return &cp, nil
}

// SaveConfig upsert
func (r *Repository) SaveConfig(ctx context.Context, cfg *model.FulfillmentConfig) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if existing, ok := r.configs[cfg.OrgID]; ok {
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	cp := *cfg
	r.configs[cfg.OrgID] = &cp
	return nil
}

func (r *Repository) mappingBySKULocked(orgID, sku string) *model.SkuMapping {
	for _, m := range r.mappings {
		if m.OrgID == orgID && m.SourceSKU == sku {
			return m
		}
	}
	return nil
}

func (r *Repository) CreateMapping(ctx context.Context, m *model.SkuMapping) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.mappingBySKULocked(m.OrgID, m.SourceSKU) != nil {
		return model.ErrDuplicate
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := r.now()
	m.CreatedAt, m.UpdatedAt = now, now
	cp := *m
	r.mappings[m.ID] = &cp
	return nil
}

func (r *Repository) GetMapping(ctx context.Context, orgID, id string) (*model.SkuMapping, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.mappings[id]
	if !ok || m.OrgID != orgID {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// ListMappings ordered by source sku
func (r *Repository) ListMappings(ctx context.Context, orgID string, limit, offset int) ([]model.SkuMapping, int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	matched := make([]model.SkuMapping, 0)
	for _, m := range r.mappings {
		if m.OrgID == orgID {
			matched = append(matched, *m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SourceSKU < matched[j].SourceSKU })
	return page(matched, limit, offset), int64(len(matched)), nil
}

func (r *Repository) UpdateMapping(ctx context.Context, m *model.SkuMapping) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, ok := r.mappings[m.ID]
	if !ok || existing.OrgID != m.OrgID {
		return model.ErrNotFound
	}
	if other := r.mappingBySKULocked(m.OrgID, m.SourceSKU); other != nil && other.ID != m.ID {
		return model.ErrDuplicate
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = r.now()
	cp := *m
	r.mappings[m.ID] = &cp
	return nil
}

func (r *Repository) DeleteMapping(ctx context.Context, orgID, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.mappings[id]
	if !ok || m.OrgID != orgID {
		return model.ErrNotFound
	}
	delete(r.mappings, id)
	return nil
}

func (r *Repository) FindMappingBySourceSKU(ctx context.Context, orgID, sku string) (*model.SkuMapping, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m := r.mappingBySKULocked(orgID, sku)
	if m == nil {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *Repository) DailyCount(ctx context.Context, orgID, day string) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.quota[quotaKey{orgID, day}], nil
}

// TryAcquireSlot compare-and-increment under the store lock
func (r *Repository) TryAcquireSlot(ctx context.Context, orgID, day string, limit int) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := quotaKey{orgID, day}
	if r.quota[key] >= limit {
		return false, nil
	}
	r.quota[key]++
	return true, nil
}

func (r *Repository) ReleaseSlot(ctx context.Context, orgID, day string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := quotaKey{orgID, day}
	if r.quota[key] > 0 {
		r.quota[key]--
	}
	return nil
}
