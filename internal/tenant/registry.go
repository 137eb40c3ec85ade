// Package tenant loads and serves the process-wide, read-only tenant
// configuration registry.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"

	"smshub/internal/domain"
)

// Registry is an immutable, concurrency-safe lookup from subscription key to
// tenant configuration. It is constructed once at startup and never mutated,
// so it needs no locking.
type Registry struct {
	tenants map[string]domain.TenantConfig
}

// LoadFromFile reads a JSON document of the shape {"tenants": [...]} from
// path and builds a Registry, validating each tenant has at least one
// channel configured.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants config: %w", err)
	}
	return LoadFromJSON(data)
}

// LoadFromJSON builds a Registry from an in-memory JSON document, used by
// LoadFromFile and directly by tests.
func LoadFromJSON(data []byte) (*Registry, error) {
	var doc struct {
		Tenants []domain.TenantConfig `json:"tenants"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tenants config: %w", err)
	}

	r := &Registry{tenants: make(map[string]domain.TenantConfig, len(doc.Tenants))}
	for _, t := range doc.Tenants {
		if t.SubscriptionKey == "" {
			return nil, fmt.Errorf("tenant %q missing subscriptionKey", t.Name)
		}
		if t.HTTP == nil && t.SMPP == nil {
			return nil, fmt.Errorf("tenant %q must configure at least one channel", t.SubscriptionKey)
		}
		if t.HTTP != nil && t.HTTP.Provider == domain.ProviderCustom && t.HTTP.CustomPayloadTemplate == "" {
			return nil, fmt.Errorf("tenant %q: custom provider requires customPayloadTemplate", t.SubscriptionKey)
		}
		r.tenants[t.SubscriptionKey] = t
	}
	return r, nil
}

// Get looks up a tenant by subscription key.
func (r *Registry) Get(subscriptionKey string) (domain.TenantConfig, bool) {
	t, ok := r.tenants[subscriptionKey]
	return t, ok
}

// Len reports the number of configured tenants.
func (r *Registry) Len() int { return len(r.tenants) }
