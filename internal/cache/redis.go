// Package cache holds the optional Redis-backed caches. Every method
// degrades to a miss on Redis failure; the database stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lalith-99/crmhub/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TenantCache is a cache-aside store of tenants keyed by subdomain.
type TenantCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewTenantCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TenantCache {
	return &TenantCache{client: client, ttl: ttl, logger: logger}
}

func tenantKey(subdomain string) string {
	return "crmhub:tenant:" + subdomain
}

func (c *TenantCache) GetTenant(ctx context.Context, subdomain string) (*models.Tenant, bool) {
	raw, err := c.client.Get(ctx, tenantKey(subdomain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("tenant cache get failed", zap.String("subdomain", subdomain), zap.Error(err))
		return nil, false
	}

	var t models.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.Warn("tenant cache entry corrupt", zap.String("subdomain", subdomain), zap.Error(err))
		c.InvalidateTenant(ctx, subdomain)
		return nil, false
	}
	return &t, true
}

func (c *TenantCache) SetTenant(ctx context.Context, t *models.Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		c.logger.Warn("tenant cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, tenantKey(t.Subdomain), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("tenant cache set failed", zap.String("subdomain", t.Subdomain), zap.Error(err))
	}
}

func (c *TenantCache) InvalidateTenant(ctx context.Context, subdomain string) {
	if err := c.client.Del(ctx, tenantKey(subdomain)).Err(); err != nil {
		c.logger.Warn("tenant cache delete failed", zap.String("subdomain", subdomain), zap.Error(err))
	}
}
