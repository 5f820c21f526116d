package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

type assetCacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CachedAsset is a rendered asset remembered by key.
type CachedAsset struct {
	Value     string    `json:"value"`
	SourceURL string    `json:"sourceUrl"`
	StoredAt  time.Time `json:"storedAt"`
}

// AssetCacheService remembers rendered assets such as exported PDFs.
type AssetCacheService struct {
	repo    assetCacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewAssetCacheService constructs an asset cache.
func NewAssetCacheService(repo assetCacheStore, metrics *MetricsService, ttl time.Duration, enabled bool, logger *zap.Logger) *AssetCacheService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetCacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *AssetCacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get returns the cached asset for key. Backend failures count as misses.
func (s *AssetCacheService) Get(ctx context.Context, key string) (*CachedAsset, bool) {
	if !s.Enabled() {
		return nil, false
	}
	start := time.Now()
	var asset CachedAsset
	err := s.repo.Get(ctx, key, &asset)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("asset cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &asset, true
}

// Put stores value under key together with the URL it was served from.
func (s *AssetCacheService) Put(ctx context.Context, key, value, sourceURL string) error {
	if !s.Enabled() {
		return nil
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, CachedAsset{Value: value, SourceURL: sourceURL, StoredAt: time.Now().UTC()}, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("asset cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached assets matching pattern.
func (s *AssetCacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("asset cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}
