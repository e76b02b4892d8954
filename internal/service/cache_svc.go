package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
)

// Redis key TTLs.
const (
	DefectCacheTTL  = 5 * time.Minute
	GeocodeCacheTTL = 24 * time.Hour
	StatsCacheTTL   = 30 * time.Second
)

const (
	rankingKey = "defects:ranking"
	statsKey   = "stats:global"
)

// CacheService provides a Redis cache-aside layer for defect lookups, the
// priority ranking sorted set and reverse-geocoding results.
type CacheService struct {
	rdb *redis.Client
}

// NewCacheService creates a new CacheService. If redisURL is empty or connection
// fails, it returns a CacheService with a nil client (cache operations become no-ops).
func NewCacheService(redisURL string) *CacheService {
	if redisURL == "" {
		log.Info().Msg("redis: no URL configured, caching disabled")
		return &CacheService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis: invalid URL, caching disabled")
		return &CacheService{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis: connection failed, caching disabled")
		return &CacheService{}
	}

	log.Info().Msg("redis: connected, caching enabled")
	return &CacheService{rdb: rdb}
}

// NewCacheServiceWithClient wraps an existing client. rdb may be nil.
func NewCacheServiceWithClient(rdb *redis.Client) *CacheService {
	return &CacheService{rdb: rdb}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (c *CacheService) Client() *redis.Client {
	return c.rdb
}

// GetDefect retrieves a cached report. Returns nil if not cached or cache is disabled.
func (c *CacheService) GetDefect(ctx context.Context, id string) (*model.DefectReport, error) {
	if c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, defectKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var report model.DefectReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	metrics.CacheHits.Inc()
	return &report, nil
}

// SetDefect stores a report in cache.
func (c *CacheService) SetDefect(ctx context.Context, report *model.DefectReport) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, defectKey(report.ID), b, DefectCacheTTL).Err()
}

// GetStats returns the cached counters, or nil when absent.
func (c *CacheService) GetStats(ctx context.Context) (*model.StatsResponse, error) {
	if c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats model.StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	metrics.CacheHits.Inc()
	return &stats, nil
}

func (c *CacheService) SetStats(ctx context.Context, stats *model.StatsResponse) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey, b, StatsCacheTTL).Err()
}

// InvalidateDefect removes a report from cache (called after any write).
func (c *CacheService) InvalidateDefect(ctx context.Context, id string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, defectKey(id)).Err()
}

// UpdateRanking sets a report's score in the priority ranking. Reports in a
// terminal status are removed from it.
func (c *CacheService) UpdateRanking(ctx context.Context, report *model.DefectReport) error {
	if c.rdb == nil {
		return nil
	}
	if report.Status.Terminal() {
		return c.rdb.ZRem(ctx, rankingKey, report.ID).Err()
	}
	return c.rdb.ZAdd(ctx, rankingKey, redis.Z{Score: report.Score, Member: report.ID}).Err()
}

// TopRanking returns up to limit open reports by descending score. ok is
// false when the ranking is unavailable and the caller should fall back to
// the database.
func (c *CacheService) TopRanking(ctx context.Context, limit int) (ranked []model.RankedDefect, ok bool, err error) {
	if c.rdb == nil {
		return nil, false, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, rankingKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(zs) == 0 {
		return nil, false, nil
	}

	ranked = make([]model.RankedDefect, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		ranked = append(ranked, model.RankedDefect{ID: id, Score: z.Score})
	}
	return ranked, true, nil
}

// ReplaceRanking atomically swaps the whole ranking for entries.
func (c *CacheService) ReplaceRanking(ctx context.Context, entries []model.RankedDefect) error {
	if c.rdb == nil {
		return nil
	}
	tmp := rankingKey + ":rebuild"

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, tmp)
	if len(entries) > 0 {
		zs := make([]redis.Z, 0, len(entries))
		for _, r := range entries {
			zs = append(zs, redis.Z{Score: r.Score, Member: r.ID})
		}
		pipe.ZAdd(ctx, tmp, zs...)
		pipe.Rename(ctx, tmp, rankingKey)
	} else {
		pipe.Del(ctx, rankingKey)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetAddress returns a cached reverse-geocoding result, or "" when absent.
func (c *CacheService) GetAddress(ctx context.Context, lat, lon float64) (string, error) {
	if c.rdb == nil {
		return "", nil
	}
	addr, err := c.rdb.Get(ctx, geocodeKey(lat, lon)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return "", nil
	}
	if err == nil {
		metrics.CacheHits.Inc()
	}
	return addr, err
}

// SetAddress caches a reverse-geocoding result.
func (c *CacheService) SetAddress(ctx context.Context, lat, lon float64, address string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, geocodeKey(lat, lon), address, GeocodeCacheTTL).Err()
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func defectKey(id string) string {
	return fmt.Sprintf("defect:%s", id)
}

// geocodeKey rounds to 5 decimals (about one meter).
func geocodeKey(lat, lon float64) string {
	return fmt.Sprintf("geo:%.5f:%.5f", lat, lon)
}
