package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/platform/obs"
)

// SQLTravelTimeCache is a SQL-backed cache for travel-time results.
// Entries older than the TTL are ignored on read and overwritten on write.
type SQLTravelTimeCache struct {
	DB      *sql.DB
	dialect Dialect
	ttl     time.Duration
	now     func() time.Time
}

func NewSQLTravelTimeCache(db *sql.DB, dialect Dialect, ttl time.Duration) *SQLTravelTimeCache {
	return &SQLTravelTimeCache{DB: db, dialect: dialect, ttl: ttl, now: time.Now}
}

// Fetch a cached result if one younger than the TTL exists.
func (s *SQLTravelTimeCache) Get(
	ctx context.Context,
	key string,
) (_ domain.TravelTimeResult, _ bool, err error) {
	defer obs.Time(ctx, "traveltime.cache.Get")(&err)

	if s.DB == nil {
		return domain.TravelTimeResult{}, false, errors.New("travel time cache: db is nil")
	}

	if strings.TrimSpace(key) == "" {
		return domain.TravelTimeResult{}, false, errors.New("get travel time cache: key must not be empty")
	}

	q := s.dialect.rebind(`
	SELECT duration_minutes, distance_km, confidence, source
    FROM travel_time_cache
    WHERE cache_key = $1
        AND cached_at_ms >= $2;
	`)

	cutoff := s.now().Add(-s.ttl).UnixMilli()

	var res domain.TravelTimeResult
	err = s.DB.QueryRowContext(ctx, q, key, cutoff).Scan(
		&res.Duration,
		&res.Distance,
		&res.Confidence,
		&res.Source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TravelTimeResult{}, false, nil
	}
	if err != nil {
		return domain.TravelTimeResult{}, false, fmt.Errorf("get travel time cache: query travel_time_cache table: %w", err)
	}

	res.Status = domain.StatusSuccess
	return res, true, nil
}

// Store a successful result, replacing any previous entry for key.
func (s *SQLTravelTimeCache) Put(ctx context.Context, key string, r domain.TravelTimeResult) error {
	if s.DB == nil {
		return errors.New("travel time cache: db is nil")
	}

	if strings.TrimSpace(key) == "" {
		return errors.New("insert travel time cache: key must not be empty")
	}

	if !r.OK() {
		return fmt.Errorf("insert travel time cache: refusing to cache failed result for %q", key)
	}

	q := s.dialect.rebind(`
	INSERT INTO travel_time_cache (cache_key, duration_minutes, distance_km, confidence, source, cached_at_ms)
    VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (cache_key) DO UPDATE
	SET duration_minutes = EXCLUDED.duration_minutes,
		distance_km = EXCLUDED.distance_km,
		confidence = EXCLUDED.confidence,
		source = EXCLUDED.source,
		cached_at_ms = EXCLUDED.cached_at_ms;
	`)

	if _, err := s.DB.ExecContext(ctx, q, key, r.Duration, r.Distance, r.Confidence, r.Source, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("insert travel time cache key=%q: %w", key, err)
	}

	return nil
}

func (s *SQLTravelTimeCache) Clear(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("travel time cache: db is nil")
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM travel_time_cache;`); err != nil {
		return fmt.Errorf("clear travel time cache: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows older than the TTL and reports how many went.
func (s *SQLTravelTimeCache) PurgeExpired(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("travel time cache: db is nil")
	}

	q := s.dialect.rebind(`DELETE FROM travel_time_cache WHERE cached_at_ms < $1;`)
	res, err := s.DB.ExecContext(ctx, q, s.now().Add(-s.ttl).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge travel time cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge travel time cache: rows affected: %w", err)
	}
	return n, nil
}
