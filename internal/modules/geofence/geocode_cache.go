package geofence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleettrack/internal/types"
)

const notFoundMarker = "-"

// CachingGeocoder remembers lookups in Redis, including misses, so repeated
// resolution cycles for the same text do not hit the upstream service.
type CachingGeocoder struct {
	next    Geocoder
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	missTTL time.Duration
	log     *zap.Logger
}

func NewCachingGeocoder(next Geocoder, rdb *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *CachingGeocoder {
	missTTL := ttl / 24
	if missTTL < time.Minute {
		missTTL = time.Minute
	}
	return &CachingGeocoder{next: next, rdb: rdb, prefix: prefix, ttl: ttl, missTTL: missTTL, log: log}
}

func (c *CachingGeocoder) Geocode(ctx context.Context, text string) (types.Point, bool, error) {
	key := c.key(text)
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if pt, found, ok := decodeCached(val); ok {
			return pt, found, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
	}

	pt, found, err := c.next.Geocode(ctx, text)
	if err != nil {
		return types.Point{}, false, err
	}
	enc, ttl := notFoundMarker, c.missTTL
	if found {
		enc, ttl = pt.String(), c.ttl
	}
	if err := c.rdb.Set(ctx, key, enc, ttl).Err(); err != nil {
		c.log.Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return pt, found, nil
}

func (c *CachingGeocoder) key(text string) string {
	return fmt.Sprintf("geocode:%s:%s", c.prefix, normalizeQuery(text))
}

func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func decodeCached(v string) (types.Point, bool, bool) {
	if v == notFoundMarker {
		return types.Point{}, false, true
	}
	lat, lng, ok := strings.Cut(v, ",")
	if !ok {
		return types.Point{}, false, false
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	ln, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return types.Point{}, false, false
	}
	return types.Point{Lat: la, Lng: ln}, true, true
}
