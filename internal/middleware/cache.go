package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// ScheduleCache caches provider schedule responses in Redis.  Entries are
// grouped under the provider id so that every write touching a provider's
// slots can drop them at once.  It implements the service's cache
// invalidation hook.
type ScheduleCache struct {
	rdb     *redis.Client
	cfg     config.CacheConfig
	methods map[string]bool
	log     *zap.Logger
}

// NewScheduleCache returns nil when caching is disabled or Redis is not
// available; callers treat a nil cache as "no caching".
func NewScheduleCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) *ScheduleCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScheduleCache{rdb: rdb, cfg: cfg, methods: cfg.MethodSet(), log: log.Named("cache")}
}

func (sc *ScheduleCache) providerPrefix(providerID uint64) string {
	return fmt.Sprintf("%s:provider:%d:", sc.cfg.Prefix, providerID)
}

// providerParam parses the provider id from the path so that "07" and "7"
// share one entry and InvalidateProvider reaches it.
func providerParam(c echo.Context, param string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	return id, err == nil && id > 0
}

// key scopes an entry to the provider, the caller and the query string.
// The caller is part of the key because authorisation runs in the handler,
// which a cache hit skips.
func (sc *ScheduleCache) key(c echo.Context, providerID uint64) string {
	tail := strings.Join([]string{c.Request().Method, c.Path(), userID(c), c.Request().URL.RawQuery}, "|")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s%x", sc.providerPrefix(providerID), sum[:])
}

// Middleware caches successful responses of a route whose path parameter
// param names the provider.  A nil receiver yields a pass-through.
func (sc *ScheduleCache) Middleware(param string) echo.MiddlewareFunc {
	if sc == nil {
		return passThrough
	}
	maxBody := int64(sc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			providerID, ok := providerParam(c, param)
			if !ok || !sc.methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := sc.key(c, providerID)

			if bs, err := sc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			} else if err != redis.Nil {
				sc.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			// truncated bodies are never stored
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := sc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, sc.cfg.TTL).Err(); err != nil {
				sc.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

// InvalidateProvider deletes every cached response for the provider.
func (sc *ScheduleCache) InvalidateProvider(ctx context.Context, providerID uint64) error {
	if sc == nil {
		return nil
	}
	match := sc.providerPrefix(providerID) + "*"
	iter := sc.rdb.Scan(ctx, 0, match, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return sc.rdb.Del(ctx, keys...).Err()
}
