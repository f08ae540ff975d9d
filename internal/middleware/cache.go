package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

// ResponseCache stores successful public read responses in Redis, headers
// included, so a hit is byte-identical to the original response.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb redis.UniversalClient
	log *logger.Logger
}

// NewResponseCache builds a cache; a zero TTL falls back to two seconds.
func NewResponseCache(cfg config.CacheConfig, rdb redis.UniversalClient, log *logger.Logger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Second
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

// Middleware serves GET hits from Redis and stores 200 misses.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.cfg.Enabled || rc.rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			key := rc.key(c)
			if rc.serveHit(c, key) {
				return nil
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow {
				return nil
			}
			payload, err := encodeEntry(rec.status, c.Response().Header().Clone(), rec.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := rc.rdb.Set(context.Background(), key, payload, rc.cfg.TTL).Err(); err != nil {
				rc.log.Warn("response cache write failed", "key", key, "error", err)
			}
			return nil
		}
	}
}

func (rc *ResponseCache) serveHit(c echo.Context, key string) bool {
	raw, err := rc.rdb.Get(c.Request().Context(), key).Bytes()
	if err != nil {
		return false
	}
	status, hdr, body, ok := decodeEntry(raw)
	if !ok {
		return false
	}
	h := c.Response().Header()
	for k, vals := range hdr {
		if strings.EqualFold(k, echo.HeaderContentLength) {
			continue
		}
		h[k] = vals
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(status)
	_, _ = c.Response().Write(body)
	return true
}

// key hashes the route and, for the default strategy, the query string.
func (rc *ResponseCache) key(c echo.Context) string {
	var tail string
	switch strings.ToLower(rc.cfg.KeyStrategy) {
	case "route":
		tail = c.Path() + "|" + paramValues(c)
	case "method_route_query":
		tail = c.Request().Method + "|" + c.Path() + "|" + paramValues(c) + "|" + c.Request().URL.RawQuery
	default:
		tail = c.Path() + "|" + paramValues(c) + "|" + c.Request().URL.RawQuery
	}
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", rc.cfg.Prefix, sum)
}

// paramValues keeps /events/A and /events/B apart; c.Path() is the pattern.
func paramValues(c echo.Context) string {
	return strings.Join(c.ParamValues(), "/")
}

// recorder tees the body into a bounded buffer.
type recorder struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
			r.overflow = true
			r.buf.Reset()
		} else {
			r.buf.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// entry layout: [4 status][4 header length][header JSON][body]
func encodeEntry(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...), nil
}

func decodeEntry(raw []byte) (int, http.Header, []byte, bool) {
	if len(raw) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(raw[0:4]))
	n := int(binary.BigEndian.Uint32(raw[4:8]))
	if n < 0 || 8+n > len(raw) {
		return 0, nil, nil, false
	}
	hdr := http.Header{}
	if n > 0 {
		if err := json.Unmarshal(raw[8:8+n], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, raw[8+n:], true
}
