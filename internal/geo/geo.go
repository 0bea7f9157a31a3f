// Package geo определяет грубое местоположение по IP через внешний HTTP-сервис.
// Любая ошибка поиска превращается в Unknown: обогащение никогда не роняет запись.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/pribylovaa/page-comments/internal/cache"
	"github.com/pribylovaa/page-comments/internal/config"
	"github.com/pribylovaa/page-comments/internal/metrics"
	"github.com/pribylovaa/page-comments/internal/pkg/log"
	"github.com/pribylovaa/page-comments/internal/pkg/redact"
)

const (
	// Unknown — поиск не удался.
	Unknown = "unknown"
	// Local — адрес локальный, внешний сервис не вызывается.
	Local = "local"

	// unknownPart — так сервис помечает неизвестную часть адреса.
	unknownPart = "未知"

	maxBodyBytes = 64 << 10
)

// ErrUnavailable — внешний сервис не дал результата. Наружу не отдаётся, только в логи.
var ErrUnavailable = errors.New("geo unavailable")

// Client — клиент сервиса геолокации.
type Client struct {
	cfg     config.GeoConfig
	http    *http.Client
	cache   cache.Cache
	metrics *metrics.Metrics
}

// New создаёт клиента. cache и m могут быть nil; hc == nil — http.DefaultClient.
func New(cfg config.GeoConfig, hc *http.Client, c cache.Cache, m *metrics.Metrics) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{cfg: cfg, http: hc, cache: c, metrics: m}
}

type response struct {
	Success bool `json:"success"`
	Info    struct {
		Country string `json:"country"`
		Region  string `json:"region"`
		City    string `json:"city"`
	} `json:"info"`
}

// place собирает "страна регион город", пропуская пустые, неизвестные и повторяющиеся части.
func (r response) place() string {
	if !r.Success {
		return ""
	}

	country := strings.TrimSpace(r.Info.Country)
	region := strings.TrimSpace(r.Info.Region)
	city := strings.TrimSpace(r.Info.City)

	parts := make([]string, 0, 3)
	if known(country) {
		parts = append(parts, country)
	}
	if known(region) && region != country {
		parts = append(parts, region)
	}
	if known(city) && city != region {
		parts = append(parts, city)
	}

	return strings.Join(parts, " ")
}

func known(s string) bool { return s != "" && s != unknownPart }

// IsLocal сообщает, что адрес не нужно искать во внешнем сервисе.
func IsLocal(ip string) bool {
	switch strings.TrimSpace(ip) {
	case "", "127.0.0.1", "::1", "localhost":
		return true
	}

	return false
}

func cacheKey(ip string) string { return "geo:" + ip }

// Lookup возвращает местоположение ip. Результат кэшируется только при успехе.
func (c *Client) Lookup(ctx context.Context, ip string) string {
	const op = "geo/Lookup"

	ip = strings.TrimSpace(ip)
	if IsLocal(ip) {
		c.metrics.GeoLookup("local")
		return Local
	}

	if !c.cfg.Enabled {
		return Unknown
	}

	lg := log.From(ctx).With("op", op, "ip", redact.IP(ip))

	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, cacheKey(ip))
		switch {
		case err != nil:
			lg.Warn("geo_cache_get_failed", "err", err)
			c.metrics.CacheError("get")
		case ok && len(raw) > 0:
			c.metrics.GeoLookup("cache")
			return string(raw)
		}
	}

	place, err := c.fetch(ctx, ip)
	if err != nil {
		lg.Warn("geo_lookup_failed", "err", err)
		c.metrics.GeoLookup("failed")
		return Unknown
	}
	c.metrics.GeoLookup("upstream")

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey(ip), []byte(place), c.cfg.CacheTTL); err != nil {
			lg.Warn("geo_cache_set_failed", "err", err)
			c.metrics.CacheError("set")
		}
	}

	return place
}

// fetch делает до 1+Retries попыток с экспоненциальной паузой.
// Каждая попытка ограничена cfg.Timeout; отмена ctx прерывает и попытку, и ожидание.
func (c *Client) fetch(ctx context.Context, ip string) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("%w: bad url: %v", ErrUnavailable, err)
	}
	q := u.Query()
	q.Set("ip", ip)
	u.RawQuery = q.Encode()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.Backoff
	exp.MaxElapsedTime = 0

	retries := c.cfg.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	attempt := 0
	place, err := backoff.RetryWithData(func() (string, error) {
		attempt++
		return c.attempt(ctx, u.String())
	}, policy)
	if err != nil {
		return "", fmt.Errorf("%w: after %d attempt(s): %v", ErrUnavailable, attempt, err)
	}

	return place, nil
}

func (c *Client) attempt(ctx context.Context, target string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode: %w", err))
	}

	place := body.place()
	if place == "" {
		// Сервис ответил, но без пригодных данных: повтор ничего не изменит.
		return "", backoff.Permanent(errors.New("empty place"))
	}

	return place, nil
}
