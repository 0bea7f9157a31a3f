// Package ratelimit — гейт записи по трём независимым областям (ip, email, global)
// и отдельная область чтения по IP.
//
// Окно каждой области открывается первым попаданием и сбрасывается по истечении TTL ключа.
// Это приближение скользящего окна: на стыке окон возможен короткий всплеск до 2*limit.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/page-comments/internal/config"
	"github.com/pribylovaa/page-comments/internal/pkg/log"
	"github.com/pribylovaa/page-comments/internal/pkg/redact"
)

// Scope — область ограничения.
type Scope string

const (
	ScopeIP     Scope = "ip"
	ScopeEmail  Scope = "email"
	ScopeGlobal Scope = "global"
	ScopeReadIP Scope = "read_ip"
)

// Decision — итог проверки.
// При отказе Scope/Limit/Reset описывают отказавшую область, иначе — область IP
// (записи) или read_ip (чтения). Limit == 0 — лимиты выключены.
type Decision struct {
	Allowed    bool
	Scope      Scope
	Limit      int64
	Remaining  int64
	Reset      time.Duration
	RetryAfter time.Duration
}

// RetryAfterSeconds — секунды до сброса окна, округлённые вверх, не меньше 1.
func (d Decision) RetryAfterSeconds() int64 {
	return ceilSeconds(d.RetryAfter)
}

// Limiter проверяет попытки по правилам из конфигурации.
type Limiter struct {
	store   CounterStore
	enabled bool
	rules   map[Scope]config.Rule
}

// New создаёт лимитер.
func New(store CounterStore, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store:   store,
		enabled: cfg.Enabled,
		rules: map[Scope]config.Rule{
			ScopeIP:     cfg.IP.Rule(),
			ScopeEmail:  cfg.Email.Rule(),
			ScopeGlobal: cfg.Global.Rule(),
			ScopeReadIP: cfg.ReadIP.Rule(),
		},
	}
}

type check struct {
	scope Scope
	key   string
}

type outcome struct {
	scope   Scope
	rule    config.Rule
	allowed bool
	count   int64
	ttl     time.Duration
	skipped bool // стор недоступен, область открыта
}

// AllowWrite проверяет попытку записи по областям ip, email и global.
// Счётчики всех трёх областей увеличиваются конкурентно до принятия решения,
// поэтому отклонённая попытка тоже расходует квоту.
// Недоступность стора для области с FailOpen=false возвращает ErrUnavailable.
func (l *Limiter) AllowWrite(ctx context.Context, ip, email string) (Decision, error) {
	return l.allow(ctx, ScopeIP,
		check{scope: ScopeIP, key: normalizeIP(ip)},
		check{scope: ScopeEmail, key: strings.ToLower(strings.TrimSpace(email))},
		check{scope: ScopeGlobal},
	)
}

// AllowRead проверяет попытку чтения по области read_ip.
func (l *Limiter) AllowRead(ctx context.Context, ip string) (Decision, error) {
	return l.allow(ctx, ScopeReadIP, check{scope: ScopeReadIP, key: normalizeIP(ip)})
}

func (l *Limiter) allow(ctx context.Context, primary Scope, checks ...check) (Decision, error) {
	const op = "ratelimit/allow"

	if !l.enabled {
		return Decision{Allowed: true, Scope: primary}, nil
	}

	outcomes := make([]outcome, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			res, err := l.hit(ctx, c)
			outcomes[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	var denied *outcome
	var primaryOut *outcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.scope == primary {
			primaryOut = o
		}

		// Из нескольких отказов берём тот, что дольше всех не откроется.
		if !o.allowed && (denied == nil || o.ttl > denied.ttl) {
			denied = o
		}
	}

	if denied != nil {
		return Decision{
			Allowed:    false,
			Scope:      denied.scope,
			Limit:      denied.rule.Limit,
			Remaining:  0,
			Reset:      denied.ttl,
			RetryAfter: time.Duration(ceilSeconds(denied.ttl)) * time.Second,
		}, nil
	}

	d := Decision{Allowed: true, Scope: primary}
	if primaryOut != nil && !primaryOut.skipped {
		d.Limit = primaryOut.rule.Limit
		d.Remaining = max(primaryOut.rule.Limit-primaryOut.count, 0)
		d.Reset = primaryOut.ttl
	}

	return d, nil
}

func (l *Limiter) hit(ctx context.Context, c check) (outcome, error) {
	rule := l.rules[c.scope]
	out := outcome{scope: c.scope, rule: rule, allowed: true}

	count, ttl, err := l.store.Incr(ctx, counterKey(c), rule.Window)
	if err != nil {
		// Отменённый запрос возвращает ошибку контекста как есть.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}

		lg := log.From(ctx).With("scope", string(c.scope), "fail_open", rule.FailOpen)
		if rule.FailOpen {
			lg.Warn("ratelimit_store_failed", "err", err)
			out.skipped = true
			return out, nil
		}

		lg.Error("ratelimit_store_failed", "err", err)
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return out, fmt.Errorf("scope %s: %w", c.scope, err)
	}

	out.count = count
	out.ttl = ttl
	out.allowed = count <= rule.Limit

	if !out.allowed {
		key := c.key
		switch c.scope {
		case ScopeEmail:
			key = redact.Email(key)
		case ScopeIP, ScopeReadIP:
			key = redact.IP(key)
		}
		log.From(ctx).Info("ratelimit_denied", "scope", string(c.scope), "key", key, "count", count)
	}

	return out, nil
}

func counterKey(c check) string {
	if c.scope == ScopeGlobal {
		return "rl:global"
	}

	return "rl:" + string(c.scope) + ":" + c.key
}

func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}

	return ip
}

func ceilSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}

	return s
}
