package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemory_GetSetExpire(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory().WithClock(clk.Now)
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)

	clk.Advance(59 * time.Second)
	_, ok, _ = m.Get(ctx, "k")
	require.True(t, ok)

	clk.Advance(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	require.False(t, ok, "entry must expire exactly at ttl")
}

func TestMemory_Sweep(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory().WithClock(clk.Now)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("list:v%d:s20:t:p/p", i), []byte("[]"), time.Minute))
	}
	require.NoError(t, m.Set(ctx, "geo:203.0.113.7", []byte("Berlin"), time.Hour))
	_, err := m.Incr(ctx, "ver:page:/p")
	require.NoError(t, err)
	require.Equal(t, 1002, m.Len())

	clk.Advance(30 * time.Minute)
	m.Sweep()
	require.Equal(t, 2, m.Len(), "expired listings are removed, live and version keys stay")

	clk.Advance(time.Hour)
	m.Sweep()
	require.Equal(t, 1, m.Len())

	v, err := m.Version(ctx, "ver:page:/p")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("abc"), 0))
	got, _, _ := m.Get(ctx, "k")
	got[0] = 'x'

	again, _, _ := m.Get(ctx, "k")
	require.Equal(t, []byte("abc"), again)
}

func TestMemory_IncrVersionDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	v, err := m.Version(ctx, "ver")
	require.NoError(t, err)
	require.Zero(t, v)

	n, err := m.Incr(ctx, "ver")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, _ = m.Incr(ctx, "ver")
	require.Equal(t, int64(2), n)

	v, _ = m.Version(ctx, "ver")
	require.Equal(t, int64(2), v)

	require.NoError(t, m.Delete(ctx, "ver", "missing"))
	v, _ = m.Version(ctx, "ver")
	require.Zero(t, v)
}

func TestJSONHelpers(t *testing.T) {
	type payload struct {
		A string
		B int
	}

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, m, "j", payload{A: "x", B: 2}, time.Minute))
	got, ok, err := GetJSON[payload](ctx, m, "j")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{A: "x", B: 2}, *got)

	// Битая запись — промах, не ошибка; запись удаляется.
	require.NoError(t, m.Set(ctx, "bad", []byte("{"), time.Minute))
	_, ok, err = GetJSON[payload](ctx, m, "bad")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = m.Get(ctx, "bad")
	require.NoError(t, err)
	require.False(t, ok, "corrupt entry must be deleted")
}

func TestRedisCache_Unreachable_ReturnsErrUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCache(rdb, "")
	defer c.Close()

	ctx := context.Background()

	_, _, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, c.Set(ctx, "k", []byte("v"), time.Second), ErrUnavailable)
	_, err = c.Incr(ctx, "k")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, c.Ping(ctx), ErrUnavailable)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not-a-url::")
	require.Error(t, err)
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "6379/tcp")

	rdb, err := Connect(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}

func TestIntegration_RedisCache(t *testing.T) {
	rdb := startRedis(t)
	c := NewRedisCache(rdb, "test:")
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)

	// Префикс применяется к ключам.
	raw, err := rdb.Get(ctx, "test:k").Result()
	require.NoError(t, err)
	require.Equal(t, "v", raw)

	v, err := c.Version(ctx, "ver")
	require.NoError(t, err)
	require.Zero(t, v)
	n, err := c.Incr(ctx, "ver")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	v, _ = c.Version(ctx, "ver")
	require.Equal(t, int64(1), v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	require.False(t, ok)
	require.NoError(t, c.Ping(ctx))
}
