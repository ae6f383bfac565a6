package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// Every key the services write lives under sl:<area>:...
const (
	keyNamespace      = "sl"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	sessionPrefix     = "session"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	ExpireNX(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	redis.Scripter
}

// Owner-guarded lock operations run as scripts so the compare and the write
// are one step on the server.
var (
	delIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Client backs sessions, auth rate limits, HTTP idempotency records and
// consumer dedupe claims.
type Client struct {
	store cmdable
	conn  *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Debug(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connection established")
	}
	return &Client{store: conn, conn: conn}, nil
}

// NewWithCmdable wraps an existing command surface, mostly for tests.
func NewWithCmdable(store cmdable) *Client {
	return &Client{store: store}
}

// optionsFromConfig starts from the URL and lets explicit settings fill in
// what it leaves out.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = positive(cfg.PoolSize, opts.PoolSize)
	opts.MinIdleConns = positive(cfg.MinIdleConns, opts.MinIdleConns)
	opts.DialTimeout = positive(cfg.DialTimeout, opts.DialTimeout)
	opts.ReadTimeout = positive(cfg.ReadTimeout, opts.ReadTimeout)
	opts.WriteTimeout = positive(cfg.WriteTimeout, opts.WriteTimeout)
	return opts, nil
}

func positive[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

func (c *Client) ready() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s, err := c.ready()
	if err != nil {
		return err
	}
	return s.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key or Nil when absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	s, err := c.ready()
	if err != nil {
		return "", err
	}
	return s.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s, err := c.ready()
	if err != nil {
		return false, err
	}
	return s.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL increments a fixed-window counter. The window's expiry is set
// with EXPIRE NX on every call, so a counter whose first EXPIRE was lost
// still gets one on the next hit instead of living forever.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s, err := c.ready()
	if err != nil {
		return 0, err
	}
	count, err := s.Incr(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return count, err
	}
	return count, s.ExpireNX(ctx, key, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	s, err := c.ready()
	if err != nil {
		return err
	}
	return s.Del(ctx, keys...).Err()
}

// DelIfOwner deletes key only while it still holds owner.
func (c *Client) DelIfOwner(ctx context.Context, key, owner string) (bool, error) {
	s, err := c.ready()
	if err != nil {
		return false, err
	}
	n, err := delIfOwner.Run(ctx, s, []string{key}, owner).Int64()
	return n == 1, err
}

// ExtendIfOwner resets the expiry of key only while it still holds owner.
func (c *Client) ExtendIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s, err := c.ready()
	if err != nil {
		return false, err
	}
	n, err := extendIfOwner.Run(ctx, s, []string{key}, owner, ttl.Milliseconds()).Int64()
	return n == 1, err
}

func (c *Client) Ping(ctx context.Context) error {
	s, err := c.ready()
	if err != nil {
		return err
	}
	return s.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(rateLimitPrefix, scope)
}

// AccessSessionKey addresses the refresh session bound to one access token id.
func (c *Client) AccessSessionKey(accessID string) string {
	return key(sessionPrefix, "access", accessID)
}

// key joins parts under the namespace, dropping blank parts.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
