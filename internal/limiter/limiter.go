// Package limiter shields the extraction service from overload: it
// bounds the number of in-process calls and, after failures, opens a
// Redis-backed cooldown shared by every worker so a struggling service
// is not hammered from all replicas at once.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrCoolingDown is returned by Acquire while the cooldown is active.
var ErrCoolingDown = errors.New("limiter: service cooling down")

type Guard struct {
	rdb         *redis.Client
	name        string
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu    sync.Mutex
	slots chan struct{}
}

type Options struct {
	RedisURL    string
	Name        string
	MaxInflight int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func New(opts Options) (*Guard, error) {
	if opts.Name == "" {
		opts.Name = "extractor"
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 4
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Minute
	}
	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(ro)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Guard{
		rdb:         c,
		name:        opts.Name,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		slots:       make(chan struct{}, opts.MaxInflight),
	}, nil
}

func (g *Guard) key() string {
	return fmt.Sprintf("cooldown:%s", g.name)
}

// Acquire reserves a call slot, failing fast while the cooldown is
// active. The returned release function must be called when done.
func (g *Guard) Acquire(ctx context.Context) (func(), error) {
	if g.isOpen(ctx) {
		return nil, ErrCoolingDown
	}
	select {
	case g.slots <- struct{}{}:
		return func() { <-g.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReportFailure extends the cooldown, doubling the backoff on each
// consecutive failure up to the maximum.
func (g *Guard) ReportFailure(ctx context.Context) {
	k := g.key()
	attempts, _ := g.rdb.Incr(ctx, k+":attempts").Result()
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		attempts = 16
	}
	d := g.baseBackoff * (1 << (attempts - 1))
	if d > g.maxBackoff {
		d = g.maxBackoff
	}
	until := time.Now().Add(d).Unix()
	_ = g.rdb.Set(ctx, k, until, d).Err()
}

// ReportSuccess clears the cooldown and resets the failure count.
func (g *Guard) ReportSuccess(ctx context.Context) {
	k := g.key()
	_ = g.rdb.Del(ctx, k, k+":attempts").Err()
}

func (g *Guard) isOpen(ctx context.Context) bool {
	ts, err := g.rdb.Get(ctx, g.key()).Int64()
	if err != nil {
		return false
	}
	return time.Now().Unix() < ts
}

func (g *Guard) Close() error { return g.rdb.Close() }
