// Package leaselock implements expiring, renewable named locks on top of the
// app_locks table. A lease is owned by a random token; whoever holds the
// token may renew or release it, and an expired lease can be taken over.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

var (
	ErrBusy     = errors.New("lease lock busy")
	ErrLost     = errors.New("lease lock lost")
	ErrEmptyKey = errors.New("lease lock key is empty")
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultWaitInterval = 250 * time.Millisecond

	renewAttempts = 3
	renewTimeout  = 15 * time.Second
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db DB
}

// Options controls a single acquisition. Without Wait, Acquire fails with
// ErrBusy when somebody else holds the key.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

func (o Options) normalize() Options {
	if o.TTL < time.Millisecond {
		o.TTL = DefaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = DefaultWaitInterval
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
	return o
}

// Lease is a held lock. Context is cancelled when the lease is released or
// when renewing it failed; context.Cause tells which.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	client *Client
	ttlMs  int64
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(db DB) *Client {
	return &Client{db: db}
}

// WithLease runs fn while holding key. fn receives the lease context.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[LeaseLock][Release] Could not release lease", "key", key, "err", err)
		}
	}()
	return fn(lease.Context)
}

func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	opts = opts.normalize()

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := opts.TokenPrefix + id
	ttlMs := opts.TTL.Milliseconds()

	for {
		ok, err := c.tryAcquire(ctx, key, token, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		ttlMs:   ttlMs,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	go l.renewLoop(opts.RenewEvery)
	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string, ttlMs int64) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, token, ttlMs).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "", nil
}

// Release stops renewal and deletes the lock row if it is still ours.
// Calling it twice is safe.
func (l *Lease) Release(ctx context.Context) error {
	l.stop(context.Canceled)
	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) stop(cause error) {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(cause)
	})
}

func (l *Lease) renewLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(); err != nil {
				logger.Warn("[LeaseLock][Renew] Lease lost", "key", l.Key, "err", err)
				l.stop(err)
				return
			}
		}
	}
}

func (l *Lease) renew() error {
	var err error
	for attempt := range renewAttempts {
		if attempt > 0 {
			if sleepErr := sleepWithJitter(l.Context, 200*time.Millisecond, 0); sleepErr != nil {
				return sleepErr
			}
		}
		ctx, cancel := context.WithTimeout(l.Context, renewTimeout)
		var got string
		err = l.client.db.QueryRow(ctx, renewSQL, l.Key, l.Token, l.ttlMs).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
	}
	return err
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const tryAcquireSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM app_locks
WHERE lock_key = $1 AND locked_by = $2;
`
