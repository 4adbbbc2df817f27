// Package catalogsync mirrors the Stripe product catalog into the database on
// demand or on a cron schedule. A redis lock keeps concurrent instances from
// syncing at the same time.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	lockKey        = "saasfox:lock:catalog-sync"
	defaultTimeout = 5 * time.Minute
)

// ErrLocked is returned when another instance holds the sync lock.
var ErrLocked = errors.New("catalog sync already running")

// Syncer is the part of the billing service the job drives.
type Syncer interface {
	SyncCatalog(ctx context.Context) (billing.CatalogSyncResult, error)
}

type Job struct {
	syncer  Syncer
	client  *redis.Client
	rs      *redsync.Redsync
	timeout time.Duration
}

// New creates a job. Without a redis client the sync runs unlocked and the
// pricing cache is left alone.
func New(syncer Syncer, client *redis.Client) *Job {
	j := &Job{syncer: syncer, client: client, timeout: defaultTimeout}
	if client != nil {
		j.rs = redsync.New(goredis.NewPool(client))
	}
	return j
}

// WithTimeout bounds a single run.
func (j *Job) WithTimeout(d time.Duration) *Job {
	if d > 0 {
		j.timeout = d
	}
	return j
}

// Run performs one sync. It returns ErrLocked when another run holds the lock.
func (j *Job) Run(ctx context.Context) (billing.CatalogSyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if j.rs != nil {
		mutex := j.rs.NewMutex(lockKey,
			redsync.WithExpiry(j.timeout+30*time.Second),
			redsync.WithTries(1),
		)
		if err := mutex.LockContext(ctx); err != nil {
			if lockHeld(err) {
				return billing.CatalogSyncResult{}, fmt.Errorf("%w: %v", ErrLocked, err)
			}
			return billing.CatalogSyncResult{}, fmt.Errorf("acquire sync lock: %w", err)
		}
		defer func() {
			if _, err := mutex.UnlockContext(context.Background()); err != nil {
				log.Warnf("[CatalogSync] Failed to release lock: %v", err)
			}
		}()
	}

	res, err := j.syncer.SyncCatalog(ctx)
	if err != nil {
		return res, err
	}
	if j.client != nil {
		if err := j.client.Del(ctx, billing.PricingCacheKey).Err(); err != nil {
			log.Warnf("[CatalogSync] Failed to drop pricing cache: %v", err)
		}
	}
	return res, nil
}

// lockHeld reports whether a lock error means another holder owns the key,
// as opposed to redis being unreachable.
func lockHeld(err error) bool {
	var taken *redsync.ErrTaken
	var nodeTaken *redsync.ErrNodeTaken
	return errors.As(err, &taken) || errors.As(err, &nodeTaken) || errors.Is(err, redsync.ErrFailed)
}

// Schedule registers Run on a standard cron spec ("0 * * * *", "@every 1h")
// and starts the scheduler. Stop the returned cron on shutdown.
func (j *Job) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		log.Info("[CatalogSync] Starting scheduled sync")
		res, err := j.Run(context.Background())
		switch {
		case errors.Is(err, ErrLocked):
			log.Info("[CatalogSync] Skipped, another instance is syncing")
		case err != nil:
			log.Errorf("[CatalogSync] Sync failed: %v", err)
		default:
			log.Infof("[CatalogSync] Synced %d products, %d prices", res.Products, res.Prices)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
