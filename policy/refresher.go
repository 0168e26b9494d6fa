package policy

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher reloads the policy table from the source on a cron schedule and
// writes it into a snapshot cache, so request-path loads stay off the store.
type Refresher struct {
	source  Repository
	cache   SnapshotCache
	cron    *cron.Cron
	log     *logrus.Logger
	timeout time.Duration
}

// NewRefresher builds a stopped refresher. timeout bounds each reload; zero
// means 30 seconds.
func NewRefresher(source Repository, cache SnapshotCache, timeout time.Duration, log *logrus.Logger) *Refresher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Refresher{
		source:  source,
		cache:   cache,
		cron:    cron.New(),
		log:     log,
		timeout: timeout,
	}
}

// Start registers the reload job under the given cron spec (e.g. "@every 1m")
// and starts the scheduler. A failed reload keeps the previous snapshot.
func (r *Refresher) Start(spec string) error {
	if r.source == nil || r.cache == nil {
		return errors.New("policy: refresher needs a source and a cache")
	}
	if _, err := r.cron.AddFunc(spec, r.refresh); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for an in-flight reload to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// RefreshNow performs one synchronous reload, for warming the cache at boot.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	policies, err := r.source.LoadPolicies(ctx)
	if err != nil {
		return err
	}
	return r.cache.Put(ctx, policies)
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.RefreshNow(ctx); err != nil {
		r.log.WithError(err).Warn("policy: scheduled refresh failed, keeping previous snapshot")
		return
	}
	r.log.Debug("policy: snapshot refreshed")
}
