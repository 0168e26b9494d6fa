package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/sirupsen/logrus"
)

// AccessEventArgs is the river job payload carrying one audit event. Verdicts
// and faults share a row shape; faults leave FeatureKey empty and set Fault.
type AccessEventArgs struct {
	FeatureKey string            `json:"feature_key,omitempty"`
	ActorRef   string            `json:"actor_ref,omitempty"`
	Allowed    bool              `json:"allowed"`
	Reason     string            `json:"reason,omitempty"`
	Fault      string            `json:"fault,omitempty"`
	Severity   string            `json:"severity,omitempty"`
	Err        string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (AccessEventArgs) Kind() string { return "gatekit_access_event" }

// RiverLogger enqueues audit events as background jobs so persistence never
// sits on the request path. A failed enqueue is logged and swallowed.
type RiverLogger struct {
	client *river.Client[pgx.Tx]
	log    *logrus.Logger
}

func NewRiverLogger(client *river.Client[pgx.Tx], log *logrus.Logger) *RiverLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RiverLogger{client: client, log: log}
}

// NewInsertClient builds an insert-only river client over the given pool,
// for processes that enqueue audit events but run no workers.
func NewInsertClient(pool *pgxpool.Pool) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), &river.Config{})
}

// NewWorkerClient builds a river client that also works the audit queue.
func NewWorkerClient(pool *pgxpool.Pool, worker *AccessEventWorker, maxWorkers int) (*river.Client[pgx.Tx], error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, worker)
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
}

func (l *RiverLogger) RecordVerdict(ctx context.Context, ev VerdictEvent) error {
	_, err := l.client.Insert(ctx, AccessEventArgs{
		FeatureKey: ev.FeatureKey,
		ActorRef:   ev.ActorRef,
		Allowed:    ev.Allowed,
		Reason:     ev.Reason,
		At:         ev.At,
		Metadata:   ev.Metadata,
	}, nil)
	if err != nil {
		l.log.WithError(err).Warn("audit: verdict enqueue failed")
	}
	return err
}

func (l *RiverLogger) RecordFault(ctx context.Context, ev FaultEvent) error {
	_, err := l.client.Insert(ctx, AccessEventArgs{
		Fault:    ev.Fault,
		Severity: string(ev.Severity),
		Err:      ev.Err,
		At:       ev.At,
		Metadata: ev.Metadata,
	}, nil)
	if err != nil {
		l.log.WithError(err).Warn("audit: fault enqueue failed")
	}
	return err
}
