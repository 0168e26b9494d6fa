package audit

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"github.com/uptrace/bun"
)

// AccessEventRow is the persisted form of an audit event.
type AccessEventRow struct {
	bun.BaseModel `bun:"table:gatekit.access_events"`

	ID         int64             `bun:"id,pk,autoincrement"`
	FeatureKey string            `bun:"feature_key"`
	ActorRef   string            `bun:"actor_ref"`
	Allowed    bool              `bun:"allowed"`
	Reason     string            `bun:"reason"`
	Fault      string            `bun:"fault"`
	Severity   string            `bun:"severity"`
	Err        string            `bun:"error"`
	Metadata   map[string]string `bun:"metadata,type:jsonb"`
	OccurredAt time.Time         `bun:"occurred_at"`
	CreatedAt  time.Time         `bun:"created_at,nullzero,default:now()"`
}

// AccessEventWorker drains the audit queue into the access_events table.
type AccessEventWorker struct {
	river.WorkerDefaults[AccessEventArgs]

	db *bun.DB
}

func NewAccessEventWorker(db *bun.DB) *AccessEventWorker {
	return &AccessEventWorker{db: db}
}

func (w *AccessEventWorker) Work(ctx context.Context, job *river.Job[AccessEventArgs]) error {
	args := job.Args
	at := args.At
	if at.IsZero() {
		at = time.Now()
	}
	row := &AccessEventRow{
		FeatureKey: args.FeatureKey,
		ActorRef:   args.ActorRef,
		Allowed:    args.Allowed,
		Reason:     args.Reason,
		Fault:      args.Fault,
		Severity:   args.Severity,
		Err:        args.Err,
		Metadata:   args.Metadata,
		OccurredAt: at,
	}
	_, err := w.db.NewInsert().Model(row).Exec(ctx)
	return err
}
