package audit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"stride/api/internal/logging"
	"stride/api/internal/util"
)

// Sink persists entries. The Postgres store implements it.
type Sink interface {
	InsertAuditEntry(ctx context.Context, entry Entry) error
}

const DefaultWriteTimeout = 2 * time.Second

// Recorder writes audit entries after the business write has committed. A
// failed write is logged and counted, never returned: the mutation stands.
type Recorder struct {
	sink     Sink
	logger   *logrus.Logger
	failures prometheus.Counter
	timeout  time.Duration
	now      func() time.Time
}

func NewRecorder(sink Sink, logger *logrus.Logger, failures prometheus.Counter, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{sink: sink, logger: logger, failures: failures, timeout: timeout, now: time.Now}
}

// Record fills missing metadata from ctx and writes entry synchronously. The write
// runs on a context detached from client cancellation and bounded by the timeout.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.ID == "" {
		entry.ID = util.NewSortableID(entry.CreatedAt)
	}
	if entry.IP == "" {
		entry.IP = logging.ClientIP(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = logging.RequestID(ctx)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.sink.InsertAuditEntry(writeCtx, entry); err != nil {
		if r.failures != nil {
			r.failures.Inc()
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"audit_id":   entry.ID,
			"actor_id":   entry.ActorID,
			"action":     entry.Action,
			"entity":     entry.Entity,
			"entity_id":  entry.EntityID,
			"detail":     entry.Detail,
			"ip":         entry.IP,
			"request_id": entry.RequestID,
			"created_at": entry.CreatedAt,
		}).Error("audit write failed; mutation already committed")
	}
}
